package config

import (
	"fmt"
	"log"
	"net"
	"strconv"
	"time"
)

const (
	// defaults for when not provided in Config
	EventChannelLength   uint16        = 1024
	TcpKeepAliveInterval time.Duration = time.Second * 17
	TcpKeepAliveCount    uint16        = 2
	TcpDialTimeout       time.Duration = time.Second * 3
	TcpReconnectInterval time.Duration = time.Second * 5
	TcpReconnectLogEvery uint32        = 12

	// covers dial, TLS handshake, and hello exchange; the session must be
	// ready within this window or the process gives up
	HandshakeTimeout time.Duration = time.Second * 13
)

const (
	// cap on number of flood targets accepted from configuration
	MaxFloodTargets int = 128
)

const (
	LoggerStdout string = "stdout"
	LoggerSyslog string = "syslog"
)

type Config struct {
	EventChannelLength uint16

	ServerAddress string
	ServerName    string // TLS server name, defaults to ServerAddress host

	TlsCertFile string
	TlsKeyFile  string
	TlsCaFile   string

	FloodTargets []uint16

	TcpKeepAliveInterval uint16 // seconds
	TcpKeepAliveCount    uint16
	TcpDialTimeout       uint16 // seconds
	TcpReconnectInterval uint16 // seconds
	TcpReconnectLogEvery uint32

	HandshakeTimeout uint16 // seconds

	Logger      string
	SyslogIdent string

	LogPrefix string
	LogDebug  bool
}

func (c *Config) Validate() error {
	if c == nil {
		err := fmt.Errorf("nil config")
		log.Printf("%s", err.Error())
		return err
	}

	if c.ServerAddress == "" {
		err := fmt.Errorf("%s: invalid ServerAddress=%s", c.LogPrefix, c.ServerAddress)
		log.Printf("%s", err.Error())
		return err
	}

	host, port, err := net.SplitHostPort(c.ServerAddress)
	if err != nil {
		err = fmt.Errorf("%s: failed to parse ServerAddress=%s, err=%s", c.LogPrefix, c.ServerAddress, err.Error())
		log.Printf("%s", err.Error())
		return err
	}
	portNum, err := strconv.ParseUint(port, 10, 16)
	if err != nil || portNum == 0 {
		err = fmt.Errorf("%s: invalid port in ServerAddress=%s", c.LogPrefix, c.ServerAddress)
		log.Printf("%s", err.Error())
		return err
	}

	// server name falls back to address host when not overridden
	if c.ServerName == "" {
		c.ServerName = host
	}

	// client credential must be supplied as a pair
	if (c.TlsCertFile == "") != (c.TlsKeyFile == "") {
		err := fmt.Errorf("%s: TlsCertFile=%s and TlsKeyFile=%s must be given together", c.LogPrefix, c.TlsCertFile, c.TlsKeyFile)
		log.Printf("%s", err.Error())
		return err
	}

	if len(c.FloodTargets) > MaxFloodTargets {
		err := fmt.Errorf("%s: %d flood targets exceeds maximum of %d", c.LogPrefix, len(c.FloodTargets), MaxFloodTargets)
		log.Printf("%s", err.Error())
		return err
	}

	switch c.Logger {
	case "":
		c.Logger = LoggerStdout
	case LoggerStdout, LoggerSyslog:
	default:
		err := fmt.Errorf("%s: invalid Logger=%s", c.LogPrefix, c.Logger)
		log.Printf("%s", err.Error())
		return err
	}

	return nil
}
