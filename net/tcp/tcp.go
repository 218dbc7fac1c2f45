package tcp

import (
	"crypto/tls"
	"time"

	"github.com/Meander-Cloud/go-transport/tcp"

	"github.com/Meander-Cloud/go-flood/arbiter"
	"github.com/Meander-Cloud/go-flood/config"
	tp "github.com/Meander-Cloud/go-flood/net/tcp/protocol"
)

// Link binds the relay protocol client to a managed outbound TCP connection.
type Link struct {
	protocol  *tp.Client
	tcpClient *tcp.TcpClient
}

func NewLink(
	c *config.Config,
	a *arbiter.Arbiter,
	h tp.SessionHandler,
	tlsConfig *tls.Config,
) (*Link, error) {
	var tcpKeepAliveInterval time.Duration
	if c.TcpKeepAliveInterval == 0 {
		tcpKeepAliveInterval = config.TcpKeepAliveInterval
	} else {
		tcpKeepAliveInterval = time.Second * time.Duration(c.TcpKeepAliveInterval)
	}

	var tcpKeepAliveCount uint16
	if c.TcpKeepAliveCount == 0 {
		tcpKeepAliveCount = config.TcpKeepAliveCount
	} else {
		tcpKeepAliveCount = c.TcpKeepAliveCount
	}

	var tcpDialTimeout time.Duration
	if c.TcpDialTimeout == 0 {
		tcpDialTimeout = config.TcpDialTimeout
	} else {
		tcpDialTimeout = time.Second * time.Duration(c.TcpDialTimeout)
	}

	var tcpReconnectInterval time.Duration
	if c.TcpReconnectInterval == 0 {
		tcpReconnectInterval = config.TcpReconnectInterval
	} else {
		tcpReconnectInterval = time.Second * time.Duration(c.TcpReconnectInterval)
	}

	var tcpReconnectLogEvery uint32
	if c.TcpReconnectLogEvery == 0 {
		tcpReconnectLogEvery = config.TcpReconnectLogEvery
	} else {
		tcpReconnectLogEvery = c.TcpReconnectLogEvery
	}

	l := &Link{
		protocol:  nil,
		tcpClient: nil,
	}

	var err error
	defer func() {
		if err != nil {
			l.Shutdown() // wait
		}
	}()

	l.protocol, err = tp.NewClient(
		&tp.ClientOptions{
			Options: &tcp.Options{
				Address:           c.ServerAddress,
				KeepAliveInterval: tcpKeepAliveInterval,
				KeepAliveCount:    tcpKeepAliveCount,
				DialTimeout:       tcpDialTimeout,
				ReconnectInterval: tcpReconnectInterval,
				ReconnectLogEvery: tcpReconnectLogEvery,
				Protocol:          nil,
				LogPrefix:         "Link",
				LogDebug:          c.LogDebug,
			},
			Arbiter:        a,
			SessionHandler: h,
			TlsConfig:      tlsConfig,
		},
	)
	if err != nil {
		return nil, err
	}
	l.protocol.Options().Protocol = l.protocol

	l.tcpClient, err = tcp.NewTcpClient(l.protocol.Options().Options)
	if err != nil {
		return nil, err
	}

	return l, nil
}

func (l *Link) Shutdown() {
	if l.tcpClient != nil {
		l.tcpClient.Shutdown() // wait
	}

	<-time.After(time.Second)
}

func (l *Link) Protocol() *tp.Client {
	return l.protocol
}
