package main

import (
	"flag"
	"fmt"
	"log"
	"log/syslog"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/Meander-Cloud/go-flood/config"
	"github.com/Meander-Cloud/go-flood/flood"
)

const version = "go-flood 1.0.0"

// floodIDList collects repeated --flood-id flags in order.
type floodIDList []uint16

func (l *floodIDList) String() string {
	return fmt.Sprintf("%v", []uint16(*l))
}

func (l *floodIDList) Set(value string) error {
	id, err := strconv.ParseUint(value, 10, 16)
	if err != nil {
		return fmt.Errorf("invalid peer id %q", value)
	}
	*l = append(*l, uint16(id))
	return nil
}

func parseLogLevel(value string) (int, error) {
	switch value {
	case "0", "none":
		return 0, nil
	case "1", "error":
		return 1, nil
	case "2", "warning":
		return 2, nil
	case "3", "notice":
		return 3, nil
	case "4", "info":
		return 4, nil
	case "5", "debug":
		return 5, nil
	default:
		return -1, fmt.Errorf("invalid loglevel %q", value)
	}
}

func run() int {
	fs := flag.NewFlagSet(os.Args[0], flag.ContinueOnError)

	versionFlag := fs.Bool("version", false, "print program version and exit")
	logger := fs.String("logger", config.LoggerStdout, "log output: stdout or syslog")
	syslogIdent := fs.String("syslog-ident", os.Args[0], "syslog ident when --logger syslog")
	logLevel := fs.String("loglevel", "info", "log verbosity: 0-5/none/error/warning/notice/info/debug")
	serverAddr := fs.String("server-addr", "", "relay server address, host:port")
	serverName := fs.String("server-name", "", "server name for TLS, overrides address host")
	tlsCert := fs.String("tls-cert", "", "client certificate file, requires --tls-key")
	tlsKey := fs.String("tls-key", "", "client private key file, requires --tls-cert")
	tlsCa := fs.String("tls-ca", "", "trusted server CA file")

	var floodIDs floodIDList
	fs.Var(&floodIDs, "flood-id", "peer id to flood, may be given multiple times")

	err := fs.Parse(os.Args[1:])
	if err == flag.ErrHelp {
		return 0
	}
	if err != nil {
		return 1
	}

	if *versionFlag {
		fmt.Println(version)
		return 0
	}

	level, err := parseLogLevel(*logLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", err.Error())
		return 1
	}

	if *logger == config.LoggerSyslog {
		w, err := syslog.New(syslog.LOG_DAEMON|syslog.LOG_INFO, *syslogIdent)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to initialize syslog logger: %s\n", err.Error())
			return 1
		}
		log.SetOutput(w)
	}

	c := &config.Config{
		ServerAddress: *serverAddr,
		ServerName:    *serverName,

		TlsCertFile: *tlsCert,
		TlsKeyFile:  *tlsKey,
		TlsCaFile:   *tlsCa,

		FloodTargets: floodIDs,

		Logger:      *logger,
		SyslogIdent: *syslogIdent,

		LogPrefix: "flood",
		LogDebug:  level >= 5,
	}

	log.Printf("%s: initializing %s", c.LogPrefix, version)

	f, err := flood.NewFlooder(c)
	if err != nil {
		log.Printf("%s: initialization failed", c.LogPrefix)
		return 1
	}

	log.Printf("%s: entering event loop", c.LogPrefix)

	sigch := make(chan os.Signal, 1)
	signal.Notify(sigch, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigch:
		log.Printf("%s: received signal %s", c.LogPrefix, sig.String())
		f.RequestTerminate()
		<-f.Done() // wait
	case <-f.Done():
	}

	f.Shutdown() // wait
	log.Printf("%s: exiting", c.LogPrefix)

	// session termination, operator requested or not, is an abnormal end of
	// a flood run
	return 1
}

func main() {
	// enable microsecond and file line logging
	log.SetFlags(log.LstdFlags | log.Lmicroseconds | log.Lshortfile)

	os.Exit(run())
}
