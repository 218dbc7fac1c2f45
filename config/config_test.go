package config

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	return &Config{
		ServerAddress: "relay.example.com:7000",
		FloodTargets:  []uint16{1, 2, 3},
		LogPrefix:     "test",
	}
}

func TestValidateOk(t *testing.T) {
	c := validConfig()
	require.NoError(t, c.Validate())
	require.Equal(t, "relay.example.com", c.ServerName)
	require.Equal(t, LoggerStdout, c.Logger)
}

func TestValidateServerNameOverride(t *testing.T) {
	c := validConfig()
	c.ServerName = "other.example.com"
	require.NoError(t, c.Validate())
	require.Equal(t, "other.example.com", c.ServerName)
}

func TestValidateMissingAddress(t *testing.T) {
	c := validConfig()
	c.ServerAddress = ""
	require.Error(t, c.Validate())
}

func TestValidateBadAddress(t *testing.T) {
	for _, address := range []string{"no-port", "host:notaport", "host:0", "host:99999"} {
		c := validConfig()
		c.ServerAddress = address
		require.Error(t, c.Validate(), "address %s", address)
	}
}

func TestValidateTLSPair(t *testing.T) {
	c := validConfig()
	c.TlsCertFile = "client.crt"
	require.Error(t, c.Validate())

	c = validConfig()
	c.TlsKeyFile = "client.key"
	require.Error(t, c.Validate())

	c = validConfig()
	c.TlsCertFile = "client.crt"
	c.TlsKeyFile = "client.key"
	require.NoError(t, c.Validate())
}

func TestValidateTooManyTargets(t *testing.T) {
	c := validConfig()
	c.FloodTargets = make([]uint16, MaxFloodTargets+1)
	require.Error(t, c.Validate())

	c.FloodTargets = make([]uint16, MaxFloodTargets)
	require.NoError(t, c.Validate())
}

func TestValidateEmptyTargetsAllowed(t *testing.T) {
	// zero targets is a valid configuration, the flooder just never sends
	c := validConfig()
	c.FloodTargets = nil
	require.NoError(t, c.Validate())
}

func TestValidateLogger(t *testing.T) {
	c := validConfig()
	c.Logger = LoggerSyslog
	require.NoError(t, c.Validate())

	c = validConfig()
	c.Logger = "journald"
	require.Error(t, c.Validate())
}
