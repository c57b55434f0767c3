package config

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func validConfig() Config {
	return Config{
		WSBindAddr:         "127.0.0.1:9001",
		CPURejectThreshold: 75,
		CPUPauseThreshold:  80,
		MaxPinsPerRoom:     10,
		MaxConnections:     100,
		LogLevel:           "info",
		LogFormat:          "json",
	}
}

func TestValidateAcceptsDefaults(t *testing.T) {
	c := validConfig()
	require.NoError(t, c.Validate())
}

func TestValidateRejectsMissingBindAddr(t *testing.T) {
	c := validConfig()
	c.WSBindAddr = ""
	require.Error(t, c.Validate())
}

func TestValidateRejectsPauseThresholdBelowRejectThreshold(t *testing.T) {
	c := validConfig()
	c.CPURejectThreshold = 90
	c.CPUPauseThreshold = 80
	require.Error(t, c.Validate())
}

func TestValidateRejectsOutOfRangeCPUThreshold(t *testing.T) {
	c := validConfig()
	c.CPURejectThreshold = 150
	require.Error(t, c.Validate())
}

func TestValidateRejectsNonPositivePinLimit(t *testing.T) {
	c := validConfig()
	c.MaxPinsPerRoom = 0
	require.Error(t, c.Validate())
}

func TestValidateRejectsUnknownLogLevel(t *testing.T) {
	c := validConfig()
	c.LogLevel = "verbose"
	require.Error(t, c.Validate())
}

func TestValidateRejectsUnknownLogFormat(t *testing.T) {
	c := validConfig()
	c.LogFormat = "xml"
	require.Error(t, c.Validate())
}
