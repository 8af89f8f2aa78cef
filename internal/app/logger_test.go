package app

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewLoggerJSON(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&Config{AppEnv: "production", LogFormat: "json"}, &buf)
	logger.Debug("hidden")
	logger.Info("visible")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	require.Equal(t, "visible", entry["msg"])
	require.Equal(t, "odyssey-mes", entry["service"])
	require.Equal(t, "production", entry["env"])
}

func TestNewLoggerTextDebugOutsideProduction(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&Config{AppEnv: "development"}, &buf)
	logger.Debug("details")
	require.Contains(t, buf.String(), "msg=details")
}
