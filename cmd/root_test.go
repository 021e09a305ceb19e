package cmd

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/inovacc/labelr/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLogger(t *testing.T) {
	tests := []struct {
		name    string
		cfg     config.LogConfig
		wantErr bool
	}{
		{"text default", config.LogConfig{}, false},
		{"text debug", config.LogConfig{Level: "debug", Format: "text"}, false},
		{"json warn", config.LogConfig{Level: "warn", Format: "JSON"}, false},
		{"bad level", config.LogConfig{Level: "loud"}, true},
		{"bad format", config.LogConfig{Level: "info", Format: "xml"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, err := newLogger(&bytes.Buffer{}, tt.cfg)
			if tt.wantErr {
				require.Error(t, err)
				return
			}

			require.NoError(t, err)
			assert.NotNil(t, logger)
		})
	}
}

func TestNewLogger_JSON(t *testing.T) {
	var buf bytes.Buffer

	logger, err := newLogger(&buf, config.LogConfig{Level: "info", Format: "json"})
	require.NoError(t, err)

	logger.Debug("hidden")
	logger.Info("run succeeded", "repo", "octo/model")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "run succeeded", entry["msg"])
	assert.Equal(t, "octo/model", entry["repo"])
}

func TestCommandsRegistered(t *testing.T) {
	root := GetRootCmd()

	for _, name := range []string{"serve", "train", "classify", "models", "runs", "config", "service"} {
		t.Run(name, func(t *testing.T) {
			cmd, _, err := root.Find([]string{name})
			require.NoError(t, err)
			assert.Equal(t, name, cmd.Name())
		})
	}
}
