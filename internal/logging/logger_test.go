package logging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestNewLoggerValidConfig(t *testing.T) {
	cfg := NewDefaultConfig()
	logger, err := NewLogger(cfg)
	require.NoError(t, err)
	require.NotNil(t, logger)
	assert.NotNil(t, logger.Underlying())
}

func TestNewLoggerInvalidFormat(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Format = "xml"
	_, err := NewLogger(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "format")
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "defaults valid", mutate: func(c *Config) {}, wantErr: false},
		{name: "console format valid", mutate: func(c *Config) { c.Format = "console" }, wantErr: false},
		{name: "negative caller skip", mutate: func(c *Config) { c.Caller.Skip = -1 }, wantErr: true},
		{name: "empty field value", mutate: func(c *Config) { c.Fields = map[string]string{"env": ""} }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewDefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestLevelFromString(t *testing.T) {
	l, err := LevelFromString("trace")
	require.NoError(t, err)
	assert.Equal(t, TraceLevel, l)

	l, err = LevelFromString("warn")
	require.NoError(t, err)
	assert.Equal(t, zapcore.WarnLevel, l)

	_, err = LevelFromString("shout")
	assert.Error(t, err)
}

func TestNamedChildLogger(t *testing.T) {
	tl := NewTestLogger()
	child := tl.Named("embeddings")
	child.Underlying().Info("probe")
	tl.AssertLogged(t, zapcore.InfoLevel, "probe")
}
