package utils

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLogger_Level(t *testing.T) {
	assert.Equal(t, logrus.DebugLevel, NewLogger(Config{LogLevel: "DEBUG"}).GetLevel())
	assert.Equal(t, logrus.InfoLevel, NewLogger(Config{LogLevel: "chatty"}).GetLevel())
}

func TestLogger_WithFunc(t *testing.T) {
	log := NewLogger(Config{LogLevel: "info", LogFormat: "json"})
	var buf bytes.Buffer
	log.SetOutput(&buf)

	log.WithFunc().Info("hello")

	var line map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "hello", line["msg"])
	assert.Equal(t, "utils.TestLogger_WithFunc", line["func"])
}
