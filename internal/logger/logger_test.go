package logger

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWithComponent(t *testing.T) {
	entry := New().WithComponent("detector")
	assert.Equal(t, "detector", entry.Entry.Data["component"])
}

func TestConfigure_InvalidLevel(t *testing.T) {
	t.Setenv("LOG_LEVEL", "")

	err := New().Configure("loud", "json", "stdout", 0)
	require.Error(t, err)
}

func TestConfigure_InvalidFormat(t *testing.T) {
	t.Setenv("LOG_LEVEL", "")

	err := New().Configure("info", "xml", "stdout", 0)
	require.Error(t, err)
}

func TestConfigure_EnvOverridesLevel(t *testing.T) {
	t.Setenv("LOG_LEVEL", "debug")

	l := New()
	require.NoError(t, l.Configure("warn", "text", "stderr", 0))
	assert.Equal(t, logrus.DebugLevel, l.GetLevel())
}

func TestConfigure_FileOutput(t *testing.T) {
	t.Setenv("LOG_LEVEL", "")

	l := New()
	path := filepath.Join(t.TempDir(), "lab.log")
	require.NoError(t, l.Configure("info", "json", path, 0))
	require.NoError(t, l.Configure("info", "json", path, 7))
}

func TestJSONFieldNames(t *testing.T) {
	t.Setenv("LOG_LEVEL", "")

	var buf bytes.Buffer
	l := New()
	l.SetOutput(&buf)

	l.WithComponent("harness").WithField("events", 3).Info("run finished")

	var line map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "run finished", line["message"])
	assert.Equal(t, "info", line["level"])
	assert.Equal(t, "harness", line["component"])
	assert.Contains(t, line, "timestamp")
}

func TestLogStage(t *testing.T) {
	t.Setenv("LOG_LEVEL", "")

	var buf bytes.Buffer
	l := New()
	l.SetOutput(&buf)
	l.SetLevel(logrus.DebugLevel)

	LogStage(l.WithComponent("harness"), "simulation", 1500*time.Nanosecond, nil)

	var line map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "simulation", line["stage"])
	assert.InDelta(t, 1.5, line["duration_us"], 1e-9)
}
