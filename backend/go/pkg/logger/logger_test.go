package logger

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"

	"foodietrack/backend/go/internal/models"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogger_JSONFields(t *testing.T) {
	var buf bytes.Buffer
	InitWithOutput("debug", &buf)
	t.Cleanup(func() { InitWithOutput("info", &bytes.Buffer{}) })

	base := New("preference_service", "trace-1", "")
	base.WithUser("auth0|42").
		WithRequest(models.RequestInfo{Method: "GET", Path: "/preferences/", Status: 200}).
		WithErr(errors.New("boom")).
		Warn("request finished")

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "request finished", entry["message"])
	assert.Equal(t, "warning", entry["level"])
	assert.Equal(t, "preference_service", entry["service_name"])
	assert.Equal(t, "trace-1", entry["trace_id"])
	assert.Equal(t, "auth0|42", entry["user_id"])
	assert.Contains(t, entry, "timestamp")
	assert.Contains(t, entry, "request_info")
	assert.Equal(t, "boom", entry["error"].(map[string]interface{})["message"])
}

func TestLogger_WithDoesNotMutateParent(t *testing.T) {
	var buf bytes.Buffer
	InitWithOutput("info", &buf)
	t.Cleanup(func() { InitWithOutput("info", &bytes.Buffer{}) })

	base := New("svc", "", "")
	_ = base.WithField("extra", 1)
	base.Info("plain")

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.NotContains(t, entry, "extra")
	assert.NotContains(t, entry, "trace_id")
}

func TestLogger_DebugPayloadRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	InitWithOutput("info", &buf)
	t.Cleanup(func() { InitWithOutput("info", &bytes.Buffer{}) })

	log := New("svc", "", "")
	log.WithPayload(map[string]interface{}{"n": 1}).Debug("hidden")
	assert.Zero(t, buf.Len())

	InitWithOutput("debug", &buf)
	log.WithPayload(map[string]interface{}{"n": 1}).Debug("shown")

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "debug", entry["level"])
	assert.Equal(t, map[string]interface{}{"n": float64(1)}, entry["payload"])
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, logrus.DebugLevel, ParseLevel("debug"))
	assert.Equal(t, logrus.WarnLevel, ParseLevel(" warn "))
	assert.Equal(t, logrus.InfoLevel, ParseLevel("loud"))
}
