package alert

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/driftline-systems/driftline/pkg/types"
)

func TestNewDispatcher_UnknownSink(t *testing.T) {
	_, err := NewDispatcher([]types.AlertConfig{{Type: "pager"}}, nil)
	assert.Error(t, err)
}

func TestNewDispatcher_WebhookRequiresURL(t *testing.T) {
	_, err := NewDispatcher([]types.AlertConfig{{Type: types.AlertWebhook}}, nil)
	assert.Error(t, err)
}

func TestFileSink_AppendsJSONLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "alerts.jsonl")
	sink, err := NewFileSink(path)
	require.NoError(t, err)

	require.NoError(t, sink.Send(types.Alert{
		Level:    types.AlertLevelWarning,
		TenantID: "acme",
		Message:  "source needs reconnecting",
	}))
	require.NoError(t, sink.Send(types.Alert{
		Level:   types.AlertLevelError,
		Message: "version failed to generate",
	}))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := 0
	for _, b := range data {
		if b == '\n' {
			lines++
		}
	}
	assert.Equal(t, 2, lines)
}

func TestConsoleSink_IncludesScopeAndSubject(t *testing.T) {
	var buf bytes.Buffer
	sink := &ConsoleSink{out: &buf}

	require.NoError(t, sink.Send(types.Alert{
		Level:    types.AlertLevelError,
		TenantID: "acme",
		Platform: "slack",
		Subject:  "source needs reconnecting",
		Message:  "token revoked",
	}))

	out := buf.String()
	assert.Contains(t, out, "[acme/slack]")
	assert.Contains(t, out, "source needs reconnecting: token revoked")
}

func TestFileSink_RecordCarriesScope(t *testing.T) {
	path := filepath.Join(t.TempDir(), "alerts.jsonl")
	sink, err := NewFileSink(path)
	require.NoError(t, err)

	require.NoError(t, sink.Send(types.Alert{
		Level:     types.AlertLevelWarning,
		TenantID:  "acme",
		Platform:  "slack",
		Subject:   "source repeatedly failing",
		Message:   "5 consecutive failures",
		Timestamp: time.Now(),
	}))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var rec map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &rec))
	assert.Equal(t, "acme", rec["tenant"])
	assert.Equal(t, "slack", rec["platform"])
	assert.Equal(t, "source repeatedly failing", rec["subject"])
}

func TestWebhookSink_PostsAlert(t *testing.T) {
	received := make(chan types.Alert, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var a types.Alert
		require.NoError(t, json.NewDecoder(r.Body).Decode(&a))
		received <- a
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	sink := NewWebhookSink(srv.URL)
	require.NoError(t, sink.Send(types.Alert{
		Level:    types.AlertLevelError,
		TenantID: "acme",
		Platform: "github",
		Message:  "source needs reconnecting",
	}))

	select {
	case a := <-received:
		assert.Equal(t, "acme", a.TenantID)
		assert.Equal(t, types.AlertLevelError, a.Level)
	case <-time.After(time.Second):
		t.Fatal("webhook never received the alert")
	}
}

func TestWebhookSink_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	sink := NewWebhookSink(srv.URL)
	assert.Error(t, sink.Send(types.Alert{Message: "boom"}))
}

func TestDispatcher_StampsTimestamp(t *testing.T) {
	path := filepath.Join(t.TempDir(), "alerts.jsonl")
	d, err := NewDispatcher([]types.AlertConfig{{Type: types.AlertFile, Path: path}}, nil)
	require.NoError(t, err)

	d.Dispatch(types.Alert{Level: types.AlertLevelInfo, Message: "hello"})

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var a types.Alert
	require.NoError(t, json.Unmarshal(data[:len(data)-1], &a))
	assert.False(t, a.Timestamp.IsZero())
}
