package notify

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSender struct {
	titles []string
	err    error
}

func (r *recordingSender) Send(_ context.Context, title, _ string) error {
	r.titles = append(r.titles, title)
	return r.err
}

func (r *recordingSender) Name() string { return "recording" }

func TestNotifier_EmergencyPrefix(t *testing.T) {
	s := &recordingSender{}
	n := NewNotifier(nil, s)

	require.NoError(t, n.Info(context.Background(), "Bought ABC", "ok"))
	require.NoError(t, n.Emergency(context.Background(), "Exited ABC", "liquidity collapse"))

	require.Len(t, s.titles, 2)
	assert.Equal(t, "Bought ABC", s.titles[0])
	assert.Equal(t, EmergencyPrefix+"Exited ABC", s.titles[1])
}

func TestNotifier_FailingSenderDoesNotStopOthers(t *testing.T) {
	bad := &recordingSender{err: errors.New("down")}
	good := &recordingSender{}
	n := NewNotifier(nil, bad, good)

	err := n.Warning(context.Background(), "retrying", "429")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 sender(s) failed")
	assert.Len(t, good.titles, 1)
}

func TestNotifier_NoSenders(t *testing.T) {
	var n *Notifier
	assert.NoError(t, n.Info(context.Background(), "x", "y"))
	assert.NoError(t, NewNotifier(nil).Emergency(context.Background(), "x", "y"))
}

func TestLogSender_EmergencyLogsError(t *testing.T) {
	logger, hook := test.NewNullLogger()
	s := NewLogSender(logrus.NewEntry(logger))
	n := NewNotifier(nil, s)

	require.NoError(t, n.Emergency(context.Background(), "Exit", "sold"))
	require.NotNil(t, hook.LastEntry())
	assert.Equal(t, logrus.ErrorLevel, hook.LastEntry().Level)
	assert.Equal(t, EmergencyPrefix+"Exit", hook.LastEntry().Data["title"])
}

func TestTelegramSender_Send(t *testing.T) {
	var got map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/botTOKEN/sendMessage", r.URL.Path)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	s := NewTelegramSender(srv.URL, "TOKEN", "42")
	require.NoError(t, s.Send(context.Background(), "Title", "body"))
	assert.Equal(t, "42", got["chat_id"])
	assert.True(t, strings.HasPrefix(got["text"], "*Title*"))
}

func TestTelegramSender_NotOK(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ok":false,"description":"chat not found"}`))
	}))
	defer srv.Close()

	err := NewTelegramSender(srv.URL, "T", "1").Send(context.Background(), "a", "b")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "chat not found")
}
