package dnsserver

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/faanross/simulacra_lsb/internal/logger"
)

func TestAPIUploadAndList(t *testing.T) {
	s := newTestServer(t, 100)
	ts := httptest.NewServer(s.APIHandler())
	defer ts.Close()

	ctx := context.Background()
	up := NewUploader(ts.URL, time.Second)

	info, err := up.Upload(ctx, "cafe01", imageBytes(250))
	require.NoError(t, err)
	require.Equal(t, "cafe01", info.ID)
	require.Equal(t, 3, info.Chunks)
	require.Equal(t, "new", info.State)

	_, err = up.Upload(ctx, "cafe01", imageBytes(10))
	require.True(t, errors.Is(err, ErrExists))

	_, err = up.Upload(ctx, "BAD ID", imageBytes(10))
	require.Error(t, err)

	generated, err := up.Upload(ctx, "", imageBytes(10))
	require.NoError(t, err)
	require.Len(t, generated.ID, 16)

	resp, err := http.Get(ts.URL + "/messages")
	require.NoError(t, err)
	defer resp.Body.Close()
	var infos []MessageInfo
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&infos))
	require.Len(t, infos, 2)

	statusResp, err := http.Get(ts.URL + "/status")
	require.NoError(t, err)
	defer statusResp.Body.Close()
	var stats StorageStats
	require.NoError(t, json.NewDecoder(statusResp.Body).Decode(&stats))
	require.Equal(t, StorageStats{TotalMessages: 2, NewMessages: 2, TotalChunks: 4}, stats)
}

func TestAPIDelete(t *testing.T) {
	s := newTestServer(t, 100)
	ts := httptest.NewServer(s.APIHandler())
	defer ts.Close()

	_, err := s.Publish("cafe01", imageBytes(10))
	require.NoError(t, err)

	del := func() int {
		req, err := http.NewRequest(http.MethodDelete, ts.URL+"/messages/cafe01", nil)
		require.NoError(t, err)
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		resp.Body.Close()
		return resp.StatusCode
	}
	require.Equal(t, http.StatusNoContent, del())
	require.Equal(t, http.StatusNotFound, del())
}

func TestAPIMethodNotAllowed(t *testing.T) {
	s := newTestServer(t, 100)
	ts := httptest.NewServer(s.APIHandler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/upload")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestWriteJSONLogsEncodeFailure(t *testing.T) {
	var buf bytes.Buffer
	l := logger.NewLogger(uint32(log.WarnLevel))
	l.SetWriter(&buf)
	s := New(Config{Domain: testDomain, Logger: l}, NewMemoryStorage())

	rec := httptest.NewRecorder()
	s.writeJSON(rec, http.StatusOK, make(chan int))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, buf.String(), "Failed to write JSON response")

	buf.Reset()
	rec = httptest.NewRecorder()
	s.writeJSON(rec, http.StatusOK, map[string]int{"ok": 1})
	require.Empty(t, buf.String())
	require.JSONEq(t, `{"ok":1}`, rec.Body.String())
}
