package diarize

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/snarg/speaker-align/internal/align"
	"github.com/snarg/speaker-align/internal/httpretry"
	"github.com/snarg/speaker-align/internal/metrics"
)

func audioFile(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "meeting.wav")
	require.NoError(t, os.WriteFile(path, []byte("RIFF"), 0o644))
	return path
}

func testClient(url string, retries uint64) *Client {
	c := NewClient(url, 5*time.Second, retries, zerolog.Nop())
	c.policy.InitialInterval = time.Millisecond
	c.policy.MaxInterval = time.Millisecond
	return c
}

func TestDiarize_SendsSpeakerBounds(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, "3", r.FormValue("num_speakers"))
		assert.Equal(t, "", r.FormValue("min_speakers"), "zero bounds are omitted")
		assert.Equal(t, "5", r.FormValue("max_speakers"))
		w.Write([]byte(`{"segments":[
			{"start":0.0,"end":2.5,"speaker":"SPEAKER_00"},
			{"start":2.5,"end":4.0,"speaker":"SPEAKER_01"}]}`))
	}))
	defer srv.Close()

	turns, err := testClient(srv.URL, 0).Diarize(context.Background(), audioFile(t), Options{NumSpeakers: 3, MaxSpeakers: 5})
	require.NoError(t, err)
	assert.Equal(t, []align.Turn{
		{Interval: align.Interval{Start: 0, End: 2.5}, Speaker: "SPEAKER_00"},
		{Interval: align.Interval{Start: 2.5, End: 4}, Speaker: "SPEAKER_01"},
	}, turns)
}

func TestDiarize_RetriesUnavailable(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`{"segments":[]}`))
	}))
	defer srv.Close()

	errBefore := testutil.ToFloat64(metrics.CollaboratorRequestsTotal.WithLabelValues("diarize", "error"))
	turns, err := testClient(srv.URL, 2).Diarize(context.Background(), audioFile(t), Options{})
	require.NoError(t, err)
	assert.Empty(t, turns)
	assert.EqualValues(t, 2, calls.Load())
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.CollaboratorRequestsTotal.WithLabelValues("diarize", "error"))-errBefore)
}

func TestDiarize_BadRequestNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "bad audio", http.StatusUnprocessableEntity)
	}))
	defer srv.Close()

	_, err := testClient(srv.URL, 3).Diarize(context.Background(), audioFile(t), Options{})
	var se *httpretry.StatusError
	require.True(t, errors.As(err, &se), "got %v", err)
	assert.Equal(t, http.StatusUnprocessableEntity, se.Status)
	assert.EqualValues(t, 1, calls.Load())
}

func TestDiarize_ServiceReportedError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"segments":[],"error":"model not loaded"}`))
	}))
	defer srv.Close()

	_, err := testClient(srv.URL, 0).Diarize(context.Background(), audioFile(t), Options{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "model not loaded")
}

func TestDiarize_MissingSpeaker(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"segments":[{"start":0,"end":1}]}`))
	}))
	defer srv.Close()

	_, err := testClient(srv.URL, 0).Diarize(context.Background(), audioFile(t), Options{})
	var fe *align.FormatError
	require.True(t, errors.As(err, &fe), "got %v", err)
	assert.Equal(t, "speaker", fe.Field)
}

func TestDiarize_MissingFile(t *testing.T) {
	_, err := testClient("http://127.0.0.1:1", 0).Diarize(context.Background(), "/nonexistent.wav", Options{})
	assert.Error(t, err)
}
