package httpretry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastPolicy(retries uint64) Policy {
	return Policy{MaxRetries: retries, InitialInterval: time.Millisecond, MaxInterval: 2 * time.Millisecond}
}

func TestPost_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		assert.Equal(t, "payload", string(body), "body must be resent intact")
		assert.Equal(t, "text/plain", r.Header.Get("Content-Type"))
		if calls.Add(1) < 3 {
			http.Error(w, "busy", http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	var attempts []Attempt
	out, err := Post(context.Background(), srv.Client(), "whisper", srv.URL, "text/plain", []byte("payload"), fastPolicy(5),
		func(a Attempt) { attempts = append(attempts, a) })
	require.NoError(t, err)
	assert.JSONEq(t, `{"ok":true}`, string(out))
	assert.EqualValues(t, 3, calls.Load())
	require.Len(t, attempts, 3)
	assert.Error(t, attempts[0].Err)
	assert.NoError(t, attempts[2].Err)
}

func TestPost_ClientErrorIsPermanent(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "unsupported audio", http.StatusBadRequest)
	}))
	defer srv.Close()

	_, err := Post(context.Background(), srv.Client(), "diarize", srv.URL, "text/plain", nil, fastPolicy(5), nil)
	var se *StatusError
	require.True(t, errors.As(err, &se), "got %v", err)
	assert.Equal(t, http.StatusBadRequest, se.Status)
	assert.Contains(t, se.Error(), "unsupported audio")
	assert.EqualValues(t, 1, calls.Load())
}

func TestPost_GivesUpAfterMaxRetries(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	_, err := Post(context.Background(), srv.Client(), "whisper", srv.URL, "text/plain", nil, fastPolicy(2), nil)
	require.Error(t, err)
	assert.EqualValues(t, 3, calls.Load(), "one try plus two retries")
}

func TestPost_ContextCanceled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Post(ctx, srv.Client(), "whisper", srv.URL, "text/plain", nil, fastPolicy(10), nil)
	assert.Error(t, err)
}

func TestStatusError_Retryable(t *testing.T) {
	assert.True(t, (&StatusError{Status: 500}).Retryable())
	assert.True(t, (&StatusError{Status: 429}).Retryable())
	assert.False(t, (&StatusError{Status: 404}).Retryable())
	assert.Equal(t, "abc", truncate("abc", 5))
	assert.Equal(t, "ab...", truncate("abcdef", 2))
}

func TestClassify(t *testing.T) {
	var perm *backoff.PermanentError

	wrapped := fmt.Errorf("whisper: %w", &StatusError{Service: "whisper", Status: 400})
	assert.True(t, errors.As(classify(wrapped), &perm), "wrapped 400 stays permanent")

	wrapped = fmt.Errorf("whisper: %w", &StatusError{Service: "whisper", Status: 503})
	assert.False(t, errors.As(classify(wrapped), &perm), "wrapped 503 is retried")

	assert.False(t, errors.As(classify(io.ErrUnexpectedEOF), &perm), "transport errors are retried")
}

func TestEncodeFile(t *testing.T) {
	path := t.TempDir() + "/call.wav"
	require.NoError(t, os.WriteFile(path, []byte("RIFFdata"), 0o644))

	var form Form
	form.Add("num_speakers", "2")
	form.Add("model", "large-v3")
	body, ct, err := EncodeFile(path, form)
	require.NoError(t, err)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, "2", r.FormValue("num_speakers"))
		assert.Equal(t, "large-v3", r.FormValue("model"))
		f, hdr, err := r.FormFile("file")
		require.NoError(t, err)
		defer f.Close()
		data, _ := io.ReadAll(f)
		assert.Equal(t, "call.wav", hdr.Filename)
		assert.Equal(t, "RIFFdata", string(data))
	}))
	defer srv.Close()

	_, err = Post(context.Background(), srv.Client(), "test", srv.URL, ct, body, fastPolicy(0), nil)
	require.NoError(t, err)

	_, _, err = EncodeFile(path+".missing", nil)
	assert.Error(t, err)
}
