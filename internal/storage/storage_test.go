package storage

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/snarg/speaker-align/internal/config"
)

func TestOutputKey(t *testing.T) {
	at := time.Date(2024, 3, 9, 23, 30, 0, 0, time.FixedZone("EST", -5*3600))
	got := OutputKey(at, "job-1", "meeting", "srt")
	if got != "2024-03-10/job-1/meeting.srt" {
		t.Errorf("OutputKey = %q, want UTC date", got)
	}
}

func TestObjectKey(t *testing.T) {
	if got := objectKey("", "a/b.txt"); got != "transcripts/a/b.txt" {
		t.Errorf("objectKey no prefix = %q", got)
	}
	if got := objectKey("prod", "a/b.txt"); got != "prod/transcripts/a/b.txt" {
		t.Errorf("objectKey prefix = %q", got)
	}
}

func TestNewLocalWhenS3Disabled(t *testing.T) {
	st, err := New(config.S3Config{}, t.TempDir(), zerolog.Nop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if st.Type() != "local" {
		t.Errorf("Type = %q, want local", st.Type())
	}
}

func TestLocalStore(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	st := NewLocalStore(dir)
	key := "2024-03-10/job-1/meeting.txt"

	if st.Exists(ctx, key) {
		t.Fatal("Exists before Save")
	}
	if err := st.Save(ctx, key, []byte("SPEAKER_00: [00:00:00] Hi"), "text/plain"); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if !st.Exists(ctx, key) {
		t.Error("Exists after Save = false")
	}
	if p := st.LocalPath(key); p != filepath.Join(dir, "2024-03-10", "job-1", "meeting.txt") {
		t.Errorf("LocalPath = %q", p)
	}
	if p := st.LocalPath("missing.txt"); p != "" {
		t.Errorf("LocalPath(missing) = %q, want empty", p)
	}

	r, err := st.Open(ctx, key)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	data, _ := io.ReadAll(r)
	r.Close()
	if string(data) != "SPEAKER_00: [00:00:00] Hi" {
		t.Errorf("content = %q", data)
	}

	// No temp files left behind.
	entries, _ := os.ReadDir(filepath.Join(dir, "2024-03-10", "job-1"))
	if len(entries) != 1 {
		t.Errorf("dir has %d entries, want 1", len(entries))
	}

	if u, err := st.URL(ctx, key); err != nil || u != "" {
		t.Errorf("URL = %q, %v; want empty", u, err)
	}
}

// fakeRemote is an in-memory Store standing in for S3.
type fakeRemote struct {
	objects map[string][]byte
	failPut bool
}

func (f *fakeRemote) Save(_ context.Context, key string, data []byte, _ string) error {
	if f.failPut {
		return errors.New("remote down")
	}
	f.objects[key] = data
	return nil
}
func (f *fakeRemote) LocalPath(string) string { return "" }
func (f *fakeRemote) URL(_ context.Context, key string) (string, error) {
	return "https://bucket.example/" + key, nil
}
func (f *fakeRemote) Open(_ context.Context, key string) (io.ReadCloser, error) {
	data, ok := f.objects[key]
	if !ok {
		return nil, os.ErrNotExist
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}
func (f *fakeRemote) Exists(_ context.Context, key string) bool {
	_, ok := f.objects[key]
	return ok
}
func (f *fakeRemote) Type() string { return "fake" }

func TestMirrorStore(t *testing.T) {
	ctx := context.Background()
	remote := &fakeRemote{objects: map[string][]byte{}}
	local := NewLocalStore(t.TempDir())
	st := NewMirrorStore(remote, local, zerolog.Nop())

	if err := st.Save(ctx, "d/j/a.srt", []byte("1"), "text/plain"); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if _, ok := remote.objects["d/j/a.srt"]; !ok {
		t.Error("remote copy missing")
	}
	if st.LocalPath("d/j/a.srt") == "" {
		t.Error("local copy missing")
	}

	remote.failPut = true
	if err := st.Save(ctx, "d/j/b.srt", []byte("2"), "text/plain"); err != nil {
		t.Errorf("remote failure should not fail Save: %v", err)
	}

	// Remote-only object is fetched and cached locally.
	remote.objects["d/j/c.srt"] = []byte("3")
	r, err := st.Open(ctx, "d/j/c.srt")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	r.Close()
	if !local.Exists(ctx, "d/j/c.srt") {
		t.Error("remote object not cached locally")
	}

	if u, _ := st.URL(ctx, "k"); u != "https://bucket.example/k" {
		t.Errorf("URL = %q", u)
	}
	if st.Type() != "mirror" {
		t.Errorf("Type = %q", st.Type())
	}
}

func TestUploadPruner(t *testing.T) {
	dir := t.TempDir()
	now := time.Now()
	write := func(name string, age time.Duration, size int) string {
		p := filepath.Join(dir, name)
		if err := os.WriteFile(p, make([]byte, size), 0o644); err != nil {
			t.Fatal(err)
		}
		mt := now.Add(-age)
		if err := os.Chtimes(p, mt, mt); err != nil {
			t.Fatal(err)
		}
		return p
	}

	old := write("old.wav", 10*24*time.Hour, 10)
	mid := write("mid.wav", 2*24*time.Hour, 10)
	fresh := write("fresh.wav", time.Minute, 10)

	p := NewUploadPruner(dir, 7*24*time.Hour, 0, zerolog.Nop())
	if n := p.Prune(now); n != 1 {
		t.Errorf("pruned %d, want 1", n)
	}
	if _, err := os.Stat(old); !os.IsNotExist(err) {
		t.Error("old upload should be pruned")
	}
	for _, keep := range []string{mid, fresh} {
		if _, err := os.Stat(keep); err != nil {
			t.Errorf("%s should be kept: %v", keep, err)
		}
	}

	// Size cap evicts oldest first but never files younger than minAge.
	p = NewUploadPruner(dir, 0, 0, zerolog.Nop())
	p.maxBytes = 5
	if n := p.Prune(now); n != 1 {
		t.Errorf("size prune removed %d, want 1", n)
	}
	if _, err := os.Stat(fresh); err != nil {
		t.Error("fresh upload must survive size pruning")
	}
}

func TestUploadPrunerDisabled(t *testing.T) {
	p := NewUploadPruner(t.TempDir(), 0, 0, zerolog.Nop())
	if n := p.Prune(time.Now()); n != 0 {
		t.Errorf("disabled pruner removed %d", n)
	}
	p.Start()
	p.Stop()
}

func TestHumanizeBytes(t *testing.T) {
	tests := []struct {
		in   int64
		want string
	}{
		{512, "512 B"},
		{2048, "2.0 KB"},
		{5 * 1024 * 1024, "5.0 MB"},
		{3 * 1024 * 1024 * 1024, "3.0 GB"},
	}
	for _, tt := range tests {
		if got := humanizeBytes(tt.in); got != tt.want {
			t.Errorf("humanizeBytes(%d) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
