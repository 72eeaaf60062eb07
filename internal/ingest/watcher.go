package ingest

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/snarg/speaker-align/internal/api"
	"github.com/snarg/speaker-align/internal/metrics"
	"github.com/snarg/speaker-align/internal/transcribe"
)

const defaultDebounce = 500 * time.Millisecond

var newJobID = uuid.NewString

// Enqueuer accepts jobs without blocking.
type Enqueuer interface {
	Enqueue(transcribe.Job) error
}

type fileKind int

const (
	kindIgnore fileKind = iota
	kindAudio
	kindSegments
	kindTurns
)

func (k fileKind) String() string {
	switch k {
	case kindAudio:
		return "audio"
	case kindSegments:
		return "segments"
	case kindTurns:
		return "turns"
	default:
		return "ignored"
	}
}

var audioExts = map[string]bool{".wav": true, ".mp3": true, ".m4a": true, ".flac": true, ".ogg": true}

var (
	segmentExts = []string{".json", ".ndjson", ".jsonl", ".srt", ".vtt"}
	turnExts    = []string{".json", ".rttm"}
)

// classify maps a file name to its role and the stem shared by a
// segments/turns pair: /in/call.segments.srt and /in/call.turns.rttm both
// have stem /in/call.
func classify(path string) (fileKind, string) {
	lower := strings.ToLower(path)
	if audioExts[filepath.Ext(lower)] {
		return kindAudio, ""
	}
	for _, ext := range segmentExts {
		if suffix := ".segments" + ext; strings.HasSuffix(lower, suffix) {
			return kindSegments, path[:len(path)-len(suffix)]
		}
	}
	for _, ext := range turnExts {
		if suffix := ".turns" + ext; strings.HasSuffix(lower, suffix) {
			return kindTurns, path[:len(path)-len(suffix)]
		}
	}
	return kindIgnore, ""
}

type pair struct {
	segments string
	turns    string
}

// FileWatcher monitors a directory for audio files and segments/turns file
// pairs and enqueues a job for each.
type FileWatcher struct {
	queue    Enqueuer
	watchDir string
	backfill bool
	debounce time.Duration
	log      zerolog.Logger

	watcher *fsnotify.Watcher
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	// Debounce: coalesce rapid Create+Write events on the same file.
	debounceMu     sync.Mutex
	debounceTimers map[string]*time.Timer

	mu    sync.Mutex
	pairs map[string]*pair
	done  map[string]bool

	// Stats
	filesProcessed atomic.Int64
	filesSkipped   atomic.Int64
	status         atomic.Value // string: "starting", "backfilling", "watching", "stopped"
}

// NewFileWatcher creates a watcher over dir. With backfill, files already in
// the directory are processed after Start.
func NewFileWatcher(queue Enqueuer, dir string, backfill bool, log zerolog.Logger) *FileWatcher {
	fw := &FileWatcher{
		queue:          queue,
		watchDir:       dir,
		backfill:       backfill,
		debounce:       defaultDebounce,
		log:            log.With().Str("component", "watcher").Logger(),
		debounceTimers: make(map[string]*time.Timer),
		pairs:          make(map[string]*pair),
		done:           make(map[string]bool),
	}
	fw.status.Store("starting")
	return fw
}

// Start initializes the fsnotify watcher, adds all existing directories, and
// begins watching for new files.
func (fw *FileWatcher) Start(ctx context.Context) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	fw.watcher = w

	dirCount := 0
	err = filepath.WalkDir(fw.watchDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			fw.log.Warn().Err(err).Str("path", path).Msg("error walking directory")
			return nil
		}
		if d.IsDir() {
			if addErr := w.Add(path); addErr != nil {
				fw.log.Warn().Err(addErr).Str("path", path).Msg("failed to watch directory")
			} else {
				dirCount++
			}
		}
		return nil
	})
	if err != nil {
		w.Close()
		return err
	}

	fw.log.Info().
		Int("directories", dirCount).
		Str("watch_dir", fw.watchDir).
		Msg("file watcher initialized")

	fw.ctx, fw.cancel = context.WithCancel(ctx)

	fw.wg.Add(1)
	go fw.watchLoop()

	if fw.backfill {
		fw.wg.Add(1)
		go fw.runBackfill()
	} else {
		fw.status.Store("watching")
	}
	return nil
}

// Stop closes the fsnotify watcher and drops pending debounced events.
func (fw *FileWatcher) Stop() {
	fw.status.Store("stopped")
	if fw.cancel != nil {
		fw.cancel()
	}
	if fw.watcher != nil {
		fw.watcher.Close()
	}
	fw.wg.Wait()

	fw.debounceMu.Lock()
	for path, t := range fw.debounceTimers {
		t.Stop()
		delete(fw.debounceTimers, path)
	}
	fw.debounceMu.Unlock()

	fw.log.Info().
		Int64("files_processed", fw.filesProcessed.Load()).
		Int64("files_skipped", fw.filesSkipped.Load()).
		Msg("file watcher stopped")
}

// Status returns the current watcher status for the health endpoint.
func (fw *FileWatcher) Status() *api.WatcherStatusData {
	s, _ := fw.status.Load().(string)
	fw.mu.Lock()
	pending := len(fw.pairs)
	fw.mu.Unlock()
	return &api.WatcherStatusData{
		Status:         s,
		WatchDir:       fw.watchDir,
		FilesProcessed: fw.filesProcessed.Load(),
		FilesSkipped:   fw.filesSkipped.Load(),
		PendingPairs:   pending,
	}
}

func (fw *FileWatcher) watchLoop() {
	defer fw.wg.Done()
	for {
		select {
		case <-fw.ctx.Done():
			return

		case event, ok := <-fw.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}

			// New directory: add it to the watch set so files in nested
			// directories are caught.
			if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
				if err := fw.watcher.Add(event.Name); err != nil {
					fw.log.Warn().Err(err).Str("path", event.Name).Msg("failed to watch new directory")
				} else {
					fw.log.Debug().Str("path", event.Name).Msg("watching new directory")
				}
				continue
			}

			if kind, _ := classify(event.Name); kind == kindIgnore {
				continue
			}
			fw.scheduleProcess(event.Name)

		case err, ok := <-fw.watcher.Errors:
			if !ok {
				return
			}
			fw.log.Error().Err(err).Msg("fsnotify error")
		}
	}
}

// scheduleProcess debounces file processing so the file is fully written
// before it is read.
func (fw *FileWatcher) scheduleProcess(path string) {
	fw.debounceMu.Lock()
	defer fw.debounceMu.Unlock()

	if t, ok := fw.debounceTimers[path]; ok {
		t.Reset(fw.debounce)
		return
	}

	fw.debounceTimers[path] = time.AfterFunc(fw.debounce, func() {
		fw.debounceMu.Lock()
		delete(fw.debounceTimers, path)
		fw.debounceMu.Unlock()

		if fw.ctx.Err() != nil {
			return
		}
		fw.processFile(path)
	})
}

// processFile enqueues an audio job, or records one half of a file pair and
// enqueues a file job once both halves exist.
func (fw *FileWatcher) processFile(path string) {
	kind, stem := classify(path)
	if kind == kindIgnore {
		return
	}
	if info, err := os.Stat(path); err != nil || !info.Mode().IsRegular() {
		return
	}

	fw.mu.Lock()
	if fw.done[path] {
		fw.mu.Unlock()
		return
	}
	metrics.WatcherFilesTotal.WithLabelValues(kind.String()).Inc()

	var job transcribe.Job
	var paths []string
	switch kind {
	case kindAudio:
		job = transcribe.Job{AudioPath: path}
		paths = []string{path}
	default:
		p := fw.pairs[stem]
		if p == nil {
			p = &pair{}
			fw.pairs[stem] = p
		}
		if kind == kindSegments {
			p.segments = path
		} else {
			p.turns = path
		}
		if p.segments == "" || p.turns == "" {
			fw.mu.Unlock()
			fw.log.Debug().Str("path", path).Msg("waiting for the other half of the pair")
			return
		}
		delete(fw.pairs, stem)
		job = transcribe.Job{SegmentsPath: p.segments, TurnsPath: p.turns}
		paths = []string{p.segments, p.turns}
	}
	for _, p := range paths {
		fw.done[p] = true
	}
	fw.mu.Unlock()

	job.ID = newJobID()
	job.Source = "watch"
	if err := fw.queue.Enqueue(job); err != nil {
		fw.filesSkipped.Add(1)
		metrics.WatcherFilesTotal.WithLabelValues("skipped").Inc()
		fw.log.Warn().Err(err).Str("path", path).Msg("failed to enqueue watched file")
		fw.mu.Lock()
		for _, p := range paths {
			delete(fw.done, p)
		}
		fw.mu.Unlock()
		return
	}
	fw.filesProcessed.Add(1)
	fw.log.Info().Str("job_id", job.ID).Str("kind", job.Kind()).Str("path", path).Msg("watched file enqueued")
}

// runBackfill processes files already in the watch directory, oldest first.
func (fw *FileWatcher) runBackfill() {
	defer fw.wg.Done()
	fw.status.Store("backfilling")
	start := time.Now()

	type fileEntry struct {
		path    string
		modTime time.Time
	}
	var files []fileEntry
	_ = filepath.WalkDir(fw.watchDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		if kind, _ := classify(path); kind == kindIgnore {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		files = append(files, fileEntry{path: path, modTime: info.ModTime()})
		return nil
	})

	sort.Slice(files, func(i, j int) bool {
		return files[i].modTime.Before(files[j].modTime)
	})

	fw.log.Info().Int("files", len(files)).Msg("backfill starting")
	for i, f := range files {
		if fw.ctx.Err() != nil {
			fw.log.Info().Int("processed", i).Msg("backfill interrupted by shutdown")
			return
		}
		fw.processFile(f.path)
	}

	fw.status.Store("watching")
	fw.log.Info().
		Int("files", len(files)).
		Dur("elapsed", time.Since(start)).
		Msg("backfill complete")
}
