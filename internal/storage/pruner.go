package storage

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// UploadPruner evicts uploaded audio once jobs no longer need it, by age
// and/or total size. Files younger than minAge are never touched so an
// in-flight job cannot lose its input.
type UploadPruner struct {
	dir       string
	retention time.Duration
	maxBytes  int64
	minAge    time.Duration
	interval  time.Duration
	log       zerolog.Logger
	stop      chan struct{}
	stopOnce  sync.Once
	done      chan struct{}
}

func NewUploadPruner(dir string, retention time.Duration, maxGB int, log zerolog.Logger) *UploadPruner {
	return &UploadPruner{
		dir:       dir,
		retention: retention,
		maxBytes:  int64(maxGB) * 1024 * 1024 * 1024,
		minAge:    time.Hour,
		interval:  time.Hour,
		log:       log.With().Str("component", "upload-pruner").Logger(),
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}
}

func (p *UploadPruner) Start() {
	go p.loop()
}

func (p *UploadPruner) Stop() {
	p.stopOnce.Do(func() { close(p.stop) })
	<-p.done
}

func (p *UploadPruner) loop() {
	defer close(p.done)
	// Run once on startup to clear any backlog from downtime
	p.Prune(time.Now())

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case now := <-ticker.C:
			p.Prune(now)
		case <-p.stop:
			return
		}
	}
}

type fileEntry struct {
	path    string
	modTime time.Time
	size    int64
}

// Prune removes eligible files as of now and returns how many were deleted.
func (p *UploadPruner) Prune(now time.Time) int {
	if p.retention == 0 && p.maxBytes == 0 {
		return 0
	}

	var files []fileEntry
	var totalSize int64
	filepath.WalkDir(p.dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		files = append(files, fileEntry{path: path, modTime: info.ModTime(), size: info.Size()})
		totalSize += info.Size()
		return nil
	})

	sort.Slice(files, func(i, j int) bool {
		return files[i].modTime.Before(files[j].modTime)
	})

	cutoff := now.Add(-p.retention)
	var prunedCount int
	var prunedBytes int64
	for _, f := range files {
		if now.Sub(f.modTime) < p.minAge {
			break
		}
		expired := p.retention > 0 && f.modTime.Before(cutoff)
		oversize := p.maxBytes > 0 && totalSize > p.maxBytes
		if !expired && !oversize {
			continue
		}
		if err := os.Remove(f.path); err != nil {
			p.log.Warn().Err(err).Str("path", f.path).Msg("prune failed")
			continue
		}
		prunedCount++
		prunedBytes += f.size
		totalSize -= f.size
	}

	if prunedCount > 0 {
		p.log.Info().
			Int("pruned", prunedCount).
			Str("freed", humanizeBytes(prunedBytes)).
			Str("remaining", humanizeBytes(totalSize)).
			Msg("upload prune complete")
	}
	return prunedCount
}

func humanizeBytes(b int64) string {
	const (
		KB = 1024
		MB = KB * 1024
		GB = MB * 1024
	)
	switch {
	case b >= GB:
		return fmt.Sprintf("%.1f GB", float64(b)/float64(GB))
	case b >= MB:
		return fmt.Sprintf("%.1f MB", float64(b)/float64(MB))
	case b >= KB:
		return fmt.Sprintf("%.1f KB", float64(b)/float64(KB))
	default:
		return fmt.Sprintf("%d B", b)
	}
}
