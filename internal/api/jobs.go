package api

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/snarg/speaker-align/internal/transcribe"
)

// JobQueue is the worker pool as seen by the API.
type JobQueue interface {
	Enqueue(transcribe.Job) error
	Stats() transcribe.QueueStats
}

// JobAccepted is the 202 response body.
type JobAccepted struct {
	JobID  string `json:"job_id"`
	Kind   string `json:"kind"`
	Status string `json:"status"`
}

// JobsHandler accepts uploaded audio or segment/turn files and queues them.
type JobsHandler struct {
	queue     JobQueue
	uploadDir string
	log       zerolog.Logger
}

func NewJobsHandler(queue JobQueue, uploadDir string, log zerolog.Logger) *JobsHandler {
	return &JobsHandler{
		queue:     queue,
		uploadDir: uploadDir,
		log:       log.With().Str("handler", "jobs").Logger(),
	}
}

func (h *JobsHandler) Routes(r chi.Router) {
	r.Post("/jobs", h.Create)
	r.Get("/jobs/stats", h.Stats)
}

// Stats handles GET /api/v1/jobs/stats.
func (h *JobsHandler) Stats(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, h.queue.Stats())
}

// Create handles POST /api/v1/jobs. The multipart form carries either an
// "audio" file or a "segments" and a "turns" file, plus optional fields
// language, num_speakers, min_speakers, max_speakers, segments_format and
// turns_format.
func (h *JobsHandler) Create(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		WriteErrorWithCode(w, http.StatusBadRequest, ErrInvalidBody, "invalid multipart form: "+err.Error())
		return
	}
	defer r.MultipartForm.RemoveAll()

	req := transcribe.JobRequest{
		ID:             uuid.NewString(),
		Language:       r.FormValue("language"),
		SegmentsFormat: r.FormValue("segments_format"),
		TurnsFormat:    r.FormValue("turns_format"),
	}
	for name, dst := range map[string]*int{
		"num_speakers": &req.NumSpeakers,
		"min_speakers": &req.MinSpeakers,
		"max_speakers": &req.MaxSpeakers,
	} {
		v := r.FormValue(name)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			WriteErrorWithCode(w, http.StatusBadRequest, ErrInvalidParameter, fmt.Sprintf("invalid %s %q: must be an integer", name, v))
			return
		}
		*dst = n
	}

	jobDir := filepath.Join(h.uploadDir, req.ID)
	saved := false
	defer func() {
		if !saved {
			os.RemoveAll(jobDir)
		}
	}()

	var err error
	for field, dst := range map[string]*string{
		"audio":    &req.AudioPath,
		"segments": &req.SegmentsPath,
		"turns":    &req.TurnsPath,
	} {
		if *dst, err = saveUpload(r.MultipartForm, field, jobDir); err != nil {
			WriteErrorWithCode(w, http.StatusBadRequest, ErrInvalidBody, err.Error())
			return
		}
	}
	if err := req.Validate(); err != nil {
		WriteErrorWithCode(w, http.StatusBadRequest, ErrInvalidParameter, err.Error())
		return
	}
	job, err := req.Job("api")
	if err != nil {
		WriteErrorWithCode(w, http.StatusBadRequest, ErrInvalidParameter, err.Error())
		return
	}

	if err := h.queue.Enqueue(job); err != nil {
		if errors.Is(err, transcribe.ErrQueueFull) || errors.Is(err, transcribe.ErrPoolStopped) {
			w.Header().Set("Retry-After", "30")
			WriteErrorWithCode(w, http.StatusServiceUnavailable, ErrQueueFull, err.Error())
			return
		}
		h.log.Error().Err(err).Msg("enqueue failed")
		WriteErrorWithCode(w, http.StatusInternalServerError, ErrInternal, err.Error())
		return
	}
	saved = true

	h.log.Info().Str("job_id", job.ID).Str("kind", job.Kind()).Msg("job accepted")
	WriteJSON(w, http.StatusAccepted, JobAccepted{JobID: job.ID, Kind: job.Kind(), Status: "queued"})
}

// saveUpload copies the named file field into dir. Returns "" when the
// field is absent.
func saveUpload(form *multipart.Form, field, dir string) (string, error) {
	headers := form.File[field]
	if len(headers) == 0 {
		return "", nil
	}
	hdr := headers[0]
	name := sanitizeFilename(hdr.Filename)
	if name == "" {
		name = field
	}

	src, err := hdr.Open()
	if err != nil {
		return "", fmt.Errorf("read %s upload: %w", field, err)
	}
	defer src.Close()

	path := filepath.Join(dir, field, name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("create upload dir: %w", err)
	}
	dst, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create %s upload: %w", field, err)
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		return "", fmt.Errorf("write %s upload: %w", field, err)
	}
	if err := dst.Close(); err != nil {
		return "", fmt.Errorf("write %s upload: %w", field, err)
	}
	return path, nil
}

// sanitizeFilename strips directories and anything outside a safe charset.
func sanitizeFilename(name string) string {
	name = filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	if name == "." || name == "/" {
		return ""
	}
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return strings.TrimLeft(b.String(), ".")
}
