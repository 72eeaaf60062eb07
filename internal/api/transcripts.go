package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/snarg/speaker-align/internal/align"
	"github.com/snarg/speaker-align/internal/database"
	"github.com/snarg/speaker-align/internal/render"
	"github.com/snarg/speaker-align/internal/storage"
)

// TranscriptStore is the persistence layer as seen by the API.
type TranscriptStore interface {
	ListTranscripts(ctx context.Context, filter database.TranscriptFilter) ([]database.TranscriptSummary, int, error)
	GetTranscript(ctx context.Context, id string) (*database.TranscriptAPI, error)
	DeleteTranscript(ctx context.Context, id string) error
}

// TranscriptList is the paginated list response.
type TranscriptList struct {
	Transcripts []database.TranscriptSummary `json:"transcripts"`
	Total       int                          `json:"total"`
	Limit       int                          `json:"limit"`
	Offset      int                          `json:"offset"`
}

// TranscriptsHandler serves stored transcripts. db may be nil, in which
// case every route answers 503.
type TranscriptsHandler struct {
	db    TranscriptStore
	store storage.Store
	names render.SpeakerNames
	log   zerolog.Logger
}

func NewTranscriptsHandler(db TranscriptStore, store storage.Store, names render.SpeakerNames, log zerolog.Logger) *TranscriptsHandler {
	return &TranscriptsHandler{
		db:    db,
		store: store,
		names: names,
		log:   log.With().Str("handler", "transcripts").Logger(),
	}
}

func (h *TranscriptsHandler) Routes(r chi.Router) {
	r.Route("/transcripts", func(r chi.Router) {
		r.Use(h.requireDB)
		r.Get("/", h.List)
		r.Get("/{id}", h.Get)
		r.Delete("/{id}", h.Delete)
		r.Get("/{id}/export", h.Export)
		r.Get("/{id}/files/{format}", h.File)
	})
}

func (h *TranscriptsHandler) requireDB(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h.db == nil {
			WriteErrorWithCode(w, http.StatusServiceUnavailable, ErrUnavailable, "database not configured")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// List handles GET /api/v1/transcripts.
func (h *TranscriptsHandler) List(w http.ResponseWriter, r *http.Request) {
	p, err := ParsePagination(r)
	if err != nil {
		WriteErrorWithCode(w, http.StatusBadRequest, ErrInvalidParameter, err.Error())
		return
	}
	filter := database.TranscriptFilter{Limit: p.Limit, Offset: p.Offset}
	filter.Source, _ = QueryString(r, "source")
	filter.Speaker, _ = QueryString(r, "speaker")
	since, ok, err := QueryTime(r, "since")
	if err != nil {
		WriteErrorWithCode(w, http.StatusBadRequest, ErrInvalidParameter, err.Error())
		return
	}
	if ok {
		filter.Since = &since
	}

	items, total, err := h.db.ListTranscripts(r.Context(), filter)
	if err != nil {
		h.log.Error().Err(err).Msg("list transcripts failed")
		WriteErrorWithCode(w, http.StatusInternalServerError, ErrInternal, "failed to list transcripts")
		return
	}
	if items == nil {
		items = []database.TranscriptSummary{}
	}
	WriteJSON(w, http.StatusOK, TranscriptList{Transcripts: items, Total: total, Limit: p.Limit, Offset: p.Offset})
}

// load fetches the transcript named by the {id} path param, writing the
// error response itself when it returns nil.
func (h *TranscriptsHandler) load(w http.ResponseWriter, r *http.Request) *database.TranscriptAPI {
	id := chi.URLParam(r, "id")
	if _, err := uuid.Parse(id); err != nil {
		WriteErrorWithCode(w, http.StatusBadRequest, ErrInvalidParameter, "invalid transcript id")
		return nil
	}
	t, err := h.db.GetTranscript(r.Context(), id)
	if errors.Is(err, database.ErrNotFound) {
		WriteErrorWithCode(w, http.StatusNotFound, ErrNotFound, "transcript not found")
		return nil
	}
	if err != nil {
		h.log.Error().Err(err).Str("id", id).Msg("get transcript failed")
		WriteErrorWithCode(w, http.StatusInternalServerError, ErrInternal, "failed to load transcript")
		return nil
	}
	return t
}

// Get handles GET /api/v1/transcripts/{id}.
func (h *TranscriptsHandler) Get(w http.ResponseWriter, r *http.Request) {
	if t := h.load(w, r); t != nil {
		WriteJSON(w, http.StatusOK, t)
	}
}

// Delete handles DELETE /api/v1/transcripts/{id}.
func (h *TranscriptsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := uuid.Parse(id); err != nil {
		WriteErrorWithCode(w, http.StatusBadRequest, ErrInvalidParameter, "invalid transcript id")
		return
	}
	err := h.db.DeleteTranscript(r.Context(), id)
	if errors.Is(err, database.ErrNotFound) {
		WriteErrorWithCode(w, http.StatusNotFound, ErrNotFound, "transcript not found")
		return
	}
	if err != nil {
		h.log.Error().Err(err).Str("id", id).Msg("delete transcript failed")
		WriteErrorWithCode(w, http.StatusInternalServerError, ErrInternal, "failed to delete transcript")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Export handles GET /api/v1/transcripts/{id}/export?format=srt by rendering
// the stored utterances with the current speaker names.
func (h *TranscriptsHandler) Export(w http.ResponseWriter, r *http.Request) {
	format := render.TXT
	if v, ok := QueryString(r, "format"); ok {
		f, err := render.ParseFormat(v)
		if err != nil {
			WriteErrorWithCode(w, http.StatusBadRequest, ErrInvalidParameter, err.Error())
			return
		}
		format = f
	}
	t := h.load(w, r)
	if t == nil {
		return
	}
	var utts []align.Utterance
	if len(t.Utterances) > 0 {
		if err := json.Unmarshal(t.Utterances, &utts); err != nil {
			h.log.Error().Err(err).Str("id", t.ID).Msg("stored utterances unreadable")
			WriteErrorWithCode(w, http.StatusInternalServerError, ErrInternal, "stored utterances unreadable")
			return
		}
	}
	doc := render.Document{Utterances: utts, Warnings: t.WarningCount, Names: h.names}
	w.Header().Set("Content-Type", format.ContentType())
	w.Header().Set("Content-Disposition", `attachment; filename="`+t.ID+"."+format.Extension()+`"`)
	if err := render.Render(w, format, doc); err != nil {
		h.log.Error().Err(err).Msg("render failed")
	}
}

// File handles GET /api/v1/transcripts/{id}/files/{format}: the output the
// worker saved at job time. S3 backends redirect to a presigned URL.
func (h *TranscriptsHandler) File(w http.ResponseWriter, r *http.Request) {
	t := h.load(w, r)
	if t == nil {
		return
	}
	key, ok := t.Outputs[chi.URLParam(r, "format")]
	if !ok || h.store == nil {
		WriteErrorWithCode(w, http.StatusNotFound, ErrNotFound, "no stored output in that format")
		return
	}

	if url, err := h.store.URL(r.Context(), key); err != nil {
		h.log.Warn().Err(err).Str("key", key).Msg("presign failed, streaming instead")
	} else if url != "" {
		http.Redirect(w, r, url, http.StatusFound)
		return
	}

	rc, err := h.store.Open(r.Context(), key)
	if err != nil {
		WriteErrorWithCode(w, http.StatusNotFound, ErrNotFound, "stored output missing")
		return
	}
	defer rc.Close()
	if f, err := render.ParseFormat(chi.URLParam(r, "format")); err == nil {
		w.Header().Set("Content-Type", f.ContentType())
	}
	io.Copy(w, rc)
}
