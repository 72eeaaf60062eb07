package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/snarg/speaker-align/internal/align"
	"github.com/snarg/speaker-align/internal/metrics"
	"github.com/snarg/speaker-align/internal/render"
	"github.com/snarg/speaker-align/internal/transcribe"
	"github.com/snarg/speaker-align/internal/transcript"
)

// AlignRequest carries ASR segments and diarization turns inline.
type AlignRequest struct {
	Segments       []align.RawSegment `json:"segments" validate:"required"`
	Turns          json.RawMessage    `json:"turns" validate:"required"`
	UnknownSpeaker string             `json:"unknown_speaker" validate:"omitempty,max=64"`
	Terminators    string             `json:"terminators" validate:"omitempty,max=16"`
	Format         string             `json:"format" validate:"omitempty,oneof=txt srt vtt csv csv-semicolon md markdown json"`
}

// AlignHandler runs the alignment engine synchronously.
type AlignHandler struct {
	defaults align.Options
	names    render.SpeakerNames
	log      zerolog.Logger
}

func NewAlignHandler(defaults align.Options, names render.SpeakerNames, log zerolog.Logger) *AlignHandler {
	return &AlignHandler{
		defaults: defaults,
		names:    names,
		log:      log.With().Str("handler", "align").Logger(),
	}
}

func (h *AlignHandler) Routes(r chi.Router) {
	r.Post("/align", h.Align)
}

// Align handles POST /api/v1/align.
func (h *AlignHandler) Align(w http.ResponseWriter, r *http.Request) {
	var req AlignRequest
	if err := DecodeJSON(r, &req); err != nil {
		WriteErrorWithCode(w, http.StatusBadRequest, ErrInvalidBody, "invalid request body: "+err.Error())
		return
	}
	if err := transcribe.ValidateStruct(req); err != nil {
		WriteErrorWithCode(w, http.StatusBadRequest, ErrInvalidParameter, err.Error())
		return
	}
	format := render.JSON
	if req.Format != "" {
		f, err := render.ParseFormat(req.Format)
		if err != nil {
			WriteErrorWithCode(w, http.StatusBadRequest, ErrInvalidParameter, err.Error())
			return
		}
		format = f
	}

	opts := h.defaults
	if req.UnknownSpeaker != "" {
		opts.UnknownSpeaker = req.UnknownSpeaker
	}
	if req.Terminators != "" {
		opts.Merge.Terminators = req.Terminators
	}

	start := time.Now()
	turns, err := transcript.ParseTurns(req.Turns, transcript.FormatJSON)
	var res *align.Result
	if err == nil {
		res, err = align.Align(req.Segments, turns, opts)
	}
	if err != nil {
		metrics.ObserveAlignment("api", time.Since(start), 0, 0, 0, err)
		var fe *align.FormatError
		if errors.As(err, &fe) {
			WriteErrorDetail(w, http.StatusUnprocessableEntity, ErrMalformedInput, "malformed input", fe.Error())
			return
		}
		WriteErrorWithCode(w, http.StatusBadRequest, ErrInvalidBody, err.Error())
		return
	}
	metrics.ObserveAlignment("api", time.Since(start), len(res.Tagged), len(res.Warnings), len(res.Utterances), nil)

	if format == render.JSON {
		WriteJSON(w, http.StatusOK, res)
		return
	}
	doc := render.Document{Utterances: res.Utterances, Warnings: len(res.Warnings), Names: h.names}
	w.Header().Set("Content-Type", format.ContentType())
	w.WriteHeader(http.StatusOK)
	if err := render.Render(w, format, doc); err != nil {
		h.log.Error().Err(err).Msg("render failed")
	}
}
