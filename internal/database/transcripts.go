package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

// TranscriptRow is the input for inserting an aligned transcript.
type TranscriptRow struct {
	ID             string // uuid
	Source         string // "audio", "files", "api", "mqtt"
	Language       string
	Model          string
	Speakers       []string
	UtteranceCount int
	WarningCount   int
	DurationMs     int
	Utterances     json.RawMessage   // []align.Utterance
	Outputs        map[string]string // format -> storage key
}

// TranscriptSummary is the list view of a transcript.
type TranscriptSummary struct {
	ID             string            `json:"id"`
	Source         string            `json:"source"`
	Language       string            `json:"language,omitempty"`
	Model          string            `json:"model,omitempty"`
	Speakers       []string          `json:"speakers"`
	SpeakerCount   int               `json:"speaker_count"`
	UtteranceCount int               `json:"utterance_count"`
	WarningCount   int               `json:"warning_count"`
	DurationMs     int               `json:"duration_ms"`
	Outputs        map[string]string `json:"outputs,omitempty"`
	CreatedAt      time.Time         `json:"created_at"`
}

// TranscriptAPI is a transcript with its utterances, for API responses.
type TranscriptAPI struct {
	TranscriptSummary
	Utterances json.RawMessage `json:"utterances"`
}

// TranscriptFilter specifies filters for listing transcripts.
type TranscriptFilter struct {
	Source  string
	Speaker string
	Since   *time.Time
	Limit   int
	Offset  int
}

const transcriptColumns = `id::text, source, language, model, speakers, speaker_count,
	utterance_count, warning_count, duration_ms, outputs, created_at`

// InsertTranscript stores one aligned transcript.
func (db *DB) InsertTranscript(ctx context.Context, row *TranscriptRow) error {
	utts := row.Utterances
	if len(utts) == 0 {
		utts = json.RawMessage("[]")
	}
	speakers := row.Speakers
	if speakers == nil {
		speakers = []string{}
	}
	outputs, err := json.Marshal(row.Outputs)
	if err != nil {
		return fmt.Errorf("marshal outputs: %w", err)
	}
	if row.Outputs == nil {
		outputs = []byte("{}")
	}

	_, err = db.Pool.Exec(ctx, `
		INSERT INTO transcripts (
			id, source, language, model, speakers, speaker_count,
			utterance_count, warning_count, duration_ms, utterances, outputs
		) VALUES ($1::uuid, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`,
		row.ID, row.Source, row.Language, row.Model, speakers, len(speakers),
		row.UtteranceCount, row.WarningCount, row.DurationMs, utts, outputs,
	)
	if err != nil {
		return fmt.Errorf("insert transcript: %w", err)
	}
	return nil
}

func scanSummary(row pgx.Row, s *TranscriptSummary, extra ...any) error {
	dest := []any{
		&s.ID, &s.Source, &s.Language, &s.Model, &s.Speakers, &s.SpeakerCount,
		&s.UtteranceCount, &s.WarningCount, &s.DurationMs, &s.Outputs, &s.CreatedAt,
	}
	return row.Scan(append(dest, extra...)...)
}

// GetTranscript returns one transcript with its utterances, or ErrNotFound.
func (db *DB) GetTranscript(ctx context.Context, id string) (*TranscriptAPI, error) {
	var t TranscriptAPI
	err := scanSummary(db.Pool.QueryRow(ctx,
		`SELECT `+transcriptColumns+`, utterances FROM transcripts WHERE id = $1::uuid`, id,
	), &t.TranscriptSummary, &t.Utterances)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get transcript: %w", err)
	}
	return &t, nil
}

// ListTranscripts returns transcripts matching the filter, newest first, with a total count.
func (db *DB) ListTranscripts(ctx context.Context, filter TranscriptFilter) ([]TranscriptSummary, int, error) {
	qb := newQueryBuilder()
	if filter.Source != "" {
		qb.Add("source = %s", filter.Source)
	}
	if filter.Speaker != "" {
		qb.Add("%s = ANY(speakers)", filter.Speaker)
	}
	if filter.Since != nil {
		qb.Add("created_at >= %s", *filter.Since)
	}
	whereClause := qb.WhereClause()

	var total int
	if err := db.Pool.QueryRow(ctx, "SELECT count(*) FROM transcripts"+whereClause, qb.Args()...).Scan(&total); err != nil {
		return nil, 0, err
	}

	limit := filter.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	dataQuery := fmt.Sprintf(`SELECT %s FROM transcripts%s ORDER BY created_at DESC LIMIT %d OFFSET %d`,
		transcriptColumns, whereClause, limit, filter.Offset)

	rows, err := db.Pool.Query(ctx, dataQuery, qb.Args()...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	result := []TranscriptSummary{}
	for rows.Next() {
		var s TranscriptSummary
		if err := scanSummary(rows, &s); err != nil {
			return nil, 0, err
		}
		result = append(result, s)
	}
	return result, total, rows.Err()
}

// DeleteTranscript removes a transcript, returning ErrNotFound if it did not exist.
func (db *DB) DeleteTranscript(ctx context.Context, id string) error {
	tag, err := db.Pool.Exec(ctx, `DELETE FROM transcripts WHERE id = $1::uuid`, id)
	if err != nil {
		return fmt.Errorf("delete transcript: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
