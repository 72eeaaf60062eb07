package transcribe

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/snarg/speaker-align/internal/diarize"
	"github.com/snarg/speaker-align/internal/transcript"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// JobRequest is the wire form of a job, shared by MQTT messages and the
// jobs API.
type JobRequest struct {
	ID             string `json:"id" validate:"omitempty,uuid"`
	AudioPath      string `json:"audio_path" validate:"required_without_all=SegmentsPath TurnsPath"`
	SegmentsPath   string `json:"segments_path" validate:"required_with=TurnsPath"`
	TurnsPath      string `json:"turns_path" validate:"required_with=SegmentsPath"`
	SegmentsFormat string `json:"segments_format" validate:"omitempty,oneof=json ndjson jsonl srt vtt"`
	TurnsFormat    string `json:"turns_format" validate:"omitempty,oneof=json rttm"`
	Language       string `json:"language" validate:"omitempty,min=2,max=8"`
	NumSpeakers    int    `json:"num_speakers" validate:"gte=0,lte=64"`
	MinSpeakers    int    `json:"min_speakers" validate:"gte=0,lte=64"`
	MaxSpeakers    int    `json:"max_speakers" validate:"gte=0,lte=64"`
}

// Validate checks field constraints, that a job names either audio or
// segment and turn files, and speaker bound ordering.
func (r JobRequest) Validate() error {
	if err := ValidateStruct(r); err != nil {
		return fmt.Errorf("invalid job: %w", err)
	}
	if r.AudioPath != "" && (r.SegmentsPath != "" || r.TurnsPath != "") {
		return errors.New("invalid job: send either audio_path or segments_path and turns_path, not both")
	}
	if r.MinSpeakers > 0 && r.MaxSpeakers > 0 && r.MinSpeakers > r.MaxSpeakers {
		return fmt.Errorf("min_speakers (%d) exceeds max_speakers (%d)", r.MinSpeakers, r.MaxSpeakers)
	}
	return nil
}

// Job converts the request into a Job, assigning an id when none was given.
// Call Validate first.
func (r JobRequest) Job(source string) (Job, error) {
	id := r.ID
	if id == "" {
		id = uuid.NewString()
	}
	j := Job{
		ID:           id,
		Source:       source,
		AudioPath:    r.AudioPath,
		SegmentsPath: r.SegmentsPath,
		TurnsPath:    r.TurnsPath,
		Options: JobOptions{
			Language: r.Language,
			Speakers: diarize.Options{
				NumSpeakers: r.NumSpeakers,
				MinSpeakers: r.MinSpeakers,
				MaxSpeakers: r.MaxSpeakers,
			},
		},
	}
	var err error
	if r.SegmentsFormat != "" {
		if j.Options.SegmentsFormat, err = transcript.ParseFormat(r.SegmentsFormat); err != nil {
			return Job{}, err
		}
	}
	if r.TurnsFormat != "" {
		if j.Options.TurnsFormat, err = transcript.ParseFormat(r.TurnsFormat); err != nil {
			return Job{}, err
		}
	}
	return j, nil
}

// ValidateStruct checks v's validate tags and flattens failures into one
// error naming the JSON fields.
func ValidateStruct(v any) error {
	err := validate.Struct(v)
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return err
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s failed %q", fe.Field(), fe.Tag()))
	}
	return errors.New(strings.Join(msgs, "; "))
}
