package transcribe

import (
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/snarg/speaker-align/internal/transcript"
)

func TestJobRequest_Validate(t *testing.T) {
	tests := []struct {
		name    string
		req     JobRequest
		wantErr string
	}{
		{"audio", JobRequest{AudioPath: "a.wav", NumSpeakers: 2}, ""},
		{"files", JobRequest{SegmentsPath: "a.json", TurnsPath: "a.rttm", TurnsFormat: "rttm"}, ""},
		{"empty", JobRequest{}, "audio_path"},
		{"segments without turns", JobRequest{SegmentsPath: "a.json"}, "turns_path"},
		{"bad id", JobRequest{ID: "nope", AudioPath: "a.wav"}, "id"},
		{"negative speakers", JobRequest{AudioPath: "a.wav", MaxSpeakers: -1}, "max_speakers"},
		{"bad format", JobRequest{SegmentsPath: "a", TurnsPath: "b", TurnsFormat: "srt"}, "turns_format"},
		{"audio and files", JobRequest{AudioPath: "a.wav", SegmentsPath: "a.json", TurnsPath: "a.rttm"}, "not both"},
		{"inverted bounds", JobRequest{AudioPath: "a.wav", MinSpeakers: 4, MaxSpeakers: 2}, "exceeds"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.req.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() = %v, want nil", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() = %v, want error mentioning %q", err, tt.wantErr)
			}
		})
	}
}

func TestJobRequest_Job(t *testing.T) {
	j, err := JobRequest{SegmentsPath: "a.txt", TurnsPath: "b.txt", SegmentsFormat: "vtt", TurnsFormat: "rttm", MaxSpeakers: 3}.Job("mqtt")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := uuid.Parse(j.ID); err != nil {
		t.Errorf("ID = %q, want generated uuid", j.ID)
	}
	if j.Source != "mqtt" || j.Options.Speakers.MaxSpeakers != 3 {
		t.Errorf("job = %+v", j)
	}
	if j.Options.SegmentsFormat != transcript.FormatVTT || j.Options.TurnsFormat != transcript.FormatRTTM {
		t.Errorf("formats = %q/%q", j.Options.SegmentsFormat, j.Options.TurnsFormat)
	}

	fixed := uuid.NewString()
	j, _ = JobRequest{ID: fixed, AudioPath: "x.wav"}.Job("api")
	if j.ID != fixed {
		t.Errorf("ID = %q, want %q", j.ID, fixed)
	}
}
