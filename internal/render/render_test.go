package render

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/snarg/speaker-align/internal/align"
)

func u(start, end float64, spk, text string) align.Utterance {
	return align.Utterance{Interval: align.Interval{Start: start, End: end}, Speaker: spk, Text: text}
}

var sample = Document{
	Utterances: []align.Utterance{
		u(0, 3.5, "SPEAKER_00", " Good morning, everyone."),
		u(3.6, 6.2, "SPEAKER_01", " Thanks; glad to be here."),
		u(6.5, 3725.25, "SPEAKER_01", " Hm"),
	},
	Warnings: 1,
}

func TestTimeFormats(t *testing.T) {
	tests := []struct {
		sec             float64
		srt, vtt, clock string
		short           string
	}{
		{0, "00:00:00,000", "00:00:00.000", "00:00:00", "00:00"},
		{3.5, "00:00:03,500", "00:00:03.500", "00:00:03", "00:03"},
		{1.9996, "00:00:02,000", "00:00:02.000", "00:00:01", "00:01"},
		{59.9999, "00:01:00,000", "00:01:00.000", "00:00:59", "00:59"},
		{3725.25, "01:02:05,250", "01:02:05.250", "01:02:05", "1:02:05"},
		{-1, "00:00:00,000", "00:00:00.000", "00:00:00", "00:00"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.srt, SRTTime(tt.sec), "srt %v", tt.sec)
		assert.Equal(t, tt.vtt, VTTTime(tt.sec), "vtt %v", tt.sec)
		assert.Equal(t, tt.clock, Clock(tt.sec), "clock %v", tt.sec)
		assert.Equal(t, tt.short, ShortClock(tt.sec), "short %v", tt.sec)
	}
}

func TestRenderTXT(t *testing.T) {
	out, err := String(TXT, sample)
	require.NoError(t, err)
	assert.Equal(t, "SPEAKER_00: [00:00:00] Good morning, everyone.\n"+
		"SPEAKER_01: [00:00:03] Thanks; glad to be here.\n"+
		"SPEAKER_01: [00:00:06] Hm\n", out)
}

func TestRenderSRT(t *testing.T) {
	out, err := String(SRT, sample)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "1\n00:00:00,000 --> 00:00:03,500\nSPEAKER_00: Good morning, everyone.\n\n2\n"))
	assert.Contains(t, out, "3\n00:00:06,500 --> 01:02:05,250\nSPEAKER_01: Hm\n")
}

func TestRenderVTT(t *testing.T) {
	out, err := String(VTT, sample)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "WEBVTT\n\n00:00:00.000 --> 00:00:03.500\nSPEAKER_00: Good morning, everyone.\n\n"))
}

func TestRenderCSV(t *testing.T) {
	out, err := String(CSV, sample)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	require.Len(t, lines, 4)
	assert.Equal(t, "start,end,speaker,sentence", lines[0])
	assert.Equal(t, "00:00:00,000,00:00:03,500,SPEAKER_00, Good morning; everyone.", lines[1])

	out, err = String(CSVSemicolon, sample)
	require.NoError(t, err)
	lines = strings.Split(strings.TrimRight(out, "\n"), "\n")
	assert.Equal(t, "start;end;speaker;sentence", lines[0])
	assert.Equal(t, "00:00:03,600;00:00:06,200;SPEAKER_01; Thanks, glad to be here.", lines[2])
	assert.Equal(t, "csv", CSVSemicolon.Extension())
}

func TestRenderMarkdown(t *testing.T) {
	out, err := String(Markdown, sample)
	require.NoError(t, err)
	assert.Equal(t, "\n**SPEAKER_00**\n(00:00) Good morning, everyone.\n\n**SPEAKER_01**\n(00:03) Thanks; glad to be here.\n(00:06) Hm\n", out)
}

func TestRenderJSON(t *testing.T) {
	out, err := String(JSON, sample)
	require.NoError(t, err)

	var got jsonDocument
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, 1, got.Warnings)
	require.Len(t, got.Utterances, 3)
	assert.Equal(t, "SPEAKER_01", got.Utterances[1].Speaker)
	assert.Equal(t, 3725.25, got.Utterances[2].End)
}

func TestRender_Empty(t *testing.T) {
	for _, f := range allFormats {
		out, err := String(f, Document{})
		require.NoError(t, err, f)
		if f == JSON {
			assert.JSONEq(t, `{"utterances":[],"warnings":0}`, out)
		}
	}
	out, _ := String(TXT, Document{})
	assert.Equal(t, "", out)
}

func TestRender_UnknownFormat(t *testing.T) {
	_, err := String(Format("docx"), sample)
	assert.Error(t, err)
}

func TestParseFormats(t *testing.T) {
	got, err := ParseFormats("txt, SRT,,markdown,txt")
	require.NoError(t, err)
	assert.Equal(t, []Format{TXT, SRT, Markdown}, got)

	_, err = ParseFormats("txt,pdf")
	assert.ErrorContains(t, err, "pdf")
}

func TestSpeakerNames(t *testing.T) {
	path := filepath.Join(t.TempDir(), "names.yaml")
	require.NoError(t, os.WriteFile(path, []byte("SPEAKER_00: Alice\nSPEAKER_01: \"Bob\"\n"), 0o644))

	names, err := LoadSpeakerNames(path)
	require.NoError(t, err)
	assert.Equal(t, "Alice", names.Name("SPEAKER_00"))
	assert.Equal(t, "UNKNOWN", names.Name("UNKNOWN"))

	doc := sample
	doc.Names = names
	out, err := String(TXT, doc)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "Alice: [00:00:00]"))
	assert.Contains(t, out, "Bob: [00:00:06] Hm")

	none, err := LoadSpeakerNames("")
	require.NoError(t, err)
	assert.Equal(t, "X", none.Name("X"))

	require.NoError(t, os.WriteFile(path, []byte("- not\n- a map\n"), 0o644))
	_, err = LoadSpeakerNames(path)
	assert.Error(t, err)
}
