// Package render writes speaker-attributed utterances in the transcript
// formats people actually open: plain text, subtitles, CSV, Markdown, JSON.
package render

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/snarg/speaker-align/internal/align"
)

type Format string

const (
	TXT          Format = "txt"
	SRT          Format = "srt"
	VTT          Format = "vtt"
	CSV          Format = "csv"
	CSVSemicolon Format = "csv-semicolon"
	Markdown     Format = "md"
	JSON         Format = "json"
)

var allFormats = []Format{TXT, SRT, VTT, CSV, CSVSemicolon, Markdown, JSON}

// Extension returns the file extension for f, without the dot.
func (f Format) Extension() string {
	if f == CSVSemicolon {
		return "csv"
	}
	return string(f)
}

// ContentType returns the HTTP content type for f.
func (f Format) ContentType() string {
	switch f {
	case JSON:
		return "application/json"
	case SRT:
		return "application/x-subrip; charset=utf-8"
	case VTT:
		return "text/vtt; charset=utf-8"
	case CSV, CSVSemicolon:
		return "text/csv; charset=utf-8"
	case Markdown:
		return "text/markdown; charset=utf-8"
	default:
		return "text/plain; charset=utf-8"
	}
}

// ParseFormat validates one format name.
func ParseFormat(s string) (Format, error) {
	name := Format(strings.ToLower(strings.TrimSpace(s)))
	if name == "markdown" {
		return Markdown, nil
	}
	for _, f := range allFormats {
		if f == name {
			return f, nil
		}
	}
	return "", fmt.Errorf("unknown output format %q", s)
}

// ParseFormats splits a comma-separated list, dropping blanks and duplicates.
func ParseFormats(list string) ([]Format, error) {
	var out []Format
	seen := make(map[Format]bool)
	for _, part := range strings.Split(list, ",") {
		if strings.TrimSpace(part) == "" {
			continue
		}
		f, err := ParseFormat(part)
		if err != nil {
			return nil, err
		}
		if !seen[f] {
			seen[f] = true
			out = append(out, f)
		}
	}
	return out, nil
}

// Document is what gets rendered: the utterances plus how many segments
// fell back to the unknown label.
type Document struct {
	Utterances []align.Utterance
	Warnings   int
	Names      SpeakerNames
}

func (d Document) speaker(u align.Utterance) string {
	return d.Names.Name(u.Speaker)
}

// Render writes doc to w in format f.
func Render(w io.Writer, f Format, doc Document) error {
	var body string
	switch f {
	case TXT:
		body = renderTXT(doc)
	case SRT:
		body = renderSRT(doc)
	case VTT:
		body = renderVTT(doc)
	case CSV:
		body = renderCSV(doc, false)
	case CSVSemicolon:
		body = renderCSV(doc, true)
	case Markdown:
		body = renderMarkdown(doc)
	case JSON:
		return renderJSON(w, doc)
	default:
		return fmt.Errorf("unknown output format %q", f)
	}
	_, err := io.WriteString(w, body)
	return err
}

// String renders doc into a string.
func String(f Format, doc Document) (string, error) {
	var sb strings.Builder
	if err := Render(&sb, f, doc); err != nil {
		return "", err
	}
	return sb.String(), nil
}

func joinLines(lines []string) string {
	if len(lines) == 0 {
		return ""
	}
	return strings.Join(lines, "\n") + "\n"
}

func renderTXT(doc Document) string {
	lines := make([]string, 0, len(doc.Utterances))
	for _, u := range doc.Utterances {
		line := fmt.Sprintf("%s: [%s] %s", doc.speaker(u), Clock(u.Start), strings.TrimSpace(u.Text))
		lines = append(lines, strings.TrimSpace(line))
	}
	return joinLines(lines)
}

func renderSRT(doc Document) string {
	var lines []string
	for i, u := range doc.Utterances {
		lines = append(lines,
			strconv.Itoa(i+1),
			SRTTime(u.Start)+" --> "+SRTTime(u.End),
			doc.speaker(u)+":"+u.Text,
			"",
		)
	}
	return joinLines(lines)
}

func renderVTT(doc Document) string {
	lines := []string{"WEBVTT", ""}
	for _, u := range doc.Utterances {
		lines = append(lines,
			VTTTime(u.Start)+" --> "+VTTTime(u.End),
			doc.speaker(u)+": "+strings.TrimSpace(u.Text),
			"",
		)
	}
	return joinLines(lines)
}

// renderCSV writes unquoted rows. The separator never appears inside a
// sentence: commas become semicolons, or semicolons become commas in
// semicolon mode.
func renderCSV(doc Document, semicolon bool) string {
	sep, swap := ",", ";"
	if semicolon {
		sep, swap = ";", ","
	}
	lines := []string{strings.Join([]string{"start", "end", "speaker", "sentence"}, sep)}
	for _, u := range doc.Utterances {
		sentence := strings.ReplaceAll(u.Text, sep, swap)
		spk := strings.ReplaceAll(doc.speaker(u), sep, swap)
		line := SRTTime(u.Start) + sep + SRTTime(u.End) + sep + spk + sep + sentence
		lines = append(lines, strings.TrimSpace(line))
	}
	return joinLines(lines)
}

func renderMarkdown(doc Document) string {
	var lines []string
	prev := ""
	for i, u := range doc.Utterances {
		spk := doc.speaker(u)
		if i == 0 || spk != prev {
			lines = append(lines, "", "**"+spk+"**")
			prev = spk
		}
		lines = append(lines, strings.TrimSpace("("+ShortClock(u.Start)+")"+u.Text))
	}
	return joinLines(lines)
}

type jsonUtterance struct {
	Start   float64 `json:"start"`
	End     float64 `json:"end"`
	Speaker string  `json:"speaker"`
	Text    string  `json:"text"`
}

type jsonDocument struct {
	Utterances []jsonUtterance `json:"utterances"`
	Warnings   int             `json:"warnings"`
}

func renderJSON(w io.Writer, doc Document) error {
	out := jsonDocument{Utterances: make([]jsonUtterance, len(doc.Utterances)), Warnings: doc.Warnings}
	for i, u := range doc.Utterances {
		out.Utterances[i] = jsonUtterance{Start: u.Start, End: u.End, Speaker: doc.speaker(u), Text: u.Text}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}
