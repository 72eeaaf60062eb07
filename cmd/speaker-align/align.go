package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/snarg/speaker-align/internal/align"
	"github.com/snarg/speaker-align/internal/config"
	"github.com/snarg/speaker-align/internal/metrics"
	"github.com/snarg/speaker-align/internal/render"
	"github.com/snarg/speaker-align/internal/transcript"
)

type alignFlags struct {
	segmentsFormat string
	turnsFormat    string
	format         string
	output         string
	unknownSpeaker string
	terminators    string
	names          string
}

func newAlignCmd(root *rootFlags) *cobra.Command {
	var f alignFlags
	cmd := &cobra.Command{
		Use:   "align SEGMENTS TURNS",
		Short: "Align an ASR segment file with a diarization file",
		Long: `Reads ASR segments (whisper JSON, NDJSON, SRT or VTT) and speaker turns
(JSON or RTTM), attributes each segment to its dominant speaker, merges
segments into sentence-level utterances and writes them in the chosen format.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(root, config.Overrides{SpeakerNames: f.names})
			if err != nil {
				return err
			}
			log := newLogger(cfg)

			segFmt, err := transcript.ParseFormat(f.segmentsFormat)
			if err != nil {
				return err
			}
			turnFmt, err := transcript.ParseFormat(f.turnsFormat)
			if err != nil {
				return err
			}
			outFmt, err := render.ParseFormat(f.format)
			if err != nil {
				return err
			}
			names, err := render.LoadSpeakerNames(cfg.SpeakerNames)
			if err != nil {
				return err
			}

			start := time.Now()
			segs, err := transcript.LoadSegments(args[0], segFmt)
			if err != nil {
				return fmt.Errorf("read segments: %w", err)
			}
			turns, err := transcript.LoadTurns(args[1], turnFmt)
			if err != nil {
				return fmt.Errorf("read turns: %w", err)
			}

			opts := align.Options{
				UnknownSpeaker: firstNonEmpty(f.unknownSpeaker, cfg.UnknownSpeaker),
				Merge:          align.MergeOptions{Terminators: firstNonEmpty(f.terminators, cfg.Terminators)},
			}
			res, err := align.Align(segs, turns, opts)
			elapsed := time.Since(start)
			if err != nil {
				metrics.ObserveAlignment("cli", elapsed, 0, 0, 0, err)
				return err
			}
			unknown := len(res.Warnings)
			metrics.ObserveAlignment("cli", elapsed, len(res.Tagged), unknown, len(res.Utterances), nil)
			for _, w := range res.Warnings {
				log.Warn().Int("segment", w.Index).Float64("start", w.Interval.Start).Float64("end", w.Interval.End).Msg("no speaker overlaps segment")
			}

			doc := render.Document{Utterances: res.Utterances, Warnings: len(res.Warnings), Names: names}
			err = writeOutput(cmd.OutOrStdout(), f.output, func(w io.Writer) error {
				return render.Render(w, outFmt, doc)
			})
			if err != nil {
				return err
			}

			log.Info().
				Int("segments", len(res.Tagged)).
				Int("turns", len(turns)).
				Int("utterances", len(res.Utterances)).
				Int("speakers", len(res.Speakers)).
				Int("unknown_segments", unknown).
				Dur("elapsed", elapsed).
				Msg("alignment complete")
			return nil
		},
	}
	fl := cmd.Flags()
	fl.StringVar(&f.segmentsFormat, "segments-format", "", "segments encoding: json, ndjson, srt, vtt (default from extension)")
	fl.StringVar(&f.turnsFormat, "turns-format", "", "turns encoding: json, rttm (default from extension)")
	fl.StringVarP(&f.format, "format", "f", "txt", "output format: txt, srt, vtt, csv, csv-semicolon, md, json")
	fl.StringVarP(&f.output, "output", "o", "", "output file (default stdout)")
	fl.StringVar(&f.unknownSpeaker, "unknown-speaker", "", "label for segments no speaker overlaps")
	fl.StringVar(&f.terminators, "terminators", "", "characters that end a sentence")
	fl.StringVar(&f.names, "names", "", "YAML file mapping speaker labels to display names")
	return cmd
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

// writeOutput hands write the command's stdout, or a buffered file at path
// when one is given. The file is flushed and closed before returning so
// short writes surface as errors.
func writeOutput(stdout io.Writer, path string, write func(io.Writer) error) (err error) {
	if path == "" || path == "-" {
		return write(stdout)
	}
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := file.Close(); err == nil && cerr != nil {
			err = fmt.Errorf("close %s: %w", path, cerr)
		}
	}()
	bw := bufio.NewWriter(file)
	if err := write(bw); err != nil {
		return err
	}
	if err := bw.Flush(); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
