package main

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/MrWong99/speechprep/pkg/audio"
	"github.com/MrWong99/speechprep/pkg/audio/resample"
)

type convertFlags struct {
	from       string
	to         string
	channels   int
	fromRate   int
	toRate     int
	normalize  bool
	preprocess bool
}

func newConvertCmd(g *globalFlags) *cobra.Command {
	f := &convertFlags{}
	cmd := &cobra.Command{
		Use:   "convert [flags] <in> <out>",
		Short: "Re-encode a raw audio file, optionally resampling it",
		Long: `Convert re-encodes raw headerless audio between sample formats.
Use "-" for stdin or stdout. Multi-channel input is down-mixed to mono.
With --from-rate and --to-rate the audio is resampled; with --preprocess it
is resampled to resample.target_rate and conditioned for speech recognition.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConvert(cmd, g, f, args[0], args[1])
		},
	}
	cmd.Flags().StringVar(&f.from, "from", "", "input sample format (see 'speechprep info')")
	cmd.Flags().StringVar(&f.to, "to", "s16le", "output sample format")
	cmd.Flags().IntVar(&f.channels, "channels", 1, "interleaved input channels")
	cmd.Flags().IntVar(&f.fromRate, "from-rate", 0, "input sample rate in Hz")
	cmd.Flags().IntVar(&f.toRate, "to-rate", 0, "output sample rate in Hz; 0 keeps the input rate")
	cmd.Flags().BoolVar(&f.normalize, "normalize", false, "scale the output peak to converter.target_peak")
	cmd.Flags().BoolVar(&f.preprocess, "preprocess", false, "resample to resample.target_rate and apply speech preprocessing")
	_ = cmd.MarkFlagRequired("from")
	cmd.MarkFlagsMutuallyExclusive("to-rate", "preprocess")
	return cmd
}

func runConvert(cmd *cobra.Command, g *globalFlags, f *convertFlags, inPath, outPath string) error {
	cfg, err := g.loadConfig()
	if err != nil {
		return err
	}
	from, err := audio.ParseFormat(f.from)
	if err != nil {
		return err
	}
	to, err := audio.ParseFormat(f.to)
	if err != nil {
		return err
	}
	needRate := f.preprocess || (f.toRate != 0 && f.toRate != f.fromRate)
	if needRate && f.fromRate <= 0 {
		return fmt.Errorf("--from-rate is required when resampling")
	}

	data, err := readInput(cmd.InOrStdin(), inPath)
	if err != nil {
		return err
	}

	conv := audio.NewConverter()
	var out []byte
	if needRate {
		rc, err := cfg.ResampleConfig()
		if err != nil {
			return err
		}
		if f.toRate != 0 {
			rc.TargetRate = f.toRate
		}
		rs, err := resample.New(rc)
		if err != nil {
			return err
		}

		buf, err := conv.Decode(data, from, f.fromRate, f.channels)
		if err != nil {
			return err
		}
		var samples []float32
		if f.preprocess {
			samples, err = rs.PreprocessForTranscription(buf.Samples, buf.SampleRate)
		} else {
			samples, err = rs.ResampleToTarget(buf.Samples, buf.SampleRate)
		}
		if err != nil {
			return err
		}
		if f.normalize {
			audio.NormalizeSamples(samples, cfg.Converter.TargetPeak)
		}
		if out, err = conv.Encode(samples, to); err != nil {
			return err
		}
		slog.Debug("convert: resampled",
			"from_rate", f.fromRate,
			"to_rate", rs.TargetRate(),
			"served_by", rs.Stats().ServedBy,
		)
	} else {
		if out, err = conv.Convert(data, from, to, f.channels); err != nil {
			return err
		}
		if f.normalize {
			if out, err = conv.Normalize(out, to, cfg.Converter.TargetPeak); err != nil {
				return err
			}
		}
	}

	if err := writeOutput(cmd.OutOrStdout(), outPath, out); err != nil {
		return err
	}
	st := conv.Stats()
	slog.Info("convert: done",
		"in_bytes", len(data),
		"out_bytes", len(out),
		"from", from,
		"to", to,
		"samples", st.SamplesProcessed,
	)
	return nil
}

func readInput(stdin io.Reader, path string) ([]byte, error) {
	if path == "-" {
		var buf bytes.Buffer
		if _, err := buf.ReadFrom(stdin); err != nil {
			return nil, fmt.Errorf("read stdin: %w", err)
		}
		return buf.Bytes(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read input: %w", err)
	}
	return data, nil
}

func writeOutput(stdout io.Writer, path string, data []byte) error {
	if path == "-" {
		if _, err := stdout.Write(data); err != nil {
			return fmt.Errorf("write stdout: %w", err)
		}
		return nil
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	return nil
}
