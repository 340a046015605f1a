package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/spf13/cobra"

	"github.com/MrWong99/speechprep/internal/config"
	"github.com/MrWong99/speechprep/internal/health"
	"github.com/MrWong99/speechprep/internal/observe"
	"github.com/MrWong99/speechprep/internal/pipeline"
	"github.com/MrWong99/speechprep/pkg/audio"
	"github.com/MrWong99/speechprep/pkg/types"
	"github.com/MrWong99/speechprep/pkg/vad"
)

type segmentFlags struct {
	format   string
	rate     int
	channels int
	chunkMs  int
	outDir   string
	watch    bool
	hold     bool
}

func newSegmentCmd(g *globalFlags) *cobra.Command {
	f := &segmentFlags{}
	cmd := &cobra.Command{
		Use:   "segment [flags] <file>...",
		Short: "Cut speech segments out of raw audio files",
		Long: `Segment treats each input file as one session. Files are fed to the
pipeline in chunks of --chunk-ms, as a capture device would deliver them, and
processed in parallel up to pipeline.workers. Each finalised segment is written
to --out as <session>-<index>.pcm (16-bit little-endian mono at
vad.sample_rate). A JSON summary per session is printed to stdout.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSegment(cmd.Context(), cmd, g, f, args)
		},
	}
	cmd.Flags().StringVar(&f.format, "format", "s16le", "input sample format")
	cmd.Flags().IntVar(&f.rate, "rate", 16000, "input sample rate in Hz")
	cmd.Flags().IntVar(&f.channels, "channels", 1, "interleaved input channels")
	cmd.Flags().IntVar(&f.chunkMs, "chunk-ms", 20, "capture chunk length fed to the pipeline")
	cmd.Flags().StringVar(&f.outDir, "out", "segments", "directory receiving segment files")
	cmd.Flags().BoolVar(&f.watch, "watch", false, "reload log_level from --config while running")
	cmd.Flags().BoolVar(&f.hold, "hold", false, "keep serving metrics after processing until interrupted")
	return cmd
}

// sessionSummary is the per-file line printed on completion.
type sessionSummary struct {
	Session  string    `json:"session"`
	File     string    `json:"file"`
	Segments []string  `json:"segments"`
	Stats    vad.Stats `json:"stats"`
}

// segmentWriter is the pipeline sink. It writes every segment to disk and
// remembers the first write error.
type segmentWriter struct {
	dir string

	mu    sync.Mutex
	files map[string][]string
	err   error
}

func (w *segmentWriter) sink(ctx context.Context, seg types.SpeechSegment) {
	name := fmt.Sprintf("%s-%04d.pcm", seg.SessionID, seg.Index)
	path := filepath.Join(w.dir, name)
	err := os.WriteFile(path, seg.PCM, 0o644)

	w.mu.Lock()
	defer w.mu.Unlock()
	if err != nil {
		if w.err == nil {
			w.err = fmt.Errorf("write segment: %w", err)
		}
		return
	}
	w.files[seg.SessionID] = append(w.files[seg.SessionID], path)
	observe.Logger(ctx).Debug("segment written",
		"session", seg.SessionID,
		"index", seg.Index,
		"start", seg.Start,
		"duration", seg.Duration,
		"path", path,
	)
}

func runSegment(ctx context.Context, cmd *cobra.Command, g *globalFlags, f *segmentFlags, files []string) error {
	cfg, err := g.loadConfig()
	if err != nil {
		return err
	}
	if f.watch && g.configPath == "" {
		return errors.New("--watch requires --config")
	}
	if f.chunkMs <= 0 {
		return fmt.Errorf("--chunk-ms must be positive, got %d", f.chunkMs)
	}
	format, err := audio.ParseFormat(f.format)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(f.outDir, 0o755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	var serveErr chan error
	var running atomic.Pointer[pipeline.Pipeline]
	if cfg.Metrics.ListenAddr != "" {
		prov, err := observe.InitProvider(ctx, observe.ProviderConfig{ServiceVersion: version})
		if err != nil {
			return err
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := prov.Shutdown(shutdownCtx); err != nil {
				slog.Warn("telemetry shutdown", "err", err)
			}
		}()

		mux := http.NewServeMux()
		mux.Handle("GET /metrics", prov.Handler())
		health.New(
			health.WithCheck("pipeline", func(context.Context) error {
				if running.Load() == nil {
					return errors.New("pipeline not started")
				}
				return nil
			}),
			health.WithStatus(func() any {
				if p := running.Load(); p != nil {
					return p.Stats()
				}
				return nil
			}),
		).Register(mux)

		serveErr = make(chan error, 1)
		handler := observe.Middleware(observe.DefaultMetrics())(mux)
		go func() { serveErr <- health.Serve(ctx, cfg.Metrics.ListenAddr, handler) }()
	}

	// ── Config watcher ────────────────────────────────────────────────────────
	if f.watch {
		w, err := config.NewWatcher(g.configPath, func(_, next *config.Config, d config.ConfigDiff) {
			if d.ResampleChanged || d.VADChanged {
				slog.Warn("resample and vad changes apply to the next run")
			}
			if d.LogLevelChanged && g.logLevel == "" {
				g.level.Set(slogLevel(next.LogLevel))
			}
		})
		if err != nil {
			return err
		}
		defer w.Stop()
	}

	// ── Pipeline ──────────────────────────────────────────────────────────────
	rc, err := cfg.ResampleConfig()
	if err != nil {
		return err
	}
	writer := &segmentWriter{dir: f.outDir, files: make(map[string][]string)}
	p, err := pipeline.New(pipeline.Config{
		Resample: rc,
		VAD:      cfg.VADConfig(),
		Sink:     writer.sink,
		Workers:  cfg.Pipeline.Workers,
	})
	if err != nil {
		return err
	}
	running.Store(p)

	streams := make([]pipeline.Stream, 0, len(files))
	names := make(map[string]string, len(files))
	for _, path := range files {
		id := sessionID(path)
		if prev, dup := names[id]; dup {
			return fmt.Errorf("files %q and %q map to the same session %q", prev, path, id)
		}
		names[id] = path

		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read input: %w", err)
		}
		frames, err := captureFrames(data, format, f.rate, f.channels, f.chunkMs)
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		streams = append(streams, pipeline.Stream{SessionID: id, Frames: frames})
	}

	ctx, span := observe.StartSpan(ctx, "cli.segment")
	stats, runErr := p.ProcessParallel(ctx, streams)
	observe.EndSpan(span, runErr)

	enc := json.NewEncoder(cmd.OutOrStdout())
	ids := make([]string, 0, len(stats))
	for id := range stats {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	for _, id := range ids {
		writer.mu.Lock()
		segs := slices.Clone(writer.files[id])
		writer.mu.Unlock()
		if err := enc.Encode(sessionSummary{Session: id, File: names[id], Segments: segs, Stats: stats[id]}); err != nil {
			return err
		}
	}
	if err := errors.Join(runErr, writer.err); err != nil {
		return err
	}

	if f.hold && serveErr != nil {
		slog.Info("processing finished, serving metrics until interrupted", "addr", cfg.Metrics.ListenAddr)
		<-ctx.Done()
	}
	cancel()
	if serveErr != nil {
		if err := <-serveErr; err != nil {
			return fmt.Errorf("metrics server: %w", err)
		}
	}
	return nil
}

// sessionID derives a session name from a file path.
func sessionID(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// captureFrames slices raw audio into chunks of chunkMs, the last one
// possibly shorter, each stamped with its offset in the file.
func captureFrames(data []byte, f audio.Format, rate, channels, chunkMs int) ([]types.AudioFrame, error) {
	if rate <= 0 || channels < 1 {
		return nil, &audio.ParamError{Name: "rate/channels", Value: fmt.Sprintf("%d/%d", rate, channels), Want: "positive"}
	}
	frameBytes := f.SampleWidth() * channels
	if len(data)%frameBytes != 0 {
		return nil, fmt.Errorf("%w: %d bytes is not a multiple of %d", audio.ErrMalformedBuffer, len(data), frameBytes)
	}
	step := max(rate*chunkMs/1000, 1) * frameBytes

	frames := make([]types.AudioFrame, 0, len(data)/step+1)
	for off := 0; off < len(data); off += step {
		end := min(off+step, len(data))
		frames = append(frames, types.AudioFrame{
			Data:       data[off:end],
			Format:     f.String(),
			SampleRate: rate,
			Channels:   channels,
			Timestamp:  time.Duration(off/frameBytes) * time.Second / time.Duration(rate),
		})
	}
	return frames, nil
}
