package config_test

import (
	"errors"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/MrWong99/speechprep/internal/config"
	"github.com/MrWong99/speechprep/pkg/audio"
	"github.com/MrWong99/speechprep/pkg/audio/resample"
	"github.com/MrWong99/speechprep/pkg/vad"
)

const fullYAML = `
log_level: debug
converter:
  target_peak: 0.9
resample:
  target_rate: 16000
  quality: very_high
  strategies: [polyphase, linear]
  preemphasis: 0
  target_peak: 0.8
  min_rms: 0.002
  cache_size: 16
  breaker:
    max_failures: 3
    reset_timeout: 10s
vad:
  sample_rate: 16000
  frame_duration_ms: 30
  classifier: webrtc
  energy_threshold: 0.02
  aggressiveness: 3
  pre_speech_padding_ms: 90
  post_speech_padding_ms: 150
  min_speech_duration_ms: 250
  max_silence_duration_ms: 600
pipeline:
  workers: 4
metrics:
  listen_addr: ":9090"
`

func TestLoadFromReader_Full(t *testing.T) {
	cfg, err := config.LoadFromReader(strings.NewReader(fullYAML))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	rc, err := cfg.ResampleConfig()
	if err != nil {
		t.Fatalf("ResampleConfig: %v", err)
	}
	wantRC := resample.Config{
		TargetRate:          16000,
		Quality:             resample.QualityVeryHigh,
		Strategies:          []string{"polyphase", "linear"},
		Preemphasis:         0,
		TargetPeak:          0.8,
		MinRMS:              0.002,
		CacheSize:           16,
		BreakerMaxFailures:  3,
		BreakerResetTimeout: 10 * time.Second,
	}
	if diff := cmp.Diff(wantRC, rc); diff != "" {
		t.Errorf("resample config mismatch (-want +got):\n%s", diff)
	}

	wantVC := vad.Config{
		SampleRate:           16000,
		FrameDurationMs:      30,
		Classifier:           vad.ClassifierWebRTC,
		EnergyThreshold:      0.02,
		Aggressiveness:       3,
		PreSpeechPaddingMs:   90,
		PostSpeechPaddingMs:  150,
		MinSpeechDurationMs:  250,
		MaxSilenceDurationMs: 600,
	}
	if diff := cmp.Diff(wantVC, cfg.VADConfig()); diff != "" {
		t.Errorf("vad config mismatch (-want +got):\n%s", diff)
	}

	if cfg.LogLevel != config.LogDebug || cfg.Converter.TargetPeak != 0.9 ||
		cfg.Pipeline.Workers != 4 || cfg.Metrics.ListenAddr != ":9090" {
		t.Errorf("top-level fields: got %+v", cfg)
	}
}

func TestLoadFromReader_EmptyYieldsDefaults(t *testing.T) {
	cfg, err := config.LoadFromReader(strings.NewReader(""))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if diff := cmp.Diff(config.Default(), cfg); diff != "" {
		t.Errorf("defaults mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(vad.DefaultConfig(), cfg.VADConfig()); diff != "" {
		t.Errorf("vad defaults mismatch (-want +got):\n%s", diff)
	}
	rc, err := cfg.ResampleConfig()
	if err != nil {
		t.Fatalf("ResampleConfig: %v", err)
	}
	if diff := cmp.Diff(resample.DefaultConfig(), rc); diff != "" {
		t.Errorf("resample defaults mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadFromReader_PartialKeepsDefaults(t *testing.T) {
	cfg, err := config.LoadFromReader(strings.NewReader("vad:\n  min_speech_duration_ms: 500\n"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.VAD.MinSpeechDurationMs != 500 {
		t.Errorf("min_speech_duration_ms: got %d, want 500", cfg.VAD.MinSpeechDurationMs)
	}
	if cfg.VAD.MaxSilenceDurationMs != 800 || cfg.Resample.Quality != "high" {
		t.Errorf("defaults lost: %+v", cfg)
	}
}

func TestLoadFromReader_UnknownField(t *testing.T) {
	_, err := config.LoadFromReader(strings.NewReader("vad:\n  frame_ms: 20\n"))
	if err == nil || !strings.Contains(err.Error(), "frame_ms") {
		t.Fatalf("got %v, want unknown field error", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantSub string
		param   bool
	}{
		{"log level", "log_level: loud\n", "log_level", false},
		{"converter peak", "converter:\n  target_peak: 1.5\n", "converter.target_peak", false},
		{"quality", "resample:\n  quality: ultra\n", "quality", true},
		{"strategy", "resample:\n  strategies: [soxr]\n", "strategies", true},
		{"frame duration", "vad:\n  frame_duration_ms: 25\n", "frame_duration_ms", true},
		{"vad rate", "vad:\n  sample_rate: 44100\n", "sample_rate", true},
		{"rate mismatch", "vad:\n  sample_rate: 8000\n", "must equal resample.target_rate", false},
		{"workers", "pipeline:\n  workers: -1\n", "pipeline.workers", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := config.LoadFromReader(strings.NewReader(tt.yaml))
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if !strings.Contains(err.Error(), tt.wantSub) {
				t.Errorf("error %q does not mention %q", err, tt.wantSub)
			}
			if tt.param && !errors.Is(err, audio.ErrInvalidParameter) {
				t.Errorf("error %v does not match ErrInvalidParameter", err)
			}
		})
	}
}

func TestValidate_CollectsAllErrors(t *testing.T) {
	cfg := config.Default()
	cfg.LogLevel = "loud"
	cfg.VAD.FrameDurationMs = 7
	cfg.Resample.TargetPeak = 0

	err := config.Validate(cfg)
	if err == nil {
		t.Fatal("expected error")
	}
	for _, sub := range []string{"log_level", "frame_duration_ms", "target_peak"} {
		if !strings.Contains(err.Error(), sub) {
			t.Errorf("joined error missing %q: %v", sub, err)
		}
	}
}

func TestLoad_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "speechprep.yaml")
	if err := os.WriteFile(path, []byte(fullYAML), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.VAD.FrameDurationMs != 30 {
		t.Errorf("frame_duration_ms: got %d, want 30", cfg.VAD.FrameDurationMs)
	}

	if _, err := config.Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestLoad_ExampleMatchesDefaults(t *testing.T) {
	cfg, err := config.Load(filepath.Join("..", "..", "configs", "speechprep.example.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if diff := cmp.Diff(config.Default(), cfg); diff != "" {
		t.Errorf("example config drifted from defaults (-want +got):\n%s", diff)
	}
}

func TestDiff(t *testing.T) {
	old := config.Default()
	if d := config.Diff(old, config.Default()); d.Any() {
		t.Errorf("identical configs differ: %+v", d)
	}

	upd := config.Default()
	upd.LogLevel = config.LogDebug
	upd.Resample.Strategies = []string{"linear"}
	upd.Metrics.ListenAddr = ":9100"

	want := config.ConfigDiff{
		LogLevelChanged: true,
		NewLogLevel:     config.LogDebug,
		ResampleChanged: true,
		MetricsChanged:  true,
	}
	if diff := cmp.Diff(want, config.Diff(old, upd)); diff != "" {
		t.Errorf("diff mismatch (-want +got):\n%s", diff)
	}
}

func TestDiff_ResampleFields(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*config.ResampleConfig)
	}{
		{"strategy order", func(r *config.ResampleConfig) { r.Strategies = []string{"polyphase", "sinc", "linear"} }},
		{"quality", func(r *config.ResampleConfig) { r.Quality = "low" }},
		{"preemphasis", func(r *config.ResampleConfig) { r.Preemphasis = 0 }},
		{"cache size", func(r *config.ResampleConfig) { r.CacheSize = 8 }},
		{"breaker", func(r *config.ResampleConfig) { r.Breaker.ResetTimeout = time.Minute }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			upd := config.Default()
			tt.modify(&upd.Resample)
			d := config.Diff(config.Default(), upd)
			if !d.ResampleChanged {
				t.Errorf("got ResampleChanged=false, want true")
			}
			if d.VADChanged || d.LogLevelChanged {
				t.Errorf("unrelated sections flagged: %+v", d)
			}
		})
	}

	// Equal strategy lists in distinct slices are not a change.
	upd := config.Default()
	upd.Resample.Strategies = slices.Clone(upd.Resample.Strategies)
	if config.Diff(config.Default(), upd).ResampleChanged {
		t.Error("cloned strategy list reported as a change")
	}
}
