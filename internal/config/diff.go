package config

import "slices"

// ConfigDiff describes which sections changed between two configs.
type ConfigDiff struct {
	LogLevelChanged  bool
	NewLogLevel      LogLevel
	ConverterChanged bool

	// ResampleChanged and VADChanged apply to newly created resamplers and
	// sessions only; running sessions keep the settings they started with.
	ResampleChanged bool
	VADChanged      bool

	PipelineChanged bool

	// MetricsChanged requires a restart to take effect.
	MetricsChanged bool
}

// Any reports whether anything changed.
func (d ConfigDiff) Any() bool {
	return d.LogLevelChanged || d.ConverterChanged || d.ResampleChanged ||
		d.VADChanged || d.PipelineChanged || d.MetricsChanged
}

// Diff compares old and new configs.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{
		ConverterChanged: old.Converter != new.Converter,
		ResampleChanged:  !resampleEqual(old.Resample, new.Resample),
		VADChanged:       old.VAD != new.VAD,
		PipelineChanged:  old.Pipeline != new.Pipeline,
		MetricsChanged:   old.Metrics != new.Metrics,
	}
	if old.LogLevel != new.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.LogLevel
	}
	return d
}

func resampleEqual(a, b ResampleConfig) bool {
	if !slices.Equal(a.Strategies, b.Strategies) {
		return false
	}
	return a.TargetRate == b.TargetRate &&
		a.Quality == b.Quality &&
		a.Preemphasis == b.Preemphasis &&
		a.TargetPeak == b.TargetPeak &&
		a.MinRMS == b.MinRMS &&
		a.CacheSize == b.CacheSize &&
		a.Breaker == b.Breaker
}
