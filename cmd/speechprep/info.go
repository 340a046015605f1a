package main

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/MrWong99/speechprep/pkg/audio"
	"github.com/MrWong99/speechprep/pkg/audio/resample"
	"github.com/MrWong99/speechprep/pkg/vad"
)

type formatInfo struct {
	Name      string `json:"name"`
	Width     int    `json:"width"`
	Float     bool   `json:"float,omitempty"`
	Companded bool   `json:"companded,omitempty"`
}

type classifierInfo struct {
	Name      string `json:"name"`
	Available bool   `json:"available"`
}

type capabilities struct {
	Version     string           `json:"version"`
	Formats     []formatInfo     `json:"formats"`
	Strategies  []string         `json:"strategies"`
	Qualities   []string         `json:"qualities"`
	Classifiers []classifierInfo `json:"classifiers"`
	VADRates    []int            `json:"vad_rates"`
}

func newInfoCmd(_ *globalFlags) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "info",
		Short: "List supported formats, resampling strategies and classifiers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			caps := probeCapabilities()
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(caps)
			}
			return printCapabilities(cmd, caps)
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print machine-readable output")
	return cmd
}

func probeCapabilities() capabilities {
	caps := capabilities{
		Version:    version,
		Strategies: resample.StrategyNames(),
		VADRates:   []int{8000, 16000, 32000, 48000},
	}
	for _, f := range audio.Formats {
		caps.Formats = append(caps.Formats, formatInfo{
			Name:      f.String(),
			Width:     f.SampleWidth(),
			Float:     f.IsFloat(),
			Companded: f.IsCompanded(),
		})
	}
	for q := resample.QualityLow; q <= resample.QualityVeryHigh; q++ {
		caps.Qualities = append(caps.Qualities, q.String())
	}
	for _, name := range []string{vad.ClassifierEnergy, vad.ClassifierWebRTC} {
		cfg := vad.DefaultConfig()
		cfg.Classifier = name
		c, err := vad.NewClassifier(cfg)
		if err == nil {
			_ = c.Close()
		}
		caps.Classifiers = append(caps.Classifiers, classifierInfo{
			Name:      name,
			Available: err == nil,
		})
	}
	return caps
}

func printCapabilities(cmd *cobra.Command, caps capabilities) error {
	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "speechprep %s\n\n", caps.Version)
	fmt.Fprintln(tw, "FORMAT\tBYTES\tKIND")
	for _, f := range caps.Formats {
		kind := "integer"
		switch {
		case f.Float:
			kind = "float"
		case f.Companded:
			kind = "g711"
		}
		fmt.Fprintf(tw, "%s\t%d\t%s\n", f.Name, f.Width, kind)
	}
	fmt.Fprintf(tw, "\nstrategies:\t%v\n", caps.Strategies)
	fmt.Fprintf(tw, "qualities:\t%v\n", caps.Qualities)
	for _, c := range caps.Classifiers {
		state := "available"
		if !c.Available {
			state = "unavailable in this build"
		}
		fmt.Fprintf(tw, "classifier %s:\t%s\n", c.Name, state)
	}
	fmt.Fprintf(tw, "vad rates:\t%v\n", caps.VADRates)
	return tw.Flush()
}
