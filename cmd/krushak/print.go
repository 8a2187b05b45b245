package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"krushak/internal/aggregate"
	"krushak/internal/types"
	"krushak/internal/workflow"
)

// printSnapshot renders a finished prediction as plain-text sections.
func printSnapshot(w io.Writer, snap workflow.Snapshot) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)

	if r := snap.Weather; r != nil {
		place := r.City
		if r.Country != "" {
			place += ", " + r.Country
		}
		fmt.Fprintf(tw, "Weather\t%s\n", place)
		if r.Description != "" {
			fmt.Fprintf(tw, "  Conditions\t%s\n", r.Description)
		}
		printReading(tw, "Temperature", r.Temperature, "°C")
		printReading(tw, "Humidity", r.Humidity, "%")
		printReading(tw, "Rainfall (1h)", r.RainfallLastHour, "mm")
		printReading(tw, "Wind", r.WindSpeed, "m/s")
		fmt.Fprintln(tw)
	}

	if p := snap.Submitted; p != nil {
		fmt.Fprintf(tw, "Inputs\t%s soil, %s\n", p.SoilType, p.CropType)
		fmt.Fprintf(tw, "  Temperature / Humidity / Moisture\t%g / %g / %g\n", p.Temperature, p.Humidity, p.Moisture)
		fmt.Fprintf(tw, "  N / K / P\t%g / %g / %g\n", p.Nitrogen, p.Potassium, p.Phosphorus)
		fmt.Fprintln(tw)
	}

	if err := tw.Flush(); err != nil {
		return err
	}
	if err := printPredictions(w, snap); err != nil {
		return err
	}

	if h := snap.SoilHealth; h != nil {
		fmt.Fprintf(w, "\nSoil health: %d/100 (%s)\n", h.HealthScore, h.OverallStatus)
		for _, s := range h.Insights {
			fmt.Fprintf(w, "  - %s\n", s)
		}
		if len(h.Recommendations) > 0 {
			fmt.Fprintln(w, "Recommendations:")
			for _, s := range h.Recommendations {
				fmt.Fprintf(w, "  - %s\n", s)
			}
		}
	}
	return nil
}

func printPredictions(w io.Writer, snap workflow.Snapshot) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "MODEL\tFERTILIZER\tCONFIDENCE\tDISTRIBUTION")
	for _, c := range aggregate.Ranked(snap.Confidence) {
		r, _ := snap.Predictions.Get(c.Model)
		fmt.Fprintf(tw, "%s\t%s\t%d%%\t%s\n", c.Model, c.Label, c.ConfidencePercent, distribution(r))
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	if vote, ok := aggregate.Consensus(snap.Predictions); ok {
		fmt.Fprintf(w, "\nConsensus: %s (%d of %d models)\n", vote.Label, vote.Votes, vote.Models)
	}
	return nil
}

func printReading(w io.Writer, name string, v *float64, unit string) {
	if v == nil {
		return
	}
	fmt.Fprintf(w, "  %s\t%g %s\n", name, *v, unit)
}

// distribution lists the top three labels of r; label-only models print "-".
func distribution(r types.ModelResult) string {
	if !r.HasDistribution() {
		return "-"
	}
	labels := r.Labels()
	if len(labels) > 3 {
		labels = labels[:3]
	}
	parts := make([]string, len(labels))
	for i, l := range labels {
		parts[i] = fmt.Sprintf("%s %.0f%%", l, 100*r.Probabilities[l])
	}
	return strings.Join(parts, ", ")
}
