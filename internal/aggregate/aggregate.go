// Package aggregate derives presentation values from raw model predictions.
// Every function here is pure: inputs are never mutated and the same input
// always yields the same output.
package aggregate

import (
	"math"
	"sort"

	"krushak/internal/types"
)

// Confidence is one model's confidence in its own prediction.
type Confidence struct {
	Model             string `json:"model"`
	Label             string `json:"prediction"`
	ConfidencePercent int    `json:"confidence_percent"`
}

// Aggregate returns one Confidence per model, in the set's order.
//
// ConfidencePercent is round(100 * max(probabilities)), or 100 for models
// that only return a label. Values are clamped to [0, 100].
func Aggregate(ps *types.PredictionSet) []Confidence {
	results := ps.Results()
	out := make([]Confidence, 0, len(results))
	for _, r := range results {
		out = append(out, Confidence{
			Model:             r.Model,
			Label:             r.PredictedLabel,
			ConfidencePercent: percent(r.TopProbability()),
		})
	}
	return out
}

func percent(p float64) int {
	if math.IsNaN(p) {
		return 0
	}
	v := math.Round(100 * p)
	switch {
	case v < 0:
		return 0
	case v > 100:
		return 100
	}
	return int(v)
}

// Ranked returns a copy of conf sorted by descending confidence. Models with
// equal confidence keep their original relative order.
func Ranked(conf []Confidence) []Confidence {
	out := append([]Confidence(nil), conf...)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].ConfidencePercent > out[j].ConfidencePercent
	})
	return out
}

// Vote is the outcome of a majority vote across models.
type Vote struct {
	Label  string `json:"label"`
	Votes  int    `json:"votes"`
	Models int    `json:"models"`
}

// Consensus returns the label predicted by the most models. Ties go to the
// label that appears first in set order. ok is false for an empty set.
func Consensus(ps *types.PredictionSet) (vote Vote, ok bool) {
	results := ps.Results()
	if len(results) == 0 {
		return Vote{}, false
	}

	counts := make(map[string]int, len(results))
	var order []string
	for _, r := range results {
		if counts[r.PredictedLabel] == 0 {
			order = append(order, r.PredictedLabel)
		}
		counts[r.PredictedLabel]++
	}

	for _, label := range order {
		if counts[label] > vote.Votes {
			vote = Vote{Label: label, Votes: counts[label]}
		}
	}
	vote.Models = len(results)
	return vote, true
}
