package types

import (
	"encoding/json"
	"reflect"
	"testing"
)

func TestPredictionSet_UnmarshalKeepsOrder(t *testing.T) {
	body := `{
		"SVC": {"prediction": "Urea"},
		"RandomForestClassifier": {"prediction": "DAP", "probabilities": {"DAP": 0.8, "Urea": 0.2}},
		"GaussianNB": {"prediction": "DAP", "probabilities": {}}
	}`

	var ps PredictionSet
	if err := json.Unmarshal([]byte(body), &ps); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}

	want := []string{"SVC", "RandomForestClassifier", "GaussianNB"}
	if !reflect.DeepEqual(ps.Models(), want) {
		t.Errorf("Models() = %v, want %v", ps.Models(), want)
	}

	rf, ok := ps.Get("RandomForestClassifier")
	if !ok || rf.Model != "RandomForestClassifier" || rf.Probabilities["DAP"] != 0.8 {
		t.Errorf("unexpected RF result: %+v", rf)
	}
	nb, _ := ps.Get("GaussianNB")
	if nb.HasDistribution() {
		t.Error("empty probabilities must be treated as label-only")
	}
	if err := ps.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestPredictionSet_MarshalRoundTripOrder(t *testing.T) {
	ps := NewPredictionSet(
		ModelResult{Model: "b", PredictedLabel: "x"},
		ModelResult{Model: "a", PredictedLabel: "y", Probabilities: map[string]float64{"y": 1}},
	)

	data, err := json.Marshal(ps)
	if err != nil {
		t.Fatal(err)
	}
	want := `{"b":{"prediction":"x"},"a":{"prediction":"y","probabilities":{"y":1}}}`
	if string(data) != want {
		t.Errorf("Marshal = %s, want %s", data, want)
	}
}

func TestPredictionSet_RejectsNonObject(t *testing.T) {
	var ps PredictionSet
	if err := json.Unmarshal([]byte(`["SVC"]`), &ps); err == nil {
		t.Error("expected error for array input")
	}
}

func TestPredictionSet_ValidateEmpty(t *testing.T) {
	var ps *PredictionSet
	if err := ps.Validate(); err == nil {
		t.Error("expected error for nil set")
	}
	if err := NewPredictionSet().Validate(); err == nil {
		t.Error("expected error for empty set")
	}
}

func TestPredictionSet_PutReplacesInPlace(t *testing.T) {
	ps := NewPredictionSet(
		ModelResult{Model: "a", PredictedLabel: "1"},
		ModelResult{Model: "b", PredictedLabel: "2"},
		ModelResult{Model: "a", PredictedLabel: "3"},
	)
	if !reflect.DeepEqual(ps.Models(), []string{"a", "b"}) {
		t.Errorf("Models() = %v", ps.Models())
	}
	a, _ := ps.Get("a")
	if a.PredictedLabel != "3" {
		t.Errorf("expected replacement, got %q", a.PredictedLabel)
	}
}

func TestPredictionSet_CloneIsDeep(t *testing.T) {
	ps := NewPredictionSet(ModelResult{Model: "a", PredictedLabel: "x", Probabilities: map[string]float64{"x": 1}})
	c := ps.Clone()
	r, _ := c.Get("a")
	r.Probabilities["x"] = 0.1
	c.Put(ModelResult{Model: "z", PredictedLabel: "q"})

	orig, _ := ps.Get("a")
	if orig.Probabilities["x"] != 1 {
		t.Error("Clone shares probability maps")
	}
	if ps.Len() != 1 {
		t.Error("Clone shares model order")
	}
}
