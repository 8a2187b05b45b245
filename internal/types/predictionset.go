package types

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// PredictionSet holds every model's result for one request. Iteration order
// is the order in which the backend listed the models, which Go maps would
// otherwise lose.
type PredictionSet struct {
	order   []string
	results map[string]ModelResult
}

// NewPredictionSet builds a set from results in the given order. A later
// result for the same model replaces the earlier one but keeps its position.
func NewPredictionSet(results ...ModelResult) *PredictionSet {
	ps := &PredictionSet{}
	for _, r := range results {
		ps.Put(r)
	}
	return ps
}

// Put inserts or replaces the result for r.Model.
func (ps *PredictionSet) Put(r ModelResult) {
	if ps.results == nil {
		ps.results = make(map[string]ModelResult)
	}
	if _, exists := ps.results[r.Model]; !exists {
		ps.order = append(ps.order, r.Model)
	}
	ps.results[r.Model] = r
}

// Len returns the number of models. Safe on a nil set.
func (ps *PredictionSet) Len() int {
	if ps == nil {
		return 0
	}
	return len(ps.order)
}

// Models returns the model names in order.
func (ps *PredictionSet) Models() []string {
	if ps == nil {
		return nil
	}
	return append([]string(nil), ps.order...)
}

// Get returns the result for a model.
func (ps *PredictionSet) Get(model string) (ModelResult, bool) {
	if ps == nil {
		return ModelResult{}, false
	}
	r, ok := ps.results[model]
	return r, ok
}

// Results returns every result in order.
func (ps *PredictionSet) Results() []ModelResult {
	if ps == nil {
		return nil
	}
	out := make([]ModelResult, 0, len(ps.order))
	for _, m := range ps.order {
		out = append(out, ps.results[m])
	}
	return out
}

// Validate checks that the set is non-empty and every result is well formed.
func (ps *PredictionSet) Validate() error {
	if ps.Len() == 0 {
		return fmt.Errorf("prediction set is empty")
	}
	for _, r := range ps.Results() {
		if err := r.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// Clone returns a deep copy. A nil receiver yields nil.
func (ps *PredictionSet) Clone() *PredictionSet {
	if ps == nil {
		return nil
	}
	out := &PredictionSet{
		order:   append([]string(nil), ps.order...),
		results: make(map[string]ModelResult, len(ps.results)),
	}
	for k, v := range ps.results {
		out.results[k] = v.Clone()
	}
	return out
}

// MarshalJSON writes the set as a JSON object with keys in model order.
func (ps PredictionSet) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, m := range ps.order {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(m)
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(ps.results[m])
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON reads a JSON object of model name to result, keeping the key
// order of the document.
func (ps *PredictionSet) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("prediction set: expected JSON object, got %v", tok)
	}

	*ps = PredictionSet{}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		model, ok := tok.(string)
		if !ok {
			return fmt.Errorf("prediction set: expected model name, got %v", tok)
		}
		var r ModelResult
		if err := dec.Decode(&r); err != nil {
			return fmt.Errorf("prediction set: model %q: %w", model, err)
		}
		r.Model = model
		ps.Put(r)
	}
	if _, err := dec.Token(); err != nil {
		return err
	}
	return nil
}
