package workflow

import (
	"krushak/internal/aggregate"
	"krushak/internal/types"
)

// State is the workflow's position in the weather → prediction sequence.
type State string

const (
	StateIdle              State = "idle"
	StateWeatherPending    State = "weather_pending"
	StateWeatherReady      State = "weather_ready"
	StateWeatherFailed     State = "weather_failed"
	StatePredictionPending State = "prediction_pending"
	StatePredictionReady   State = "prediction_ready"
	StatePredictionFailed  State = "prediction_failed"
)

// StageStatus is the outcome of the latest call of one kind.
type StageStatus string

const (
	StageNone    StageStatus = "none"
	StagePending StageStatus = "pending"
	StageReady   StageStatus = "ready"
	StageFailed  StageStatus = "failed"
)

// Stages reports each acquisition independently. State is derived from it:
// any prediction activity takes precedence over weather activity.
type Stages struct {
	Weather    StageStatus `json:"weather"`
	Prediction StageStatus `json:"prediction"`
}

func (s Stages) state() State {
	switch s.Prediction {
	case StagePending:
		return StatePredictionPending
	case StageReady:
		return StatePredictionReady
	case StageFailed:
		return StatePredictionFailed
	}
	switch s.Weather {
	case StagePending:
		return StateWeatherPending
	case StageReady:
		return StateWeatherReady
	case StageFailed:
		return StateWeatherFailed
	}
	return StateIdle
}

// StageErrors holds the last failure of each stage. A stage's error is
// cleared when a new call of that kind is issued.
type StageErrors struct {
	Weather    *types.AppError `json:"weather,omitempty"`
	Prediction *types.AppError `json:"prediction,omitempty"`
	Export     *types.AppError `json:"export,omitempty"`
}

// Snapshot is everything needed to render or export the current result.
// Snapshots handed out by the Controller are deep copies.
type Snapshot struct {
	State      State                            `json:"state"`
	Stages     Stages                           `json:"stages"`
	Draft      types.ParameterDraft             `json:"draft"`
	Provenance map[types.Field]types.Provenance `json:"provenance"`
	Language   types.Language                   `json:"language"`

	// Submitted is the parameter set the current predictions were computed
	// from. It can differ from Draft once the user edits the form again.
	Submitted   *types.ParameterSet    `json:"submitted,omitempty"`
	Weather     *types.WeatherReading  `json:"weather,omitempty"`
	Predictions *types.PredictionSet   `json:"predictions,omitempty"`
	SoilHealth  *types.SoilHealth      `json:"soil_health,omitempty"`
	Confidence  []aggregate.Confidence `json:"confidence,omitempty"`

	ExportPending bool        `json:"export_pending"`
	Errors        StageErrors `json:"errors"`
}

// Clone returns a deep copy of s.
func (s Snapshot) Clone() Snapshot {
	out := s
	out.Draft = s.Draft.Clone()
	out.Provenance = make(map[types.Field]types.Provenance, len(s.Provenance))
	for k, v := range s.Provenance {
		out.Provenance[k] = v
	}
	if s.Submitted != nil {
		p := *s.Submitted
		out.Submitted = &p
	}
	out.Weather = s.Weather.Clone()
	out.Predictions = s.Predictions.Clone()
	out.SoilHealth = s.SoilHealth.Clone()
	out.Confidence = append([]aggregate.Confidence(nil), s.Confidence...)
	out.Errors = StageErrors{
		Weather:    cloneAppError(s.Errors.Weather),
		Prediction: cloneAppError(s.Errors.Prediction),
		Export:     cloneAppError(s.Errors.Export),
	}
	return out
}

func cloneAppError(e *types.AppError) *types.AppError {
	if e == nil {
		return nil
	}
	return e.WithDetails(nil)
}
