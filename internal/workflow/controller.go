// Package workflow implements the recommendation workflow controller: it
// sequences weather lookup, multi-model prediction and report export, and
// owns the single Snapshot the presentation layer renders.
//
// Every operation is user-triggered and blocking. Network calls run outside
// the controller's lock, so a pending prediction never blocks form edits.
// For each kind of call only the most recently issued one may commit its
// result; earlier calls that resolve late are dropped silently.
package workflow

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"strings"
	"sync"

	"krushak/internal/aggregate"
	"krushak/internal/external"
	"krushak/internal/types"
)

// maxDerivedMoisture caps the moisture estimate derived from rainfall.
const maxDerivedMoisture = 80

// Call kinds, used for logging and metrics.
const (
	KindWeather    = "weather"
	KindPrediction = "prediction"
	KindExport     = "export"
)

// ErrPredictionInFlight is returned by SubmitPrediction while an earlier
// submission is still pending, unless the controller supersedes pending calls.
var ErrPredictionInFlight = types.NewAppError(types.ErrCodeConflictPredictionPending,
	"a prediction request is already in progress", nil)

// Recorder observes workflow activity. Implementations must be safe for
// concurrent use.
type Recorder interface {
	RecordTransition(from, to string)
	RecordStaleDrop(kind string)
}

// Controller is the single writer of a workflow's Snapshot. It is safe for
// concurrent use.
type Controller struct {
	weather   external.WeatherService
	predictor external.PredictionService
	reports   external.ReportService
	validator external.ParameterValidator
	recorder  Recorder
	logger    *slog.Logger
	supersede bool

	mu          sync.Mutex
	draft       types.ParameterDraft
	provenance  map[types.Field]types.Provenance
	language    types.Language
	stages      Stages
	reading     *types.WeatherReading
	submitted   *types.ParameterSet
	predictions *types.PredictionSet
	soilHealth  *types.SoilHealth
	confidence  []aggregate.Confidence
	exporting   bool
	errs        StageErrors

	// Generation counters; a result commits only if its generation is current.
	weatherGen    uint64
	predictionGen uint64
	exportGen     uint64
}

// Option configures a Controller.
type Option func(*Controller)

// WithLogger sets the controller's logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Controller) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithRecorder attaches a metrics recorder.
func WithRecorder(r Recorder) Option {
	return func(c *Controller) {
		c.recorder = r
	}
}

// WithValidator checks complete parameter sets before a prediction is
// issued, so an invalid form never leaves the current state.
func WithValidator(v external.ParameterValidator) Option {
	return func(c *Controller) {
		c.validator = v
	}
}

// WithLanguage sets the initial language.
func WithLanguage(code string) Option {
	return func(c *Controller) {
		c.language = types.NormalizeLanguage(code)
	}
}

// WithSupersedePending makes a new prediction submission replace a pending
// one instead of being rejected with ErrPredictionInFlight. The earlier
// call's result is then discarded when it arrives.
func WithSupersedePending() Option {
	return func(c *Controller) {
		c.supersede = true
	}
}

// New creates an idle Controller.
func New(weather external.WeatherService, predictor external.PredictionService, reports external.ReportService, opts ...Option) *Controller {
	c := &Controller{
		weather:    weather,
		predictor:  predictor,
		reports:    reports,
		logger:     slog.Default(),
		provenance: make(map[types.Field]types.Provenance),
		language:   types.DefaultLanguage,
		stages:     Stages{Weather: StageNone, Prediction: StageNone},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// State returns the current workflow state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stages.state()
}

// Snapshot returns a deep copy of the current workflow state.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

func (c *Controller) snapshotLocked() Snapshot {
	s := Snapshot{
		State:         c.stages.state(),
		Stages:        c.stages,
		Draft:         c.draft,
		Provenance:    c.provenance,
		Language:      c.language,
		Submitted:     c.submitted,
		Weather:       c.reading,
		Predictions:   c.predictions,
		SoilHealth:    c.soilHealth,
		Confidence:    c.confidence,
		ExportPending: c.exporting,
		Errors:        c.errs,
	}
	return s.Clone()
}

// SetField records a user edit. An empty raw value clears the field; the
// field still counts as user-edited, so weather will not refill it.
// Edits are allowed in every state, including while a call is pending.
func (c *Controller) SetField(name, raw string) error {
	field, ok := types.ParseField(name)
	if !ok {
		return types.NewValidationError(types.ErrCodeValidationUnknownField, name, "unknown parameter "+name)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.draft.Set(field, raw); err != nil {
		return err
	}
	c.provenance[field] = types.ProvenanceUser
	return nil
}

// SetLanguage selects the language sent with prediction and export calls.
// Unsupported codes fall back to the default. It returns the language in
// effect.
func (c *Controller) SetLanguage(code string) types.Language {
	lang := types.NormalizeLanguage(code)
	c.mu.Lock()
	c.language = lang
	c.mu.Unlock()
	return lang
}

// FetchWeather looks up the weather for city and merges it into the form.
// An empty city is rejected without a network call or state change.
func (c *Controller) FetchWeather(ctx context.Context, city string) (Snapshot, error) {
	city = strings.TrimSpace(city)
	if city == "" {
		return c.Snapshot(), types.NewValidationError(types.ErrCodeValidationEmptyCity, "city", "city must not be empty")
	}
	return c.acquireWeather(ctx, "city", city, func(ctx context.Context) (*types.WeatherReading, error) {
		return c.weather.FetchWeather(ctx, city)
	})
}

// FetchWeatherAt is FetchWeather for a coordinate.
func (c *Controller) FetchWeatherAt(ctx context.Context, lat, lon float64) (Snapshot, error) {
	if err := types.ValidateCoordinates(lat, lon); err != nil {
		return c.Snapshot(), err
	}
	return c.acquireWeather(ctx, "coordinates", "", func(ctx context.Context) (*types.WeatherReading, error) {
		return c.weather.FetchWeatherAt(ctx, lat, lon)
	})
}

func (c *Controller) acquireWeather(ctx context.Context, by, city string, fetch func(context.Context) (*types.WeatherReading, error)) (Snapshot, error) {
	c.mu.Lock()
	c.weatherGen++
	gen := c.weatherGen
	c.transition(func() {
		c.stages.Weather = StagePending
		c.errs.Weather = nil
	})
	c.mu.Unlock()

	c.logger.DebugContext(ctx, "fetching weather", "by", by, "city", city, "generation", gen)
	reading, err := fetch(ctx)

	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.weatherGen {
		c.dropStale(ctx, KindWeather, gen, c.weatherGen)
		return c.snapshotLocked(), nil
	}
	if err != nil {
		c.transition(func() {
			c.stages.Weather = StageFailed
			c.errs.Weather = asAppError(err)
		})
		c.logger.WarnContext(ctx, "weather fetch failed", "city", city, "error", err)
		return c.snapshotLocked(), err
	}

	c.transition(func() {
		c.stages.Weather = StageReady
		c.reading = reading.Clone()
		c.mergeWeather(reading)
	})
	return c.snapshotLocked(), nil
}

// mergeWeather fills temperature, humidity and moisture from r, skipping
// fields the user has edited and fields r does not report.
func (c *Controller) mergeWeather(r *types.WeatherReading) {
	fill := func(field types.Field, v *float64) {
		if v == nil || c.provenance[field] == types.ProvenanceUser {
			return
		}
		c.draft.SetNumber(field, *v)
		c.provenance[field] = types.ProvenanceWeather
	}

	fill(types.FieldTemperature, r.Temperature)
	fill(types.FieldHumidity, r.Humidity)
	if r.RainfallLastHour != nil {
		moisture := DeriveMoisture(*r.RainfallLastHour)
		fill(types.FieldMoisture, &moisture)
	}
}

// DeriveMoisture estimates soil moisture from the last hour's rainfall:
// min(rainfall × 2, 80).
func DeriveMoisture(rainfall float64) float64 {
	return math.Min(rainfall*2, maxDerivedMoisture)
}

// SubmitPrediction validates the form and requests predictions for it. The
// form is captured by value; edits made while the call is pending do not
// affect it. Validation failures leave the state unchanged.
func (c *Controller) SubmitPrediction(ctx context.Context) (Snapshot, error) {
	c.mu.Lock()
	if c.stages.Prediction == StagePending && !c.supersede {
		defer c.mu.Unlock()
		return c.snapshotLocked(), ErrPredictionInFlight
	}
	params, err := c.draft.Complete()
	if err == nil && c.validator != nil {
		err = c.validator.ValidateParameters(params)
	}
	if err != nil {
		defer c.mu.Unlock()
		return c.snapshotLocked(), err
	}

	c.predictionGen++
	gen := c.predictionGen
	lang := c.language
	c.transition(func() {
		c.stages.Prediction = StagePending
		c.submitted = &params
		c.clearResults()
		c.errs.Prediction = nil
	})
	c.mu.Unlock()

	c.logger.DebugContext(ctx, "requesting predictions",
		"soil", params.SoilType, "crop", params.CropType, "language", lang, "generation", gen)
	outcome, err := c.predictor.Predict(ctx, params, lang)

	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.predictionGen {
		c.dropStale(ctx, KindPrediction, gen, c.predictionGen)
		return c.snapshotLocked(), nil
	}
	if err != nil {
		c.transition(func() {
			c.stages.Prediction = StageFailed
			c.errs.Prediction = asAppError(err)
		})
		c.logger.WarnContext(ctx, "prediction failed", "error", err)
		return c.snapshotLocked(), err
	}

	c.transition(func() {
		c.stages.Prediction = StageReady
		c.predictions = outcome.Predictions.Clone()
		c.soilHealth = outcome.SoilHealth.Clone()
		c.confidence = aggregate.Aggregate(c.predictions)
	})
	return c.snapshotLocked(), nil
}

// clearResults drops predictions and everything derived from them. Any
// in-flight export is invalidated.
func (c *Controller) clearResults() {
	c.predictions = nil
	c.soilHealth = nil
	c.confidence = nil
	if c.exporting {
		c.exportGen++
		c.exporting = false
	}
}

// ExportReport renders the current result as a document. It is only
// allowed once predictions are ready and while no other export is pending.
// The report is built from a copy of the state taken at call time; a failed
// export never clears the predictions.
//
// If the workflow is reset or re-submitted while the export is in flight,
// the late document is discarded and ExportReport returns (nil, nil).
func (c *Controller) ExportReport(ctx context.Context, format types.ReportFormat) (*types.Document, error) {
	format, err := types.ParseReportFormat(string(format))
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	switch {
	case c.stages.Prediction == StagePending:
		c.mu.Unlock()
		return nil, types.NewAppError(types.ErrCodeConflictNotReady, "predictions are still being computed", nil)
	case c.stages.Prediction != StageReady || c.predictions.Len() == 0:
		c.mu.Unlock()
		return nil, types.NewValidationError(types.ErrCodeValidationNoPredictions, "predictions", "no prediction data available")
	case c.exporting:
		c.mu.Unlock()
		return nil, types.NewAppError(types.ErrCodeConflictExportPending, "a report export is already in progress", nil)
	}

	snap := c.snapshotLocked()
	req := external.ReportRequest{
		InputData:   snap.Submitted,
		Predictions: snap.Predictions,
		SoilHealth:  snap.SoilHealth,
		Weather:     snap.Weather,
		Language:    snap.Language,
	}
	c.exportGen++
	gen := c.exportGen
	c.exporting = true
	c.errs.Export = nil
	c.mu.Unlock()

	c.logger.DebugContext(ctx, "exporting report", "format", format, "generation", gen)
	doc, err := c.reports.Export(ctx, req, format)

	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.exportGen {
		c.dropStale(ctx, KindExport, gen, c.exportGen)
		return nil, nil
	}
	c.exporting = false
	if err != nil {
		c.errs.Export = asAppError(err)
		c.logger.WarnContext(ctx, "report export failed", "format", format, "error", err)
		return nil, err
	}
	return doc, nil
}

// Reset returns the workflow to Idle, clearing the form, its provenance and
// every result. Calls still in flight are invalidated. The language is kept.
func (c *Controller) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.weatherGen++
	c.predictionGen++
	c.exportGen++
	c.transition(func() {
		c.draft = types.ParameterDraft{}
		c.provenance = make(map[types.Field]types.Provenance)
		c.stages = Stages{Weather: StageNone, Prediction: StageNone}
		c.reading = nil
		c.submitted = nil
		c.predictions = nil
		c.soilHealth = nil
		c.confidence = nil
		c.exporting = false
		c.errs = StageErrors{}
	})
}

// transition applies mutate and reports a state change, if any. The caller
// holds c.mu.
func (c *Controller) transition(mutate func()) {
	from := c.stages.state()
	mutate()
	to := c.stages.state()
	if from == to {
		return
	}
	c.logger.Debug("workflow state changed", "from", from, "to", to)
	if c.recorder != nil {
		c.recorder.RecordTransition(string(from), string(to))
	}
}

func (c *Controller) dropStale(ctx context.Context, kind string, gen, current uint64) {
	c.logger.DebugContext(ctx, "discarding stale response",
		"kind", kind, "generation", gen, "current", current,
		"reason", types.ErrStaleResponse)
	if c.recorder != nil {
		c.recorder.RecordStaleDrop(kind)
	}
}

func asAppError(err error) *types.AppError {
	var appErr *types.AppError
	if errors.As(err, &appErr) {
		return appErr.WithDetails(nil)
	}
	return types.NewAppError(types.ErrCodeInternalUnexpected, err.Error(), err)
}
