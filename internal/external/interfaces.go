package external

import (
	"context"

	"krushak/internal/types"
)

// WeatherService turns a location into a current weather reading.
type WeatherService interface {
	// FetchWeather looks up current conditions for a city. An empty or
	// whitespace city is rejected without a network call.
	FetchWeather(ctx context.Context, city string) (*types.WeatherReading, error)

	// FetchWeatherAt looks up current conditions at a coordinate.
	FetchWeatherAt(ctx context.Context, lat, lon float64) (*types.WeatherReading, error)
}

// PredictionService scores a parameter set with every available model.
type PredictionService interface {
	// Predict either returns a fully populated outcome or an error; it never
	// returns predictions without soil health or vice versa.
	Predict(ctx context.Context, params types.ParameterSet, lang types.Language) (*PredictionOutcome, error)
}

// ReportService renders a workflow result into a downloadable document.
type ReportService interface {
	Export(ctx context.Context, req ReportRequest, format types.ReportFormat) (*types.Document, error)
}

// ParameterValidator checks a parameter set before it leaves the process.
// *core.Validator satisfies it.
type ParameterValidator interface {
	ValidateParameters(ps types.ParameterSet) error
}
