package external

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"krushak/internal/types"
)

const weatherPath = "/api/weather"

// weatherResponse is the body returned by GET /api/weather.
type weatherResponse struct {
	Weather *types.WeatherReading `json:"weather"`
}

// WeatherClient implements WeatherService against the backend's weather
// proxy. Readings are never cached.
type WeatherClient struct {
	base   *BaseClient
	logger *slog.Logger
}

// NewWeatherClient creates a WeatherClient on top of base.
func NewWeatherClient(base *BaseClient, logger *slog.Logger) *WeatherClient {
	if logger == nil {
		logger = slog.Default()
	}
	return &WeatherClient{base: base, logger: logger}
}

// FetchWeather implements WeatherService.
func (c *WeatherClient) FetchWeather(ctx context.Context, city string) (*types.WeatherReading, error) {
	city = strings.TrimSpace(city)
	if city == "" {
		return nil, types.NewValidationError(types.ErrCodeValidationEmptyCity, "city", "city must not be empty")
	}
	reading, err := c.fetch(ctx, url.Values{"city": {city}})
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(reading.City) == "" {
		reading.City = city
	}
	return reading, nil
}

// FetchWeatherAt implements WeatherService.
func (c *WeatherClient) FetchWeatherAt(ctx context.Context, lat, lon float64) (*types.WeatherReading, error) {
	if err := types.ValidateCoordinates(lat, lon); err != nil {
		return nil, err
	}
	return c.fetch(ctx, url.Values{
		"lat": {strconv.FormatFloat(lat, 'f', -1, 64)},
		"lon": {strconv.FormatFloat(lon, 'f', -1, 64)},
	})
}

func (c *WeatherClient) fetch(ctx context.Context, query url.Values) (*types.WeatherReading, error) {
	var resp weatherResponse
	if err := c.base.CallJSON(ctx, http.MethodGet, weatherPath, query, nil, &resp); err != nil {
		return nil, err
	}
	if resp.Weather == nil {
		return nil, types.NewRemoteError(types.RemoteMalformed, "weather response has no weather object", http.StatusOK, nil)
	}
	c.logger.DebugContext(ctx, "weather reading received", "city", resp.Weather.City)
	return resp.Weather, nil
}
