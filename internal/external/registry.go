package external

import (
	"log/slog"
	"net/http"

	"krushak/internal/config"
)

// Breaker and metric names of the backend services.
const (
	ServiceWeather = "weather"
	ServicePredict = "predict"
	ServiceReport  = "report"
	ServiceHealth  = "health"
)

// ClientRegistry holds the backend clients. It is the single point through
// which the rest of the application reaches the Krushak backend.
type ClientRegistry struct {
	Weather   *WeatherClient
	Predictor *PredictionClient
	Reports   *ReportClient

	// Probe checks backend reachability. It has its own breaker so that
	// health polls never open the prediction breaker.
	Probe *BackendProbe
}

// NewClientRegistry builds one BaseClient per service so that a failing
// service trips only its own breaker. Reports get the longer report timeout.
// recorder may be nil.
func NewClientRegistry(cfg config.BackendConfig, val ParameterValidator, recorder CallRecorder, logger *slog.Logger) *ClientRegistry {
	if logger == nil {
		logger = slog.Default()
	}

	base := func(service string, client *http.Client) *BaseClient {
		return NewBaseClient(client, ClientConfig{
			Service:         service,
			BaseURL:         cfg.BaseURL,
			UserAgent:       cfg.UserAgent,
			APIToken:        cfg.APIToken.Unmask(),
			BreakerFailures: cfg.BreakerFailures,
			BreakerCooldown: cfg.BreakerCooldown,
			Recorder:        recorder,
			Logger:          logger,
		})
	}

	// The weather, prediction and health calls share one connection pool.
	api := &http.Client{Timeout: cfg.Timeout}

	logger.Info("backend clients initialized",
		"base_url", cfg.BaseURL,
		"timeout", cfg.Timeout.String(),
		"report_timeout", cfg.ReportTimeout.String(),
	)

	return &ClientRegistry{
		Weather:   NewWeatherClient(base(ServiceWeather, api), logger),
		Predictor: NewPredictionClient(base(ServicePredict, api), val, logger),
		Reports:   NewReportClient(base(ServiceReport, &http.Client{Timeout: cfg.ReportTimeout}), logger),
		Probe:     NewBackendProbe(base(ServiceHealth, api)),
	}
}
