package external

import (
	"context"
	"log/slog"
	"net/http"

	"krushak/internal/core"
	"krushak/internal/types"
)

const predictPath = "/api/predict"

// predictRequest is the body of POST /api/predict: the eight feature columns
// plus the language used for the soil-health text.
type predictRequest struct {
	types.ParameterSet
	Language types.Language `json:"language"`
}

// predictResponse is the body returned by POST /api/predict.
type predictResponse struct {
	Results    *types.PredictionSet `json:"results"`
	SoilHealth *types.SoilHealth    `json:"soil_health"`
}

// PredictionOutcome is a complete, validated prediction result.
type PredictionOutcome struct {
	Predictions *types.PredictionSet
	SoilHealth  *types.SoilHealth
}

// PredictionClient implements PredictionService.
type PredictionClient struct {
	base      *BaseClient
	validator ParameterValidator
	logger    *slog.Logger
}

// NewPredictionClient creates a PredictionClient. A nil validator falls back
// to core.NewValidator.
func NewPredictionClient(base *BaseClient, validator ParameterValidator, logger *slog.Logger) *PredictionClient {
	if logger == nil {
		logger = slog.Default()
	}
	if validator == nil {
		validator = core.NewValidator(logger)
	}
	return &PredictionClient{base: base, validator: validator, logger: logger}
}

// Predict implements PredictionService. params is received by value so the
// request is built from a snapshot the caller can no longer mutate.
func (c *PredictionClient) Predict(ctx context.Context, params types.ParameterSet, lang types.Language) (*PredictionOutcome, error) {
	if err := c.validator.ValidateParameters(params); err != nil {
		return nil, err
	}

	body := predictRequest{
		ParameterSet: params,
		Language:     types.NormalizeLanguage(string(lang)),
	}
	var resp predictResponse
	if err := c.base.CallJSON(ctx, http.MethodPost, predictPath, nil, body, &resp); err != nil {
		return nil, err
	}

	if err := resp.Results.Validate(); err != nil {
		return nil, types.NewRemoteError(types.RemoteMalformed, "prediction response: "+err.Error(), http.StatusOK, err)
	}
	if resp.SoilHealth == nil {
		return nil, types.NewRemoteError(types.RemoteMalformed, "prediction response has no soil health", http.StatusOK, nil)
	}
	if err := resp.SoilHealth.Validate(); err != nil {
		return nil, types.NewRemoteError(types.RemoteMalformed, "prediction response: "+err.Error(), http.StatusOK, err)
	}

	c.logger.DebugContext(ctx, "predictions received",
		"models", resp.Results.Len(),
		"health_score", resp.SoilHealth.HealthScore,
		"language", body.Language,
	)
	return &PredictionOutcome{Predictions: resp.Results, SoilHealth: resp.SoilHealth}, nil
}
