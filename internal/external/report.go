package external

import (
	"context"
	"log/slog"
	"net/http"

	"krushak/internal/types"
)

const reportPathPrefix = "/api/download-report/"

// ReportRequest is the workflow result sent to the report service. Every
// field must be an independent copy of the live workflow state.
type ReportRequest struct {
	InputData   *types.ParameterSet   `json:"input_data"`
	Predictions *types.PredictionSet  `json:"predictions"`
	SoilHealth  *types.SoilHealth     `json:"soil_health"`
	Weather     *types.WeatherReading `json:"weather_data"`
	Language    types.Language        `json:"language"`
}

// ReportClient implements ReportService.
type ReportClient struct {
	base   *BaseClient
	logger *slog.Logger
}

// NewReportClient creates a ReportClient. Report rendering is slow on the
// backend; base should be built on an http.Client with a generous timeout.
func NewReportClient(base *BaseClient, logger *slog.Logger) *ReportClient {
	if logger == nil {
		logger = slog.Default()
	}
	return &ReportClient{base: base, logger: logger}
}

// Export implements ReportService. It fails locally, without a network
// call, when the format is unknown or there are no predictions to report.
func (c *ReportClient) Export(ctx context.Context, req ReportRequest, format types.ReportFormat) (*types.Document, error) {
	format, err := types.ParseReportFormat(string(format))
	if err != nil {
		return nil, err
	}
	if req.Predictions.Len() == 0 {
		return nil, types.NewValidationError(types.ErrCodeValidationNoPredictions, "predictions", "no prediction data available")
	}
	req.Language = types.NormalizeLanguage(string(req.Language))

	bin, err := c.base.CallBinary(ctx, http.MethodPost, reportPathPrefix+string(format), req)
	if err != nil {
		return nil, err
	}

	doc := &types.Document{
		Format:      format,
		ContentType: bin.ContentType,
		Filename:    types.ReportFilename(format),
		Data:        bin.Data,
	}
	if doc.ContentType == "" {
		doc.ContentType = format.ContentType()
	}
	c.logger.DebugContext(ctx, "report exported",
		"format", format, "bytes", len(bin.Data), "server_filename", bin.Filename)
	return doc, nil
}
