// Package external is the anti-corruption layer between the workflow and the
// Krushak backend (weather, prediction and report services). All outbound
// HTTP calls go through BaseClient, which wraps each call in a circuit breaker
// and folds every failure into one of three remote error kinds:
// network, server-rejected or malformed.
//
// BaseClient never retries. Retrying is the caller's decision because a
// report export must not be silently replayed with a stale snapshot.
package external

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/sony/gobreaker/v2"

	"krushak/internal/types"
)

const (
	// maxJSONResponseSize caps JSON bodies read from the backend.
	maxJSONResponseSize = 4 << 20
	// maxBinaryResponseSize caps report documents after decompression.
	maxBinaryResponseSize = 64 << 20
)

// CallRecorder receives one observation per remote call. outcome is "ok" or
// the string form of a types.RemoteErrorKind.
type CallRecorder interface {
	RecordCall(service, outcome string, duration time.Duration)
}

// BreakerRecorder is implemented by recorders that also track circuit
// breaker state. state is 0 closed, 1 half-open, 2 open.
type BreakerRecorder interface {
	RecordBreakerState(service string, state int)
}

// ClientConfig configures a BaseClient.
type ClientConfig struct {
	// Service names the breaker and labels metrics, e.g. "weather".
	Service   string
	BaseURL   string
	UserAgent string
	APIToken  string

	// BreakerFailures is the number of consecutive failures that opens the
	// breaker; BreakerCooldown is how long it stays open.
	BreakerFailures uint32
	BreakerCooldown time.Duration

	Recorder CallRecorder
	Logger   *slog.Logger
}

// BaseClient wraps an *http.Client and a circuit breaker so every call to
// the backend fails in the same, typed way.
type BaseClient struct {
	client    *http.Client
	breaker   *gobreaker.CircuitBreaker[*http.Response]
	service   string
	baseURL   string
	userAgent string
	apiToken  string
	recorder  CallRecorder
	logger    *slog.Logger
}

// BaseClientOption is a functional option for configuring a BaseClient.
type BaseClientOption func(*BaseClient)

// WithBreaker replaces the default circuit breaker. Useful in tests and when
// several clients should share one breaker.
func WithBreaker(cb *gobreaker.CircuitBreaker[*http.Response]) BaseClientOption {
	return func(c *BaseClient) {
		c.breaker = cb
	}
}

// NewBaseClient creates a BaseClient for one backend service.
func NewBaseClient(httpClient *http.Client, cfg ClientConfig, opts ...BaseClientOption) *BaseClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	failures := cfg.BreakerFailures
	if failures == 0 {
		failures = 5
	}
	cooldown := cfg.BreakerCooldown
	if cooldown <= 0 {
		cooldown = 30 * time.Second
	}

	bc := &BaseClient{
		client:    httpClient,
		service:   cfg.Service,
		baseURL:   strings.TrimSuffix(cfg.BaseURL, "/"),
		userAgent: cfg.UserAgent,
		apiToken:  cfg.APIToken,
		recorder:  cfg.Recorder,
		logger:    logger.With("service", cfg.Service),
	}
	bc.breaker = gobreaker.NewCircuitBreaker[*http.Response](gobreaker.Settings{
		Name:        cfg.Service,
		MaxRequests: 1,
		Interval:    60 * time.Second,
		Timeout:     cooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		IsSuccessful: func(err error) bool {
			return err == nil
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			bc.logger.Warn("circuit breaker state changed",
				"breaker", name, "from", from.String(), "to", to.String())
			if br, ok := bc.recorder.(BreakerRecorder); ok {
				br.RecordBreakerState(name, int(to))
			}
		},
	})

	for _, opt := range opts {
		opt(bc)
	}
	return bc
}

// Service returns the service name the client was built for.
func (c *BaseClient) Service() string {
	return c.service
}

// errUpstreamStatus marks 5xx responses as failures for the breaker while
// still handing the response to the caller.
var errUpstreamStatus = errors.New("upstream returned server error status")

// Do executes req through the circuit breaker. Transport failures and an
// open breaker come back as a network RemoteError; any HTTP response,
// including 4xx/5xx, is returned as-is for the caller to interpret. The
// caller must close the response body.
func (c *BaseClient) Do(req *http.Request) (*http.Response, error) {
	if reqID := types.GetRequestID(req.Context()); reqID != "" {
		req.Header.Set("X-Request-ID", reqID)
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	if c.apiToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiToken)
	}

	resp, err := c.breaker.Execute(func() (*http.Response, error) {
		r, doErr := c.client.Do(req)
		if doErr != nil {
			return nil, doErr
		}
		if r.StatusCode >= 500 {
			return r, errUpstreamStatus
		}
		return r, nil
	})
	if err == nil || (errors.Is(err, errUpstreamStatus) && resp != nil) {
		return resp, nil
	}

	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, types.NewRemoteError(types.RemoteNetwork,
			fmt.Sprintf("%s service temporarily unavailable", c.service), 0, err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return nil, types.NewRemoteError(types.RemoteNetwork,
			fmt.Sprintf("%s service timed out", c.service), 0, err)
	}
	return nil, types.NewRemoteError(types.RemoteNetwork,
		fmt.Sprintf("could not reach %s service", c.service), 0, err)
}

// envelope is the status wrapper shared by every JSON endpoint.
type envelope struct {
	OK    *bool  `json:"ok"`
	Error string `json:"error"`
}

// CallJSON issues a request with an optional JSON body and decodes the JSON
// response into out. A response is rejected when its status is not 2xx or
// its "ok" flag is false; it is malformed when it cannot be decoded.
func (c *BaseClient) CallJSON(ctx context.Context, method, path string, query url.Values, body, out any) error {
	start := time.Now()
	err := c.callJSON(ctx, method, path, query, body, out)
	c.record(ctx, method, path, start, err)
	return err
}

func (c *BaseClient) callJSON(ctx context.Context, method, path string, query url.Values, body, out any) error {
	req, err := c.newRequest(ctx, method, path, query, body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxJSONResponseSize))
	if err != nil {
		return types.NewRemoteError(types.RemoteNetwork,
			fmt.Sprintf("reading %s response", c.service), resp.StatusCode, err)
	}

	var env envelope
	envErr := json.Unmarshal(data, &env)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return c.rejected(resp.StatusCode, env.Error)
	}
	if envErr != nil {
		return types.NewRemoteError(types.RemoteMalformed,
			fmt.Sprintf("%s service returned invalid JSON", c.service), resp.StatusCode, envErr)
	}
	if env.OK != nil && !*env.OK {
		return c.rejected(resp.StatusCode, env.Error)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return types.NewRemoteError(types.RemoteMalformed,
			fmt.Sprintf("%s service returned an unexpected payload", c.service), resp.StatusCode, err)
	}
	return nil
}

// BinaryResponse is a successfully downloaded binary payload.
type BinaryResponse struct {
	ContentType string
	Filename    string
	Data        []byte
}

// CallBinary issues a request with an optional JSON body and returns the raw
// response body. zstd and gzip encoded bodies are decoded. Empty bodies are
// malformed; non-2xx responses are rejected with the message from the JSON
// error body when one is present.
func (c *BaseClient) CallBinary(ctx context.Context, method, path string, body any) (*BinaryResponse, error) {
	start := time.Now()
	out, err := c.callBinary(ctx, method, path, body)
	c.record(ctx, method, path, start, err)
	return out, err
}

func (c *BaseClient) callBinary(ctx context.Context, method, path string, body any) (*BinaryResponse, error) {
	req, err := c.newRequest(ctx, method, path, nil, body)
	if err != nil {
		return nil, err
	}
	// Setting Accept-Encoding turns off net/http's transparent gzip handling;
	// decodeBody takes over.
	req.Header.Set("Accept-Encoding", "zstd, gzip")

	resp, err := c.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, maxJSONResponseSize))
		var env envelope
		_ = json.Unmarshal(data, &env)
		return nil, c.rejected(resp.StatusCode, env.Error)
	}

	data, err := decodeBody(resp)
	if err != nil {
		var appErr *types.AppError
		if errors.As(err, &appErr) {
			return nil, err
		}
		return nil, types.NewRemoteError(types.RemoteMalformed,
			fmt.Sprintf("%s service returned an undecodable body", c.service), resp.StatusCode, err)
	}
	if len(data) == 0 {
		return nil, types.NewRemoteError(types.RemoteMalformed,
			fmt.Sprintf("%s service returned an empty document", c.service), resp.StatusCode, nil)
	}

	contentType := resp.Header.Get("Content-Type")
	if mediaType, _, _ := mime.ParseMediaType(contentType); mediaType == "application/json" {
		var env envelope
		if json.Unmarshal(data, &env) == nil && env.OK != nil && !*env.OK {
			return nil, c.rejected(resp.StatusCode, env.Error)
		}
	}

	return &BinaryResponse{
		ContentType: contentType,
		Filename:    attachmentName(resp.Header.Get("Content-Disposition")),
		Data:        data,
	}, nil
}

// decodeBody reads the response body, undoing zstd or gzip content encoding.
func decodeBody(resp *http.Response) ([]byte, error) {
	var r io.Reader = resp.Body
	switch strings.ToLower(strings.TrimSpace(resp.Header.Get("Content-Encoding"))) {
	case "", "identity":
	case "zstd":
		dec, err := zstd.NewReader(resp.Body, zstd.WithDecoderConcurrency(1))
		if err != nil {
			return nil, err
		}
		defer dec.Close()
		r = dec
	case "gzip":
		gz, err := gzip.NewReader(resp.Body)
		if err != nil {
			return nil, err
		}
		defer gz.Close()
		r = gz
	default:
		return nil, fmt.Errorf("unsupported content encoding %q", resp.Header.Get("Content-Encoding"))
	}

	data, err := io.ReadAll(io.LimitReader(r, maxBinaryResponseSize+1))
	if err != nil {
		return nil, err
	}
	if len(data) > maxBinaryResponseSize {
		return nil, fmt.Errorf("document exceeds %d bytes", maxBinaryResponseSize)
	}
	return data, nil
}

// attachmentName extracts the filename parameter of a Content-Disposition header.
func attachmentName(header string) string {
	if header == "" {
		return ""
	}
	_, params, err := mime.ParseMediaType(header)
	if err != nil {
		return ""
	}
	return params["filename"]
}

func (c *BaseClient) newRequest(ctx context.Context, method, path string, query url.Values, body any) (*http.Request, error) {
	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalUnexpected,
				fmt.Sprintf("failed to serialize %s request", c.service), err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalUnexpected,
			fmt.Sprintf("failed to create %s request", c.service), err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

func (c *BaseClient) rejected(status int, message string) *types.AppError {
	if strings.TrimSpace(message) == "" {
		message = fmt.Sprintf("%s service rejected the request", c.service)
	}
	return types.NewRemoteError(types.RemoteServerRejected, message, status, nil)
}

func (c *BaseClient) record(ctx context.Context, method, path string, start time.Time, err error) {
	duration := time.Since(start)
	outcome := "ok"
	if err != nil {
		if kind, ok := types.RemoteKind(err); ok {
			outcome = string(kind)
		} else {
			outcome = "error"
		}
	}
	if c.recorder != nil {
		c.recorder.RecordCall(c.service, outcome, duration)
	}

	attrs := []any{"method", method, "path", path, "outcome", outcome, "duration", duration}
	if reqID := types.GetRequestID(ctx); reqID != "" {
		attrs = append(attrs, "request_id", reqID)
	}
	if err != nil {
		c.logger.WarnContext(ctx, "backend call failed", append(attrs, "error", err)...)
		return
	}
	c.logger.DebugContext(ctx, "backend call completed", attrs...)
}
