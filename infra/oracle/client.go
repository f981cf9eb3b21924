// Package oracle calls the remote ML delay service.
package oracle

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/kilianp07/freightplan/auth"
	"github.com/kilianp07/freightplan/core/logger"
	"github.com/kilianp07/freightplan/core/model"
	"github.com/kilianp07/freightplan/core/prediction"
)

// PredictPath is appended to the configured base URL.
const PredictPath = "/ml/predict_delay"

const (
	DefaultTimeout   = 5 * time.Second
	DefaultRateLimit = 20.0
	DefaultBurst     = 5
	maxBodyBytes     = 1 << 20
)

// Config selects the ML delay service. An empty URL disables the remote
// oracle and leaves every prediction to the fallback estimate.
type Config struct {
	URL       string        `json:"url" yaml:"url" koanf:"url"`
	Timeout   time.Duration `json:"timeout" yaml:"timeout" koanf:"timeout"`
	RateLimit float64       `json:"rate_limit" yaml:"rate_limit" koanf:"rate_limit"`
	Burst     int           `json:"burst" yaml:"burst" koanf:"burst"`
	// Auth enables OAuth2 client credentials when TokenURL is set.
	Auth auth.Conf `json:"auth" yaml:"auth" koanf:"auth"`
}

// Enabled reports whether a remote service is configured.
func (c Config) Enabled() bool { return strings.TrimSpace(c.URL) != "" }

// SetDefaults fills zero values.
func (c *Config) SetDefaults() {
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if c.RateLimit <= 0 {
		c.RateLimit = DefaultRateLimit
	}
	if c.Burst <= 0 {
		c.Burst = DefaultBurst
	}
}

// Validate checks the URL scheme when the oracle is enabled.
func (c Config) Validate() error {
	if !c.Enabled() {
		return nil
	}
	if !strings.HasPrefix(c.URL, "http://") && !strings.HasPrefix(c.URL, "https://") {
		return fmt.Errorf("oracle url %q must be http or https", c.URL)
	}
	if c.Timeout < 0 {
		return errors.New("oracle timeout must be positive")
	}
	if err := c.Auth.Validate(); err != nil {
		return fmt.Errorf("oracle auth: %w", err)
	}
	return nil
}

// HTTPClient implements prediction.Oracle over HTTP. Requests are throttled
// by a token bucket so a large matrix build cannot flood the service.
type HTTPClient struct {
	endpoint string
	client   *http.Client
	limiter  *rate.Limiter
	log      logger.Logger
	now      func() time.Time
}

var _ prediction.Oracle = (*HTTPClient)(nil)

// Option configures an HTTPClient.
type Option func(*HTTPClient)

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *HTTPClient) {
		if hc != nil {
			c.client = hc
		}
	}
}

// WithLogger sets the client logger.
func WithLogger(l logger.Logger) Option {
	return func(c *HTTPClient) { c.log = logger.OrNop(l) }
}

// WithClock overrides time.Now for the hour and weekday features.
func WithClock(now func() time.Time) Option {
	return func(c *HTTPClient) {
		if now != nil {
			c.now = now
		}
	}
}

// NewHTTPClient builds a client for cfg. cfg must be enabled.
func NewHTTPClient(cfg Config, opts ...Option) (*HTTPClient, error) {
	cfg.SetDefaults()
	if !cfg.Enabled() {
		return nil, errors.New("oracle url is empty")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	c := &HTTPClient{
		endpoint: strings.TrimRight(cfg.URL, "/") + PredictPath,
		client:   &http.Client{Timeout: cfg.Timeout},
		limiter:  rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.Burst),
		log:      logger.Nop{},
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	if cfg.Auth.Enabled() {
		hc := *c.client
		hc.Transport = auth.NewClientCred(cfg.Auth).Transport(hc.Transport)
		c.client = &hc
	}
	return c, nil
}

// Endpoint returns the full prediction URL.
func (c *HTTPClient) Endpoint() string { return c.endpoint }

type predictResponse struct {
	DelayProb        *float64 `json:"delay_prob"`
	ExpectedDelayMin *float64 `json:"expected_delay_min"`
	ModelVersion     string   `json:"model_version"`
}

// Predict posts the normalised features and validates the answer.
func (c *HTTPClient) Predict(ctx context.Context, f prediction.Features) (model.DelayEstimate, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		if ctx.Err() != nil {
			return model.DelayEstimate{}, ctx.Err()
		}
		return model.DelayEstimate{}, fmt.Errorf("%w: rate limiter: %v", prediction.ErrUnavailable, err)
	}

	body, err := json.Marshal(f.Normalize(c.now()))
	if err != nil {
		return model.DelayEstimate{}, fmt.Errorf("encode features: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return model.DelayEstimate{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return model.DelayEstimate{}, ctx.Err()
		}
		return model.DelayEstimate{}, fmt.Errorf("%w: %v", prediction.ErrUnavailable, err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return model.DelayEstimate{}, fmt.Errorf("%w: read response: %v", prediction.ErrUnavailable, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.log.Debugw("delay oracle rejected request", map[string]any{"status": resp.StatusCode, "body": string(raw)})
		return model.DelayEstimate{}, fmt.Errorf("%w: status %d", prediction.ErrUnavailable, resp.StatusCode)
	}

	var pr predictResponse
	if err := json.Unmarshal(raw, &pr); err != nil {
		return model.DelayEstimate{}, fmt.Errorf("%w: decode: %v", prediction.ErrMalformed, err)
	}
	if pr.DelayProb == nil || pr.ExpectedDelayMin == nil {
		return model.DelayEstimate{}, fmt.Errorf("%w: missing delay_prob or expected_delay_min", prediction.ErrMalformed)
	}
	est := model.DelayEstimate{
		DelayProb:        *pr.DelayProb,
		ExpectedDelayMin: *pr.ExpectedDelayMin,
		ModelVersion:     pr.ModelVersion,
	}
	if err := est.Validate(); err != nil {
		return model.DelayEstimate{}, fmt.Errorf("%w: %v", prediction.ErrMalformed, err)
	}
	return est, nil
}
