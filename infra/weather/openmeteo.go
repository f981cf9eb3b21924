// Package weather fetches current conditions from Open-Meteo.
package weather

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/kilianp07/freightplan/core/model"
)

const (
	DefaultBaseURL     = "https://api.open-meteo.com/v1/forecast"
	DefaultTimeout     = 10 * time.Second
	DefaultCurrentVars = "temperature_2m,precipitation,wind_speed_10m,relative_humidity_2m"
	// Source tags events produced from Open-Meteo snapshots.
	Source = "open-meteo"
)

// ErrUpstream is returned for transport failures and non-2xx answers.
var ErrUpstream = errors.New("weather upstream error")

// Config selects the Open-Meteo endpoint.
type Config struct {
	BaseURL     string        `json:"base_url" yaml:"base_url" koanf:"base_url"`
	Timeout     time.Duration `json:"timeout" yaml:"timeout" koanf:"timeout"`
	CurrentVars string        `json:"current_vars" yaml:"current_vars" koanf:"current_vars"`
}

// SetDefaults fills zero values.
func (c *Config) SetDefaults() {
	if c.BaseURL == "" {
		c.BaseURL = DefaultBaseURL
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if c.CurrentVars == "" {
		c.CurrentVars = DefaultCurrentVars
	}
}

// Validate checks the endpoint URL.
func (c Config) Validate() error {
	u, err := url.Parse(c.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return fmt.Errorf("weather base_url %q is not an http url", c.BaseURL)
	}
	return nil
}

// Snapshot is a normalised observation. Fields the upstream did not report
// are nil.
type Snapshot struct {
	Lat                 float64
	Lon                 float64
	TemperatureC        *float64
	PrecipitationMM     *float64
	WindSpeedMPS        *float64
	RelativeHumidityPct *float64
	Source              string
	RetrievedAt         time.Time
	Raw                 map[string]any
}

// Model converts the snapshot, mapping missing values to zero.
func (s Snapshot) Model() model.WeatherSnapshot {
	return model.WeatherSnapshot{
		TemperatureC:    deref(s.TemperatureC),
		PrecipitationMM: deref(s.PrecipitationMM),
		WindSpeedMPS:    deref(s.WindSpeedMPS),
	}
}

// OpenMeteoClient queries the "current" forecast endpoint. No API key is
// needed.
type OpenMeteoClient struct {
	cfg    Config
	client *http.Client
	now    func() time.Time
}

// NewOpenMeteoClient builds a client. hc may be nil.
func NewOpenMeteoClient(cfg Config, hc *http.Client) (*OpenMeteoClient, error) {
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if hc == nil {
		hc = &http.Client{Timeout: cfg.Timeout}
	}
	return &OpenMeteoClient{cfg: cfg, client: hc, now: time.Now}, nil
}

// Current fetches the current conditions at (lat, lon). Both the modern
// "current" object and the legacy "current_weather" object are understood;
// the legacy schema carries no precipitation or humidity and reports wind
// in km/h.
func (c *OpenMeteoClient) Current(ctx context.Context, lat, lon float64) (Snapshot, error) {
	q := url.Values{}
	q.Set("latitude", strconv.FormatFloat(lat, 'f', 6, 64))
	q.Set("longitude", strconv.FormatFloat(lon, 'f', 6, 64))
	q.Set("current", c.cfg.CurrentVars)
	q.Set("timezone", "UTC")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+"?"+q.Encode(), nil)
	if err != nil {
		return Snapshot{}, fmt.Errorf("create request: %w", err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return Snapshot{}, ctx.Err()
		}
		return Snapshot{}, fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return Snapshot{}, fmt.Errorf("%w: status %d: %s", ErrUpstream, resp.StatusCode, strings.TrimSpace(string(body)))
	}
	var data map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return Snapshot{}, fmt.Errorf("decode weather response: %w", err)
	}

	s := Snapshot{Lat: lat, Lon: lon, Source: Source, RetrievedAt: c.now().UTC(), Raw: data}
	if cur, ok := data["current"].(map[string]any); ok {
		s.TemperatureC = getFloat(cur, "temperature_2m")
		s.PrecipitationMM = getFloat(cur, "precipitation")
		s.WindSpeedMPS = getFloat(cur, "wind_speed_10m", "wind_speed")
		s.RelativeHumidityPct = getFloat(cur, "relative_humidity_2m", "relative_humidity")
	} else {
		cw, _ := data["current_weather"].(map[string]any)
		s.TemperatureC = getFloat(cw, "temperature", "temperature_2m")
		if kmh := getFloat(cw, "windspeed"); kmh != nil {
			mps := *kmh / 3.6
			s.WindSpeedMPS = &mps
		}
	}
	if h := s.RelativeHumidityPct; h != nil && (*h < 0 || *h > 100) {
		s.RelativeHumidityPct = nil
	}
	return s, nil
}

// Weather adapts Current to the ingest provider interface.
func (c *OpenMeteoClient) Weather(ctx context.Context, lat, lon float64) (model.WeatherSnapshot, error) {
	s, err := c.Current(ctx, lat, lon)
	if err != nil {
		return model.WeatherSnapshot{}, err
	}
	return s.Model(), nil
}

// getFloat returns the first key holding a number or a numeric string.
func getFloat(m map[string]any, keys ...string) *float64 {
	for _, k := range keys {
		switch v := m[k].(type) {
		case float64:
			return &v
		case string:
			if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
				return &f
			}
		}
	}
	return nil
}

func deref(p *float64) float64 {
	if p == nil {
		return 0
	}
	return *p
}
