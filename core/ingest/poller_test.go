package ingest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/freightplan/core/model"
	"github.com/kilianp07/freightplan/core/store"
)

type fakeTraffic struct {
	snap  model.TrafficSnapshot
	err   error
	rains []float64
}

func (f *fakeTraffic) Traffic(_ context.Context, _, _ float64, _ time.Time, rainMM float64) (model.TrafficSnapshot, error) {
	f.rains = append(f.rains, rainMM)
	return f.snap, f.err
}

type fakeWeather struct {
	snap model.WeatherSnapshot
	err  error
}

func (f fakeWeather) Weather(context.Context, float64, float64) (model.WeatherSnapshot, error) {
	return f.snap, f.err
}

// failingStore rejects every append.
type failingStore struct{ *store.MemoryStore }

func (failingStore) AppendEvent(context.Context, model.Event) (model.Event, error) {
	return model.Event{}, errors.New("disk full")
}

var depots = []Location{
	{ID: "paris", Lat: 48.85, Lon: 2.35},
	{ID: "lyon", Lat: 45.76, Lon: 4.83},
}

func clock() time.Time { return time.Date(2024, 3, 6, 8, 0, 0, 0, time.UTC) }

func TestClassifyCongestion(t *testing.T) {
	cases := map[float64]model.Severity{
		0:    model.SeverityLow,
		0.34: model.SeverityLow,
		0.35: model.SeverityModerate,
		0.69: model.SeverityModerate,
		0.7:  model.SeverityHigh,
		1:    model.SeverityHigh,
	}
	for ci, want := range cases {
		if got := ClassifyCongestion(ci); got != want {
			t.Errorf("ClassifyCongestion(%v) = %s, want %s", ci, got, want)
		}
	}
}

func TestClassifyWeather(t *testing.T) {
	cases := []struct {
		w    model.WeatherSnapshot
		want model.Severity
	}{
		{model.WeatherSnapshot{}, model.SeverityLow},
		{model.WeatherSnapshot{PrecipitationMM: 2}, model.SeverityLow},
		{model.WeatherSnapshot{PrecipitationMM: 2.1}, model.SeverityModerate},
		{model.WeatherSnapshot{WindSpeedMPS: 9}, model.SeverityModerate},
		{model.WeatherSnapshot{PrecipitationMM: 8.5}, model.SeverityHigh},
		{model.WeatherSnapshot{WindSpeedMPS: 16}, model.SeverityHigh},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, ClassifyWeather(tc.w), "%+v", tc.w)
	}
}

func TestPollOnceAppendsTypedEvents(t *testing.T) {
	reg := prometheus.NewRegistry()
	ResetMetrics(reg)

	st := store.NewMemoryStore()
	tr := &fakeTraffic{snap: model.TrafficSnapshot{CongestionIndex: 0.82, AvgSpeedKPH: 17}}
	p, err := NewPoller(Config{Locations: depots}, st,
		WithTraffic(tr, "stub-traffic"),
		WithWeather(fakeWeather{snap: model.WeatherSnapshot{TemperatureC: 9, PrecipitationMM: 4, WindSpeedMPS: 3}}, "open-meteo"),
		WithClock(clock),
	)
	require.NoError(t, err)

	n, err := p.PollOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	assert.Equal(t, []float64{4, 4}, tr.rains)

	evs, err := st.RecentEvents(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, evs, 4)

	// newest first: lyon traffic, lyon weather, paris traffic, paris weather
	assert.Equal(t, model.EventTraffic, evs[0].Type)
	assert.Equal(t, model.SeverityHigh, evs[0].Severity)
	assert.Equal(t, "stub-traffic", evs[0].Source)
	assert.Equal(t, model.TrafficPayload{LocationID: "lyon", CongestionIndex: 0.82, AvgSpeedKPH: 17}, evs[0].Payload)
	assert.Equal(t, clock(), evs[0].TS)

	assert.Equal(t, model.EventWeather, evs[3].Type)
	assert.Equal(t, model.SeverityModerate, evs[3].Severity)
	assert.Equal(t, "paris", evs[3].Payload.(model.WeatherPayload).LocationID)

	assert.Equal(t, 2.0, testutil.ToFloat64(eventsTotal.WithLabelValues("traffic")))
	assert.Equal(t, 2.0, testutil.ToFloat64(eventsTotal.WithLabelValues("weather")))
}

func TestPollOnceSkipsProviderFailures(t *testing.T) {
	reg := prometheus.NewRegistry()
	ResetMetrics(reg)

	st := store.NewMemoryStore()
	tr := &fakeTraffic{snap: model.TrafficSnapshot{CongestionIndex: 1.3, AvgSpeedKPH: 5}}
	p, err := NewPoller(Config{Locations: depots[:1]}, st,
		WithTraffic(tr, "stub-traffic"),
		WithWeather(fakeWeather{err: errors.New("timeout")}, "open-meteo"),
	)
	require.NoError(t, err)

	n, err := p.PollOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, []float64{0}, tr.rains)
	assert.Equal(t, 1.0, testutil.ToFloat64(failuresTotal.WithLabelValues("weather")))

	evs, _ := st.RecentEvents(context.Background(), 10)
	require.Len(t, evs, 1)
	assert.Equal(t, 1.0, evs[0].Payload.(model.TrafficPayload).CongestionIndex)
}

func TestPollOnceReportsStoreFailures(t *testing.T) {
	ResetMetrics(prometheus.NewRegistry())

	p, err := NewPoller(Config{Locations: depots}, failingStore{store.NewMemoryStore()},
		WithTraffic(&fakeTraffic{snap: model.TrafficSnapshot{CongestionIndex: 0.1, AvgSpeedKPH: 40}}, "stub-traffic"),
	)
	require.NoError(t, err)

	n, err := p.PollOnce(context.Background())
	assert.Zero(t, n)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
	assert.Equal(t, 2.0, testutil.ToFloat64(failuresTotal.WithLabelValues("traffic")))
}

func TestRunStopsOnCancel(t *testing.T) {
	ResetMetrics(prometheus.NewRegistry())

	st := store.NewMemoryStore()
	p, err := NewPoller(Config{Interval: time.Hour, Locations: depots[:1]}, st,
		WithTraffic(&fakeTraffic{snap: model.TrafficSnapshot{CongestionIndex: 0.5, AvgSpeedKPH: 30}}, "stub-traffic"),
	)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	require.Eventually(t, func() bool {
		evs, _ := st.RecentEvents(context.Background(), 10)
		return len(evs) == 1
	}, time.Second, 10*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestConfigValidate(t *testing.T) {
	var c Config
	c.SetDefaults()
	assert.Equal(t, DefaultInterval, c.Interval)
	assert.NoError(t, c.Validate())

	c.Enabled = true
	assert.Error(t, c.Validate())

	c.Locations = []Location{{ID: "a", Lat: 10, Lon: 10}, {ID: "a", Lat: 1, Lon: 1}}
	assert.ErrorContains(t, c.Validate(), "duplicate")

	c.Locations = []Location{{ID: "a", Lat: 95}}
	assert.ErrorContains(t, c.Validate(), "coordinates")

	c.Locations = []Location{{ID: "a", Lat: 45, Lon: 5}}
	assert.NoError(t, c.Validate())

	_, err := NewPoller(c, nil)
	assert.Error(t, err)
}
