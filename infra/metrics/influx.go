package metrics

import (
	"context"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	coremetrics "github.com/kilianp07/freightplan/core/metrics"
	"github.com/kilianp07/freightplan/infra/logger"
)

const influxWriteTimeout = 5 * time.Second

// InfluxSink writes planning outcomes to InfluxDB using the official client.
type InfluxSink struct {
	client   influxdb2.Client
	writeAPI api.WriteAPIBlocking
	log      logger.Logger
}

// NewInfluxSink creates a sink for the given endpoint. A trailing
// /api/v2/write on url is tolerated.
func NewInfluxSink(url, token, org, bucket string) *InfluxSink {
	base := strings.TrimSuffix(url, "/api/v2/write")
	client := influxdb2.NewClientWithOptions(base, token,
		influxdb2.DefaultOptions().SetHTTPClient(&http.Client{Timeout: influxWriteTimeout}))
	return &InfluxSink{
		client:   client,
		writeAPI: client.WriteAPIBlocking(org, bucket),
		log:      logger.New("influx-sink"),
	}
}

// NewInfluxSinkWithFallback health-checks the instance and returns a
// NopSink when it does not answer "pass".
func NewInfluxSinkWithFallback(url, token, org, bucket string) coremetrics.Sink {
	sink := NewInfluxSink(url, token, org, bucket)
	ctx, cancel := context.WithTimeout(context.Background(), influxWriteTimeout)
	defer cancel()
	health, err := sink.client.Health(ctx)
	if err != nil || health.Status != "pass" {
		if err != nil {
			sink.log.Errorf("influx health check error: %v", err)
		} else {
			sink.log.Errorf("influx health status: %s", health.Status)
		}
		sink.client.Close()
		return coremetrics.NopSink{}
	}
	return sink
}

// Close releases the client.
func (s *InfluxSink) Close() { s.client.Close() }

func (s *InfluxSink) write(p *write.Point) error {
	ctx, cancel := context.WithTimeout(context.Background(), influxWriteTimeout)
	defer cancel()
	return s.writeAPI.WritePoint(ctx, p)
}

func (s *InfluxSink) RecordDecision(ev coremetrics.DecisionEvent) error {
	p := write.NewPointWithMeasurement("plan_decision").
		AddTag("selection", ev.Selection).
		AddTag("multimodal", strconv.FormatBool(ev.IsMultimodal))
	if ev.PlanID != "" {
		p = p.AddTag("plan_id", ev.PlanID)
	}
	p = p.AddField("score", round3(ev.Score)).
		AddField("time_min", round3(ev.Metrics.TimeMin)).
		AddField("delay_penalty_min", round3(ev.Metrics.DelayPenaltyMin)).
		AddField("emissions_kg", round3(ev.Metrics.EmissionsKg)).
		AddField("cost", round3(ev.Metrics.Cost)).
		SetTime(ev.Time)
	return s.write(p)
}

func (s *InfluxSink) RecordReroute(ev coremetrics.RerouteEvent) error {
	p := write.NewPointWithMeasurement("plan_reroute").
		AddTag("plan_id", ev.PlanID).
		AddTag("reason", ev.Reason).
		AddField("previous", ev.Previous).
		AddField("selection", ev.Selection).
		AddField("trigger_event_id", ev.TriggerEventID).
		SetTime(ev.Time)
	return s.write(p)
}

func (s *InfluxSink) RecordSolve(ev coremetrics.SolveEvent) error {
	p := write.NewPointWithMeasurement("route_solve").
		AddTag("status", ev.Status).
		AddField("objective", ev.Objective).
		AddField("vehicles", ev.Vehicles).
		AddField("stops", ev.Stops).
		AddField("penalty_used_min", round3(ev.PenaltyUsed)).
		AddField("duration_ms", ev.Duration.Milliseconds()).
		SetTime(ev.Time)
	return s.write(p)
}

func (s *InfluxSink) RecordOracleFallback(ev coremetrics.OracleFallbackEvent) error {
	p := write.NewPointWithMeasurement("oracle_fallback").
		AddTag("reason", ev.Reason).
		AddField("delay_prob", round3(ev.DelayProb)).
		AddField("expected_delay_min", round3(ev.ExpectedDelayMin)).
		SetTime(ev.Time)
	return s.write(p)
}

func (s *InfluxSink) RecordTick(ev coremetrics.TickEvent) error {
	p := write.NewPointWithMeasurement("reroute_tick").
		AddField("scanned", ev.Scanned).
		AddField("triggered", ev.Triggered).
		AddField("rerouted", ev.Rerouted).
		AddField("failed", ev.Failed).
		AddField("duration_ms", ev.Duration.Milliseconds()).
		SetTime(ev.Time)
	return s.write(p)
}

func round3(f float64) float64 {
	return math.Round(f*1000) / 1000
}
