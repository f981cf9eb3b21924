package model

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// EventType tags the payload schema of an Event.
type EventType string

const (
	EventTraffic   EventType = "traffic"
	EventWeather   EventType = "weather"
	EventDelay     EventType = "delay"
	EventFuelPrice EventType = "fuel_price"
	EventBreakdown EventType = "breakdown"
	EventReroute   EventType = "reroute"
)

// Severity classifies events for operators.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityModerate Severity = "moderate"
	SeverityHigh     Severity = "high"
)

// ErrInvalidEvent is returned when an event fails boundary validation.
var ErrInvalidEvent = errors.New("invalid event")

// EventPayload is implemented by every typed event body.
type EventPayload interface {
	EventType() EventType
	Validate() error
}

// Event is a persisted signal. ID is assigned by the store and increases
// monotonically.
type Event struct {
	ID       int64        `json:"id"`
	PlanID   string       `json:"plan_id,omitempty"`
	Type     EventType    `json:"type"`
	Source   string       `json:"source,omitempty"`
	Severity Severity     `json:"severity,omitempty"`
	TS       time.Time    `json:"ts"`
	Payload  EventPayload `json:"-"`
}

// NewEvent builds an event whose Type matches its payload.
func NewEvent(source string, severity Severity, p EventPayload) (Event, error) {
	if p == nil {
		return Event{}, fmt.Errorf("%w: nil payload", ErrInvalidEvent)
	}
	if err := p.Validate(); err != nil {
		return Event{}, err
	}
	return Event{Type: p.EventType(), Source: source, Severity: severity, Payload: p}, nil
}

// Validate checks the type tag and payload.
func (e Event) Validate() error {
	if e.Payload == nil {
		return fmt.Errorf("%w: %s event without payload", ErrInvalidEvent, e.Type)
	}
	if e.Payload.EventType() != e.Type {
		return fmt.Errorf("%w: type %s carries %s payload", ErrInvalidEvent, e.Type, e.Payload.EventType())
	}
	switch e.Severity {
	case "", SeverityLow, SeverityModerate, SeverityHigh:
	default:
		return fmt.Errorf("%w: severity %q", ErrInvalidEvent, e.Severity)
	}
	return e.Payload.Validate()
}

// TrafficPayload reports area congestion.
type TrafficPayload struct {
	LocationID      string  `json:"location_id,omitempty"`
	CongestionIndex float64 `json:"congestion_index"`
	AvgSpeedKPH     float64 `json:"avg_speed_kph"`
}

func (TrafficPayload) EventType() EventType { return EventTraffic }

func (p TrafficPayload) Validate() error {
	if p.CongestionIndex < 0 || p.CongestionIndex > 1 {
		return fmt.Errorf("%w: congestion_index %v outside [0,1]", ErrInvalidEvent, p.CongestionIndex)
	}
	if p.AvgSpeedKPH < 0 {
		return fmt.Errorf("%w: negative avg_speed_kph", ErrInvalidEvent)
	}
	return nil
}

// WeatherPayload reports point weather.
type WeatherPayload struct {
	LocationID      string  `json:"location_id,omitempty"`
	TemperatureC    float64 `json:"temperature_c"`
	PrecipitationMM float64 `json:"precipitation_mm"`
	WindSpeedMPS    float64 `json:"wind_speed_mps"`
}

func (WeatherPayload) EventType() EventType { return EventWeather }

func (p WeatherPayload) Validate() error {
	if p.PrecipitationMM < 0 || p.WindSpeedMPS < 0 {
		return fmt.Errorf("%w: negative precipitation or wind", ErrInvalidEvent)
	}
	return nil
}

// DelayPayload carries a delay prediction broadcast.
type DelayPayload struct {
	DelayProb        float64 `json:"delay_prob"`
	ExpectedDelayMin float64 `json:"expected_delay_min"`
}

func (DelayPayload) EventType() EventType { return EventDelay }

func (p DelayPayload) Validate() error {
	if err := (DelayEstimate{DelayProb: p.DelayProb, ExpectedDelayMin: p.ExpectedDelayMin}).Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidEvent, err)
	}
	return nil
}

// FuelPricePayload reports a regional fuel price.
type FuelPricePayload struct {
	Region        string  `json:"region"`
	PricePerLitre float64 `json:"price_per_l"`
}

func (FuelPricePayload) EventType() EventType { return EventFuelPrice }

func (p FuelPricePayload) Validate() error {
	if p.PricePerLitre < 0 {
		return fmt.Errorf("%w: negative fuel price", ErrInvalidEvent)
	}
	return nil
}

// BreakdownPayload reports a vehicle breakdown.
type BreakdownPayload struct {
	VehicleID string  `json:"vehicle_id"`
	Lat       float64 `json:"lat"`
	Lon       float64 `json:"lon"`
}

func (BreakdownPayload) EventType() EventType { return EventBreakdown }

func (p BreakdownPayload) Validate() error {
	if p.VehicleID == "" {
		return fmt.Errorf("%w: breakdown without vehicle_id", ErrInvalidEvent)
	}
	return nil
}

// ReroutePayload is the notification emitted after a plan was re-optimised.
// TriggerEventID is the event that breached the policy, zero for retries.
type ReroutePayload struct {
	PlanID         string `json:"plan_id"`
	Reason         string `json:"reason"`
	NewMode        string `json:"new_mode"`
	TriggerEventID int64  `json:"trigger_event_id,omitempty"`
}

func (ReroutePayload) EventType() EventType { return EventReroute }

func (p ReroutePayload) Validate() error {
	if p.PlanID == "" || p.NewMode == "" {
		return fmt.Errorf("%w: reroute needs plan_id and new_mode", ErrInvalidEvent)
	}
	return nil
}

// DecodePayload parses raw JSON into the payload type selected by t and
// validates it.
func DecodePayload(t EventType, raw []byte) (EventPayload, error) {
	var (
		p   EventPayload
		err error
	)
	switch t {
	case EventTraffic:
		var v TrafficPayload
		err = decodeStrict(raw, &v)
		p = v
	case EventWeather:
		var v WeatherPayload
		err = decodeStrict(raw, &v)
		p = v
	case EventDelay:
		var v DelayPayload
		err = decodeStrict(raw, &v)
		p = v
	case EventFuelPrice:
		var v FuelPricePayload
		err = decodeStrict(raw, &v)
		p = v
	case EventBreakdown:
		var v BreakdownPayload
		err = decodeStrict(raw, &v)
		p = v
	case EventReroute:
		var v ReroutePayload
		err = decodeStrict(raw, &v)
		p = v
	default:
		return nil, fmt.Errorf("%w: unknown type %q", ErrInvalidEvent, t)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %s payload: %v", ErrInvalidEvent, t, err)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

func decodeStrict(raw []byte, out any) error {
	if len(raw) == 0 {
		raw = []byte("{}")
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	return dec.Decode(out)
}

// EncodePayload marshals the payload body.
func EncodePayload(p EventPayload) ([]byte, error) {
	if p == nil {
		return nil, fmt.Errorf("%w: nil payload", ErrInvalidEvent)
	}
	return json.Marshal(p)
}

type eventJSON struct {
	ID       int64           `json:"id"`
	PlanID   string          `json:"plan_id,omitempty"`
	Type     EventType       `json:"type"`
	Source   string          `json:"source,omitempty"`
	Severity Severity        `json:"severity,omitempty"`
	TS       time.Time       `json:"ts"`
	Payload  json.RawMessage `json:"payload"`
}

// MarshalJSON emits the event with its payload inline.
func (e Event) MarshalJSON() ([]byte, error) {
	raw, err := EncodePayload(e.Payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(eventJSON{ID: e.ID, PlanID: e.PlanID, Type: e.Type, Source: e.Source, Severity: e.Severity, TS: e.TS, Payload: raw})
}

// UnmarshalJSON decodes and validates the tagged payload.
func (e *Event) UnmarshalJSON(data []byte) error {
	var v eventJSON
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	p, err := DecodePayload(v.Type, v.Payload)
	if err != nil {
		return err
	}
	*e = Event{ID: v.ID, PlanID: v.PlanID, Type: v.Type, Source: v.Source, Severity: v.Severity, TS: v.TS, Payload: p}
	return nil
}
