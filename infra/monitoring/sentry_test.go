package monitoring

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/getsentry/sentry-go"

	coremon "github.com/kilianp07/freightplan/core/monitoring"
)

func TestNewSentryMonitorWithoutDSN(t *testing.T) {
	m, err := NewSentryMonitor(Config{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := m.(coremon.Nop); !ok {
		t.Fatalf("expected Nop monitor, got %T", m)
	}
}

func TestNewSentryMonitorRejectsBadDSN(t *testing.T) {
	if _, err := NewSentryMonitor(Config{DSN: "not a dsn"}); err == nil {
		t.Fatal("expected DSN error")
	}
}

func TestCaptureExceptionCarriesTags(t *testing.T) {
	var (
		mu     sync.Mutex
		events []*sentry.Event
	)
	client, err := sentry.NewClient(sentry.ClientOptions{
		Dsn: "https://public@sentry.example.com/1",
		BeforeSend: func(e *sentry.Event, _ *sentry.EventHint) *sentry.Event {
			mu.Lock()
			defer mu.Unlock()
			events = append(events, e)
			return nil
		},
	})
	if err != nil {
		t.Fatalf("client: %v", err)
	}
	m := &sentryMonitor{hub: sentry.NewHub(client, sentry.NewScope())}

	m.CaptureException(nil, nil)
	m.CaptureException(errors.New("save decision: boom"), map[string]string{"plan_id": "P-1"})
	m.Flush(time.Second)

	mu.Lock()
	defer mu.Unlock()
	if len(events) != 1 {
		t.Fatalf("events = %d, want 1", len(events))
	}
	if got := events[0].Tags["plan_id"]; got != "P-1" {
		t.Fatalf("plan_id tag = %q", got)
	}
}
