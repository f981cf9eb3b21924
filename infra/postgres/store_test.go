package postgres

import (
	"context"
	"fmt"
	"os/exec"
	"testing"
	"time"

	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/kilianp07/freightplan/core/model"
	"github.com/kilianp07/freightplan/core/store"
	"github.com/kilianp07/freightplan/core/store/storetest"
)

func startPostgres(ctx context.Context, t *testing.T) (tc.Container, string) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "postgres:16-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "freight",
			"POSTGRES_PASSWORD": "freight",
			"POSTGRES_DB":       "freight",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}
	cont, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{ContainerRequest: req, Started: true})
	if err != nil {
		t.Skipf("unable to start postgres container: %v", err)
	}
	host, err := cont.Host(ctx)
	if err != nil {
		t.Fatalf("host: %v", err)
	}
	port, err := cont.MappedPort(ctx, "5432")
	if err != nil {
		t.Fatalf("port: %v", err)
	}
	dsn := fmt.Sprintf("postgres://freight:freight@%s:%s/freight?sslmode=disable", host, port.Port())
	return cont, dsn
}

func TestPostgresStore(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping postgres container test in short mode")
	}
	if _, err := exec.LookPath("docker"); err != nil {
		t.Skip("docker not installed")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()

	cont, dsn := startPostgres(ctx, t)
	defer func() { _ = cont.Terminate(context.Background()) }()

	s, err := New(ctx, Config{DSN: dsn, MaxConns: 8}, nil)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer func() { _ = s.Close() }()

	storetest.Run(t, func(t *testing.T) store.Store {
		if _, err := s.pool.Exec(ctx, `TRUNCATE plans, events RESTART IDENTITY`); err != nil {
			t.Fatalf("truncate: %v", err)
		}
		return s
	})

	t.Run("SkipsUndecodableEvents", func(t *testing.T) {
		if _, err := s.pool.Exec(ctx, `TRUNCATE events RESTART IDENTITY`); err != nil {
			t.Fatalf("truncate: %v", err)
		}
		if _, err := s.pool.Exec(ctx, `INSERT INTO events (type, ts, payload) VALUES ('traffic', now(), '{"congestion_index": 7}')`); err != nil {
			t.Fatalf("insert: %v", err)
		}
		e, err := model.NewEvent("test", model.SeverityHigh, model.WeatherPayload{PrecipitationMM: 12})
		if err != nil {
			t.Fatal(err)
		}
		if _, err := s.AppendEvent(ctx, e); err != nil {
			t.Fatal(err)
		}
		got, err := s.RecentEvents(ctx, 10)
		if err != nil {
			t.Fatal(err)
		}
		if len(got) != 1 || got[0].Type != model.EventWeather {
			t.Fatalf("expected only the weather event, got %+v", got)
		}
	})
}

func TestConfigValidate(t *testing.T) {
	var c Config
	c.SetDefaults()
	if err := c.Validate(); err == nil {
		t.Fatal("expected missing dsn error")
	}
	c.DSN = "postgres://localhost/x"
	c.MinConns = 20
	if err := c.Validate(); err == nil {
		t.Fatal("expected min > max error")
	}
	c.MinConns = 2
	if err := c.Validate(); err != nil {
		t.Fatalf("unexpected error %v", err)
	}
	if c.MaxConns != 10 || c.HealthCheckPeriod != time.Minute {
		t.Fatalf("defaults not applied: %+v", c)
	}
}
