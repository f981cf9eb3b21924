package postgres

const schema = `
CREATE TABLE IF NOT EXISTS plans (
	id             TEXT PRIMARY KEY,
	status         TEXT NOT NULL,
	distance_km    DOUBLE PRECISION NOT NULL,
	delay          JSONB NOT NULL,
	weights        JSONB NOT NULL,
	decision       JSONB,
	was_rerouted   BOOLEAN NOT NULL DEFAULT FALSE,
	reroute_reason TEXT NOT NULL DEFAULT '',
	version        BIGINT NOT NULL,
	created_at     TIMESTAMPTZ NOT NULL,
	updated_at     TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS plans_status_idx ON plans (status);

CREATE TABLE IF NOT EXISTS events (
	id       BIGSERIAL PRIMARY KEY,
	plan_id  TEXT NOT NULL DEFAULT '',
	type     TEXT NOT NULL,
	source   TEXT NOT NULL DEFAULT '',
	severity TEXT NOT NULL DEFAULT '',
	ts       TIMESTAMPTZ NOT NULL,
	payload  JSONB NOT NULL
);
`
