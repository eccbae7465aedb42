package postgres

import "github.com/xraph/streampass/store/sqlstore"

// Migrations is the PostgreSQL schema, applied in Version order.
var Migrations = []sqlstore.Migration{
	{
		Version: "20240101000001",
		Name:    "create_streampass_passes",
		Up: `
CREATE TABLE IF NOT EXISTS streampass_passes (
    id             BIGINT PRIMARY KEY,
    owner          TEXT          NOT NULL,
    active         BOOLEAN       NOT NULL DEFAULT FALSE,
    ttv            NUMERIC(78,0) NOT NULL DEFAULT 0 CHECK (ttv >= 0),
    last_flow_rate NUMERIC(78,0) NOT NULL DEFAULT 0 CHECK (last_flow_rate >= 0),
    last_update    BIGINT        NOT NULL,
    created_at     BIGINT        NOT NULL,
    updated_at     BIGINT        NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_streampass_passes_owner ON streampass_passes (owner, id);
`,
	},
	{
		Version: "20240101000002",
		Name:    "create_streampass_accounts",
		Up: `
CREATE TABLE IF NOT EXISTS streampass_accounts (
    address        TEXT   PRIMARY KEY,
    active_pass_id BIGINT NOT NULL
);
`,
	},
	{
		Version: "20240101000003",
		Name:    "create_streampass_settings",
		Up: `
CREATE TABLE IF NOT EXISTS streampass_settings (
    key   TEXT PRIMARY KEY,
    value TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS streampass_sequences (
    name  TEXT   PRIMARY KEY,
    value BIGINT NOT NULL
);

INSERT INTO streampass_sequences (name, value) VALUES ('pass', 0) ON CONFLICT (name) DO NOTHING;
`,
	},
}
