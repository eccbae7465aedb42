package sqlite

import "github.com/xraph/streampass/store/sqlstore"

// Migrations is the SQLite schema, applied in Version order.
var Migrations = []sqlstore.Migration{
	{
		Version: "20240101000001",
		Name:    "create_streampass_passes",
		Up: `
CREATE TABLE IF NOT EXISTS streampass_passes (
    id             INTEGER PRIMARY KEY,
    owner          TEXT    NOT NULL,
    active         INTEGER NOT NULL DEFAULT 0,
    ttv            TEXT    NOT NULL DEFAULT '0',
    last_flow_rate TEXT    NOT NULL DEFAULT '0',
    last_update    INTEGER NOT NULL,
    created_at     INTEGER NOT NULL,
    updated_at     INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_streampass_passes_owner ON streampass_passes (owner, id);
`,
	},
	{
		Version: "20240101000002",
		Name:    "create_streampass_accounts",
		Up: `
CREATE TABLE IF NOT EXISTS streampass_accounts (
    address        TEXT PRIMARY KEY,
    active_pass_id INTEGER NOT NULL
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
    name  TEXT PRIMARY KEY,
    value INTEGER NOT NULL
);

INSERT INTO streampass_sequences (name, value) VALUES ('pass', 0) ON CONFLICT (name) DO NOTHING;
`,
	},
}
