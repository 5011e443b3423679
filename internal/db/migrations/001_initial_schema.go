package migrations

// InitialSchema creates the bridge statistics table
var InitialSchema = &Migration{
	ID:   "001_initial_schema",
	Name: "001_initial_schema",
	UpSQL: `
		CREATE TABLE IF NOT EXISTS bridge_stats (
			time TIMESTAMPTZ NOT NULL,
			session_id TEXT,
			received BIGINT NOT NULL,
			parsed BIGINT NOT NULL,
			converted BIGINT NOT NULL,
			published BIGINT NOT NULL,
			errors BIGINT NOT NULL,
			rate_limited BIGINT NOT NULL,
			duplicate BIGINT NOT NULL,
			too_old BIGINT NOT NULL,
			invalid BIGINT NOT NULL,
			active_devices INTEGER NOT NULL,
			cache_size INTEGER NOT NULL,
			connected BOOLEAN NOT NULL,
			reconnect_attempts INTEGER NOT NULL,
			uptime_seconds DOUBLE PRECISION NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_bridge_stats_time ON bridge_stats (time DESC);
		CREATE INDEX IF NOT EXISTS idx_bridge_stats_session ON bridge_stats (session_id);
	`,
	DownSQL: `
		DROP TABLE IF EXISTS bridge_stats;
	`,
}
