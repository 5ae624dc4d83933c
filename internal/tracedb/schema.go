package tracedb

const schema = `
CREATE TABLE IF NOT EXISTS trace_info (
	trace_id         TEXT PRIMARY KEY,
	experiment_id    TEXT NOT NULL,
	request_time     INTEGER NOT NULL DEFAULT 0,
	duration_ms      INTEGER NOT NULL DEFAULT 0,
	state            TEXT NOT NULL DEFAULT '',
	request_preview  TEXT NOT NULL DEFAULT '',
	response_preview TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_trace_info_experiment ON trace_info(experiment_id);
CREATE INDEX IF NOT EXISTS idx_trace_info_state ON trace_info(state);

CREATE TABLE IF NOT EXISTS trace_tags (
	trace_id TEXT NOT NULL,
	key      TEXT NOT NULL,
	value    TEXT NOT NULL,
	PRIMARY KEY (trace_id, key),
	FOREIGN KEY (trace_id) REFERENCES trace_info(trace_id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_trace_tags_key_value ON trace_tags(key, value);
`
