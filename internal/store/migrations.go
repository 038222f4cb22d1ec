package store

const schema = `
-- Monitored servers
CREATE TABLE IF NOT EXISTS servers (
    id              INTEGER PRIMARY KEY AUTOINCREMENT,
    name            TEXT NOT NULL,
    host_name       TEXT NOT NULL DEFAULT '',
    ip_address      TEXT NOT NULL DEFAULT '',
    description     TEXT NOT NULL DEFAULT '',
    location        TEXT NOT NULL DEFAULT '',
    os              TEXT NOT NULL DEFAULT '',
    status          INTEGER NOT NULL DEFAULT 0,
    is_active       INTEGER NOT NULL DEFAULT 1,
    is_host         INTEGER NOT NULL DEFAULT 0,
    cpu_warning     REAL NOT NULL,
    cpu_critical    REAL NOT NULL,
    mem_warning     REAL NOT NULL,
    mem_critical    REAL NOT NULL,
    disk_warning    REAL NOT NULL,
    disk_critical   REAL NOT NULL,
    created_at      INTEGER NOT NULL,
    updated_at      INTEGER NOT NULL
);

-- Point-in-time metric snapshots per server
CREATE TABLE IF NOT EXISTS metric_snapshots (
    id              INTEGER PRIMARY KEY AUTOINCREMENT,
    server_id       INTEGER NOT NULL,
    cpu_pct         REAL NOT NULL,
    mem_pct         REAL NOT NULL,
    disk_pct        REAL NOT NULL,
    mem_used        INTEGER NOT NULL,
    mem_total       INTEGER NOT NULL,
    net_in          REAL NOT NULL,
    net_out         REAL NOT NULL,
    processes       INTEGER NOT NULL,
    uptime_secs     REAL NOT NULL,
    ts              INTEGER NOT NULL,
    FOREIGN KEY (server_id) REFERENCES servers(id)
);
CREATE INDEX IF NOT EXISTS idx_metric_snapshots_server_ts
    ON metric_snapshots(server_id, ts);

-- Per-volume disk readings, one row per volume per collection
CREATE TABLE IF NOT EXISTS disk_snapshots (
    id              INTEGER PRIMARY KEY AUTOINCREMENT,
    server_id       INTEGER NOT NULL,
    volume          TEXT NOT NULL,
    free_mb         INTEGER NOT NULL,
    total_mb        INTEGER NOT NULL,
    used_pct        REAL NOT NULL,
    ts              INTEGER NOT NULL,
    FOREIGN KEY (server_id) REFERENCES servers(id)
);
CREATE INDEX IF NOT EXISTS idx_disk_snapshots_server_ts
    ON disk_snapshots(server_id, ts);

-- Alerts raised by threshold evaluation
CREATE TABLE IF NOT EXISTS alerts (
    id              INTEGER PRIMARY KEY AUTOINCREMENT,
    server_id       INTEGER NOT NULL,
    title           TEXT NOT NULL,
    message         TEXT NOT NULL,
    status          INTEGER NOT NULL DEFAULT 0,
    severity        INTEGER NOT NULL,
    metric_type     TEXT NOT NULL DEFAULT '',
    metric_value    REAL NOT NULL DEFAULT 0,
    threshold_value REAL NOT NULL DEFAULT 0,
    created_at      INTEGER NOT NULL,
    acked_at        INTEGER,
    acked_by        TEXT,
    resolved_at     INTEGER,
    resolved_by     TEXT,
    resolution      TEXT NOT NULL DEFAULT '',
    FOREIGN KEY (server_id) REFERENCES servers(id)
);
CREATE INDEX IF NOT EXISTS idx_alerts_server_title
    ON alerts(server_id, title, status, created_at);
CREATE INDEX IF NOT EXISTS idx_alerts_status ON alerts(status);

-- Recurring report schedules
CREATE TABLE IF NOT EXISTS report_schedules (
    id              INTEGER PRIMARY KEY AUTOINCREMENT,
    server_id       INTEGER NOT NULL,
    name            TEXT NOT NULL,
    description     TEXT NOT NULL DEFAULT '',
    cron_expr       TEXT NOT NULL,
    is_active       INTEGER NOT NULL DEFAULT 1,
    last_run_at     INTEGER,
    next_run_at     INTEGER NOT NULL,
    created_by      TEXT NOT NULL DEFAULT '',
    created_at      INTEGER NOT NULL,
    FOREIGN KEY (server_id) REFERENCES servers(id)
);

-- Generated reports
CREATE TABLE IF NOT EXISTS reports (
    id              INTEGER PRIMARY KEY AUTOINCREMENT,
    schedule_id     INTEGER,
    server_id       INTEGER NOT NULL,
    title           TEXT NOT NULL,
    status          INTEGER NOT NULL DEFAULT 0,
    range_start     INTEGER NOT NULL,
    range_end       INTEGER NOT NULL,
    requested_by    TEXT NOT NULL DEFAULT '',
    created_at      INTEGER NOT NULL,
    FOREIGN KEY (server_id) REFERENCES servers(id)
);
`
