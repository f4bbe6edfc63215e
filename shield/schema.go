package shield

import (
	"context"
	"database/sql"

	"github.com/hazyhaar/pinup/dbopen"
)

// Schema defines the SQLite tables used by shield middlewares:
//   - rate_limits: per-route rate limiting rules (used by RateLimiter)
//   - maintenance: global maintenance switch (used by MaintenanceMode)
//
// All statements are idempotent. The login route gets a default rule of ten
// attempts per minute per client IP.
const Schema = `
CREATE TABLE IF NOT EXISTS rate_limits (
    endpoint       TEXT PRIMARY KEY,
    max_requests   INTEGER NOT NULL DEFAULT 60,
    window_seconds INTEGER NOT NULL DEFAULT 60,
    enabled        INTEGER NOT NULL DEFAULT 1
);

CREATE TABLE IF NOT EXISTS maintenance (
    id      INTEGER PRIMARY KEY CHECK (id = 1),
    active  INTEGER NOT NULL DEFAULT 0,
    message TEXT NOT NULL DEFAULT 'pinup is being updated, please come back in a few minutes.',
    updated_at INTEGER NOT NULL DEFAULT 0
);

INSERT OR IGNORE INTO maintenance (id, active) VALUES (1, 0);

INSERT OR IGNORE INTO rate_limits (endpoint, max_requests, window_seconds)
VALUES ('POST /{project}/login', 10, 60), ('POST /api/auth/login', 10, 60);
`

// Init creates the shield tables if they don't exist.
func Init(db *sql.DB) error {
	return dbopen.Apply(context.Background(), db, "shield", Schema)
}
