//go:build integration

package containers

import (
	"context"
	"database/sql"
	"fmt"
	"testing"

	_ "github.com/lib/pq"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
)

// schema provisions the tables the stars ledger expects. Production deploys
// run the same DDL through the regular migration pipeline.
const schema = `
CREATE TABLE IF NOT EXISTS balances (
	identity_key  TEXT PRIMARY KEY,
	current_stars INTEGER NOT NULL DEFAULT 0 CHECK (current_stars >= 0),
	updated_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS star_transactions (
	id           UUID PRIMARY KEY,
	identity_key TEXT NOT NULL,
	amount       INTEGER NOT NULL,
	type         TEXT NOT NULL,
	description  TEXT NOT NULL DEFAULT '',
	created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS star_tx_identity_recency_idx
	ON star_transactions (identity_key, created_at DESC);
CREATE INDEX IF NOT EXISTS star_tx_identity_type_idx
	ON star_transactions (identity_key, type, created_at);

CREATE TABLE IF NOT EXISTS referrals (
	id               UUID PRIMARY KEY,
	referrer_key     TEXT NOT NULL,
	referred_user_id UUID NOT NULL,
	bonus_amount     INTEGER NOT NULL,
	created_at       TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	UNIQUE (referrer_key, referred_user_id)
);

CREATE TABLE IF NOT EXISTS share_visit_awards (
	id                UUID PRIMARY KEY,
	shared_content_id TEXT NOT NULL,
	viewer_key        TEXT NOT NULL,
	stars_awarded     INTEGER NOT NULL DEFAULT 0,
	created_at        TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	UNIQUE (shared_content_id, viewer_key)
);

CREATE TABLE IF NOT EXISTS ad_watches (
	id           UUID PRIMARY KEY,
	identity_key TEXT NOT NULL,
	client_ip    TEXT NOT NULL DEFAULT '',
	stars_earned INTEGER NOT NULL,
	created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS ad_watches_identity_idx
	ON ad_watches (identity_key, created_at);

CREATE TABLE IF NOT EXISTS shared_readings (
	content_id TEXT PRIMARY KEY,
	owner_key  TEXT,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
`

// PostgresContainer wraps a testcontainers Postgres instance with the ledger
// schema applied.
type PostgresContainer struct {
	Container testcontainers.Container
	DB        *sql.DB
}

// NewPostgresContainer starts a Postgres container and applies the schema.
func NewPostgresContainer(t *testing.T) *PostgresContainer {
	t.Helper()

	ctx := context.Background()

	container, err := tcpostgres.Run(ctx, "postgres:16-alpine",
		tcpostgres.WithDatabase("arcana"),
		tcpostgres.WithUsername("arcana"),
		tcpostgres.WithPassword("arcana"),
		tcpostgres.BasicWaitStrategies(),
	)
	if err != nil {
		t.Fatalf("failed to start postgres container: %v", err)
	}

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		_ = container.Terminate(ctx)
		t.Fatalf("failed to get postgres connection string: %v", err)
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		_ = container.Terminate(ctx)
		t.Fatalf("failed to open postgres connection: %v", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		_ = container.Terminate(ctx)
		t.Fatalf("failed to ping postgres: %v", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		_ = container.Terminate(ctx)
		t.Fatalf("failed to apply schema: %v", err)
	}

	pc := &PostgresContainer{Container: container, DB: db}
	t.Cleanup(func() {
		_ = pc.DB.Close()
		_ = pc.Container.Terminate(context.Background())
	})
	return pc
}

// TruncateTables empties the given tables between tests.
func (p *PostgresContainer) TruncateTables(ctx context.Context, tables ...string) error {
	for _, table := range tables {
		if _, err := p.DB.ExecContext(ctx, fmt.Sprintf("TRUNCATE TABLE %s", table)); err != nil {
			return fmt.Errorf("truncate %s: %w", table, err)
		}
	}
	return nil
}
