package sqlite

import (
	"context"

	"github.com/xraph/grove/migrate"
)

// Migrations is the grove migration group for the Tollgate store (SQLite).
var Migrations = migrate.NewGroup("tollgate")

func init() {
	Migrations.MustRegister(
		&migrate.Migration{
			Name:    "create_tollgate_vaults",
			Version: "20250101000001",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS tollgate_vaults (
    id         TEXT PRIMARY KEY,
    owner      TEXT NOT NULL DEFAULT '',
    created_at TEXT NOT NULL DEFAULT (datetime('now')),
    updated_at TEXT NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_tollgate_vaults_owner ON tollgate_vaults (owner);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS tollgate_vaults`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_tollgate_listings",
			Version: "20250101000002",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS tollgate_listings (
    owner      TEXT NOT NULL,
    vault_id   TEXT NOT NULL,
    image_url  TEXT NOT NULL DEFAULT '',
    created_at TEXT NOT NULL DEFAULT (datetime('now')),
    updated_at TEXT NOT NULL DEFAULT (datetime('now')),
    PRIMARY KEY (owner, vault_id)
);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS tollgate_listings`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_tollgate_terms",
			Version: "20250101000003",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS tollgate_terms (
    owner              TEXT NOT NULL,
    vault_id           TEXT NOT NULL,
    price_amount_cents INTEGER NOT NULL DEFAULT 0,
    price_currency     TEXT NOT NULL DEFAULT '',
    duration_ns        INTEGER NOT NULL DEFAULT 0,
    co_owner           TEXT NOT NULL DEFAULT '',
    split_fee_bps      INTEGER NOT NULL DEFAULT 0,
    created_at         TEXT NOT NULL DEFAULT (datetime('now')),
    updated_at         TEXT NOT NULL DEFAULT (datetime('now')),
    PRIMARY KEY (owner, vault_id)
);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS tollgate_terms`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_tollgate_grants",
			Version: "20250101000004",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS tollgate_grants (
    id           INTEGER PRIMARY KEY,
    holder       TEXT NOT NULL DEFAULT '',
    ref_owner    TEXT NOT NULL DEFAULT '',
    ref_vault_id TEXT NOT NULL DEFAULT '',
    expires_at   TEXT NOT NULL,
    minted_at    TEXT NOT NULL,
    created_at   TEXT NOT NULL DEFAULT (datetime('now')),
    updated_at   TEXT NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_tollgate_grants_holder ON tollgate_grants (holder);
CREATE INDEX IF NOT EXISTS idx_tollgate_grants_ref ON tollgate_grants (holder, ref_owner, ref_vault_id);
CREATE INDEX IF NOT EXISTS idx_tollgate_grants_expires ON tollgate_grants (expires_at);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS tollgate_grants`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_tollgate_deals",
			Version: "20250101000005",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS tollgate_deals (
    grant_id           INTEGER PRIMARY KEY,
    owner              TEXT NOT NULL DEFAULT '',
    image_url          TEXT NOT NULL DEFAULT '',
    price_amount_cents INTEGER NOT NULL DEFAULT 0,
    price_currency     TEXT NOT NULL DEFAULT '',
    created_at         TEXT NOT NULL DEFAULT (datetime('now')),
    updated_at         TEXT NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_tollgate_deals_owner ON tollgate_deals (owner);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS tollgate_deals`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_tollgate_balances",
			Version: "20250101000006",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS tollgate_balances (
    account      TEXT PRIMARY KEY,
    amount_cents INTEGER NOT NULL DEFAULT 0,
    currency     TEXT NOT NULL DEFAULT '',
    created_at   TEXT NOT NULL DEFAULT (datetime('now')),
    updated_at   TEXT NOT NULL DEFAULT (datetime('now'))
);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS tollgate_balances`)
				return err
			},
		},
	)
}
