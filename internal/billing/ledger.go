// Package billing implements the Postgres-backed credit ledger behind
// callsession.Billing: per-client balance lookup, call-duration billing and
// ad-hoc credit deduction (e.g. for a dispatched message), adapted from
// internal/trace's database/sql + pgx/v5/stdlib + embedded-migration shape.
package billing

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // registers "pgx" driver
	"github.com/google/uuid"

	"github.com/voicebridge/gateway/internal/callsession"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// creditSecondsPerUnit is the billing rate: one credit buys this many
// seconds of connected call time, per spec.md §4.6/§8 ("charge
// durationSeconds / 30 credits").
const creditSecondsPerUnit = 30.0

// Ledger persists client credit balances to PostgreSQL.
type Ledger struct {
	db *sql.DB
}

// Open connects to a PostgreSQL ledger database at connStr and applies any
// pending migrations.
func Open(connStr string) (*Ledger, error) {
	db, err := sql.Open("pgx", connStr)
	if err != nil {
		return nil, fmt.Errorf("billing open: %w", err)
	}
	if err = db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("billing ping: %w", err)
	}
	if err = migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("billing migrate: %w", err)
	}
	return &Ledger{db: db}, nil
}

func migrate(db *sql.DB) error {
	_, err := db.Exec(`CREATE TABLE IF NOT EXISTS schema_version (version INTEGER NOT NULL)`)
	if err != nil {
		return err
	}

	var current int
	row := db.QueryRow(`SELECT COALESCE(MAX(version), -1) FROM schema_version`)
	if err = row.Scan(&current); err != nil {
		return err
	}

	entries, err := migrationFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("read migrations dir: %w", err)
	}

	for i := current + 1; i < len(entries); i++ {
		data, readErr := migrationFS.ReadFile("migrations/" + entries[i].Name())
		if readErr != nil {
			return fmt.Errorf("read migration %d: %w", i, readErr)
		}
		if _, execErr := db.Exec(string(data)); execErr != nil {
			return fmt.Errorf("migration %d: %w", i, execErr)
		}
		if _, execErr := db.Exec(`INSERT INTO schema_version (version) VALUES ($1)`, i); execErr != nil {
			return fmt.Errorf("migration %d record: %w", i, execErr)
		}
	}
	return nil
}

// Close closes the database.
func (l *Ledger) Close() error {
	return l.db.Close()
}

// GetOrCreate returns clientID's account, provisioning a zero-balance row
// if none exists yet — a freshly configured client must be topped up
// externally before its first call can proceed.
func (l *Ledger) GetOrCreate(ctx context.Context, clientID string) (callsession.Account, error) {
	var balance float64
	err := l.db.QueryRowContext(ctx, `SELECT balance FROM client_accounts WHERE client_id = $1`, clientID).Scan(&balance)
	if err == sql.ErrNoRows {
		_, insertErr := l.db.ExecContext(ctx,
			`INSERT INTO client_accounts (client_id, balance) VALUES ($1, 0) ON CONFLICT (client_id) DO NOTHING`,
			clientID)
		if insertErr != nil {
			return callsession.Account{}, fmt.Errorf("provision account: %w", insertErr)
		}
		return callsession.Account{ClientID: clientID, Balance: 0}, nil
	}
	if err != nil {
		return callsession.Account{}, fmt.Errorf("lookup account: %w", err)
	}
	return callsession.Account{ClientID: clientID, Balance: balance}, nil
}

// BillCall charges clientID for seconds of connected call time and records
// the attribution in meta alongside the charge.
func (l *Ledger) BillCall(ctx context.Context, clientID string, seconds float64, meta callsession.BillMeta) (callsession.BillResult, error) {
	credits := seconds / creditSecondsPerUnit
	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return callsession.BillResult{}, fmt.Errorf("marshal bill meta: %w", err)
	}
	balanceAfter, err := l.applyDelta(ctx, clientID, -credits, "call", metaJSON)
	if err != nil {
		return callsession.BillResult{}, err
	}
	return callsession.BillResult{CreditsUsed: credits, BalanceAfter: balanceAfter}, nil
}

// UseCredits deducts an ad-hoc credit charge (e.g. a dispatched message),
// independent of call duration.
func (l *Ledger) UseCredits(ctx context.Context, clientID string, credits float64, reason string, meta map[string]string) error {
	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("marshal use-credits meta: %w", err)
	}
	_, err = l.applyDelta(ctx, clientID, -credits, reason, metaJSON)
	return err
}

func (l *Ledger) applyDelta(ctx context.Context, clientID string, delta float64, reason string, metaJSON []byte) (float64, error) {
	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var balance float64
	err = tx.QueryRowContext(ctx,
		`UPDATE client_accounts SET balance = balance + $1, updated_at = $2 WHERE client_id = $3 RETURNING balance`,
		delta, time.Now().UTC(), clientID,
	).Scan(&balance)
	if err != nil {
		return 0, fmt.Errorf("apply delta: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO credit_transactions (id, client_id, delta, reason, metadata) VALUES ($1, $2, $3, $4, $5)`,
		uuid.NewString(), clientID, delta, reason, metaJSON,
	)
	if err != nil {
		return 0, fmt.Errorf("record transaction: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return balance, nil
}
