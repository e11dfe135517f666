package store

import (
	"context"
	"fmt"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"

	"github.com/anusha9573/SmartRefridgerator/internal/inventory"
	"github.com/anusha9573/SmartRefridgerator/internal/logger"
	"github.com/anusha9573/SmartRefridgerator/pkg/types"
)

// PostgresLedger keeps items in a table with name as primary key and a
// non-negative quantity check.
type PostgresLedger struct {
	pool      *pgxpool.Pool
	table     string
	closeOnce sync.Once
}

// OpenPostgres creates the pool, pings, and creates the table if missing.
func OpenPostgres(ctx context.Context, cfg Config) (*PostgresLedger, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.URI)
	if err != nil {
		return nil, errors.Wrap(err, "store: invalid postgres config")
	}
	if cfg.MinConns > 0 {
		poolConfig.MinConns = cfg.MinConns
	}
	if cfg.MaxConns > 0 {
		poolConfig.MaxConns = cfg.MaxConns
	}
	if cfg.ConnectTimeout > 0 {
		poolConfig.ConnConfig.ConnectTimeout = cfg.ConnectTimeout
	}

	cctx, cancel := withTimeout(ctx, cfg.ConnectTimeout)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(cctx, poolConfig)
	if err != nil {
		return nil, errors.Wrap(err, "store: create postgres pool")
	}
	if err := pool.Ping(cctx); err != nil {
		pool.Close()
		return nil, errors.Wrapf(err, "store: postgres ping %s", Redact(cfg.URI))
	}

	p := &PostgresLedger{pool: pool, table: pgx.Identifier{cfg.Collection}.Sanitize()}
	if err := p.migrate(cctx); err != nil {
		pool.Close()
		return nil, err
	}

	logger.Info("Store", "Postgres ledger ready: host=%s port=%d db=%s table=%s",
		poolConfig.ConnConfig.Host, poolConfig.ConnConfig.Port, poolConfig.ConnConfig.Database, cfg.Collection)
	return p, nil
}

func (p *PostgresLedger) migrate(ctx context.Context) error {
	_, err := p.pool.Exec(ctx, fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		name     TEXT PRIMARY KEY,
		quantity INTEGER NOT NULL CHECK (quantity >= 0),
		unit     TEXT
	)`, p.table))
	return errors.Wrap(err, "store: create items table")
}

// Find implements inventory.Ledger.
func (p *PostgresLedger) Find(ctx context.Context, name string) (types.InventoryRecord, bool, error) {
	rec := types.InventoryRecord{}
	err := p.pool.QueryRow(ctx,
		fmt.Sprintf(`SELECT name, quantity, unit FROM %s WHERE name = $1`, p.table), name,
	).Scan(&rec.Name, &rec.Quantity, &rec.Unit)
	if errors.Is(err, pgx.ErrNoRows) {
		return types.InventoryRecord{}, false, nil
	}
	if err != nil {
		return types.InventoryRecord{}, false, errors.Wrapf(err, "store: find %s", name)
	}
	return rec, true, nil
}

// Increment inserts {name, n, NULL} or adds n in one statement.
func (p *PostgresLedger) Increment(ctx context.Context, name string, n int) (int, error) {
	var q int
	err := p.pool.QueryRow(ctx, fmt.Sprintf(`INSERT INTO %[1]s (name, quantity, unit) VALUES ($1, $2, NULL)
		ON CONFLICT (name) DO UPDATE SET quantity = %[1]s.quantity + EXCLUDED.quantity
		RETURNING quantity`, p.table), name, n).Scan(&q)
	if err != nil {
		return 0, errors.Wrapf(pgWriteError(err), "store: increment %s", name)
	}
	return q, nil
}

// Decrement subtracts n with a floor of zero. Absent rows are reported, not created.
func (p *PostgresLedger) Decrement(ctx context.Context, name string, n int) (int, bool, error) {
	var q int
	err := p.pool.QueryRow(ctx, fmt.Sprintf(`UPDATE %s SET quantity = GREATEST(0, quantity - $2)
		WHERE name = $1 RETURNING quantity`, p.table), name, n).Scan(&q)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, errors.Wrapf(pgWriteError(err), "store: decrement %s", name)
	}
	return q, true, nil
}

// pgWriteError marks failures pgconn reports as never sent to the server.
func pgWriteError(err error) error {
	if pgconn.SafeToRetry(err) {
		return inventory.NotApplied(err)
	}
	return err
}

// List implements inventory.Ledger.
func (p *PostgresLedger) List(ctx context.Context) ([]types.InventoryRecord, error) {
	rows, err := p.pool.Query(ctx, fmt.Sprintf(`SELECT name, quantity, unit FROM %s ORDER BY name`, p.table))
	if err != nil {
		return nil, errors.Wrap(err, "store: list")
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (types.InventoryRecord, error) {
		var rec types.InventoryRecord
		err := row.Scan(&rec.Name, &rec.Quantity, &rec.Unit)
		return rec, err
	})
	if err != nil {
		return nil, errors.Wrap(err, "store: list scan")
	}
	return out, nil
}

// Close releases the pool. Safe to call more than once.
func (p *PostgresLedger) Close(context.Context) error {
	p.closeOnce.Do(p.pool.Close)
	return nil
}
