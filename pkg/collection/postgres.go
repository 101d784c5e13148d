package collection

import (
	"context"
	"errors"
	"fmt"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/lib/pq"
)

var _ Store = (*Postgres)(nil)

const defaultTable = "collection_items"

// Postgres stores every collection in one jsonb table keyed by (collection, key).
// The merge of Set happens inside the upsert.
type Postgres struct {
	name  string
	table string
	pool  *pgxpool.Pool

	listSQL string
	getSQL  string
	setSQL  string
}

func NewPostgres(pool *pgxpool.Pool, name string) *Postgres {
	return newPostgres(pool, name, defaultTable)
}

func newPostgres(pool *pgxpool.Pool, name, table string) *Postgres {
	t := pq.QuoteIdentifier(table)
	return &Postgres{
		name:    name,
		table:   t,
		pool:    pool,
		listSQL: fmt.Sprintf(`SELECT key FROM %s WHERE collection = $1 ORDER BY key;`, t),
		getSQL:  fmt.Sprintf(`SELECT props FROM %s WHERE collection = $1 AND key = $2;`, t),
		setSQL: fmt.Sprintf(`INSERT INTO %[1]s (collection, key, props) VALUES ($1, $2, $3)
			ON CONFLICT (collection, key) DO UPDATE SET props = %[1]s.props || EXCLUDED.props, updated_at = now()
			RETURNING props;`, t),
	}
}

// Migrate creates the backing table when missing.
func (p *Postgres) Migrate(ctx context.Context) error {
	_, err := p.pool.Exec(ctx, fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		collection text NOT NULL,
		key text NOT NULL,
		props jsonb NOT NULL DEFAULT '{}'::jsonb,
		created_at timestamptz NOT NULL DEFAULT now(),
		updated_at timestamptz NOT NULL DEFAULT now(),
		PRIMARY KEY (collection, key)
	);`, p.table))
	if err != nil {
		return fmt.Errorf("Migrate failed: %w", err)
	}
	return nil
}

func (p *Postgres) List(ctx context.Context) ([]Item, error) {
	rows, err := p.pool.Query(ctx, p.listSQL, p.name)
	if err != nil {
		return nil, unavailable("postgres.List", err)
	}
	defer rows.Close()

	list := make([]Item, 0)
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, unavailable("postgres.List", err)
		}
		list = append(list, Item{Collection: p.name, Key: key})
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("postgres.List", err)
	}
	return list, nil
}

func (p *Postgres) Get(ctx context.Context, key string) (Item, error) {
	var props Props
	err := p.pool.QueryRow(ctx, p.getSQL, p.name, key).Scan(&props)
	if errors.Is(err, pgx.ErrNoRows) {
		return Item{}, ErrNotFound
	}
	if err != nil {
		return Item{}, unavailable("postgres.Get", err)
	}
	return Item{Collection: p.name, Key: key, Props: props}, nil
}

func (p *Postgres) Set(ctx context.Context, key string, props Props) (Item, error) {
	if props == nil {
		props = Props{}
	}

	var stored Props
	if err := p.pool.QueryRow(ctx, p.setSQL, p.name, key, props).Scan(&stored); err != nil {
		return Item{}, unavailable("postgres.Set", err)
	}
	return Item{Collection: p.name, Key: key, Props: stored}, nil
}
