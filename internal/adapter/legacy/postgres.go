package legacy

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"
)

// PostgresSource reads ids from a table in the legacy database through lib/pq.
type PostgresSource struct {
	db    *sql.DB
	table string
}

// OpenPostgres connects to the legacy database. The caller closes the source.
func OpenPostgres(ctx context.Context, dsn, table string) (*PostgresSource, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open legacy database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping legacy database: %w", err)
	}
	return NewPostgresSource(db, table), nil
}

func NewPostgresSource(db *sql.DB, table string) *PostgresSource {
	if table == "" {
		table = "transactions"
	}
	return &PostgresSource{db: db, table: table}
}

func (s *PostgresSource) TransactionIDs(ctx context.Context) ([]string, error) {
	query := fmt.Sprintf(`SELECT transaction_id::text FROM %s`, pq.QuoteIdentifier(s.table))

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query legacy %s: %w", s.table, err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id sql.NullString
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id.String)
	}
	return ids, rows.Err()
}

func (s *PostgresSource) Close() error {
	return s.db.Close()
}
