// Package legacy reads transaction ids from the system a ledger was migrated
// away from.
package legacy

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

const idColumn = "transaction_id"

// CSVSource reads a legacy export with a header row containing transaction_id.
type CSVSource struct {
	path string
}

func NewCSVSource(path string) *CSVSource {
	return &CSVSource{path: path}
}

func (s *CSVSource) TransactionIDs(ctx context.Context) ([]string, error) {
	f, err := os.Open(s.path)
	if err != nil {
		return nil, fmt.Errorf("open legacy export: %w", err)
	}
	defer f.Close()
	return ReadTransactionIDs(ctx, f)
}

// ReadTransactionIDs returns the transaction_id column of every data row.
// Blank ids are kept so a row count still matches the export.
func ReadTransactionIDs(ctx context.Context, r io.Reader) ([]string, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.ReuseRecord = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, errors.New("legacy export is empty")
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}

	col := -1
	for i, name := range header {
		if strings.EqualFold(strings.TrimSpace(strings.TrimPrefix(name, "\ufeff")), idColumn) {
			col = i
			break
		}
	}
	if col < 0 {
		return nil, fmt.Errorf("legacy export has no %s column", idColumn)
	}

	var ids []string
	for row := 2; ; row++ {
		if row%1024 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read row %d: %w", row, err)
		}
		if col >= len(rec) {
			return nil, fmt.Errorf("row %d: missing %s", row, idColumn)
		}
		ids = append(ids, strings.TrimSpace(rec[col]))
	}
	return ids, nil
}
