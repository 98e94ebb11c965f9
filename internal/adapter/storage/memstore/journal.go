package memstore

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/Mo-Nouir/database-tests/internal/core/domain"
	"github.com/Mo-Nouir/database-tests/internal/core/ledger"
)

type op string

const (
	opCreateAccount op = "create_account"
	opSetStatus     op = "set_status"
	opApply         op = "apply"
	opImport        op = "import"
)

type entry struct {
	Op          op                     `json:"op"`
	Account     *domain.Account        `json:"account,omitempty"`
	AccountID   string                 `json:"account_id,omitempty"`
	Status      domain.AccountStatus   `json:"status,omitempty"`
	Updates     []ledger.AccountUpdate `json:"updates,omitempty"`
	Transaction *domain.Transaction    `json:"transaction,omitempty"`
}

// journalFile is the part of *os.File the journal writes through.
type journalFile interface {
	io.Writer
	io.Seeker
	Sync() error
	Truncate(size int64) error
	Close() error
}

type journal struct {
	f    journalFile
	size int64
	// broken is set when a failed append could not be rolled back; the file
	// may then hold an unacknowledged entry and every later append refuses.
	broken error
}

// openJournal replays path through fn and leaves the file open for appends.
// A final line without its newline is a write torn by a crash: it was never
// acknowledged, so it is cut off instead of failing the open.
func openJournal(path string, fn func(entry) error) (*journal, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}

	data, err := io.ReadAll(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("read journal: %w", err)
	}

	var good int64
	for len(data) > 0 {
		i := bytes.IndexByte(data, '\n')
		if i < 0 {
			break
		}
		line := data[:i]
		data = data[i+1:]

		if len(bytes.TrimSpace(line)) > 0 {
			var e entry
			if err := json.Unmarshal(line, &e); err != nil {
				f.Close()
				return nil, fmt.Errorf("journal %s corrupt at byte %d: %w", path, good, err)
			}
			if err := fn(e); err != nil {
				f.Close()
				return nil, fmt.Errorf("journal %s replay at byte %d: %w", path, good, err)
			}
		}
		good += int64(i + 1)
	}

	if err := f.Truncate(good); err != nil {
		f.Close()
		return nil, fmt.Errorf("truncate journal: %w", err)
	}
	if _, err := f.Seek(good, io.SeekStart); err != nil {
		f.Close()
		return nil, fmt.Errorf("seek journal: %w", err)
	}
	return &journal{f: f, size: good}, nil
}

// append writes e and fsyncs. On failure the file is cut back to its
// previous size so an unacknowledged entry is never replayed.
func (j *journal) append(e entry) error {
	if j.broken != nil {
		return j.broken
	}
	line, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encode journal entry: %w", err)
	}
	line = append(line, '\n')

	if _, err := j.f.Write(line); err != nil {
		return j.rollback(fmt.Errorf("write journal: %w", err))
	}
	if err := j.f.Sync(); err != nil {
		return j.rollback(fmt.Errorf("sync journal: %w", err))
	}
	j.size += int64(len(line))
	return nil
}

func (j *journal) rollback(cause error) error {
	err := j.f.Truncate(j.size)
	if err == nil {
		_, err = j.f.Seek(j.size, io.SeekStart)
	}
	if err != nil {
		j.broken = fmt.Errorf("journal unusable after failed append: %w", errors.Join(cause, err))
		return j.broken
	}
	return cause
}

func (j *journal) close() error {
	return j.f.Close()
}

func (s *Store) replay(e entry) error {
	switch e.Op {
	case opCreateAccount:
		if e.Account == nil {
			return errors.New("create_account without account")
		}
		s.accounts[e.Account.ID] = *e.Account
	case opSetStatus:
		account, ok := s.accounts[e.AccountID]
		if !ok {
			return fmt.Errorf("%w: %s", domain.ErrAccountNotFound, e.AccountID)
		}
		account.Status = e.Status
		s.accounts[e.AccountID] = account
	case opApply:
		if e.Transaction == nil {
			return errors.New("apply without transaction")
		}
		s.apply(e.Updates, *e.Transaction)
	case opImport:
		if e.Transaction == nil {
			return errors.New("import without transaction")
		}
		s.importTx(*e.Transaction)
	default:
		return fmt.Errorf("unknown journal op %q", e.Op)
	}
	return nil
}
