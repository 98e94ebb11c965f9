package transfer

import (
	"fmt"
	"time"

	"github.com/Mo-Nouir/database-tests/internal/core/domain"
)

const DefaultLockTimeout = 5 * time.Second

// Policy holds the business knobs of the engine.
type Policy struct {
	// Rounding applies when a cross-currency credit lands between two minor units.
	Rounding domain.RoundingMode
	// MinimumBalance is the floor a debit may not cross, in source minor units.
	MinimumBalance int64
	// LockTimeout bounds how long a transfer waits for its account locks.
	LockTimeout time.Duration
}

func DefaultPolicy() Policy {
	return Policy{
		Rounding:    domain.RoundHalfEven,
		LockTimeout: DefaultLockTimeout,
	}
}

func (p Policy) validate() (Policy, error) {
	mode, err := domain.ParseRoundingMode(string(p.Rounding))
	if err != nil {
		return p, err
	}
	p.Rounding = mode
	// Overdraft accounts are not supported; the floor can only be raised.
	if p.MinimumBalance < 0 {
		return p, fmt.Errorf("minimum balance %d: must not be negative", p.MinimumBalance)
	}
	if p.LockTimeout <= 0 {
		p.LockTimeout = DefaultLockTimeout
	}
	return p, nil
}
