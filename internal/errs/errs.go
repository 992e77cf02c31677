// Package errs implements the PimBridge error taxonomy: InvariantViolation
// (fatal, panic-worthy), TransientMiss (recovered locally by re-routing),
// and StaleBookkeeping (recovered periodically by the manager). All three
// wrap github.com/pkg/errors so call sites keep a stack trace.
package errs

import (
	"fmt"

	"github.com/pkg/errors"
)

// InvariantViolation marks a condition that must never happen in a
// correct run: duplicate packet identity, a timestamp mismatch on
// dequeue, an impossible checkAvailable code, or a remap table in a
// contradictory state. The only caller-visible failure mode is the
// simulator aborting on this error.
type InvariantViolation struct {
	cause error
}

func (e *InvariantViolation) Error() string { return "invariant violation: " + e.cause.Error() }
func (e *InvariantViolation) Unwrap() error { return e.cause }

// NewInvariantViolation builds an InvariantViolation from a formatted
// message, carrying a stack trace via pkg/errors.
func NewInvariantViolation(format string, args ...any) *InvariantViolation {
	return &InvariantViolation{cause: errors.Errorf(format, args...)}
}

// TransientMiss marks a packet that arrived at a module which has since
// lent the page elsewhere; the caller re-routes via handleOutPacket and
// this is not an error the simulator ever sees.
type TransientMiss struct {
	Addr fmt.Stringer
}

func (e *TransientMiss) Error() string { return "transient miss for " + e.Addr.String() }

// NewTransientMiss builds a TransientMiss for addr.
func NewTransientMiss(addr fmt.Stringer) *TransientMiss {
	return &TransientMiss{Addr: addr}
}

// StaleBookkeeping marks a toStealSize reservation with no matching
// inbound task, reset by CommModuleManager.clearStaleToSteal.
type StaleBookkeeping struct {
	Bank int32
}

func (e *StaleBookkeeping) Error() string {
	return errors.Errorf("stale toSteal bookkeeping on bank %d", e.Bank).Error()
}

// NewStaleBookkeeping builds a StaleBookkeeping for bank.
func NewStaleBookkeeping(bank int32) *StaleBookkeeping {
	return &StaleBookkeeping{Bank: bank}
}
