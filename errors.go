package tollgate

import (
	"errors"
	"fmt"
	"time"

	"github.com/xraph/tollgate/settlement"
	"github.com/xraph/tollgate/types"
)

// Sentinel errors, grouped the way callers branch on them.
var (
	// Validation errors
	ErrEmptyIdentifier = errors.New("tollgate: empty vault identifier")
	ErrZeroPrincipal   = errors.New("tollgate: zero principal")
	ErrInvalidFee      = errors.New("tollgate: split fee outside 0-10000 basis points")
	ErrSameCoOwner     = errors.New("tollgate: co-owner must differ from owner")
	ErrInvalidAmount   = errors.New("tollgate: amount must be positive")

	// Authorization errors
	ErrNotVaultOwner  = errors.New("tollgate: caller does not own vault")
	ErrNotGrantHolder = errors.New("tollgate: caller does not hold grant")

	// State-conflict errors
	ErrVaultAlreadyRegistered = errors.New("tollgate: vault already registered")
	ErrAlreadyEntitled        = errors.New("tollgate: holder already has a valid grant for vault")

	// Not-found errors
	ErrVaultNotFound   = errors.New("tollgate: vault not found")
	ErrTermsNotFound   = errors.New("tollgate: no access terms for vault")
	ErrListingNotFound = errors.New("tollgate: listing not found")
	ErrGrantNotFound   = errors.New("tollgate: grant not found")
	ErrDealNotFound    = errors.New("tollgate: deal not found")

	// Payment and temporal errors
	ErrInsufficientFunds     = errors.New("tollgate: payment below price")
	ErrInsufficientBalance   = errors.New("tollgate: account balance too low")
	ErrTransferLocked        = errors.New("tollgate: grant transfer locked")
	ErrTreasuryNotConfigured = errors.New("tollgate: platform fee set but no treasury account")

	// Store errors
	ErrStoreNotReady   = errors.New("tollgate: store not ready")
	ErrStoreClosed     = errors.New("tollgate: store is closed")
	ErrMigrationFailed = errors.New("tollgate: migration failed")
)

// InsufficientFundsError reports a payment below the listed price. It
// carries the required price so callers can resubmit; errors.Is matches
// ErrInsufficientFunds.
type InsufficientFundsError struct {
	Required types.Money
	Paid     types.Money
}

func (e *InsufficientFundsError) Error() string {
	return fmt.Sprintf("tollgate: insufficient payment: paid %s, price %s", e.Paid, e.Required)
}

func (e *InsufficientFundsError) Unwrap() error { return ErrInsufficientFunds }

// TransferLockedError reports a transfer attempted inside the post-mint
// lock window. errors.Is matches ErrTransferLocked.
type TransferLockedError struct {
	GrantID   uint64
	UnlocksAt time.Time
}

func (e *TransferLockedError) Error() string {
	return fmt.Sprintf("tollgate: grant %d locked until %s", e.GrantID, e.UnlocksAt.Format(time.RFC3339))
}

func (e *TransferLockedError) Unwrap() error { return ErrTransferLocked }

// SettlementError reports a failed transfer leg. It is fatal to the
// purchase it belongs to: no entitlement was issued and no payee keeps
// funds. Unwrap exposes the underlying transfer failure.
type SettlementError struct {
	Leg    settlement.LegKind
	From   types.Principal
	To     types.Principal
	Amount types.Money
	Err    error
}

func (e *SettlementError) Error() string {
	return fmt.Sprintf("tollgate: settlement leg %s (%s from %s to %s) failed: %v",
		e.Leg, e.Amount, e.From, e.To, e.Err)
}

func (e *SettlementError) Unwrap() error { return e.Err }

// IsNotFound returns true if the error reports a missing vault, terms,
// grant, or deal.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrVaultNotFound) ||
		errors.Is(err, ErrTermsNotFound) ||
		errors.Is(err, ErrListingNotFound) ||
		errors.Is(err, ErrGrantNotFound) ||
		errors.Is(err, ErrDealNotFound)
}

// IsValidation returns true if the error reports rejected input. The
// operation had no effect.
func IsValidation(err error) bool {
	return errors.Is(err, ErrEmptyIdentifier) ||
		errors.Is(err, ErrZeroPrincipal) ||
		errors.Is(err, ErrInvalidFee) ||
		errors.Is(err, ErrSameCoOwner) ||
		errors.Is(err, ErrInvalidAmount)
}

// IsConflict returns true if the error reports a state conflict with an
// existing registration or grant.
func IsConflict(err error) bool {
	return errors.Is(err, ErrVaultAlreadyRegistered) ||
		errors.Is(err, ErrAlreadyEntitled)
}

// IsRetryable returns true if the error is temporary and the operation can
// be retried. Settlement failures are not retryable in place; callers
// retry the whole purchase as a fresh attempt.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrStoreNotReady)
}
