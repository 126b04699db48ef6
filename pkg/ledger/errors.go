package ledger

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/mcclellann/jdaLoan/pkg/models"
	"github.com/shopspring/decimal"
)

// InvalidAmountError reports a principal outside the allowed range, or a
// negative payment (Min and Max are zero then).
type InvalidAmountError struct {
	Amount decimal.Decimal
	Min    decimal.Decimal
	Max    decimal.Decimal
}

func (e *InvalidAmountError) Error() string {
	if e.Min.IsZero() && e.Max.IsZero() {
		return fmt.Sprintf("invalid amount %s: must not be negative", e.Amount)
	}
	return fmt.Sprintf("invalid amount %s: must be between %s and %s", e.Amount, e.Min, e.Max)
}

type InvalidTermError struct {
	Term int
	Min  int
	Max  int
}

func (e *InvalidTermError) Error() string {
	return fmt.Sprintf("invalid term %d months: must be between %d and %d", e.Term, e.Min, e.Max)
}

type InvalidIdentityError struct {
	Value  string
	Reason string
}

func (e *InvalidIdentityError) Error() string {
	return fmt.Sprintf("invalid identity number %q: %s", e.Value, e.Reason)
}

type InvalidNameError struct {
	Value  string
	Reason string
}

func (e *InvalidNameError) Error() string {
	return fmt.Sprintf("invalid name %q: %s", e.Value, e.Reason)
}

// InvalidTransitionError is returned for any event the lifecycle does not
// allow from the loan's current state.
type InvalidTransitionError struct {
	LoanID uuid.UUID
	From   models.LoanState
	Event  models.LoanEvent
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("loan %s: cannot %s while %s", e.LoanID, e.Event, e.From)
}

type InstallmentNotFoundError struct {
	LoanID uuid.UUID
	Number int
}

func (e *InstallmentNotFoundError) Error() string {
	return fmt.Sprintf("loan %s has no installment %d", e.LoanID, e.Number)
}

type AlreadyPaidError struct {
	LoanID uuid.UUID
	Number int
}

func (e *AlreadyPaidError) Error() string {
	return fmt.Sprintf("installment %d of loan %s is already paid", e.Number, e.LoanID)
}

type PrecancellationNotEligibleError struct {
	LoanID   uuid.UUID
	Paid     int
	Required int
}

func (e *PrecancellationNotEligibleError) Error() string {
	return fmt.Sprintf("loan %s cannot be pre-cancelled: %d of %d required installments paid", e.LoanID, e.Paid, e.Required)
}

// DuplicateIdentityError is returned when registering an identity number
// that already belongs to a member.
type DuplicateIdentityError struct {
	Identity string
}

func (e *DuplicateIdentityError) Error() string {
	return fmt.Sprintf("a member with identity number %s already exists", e.Identity)
}

type MemberInactiveError struct {
	MemberID uuid.UUID
}

func (e *MemberInactiveError) Error() string {
	return fmt.Sprintf("member %s is not active", e.MemberID)
}

type InvalidEntryError struct {
	Category models.EntryCategory
	Reason   string
}

func (e *InvalidEntryError) Error() string {
	return fmt.Sprintf("invalid %q entry: %s", e.Category, e.Reason)
}

type InvalidQuarterError struct {
	Quarter int
}

func (e *InvalidQuarterError) Error() string {
	return fmt.Sprintf("invalid quarter %d: must be between 1 and 4", e.Quarter)
}

// PersistenceError wraps a failure of the storage collaborator.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// persistErr wraps err unless it is nil or already a ledger error.
func persistErr(op string, err error) error {
	if err == nil {
		return nil
	}
	if isDomainError(err) {
		return err
	}
	return &PersistenceError{Op: op, Err: err}
}

func isDomainError(err error) bool {
	switch err.(type) {
	case *InvalidAmountError, *InvalidTermError, *InvalidIdentityError, *InvalidNameError,
		*InvalidTransitionError, *InstallmentNotFoundError, *AlreadyPaidError,
		*PrecancellationNotEligibleError, *InvalidQuarterError, *DuplicateIdentityError,
		*MemberInactiveError, *InvalidEntryError, *PersistenceError:
		return true
	}
	return false
}
