package models

import (
	"time"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Member struct {
	ID        uuid.UUID       `json:"id"`
	FullName  string          `json:"full_name"`
	Identity  string          `json:"identity"` // national identity number (cedula)
	Phone     string          `json:"phone,omitempty"`
	Email     string          `json:"email,omitempty"`
	Capital   decimal.Decimal `json:"capital"` // accumulated capital contributions
	Active    bool            `json:"active"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

type Loan struct {
	ID                         uuid.UUID       `json:"id"`
	MemberID                   uuid.UUID       `json:"member_id"`
	Principal                  decimal.Decimal `json:"principal"`
	TermMonths                 int             `json:"term_months"`
	AnnualRate                 decimal.Decimal `json:"annual_rate"`
	MonthlyRate                decimal.Decimal `json:"monthly_rate"`
	Installment                decimal.Decimal `json:"installment"` // constant monthly payment, working precision
	TotalInterest              decimal.Decimal `json:"total_interest"`
	TotalPayable               decimal.Decimal `json:"total_payable"`
	FirstDueDate               civil.Date      `json:"first_due_date"`
	State                      LoanState       `json:"state"`
	MinInstallmentsToPrecancel int             `json:"min_installments_to_precancel"`
	RequestedAt                *time.Time      `json:"requested_at,omitempty"`
	ApprovedAt                 *time.Time      `json:"approved_at,omitempty"`
	ApprovedBy                 string          `json:"approved_by,omitempty"`
	RejectionReason            string          `json:"rejection_reason,omitempty"`
	DisbursedAt                *civil.Date     `json:"disbursed_at,omitempty"`
	DisbursementMethod         string          `json:"disbursement_method,omitempty"`
	Notes                      string          `json:"notes,omitempty"`
	CreatedAt                  time.Time       `json:"created_at"`
	UpdatedAt                  time.Time       `json:"updated_at"`
}

// Installment is one row of a loan's amortization schedule.
type Installment struct {
	ID             uuid.UUID       `json:"id"`
	LoanID         uuid.UUID       `json:"loan_id"`
	Number         int             `json:"number"`
	DueDate        civil.Date      `json:"due_date"`
	OpeningBalance decimal.Decimal `json:"opening_balance"`
	Amount         decimal.Decimal `json:"amount"`
	Interest       decimal.Decimal `json:"interest"`
	Principal      decimal.Decimal `json:"principal"`
	ClosingBalance decimal.Decimal `json:"closing_balance"`
	Paid           bool            `json:"paid"`
	PaidDate       *civil.Date     `json:"paid_date,omitempty"`
	PaidAmount     decimal.Decimal `json:"paid_amount"`
	DaysLate       int             `json:"days_late"`
}

type PaymentClass string

const (
	PaymentOnTime PaymentClass = "on_time"
	PaymentLate   PaymentClass = "late"
)

type Payment struct {
	ID                uuid.UUID       `json:"id"`
	LoanID            uuid.UUID       `json:"loan_id"`
	InstallmentID     uuid.UUID       `json:"installment_id"`
	InstallmentNumber int             `json:"installment_number"`
	Date              civil.Date      `json:"date"`
	Amount            decimal.Decimal `json:"amount"`
	Interest          decimal.Decimal `json:"interest"`
	Principal         decimal.Decimal `json:"principal"`
	DaysLate          int             `json:"days_late"`
	Penalty           decimal.Decimal `json:"penalty"`
	Class             PaymentClass    `json:"class"`
	CreatedAt         time.Time       `json:"created_at"`
}

type Disbursement struct {
	ID     uuid.UUID       `json:"id"`
	LoanID uuid.UUID       `json:"loan_id"`
	Amount decimal.Decimal `json:"amount"`
	Method string          `json:"method"`
	Date   civil.Date      `json:"date"`
}

type Precancellation struct {
	ID                 uuid.UUID       `json:"id"`
	LoanID             uuid.UUID       `json:"loan_id"`
	Date               civil.Date      `json:"date"`
	InstallmentsPaid   int             `json:"installments_paid"`
	RemainingPrincipal decimal.Decimal `json:"remaining_principal"`
	InterestDiscount   decimal.Decimal `json:"interest_discount"`
	TotalPaid          decimal.Decimal `json:"total_paid"`
	CreatedAt          time.Time       `json:"created_at"`
}

type EntryCategory string

const (
	EntryCapital EntryCategory = "capital"
	EntrySavings EntryCategory = "savings"
	EntryFine    EntryCategory = "fine"
	EntryRaffle  EntryCategory = "raffle"
)

// Valid reports whether c is one of the known categories.
func (c EntryCategory) Valid() bool {
	switch c {
	case EntryCapital, EntrySavings, EntryFine, EntryRaffle:
		return true
	}
	return false
}

// Entry is an append-only contribution, fine or raffle record.
type Entry struct {
	ID          uuid.UUID       `json:"id"`
	MemberID    *uuid.UUID      `json:"member_id,omitempty"` // raffles may belong to the group
	Date        civil.Date      `json:"date"`
	Category    EntryCategory   `json:"category"`
	Amount      decimal.Decimal `json:"amount"`
	Description string          `json:"description,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
}

type BalanceReport struct {
	Year           int             `json:"year"`
	Quarter        int             `json:"quarter"`
	From           civil.Date      `json:"from"`
	To             civil.Date      `json:"to"` // exclusive
	Capital        decimal.Decimal `json:"capital"`
	Savings        decimal.Decimal `json:"savings"`
	Interest       decimal.Decimal `json:"interest"`
	Fines          decimal.Decimal `json:"fines"`
	Raffles        decimal.Decimal `json:"raffles"`
	TotalGains     decimal.Decimal `json:"total_gains"`
	GroupSize      int             `json:"group_size"`
	PerMemberShare decimal.Decimal `json:"per_member_share"`
}

// OverdueInstallment is an unpaid installment past its due date, with the
// mora it would be charged if paid on AsOf.
type OverdueInstallment struct {
	LoanID   uuid.UUID       `json:"loan_id"`
	MemberID uuid.UUID       `json:"member_id"`
	Number   int             `json:"number"`
	DueDate  civil.Date      `json:"due_date"`
	AsOf     civil.Date      `json:"as_of"`
	DaysLate int             `json:"days_late"`
	Amount   decimal.Decimal `json:"amount"`
	Penalty  decimal.Decimal `json:"penalty"`
}
