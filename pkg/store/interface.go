package store

import (
	"context"
	"errors"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"
	"github.com/mcclellann/jdaLoan/pkg/models"
)

// ErrNotFound is returned when a lookup by id or key matches no row.
var ErrNotFound = errors.New("record not found")

// Storage defines the persistence operations the ledger needs.
//
// WithinTx runs fn against a Storage bound to a single transaction: every
// write made through it is committed together or rolled back together.
type Storage interface {
	CreateMember(ctx context.Context, member *models.Member) error
	GetMember(ctx context.Context, id uuid.UUID) (*models.Member, error)
	GetMemberByIdentity(ctx context.Context, identity string) (*models.Member, error)
	UpdateMember(ctx context.Context, member *models.Member) error
	ListActiveMembers(ctx context.Context) ([]*models.Member, error)

	CreateLoan(ctx context.Context, loan *models.Loan) error
	GetLoan(ctx context.Context, id uuid.UUID) (*models.Loan, error)
	UpdateLoan(ctx context.Context, loan *models.Loan) error
	ListLoansByState(ctx context.Context, state models.LoanState) ([]*models.Loan, error)
	ListLoansByMember(ctx context.Context, memberID uuid.UUID) ([]*models.Loan, error)

	CreateInstallments(ctx context.Context, installments []*models.Installment) error
	GetInstallments(ctx context.Context, loanID uuid.UUID) ([]*models.Installment, error)
	UpdateInstallment(ctx context.Context, installment *models.Installment) error

	CreatePayment(ctx context.Context, payment *models.Payment) error
	GetPaymentsForLoan(ctx context.Context, loanID uuid.UUID) ([]*models.Payment, error)
	ListPaymentsBetween(ctx context.Context, from, to civil.Date) ([]*models.Payment, error)

	CreateDisbursement(ctx context.Context, disbursement *models.Disbursement) error
	GetDisbursement(ctx context.Context, loanID uuid.UUID) (*models.Disbursement, error)

	CreatePrecancellation(ctx context.Context, p *models.Precancellation) error
	GetPrecancellation(ctx context.Context, loanID uuid.UUID) (*models.Precancellation, error)

	CreateEntry(ctx context.Context, entry *models.Entry) error
	ListEntriesBetween(ctx context.Context, from, to civil.Date) ([]*models.Entry, error)

	WithinTx(ctx context.Context, fn func(tx Storage) error) error
	Close() error
}
