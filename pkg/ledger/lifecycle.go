package ledger

import (
	"context"
	"errors"
	"time"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"
	"github.com/mcclellann/jdaLoan/pkg/logger"
	"github.com/mcclellann/jdaLoan/pkg/models"
	"github.com/mcclellann/jdaLoan/pkg/store"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Quote prices a loan without storing anything.
func (l *Ledger) Quote(principal decimal.Decimal, term int, requestDate civil.Date) (*Quote, error) {
	return l.calc.Generate(principal, term, requestDate)
}

// Simulate creates a loan in the simulated state together with its
// schedule, in one transaction.
func (l *Ledger) Simulate(ctx context.Context, memberID uuid.UUID, principal decimal.Decimal, term int, requestDate civil.Date, notes string) (*models.Loan, []*models.Installment, error) {
	quote, err := l.calc.Generate(principal, term, requestDate)
	if err != nil {
		return nil, nil, err
	}

	var loan *models.Loan
	err = l.storage.WithinTx(ctx, func(tx store.Storage) error {
		member, err := tx.GetMember(ctx, memberID)
		if err != nil {
			return persistErr("get member", err)
		}
		loan, err = l.createSimulated(ctx, tx, member, quote, notes)
		return err
	})
	if err != nil {
		return nil, nil, err
	}
	logSimulated(loan)
	return loan, quote.Schedule, nil
}

// Applicant identifies the member asking for a loan. The name and contact
// details are only used when the identity number is not registered yet.
type Applicant struct {
	FullName string
	Identity string
	Phone    string
	Email    string
}

// RequestLoan simulates a loan for the member holding the applicant's
// identity number, registering the member first when needed. Amount, term,
// identity and name are all checked before anything is written, and the
// member and loan are stored in one transaction.
func (l *Ledger) RequestLoan(ctx context.Context, a Applicant, principal decimal.Decimal, term int, requestDate civil.Date, notes string) (*models.Member, *models.Loan, []*models.Installment, error) {
	quote, err := l.calc.Generate(principal, term, requestDate)
	if err != nil {
		return nil, nil, nil, err
	}
	if err := ValidateIdentity(a.Identity); err != nil {
		return nil, nil, nil, err
	}
	fullName := normalizeName(a.FullName)

	var (
		member  *models.Member
		loan    *models.Loan
		created bool
	)
	err = l.storage.WithinTx(ctx, func(tx store.Storage) error {
		m, err := tx.GetMemberByIdentity(ctx, a.Identity)
		switch {
		case errors.Is(err, store.ErrNotFound):
			if err := ValidateName(fullName); err != nil {
				return err
			}
			if m, err = l.createMember(ctx, tx, fullName, a.Identity, a.Phone, a.Email); err != nil {
				return err
			}
			created = true
		case err != nil:
			return persistErr("look up member", err)
		}
		member = m
		loan, err = l.createSimulated(ctx, tx, m, quote, notes)
		return err
	})
	if err != nil {
		return nil, nil, nil, err
	}

	if created {
		logger.L().Info("member registered", zap.String("member_id", member.ID.String()))
	}
	logSimulated(loan)
	return member, loan, quote.Schedule, nil
}

// createSimulated stores a simulated loan and its schedule for an active
// member.
func (l *Ledger) createSimulated(ctx context.Context, tx store.Storage, member *models.Member, quote *Quote, notes string) (*models.Loan, error) {
	if !member.Active {
		return nil, &MemberInactiveError{MemberID: member.ID}
	}

	now := l.timestamp()
	loan := &models.Loan{
		ID:                         uuid.New(),
		MemberID:                   member.ID,
		Principal:                  quote.Principal,
		TermMonths:                 quote.TermMonths,
		AnnualRate:                 quote.AnnualRate,
		MonthlyRate:                quote.MonthlyRate,
		Installment:                quote.Installment,
		TotalInterest:              quote.TotalInterest,
		TotalPayable:               quote.TotalPayable,
		FirstDueDate:               quote.FirstDueDate,
		State:                      models.LoanSimulated,
		MinInstallmentsToPrecancel: quote.MinInstallmentsToPrecancel,
		Notes:                      notes,
		CreatedAt:                  now,
		UpdatedAt:                  now,
	}
	for _, in := range quote.Schedule {
		in.ID = uuid.New()
		in.LoanID = loan.ID
	}

	if err := tx.CreateLoan(ctx, loan); err != nil {
		return nil, persistErr("create loan", err)
	}
	if err := tx.CreateInstallments(ctx, quote.Schedule); err != nil {
		return nil, persistErr("create schedule", err)
	}
	return loan, nil
}

func logSimulated(loan *models.Loan) {
	logger.L().Info("loan simulated",
		zap.String("loan_id", loan.ID.String()),
		zap.String("member_id", loan.MemberID.String()),
		zap.String("principal", loan.Principal.String()),
		zap.Int("term_months", loan.TermMonths),
	)
}

// Submit moves a simulated loan into the approval queue.
func (l *Ledger) Submit(ctx context.Context, loanID uuid.UUID) (*models.Loan, error) {
	return l.transition(ctx, loanID, models.EventSubmit, func(_ store.Storage, loan *models.Loan, now time.Time) error {
		loan.RequestedAt = &now
		return nil
	})
}

// Approve records who approved a requested loan.
func (l *Ledger) Approve(ctx context.Context, loanID uuid.UUID, approver string) (*models.Loan, error) {
	return l.transition(ctx, loanID, models.EventApprove, func(_ store.Storage, loan *models.Loan, now time.Time) error {
		loan.ApprovedAt = &now
		loan.ApprovedBy = approver
		return nil
	})
}

// Reject closes a requested loan with a reason.
func (l *Ledger) Reject(ctx context.Context, loanID uuid.UUID, reason string) (*models.Loan, error) {
	return l.transition(ctx, loanID, models.EventReject, func(_ store.Storage, loan *models.Loan, _ time.Time) error {
		loan.RejectionReason = reason
		return nil
	})
}

// Disburse hands out the principal of an approved loan and activates it.
func (l *Ledger) Disburse(ctx context.Context, loanID uuid.UUID, method string, date civil.Date) (*models.Loan, *models.Disbursement, error) {
	var disbursement *models.Disbursement
	loan, err := l.transition(ctx, loanID, models.EventDisburse, func(tx store.Storage, loan *models.Loan, _ time.Time) error {
		loan.DisbursedAt = &date
		loan.DisbursementMethod = method
		disbursement = &models.Disbursement{
			ID:     uuid.New(),
			LoanID: loan.ID,
			Amount: loan.Principal,
			Method: method,
			Date:   date,
		}
		return persistErr("create disbursement", tx.CreateDisbursement(ctx, disbursement))
	})
	if err != nil {
		return nil, nil, err
	}
	return loan, disbursement, nil
}

// transition applies event to the loan under its lock and in one
// transaction. apply runs after the state check and before the loan is
// written back.
func (l *Ledger) transition(ctx context.Context, loanID uuid.UUID, event models.LoanEvent,
	apply func(tx store.Storage, loan *models.Loan, now time.Time) error) (*models.Loan, error) {
	var result *models.Loan
	err := l.withLoanLock(ctx, loanID, func() error {
		return l.storage.WithinTx(ctx, func(tx store.Storage) error {
			loan, err := tx.GetLoan(ctx, loanID)
			if err != nil {
				return persistErr("get loan", err)
			}
			if err := l.applyEvent(ctx, tx, loan, event, apply); err != nil {
				return err
			}
			result = loan
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// applyEvent checks the transition table, runs apply and persists the
// loan. Callers hold the loan lock and a transaction.
func (l *Ledger) applyEvent(ctx context.Context, tx store.Storage, loan *models.Loan, event models.LoanEvent,
	apply func(tx store.Storage, loan *models.Loan, now time.Time) error) error {
	from := loan.State
	to, ok := models.Transition(from, event)
	if !ok {
		return &InvalidTransitionError{LoanID: loan.ID, From: from, Event: event}
	}

	now := l.timestamp()
	if apply != nil {
		if err := apply(tx, loan, now); err != nil {
			return err
		}
	}
	loan.State = to
	loan.UpdatedAt = now
	if err := tx.UpdateLoan(ctx, loan); err != nil {
		return persistErr("update loan", err)
	}

	if from != to {
		logger.L().Info("loan state changed",
			zap.String("loan_id", loan.ID.String()),
			zap.String("event", string(event)),
			zap.String("from", string(from)),
			zap.String("to", string(to)),
		)
	}
	return nil
}
