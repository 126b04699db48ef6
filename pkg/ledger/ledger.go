package ledger

import (
	"context"
	"errors"
	"time"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"
	"github.com/mcclellann/jdaLoan/pkg/caldate"
	"github.com/mcclellann/jdaLoan/pkg/config"
	"github.com/mcclellann/jdaLoan/pkg/lock"
	"github.com/mcclellann/jdaLoan/pkg/logger"
	"github.com/mcclellann/jdaLoan/pkg/models"
	"github.com/mcclellann/jdaLoan/pkg/store"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Ledger handles the business logic for members, loans and group funds.
type Ledger struct {
	storage store.Storage
	locker  lock.Locker
	calc    *Calculator
	lending config.LendingConfig
	group   config.GroupConfig
	now     func() time.Time
}

// NewLedger creates a new Ledger. A nil locker falls back to an in-process
// keyed mutex.
func NewLedger(s store.Storage, locker lock.Locker, lending config.LendingConfig, group config.GroupConfig) *Ledger {
	if locker == nil {
		locker = lock.NewKeyedMutex()
	}
	return &Ledger{
		storage: s,
		locker:  locker,
		calc:    NewCalculator(lending),
		lending: lending,
		group:   group,
		now:     time.Now,
	}
}

func (l *Ledger) timestamp() time.Time {
	return l.now().UTC()
}

// Today is the ledger clock's calendar date.
func (l *Ledger) Today() civil.Date {
	return caldate.Today(l.timestamp())
}

// withLoanLock runs fn while holding the loan's lock. Giving up because
// ctx ended returns the bare context error.
func (l *Ledger) withLoanLock(ctx context.Context, loanID uuid.UUID, fn func() error) error {
	unlock, err := l.locker.Lock(ctx, "loan:"+loanID.String())
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return &PersistenceError{Op: "lock loan " + loanID.String(), Err: err}
	}
	defer unlock()
	return fn()
}

// ---- members ----

// RegisterMember validates and stores a new member.
func (l *Ledger) RegisterMember(ctx context.Context, fullName, identity, phone, email string) (*models.Member, error) {
	fullName = normalizeName(fullName)
	if err := ValidateName(fullName); err != nil {
		return nil, err
	}
	if err := ValidateIdentity(identity); err != nil {
		return nil, err
	}

	var member *models.Member
	err := l.storage.WithinTx(ctx, func(tx store.Storage) error {
		_, err := tx.GetMemberByIdentity(ctx, identity)
		switch {
		case err == nil:
			return &DuplicateIdentityError{Identity: identity}
		case !errors.Is(err, store.ErrNotFound):
			return persistErr("look up member", err)
		}

		member, err = l.createMember(ctx, tx, fullName, identity, phone, email)
		return err
	})
	if err != nil {
		return nil, err
	}

	logger.L().Info("member registered", zap.String("member_id", member.ID.String()))
	return member, nil
}

// createMember stores an active member with no capital. The name and
// identity must already be valid.
func (l *Ledger) createMember(ctx context.Context, tx store.Storage, fullName, identity, phone, email string) (*models.Member, error) {
	now := l.timestamp()
	member := &models.Member{
		ID:        uuid.New(),
		FullName:  fullName,
		Identity:  identity,
		Phone:     phone,
		Email:     email,
		Capital:   decimal.Zero,
		Active:    true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := tx.CreateMember(ctx, member); err != nil {
		return nil, persistErr("create member", err)
	}
	return member, nil
}

// GetMember retrieves a member by id.
func (l *Ledger) GetMember(ctx context.Context, id uuid.UUID) (*models.Member, error) {
	m, err := l.storage.GetMember(ctx, id)
	return m, persistErr("get member", err)
}

// ListActiveMembers returns active members ordered by name.
func (l *Ledger) ListActiveMembers(ctx context.Context) ([]*models.Member, error) {
	members, err := l.storage.ListActiveMembers(ctx)
	return members, persistErr("list members", err)
}

// DeactivateMember marks a member inactive. Members are never deleted.
func (l *Ledger) DeactivateMember(ctx context.Context, id uuid.UUID) (*models.Member, error) {
	var member *models.Member
	err := l.storage.WithinTx(ctx, func(tx store.Storage) error {
		m, err := tx.GetMember(ctx, id)
		if err != nil {
			return persistErr("get member", err)
		}
		m.Active = false
		m.UpdatedAt = l.timestamp()
		member = m
		return persistErr("update member", tx.UpdateMember(ctx, m))
	})
	if err != nil {
		return nil, err
	}
	logger.Info("Member %s deactivated", id)
	return member, nil
}

// ---- loan reads ----

// GetLoan retrieves a loan by its ID.
func (l *Ledger) GetLoan(ctx context.Context, id uuid.UUID) (*models.Loan, error) {
	loan, err := l.storage.GetLoan(ctx, id)
	return loan, persistErr("get loan", err)
}

// GetSchedule returns a loan's installments in order.
func (l *Ledger) GetSchedule(ctx context.Context, loanID uuid.UUID) ([]*models.Installment, error) {
	installments, err := l.storage.GetInstallments(ctx, loanID)
	return installments, persistErr("get schedule", err)
}

// GetPayments returns the payments recorded against a loan.
func (l *Ledger) GetPayments(ctx context.Context, loanID uuid.UUID) ([]*models.Payment, error) {
	payments, err := l.storage.GetPaymentsForLoan(ctx, loanID)
	return payments, persistErr("get payments", err)
}

// ListLoansByState lists loans in one state. Requested loans come oldest
// request first, which is the approval queue order.
func (l *Ledger) ListLoansByState(ctx context.Context, state models.LoanState) ([]*models.Loan, error) {
	loans, err := l.storage.ListLoansByState(ctx, state)
	return loans, persistErr("list loans", err)
}

// ListLoansByMember lists a member's loans, newest first.
func (l *Ledger) ListLoansByMember(ctx context.Context, memberID uuid.UUID) ([]*models.Loan, error) {
	loans, err := l.storage.ListLoansByMember(ctx, memberID)
	return loans, persistErr("list loans", err)
}
