package ledger

import (
	"context"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"
	"github.com/mcclellann/jdaLoan/pkg/caldate"
	"github.com/mcclellann/jdaLoan/pkg/logger"
	"github.com/mcclellann/jdaLoan/pkg/models"
	"github.com/mcclellann/jdaLoan/pkg/money"
	"github.com/mcclellann/jdaLoan/pkg/store"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Penalty is the mora charged for paying daysLate days after the due date.
func (l *Ledger) Penalty(daysLate int) decimal.Decimal {
	chargeable := daysLate - l.lending.PenaltyGraceDays
	if chargeable <= 0 {
		return decimal.Zero
	}
	penalty := money.Round(l.lending.PenaltyPerDay.Mul(decimal.NewFromInt(int64(chargeable))))
	if l.lending.PenaltyCap.IsPositive() && penalty.GreaterThan(l.lending.PenaltyCap) {
		return l.lending.PenaltyCap
	}
	return penalty
}

// PayInstallment records the payment of one installment. Marking it paid,
// storing the payment and closing a fully paid loan happen together or not
// at all.
func (l *Ledger) PayInstallment(ctx context.Context, loanID uuid.UUID, number int, date civil.Date, amount decimal.Decimal) (*models.Payment, error) {
	if amount.IsNegative() {
		return nil, &InvalidAmountError{Amount: amount}
	}

	var payment *models.Payment
	err := l.withLoanLock(ctx, loanID, func() error {
		return l.storage.WithinTx(ctx, func(tx store.Storage) error {
			loan, err := tx.GetLoan(ctx, loanID)
			if err != nil {
				return persistErr("get loan", err)
			}
			if _, ok := models.Transition(loan.State, models.EventPay); !ok {
				return &InvalidTransitionError{LoanID: loanID, From: loan.State, Event: models.EventPay}
			}

			installments, err := tx.GetInstallments(ctx, loanID)
			if err != nil {
				return persistErr("get schedule", err)
			}
			var target *models.Installment
			for _, in := range installments {
				if in.Number == number {
					target = in
					break
				}
			}
			if target == nil {
				return &InstallmentNotFoundError{LoanID: loanID, Number: number}
			}
			if target.Paid {
				return &AlreadyPaidError{LoanID: loanID, Number: number}
			}

			daysLate := max(0, caldate.DaysBetween(target.DueDate, date))
			class := models.PaymentOnTime
			if daysLate > 0 {
				class = models.PaymentLate
			}

			paidOn := date
			target.Paid = true
			target.PaidDate = &paidOn
			target.PaidAmount = amount
			target.DaysLate = daysLate
			if err := tx.UpdateInstallment(ctx, target); err != nil {
				return persistErr("update installment", err)
			}

			payment = &models.Payment{
				ID:                uuid.New(),
				LoanID:            loanID,
				InstallmentID:     target.ID,
				InstallmentNumber: number,
				Date:              date,
				Amount:            amount,
				Interest:          target.Interest,
				Principal:         target.Principal,
				DaysLate:          daysLate,
				Penalty:           l.Penalty(daysLate),
				Class:             class,
				CreatedAt:         l.timestamp(),
			}
			if err := tx.CreatePayment(ctx, payment); err != nil {
				return persistErr("create payment", err)
			}

			if err := l.applyEvent(ctx, tx, loan, models.EventPay, nil); err != nil {
				return err
			}
			_, err = l.completeIfPaid(ctx, tx, loan, installments)
			return err
		})
	})
	if err != nil {
		return nil, err
	}

	logger.L().Info("installment paid",
		zap.String("loan_id", loanID.String()),
		zap.Int("number", number),
		zap.String("amount", amount.String()),
		zap.Int("days_late", payment.DaysLate),
		zap.String("penalty", payment.Penalty.String()),
	)
	return payment, nil
}

// CheckCompletion closes an active loan whose installments are all paid.
// It is safe to call repeatedly: a completed loan is returned unchanged.
func (l *Ledger) CheckCompletion(ctx context.Context, loanID uuid.UUID) (*models.Loan, error) {
	var result *models.Loan
	err := l.withLoanLock(ctx, loanID, func() error {
		return l.storage.WithinTx(ctx, func(tx store.Storage) error {
			loan, err := tx.GetLoan(ctx, loanID)
			if err != nil {
				return persistErr("get loan", err)
			}
			result = loan
			if loan.State != models.LoanActive {
				return nil
			}
			installments, err := tx.GetInstallments(ctx, loanID)
			if err != nil {
				return persistErr("get schedule", err)
			}
			_, err = l.completeIfPaid(ctx, tx, loan, installments)
			return err
		})
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// completeIfPaid moves loan to completed when every installment is paid.
func (l *Ledger) completeIfPaid(ctx context.Context, tx store.Storage, loan *models.Loan, installments []*models.Installment) (bool, error) {
	if len(installments) == 0 {
		return false, nil
	}
	for _, in := range installments {
		if !in.Paid {
			return false, nil
		}
	}
	if err := l.applyEvent(ctx, tx, loan, models.EventComplete, nil); err != nil {
		return false, err
	}
	return true, nil
}
