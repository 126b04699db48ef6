package ledger

import (
	"context"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"
	"github.com/mcclellann/jdaLoan/pkg/logger"
	"github.com/mcclellann/jdaLoan/pkg/models"
	"github.com/mcclellann/jdaLoan/pkg/money"
	"github.com/mcclellann/jdaLoan/pkg/store"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Precancel settles an active loan early. The member pays the remaining
// principal and all interest still scheduled is forgiven. The loan must
// have at least MinInstallmentsToPrecancel installments paid.
func (l *Ledger) Precancel(ctx context.Context, loanID uuid.UUID, date civil.Date) (*models.Precancellation, error) {
	var result *models.Precancellation
	err := l.withLoanLock(ctx, loanID, func() error {
		return l.storage.WithinTx(ctx, func(tx store.Storage) error {
			loan, err := tx.GetLoan(ctx, loanID)
			if err != nil {
				return persistErr("get loan", err)
			}
			if _, ok := models.Transition(loan.State, models.EventPrecancel); !ok {
				return &InvalidTransitionError{LoanID: loanID, From: loan.State, Event: models.EventPrecancel}
			}

			installments, err := tx.GetInstallments(ctx, loanID)
			if err != nil {
				return persistErr("get schedule", err)
			}
			paid := 0
			for _, in := range installments {
				if in.Paid {
					paid++
				}
			}
			if paid < loan.MinInstallmentsToPrecancel {
				return &PrecancellationNotEligibleError{LoanID: loanID, Paid: paid, Required: loan.MinInstallmentsToPrecancel}
			}

			remaining, discount := decimal.Zero, decimal.Zero
			for _, in := range installments {
				if in.Paid {
					continue
				}
				remaining = remaining.Add(in.Principal)
				discount = discount.Add(in.Interest)

				settledOn := date
				in.Paid = true
				in.PaidDate = &settledOn
				in.PaidAmount = decimal.Zero
				in.DaysLate = 0
				if err := tx.UpdateInstallment(ctx, in); err != nil {
					return persistErr("settle installment", err)
				}
			}

			p := &models.Precancellation{
				ID:                 uuid.New(),
				LoanID:             loanID,
				Date:               date,
				InstallmentsPaid:   paid,
				RemainingPrincipal: money.Round(remaining),
				InterestDiscount:   money.Round(discount),
				TotalPaid:          money.Round(remaining),
				CreatedAt:          l.timestamp(),
			}
			if err := tx.CreatePrecancellation(ctx, p); err != nil {
				return persistErr("create precancellation", err)
			}
			if err := l.applyEvent(ctx, tx, loan, models.EventPrecancel, nil); err != nil {
				return err
			}
			result = p
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	logger.L().Info("loan pre-cancelled",
		zap.String("loan_id", loanID.String()),
		zap.Int("installments_paid", result.InstallmentsPaid),
		zap.String("total_paid", result.TotalPaid.String()),
		zap.String("interest_discount", result.InterestDiscount.String()),
	)
	return result, nil
}
