package ledger

import (
	"context"
	"sort"

	"cloud.google.com/go/civil"
	"github.com/mcclellann/jdaLoan/pkg/caldate"
	"github.com/mcclellann/jdaLoan/pkg/logger"
	"github.com/mcclellann/jdaLoan/pkg/models"
	"github.com/mcclellann/jdaLoan/pkg/money"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// OverdueInstallments lists unpaid installments of active loans that were
// due before asOf, with the mora they would carry if paid on asOf.
func (l *Ledger) OverdueInstallments(ctx context.Context, asOf civil.Date) ([]*models.OverdueInstallment, error) {
	loans, err := l.storage.ListLoansByState(ctx, models.LoanActive)
	if err != nil {
		return nil, persistErr("list active loans", err)
	}

	var overdue []*models.OverdueInstallment
	for _, loan := range loans {
		installments, err := l.storage.GetInstallments(ctx, loan.ID)
		if err != nil {
			return nil, persistErr("get schedule", err)
		}
		for _, in := range installments {
			if in.Paid || !in.DueDate.Before(asOf) {
				continue
			}
			daysLate := caldate.DaysBetween(in.DueDate, asOf)
			overdue = append(overdue, &models.OverdueInstallment{
				LoanID:   loan.ID,
				MemberID: loan.MemberID,
				Number:   in.Number,
				DueDate:  in.DueDate,
				AsOf:     asOf,
				DaysLate: daysLate,
				Amount:   money.Round(in.Amount),
				Penalty:  l.Penalty(daysLate),
			})
		}
	}

	sort.SliceStable(overdue, func(i, j int) bool {
		if overdue[i].DueDate != overdue[j].DueDate {
			return overdue[i].DueDate.Before(overdue[j].DueDate)
		}
		return overdue[i].Number < overdue[j].Number
	})
	return overdue, nil
}

// ScanOverdue runs OverdueInstallments for today and logs what it finds.
// The API calls it periodically.
func (l *Ledger) ScanOverdue(ctx context.Context) {
	today := l.Today()
	overdue, err := l.OverdueInstallments(ctx, today)
	if err != nil {
		logger.Error("Error scanning overdue installments: %v", err)
		return
	}

	total := decimal.Zero
	for _, o := range overdue {
		total = total.Add(o.Penalty)
		logger.L().Warn("installment overdue",
			zap.String("loan_id", o.LoanID.String()),
			zap.Int("number", o.Number),
			zap.String("due_date", o.DueDate.String()),
			zap.Int("days_late", o.DaysLate),
			zap.String("penalty", o.Penalty.String()),
		)
	}
	logger.Info("Overdue scan for %s: %d installments, %s in accrued mora", today, len(overdue), total.StringFixed(2))
}
