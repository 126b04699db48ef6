package ledger

import (
	"context"

	"github.com/mcclellann/jdaLoan/pkg/caldate"
	"github.com/mcclellann/jdaLoan/pkg/models"
	"github.com/mcclellann/jdaLoan/pkg/money"
	"github.com/shopspring/decimal"
)

// AggregateQuarter totals the group's income for quarter q of year.
// Interest comes from payments dated in the quarter, fines from fine
// entries plus the mora on those payments. It only reads.
func (l *Ledger) AggregateQuarter(ctx context.Context, q, year int) (*models.BalanceReport, error) {
	from, to, err := caldate.QuarterRange(q, year)
	if err != nil {
		return nil, &InvalidQuarterError{Quarter: q}
	}

	payments, err := l.storage.ListPaymentsBetween(ctx, from, to)
	if err != nil {
		return nil, persistErr("list payments", err)
	}
	entries, err := l.storage.ListEntriesBetween(ctx, from, to)
	if err != nil {
		return nil, persistErr("list entries", err)
	}

	var capital, savings, interest, fines, raffles decimal.Decimal
	for _, p := range payments {
		interest = interest.Add(p.Interest)
		fines = fines.Add(p.Penalty)
	}
	for _, e := range entries {
		switch e.Category {
		case models.EntryCapital:
			capital = capital.Add(e.Amount)
		case models.EntrySavings:
			savings = savings.Add(e.Amount)
		case models.EntryFine:
			fines = fines.Add(e.Amount)
		case models.EntryRaffle:
			raffles = raffles.Add(e.Amount)
		}
	}

	interest = money.Round(interest)
	totalGains := money.Sum(savings, interest, fines, raffles)
	groupSize := l.group.MemberCount
	share := decimal.Zero
	if groupSize > 0 {
		share = money.Round(totalGains.Div(decimal.NewFromInt(int64(groupSize))))
	}

	return &models.BalanceReport{
		Year:           year,
		Quarter:        q,
		From:           from,
		To:             to,
		Capital:        money.Round(capital),
		Savings:        money.Round(savings),
		Interest:       interest,
		Fines:          money.Round(fines),
		Raffles:        money.Round(raffles),
		TotalGains:     money.Round(totalGains),
		GroupSize:      groupSize,
		PerMemberShare: share,
	}, nil
}
