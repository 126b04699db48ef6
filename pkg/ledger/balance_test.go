package ledger

import (
	"context"
	"testing"
	"time"

	"github.com/mcclellann/jdaLoan/pkg/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAggregateQuarter(t *testing.T) {
	l, _ := newTestLedger(t)
	ctx := context.Background()
	m := registerMember(t, l)

	// First installment due 2024-01-15, paid five days late.
	loan, _ := activeLoan(t, l, m.ID, 1000, 12, date(2023, 12, 1))
	_, err := l.PayInstallment(ctx, loan.ID, 1, date(2024, 1, 20), decimal.RequireFromString("87.92"))
	require.NoError(t, err)
	// Second installment paid in the next quarter.
	_, err = l.PayInstallment(ctx, loan.ID, 2, date(2024, 4, 1), decimal.RequireFromString("87.92"))
	require.NoError(t, err)

	_, err = l.RecordWeeklyContribution(ctx, m.ID, date(2024, 1, 5))
	require.NoError(t, err)
	_, err = l.RecordWeeklyContribution(ctx, m.ID, date(2024, 3, 31))
	require.NoError(t, err)
	_, err = l.RecordEntry(ctx, &m.ID, date(2024, 2, 1), models.EntryFine, decimal.NewFromInt(1), "late to meeting")
	require.NoError(t, err)
	_, err = l.RecordEntry(ctx, nil, date(2024, 3, 15), models.EntryRaffle, decimal.RequireFromString("25.50"), "march raffle")
	require.NoError(t, err)
	_, err = l.RecordEntry(ctx, nil, date(2024, 4, 1), models.EntryRaffle, decimal.NewFromInt(100), "april raffle")
	require.NoError(t, err)

	r, err := l.AggregateQuarter(ctx, 1, 2024)
	require.NoError(t, err)
	assert.Equal(t, date(2024, 1, 1), r.From)
	assert.Equal(t, date(2024, 4, 1), r.To)
	assert.Equal(t, "6.00", r.Capital.StringFixed(2))
	assert.Equal(t, "4.00", r.Savings.StringFixed(2))
	assert.Equal(t, "8.33", r.Interest.StringFixed(2))
	assert.Equal(t, "3.50", r.Fines.StringFixed(2), "fine entry plus 2.50 mora")
	assert.Equal(t, "25.50", r.Raffles.StringFixed(2))
	// savings + interest + fines + raffles, capital excluded
	assert.Equal(t, "41.33", r.TotalGains.StringFixed(2))
	assert.Equal(t, 13, r.GroupSize)
	assert.Equal(t, "3.18", r.PerMemberShare.StringFixed(2))

	q2, err := l.AggregateQuarter(ctx, 2, 2024)
	require.NoError(t, err)
	assert.Equal(t, "100.00", q2.Raffles.StringFixed(2))
	assert.True(t, q2.Capital.IsZero())
	assert.Equal(t, "7.67", q2.Interest.StringFixed(2))
	// installment 2 was due 2024-02-15, so 46 days of mora land in Q2
	assert.Equal(t, "23.00", q2.Fines.StringFixed(2))
}

func TestAggregateQuarterEmptyAndInvalid(t *testing.T) {
	l, _ := newTestLedger(t)
	ctx := context.Background()

	r, err := l.AggregateQuarter(ctx, 4, 2023)
	require.NoError(t, err)
	assert.True(t, r.TotalGains.IsZero())
	assert.True(t, r.PerMemberShare.IsZero())
	assert.Equal(t, date(2024, 1, 1), r.To)

	for _, q := range []int{0, 5, -1} {
		_, err := l.AggregateQuarter(ctx, q, 2024)
		var qe *InvalidQuarterError
		assert.ErrorAs(t, err, &qe, "quarter %d", q)
	}
}

func TestRecordWeeklyContributionRaisesCapital(t *testing.T) {
	l, ms := newTestLedger(t)
	ctx := context.Background()
	m := registerMember(t, l)

	entries, err := l.RecordWeeklyContribution(ctx, m.ID, date(2024, 1, 5))
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, models.EntryCapital, entries[0].Category)
	assert.True(t, entries[0].Amount.Equal(decimal.NewFromInt(3)))
	assert.Equal(t, models.EntrySavings, entries[1].Category)
	assert.True(t, entries[1].Amount.Equal(decimal.NewFromInt(2)))

	_, err = l.RecordWeeklyContribution(ctx, m.ID, date(2024, 1, 12))
	require.NoError(t, err)

	got, err := l.GetMember(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, "6", got.Capital.String())
	assert.Len(t, ms.entries, 4)
}

func TestRecordWeeklyContributionIsAtomic(t *testing.T) {
	l, ms := newTestLedger(t)
	m := registerMember(t, l)
	ms.FailOn("CreateEntry", assert.AnError)

	_, err := l.RecordWeeklyContribution(context.Background(), m.ID, date(2024, 1, 5))
	var perr *PersistenceError
	require.ErrorAs(t, err, &perr)
	assert.Empty(t, ms.entries)

	got, err := l.GetMember(context.Background(), m.ID)
	require.NoError(t, err)
	assert.True(t, got.Capital.IsZero(), "capital update must be rolled back")
}

func TestRecordEntryValidation(t *testing.T) {
	l, _ := newTestLedger(t)
	ctx := context.Background()
	m := registerMember(t, l)

	var ie *InvalidEntryError
	_, err := l.RecordEntry(ctx, &m.ID, date(2024, 1, 5), models.EntryCategory("bonus"), decimal.NewFromInt(1), "")
	assert.ErrorAs(t, err, &ie)

	_, err = l.RecordEntry(ctx, &m.ID, date(2024, 1, 5), models.EntryFine, decimal.Zero, "")
	assert.ErrorAs(t, err, &ie)

	_, err = l.RecordEntry(ctx, nil, date(2024, 1, 5), models.EntrySavings, decimal.NewFromInt(2), "")
	assert.ErrorAs(t, err, &ie)

	_, err = l.DeactivateMember(ctx, m.ID)
	require.NoError(t, err)
	_, err = l.RecordEntry(ctx, &m.ID, date(2024, 1, 5), models.EntryFine, decimal.NewFromInt(1), "")
	var inactive *MemberInactiveError
	assert.ErrorAs(t, err, &inactive)
}

func TestOverdueInstallments(t *testing.T) {
	l, _ := newTestLedger(t)
	ctx := context.Background()
	m := registerMember(t, l)
	loan, schedule := activeLoan(t, l, m.ID, 1000, 12, date(2023, 12, 1))

	_, err := l.PayInstallment(ctx, loan.ID, 1, date(2024, 1, 15), decimal.RequireFromString("87.92"))
	require.NoError(t, err)

	// Installment 2 is due 2024-02-15 and installment 3 on 2024-03-15.
	asOf := date(2024, 3, 20)
	overdue, err := l.OverdueInstallments(ctx, asOf)
	require.NoError(t, err)
	require.Len(t, overdue, 2)

	assert.Equal(t, 2, overdue[0].Number)
	assert.Equal(t, schedule[1].DueDate, overdue[0].DueDate)
	assert.Equal(t, 34, overdue[0].DaysLate)
	assert.Equal(t, "17.00", overdue[0].Penalty.StringFixed(2))
	assert.Equal(t, "87.92", overdue[0].Amount.StringFixed(2))
	assert.Equal(t, m.ID, overdue[0].MemberID)

	assert.Equal(t, 3, overdue[1].Number)
	assert.Equal(t, 5, overdue[1].DaysLate)

	// Due today is not overdue yet.
	none, err := l.OverdueInstallments(ctx, date(2024, 2, 15))
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestScanOverdueUsesLedgerClock(t *testing.T) {
	l, _ := newTestLedger(t)
	m := registerMember(t, l)
	activeLoan(t, l, m.ID, 1000, 12, date(2023, 12, 1))
	l.now = func() time.Time { return time.Date(2024, 2, 1, 8, 0, 0, 0, time.UTC) }

	assert.Equal(t, date(2024, 2, 1), l.Today())
	assert.NotPanics(t, func() { l.ScanOverdue(context.Background()) })
}
