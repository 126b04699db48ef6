package ledger

import (
	"context"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"
	"github.com/mcclellann/jdaLoan/pkg/logger"
	"github.com/mcclellann/jdaLoan/pkg/models"
	"github.com/mcclellann/jdaLoan/pkg/store"
	"github.com/shopspring/decimal"
)

// RecordEntry appends a contribution, fine or raffle. Every category but
// raffle needs a member; capital also raises the member's accumulated
// capital.
func (l *Ledger) RecordEntry(ctx context.Context, memberID *uuid.UUID, date civil.Date, category models.EntryCategory, amount decimal.Decimal, description string) (*models.Entry, error) {
	if !category.Valid() {
		return nil, &InvalidEntryError{Category: category, Reason: "unknown category"}
	}
	if !amount.IsPositive() {
		return nil, &InvalidEntryError{Category: category, Reason: "amount must be positive"}
	}
	if memberID == nil && category != models.EntryRaffle {
		return nil, &InvalidEntryError{Category: category, Reason: "member is required"}
	}

	var entry *models.Entry
	err := l.storage.WithinTx(ctx, func(tx store.Storage) error {
		var err error
		entry, err = l.appendEntry(ctx, tx, memberID, date, category, amount, description)
		return err
	})
	if err != nil {
		return nil, err
	}
	return entry, nil
}

// RecordWeeklyContribution books a member's weekly capital and savings
// quotas as two entries.
func (l *Ledger) RecordWeeklyContribution(ctx context.Context, memberID uuid.UUID, date civil.Date) ([]*models.Entry, error) {
	var entries []*models.Entry
	err := l.storage.WithinTx(ctx, func(tx store.Storage) error {
		capital, err := l.appendEntry(ctx, tx, &memberID, date, models.EntryCapital, l.group.WeeklyCapital, "weekly capital")
		if err != nil {
			return err
		}
		savings, err := l.appendEntry(ctx, tx, &memberID, date, models.EntrySavings, l.group.WeeklySavings, "weekly savings")
		if err != nil {
			return err
		}
		entries = []*models.Entry{capital, savings}
		return nil
	})
	if err != nil {
		return nil, err
	}
	logger.Info("Weekly contribution recorded for member %s on %s", memberID, date)
	return entries, nil
}

func (l *Ledger) appendEntry(ctx context.Context, tx store.Storage, memberID *uuid.UUID, date civil.Date, category models.EntryCategory, amount decimal.Decimal, description string) (*models.Entry, error) {
	now := l.timestamp()
	if memberID != nil {
		member, err := tx.GetMember(ctx, *memberID)
		if err != nil {
			return nil, persistErr("get member", err)
		}
		if !member.Active {
			return nil, &MemberInactiveError{MemberID: member.ID}
		}
		if category == models.EntryCapital {
			member.Capital = member.Capital.Add(amount)
			member.UpdatedAt = now
			if err := tx.UpdateMember(ctx, member); err != nil {
				return nil, persistErr("update member capital", err)
			}
		}
	}

	entry := &models.Entry{
		ID:          uuid.New(),
		MemberID:    memberID,
		Date:        date,
		Category:    category,
		Amount:      amount,
		Description: description,
		CreatedAt:   now,
	}
	if err := tx.CreateEntry(ctx, entry); err != nil {
		return nil, persistErr("create entry", err)
	}
	return entry, nil
}
