package ledger

import (
	"cloud.google.com/go/civil"
	"github.com/mcclellann/jdaLoan/pkg/caldate"
	"github.com/mcclellann/jdaLoan/pkg/config"
	"github.com/mcclellann/jdaLoan/pkg/models"
	"github.com/mcclellann/jdaLoan/pkg/money"
	"github.com/shopspring/decimal"
)

// Quote is a priced loan offer and its schedule, before anything is stored.
type Quote struct {
	Principal                  decimal.Decimal       `json:"principal"`
	TermMonths                 int                   `json:"term_months"`
	AnnualRate                 decimal.Decimal       `json:"annual_rate"`
	MonthlyRate                decimal.Decimal       `json:"monthly_rate"`
	Installment                decimal.Decimal       `json:"installment"`
	TotalInterest              decimal.Decimal       `json:"total_interest"`
	TotalPayable               decimal.Decimal       `json:"total_payable"`
	FirstDueDate               civil.Date            `json:"first_due_date"`
	MinInstallmentsToPrecancel int                   `json:"min_installments_to_precancel"`
	Schedule                   []*models.Installment `json:"schedule"`
}

// Calculator prices loans under one set of lending rules.
type Calculator struct {
	cfg config.LendingConfig
}

func NewCalculator(cfg config.LendingConfig) *Calculator {
	return &Calculator{cfg: cfg}
}

// Validate checks principal and term against the configured bounds.
func (c *Calculator) Validate(principal decimal.Decimal, term int) error {
	if principal.LessThan(c.cfg.MinPrincipal) || principal.GreaterThan(c.cfg.MaxPrincipal) {
		return &InvalidAmountError{Amount: principal, Min: c.cfg.MinPrincipal, Max: c.cfg.MaxPrincipal}
	}
	if term < c.cfg.MinTerm || term > c.cfg.MaxTerm {
		return &InvalidTermError{Term: term, Min: c.cfg.MinTerm, Max: c.cfg.MaxTerm}
	}
	return nil
}

// Generate validates the request and builds the full offer. The first
// installment falls FirstInstallmentDays after requestDate and the rest
// follow monthly from it.
func (c *Calculator) Generate(principal decimal.Decimal, term int, requestDate civil.Date) (*Quote, error) {
	if err := c.Validate(principal, term); err != nil {
		return nil, err
	}

	rate := money.Exact(c.cfg.MonthlyRate())
	firstDue := caldate.AddDays(requestDate, c.cfg.FirstInstallmentDays)
	installment, schedule := Amortize(principal, rate, term, firstDue)

	totalPayable := money.Round(installment).Mul(decimal.NewFromInt(int64(term)))
	return &Quote{
		Principal:                  principal,
		TermMonths:                 term,
		AnnualRate:                 c.cfg.AnnualRate,
		MonthlyRate:                rate,
		Installment:                installment,
		TotalInterest:              totalPayable.Sub(principal),
		TotalPayable:               totalPayable,
		FirstDueDate:               firstDue,
		MinInstallmentsToPrecancel: money.CeilInt(term, c.cfg.PrecancelFraction),
		Schedule:                   schedule,
	}, nil
}

// Amortize builds a French (constant installment) schedule at working
// precision. The last row absorbs the accumulated rounding so the closing
// balance is exactly zero. Rows carry no ids.
func Amortize(principal, rate decimal.Decimal, term int, firstDue civil.Date) (decimal.Decimal, []*models.Installment) {
	n := decimal.NewFromInt(int64(term))

	var installment decimal.Decimal
	if rate.IsZero() {
		installment = money.Exact(principal.Div(n))
	} else {
		factor := money.Compound(rate, term)
		installment = money.Exact(principal.Mul(rate).Mul(factor).Div(factor.Sub(decimal.NewFromInt(1))))
	}

	schedule := make([]*models.Installment, 0, term)
	opening := principal
	for k := 1; k <= term; k++ {
		interest := money.Exact(opening.Mul(rate))
		var principalPart, amount decimal.Decimal
		if k == term {
			principalPart = opening
			amount = interest.Add(principalPart)
		} else {
			principalPart = installment.Sub(interest)
			amount = installment
		}
		closing := money.NonNegative(opening.Sub(principalPart))
		if k == term {
			closing = decimal.Zero
		}

		schedule = append(schedule, &models.Installment{
			Number:         k,
			DueDate:        caldate.AddMonths(firstDue, k-1),
			OpeningBalance: opening,
			Amount:         amount,
			Interest:       interest,
			Principal:      principalPart,
			ClosingBalance: closing,
			PaidAmount:     decimal.Zero,
		})
		opening = closing
	}
	return installment, schedule
}
