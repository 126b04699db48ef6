package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"
	"github.com/mcclellann/jdaLoan/pkg/logger"
	"github.com/mcclellann/jdaLoan/pkg/models"

	_ "github.com/mattn/go-sqlite3"
)

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// SQLiteStore manages the database connection and operations for SQLite.
type SQLiteStore struct {
	db   *sql.DB
	q    querier
	inTx bool
}

// NewSQLiteStore creates a new SQLiteStore and initializes the database.
func NewSQLiteStore(dataSourceName string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dataSourceName)
	if err != nil {
		return nil, fmt.Errorf("could not open database: %w", err)
	}
	// A single connection keeps transactions and :memory: databases coherent.
	db.SetMaxOpenConns(1)

	// Manually enable foreign keys and WAL mode
	if _, err = db.Exec("PRAGMA foreign_keys = ON;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}
	if _, err = db.Exec("PRAGMA journal_mode = WAL;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("could not connect to database: %w", err)
	}

	s := &SQLiteStore{db: db, q: db}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("could not initialize schema: %w", err)
	}
	logger.Info("Database connection established and schema initialized (%s)", dataSourceName)
	return s, nil
}

// initSchema creates the tables if they don't already exist.
// Decimal fields are TEXT so no precision is lost; calendar dates are
// YYYY-MM-DD TEXT.
func (s *SQLiteStore) initSchema() error {
	const schema = `
	CREATE TABLE IF NOT EXISTS members (
		id TEXT PRIMARY KEY,
		full_name TEXT NOT NULL,
		identity TEXT NOT NULL UNIQUE,
		phone TEXT NOT NULL DEFAULT '',
		email TEXT NOT NULL DEFAULT '',
		capital TEXT NOT NULL DEFAULT '0',
		active INTEGER NOT NULL DEFAULT 1,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	);
	CREATE TABLE IF NOT EXISTS loans (
		id TEXT PRIMARY KEY,
		member_id TEXT NOT NULL,
		principal TEXT NOT NULL,
		term_months INTEGER NOT NULL,
		annual_rate TEXT NOT NULL,
		monthly_rate TEXT NOT NULL,
		installment TEXT NOT NULL,
		total_interest TEXT NOT NULL,
		total_payable TEXT NOT NULL,
		first_due_date TEXT NOT NULL,
		state TEXT NOT NULL,
		min_installments_to_precancel INTEGER NOT NULL,
		requested_at DATETIME,
		approved_at DATETIME,
		approved_by TEXT NOT NULL DEFAULT '',
		rejection_reason TEXT NOT NULL DEFAULT '',
		disbursed_at TEXT,
		disbursement_method TEXT NOT NULL DEFAULT '',
		notes TEXT NOT NULL DEFAULT '',
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL,
		FOREIGN KEY(member_id) REFERENCES members(id)
	);
	CREATE INDEX IF NOT EXISTS idx_loans_state ON loans(state);
	CREATE TABLE IF NOT EXISTS installments (
		id TEXT PRIMARY KEY,
		loan_id TEXT NOT NULL,
		number INTEGER NOT NULL,
		due_date TEXT NOT NULL,
		opening_balance TEXT NOT NULL,
		amount TEXT NOT NULL,
		interest TEXT NOT NULL,
		principal TEXT NOT NULL,
		closing_balance TEXT NOT NULL,
		paid INTEGER NOT NULL DEFAULT 0,
		paid_date TEXT,
		paid_amount TEXT NOT NULL DEFAULT '0',
		days_late INTEGER NOT NULL DEFAULT 0,
		UNIQUE(loan_id, number),
		FOREIGN KEY(loan_id) REFERENCES loans(id)
	);
	CREATE TABLE IF NOT EXISTS payments (
		id TEXT PRIMARY KEY,
		loan_id TEXT NOT NULL,
		installment_id TEXT NOT NULL,
		installment_number INTEGER NOT NULL,
		date TEXT NOT NULL,
		amount TEXT NOT NULL,
		interest TEXT NOT NULL,
		principal TEXT NOT NULL,
		days_late INTEGER NOT NULL,
		penalty TEXT NOT NULL,
		class TEXT NOT NULL,
		created_at DATETIME NOT NULL,
		FOREIGN KEY(loan_id) REFERENCES loans(id),
		FOREIGN KEY(installment_id) REFERENCES installments(id)
	);
	CREATE INDEX IF NOT EXISTS idx_payments_date ON payments(date);
	CREATE TABLE IF NOT EXISTS disbursements (
		id TEXT PRIMARY KEY,
		loan_id TEXT NOT NULL UNIQUE,
		amount TEXT NOT NULL,
		method TEXT NOT NULL,
		date TEXT NOT NULL,
		FOREIGN KEY(loan_id) REFERENCES loans(id)
	);
	CREATE TABLE IF NOT EXISTS precancellations (
		id TEXT PRIMARY KEY,
		loan_id TEXT NOT NULL UNIQUE,
		date TEXT NOT NULL,
		installments_paid INTEGER NOT NULL,
		remaining_principal TEXT NOT NULL,
		interest_discount TEXT NOT NULL,
		total_paid TEXT NOT NULL,
		created_at DATETIME NOT NULL,
		FOREIGN KEY(loan_id) REFERENCES loans(id)
	);
	CREATE TABLE IF NOT EXISTS entries (
		id TEXT PRIMARY KEY,
		member_id TEXT,
		date TEXT NOT NULL,
		category TEXT NOT NULL,
		amount TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		created_at DATETIME NOT NULL,
		FOREIGN KEY(member_id) REFERENCES members(id)
	);
	CREATE INDEX IF NOT EXISTS idx_entries_date ON entries(date);
	`
	_, err := s.db.Exec(schema)
	return err
}

// WithinTx runs fn inside a database transaction. Nested calls reuse the
// outer transaction.
func (s *SQLiteStore) WithinTx(ctx context.Context, fn func(tx Storage) error) error {
	if s.inTx {
		return fn(s)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(&SQLiteStore{db: s.db, q: tx, inTx: true}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if s.inTx {
		return nil
	}
	return s.db.Close()
}

// ---- members ----

const memberColumns = `id, full_name, identity, phone, email, capital, active, created_at, updated_at`

// CreateMember inserts a new member.
func (s *SQLiteStore) CreateMember(ctx context.Context, m *models.Member) error {
	_, err := s.q.ExecContext(ctx,
		`INSERT INTO members (`+memberColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.ID.String(), m.FullName, m.Identity, m.Phone, m.Email, m.Capital, m.Active, m.CreatedAt, m.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create member: %w", err)
	}
	return nil
}

// GetMember retrieves a member by id.
func (s *SQLiteStore) GetMember(ctx context.Context, id uuid.UUID) (*models.Member, error) {
	row := s.q.QueryRowContext(ctx, `SELECT `+memberColumns+` FROM members WHERE id = ?`, id.String())
	m, err := scanMember(row)
	if err != nil {
		return nil, notFoundOr(err, "failed to get member %s", id)
	}
	return m, nil
}

// GetMemberByIdentity retrieves a member by national identity number.
func (s *SQLiteStore) GetMemberByIdentity(ctx context.Context, identity string) (*models.Member, error) {
	row := s.q.QueryRowContext(ctx, `SELECT `+memberColumns+` FROM members WHERE identity = ?`, identity)
	m, err := scanMember(row)
	if err != nil {
		return nil, notFoundOr(err, "failed to get member by identity")
	}
	return m, nil
}

// UpdateMember updates name, contact data, capital and active flag.
func (s *SQLiteStore) UpdateMember(ctx context.Context, m *models.Member) error {
	result, err := s.q.ExecContext(ctx,
		`UPDATE members SET full_name = ?, phone = ?, email = ?, capital = ?, active = ?, updated_at = ? WHERE id = ?`,
		m.FullName, m.Phone, m.Email, m.Capital, m.Active, m.UpdatedAt, m.ID.String(),
	)
	if err != nil {
		return fmt.Errorf("failed to update member: %w", err)
	}
	return expectOneRow(result, "member")
}

// ListActiveMembers returns active members ordered by name.
func (s *SQLiteStore) ListActiveMembers(ctx context.Context) ([]*models.Member, error) {
	rows, err := s.q.QueryContext(ctx, `SELECT `+memberColumns+` FROM members WHERE active = 1 ORDER BY full_name ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list active members: %w", err)
	}
	defer rows.Close()

	var members []*models.Member
	for rows.Next() {
		m, err := scanMember(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan member row: %w", err)
		}
		members = append(members, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during rows iteration: %w", err)
	}
	return members, nil
}

// ---- loans ----

const loanColumns = `id, member_id, principal, term_months, annual_rate, monthly_rate, installment,
	total_interest, total_payable, first_due_date, state, min_installments_to_precancel,
	requested_at, approved_at, approved_by, rejection_reason, disbursed_at, disbursement_method,
	notes, created_at, updated_at`

// CreateLoan inserts a new loan into the database.
func (s *SQLiteStore) CreateLoan(ctx context.Context, loan *models.Loan) error {
	_, err := s.q.ExecContext(ctx,
		`INSERT INTO loans (`+loanColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		loan.ID.String(), loan.MemberID.String(), loan.Principal, loan.TermMonths, loan.AnnualRate, loan.MonthlyRate,
		loan.Installment, loan.TotalInterest, loan.TotalPayable, loan.FirstDueDate.String(), string(loan.State),
		loan.MinInstallmentsToPrecancel, loan.RequestedAt, loan.ApprovedAt, loan.ApprovedBy, loan.RejectionReason,
		nullableDate(loan.DisbursedAt), loan.DisbursementMethod, loan.Notes, loan.CreatedAt, loan.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create loan: %w", err)
	}
	return nil
}

// GetLoan retrieves a loan by its ID.
func (s *SQLiteStore) GetLoan(ctx context.Context, id uuid.UUID) (*models.Loan, error) {
	row := s.q.QueryRowContext(ctx, `SELECT `+loanColumns+` FROM loans WHERE id = ?`, id.String())
	loan, err := scanLoan(row)
	if err != nil {
		return nil, notFoundOr(err, "failed to get loan %s", id)
	}
	return loan, nil
}

// UpdateLoan writes the mutable loan fields. Principal, term and rates are
// fixed once the schedule exists and are never rewritten.
func (s *SQLiteStore) UpdateLoan(ctx context.Context, loan *models.Loan) error {
	result, err := s.q.ExecContext(ctx,
		`UPDATE loans SET state = ?, requested_at = ?, approved_at = ?, approved_by = ?, rejection_reason = ?,
		disbursed_at = ?, disbursement_method = ?, notes = ?, updated_at = ? WHERE id = ?`,
		string(loan.State), loan.RequestedAt, loan.ApprovedAt, loan.ApprovedBy, loan.RejectionReason,
		nullableDate(loan.DisbursedAt), loan.DisbursementMethod, loan.Notes, loan.UpdatedAt, loan.ID.String(),
	)
	if err != nil {
		return fmt.Errorf("failed to update loan: %w", err)
	}
	return expectOneRow(result, "loan")
}

// ListLoansByState returns loans in state, oldest request first.
func (s *SQLiteStore) ListLoansByState(ctx context.Context, state models.LoanState) ([]*models.Loan, error) {
	rows, err := s.q.QueryContext(ctx,
		`SELECT `+loanColumns+` FROM loans WHERE state = ? ORDER BY COALESCE(requested_at, created_at) ASC`, string(state))
	if err != nil {
		return nil, fmt.Errorf("failed to list loans in state %s: %w", state, err)
	}
	defer rows.Close()
	return scanLoans(rows)
}

// ListLoansByMember returns a member's loans, newest first.
func (s *SQLiteStore) ListLoansByMember(ctx context.Context, memberID uuid.UUID) ([]*models.Loan, error) {
	rows, err := s.q.QueryContext(ctx,
		`SELECT `+loanColumns+` FROM loans WHERE member_id = ? ORDER BY created_at DESC`, memberID.String())
	if err != nil {
		return nil, fmt.Errorf("failed to list loans for member %s: %w", memberID, err)
	}
	defer rows.Close()
	return scanLoans(rows)
}

// ---- installments ----

const installmentColumns = `id, loan_id, number, due_date, opening_balance, amount, interest, principal,
	closing_balance, paid, paid_date, paid_amount, days_late`

// CreateInstallments inserts a whole schedule.
func (s *SQLiteStore) CreateInstallments(ctx context.Context, installments []*models.Installment) error {
	for _, in := range installments {
		_, err := s.q.ExecContext(ctx,
			`INSERT INTO installments (`+installmentColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			in.ID.String(), in.LoanID.String(), in.Number, in.DueDate.String(), in.OpeningBalance, in.Amount,
			in.Interest, in.Principal, in.ClosingBalance, in.Paid, nullableDate(in.PaidDate), in.PaidAmount, in.DaysLate,
		)
		if err != nil {
			return fmt.Errorf("failed to create installment %d: %w", in.Number, err)
		}
	}
	return nil
}

// GetInstallments returns a loan's schedule ordered by number.
func (s *SQLiteStore) GetInstallments(ctx context.Context, loanID uuid.UUID) ([]*models.Installment, error) {
	rows, err := s.q.QueryContext(ctx,
		`SELECT `+installmentColumns+` FROM installments WHERE loan_id = ? ORDER BY number ASC`, loanID.String())
	if err != nil {
		return nil, fmt.Errorf("failed to get installments for loan %s: %w", loanID, err)
	}
	defer rows.Close()

	var installments []*models.Installment
	for rows.Next() {
		var in models.Installment
		var due string
		var paidDate sql.NullString
		if err := rows.Scan(&in.ID, &in.LoanID, &in.Number, &due, &in.OpeningBalance, &in.Amount, &in.Interest,
			&in.Principal, &in.ClosingBalance, &in.Paid, &paidDate, &in.PaidAmount, &in.DaysLate); err != nil {
			return nil, fmt.Errorf("failed to scan installment row: %w", err)
		}
		if in.DueDate, err = civil.ParseDate(due); err != nil {
			return nil, fmt.Errorf("bad due date on installment %d: %w", in.Number, err)
		}
		if in.PaidDate, err = parseNullableDate(paidDate); err != nil {
			return nil, fmt.Errorf("bad paid date on installment %d: %w", in.Number, err)
		}
		installments = append(installments, &in)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during rows iteration for installments: %w", err)
	}
	return installments, nil
}

// UpdateInstallment records the payment state of one schedule row.
func (s *SQLiteStore) UpdateInstallment(ctx context.Context, in *models.Installment) error {
	result, err := s.q.ExecContext(ctx,
		`UPDATE installments SET paid = ?, paid_date = ?, paid_amount = ?, days_late = ? WHERE id = ?`,
		in.Paid, nullableDate(in.PaidDate), in.PaidAmount, in.DaysLate, in.ID.String(),
	)
	if err != nil {
		return fmt.Errorf("failed to update installment %d: %w", in.Number, err)
	}
	return expectOneRow(result, "installment")
}

// ---- payments ----

const paymentColumns = `id, loan_id, installment_id, installment_number, date, amount, interest, principal,
	days_late, penalty, class, created_at`

// CreatePayment inserts a new payment record.
func (s *SQLiteStore) CreatePayment(ctx context.Context, p *models.Payment) error {
	_, err := s.q.ExecContext(ctx,
		`INSERT INTO payments (`+paymentColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID.String(), p.LoanID.String(), p.InstallmentID.String(), p.InstallmentNumber, p.Date.String(), p.Amount,
		p.Interest, p.Principal, p.DaysLate, p.Penalty, string(p.Class), p.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create payment: %w", err)
	}
	return nil
}

// GetPaymentsForLoan retrieves all payments for a loan in date order.
func (s *SQLiteStore) GetPaymentsForLoan(ctx context.Context, loanID uuid.UUID) ([]*models.Payment, error) {
	return s.queryPayments(ctx,
		`SELECT `+paymentColumns+` FROM payments WHERE loan_id = ? ORDER BY date ASC, installment_number ASC`,
		loanID.String())
}

// ListPaymentsBetween returns payments dated in [from, to).
func (s *SQLiteStore) ListPaymentsBetween(ctx context.Context, from, to civil.Date) ([]*models.Payment, error) {
	return s.queryPayments(ctx,
		`SELECT `+paymentColumns+` FROM payments WHERE date >= ? AND date < ? ORDER BY date ASC`,
		from.String(), to.String())
}

func (s *SQLiteStore) queryPayments(ctx context.Context, query string, args ...any) ([]*models.Payment, error) {
	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query payments: %w", err)
	}
	defer rows.Close()

	var payments []*models.Payment
	for rows.Next() {
		var p models.Payment
		var date, class string
		if err := rows.Scan(&p.ID, &p.LoanID, &p.InstallmentID, &p.InstallmentNumber, &date, &p.Amount, &p.Interest,
			&p.Principal, &p.DaysLate, &p.Penalty, &class, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan payment row: %w", err)
		}
		if p.Date, err = civil.ParseDate(date); err != nil {
			return nil, fmt.Errorf("bad payment date: %w", err)
		}
		p.Class = models.PaymentClass(class)
		payments = append(payments, &p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during rows iteration for payments: %w", err)
	}
	return payments, nil
}

// ---- disbursements & precancellations ----

// CreateDisbursement inserts the disbursement record of a loan.
func (s *SQLiteStore) CreateDisbursement(ctx context.Context, d *models.Disbursement) error {
	_, err := s.q.ExecContext(ctx,
		`INSERT INTO disbursements (id, loan_id, amount, method, date) VALUES (?, ?, ?, ?, ?)`,
		d.ID.String(), d.LoanID.String(), d.Amount, d.Method, d.Date.String(),
	)
	if err != nil {
		return fmt.Errorf("failed to create disbursement: %w", err)
	}
	return nil
}

// GetDisbursement returns the disbursement of a loan.
func (s *SQLiteStore) GetDisbursement(ctx context.Context, loanID uuid.UUID) (*models.Disbursement, error) {
	var d models.Disbursement
	var date string
	err := s.q.QueryRowContext(ctx,
		`SELECT id, loan_id, amount, method, date FROM disbursements WHERE loan_id = ?`, loanID.String(),
	).Scan(&d.ID, &d.LoanID, &d.Amount, &d.Method, &date)
	if err != nil {
		return nil, notFoundOr(err, "failed to get disbursement for loan %s", loanID)
	}
	if d.Date, err = civil.ParseDate(date); err != nil {
		return nil, fmt.Errorf("bad disbursement date: %w", err)
	}
	return &d, nil
}

// CreatePrecancellation inserts the settlement record of a loan.
func (s *SQLiteStore) CreatePrecancellation(ctx context.Context, p *models.Precancellation) error {
	_, err := s.q.ExecContext(ctx,
		`INSERT INTO precancellations (id, loan_id, date, installments_paid, remaining_principal, interest_discount, total_paid, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID.String(), p.LoanID.String(), p.Date.String(), p.InstallmentsPaid, p.RemainingPrincipal,
		p.InterestDiscount, p.TotalPaid, p.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create precancellation: %w", err)
	}
	return nil
}

// GetPrecancellation returns the settlement record of a loan.
func (s *SQLiteStore) GetPrecancellation(ctx context.Context, loanID uuid.UUID) (*models.Precancellation, error) {
	var p models.Precancellation
	var date string
	err := s.q.QueryRowContext(ctx,
		`SELECT id, loan_id, date, installments_paid, remaining_principal, interest_discount, total_paid, created_at
		FROM precancellations WHERE loan_id = ?`, loanID.String(),
	).Scan(&p.ID, &p.LoanID, &date, &p.InstallmentsPaid, &p.RemainingPrincipal, &p.InterestDiscount, &p.TotalPaid, &p.CreatedAt)
	if err != nil {
		return nil, notFoundOr(err, "failed to get precancellation for loan %s", loanID)
	}
	if p.Date, err = civil.ParseDate(date); err != nil {
		return nil, fmt.Errorf("bad precancellation date: %w", err)
	}
	return &p, nil
}

// ---- entries ----

// CreateEntry appends a contribution, fine or raffle record.
func (s *SQLiteStore) CreateEntry(ctx context.Context, e *models.Entry) error {
	var memberID any
	if e.MemberID != nil {
		memberID = e.MemberID.String()
	}
	_, err := s.q.ExecContext(ctx,
		`INSERT INTO entries (id, member_id, date, category, amount, description, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.ID.String(), memberID, e.Date.String(), string(e.Category), e.Amount, e.Description, e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create %s entry: %w", e.Category, err)
	}
	return nil
}

// ListEntriesBetween returns entries dated in [from, to).
func (s *SQLiteStore) ListEntriesBetween(ctx context.Context, from, to civil.Date) ([]*models.Entry, error) {
	rows, err := s.q.QueryContext(ctx,
		`SELECT id, member_id, date, category, amount, description, created_at FROM entries
		WHERE date >= ? AND date < ? ORDER BY date ASC`, from.String(), to.String())
	if err != nil {
		return nil, fmt.Errorf("failed to list entries: %w", err)
	}
	defer rows.Close()

	var entries []*models.Entry
	for rows.Next() {
		var e models.Entry
		var memberID uuid.NullUUID
		var date, category string
		if err := rows.Scan(&e.ID, &memberID, &date, &category, &e.Amount, &e.Description, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan entry row: %w", err)
		}
		if memberID.Valid {
			id := memberID.UUID
			e.MemberID = &id
		}
		if e.Date, err = civil.ParseDate(date); err != nil {
			return nil, fmt.Errorf("bad entry date: %w", err)
		}
		e.Category = models.EntryCategory(category)
		entries = append(entries, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during rows iteration for entries: %w", err)
	}
	return entries, nil
}

// ---- scanning helpers ----

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMember(row rowScanner) (*models.Member, error) {
	var m models.Member
	if err := row.Scan(&m.ID, &m.FullName, &m.Identity, &m.Phone, &m.Email, &m.Capital, &m.Active,
		&m.CreatedAt, &m.UpdatedAt); err != nil {
		return nil, err
	}
	return &m, nil
}

func scanLoan(row rowScanner) (*models.Loan, error) {
	var loan models.Loan
	var firstDue, state string
	var requestedAt, approvedAt sql.NullTime
	var disbursedAt sql.NullString

	err := row.Scan(&loan.ID, &loan.MemberID, &loan.Principal, &loan.TermMonths, &loan.AnnualRate, &loan.MonthlyRate,
		&loan.Installment, &loan.TotalInterest, &loan.TotalPayable, &firstDue, &state, &loan.MinInstallmentsToPrecancel,
		&requestedAt, &approvedAt, &loan.ApprovedBy, &loan.RejectionReason, &disbursedAt, &loan.DisbursementMethod,
		&loan.Notes, &loan.CreatedAt, &loan.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if loan.FirstDueDate, err = civil.ParseDate(firstDue); err != nil {
		return nil, fmt.Errorf("bad first due date: %w", err)
	}
	if loan.DisbursedAt, err = parseNullableDate(disbursedAt); err != nil {
		return nil, fmt.Errorf("bad disbursement date: %w", err)
	}
	loan.State = models.LoanState(state)
	loan.RequestedAt = nullableTime(requestedAt)
	loan.ApprovedAt = nullableTime(approvedAt)
	return &loan, nil
}

func scanLoans(rows *sql.Rows) ([]*models.Loan, error) {
	var loans []*models.Loan
	for rows.Next() {
		loan, err := scanLoan(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan loan row: %w", err)
		}
		loans = append(loans, loan)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during rows iteration: %w", err)
	}
	return loans, nil
}

func nullableDate(d *civil.Date) any {
	if d == nil {
		return nil
	}
	return d.String()
}

func parseNullableDate(s sql.NullString) (*civil.Date, error) {
	if !s.Valid || strings.TrimSpace(s.String) == "" {
		return nil, nil
	}
	d, err := civil.ParseDate(s.String)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func nullableTime(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}

func notFoundOr(err error, format string, args ...any) error {
	if err == sql.ErrNoRows {
		return ErrNotFound
	}
	return fmt.Errorf(format+": %w", append(args, err)...)
}

func expectOneRow(result sql.Result, what string) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("%s: %w", what, ErrNotFound)
	}
	return nil
}
