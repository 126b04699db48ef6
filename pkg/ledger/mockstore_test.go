package ledger

import (
	"context"
	"sort"
	"sync"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"
	"github.com/mcclellann/jdaLoan/pkg/caldate"
	"github.com/mcclellann/jdaLoan/pkg/models"
	"github.com/mcclellann/jdaLoan/pkg/store"
)

// MockStore is an in-memory implementation of the Storage interface for
// testing. WithinTx snapshots every table and restores it when fn fails,
// and failOn makes a named method return an error.
type MockStore struct {
	txMu sync.Mutex
	mu   sync.Mutex

	members         map[uuid.UUID]models.Member
	loans           map[uuid.UUID]models.Loan
	installments    map[uuid.UUID][]models.Installment
	payments        []models.Payment
	disbursements   map[uuid.UUID]models.Disbursement
	precancels      map[uuid.UUID]models.Precancellation
	entries         []models.Entry
	failOn          map[string]error
	loanUpdateCount int
}

func NewMockStore() *MockStore {
	return &MockStore{
		members:       make(map[uuid.UUID]models.Member),
		loans:         make(map[uuid.UUID]models.Loan),
		installments:  make(map[uuid.UUID][]models.Installment),
		disbursements: make(map[uuid.UUID]models.Disbursement),
		precancels:    make(map[uuid.UUID]models.Precancellation),
		failOn:        make(map[string]error),
	}
}

// FailOn makes every later call of method return err.
func (m *MockStore) FailOn(method string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failOn[method] = err
}

func (m *MockStore) fail(method string) error {
	return m.failOn[method]
}

type mockTx struct {
	*MockStore
}

// WithinTx joins the outer transaction instead of opening a new one.
func (t mockTx) WithinTx(_ context.Context, fn func(tx store.Storage) error) error {
	return fn(t)
}

func (m *MockStore) WithinTx(_ context.Context, fn func(tx store.Storage) error) error {
	m.txMu.Lock()
	defer m.txMu.Unlock()

	m.mu.Lock()
	snap := m.snapshot()
	m.mu.Unlock()

	if err := fn(mockTx{m}); err != nil {
		m.mu.Lock()
		m.restore(snap)
		m.mu.Unlock()
		return err
	}
	return nil
}

func (m *MockStore) snapshot() *MockStore {
	s := NewMockStore()
	for k, v := range m.members {
		s.members[k] = v
	}
	for k, v := range m.loans {
		s.loans[k] = v
	}
	for k, v := range m.installments {
		s.installments[k] = append([]models.Installment(nil), v...)
	}
	for k, v := range m.disbursements {
		s.disbursements[k] = v
	}
	for k, v := range m.precancels {
		s.precancels[k] = v
	}
	s.payments = append([]models.Payment(nil), m.payments...)
	s.entries = append([]models.Entry(nil), m.entries...)
	return s
}

func (m *MockStore) restore(s *MockStore) {
	m.members = s.members
	m.loans = s.loans
	m.installments = s.installments
	m.disbursements = s.disbursements
	m.precancels = s.precancels
	m.payments = s.payments
	m.entries = s.entries
}

func (m *MockStore) Close() error {
	return nil
}

func (m *MockStore) CreateMember(_ context.Context, member *models.Member) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("CreateMember"); err != nil {
		return err
	}
	m.members[member.ID] = *member
	return nil
}

func (m *MockStore) GetMember(_ context.Context, id uuid.UUID) (*models.Member, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	member, ok := m.members[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &member, nil
}

func (m *MockStore) GetMemberByIdentity(_ context.Context, identity string) (*models.Member, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, member := range m.members {
		if member.Identity == identity {
			return &member, nil
		}
	}
	return nil, store.ErrNotFound
}

func (m *MockStore) UpdateMember(_ context.Context, member *models.Member) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("UpdateMember"); err != nil {
		return err
	}
	if _, ok := m.members[member.ID]; !ok {
		return store.ErrNotFound
	}
	m.members[member.ID] = *member
	return nil
}

func (m *MockStore) ListActiveMembers(_ context.Context) ([]*models.Member, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var members []*models.Member
	for _, member := range m.members {
		if member.Active {
			member := member
			members = append(members, &member)
		}
	}
	sort.Slice(members, func(i, j int) bool { return members[i].FullName < members[j].FullName })
	return members, nil
}

func (m *MockStore) CreateLoan(_ context.Context, loan *models.Loan) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("CreateLoan"); err != nil {
		return err
	}
	m.loans[loan.ID] = *loan
	return nil
}

func (m *MockStore) GetLoan(_ context.Context, id uuid.UUID) (*models.Loan, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	loan, ok := m.loans[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &loan, nil
}

func (m *MockStore) UpdateLoan(_ context.Context, loan *models.Loan) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("UpdateLoan"); err != nil {
		return err
	}
	if _, ok := m.loans[loan.ID]; !ok {
		return store.ErrNotFound
	}
	m.loans[loan.ID] = *loan
	m.loanUpdateCount++
	return nil
}

func (m *MockStore) ListLoansByState(_ context.Context, state models.LoanState) ([]*models.Loan, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var loans []*models.Loan
	for _, loan := range m.loans {
		if loan.State == state {
			loan := loan
			loans = append(loans, &loan)
		}
	}
	sort.Slice(loans, func(i, j int) bool { return loans[i].CreatedAt.Before(loans[j].CreatedAt) })
	return loans, nil
}

func (m *MockStore) ListLoansByMember(_ context.Context, memberID uuid.UUID) ([]*models.Loan, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var loans []*models.Loan
	for _, loan := range m.loans {
		if loan.MemberID == memberID {
			loan := loan
			loans = append(loans, &loan)
		}
	}
	return loans, nil
}

func (m *MockStore) CreateInstallments(_ context.Context, installments []*models.Installment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("CreateInstallments"); err != nil {
		return err
	}
	for _, in := range installments {
		m.installments[in.LoanID] = append(m.installments[in.LoanID], *in)
	}
	return nil
}

func (m *MockStore) GetInstallments(_ context.Context, loanID uuid.UUID) ([]*models.Installment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.Installment
	for _, in := range m.installments[loanID] {
		in := in
		out = append(out, &in)
	}
	return out, nil
}

func (m *MockStore) UpdateInstallment(_ context.Context, installment *models.Installment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("UpdateInstallment"); err != nil {
		return err
	}
	rows := m.installments[installment.LoanID]
	for i := range rows {
		if rows[i].ID == installment.ID {
			rows[i] = *installment
			return nil
		}
	}
	return store.ErrNotFound
}

func (m *MockStore) CreatePayment(_ context.Context, payment *models.Payment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("CreatePayment"); err != nil {
		return err
	}
	m.payments = append(m.payments, *payment)
	return nil
}

func (m *MockStore) GetPaymentsForLoan(_ context.Context, loanID uuid.UUID) ([]*models.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.Payment
	for _, p := range m.payments {
		if p.LoanID == loanID {
			p := p
			out = append(out, &p)
		}
	}
	return out, nil
}

func (m *MockStore) ListPaymentsBetween(_ context.Context, from, to civil.Date) ([]*models.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.Payment
	for _, p := range m.payments {
		if caldate.InRange(p.Date, from, to) {
			p := p
			out = append(out, &p)
		}
	}
	return out, nil
}

func (m *MockStore) CreateDisbursement(_ context.Context, d *models.Disbursement) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("CreateDisbursement"); err != nil {
		return err
	}
	m.disbursements[d.LoanID] = *d
	return nil
}

func (m *MockStore) GetDisbursement(_ context.Context, loanID uuid.UUID) (*models.Disbursement, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.disbursements[loanID]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &d, nil
}

func (m *MockStore) CreatePrecancellation(_ context.Context, p *models.Precancellation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("CreatePrecancellation"); err != nil {
		return err
	}
	m.precancels[p.LoanID] = *p
	return nil
}

func (m *MockStore) GetPrecancellation(_ context.Context, loanID uuid.UUID) (*models.Precancellation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.precancels[loanID]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &p, nil
}

func (m *MockStore) CreateEntry(_ context.Context, e *models.Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("CreateEntry"); err != nil {
		return err
	}
	m.entries = append(m.entries, *e)
	return nil
}

func (m *MockStore) ListEntriesBetween(_ context.Context, from, to civil.Date) ([]*models.Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.Entry
	for _, e := range m.entries {
		if caldate.InRange(e.Date, from, to) {
			e := e
			out = append(out, &e)
		}
	}
	return out, nil
}
