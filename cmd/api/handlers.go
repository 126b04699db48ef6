package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"cloud.google.com/go/civil"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/mcclellann/jdaLoan/pkg/caldate"
	"github.com/mcclellann/jdaLoan/pkg/ledger"
	"github.com/mcclellann/jdaLoan/pkg/logger"
	"github.com/mcclellann/jdaLoan/pkg/models"
	"github.com/mcclellann/jdaLoan/pkg/store"
	"github.com/shopspring/decimal"
)

var validate = validator.New()

// Server holds the ledger instance.
type Server struct {
	ledger  *ledger.Ledger
	storage store.Storage // Keep a reference to the storage to close it
}

func NewServer(l *ledger.Ledger, s store.Storage) *Server {
	return &Server{
		ledger:  l,
		storage: s,
	}
}

// NewRouter registers every route of the API.
func NewRouter(server *Server) *mux.Router {
	router := mux.NewRouter()

	router.HandleFunc("/members", server.listMembersHandler).Methods("GET")
	router.HandleFunc("/members", server.registerMemberHandler).Methods("POST")
	router.HandleFunc("/members/{id}", server.getMemberHandler).Methods("GET")
	router.HandleFunc("/members/{id}/deactivate", server.deactivateMemberHandler).Methods("POST")
	router.HandleFunc("/members/{id}/contributions/weekly", server.weeklyContributionHandler).Methods("POST")
	router.HandleFunc("/entries", server.recordEntryHandler).Methods("POST")

	router.HandleFunc("/quote", server.quoteHandler).Methods("GET")
	router.HandleFunc("/loans", server.listLoansHandler).Methods("GET")
	router.HandleFunc("/loans", server.simulateLoanHandler).Methods("POST")
	router.HandleFunc("/loans/{id}", server.getLoanHandler).Methods("GET")
	router.HandleFunc("/loans/{id}/submit", server.submitLoanHandler).Methods("POST")
	router.HandleFunc("/loans/{id}/approve", server.approveLoanHandler).Methods("POST")
	router.HandleFunc("/loans/{id}/reject", server.rejectLoanHandler).Methods("POST")
	router.HandleFunc("/loans/{id}/disburse", server.disburseLoanHandler).Methods("POST")
	router.HandleFunc("/loans/{id}/precancel", server.precancelLoanHandler).Methods("POST")
	router.HandleFunc("/loans/{id}/payments", server.recordPaymentHandler).Methods("POST")

	router.HandleFunc("/balances/{year}/{quarter}", server.balanceHandler).Methods("GET")
	router.HandleFunc("/overdue", server.overdueHandler).Methods("GET")

	return router
}

// ---- members ----

type memberRequest struct {
	FullName string `json:"full_name" validate:"required"`
	Identity string `json:"identity" validate:"required,len=10,numeric"`
	Phone    string `json:"phone" validate:"omitempty,max=20"`
	Email    string `json:"email" validate:"omitempty,email"`
}

func (s *Server) registerMemberHandler(w http.ResponseWriter, r *http.Request) {
	var req memberRequest
	if !decodeRequest(w, r, &req) {
		return
	}

	member, err := s.ledger.RegisterMember(r.Context(), req.FullName, req.Identity, req.Phone, req.Email)
	if err != nil {
		writeError(w, "register member", err)
		return
	}
	writeJSON(w, http.StatusCreated, member)
}

func (s *Server) listMembersHandler(w http.ResponseWriter, r *http.Request) {
	members, err := s.ledger.ListActiveMembers(r.Context())
	if err != nil {
		writeError(w, "list members", err)
		return
	}
	if members == nil {
		members = []*models.Member{}
	}
	writeJSON(w, http.StatusOK, members)
}

func (s *Server) getMemberHandler(w http.ResponseWriter, r *http.Request) {
	memberID, ok := pathID(w, r, "Invalid member ID")
	if !ok {
		return
	}

	member, err := s.ledger.GetMember(r.Context(), memberID)
	if err != nil {
		writeError(w, "get member", err)
		return
	}
	loans, err := s.ledger.ListLoansByMember(r.Context(), memberID)
	if err != nil {
		writeError(w, "list member loans", err)
		return
	}
	if loans == nil {
		loans = []*models.Loan{}
	}
	writeJSON(w, http.StatusOK, struct {
		*models.Member
		Loans []*models.Loan `json:"loans"`
	}{member, loans})
}

func (s *Server) deactivateMemberHandler(w http.ResponseWriter, r *http.Request) {
	memberID, ok := pathID(w, r, "Invalid member ID")
	if !ok {
		return
	}

	member, err := s.ledger.DeactivateMember(r.Context(), memberID)
	if err != nil {
		writeError(w, "deactivate member", err)
		return
	}
	writeJSON(w, http.StatusOK, member)
}

func (s *Server) weeklyContributionHandler(w http.ResponseWriter, r *http.Request) {
	memberID, ok := pathID(w, r, "Invalid member ID")
	if !ok {
		return
	}
	var req struct {
		Date *civil.Date `json:"date"`
	}
	if !decodeOptional(w, r, &req) {
		return
	}
	day := s.ledger.Today()
	if req.Date != nil {
		day = *req.Date
	}

	entries, err := s.ledger.RecordWeeklyContribution(r.Context(), memberID, day)
	if err != nil {
		writeError(w, "record weekly contribution", err)
		return
	}
	writeJSON(w, http.StatusCreated, entries)
}

func (s *Server) recordEntryHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		MemberID    *uuid.UUID      `json:"member_id"`
		Date        civil.Date      `json:"date"`
		Category    string          `json:"category" validate:"required,oneof=capital savings fine raffle"`
		Amount      decimal.Decimal `json:"amount"`
		Description string          `json:"description" validate:"max=255"`
	}
	if !decodeRequest(w, r, &req) {
		return
	}
	if caldate.IsZero(req.Date) {
		req.Date = s.ledger.Today()
	}

	entry, err := s.ledger.RecordEntry(r.Context(), req.MemberID, req.Date, models.EntryCategory(req.Category), req.Amount, req.Description)
	if err != nil {
		writeError(w, "record entry", err)
		return
	}
	writeJSON(w, http.StatusCreated, entry)
}

// ---- loans ----

func (s *Server) quoteHandler(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	principal, err := decimal.NewFromString(q.Get("principal"))
	if err != nil {
		http.Error(w, "Invalid principal", http.StatusBadRequest)
		return
	}
	term, err := strconv.Atoi(q.Get("term"))
	if err != nil {
		http.Error(w, "Invalid term", http.StatusBadRequest)
		return
	}
	day, ok := queryDate(w, r, "date", s.ledger.Today())
	if !ok {
		return
	}

	quote, err := s.ledger.Quote(principal, term, day)
	if err != nil {
		writeError(w, "quote", err)
		return
	}
	writeJSON(w, http.StatusOK, quote)
}

type loanDetail struct {
	*models.Loan
	Schedule []*models.Installment `json:"schedule"`
	Payments []*models.Payment     `json:"payments,omitempty"`
}

// simulateLoanHandler creates a simulated loan for the member with the given
// identity, registering the member on first request.
func (s *Server) simulateLoanHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		memberRequest
		Principal   decimal.Decimal `json:"principal"`
		TermMonths  int             `json:"term_months" validate:"required,min=1"`
		RequestDate *civil.Date     `json:"request_date"`
		Notes       string          `json:"notes" validate:"max=500"`
	}
	if !decodeRequest(w, r, &req) {
		return
	}
	day := s.ledger.Today()
	if req.RequestDate != nil {
		day = *req.RequestDate
	}

	applicant := ledger.Applicant{
		FullName: req.FullName,
		Identity: req.Identity,
		Phone:    req.Phone,
		Email:    req.Email,
	}
	_, loan, schedule, err := s.ledger.RequestLoan(r.Context(), applicant, req.Principal, req.TermMonths, day, req.Notes)
	if err != nil {
		writeError(w, "simulate loan", err)
		return
	}
	writeJSON(w, http.StatusCreated, loanDetail{Loan: loan, Schedule: schedule})
}

func (s *Server) listLoansHandler(w http.ResponseWriter, r *http.Request) {
	state := models.LoanState(r.URL.Query().Get("state"))
	if state == "" {
		state = models.LoanRequested
	}
	if !state.Valid() {
		http.Error(w, "Invalid loan state", http.StatusBadRequest)
		return
	}

	loans, err := s.ledger.ListLoansByState(r.Context(), state)
	if err != nil {
		writeError(w, "list loans", err)
		return
	}
	if loans == nil {
		loans = []*models.Loan{}
	}
	writeJSON(w, http.StatusOK, loans)
}

func (s *Server) getLoanHandler(w http.ResponseWriter, r *http.Request) {
	loanID, ok := pathID(w, r, "Invalid loan ID")
	if !ok {
		return
	}

	loan, err := s.ledger.GetLoan(r.Context(), loanID)
	if err != nil {
		writeError(w, "get loan", err)
		return
	}
	schedule, err := s.ledger.GetSchedule(r.Context(), loanID)
	if err != nil {
		writeError(w, "get schedule", err)
		return
	}
	payments, err := s.ledger.GetPayments(r.Context(), loanID)
	if err != nil {
		writeError(w, "get payments", err)
		return
	}
	writeJSON(w, http.StatusOK, loanDetail{Loan: loan, Schedule: schedule, Payments: payments})
}

func (s *Server) submitLoanHandler(w http.ResponseWriter, r *http.Request) {
	loanID, ok := pathID(w, r, "Invalid loan ID")
	if !ok {
		return
	}
	loan, err := s.ledger.Submit(r.Context(), loanID)
	if err != nil {
		writeError(w, "submit loan", err)
		return
	}
	writeJSON(w, http.StatusOK, loan)
}

func (s *Server) approveLoanHandler(w http.ResponseWriter, r *http.Request) {
	loanID, ok := pathID(w, r, "Invalid loan ID")
	if !ok {
		return
	}
	var req struct {
		Approver string `json:"approver" validate:"required,max=100"`
	}
	if !decodeRequest(w, r, &req) {
		return
	}

	loan, err := s.ledger.Approve(r.Context(), loanID, req.Approver)
	if err != nil {
		writeError(w, "approve loan", err)
		return
	}
	writeJSON(w, http.StatusOK, loan)
}

func (s *Server) rejectLoanHandler(w http.ResponseWriter, r *http.Request) {
	loanID, ok := pathID(w, r, "Invalid loan ID")
	if !ok {
		return
	}
	var req struct {
		Reason string `json:"reason" validate:"required,max=500"`
	}
	if !decodeRequest(w, r, &req) {
		return
	}

	loan, err := s.ledger.Reject(r.Context(), loanID, req.Reason)
	if err != nil {
		writeError(w, "reject loan", err)
		return
	}
	writeJSON(w, http.StatusOK, loan)
}

func (s *Server) disburseLoanHandler(w http.ResponseWriter, r *http.Request) {
	loanID, ok := pathID(w, r, "Invalid loan ID")
	if !ok {
		return
	}
	var req struct {
		Method string      `json:"method" validate:"required,max=50"`
		Date   *civil.Date `json:"date"`
	}
	if !decodeRequest(w, r, &req) {
		return
	}
	day := s.ledger.Today()
	if req.Date != nil {
		day = *req.Date
	}

	loan, disbursement, err := s.ledger.Disburse(r.Context(), loanID, req.Method, day)
	if err != nil {
		writeError(w, "disburse loan", err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		Loan         *models.Loan         `json:"loan"`
		Disbursement *models.Disbursement `json:"disbursement"`
	}{loan, disbursement})
}

func (s *Server) recordPaymentHandler(w http.ResponseWriter, r *http.Request) {
	loanID, ok := pathID(w, r, "Invalid loan ID")
	if !ok {
		return
	}
	var req struct {
		Number int             `json:"installment_number" validate:"required,min=1"`
		Amount decimal.Decimal `json:"amount"`
		Date   *civil.Date     `json:"date"`
	}
	if !decodeRequest(w, r, &req) {
		return
	}
	day := s.ledger.Today()
	if req.Date != nil {
		day = *req.Date
	}

	payment, err := s.ledger.PayInstallment(r.Context(), loanID, req.Number, day, req.Amount)
	if err != nil {
		writeError(w, "record payment", err)
		return
	}
	writeJSON(w, http.StatusCreated, payment)
}

func (s *Server) precancelLoanHandler(w http.ResponseWriter, r *http.Request) {
	loanID, ok := pathID(w, r, "Invalid loan ID")
	if !ok {
		return
	}
	var req struct {
		Date *civil.Date `json:"date"`
	}
	if !decodeOptional(w, r, &req) {
		return
	}
	day := s.ledger.Today()
	if req.Date != nil {
		day = *req.Date
	}

	p, err := s.ledger.Precancel(r.Context(), loanID, day)
	if err != nil {
		writeError(w, "precancel loan", err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

// ---- reports ----

func (s *Server) balanceHandler(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	year, err := strconv.Atoi(vars["year"])
	if err != nil {
		http.Error(w, "Invalid year", http.StatusBadRequest)
		return
	}
	quarter, err := strconv.Atoi(vars["quarter"])
	if err != nil {
		http.Error(w, "Invalid quarter", http.StatusBadRequest)
		return
	}

	report, err := s.ledger.AggregateQuarter(r.Context(), quarter, year)
	if err != nil {
		writeError(w, "aggregate quarter", err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) overdueHandler(w http.ResponseWriter, r *http.Request) {
	asOf, ok := queryDate(w, r, "as_of", s.ledger.Today())
	if !ok {
		return
	}

	overdue, err := s.ledger.OverdueInstallments(r.Context(), asOf)
	if err != nil {
		writeError(w, "list overdue installments", err)
		return
	}
	if overdue == nil {
		overdue = []*models.OverdueInstallment{}
	}
	writeJSON(w, http.StatusOK, overdue)
}

// ---- helpers ----

func pathID(w http.ResponseWriter, r *http.Request, msg string) (uuid.UUID, bool) {
	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		http.Error(w, msg, http.StatusBadRequest)
		return uuid.Nil, false
	}
	return id, true
}

func queryDate(w http.ResponseWriter, r *http.Request, key string, fallback civil.Date) (civil.Date, bool) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback, true
	}
	d, err := caldate.Parse(raw)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return civil.Date{}, false
	}
	return d, true
}

func decodeRequest(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return false
	}
	if err := validate.Struct(dst); err != nil {
		http.Error(w, fmt.Sprintf("Invalid request: %v", err), http.StatusBadRequest)
		return false
	}
	return true
}

// decodeOptional is decodeRequest for endpoints whose body may be empty.
func decodeOptional(w http.ResponseWriter, r *http.Request, dst any) bool {
	err := json.NewDecoder(r.Body).Decode(dst)
	if err != nil && !errors.Is(err, io.EOF) {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("Error encoding response: %v", err)
	}
}

// statusFor maps ledger error kinds to HTTP status codes. Abandoned or
// timed-out requests map to 503.
func statusFor(err error) int {
	var (
		amountErr     *ledger.InvalidAmountError
		termErr       *ledger.InvalidTermError
		identityErr   *ledger.InvalidIdentityError
		nameErr       *ledger.InvalidNameError
		quarterErr    *ledger.InvalidQuarterError
		entryErr      *ledger.InvalidEntryError
		transitionErr *ledger.InvalidTransitionError
		paidErr       *ledger.AlreadyPaidError
		eligibleErr   *ledger.PrecancellationNotEligibleError
		duplicateErr  *ledger.DuplicateIdentityError
		inactiveErr   *ledger.MemberInactiveError
		installErr    *ledger.InstallmentNotFoundError
	)
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	case errors.Is(err, store.ErrNotFound), errors.As(err, &installErr):
		return http.StatusNotFound
	case errors.As(err, &amountErr), errors.As(err, &termErr), errors.As(err, &identityErr),
		errors.As(err, &nameErr), errors.As(err, &quarterErr), errors.As(err, &entryErr):
		return http.StatusBadRequest
	case errors.As(err, &transitionErr), errors.As(err, &paidErr), errors.As(err, &eligibleErr),
		errors.As(err, &duplicateErr), errors.As(err, &inactiveErr):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, op string, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		logger.Error("Error during %s: %v", op, err)
		http.Error(w, fmt.Sprintf("Failed to %s", op), status)
		return
	}
	if status == http.StatusNotFound && errors.Is(err, store.ErrNotFound) {
		http.Error(w, "Not found", status)
		return
	}
	logger.Debug("Rejected %s: %v", op, err)
	http.Error(w, err.Error(), status)
}
