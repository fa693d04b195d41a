package handlers

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/upb/payment-control-plane/models"
	"github.com/upb/payment-control-plane/utils"
)

// LedgerReader exposes ledger balances and postings.
type LedgerReader interface {
	Account(ctx context.Context, id string) (*models.Account, error)
	Accounts(ctx context.Context) ([]*models.Account, error)
	Journal(ctx context.Context, correlationID string) ([]models.JournalEntry, error)
}

// LedgerHandler handles ledger HTTP requests
type LedgerHandler struct {
	ledger LedgerReader
	logger *zap.Logger
}

// NewLedgerHandler creates a new LedgerHandler
func NewLedgerHandler(ledger LedgerReader, logger *zap.Logger) *LedgerHandler {
	return &LedgerHandler{
		ledger: ledger,
		logger: logger,
	}
}

// HandleListAccounts handles GET /api/v1/ledger/accounts
func (h *LedgerHandler) HandleListAccounts(w http.ResponseWriter, r *http.Request) {
	accounts, err := h.ledger.Accounts(r.Context())
	if err != nil {
		h.logger.Error("failed to list accounts", zap.Error(err))
		HandleServiceError(w, err, h.logger)
		return
	}
	if accounts == nil {
		accounts = []*models.Account{}
	}
	_ = utils.WriteOK(w, accounts)
}

// HandleGetAccount handles GET /api/v1/ledger/accounts/{accountID}
func (h *LedgerHandler) HandleGetAccount(w http.ResponseWriter, r *http.Request) {
	account, err := h.ledger.Account(r.Context(), chi.URLParam(r, "accountID"))
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}
	_ = utils.WriteOK(w, account)
}

// HandleJournal handles GET /api/v1/ledger/journal/{correlationID}
func (h *LedgerHandler) HandleJournal(w http.ResponseWriter, r *http.Request) {
	correlationID := chi.URLParam(r, "correlationID")
	entries, err := h.ledger.Journal(r.Context(), correlationID)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}
	if len(entries) == 0 {
		_ = utils.WriteNotFound(w, "No postings for correlation id")
		return
	}
	_ = utils.WriteOK(w, entries)
}
