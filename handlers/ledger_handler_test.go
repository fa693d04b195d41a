package handlers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/upb/payment-control-plane/models"
	"github.com/upb/payment-control-plane/repositories/memory"
	"github.com/upb/payment-control-plane/services/ledger"
	"github.com/upb/payment-control-plane/services/policy"
)

func newLedgerEngine(t *testing.T) *ledger.Engine {
	t.Helper()
	data, err := os.ReadFile("../policies/default.json")
	require.NoError(t, err)
	compiled, err := policy.Parse(data)
	require.NoError(t, err)

	repos := memory.NewRepositories()
	return ledger.NewEngine(compiled, repos.Accounts, repos.Journal, memory.NewTransactionManager(), zap.NewNop())
}

type failingLedger struct{}

func (failingLedger) Account(context.Context, string) (*models.Account, error) {
	return nil, errors.New("store down")
}

func (failingLedger) Accounts(context.Context) ([]*models.Account, error) {
	return nil, errors.New("store down")
}

func (failingLedger) Journal(context.Context, string) ([]models.JournalEntry, error) {
	return nil, errors.New("store down")
}

func TestHandleListAccounts(t *testing.T) {
	t.Run("empty ledger", func(t *testing.T) {
		handler := NewLedgerHandler(newLedgerEngine(t), zap.NewNop())

		w := httptest.NewRecorder()
		handler.HandleListAccounts(w, httptest.NewRequest(http.MethodGet, "/api/v1/ledger/accounts", nil))

		assert.Equal(t, http.StatusOK, w.Code)
		var accounts []models.Account
		decodeData(t, w, &accounts)
		assert.Empty(t, accounts)
	})

	t.Run("balances after a posting", func(t *testing.T) {
		engine := newLedgerEngine(t)
		_, err := engine.Execute(context.Background(), models.TransactionRequest{
			CorrelationID:      "c-1",
			Amount:             decimal.NewFromInt(100),
			Currency:           "USD",
			SourceAccount:      "acct-1",
			DestinationAccount: "acct-2",
		})
		require.NoError(t, err)

		handler := NewLedgerHandler(engine, zap.NewNop())
		w := httptest.NewRecorder()
		handler.HandleListAccounts(w, httptest.NewRequest(http.MethodGet, "/api/v1/ledger/accounts", nil))

		assert.Equal(t, http.StatusOK, w.Code)
		var accounts []models.Account
		decodeData(t, w, &accounts)
		require.Len(t, accounts, 2)

		balances := map[string]decimal.Decimal{}
		for _, a := range accounts {
			balances[a.ID] = a.Balance
		}
		assert.True(t, balances["acct-1"].Equal(decimal.NewFromInt(-100)))
		assert.True(t, balances["acct-2"].Equal(decimal.NewFromInt(100)))
	})

	t.Run("store failure", func(t *testing.T) {
		handler := NewLedgerHandler(failingLedger{}, zap.NewNop())

		w := httptest.NewRecorder()
		handler.HandleListAccounts(w, httptest.NewRequest(http.MethodGet, "/api/v1/ledger/accounts", nil))

		assert.Equal(t, http.StatusInternalServerError, w.Code)
	})
}

func TestHandleJournal(t *testing.T) {
	engine := newLedgerEngine(t)
	_, err := engine.Execute(context.Background(), models.TransactionRequest{
		CorrelationID:      "c-2",
		Amount:             decimal.NewFromInt(40),
		Currency:           "USD",
		SourceAccount:      "acct-1",
		DestinationAccount: "acct-2",
	})
	require.NoError(t, err)
	handler := NewLedgerHandler(engine, zap.NewNop())

	t.Run("postings for a request", func(t *testing.T) {
		w := httptest.NewRecorder()
		req := withURLParam(httptest.NewRequest(http.MethodGet, "/api/v1/ledger/journal/c-2", nil), "correlationID", "c-2")
		handler.HandleJournal(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		var entries []models.JournalEntry
		decodeData(t, w, &entries)
		assert.Len(t, entries, 2)
	})

	t.Run("unknown request", func(t *testing.T) {
		w := httptest.NewRecorder()
		req := withURLParam(httptest.NewRequest(http.MethodGet, "/api/v1/ledger/journal/nope", nil), "correlationID", "nope")
		handler.HandleJournal(w, req)

		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}

func TestHandleGetAccount(t *testing.T) {
	engine := newLedgerEngine(t)
	_, err := engine.Execute(context.Background(), models.TransactionRequest{
		CorrelationID:      "c-3",
		Amount:             decimal.NewFromInt(15),
		Currency:           "USD",
		SourceAccount:      "acct-1",
		DestinationAccount: "acct-2",
	})
	require.NoError(t, err)
	handler := NewLedgerHandler(engine, zap.NewNop())

	t.Run("known account", func(t *testing.T) {
		w := httptest.NewRecorder()
		req := withURLParam(httptest.NewRequest(http.MethodGet, "/api/v1/ledger/accounts/acct-2", nil), "accountID", "acct-2")
		handler.HandleGetAccount(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		var account models.Account
		decodeData(t, w, &account)
		assert.Equal(t, "acct-2", account.ID)
		assert.True(t, account.Balance.Equal(decimal.NewFromInt(15)))
	})

	t.Run("unknown account", func(t *testing.T) {
		w := httptest.NewRecorder()
		req := withURLParam(httptest.NewRequest(http.MethodGet, "/api/v1/ledger/accounts/acct-404", nil), "accountID", "acct-404")
		handler.HandleGetAccount(w, req)

		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("store failure", func(t *testing.T) {
		handler := NewLedgerHandler(failingLedger{}, zap.NewNop())
		w := httptest.NewRecorder()
		req := withURLParam(httptest.NewRequest(http.MethodGet, "/api/v1/ledger/accounts/acct-1", nil), "accountID", "acct-1")
		handler.HandleGetAccount(w, req)

		assert.Equal(t, http.StatusInternalServerError, w.Code)
	})
}
