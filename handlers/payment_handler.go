package handlers

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/upb/payment-control-plane/internal/observability"
	"github.com/upb/payment-control-plane/models"
	"github.com/upb/payment-control-plane/services/authorization"
	"github.com/upb/payment-control-plane/services/speculative"
	"github.com/upb/payment-control-plane/utils"
)

// Authorizer runs a request through the full pipeline.
type Authorizer interface {
	Authorize(ctx context.Context, tx models.TransactionRequest) (*authorization.Outcome, error)
	Outcome(correlationID string) (authorization.Outcome, bool)
}

// Decider produces a fused decision without settling it.
type Decider interface {
	Execute(ctx context.Context, tx models.TransactionRequest) (*models.FusionOutcome, error)
}

// Settler submits a transaction to a settlement chain.
type Settler interface {
	Settle(ctx context.Context, tx models.TransactionRequest) ([]models.SettlementRecord, error)
}

// SettleResponse is the body of a direct settlement.
type SettleResponse struct {
	CorrelationID string                    `json:"correlation_id"`
	Records       []models.SettlementRecord `json:"records"`
}

// SpeculateResponse pairs the fused decision with its speculative ranking.
type SpeculateResponse struct {
	Fusion      *models.FusionOutcome `json:"fusion"`
	Speculative speculative.Result    `json:"speculative"`
}

// PaymentHandler handles payment HTTP requests
type PaymentHandler struct {
	authorizer Authorizer
	decider    Decider
	settler    Settler
	paths      []models.SpeculativePath
	logger     *zap.Logger
}

// NewPaymentHandler creates a new PaymentHandler
func NewPaymentHandler(authorizer Authorizer, decider Decider, settler Settler, paths []models.SpeculativePath, logger *zap.Logger) *PaymentHandler {
	if len(paths) == 0 {
		paths = speculative.DefaultPaths()
	}
	return &PaymentHandler{
		authorizer: authorizer,
		decider:    decider,
		settler:    settler,
		paths:      paths,
		logger:     logger,
	}
}

// decodeTransaction reads and validates a transaction request body and
// ensures it carries a correlation id. It writes the error response itself.
func (h *PaymentHandler) decodeTransaction(w http.ResponseWriter, r *http.Request) (models.TransactionRequest, bool) {
	var tx models.TransactionRequest
	if err := utils.DecodeJSON(r, &tx); err != nil {
		HandleValidationError(w, err, h.logger)
		return tx, false
	}
	if err := utils.ValidateStruct(tx); err != nil {
		HandleValidationError(w, err, h.logger)
		return tx, false
	}
	return correlate(r, tx), true
}

// correlate prefers the body's correlation id, then the request's, and
// generates one when neither is set.
func correlate(r *http.Request, tx models.TransactionRequest) models.TransactionRequest {
	if tx.CorrelationID == "" {
		tx.CorrelationID = observability.CorrelationID(r.Context())
	}
	return tx.EnsureCorrelation()
}

// HandleAuthorize handles POST /api/v1/payments/authorize
func (h *PaymentHandler) HandleAuthorize(w http.ResponseWriter, r *http.Request) {
	var tx models.TransactionRequest
	if err := utils.DecodeJSON(r, &tx); err != nil {
		HandleValidationError(w, err, h.logger)
		return
	}
	tx = correlate(r, tx)

	ctx := observability.WithCorrelationID(r.Context(), tx.CorrelationID)
	logger := observability.LoggerFromContext(ctx, h.logger)

	outcome, err := h.authorizer.Authorize(ctx, tx)
	if err != nil {
		logger.Info("authorization stopped", zap.Error(err))
		HandleServiceError(w, err, logger)
		return
	}

	logger.Info("payment authorized",
		zap.String("decision", string(outcome.Decision)),
		zap.Int("settlements", len(outcome.Settlements)))
	_ = utils.WriteOK(w, outcome)
}

// HandleSettle handles POST /api/v1/payments/settle
func (h *PaymentHandler) HandleSettle(w http.ResponseWriter, r *http.Request) {
	tx, ok := h.decodeTransaction(w, r)
	if !ok {
		return
	}

	ctx := observability.WithCorrelationID(r.Context(), tx.CorrelationID)
	records, err := h.settler.Settle(ctx, tx)
	if err != nil {
		HandleServiceError(w, err, observability.LoggerFromContext(ctx, h.logger))
		return
	}

	_ = utils.WriteOK(w, SettleResponse{CorrelationID: tx.CorrelationID, Records: records})
}

// HandleSpeculate handles POST /api/v1/payments/speculate
func (h *PaymentHandler) HandleSpeculate(w http.ResponseWriter, r *http.Request) {
	tx, ok := h.decodeTransaction(w, r)
	if !ok {
		return
	}

	ctx := observability.WithCorrelationID(r.Context(), tx.CorrelationID)
	fused, err := h.decider.Execute(ctx, tx)
	if err != nil {
		HandleServiceError(w, err, observability.LoggerFromContext(ctx, h.logger))
		return
	}

	_ = utils.WriteOK(w, SpeculateResponse{
		Fusion:      fused,
		Speculative: speculative.Evaluate(fused.Context, h.paths),
	})
}

// HandleGetPayment handles GET /api/v1/payments/{id}
func (h *PaymentHandler) HandleGetPayment(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	outcome, ok := h.authorizer.Outcome(id)
	if !ok {
		_ = utils.WriteNotFound(w, "Payment not found")
		return
	}
	_ = utils.WriteOK(w, outcome)
}
