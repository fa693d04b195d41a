package handlers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/upb/payment-control-plane/models"
	"github.com/upb/payment-control-plane/services"
	"github.com/upb/payment-control-plane/utils"
)

const maxPolicyBytes = 1 << 20

// PolicyResponse represents a stored policy in API responses
type PolicyResponse struct {
	ID        uuid.UUID       `json:"id"`
	Name      string          `json:"name"`
	Version   string          `json:"version"`
	Enabled   bool            `json:"enabled"`
	Document  json.RawMessage `json:"document,omitempty"`
	CreatedAt string          `json:"created_at"`
}

// PolicyService defines the interface for policy operations
type PolicyService interface {
	// Import validates a policy document and stores it as a new version
	Import(ctx context.Context, data []byte) (*models.PolicyRecord, error)

	// List returns every stored policy version
	List(ctx context.Context) ([]*models.PolicyRecord, error)
}

// PolicyHandler handles policy-related HTTP requests
type PolicyHandler struct {
	policies PolicyService
	logger   *zap.Logger
}

// NewPolicyHandler creates a new PolicyHandler
func NewPolicyHandler(policies PolicyService, logger *zap.Logger) *PolicyHandler {
	return &PolicyHandler{
		policies: policies,
		logger:   logger,
	}
}

// HandleListPolicies handles GET /api/v1/policies
func (h *PolicyHandler) HandleListPolicies(w http.ResponseWriter, r *http.Request) {
	records, err := h.policies.List(r.Context())
	if err != nil {
		h.logger.Error("failed to list policies", zap.Error(err))
		_ = utils.WriteInternalServerError(w, "Failed to retrieve policies")
		return
	}

	// Convert to response format, documents omitted
	responses := make([]PolicyResponse, len(records))
	for i, p := range records {
		responses[i] = policyToResponse(p)
		responses[i].Document = nil
	}

	_ = utils.WriteOK(w, responses)
}

// HandleImportPolicy handles POST /api/v1/policies
func (h *PolicyHandler) HandleImportPolicy(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(io.LimitReader(r.Body, maxPolicyBytes))
	if err != nil {
		_ = utils.WriteBadRequest(w, "Failed to read policy document", nil)
		return
	}

	record, err := h.policies.Import(r.Context(), data)
	if err != nil {
		// rejected documents are client errors on import
		if services.IsConfigurationError(err) {
			_ = utils.WriteBadRequest(w, err.Error(), services.GetErrorDetails(err))
			return
		}
		HandleServiceError(w, err, h.logger)
		return
	}

	h.logger.Info("policy imported over http",
		zap.String("name", record.Name),
		zap.String("version", record.Version))
	_ = utils.WriteJSON(w, http.StatusCreated, utils.SuccessResponse{
		Data:    policyToResponse(record),
		Message: "Policy imported successfully",
	})
}

func policyToResponse(p *models.PolicyRecord) PolicyResponse {
	return PolicyResponse{
		ID:        p.ID,
		Name:      p.Name,
		Version:   p.Version,
		Enabled:   p.Enabled,
		Document:  p.Document,
		CreatedAt: p.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
	}
}
