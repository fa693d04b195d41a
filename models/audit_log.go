package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// AuditAction represents the type of action being audited
type AuditAction string

const (
	AuditActionStageEntered     AuditAction = "stage_entered"
	AuditActionDecision         AuditAction = "decision"
	AuditActionSettlement       AuditAction = "settlement"
	AuditActionDeadLettered     AuditAction = "dead_lettered"
	AuditActionValidationFailed AuditAction = "validation_failed"
)

// AuditLog represents an audit trail entry
type AuditLog struct {
	ID            uuid.UUID       `json:"id" db:"id"`
	CorrelationID string          `json:"correlation_id" db:"correlation_id"`
	Action        AuditAction     `json:"action" db:"action"`
	Stage         string          `json:"stage,omitempty" db:"stage"`
	Details       json.RawMessage `json:"details,omitempty" db:"details"` // JSONB for flexible metadata
	Timestamp     time.Time       `json:"timestamp" db:"timestamp"`
	ErrorMessage  *string         `json:"error_message,omitempty" db:"error_message"`
}

// TableName returns the table name for the AuditLog model
func (AuditLog) TableName() string {
	return "audit_logs"
}

// NewAuditLog creates a new AuditLog instance
func NewAuditLog(correlationID string, action AuditAction) *AuditLog {
	return &AuditLog{
		ID:            uuid.New(),
		CorrelationID: correlationID,
		Action:        action,
		Timestamp:     time.Now(),
	}
}

// WithStage sets the pipeline stage
func (a *AuditLog) WithStage(stage Stage) *AuditLog {
	a.Stage = string(stage)
	return a
}

// WithDetails sets the details
func (a *AuditLog) WithDetails(details interface{}) *AuditLog {
	if data, err := json.Marshal(details); err == nil {
		a.Details = data
	}
	return a
}

// WithError sets error information
func (a *AuditLog) WithError(errorMessage string) *AuditLog {
	a.ErrorMessage = &errorMessage
	return a
}
