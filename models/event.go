package models

import (
	"time"

	"github.com/google/uuid"
)

// Stage is a named step in the payment lifecycle.
type Stage string

const (
	StagePaymentRequested Stage = "payment_requested"
	StagePaymentValidated Stage = "payment_validated"
	StagePaymentRouted    Stage = "payment_routed"
	StagePaymentExecuted  Stage = "payment_executed"
	StagePaymentSettled   Stage = "payment_settled"
)

// PipelineEvent carries a transaction through the pipeline.
type PipelineEvent struct {
	Type          Stage              `json:"type"`
	Payload       TransactionRequest `json:"payload"`
	CorrelationID string             `json:"correlation_id"`
	Timestamp     int64              `json:"timestamp"` // unix millis
}

// NewPipelineEvent creates the first event for a request. The correlation id
// is taken from the payload when present, otherwise generated.
func NewPipelineEvent(stage Stage, payload TransactionRequest) PipelineEvent {
	correlationID := payload.CorrelationID
	if correlationID == "" {
		correlationID = uuid.NewString()
		payload.CorrelationID = correlationID
	}
	return PipelineEvent{
		Type:          stage,
		Payload:       payload,
		CorrelationID: correlationID,
		Timestamp:     time.Now().UnixMilli(),
	}
}

// Derive builds the successor event, keeping payload and correlation id.
func (e PipelineEvent) Derive(stage Stage) PipelineEvent {
	return PipelineEvent{
		Type:          stage,
		Payload:       e.Payload,
		CorrelationID: e.CorrelationID,
		Timestamp:     time.Now().UnixMilli(),
	}
}

// DeadLetter is an event whose processing permanently failed.
type DeadLetter struct {
	ID        uuid.UUID     `json:"id" db:"id"`
	Event     PipelineEvent `json:"event" db:"event"`
	Reason    string        `json:"reason" db:"reason"`
	Attempts  int           `json:"attempts" db:"attempts"`
	Errors    []string      `json:"errors,omitempty" db:"-"`
	Timestamp time.Time     `json:"timestamp" db:"timestamp"`
}

// TableName returns the table name for the DeadLetter model
func (DeadLetter) TableName() string {
	return "dead_letters"
}
