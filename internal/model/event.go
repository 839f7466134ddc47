package model

import "time"

type EventType string

const (
	EventStepConfirmed     EventType = "tokenization.step_confirmed"
	EventStepFailed        EventType = "tokenization.step_failed"
	EventPipelineCompleted EventType = "tokenization.completed"
	EventPurchaseSubmitted EventType = "purchase.submitted"
	EventPurchaseFailed    EventType = "purchase.failed"
)

// Event is published for downstream consumers such as notification services
type Event struct {
	ID      string            `json:"id"`
	Type    EventType         `json:"type"`
	RunID   string            `json:"run_id,omitempty"`
	Step    string            `json:"step,omitempty"`
	Account string            `json:"account,omitempty"`
	TxHash  string            `json:"tx_hash,omitempty"`
	Error   string            `json:"error,omitempty"`
	Data    map[string]string `json:"data,omitempty"`
	Time    time.Time         `json:"time"`
}
