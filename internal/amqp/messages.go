package amqp

import (
	"encoding/json"
	"fmt"
	"time"
)

// Ledger event types.
const (
	EventTransactionCreated = "transaction.created"
	EventTransactionUpdated = "transaction.updated"
	EventTransactionDeleted = "transaction.deleted"
	EventCategoryAssigned   = "category.assigned"
	EventBudgetRecomputed   = "budget.recomputed"
)

// LedgerEvent announces a committed ledger mutation. Consumers re-read the
// entity; the event carries identifiers only.
type LedgerEvent struct {
	Type      string    `json:"type"`
	BudgetID  string    `json:"budget_id"`
	EntityID  string    `json:"entity_id"`
	Period    string    `json:"period,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

func NewLedgerEvent(eventType, budgetID, entityID, period string) *LedgerEvent {
	return &LedgerEvent{
		Type:      eventType,
		BudgetID:  budgetID,
		EntityID:  entityID,
		Period:    period,
		Timestamp: time.Now().UTC(),
	}
}

func (m *LedgerEvent) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func LedgerEventFromJSON(data []byte) (*LedgerEvent, error) {
	var msg LedgerEvent
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// RecomputeRequest asks the worker to rebuild every aggregate of a budget.
type RecomputeRequest struct {
	BudgetID  string    `json:"budget_id"`
	Reason    string    `json:"reason,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

func NewRecomputeRequest(budgetID, reason string) *RecomputeRequest {
	return &RecomputeRequest{
		BudgetID:  budgetID,
		Reason:    reason,
		Timestamp: time.Now().UTC(),
	}
}

func (m *RecomputeRequest) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func RecomputeRequestFromJSON(data []byte) (*RecomputeRequest, error) {
	var msg RecomputeRequest
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if msg.BudgetID == "" {
		return nil, fmt.Errorf("recompute request without budget_id")
	}
	return &msg, nil
}
