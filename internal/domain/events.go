package domain

import "time"

// Event types
const (
	EventTypeEntryRecorded     = "ledger.entry.recorded"
	EventTypeGroupVoided       = "ledger.group.voided"
	EventTypeSettlementCreated = "ledger.settlement.created"
	EventTypeSettlementSettled = "ledger.settlement.settled"
)

// Aggregate types
const (
	AggregateTypeEntry      = "ledger_entry"
	AggregateTypeSettlement = "settlement"
)

// OutboxEvent represents an event to be published to the activity sink.
type OutboxEvent struct {
	ID            string
	AggregateID   string
	AggregateType string
	EventType     string
	Payload       map[string]any
	CreatedAt     time.Time
	PublishedAt   *time.Time
	Published     bool
}

// EntryRecordedEvent payload, carrying the persisted entry's public fields.
type EntryRecordedEvent struct {
	EntryID              string  `json:"entry_id"`
	GroupID              string  `json:"group_id"`
	Kind                 string  `json:"kind"`
	Direction            string  `json:"direction"`
	Amount               int64   `json:"amount"`
	Currency             string  `json:"currency"`
	NetAmount            int64   `json:"net_amount"`
	SourceAccountID      string  `json:"source_account_id"`
	DestinationAccountID string  `json:"destination_account_id"`
	HostAccountID        *string `json:"host_account_id,omitempty"`
}

// SettlementCreatedEvent payload
type SettlementCreatedEvent struct {
	EntryID  string `json:"entry_id"`
	Status   string `json:"status"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
}

// SettlementSettledEvent payload
type SettlementSettledEvent struct {
	EntryID   string `json:"entry_id"`
	SettledAt string `json:"settled_at"`
}

// GroupVoidedEvent payload
type GroupVoidedEvent struct {
	GroupID string `json:"group_id"`
	Entries int    `json:"entries"`
}

// NewEntryRecordedEvent builds the payload for a persisted entry.
func NewEntryRecordedEvent(e *LedgerEntry) EntryRecordedEvent {
	return EntryRecordedEvent{
		EntryID:              e.ID,
		GroupID:              e.GroupID,
		Kind:                 string(e.Kind),
		Direction:            string(e.Direction),
		Amount:               e.Amount,
		Currency:             e.Currency,
		NetAmount:            e.NetAmount,
		SourceAccountID:      e.SourceAccountID,
		DestinationAccountID: e.DestinationAccountID,
		HostAccountID:        e.HostAccountID,
	}
}
