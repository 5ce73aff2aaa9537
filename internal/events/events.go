// Package events publishes expense lifecycle notifications to RabbitMQ.
package events

import (
	"context"
	"encoding/json"
	"time"

	"household-expenses/internal/models"
)

// Routing keys
const (
	ExpenseCreated = "expense.created"
	ExpenseDeleted = "expense.deleted"
)

// ExpenseEvent is the JSON body of every published message.
type ExpenseEvent struct {
	Type       string          `json:"type"`
	ExpenseID  string          `json:"expenseId"`
	Expense    *models.Expense `json:"expense,omitempty"`
	Actor      string          `json:"actor,omitempty"`
	OccurredAt time.Time       `json:"occurredAt"`
}

// NewExpenseCreated builds the event for a freshly stored expense.
func NewExpenseCreated(e models.Expense, actor string, at time.Time) ExpenseEvent {
	return ExpenseEvent{Type: ExpenseCreated, ExpenseID: e.ID, Expense: &e, Actor: actor, OccurredAt: at.UTC()}
}

// NewExpenseDeleted builds the event for a removed expense.
func NewExpenseDeleted(id, actor string, at time.Time) ExpenseEvent {
	return ExpenseEvent{Type: ExpenseDeleted, ExpenseID: id, Actor: actor, OccurredAt: at.UTC()}
}

// ToJSON converts the event to JSON bytes
func (e ExpenseEvent) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// Publisher delivers expense events.
type Publisher interface {
	Publish(ctx context.Context, ev ExpenseEvent) error
	Close() error
}

// Noop discards every event. It is used when no broker is configured.
type Noop struct{}

func (Noop) Publish(context.Context, ExpenseEvent) error { return nil }

func (Noop) Close() error { return nil }
