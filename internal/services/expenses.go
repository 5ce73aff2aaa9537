package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"household-expenses/internal/apperr"
	"household-expenses/internal/events"
	"household-expenses/internal/logging"
	"household-expenses/internal/models"
	"household-expenses/internal/storage"
)

const dateLayout = "2006-01-02"

// Summary periods
const (
	PeriodWeekly  = "weekly"
	PeriodMonthly = "monthly"
)

// Filter values that mean "do not filter on this field".
var noFilter = map[string]bool{
	"":                  true,
	"all":               true,
	"all-categories":    true,
	"all-subcategories": true,
	"all-modes":         true,
}

// ExpenseInput is the payload of the add-expense operation.
type ExpenseInput struct {
	Category    string   `json:"category"`
	Subcategory string   `json:"subcategory"`
	Mode        string   `json:"mode"`
	Amount      *float64 `json:"amount"`
	Date        string   `json:"date"`
	Comments    string   `json:"comments"`
}

// ListQuery carries the raw listing filters as received from the client.
type ListQuery struct {
	StartDate   string
	EndDate     string
	Category    string
	Subcategory string
	Mode        string
}

// Summary is the result of Summarize.
type Summary struct {
	Total float64 `json:"total"`
}

// ExpenseService orchestrates expense operations across the store and the
// event publisher.
type ExpenseService struct {
	store     storage.ExpenseStore
	publisher events.Publisher
	now       func() time.Time
	loc       *time.Location
}

func NewExpenseService(store storage.ExpenseStore, publisher events.Publisher) *ExpenseService {
	if publisher == nil {
		publisher = events.Noop{}
	}
	return &ExpenseService{store: store, publisher: publisher, now: time.Now, loc: time.Local}
}

// Add validates and stores a new expense, then announces it.
func (s *ExpenseService) Add(ctx context.Context, in ExpenseInput, actor string) (*models.Expense, error) {
	e := models.Expense{
		Category:    strings.TrimSpace(in.Category),
		Subcategory: strings.TrimSpace(in.Subcategory),
		Mode:        strings.TrimSpace(in.Mode),
		Comments:    strings.TrimSpace(in.Comments),
	}
	if e.Category == "" || e.Subcategory == "" || e.Mode == "" || in.Amount == nil || strings.TrimSpace(in.Date) == "" {
		return nil, apperr.Validation("Category, subcategory, mode, amount and date are required.")
	}
	e.Amount = *in.Amount

	date, _, err := parseDate(in.Date)
	if err != nil {
		return nil, apperr.Validation("Date must be YYYY-MM-DD or RFC 3339.")
	}
	e.Date = date

	if err := s.store.CreateExpense(ctx, &e); err != nil {
		return nil, apperr.Internal("failed to save expense", err)
	}

	s.publish(ctx, events.NewExpenseCreated(e, actor, s.now()))
	return &e, nil
}

// List returns expenses matching q, newest first.
func (s *ExpenseService) List(ctx context.Context, q ListQuery) ([]models.Expense, error) {
	var f models.ExpenseFilter

	if strings.TrimSpace(q.StartDate) != "" {
		start, _, err := parseDate(q.StartDate)
		if err != nil {
			return nil, apperr.Validation("Invalid startDate.")
		}
		f.Start = &start
	}
	if strings.TrimSpace(q.EndDate) != "" {
		end, dateOnly, err := parseDate(q.EndDate)
		if err != nil {
			return nil, apperr.Validation("Invalid endDate.")
		}
		if dateOnly {
			end = end.Add(24*time.Hour - time.Millisecond)
		}
		f.End = &end
	}
	f.Category = filterValue(q.Category)
	f.Subcategory = filterValue(q.Subcategory)
	f.Mode = filterValue(q.Mode)

	expenses, err := s.store.ListExpenses(ctx, f)
	if err != nil {
		return nil, apperr.Internal("failed to list expenses", err)
	}
	return expenses, nil
}

// Summarize totals the expenses of the current week or month.
func (s *ExpenseService) Summarize(ctx context.Context, period string) (Summary, error) {
	since, err := s.periodStart(period)
	if err != nil {
		return Summary{}, err
	}
	total, err := s.store.SumExpensesSince(ctx, since)
	if err != nil {
		return Summary{}, apperr.Internal("failed to summarize expenses", err)
	}
	return Summary{Total: total}, nil
}

// periodStart returns Monday 00:00 for weekly (Sunday closes the week) and
// the 1st 00:00 for monthly, in local time.
func (s *ExpenseService) periodStart(period string) (time.Time, error) {
	now := s.now().In(s.loc)
	y, m, d := now.Date()

	switch period {
	case PeriodWeekly:
		weekday := int(now.Weekday())
		if weekday == 0 {
			weekday = 7
		}
		return time.Date(y, m, d-(weekday-1), 0, 0, 0, 0, s.loc), nil
	case PeriodMonthly:
		return time.Date(y, m, 1, 0, 0, 0, 0, s.loc), nil
	default:
		return time.Time{}, apperr.Validation("Invalid summary type. Use weekly or monthly.")
	}
}

// Remove deletes an expense and announces it.
func (s *ExpenseService) Remove(ctx context.Context, id, actor string) error {
	if err := s.store.DeleteExpense(ctx, id); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return apperr.NotFound("Expense not found.")
		}
		return apperr.Internal("failed to delete expense", err)
	}

	s.publish(ctx, events.NewExpenseDeleted(id, actor, s.now()))
	return nil
}

func (s *ExpenseService) publish(ctx context.Context, ev events.ExpenseEvent) {
	if err := s.publisher.Publish(ctx, ev); err != nil {
		logging.FromContext(ctx).
			WithField(logging.FieldComponent, logging.ComponentExpense).
			WithField("event", ev.Type).
			WithError(err).
			Errorf("failed to publish %s for %s", ev.Type, ev.ExpenseID)
	}
}

// parseDate accepts YYYY-MM-DD (midnight UTC) or RFC 3339 and reports which
// form was given.
func parseDate(v string) (time.Time, bool, error) {
	v = strings.TrimSpace(v)
	if t, err := time.Parse(dateLayout, v); err == nil {
		return t, true, nil
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return time.Time{}, false, err
	}
	return t, false, nil
}

func filterValue(v string) string {
	v = strings.TrimSpace(v)
	if noFilter[v] {
		return ""
	}
	return v
}
