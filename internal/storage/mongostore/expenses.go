package mongostore

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"household-expenses/internal/models"
	"household-expenses/internal/storage"
)

type expenseDoc struct {
	ID          primitive.ObjectID `bson:"_id,omitempty"`
	Category    string             `bson:"category"`
	Subcategory string             `bson:"subcategory"`
	Mode        string             `bson:"mode"`
	Amount      float64            `bson:"amount"`
	Date        time.Time          `bson:"date"`
	Comments    string             `bson:"comments,omitempty"`
	CreatedAt   time.Time          `bson:"createdAt"`
	UpdatedAt   time.Time          `bson:"updatedAt"`
}

func (d *expenseDoc) model() models.Expense {
	return models.Expense{
		ID:          d.ID.Hex(),
		Category:    d.Category,
		Subcategory: d.Subcategory,
		Mode:        d.Mode,
		Amount:      d.Amount,
		Date:        d.Date,
		Comments:    d.Comments,
		CreatedAt:   d.CreatedAt,
		UpdatedAt:   d.UpdatedAt,
	}
}

// CreateExpense inserts e and fills in its id and timestamps.
func (s *Store) CreateExpense(ctx context.Context, e *models.Expense) error {
	now := time.Now().UTC().Truncate(time.Millisecond)
	doc := expenseDoc{
		ID:          primitive.NewObjectID(),
		Category:    e.Category,
		Subcategory: e.Subcategory,
		Mode:        e.Mode,
		Amount:      e.Amount,
		Date:        e.Date.UTC().Truncate(time.Millisecond),
		Comments:    e.Comments,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if _, err := s.expenses.InsertOne(ctx, doc); err != nil {
		return fmt.Errorf("mongo couldn't InsertOne in CreateExpense: %w", err)
	}

	*e = doc.model()
	return nil
}

// ListExpenses returns expenses matching f, newest first.
func (s *Store) ListExpenses(ctx context.Context, f models.ExpenseFilter) ([]models.Expense, error) {
	filter := bson.D{}
	if f.Start != nil || f.End != nil {
		dateRange := bson.D{}
		if f.Start != nil {
			dateRange = append(dateRange, bson.E{Key: "$gte", Value: *f.Start})
		}
		if f.End != nil {
			dateRange = append(dateRange, bson.E{Key: "$lte", Value: *f.End})
		}
		filter = append(filter, bson.E{Key: "date", Value: dateRange})
	}
	if f.Category != "" {
		filter = append(filter, bson.E{Key: "category", Value: f.Category})
	}
	if f.Subcategory != "" {
		filter = append(filter, bson.E{Key: "subcategory", Value: f.Subcategory})
	}
	if f.Mode != "" {
		filter = append(filter, bson.E{Key: "mode", Value: f.Mode})
	}

	opts := options.Find().SetSort(bson.D{{Key: "date", Value: -1}, {Key: "createdAt", Value: -1}})
	cursor, err := s.expenses.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("mongo couldn't Find in ListExpenses: %w", err)
	}

	var docs []expenseDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("mongo couldn't decode cursor in ListExpenses: %w", err)
	}

	expenses := make([]models.Expense, 0, len(docs))
	for i := range docs {
		expenses = append(expenses, docs[i].model())
	}
	return expenses, nil
}

// SumExpensesSince totals amounts dated at or after since on the server.
func (s *Store) SumExpensesSince(ctx context.Context, since time.Time) (float64, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.D{{Key: "date", Value: bson.D{{Key: "$gte", Value: since}}}}}},
		{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: nil},
			{Key: "total", Value: bson.D{{Key: "$sum", Value: "$amount"}}},
		}}},
	}

	cursor, err := s.expenses.Aggregate(ctx, pipeline)
	if err != nil {
		return 0, fmt.Errorf("mongo couldn't Aggregate in SumExpensesSince: %w", err)
	}

	var results []struct {
		Total float64 `bson:"total"`
	}
	if err := cursor.All(ctx, &results); err != nil {
		return 0, fmt.Errorf("mongo couldn't decode cursor in SumExpensesSince: %w", err)
	}
	if len(results) == 0 {
		return 0, nil
	}
	return results[0].Total, nil
}

// DeleteExpense removes the expense with the given hex id. Malformed ids
// cannot exist and are reported as not found.
func (s *Store) DeleteExpense(ctx context.Context, id string) error {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return storage.ErrNotFound
	}

	res, err := s.expenses.DeleteOne(ctx, bson.D{{Key: "_id", Value: oid}})
	if err != nil {
		return fmt.Errorf("mongo couldn't DeleteOne in DeleteExpense: %w", err)
	}
	if res.DeletedCount == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// ResetExpenseData empties the expenses and config collections.
func (s *Store) ResetExpenseData(ctx context.Context) error {
	if _, err := s.expenses.DeleteMany(ctx, bson.D{}); err != nil {
		return fmt.Errorf("mongo couldn't DeleteMany in ResetExpenseData: %w", err)
	}
	if _, err := s.config.DeleteMany(ctx, bson.D{}); err != nil {
		return fmt.Errorf("mongo couldn't DeleteMany in ResetExpenseData: %w", err)
	}
	return nil
}
