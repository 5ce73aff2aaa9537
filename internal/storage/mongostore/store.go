// Package mongostore implements the storage contracts on MongoDB.
package mongostore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"household-expenses/internal/models"
	"household-expenses/internal/storage"
)

const (
	usersCollection    = "users"
	expensesCollection = "expenses"
	configCollection   = "config"
	sessionsCollection = "sessions"

	// configID pins the configuration to a single document.
	configID = "expense-config"
)

var _ storage.Store = (*Store)(nil)

// Store is a MongoDB-backed storage.Store.
type Store struct {
	cli      *mongo.Client
	users    *mongo.Collection
	expenses *mongo.Collection
	config   *mongo.Collection
	sessions *mongo.Collection
}

// Connect dials uri, verifies the connection and prepares indexes.
func Connect(ctx context.Context, uri, database string) (*Store, error) {
	cli, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("mongo connect: %w", err)
	}
	if err := cli.Ping(ctx, nil); err != nil {
		_ = cli.Disconnect(context.Background())
		return nil, fmt.Errorf("mongo ping: %w", err)
	}

	s := New(cli, database)
	if err := s.EnsureIndexes(ctx); err != nil {
		_ = cli.Disconnect(context.Background())
		return nil, err
	}
	return s, nil
}

// New wraps an existing client. Call EnsureIndexes before use.
func New(cli *mongo.Client, database string) *Store {
	db := cli.Database(database)
	return &Store{
		cli:      cli,
		users:    db.Collection(usersCollection),
		expenses: db.Collection(expensesCollection),
		config:   db.Collection(configCollection),
		sessions: db.Collection(sessionsCollection),
	}
}

// EnsureIndexes creates the unique user name index, the expense date index
// and the TTL index that lets MongoDB expire sessions on its own.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	_, err := s.users.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "name", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return fmt.Errorf("create users index: %w", err)
	}

	_, err = s.expenses.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "date", Value: -1}},
	})
	if err != nil {
		return fmt.Errorf("create expenses index: %w", err)
	}

	_, err = s.sessions.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "expiresAt", Value: 1}},
		Options: options.Index().SetExpireAfterSeconds(0),
	})
	if err != nil {
		return fmt.Errorf("create sessions ttl index: %w", err)
	}
	return nil
}

// Ping checks the primary is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.cli.Ping(ctx, nil)
}

// Close disconnects the client.
func (s *Store) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.cli.Disconnect(ctx)
}

type userDoc struct {
	ID           primitive.ObjectID `bson:"_id,omitempty"`
	Name         string             `bson:"name"`
	PasswordHash string             `bson:"passwordHash"`
	Relation     string             `bson:"relation"`
	IsAdmin      bool               `bson:"isAdmin"`
	CreatedAt    time.Time          `bson:"createdAt"`
	UpdatedAt    time.Time          `bson:"updatedAt"`
}

func (d *userDoc) model() *models.User {
	return &models.User{
		ID:           d.ID.Hex(),
		Name:         d.Name,
		PasswordHash: d.PasswordHash,
		Relation:     d.Relation,
		IsAdmin:      d.IsAdmin,
		CreatedAt:    d.CreatedAt,
		UpdatedAt:    d.UpdatedAt,
	}
}

// CreateUser inserts u. The unique index on name reports duplicates.
func (s *Store) CreateUser(ctx context.Context, u *models.User) error {
	now := time.Now().UTC().Truncate(time.Millisecond)
	doc := userDoc{
		ID:           primitive.NewObjectID(),
		Name:         u.Name,
		PasswordHash: u.PasswordHash,
		Relation:     u.Relation,
		IsAdmin:      u.IsAdmin,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if _, err := s.users.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("create user %q: %w", u.Name, storage.ErrDuplicate)
		}
		return fmt.Errorf("mongo couldn't InsertOne in CreateUser: %w", err)
	}

	u.ID = doc.ID.Hex()
	u.CreatedAt = now
	u.UpdatedAt = now
	return nil
}

// GetUserByName retrieves a user by exact name.
func (s *Store) GetUserByName(ctx context.Context, name string) (*models.User, error) {
	var doc userDoc
	err := s.users.FindOne(ctx, bson.D{{Key: "name", Value: name}}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("mongo couldn't FindOne in GetUserByName: %w", err)
	}
	return doc.model(), nil
}

// UserExists reports whether a user with this exact name exists.
func (s *Store) UserExists(ctx context.Context, name string) (bool, error) {
	n, err := s.users.CountDocuments(ctx, bson.D{{Key: "name", Value: name}}, options.Count().SetLimit(1))
	if err != nil {
		return false, fmt.Errorf("mongo couldn't CountDocuments in UserExists: %w", err)
	}
	return n > 0, nil
}

// UserCount returns the number of users.
func (s *Store) UserCount(ctx context.Context) (int, error) {
	n, err := s.users.CountDocuments(ctx, bson.D{})
	if err != nil {
		return 0, fmt.Errorf("mongo couldn't CountDocuments in UserCount: %w", err)
	}
	return int(n), nil
}
