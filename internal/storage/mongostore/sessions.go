package mongostore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"household-expenses/internal/models"
	"household-expenses/internal/storage"
)

type sessionUserDoc struct {
	ID       string `bson:"id"`
	Name     string `bson:"name"`
	Relation string `bson:"relation"`
	IsAdmin  bool   `bson:"isAdmin"`
}

type sessionDoc struct {
	Token        string         `bson:"_id"`
	UserID       string         `bson:"userId"`
	User         sessionUserDoc `bson:"user"`
	ExpiresAt    time.Time      `bson:"expiresAt"`
	LastActivity time.Time      `bson:"lastActivity"`
}

// CreateSession stores s keyed by its token.
func (s *Store) CreateSession(ctx context.Context, sess *models.Session) error {
	doc := sessionDoc{
		Token:  sess.Token,
		UserID: sess.UserID,
		User: sessionUserDoc{
			ID:       sess.User.ID,
			Name:     sess.User.Name,
			Relation: sess.User.Relation,
			IsAdmin:  sess.User.IsAdmin,
		},
		ExpiresAt:    sess.ExpiresAt.UTC(),
		LastActivity: sess.LastActivity.UTC(),
	}
	if _, err := s.sessions.InsertOne(ctx, doc); err != nil {
		return fmt.Errorf("mongo couldn't InsertOne in CreateSession: %w", err)
	}
	return nil
}

// GetSession returns the live session for token. The TTL monitor runs only
// once a minute, so expiry is also checked here.
func (s *Store) GetSession(ctx context.Context, token string, now time.Time) (*models.Session, error) {
	filter := bson.D{
		{Key: "_id", Value: token},
		{Key: "expiresAt", Value: bson.D{{Key: "$gt", Value: now}}},
	}

	var doc sessionDoc
	err := s.sessions.FindOne(ctx, filter).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("mongo couldn't FindOne in GetSession: %w", err)
	}

	return &models.Session{
		Token:  doc.Token,
		UserID: doc.UserID,
		User: models.SessionUser{
			ID:       doc.User.ID,
			Name:     doc.User.Name,
			Relation: doc.User.Relation,
			IsAdmin:  doc.User.IsAdmin,
		},
		ExpiresAt:    doc.ExpiresAt,
		LastActivity: doc.LastActivity,
	}, nil
}

// TouchSession slides the expiry of a session.
func (s *Store) TouchSession(ctx context.Context, token string, lastActivity, expiresAt time.Time) error {
	update := bson.D{{Key: "$set", Value: bson.D{
		{Key: "lastActivity", Value: lastActivity.UTC()},
		{Key: "expiresAt", Value: expiresAt.UTC()},
	}}}
	if _, err := s.sessions.UpdateOne(ctx, bson.D{{Key: "_id", Value: token}}, update); err != nil {
		return fmt.Errorf("mongo couldn't UpdateOne in TouchSession: %w", err)
	}
	return nil
}

// DeleteSession removes a session. Missing sessions are not an error.
func (s *Store) DeleteSession(ctx context.Context, token string) error {
	if _, err := s.sessions.DeleteOne(ctx, bson.D{{Key: "_id", Value: token}}); err != nil {
		return fmt.Errorf("mongo couldn't DeleteOne in DeleteSession: %w", err)
	}
	return nil
}

// DeleteExpiredSessions removes sessions the TTL monitor has not reaped yet.
func (s *Store) DeleteExpiredSessions(ctx context.Context, now time.Time) (int64, error) {
	res, err := s.sessions.DeleteMany(ctx, bson.D{{Key: "expiresAt", Value: bson.D{{Key: "$lte", Value: now}}}})
	if err != nil {
		return 0, fmt.Errorf("mongo couldn't DeleteMany in DeleteExpiredSessions: %w", err)
	}
	return res.DeletedCount, nil
}
