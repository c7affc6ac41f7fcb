// Package dockv is the MongoDB-backed KVStore/StreamStore variant, for
// deployments that already run a document store for other services and
// want session history alongside it rather than standing up a separate
// SQL instance.
package dockv

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/haasonsaas/agentcore/internal/store"
)

// Store is a MongoDB-backed KVStore. Messages live in one collection keyed
// by (session_id, id); sessions in a second.
type Store struct {
	messages *mongo.Collection
	sessions *mongo.Collection
}

// Open connects to the given database and ensures indexes exist.
func Open(ctx context.Context, uri, database string) (*Store, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("ping mongo: %w", err)
	}

	db := client.Database(database)
	s := &Store{
		messages: db.Collection("messages"),
		sessions: db.Collection("sessions"),
	}
	if err := s.ensureIndexes(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) ensureIndexes(ctx context.Context) error {
	_, err := s.messages.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "session_id", Value: 1}, {Key: "id", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "session_id", Value: 1}, {Key: "created_at", Value: 1}}},
	})
	return err
}

type messageDoc struct {
	SessionID     string           `bson:"session_id"`
	ID            string           `bson:"id"`
	Role          store.Role       `bson:"role"`
	Content       string           `bson:"content"`
	ToolCalls     []store.ToolCall `bson:"tool_calls,omitempty"`
	ToolCallID    string           `bson:"tool_call_id,omitempty"`
	CreatedAt     time.Time        `bson:"created_at"`
	TokenEstimate int              `bson:"token_estimate"`
	Active        bool             `bson:"active"`
	SupersedesIDs []string         `bson:"supersedes_ids,omitempty"`
}

func toDoc(sessionID string, m store.Message) messageDoc {
	return messageDoc{
		SessionID:     sessionID,
		ID:            m.ID,
		Role:          m.Role,
		Content:       m.Content,
		ToolCalls:     m.ToolCalls,
		ToolCallID:    m.ToolCallID,
		CreatedAt:     m.CreatedAt,
		TokenEstimate: m.TokenEstimate,
		Active:        m.Active,
		SupersedesIDs: m.SupersedesIDs,
	}
}

func fromDoc(d messageDoc) store.Message {
	return store.Message{
		ID:            d.ID,
		SessionID:     d.SessionID,
		Role:          d.Role,
		Content:       d.Content,
		ToolCalls:     d.ToolCalls,
		ToolCallID:    d.ToolCallID,
		CreatedAt:     d.CreatedAt,
		TokenEstimate: d.TokenEstimate,
		Active:        d.Active,
		SupersedesIDs: d.SupersedesIDs,
	}
}

func (s *Store) Put(ctx context.Context, sessionID string, msg store.Message) error {
	filter := bson.M{"session_id": sessionID, "id": msg.ID}
	_, err := s.messages.ReplaceOne(ctx, filter, toDoc(sessionID, msg), options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("put message: %w", err)
	}
	return nil
}

func (s *Store) GetRange(ctx context.Context, sessionID string, fromID string, limit int) ([]store.Message, error) {
	filter := bson.M{"session_id": sessionID}

	if fromID != "" {
		var anchor messageDoc
		if err := s.messages.FindOne(ctx, bson.M{"session_id": sessionID, "id": fromID}).Decode(&anchor); err == nil {
			filter["created_at"] = bson.M{"$gt": anchor.CreatedAt}
		}
	}

	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}, {Key: "id", Value: 1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}

	cur, err := s.messages.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("find messages: %w", err)
	}
	defer cur.Close(ctx)

	var out []store.Message
	for cur.Next(ctx) {
		var d messageDoc
		if err := cur.Decode(&d); err != nil {
			return nil, fmt.Errorf("decode message: %w", err)
		}
		out = append(out, fromDoc(d))
	}
	return out, cur.Err()
}

func (s *Store) UpdateActive(ctx context.Context, sessionID string, ids []string, active bool) error {
	_, err := s.messages.UpdateMany(ctx,
		bson.M{"session_id": sessionID, "id": bson.M{"$in": ids}},
		bson.M{"$set": bson.M{"active": active}})
	return err
}

func (s *Store) Delete(ctx context.Context, sessionID string) error {
	if _, err := s.messages.DeleteMany(ctx, bson.M{"session_id": sessionID}); err != nil {
		return fmt.Errorf("delete messages: %w", err)
	}
	_, err := s.sessions.DeleteOne(ctx, bson.M{"session_id": sessionID})
	return err
}

func (s *Store) ScanSessions(ctx context.Context) ([]string, error) {
	ids, err := s.messages.Distinct(ctx, "session_id", bson.M{})
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if s, ok := id.(string); ok {
			out = append(out, s)
		}
	}
	return out, nil
}

type sessionDoc struct {
	SessionID           string    `bson:"session_id"`
	AgentID             string    `bson:"agent_id"`
	CreatedAt           time.Time `bson:"created_at"`
	LastActivity        time.Time `bson:"last_activity"`
	SummaryCursor       string    `bson:"summary_cursor"`
	TotalTokensEstimate int       `bson:"total_tokens_estimate"`
}

func (s *Store) PutSession(ctx context.Context, sess store.Session) error {
	doc := sessionDoc{
		SessionID:           sess.SessionID,
		AgentID:             sess.AgentID,
		CreatedAt:           sess.CreatedAt,
		LastActivity:        sess.LastActivity,
		SummaryCursor:       sess.SummaryCursor,
		TotalTokensEstimate: sess.TotalTokensEstimate,
	}
	_, err := s.sessions.ReplaceOne(ctx, bson.M{"session_id": sess.SessionID}, doc, options.Replace().SetUpsert(true))
	return err
}

func (s *Store) GetSession(ctx context.Context, sessionID string) (store.Session, bool, error) {
	var d sessionDoc
	err := s.sessions.FindOne(ctx, bson.M{"session_id": sessionID}).Decode(&d)
	if err == mongo.ErrNoDocuments {
		return store.Session{}, false, nil
	}
	if err != nil {
		return store.Session{}, false, err
	}
	return store.Session{
		SessionID:           d.SessionID,
		AgentID:             d.AgentID,
		CreatedAt:           d.CreatedAt,
		LastActivity:        d.LastActivity,
		SummaryCursor:       d.SummaryCursor,
		TotalTokensEstimate: d.TotalTokensEstimate,
	}, true, nil
}

func (s *Store) Close() error {
	return s.messages.Database().Client().Disconnect(context.Background())
}
