// Package mongo is the document-store Driver backed by the official MongoDB driver.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.mongodb.org/mongo-driver/x/mongo/driver/connstring"

	"github.com/zyeon-ai/realtime-gateway/internal/model"
	"github.com/zyeon-ai/realtime-gateway/internal/store"
)

// DefaultDatabase is used when the connection string names no database.
const DefaultDatabase = "zyeon_ai"

const (
	collConversations = "conversations"
	collUsers         = "users"
	collSessions      = "sessions"
)

// DB is the MongoDB driver.
type DB struct {
	client        *mongo.Client
	conversations *mongo.Collection
	users         *mongo.Collection
	sessions      *mongo.Collection
}

var _ store.Driver = (*DB)(nil)

// NewDB connects to uri, verifies reachability and ensures indexes.
func NewDB(ctx context.Context, uri string) (*DB, error) {
	cs, err := connstring.ParseAndValidate(uri)
	if err != nil {
		return nil, fmt.Errorf("invalid mongodb uri: %w", err)
	}
	dbName := cs.Database
	if dbName == "" {
		dbName = DefaultDatabase
	}

	client, err := mongo.Connect(ctx, options.Client().
		ApplyURI(uri).
		SetServerSelectionTimeout(5*time.Second))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongodb: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping mongodb: %w", err)
	}

	database := client.Database(dbName)
	d := &DB{
		client:        client,
		conversations: database.Collection(collConversations),
		users:         database.Collection(collUsers),
		sessions:      database.Collection(collSessions),
	}
	if err := d.ensureIndexes(ctx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}
	return d, nil
}

func (d *DB) ensureIndexes(ctx context.Context) error {
	if _, err := d.conversations.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "timestamp", Value: -1}}},
		{Keys: bson.D{{Key: "session_id", Value: 1}, {Key: "timestamp", Value: -1}}},
		{Keys: bson.D{{Key: "conversation_id", Value: 1}, {Key: "timestamp", Value: -1}}},
		{Keys: bson.D{{Key: "timestamp", Value: 1}}},
	}); err != nil {
		return fmt.Errorf("failed to create conversation indexes: %w", err)
	}
	if _, err := d.users.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "user_id", Value: 1}},
		Options: options.Index().SetUnique(true),
	}); err != nil {
		return fmt.Errorf("failed to create user index: %w", err)
	}
	if _, err := d.sessions.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "session_id", Value: 1}},
		Options: options.Index().SetUnique(true),
	}); err != nil {
		return fmt.Errorf("failed to create session index: %w", err)
	}
	return nil
}

func (d *DB) Ping(ctx context.Context) error {
	return d.client.Ping(ctx, readpref.Primary())
}

func (d *DB) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return d.client.Disconnect(ctx)
}

func (d *DB) CreateTurn(ctx context.Context, create *model.Turn) (*model.Turn, error) {
	t := *create
	if t.ID == "" {
		t.ID = primitive.NewObjectID().Hex()
	}
	if _, err := d.conversations.InsertOne(ctx, &t); err != nil {
		return nil, fmt.Errorf("mongo store: insert turn: %w", err)
	}
	return &t, nil
}

func (d *DB) ListTurns(ctx context.Context, find *store.FindTurn) ([]*model.Turn, error) {
	opts := options.Find().SetSort(bson.D{{Key: "timestamp", Value: -1}, {Key: "_id", Value: -1}})
	if find.Limit > 0 {
		opts.SetLimit(int64(find.Limit))
	}
	if find.Offset > 0 {
		opts.SetSkip(int64(find.Offset))
	}

	cur, err := d.conversations.Find(ctx, TurnFilter(find.UserID, find.SessionID, find.ConversationID), opts)
	if err != nil {
		return nil, fmt.Errorf("mongo store: find turns: %w", err)
	}
	var out []*model.Turn
	if err := cur.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("mongo store: decode turns: %w", err)
	}
	return out, nil
}

func (d *DB) TurnStats(ctx context.Context, userID string) (*model.ConversationStats, error) {
	cur, err := d.conversations.Aggregate(ctx, StatsPipeline(userID))
	if err != nil {
		return nil, fmt.Errorf("mongo store: aggregate turns: %w", err)
	}
	var rows []struct {
		Total    int        `bson:"total"`
		Text     int        `bson:"text"`
		Voice    int        `bson:"voice"`
		Realtime int        `bson:"realtime"`
		First    *time.Time `bson:"first"`
		Last     *time.Time `bson:"last"`
	}
	if err := cur.All(ctx, &rows); err != nil {
		return nil, fmt.Errorf("mongo store: decode stats: %w", err)
	}
	stats := &model.ConversationStats{}
	if len(rows) == 0 {
		return stats, nil
	}
	r := rows[0]
	stats.TotalConversations = r.Total
	stats.TotalMessages = r.Total * 2
	stats.TextMessages = r.Text
	stats.VoiceMessages = r.Voice
	stats.RealtimeMessages = r.Realtime
	stats.FirstConversation = r.First
	stats.LastConversation = r.Last
	return stats, nil
}

func (d *DB) DeleteTurnsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := d.conversations.DeleteMany(ctx, bson.M{"timestamp": bson.M{"$lt": cutoff}})
	if err != nil {
		return 0, fmt.Errorf("mongo store: delete turns: %w", err)
	}
	return res.DeletedCount, nil
}

func (d *DB) UpsertUser(ctx context.Context, upsert *store.UpsertUser) (*model.User, error) {
	set := bson.M{
		"last_active": upsert.LastActive,
		"updated_at":  upsert.LastActive,
	}
	onInsert := bson.M{
		"user_id":    upsert.UserID,
		"created_at": upsert.LastActive,
	}
	if upsert.Email != "" {
		set["email"] = upsert.Email
	}
	if upsert.Name != "" {
		set["name"] = upsert.Name
	} else {
		onInsert["name"] = store.DefaultUserName
	}

	if _, err := d.users.UpdateOne(ctx,
		bson.M{"user_id": upsert.UserID},
		bson.M{"$set": set, "$setOnInsert": onInsert},
		options.Update().SetUpsert(true),
	); err != nil {
		return nil, fmt.Errorf("mongo store: upsert user: %w", err)
	}
	return d.GetUser(ctx, upsert.UserID)
}

func (d *DB) GetUser(ctx context.Context, userID string) (*model.User, error) {
	var u model.User
	err := d.users.FindOne(ctx, bson.M{"user_id": userID}).Decode(&u)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, store.ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("mongo store: get user: %w", err)
	}
	return &u, nil
}

func (d *DB) CreateSession(ctx context.Context, create *model.Session) (*model.Session, error) {
	s := *create
	if _, err := d.sessions.InsertOne(ctx, &s); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return nil, store.ErrSessionExists
		}
		return nil, fmt.Errorf("mongo store: insert session: %w", err)
	}
	return &s, nil
}

func (d *DB) EndSession(ctx context.Context, sessionID string, endedAt time.Time) (*model.Session, error) {
	if _, err := d.sessions.UpdateOne(ctx,
		bson.M{"session_id": sessionID, "is_active": true},
		bson.M{"$set": bson.M{"is_active": false, "ended_at": endedAt, "updated_at": endedAt}},
	); err != nil {
		return nil, fmt.Errorf("mongo store: end session: %w", err)
	}
	return d.GetSession(ctx, sessionID)
}

func (d *DB) GetSession(ctx context.Context, sessionID string) (*model.Session, error) {
	var s model.Session
	err := d.sessions.FindOne(ctx, bson.M{"session_id": sessionID}).Decode(&s)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, store.ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("mongo store: get session: %w", err)
	}
	return &s, nil
}

// TurnFilter builds the find filter for any combination of ids.
func TurnFilter(userID, sessionID, conversationID string) bson.M {
	filter := bson.M{}
	if userID != "" {
		filter["user_id"] = userID
	}
	if sessionID != "" {
		filter["session_id"] = sessionID
	}
	if conversationID != "" {
		filter["conversation_id"] = conversationID
	}
	return filter
}

// StatsPipeline aggregates turn counts per message type and the time range.
func StatsPipeline(userID string) mongo.Pipeline {
	countType := func(t model.MessageType) bson.M {
		return bson.M{"$sum": bson.M{"$cond": bson.A{bson.M{"$eq": bson.A{"$message_type", string(t)}}, 1, 0}}}
	}
	return mongo.Pipeline{
		{{Key: "$match", Value: TurnFilter(userID, "", "")}},
		{{Key: "$group", Value: bson.M{
			"_id":      nil,
			"total":    bson.M{"$sum": 1},
			"text":     countType(model.MessageTypeText),
			"voice":    countType(model.MessageTypeVoice),
			"realtime": countType(model.MessageTypeRealtime),
			"first":    bson.M{"$min": "$timestamp"},
			"last":     bson.M{"$max": "$timestamp"},
		}}},
	}
}
