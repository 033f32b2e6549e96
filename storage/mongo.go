package storage

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	usersCollection       = "users"
	topicsCollection      = "topics"
	assignmentsCollection = "assignments"
)

type MongoStorage struct {
	client      *mongo.Client
	users       *mongo.Collection
	topics      *mongo.Collection
	assignments *mongo.Collection
	log         *slog.Logger
}

func NewMongoStorage(uri, database string, log *slog.Logger) (*MongoStorage, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connecting to MongoDB: %w", err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("pinging MongoDB: %w", err)
	}

	db := client.Database(database)
	m := &MongoStorage{
		client:      client,
		users:       db.Collection(usersCollection),
		topics:      db.Collection(topicsCollection),
		assignments: db.Collection(assignmentsCollection),
		log:         log,
	}

	_, err = m.users.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "telegram_id", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		log.Warn("creating users index", slog.String("error", err.Error()))
	}

	// Active-assignment lookups filter on user_id + state.
	_, err = m.assignments.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "state", Value: 1}},
	})
	if err != nil {
		log.Warn("creating assignments index", slog.String("error", err.Error()))
	}

	return m, nil
}

func (m *MongoStorage) GetUser(ctx context.Context, telegramID int64) (*User, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var user User
	err := m.users.FindOne(ctx, bson.M{"telegram_id": telegramID}).Decode(&user)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("finding user: %w", err)
	}
	return &user, nil
}

func (m *MongoStorage) SaveUser(ctx context.Context, user *User) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now()
	}

	opts := options.Replace().SetUpsert(true)
	_, err := m.users.ReplaceOne(ctx, bson.M{"telegram_id": user.TelegramID}, user, opts)
	if err != nil {
		return fmt.Errorf("saving user: %w", err)
	}
	return nil
}

func (m *MongoStorage) ActiveAssignments(ctx context.Context, userID int64) ([]Assignment, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	filter := bson.M{
		"user_id": userID,
		"state":   bson.M{"$in": []AssignmentState{StateActive, StateSubmitted}},
	}
	cursor, err := m.assignments.Find(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("finding active assignments: %w", err)
	}

	var active []Assignment
	if err := cursor.All(ctx, &active); err != nil {
		return nil, fmt.Errorf("decoding active assignments: %w", err)
	}
	return active, nil
}

func (m *MongoStorage) SeenTopicIDs(ctx context.Context, userID int64) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	ids, err := m.assignments.Distinct(ctx, "topic_id", bson.M{"user_id": userID})
	if err != nil {
		return nil, fmt.Errorf("finding seen topics: %w", err)
	}

	seen := make([]string, 0, len(ids))
	for _, id := range ids {
		if s, ok := id.(string); ok {
			seen = append(seen, s)
		}
	}
	return seen, nil
}

func (m *MongoStorage) InsertAssignment(ctx context.Context, a *Assignment) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	_, err := m.assignments.InsertOne(ctx, a)
	if err != nil {
		return fmt.Errorf("inserting assignment: %w", err)
	}
	return nil
}

func (m *MongoStorage) UpdateAssignment(ctx context.Context, a *Assignment) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	a.UpdatedAt = time.Now()
	_, err := m.assignments.ReplaceOne(ctx, bson.M{"_id": a.ID}, a)
	if err != nil {
		return fmt.Errorf("updating assignment: %w", err)
	}
	return nil
}

func (m *MongoStorage) ActiveTopics(ctx context.Context) ([]Topic, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	cursor, err := m.topics.Find(ctx, bson.M{"active": true})
	if err != nil {
		return nil, fmt.Errorf("finding topics: %w", err)
	}

	var topics []Topic
	if err := cursor.All(ctx, &topics); err != nil {
		return nil, fmt.Errorf("decoding topics: %w", err)
	}
	return topics, nil
}

func (m *MongoStorage) GetTopic(ctx context.Context, id string) (*Topic, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var topic Topic
	err := m.topics.FindOne(ctx, bson.M{"_id": id}).Decode(&topic)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("finding topic: %w", err)
	}
	return &topic, nil
}

func (m *MongoStorage) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return m.client.Disconnect(ctx)
}
