package database

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"benchmark-verifier/internal/verification"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

// MongoMarginOfError is 1: opcounters count every update command, identity or not.
const MongoMarginOfError = 1.0

const (
	DefaultMongoDatabase = "hello_world"

	mongoServerSelectionTimeout = 2 * time.Second
)

type MongoVerifier struct {
	DSN      string
	Database string
	Wait     WaitPolicy
	Logger   *slog.Logger
}

func NewMongoVerifier(dsn string) *MongoVerifier {
	return &MongoVerifier{DSN: dsn, Database: DefaultMongoDatabase, Wait: DefaultWaitPolicy()}
}

func (md *MongoVerifier) Name() string { return "mongo" }

func (md *MongoVerifier) MarginOfError() float64 { return MongoMarginOfError }

func (md *MongoVerifier) connect(ctx context.Context) (*mongo.Client, error) {
	opts := options.Client().ApplyURI(md.DSN).SetServerSelectionTimeout(mongoServerSelectionTimeout)
	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", verification.ErrConnectivity, err)
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		client.Disconnect(context.Background())
		return nil, fmt.Errorf("%w: %v", verification.ErrConnectivity, err)
	}
	return client, nil
}

func (md *MongoVerifier) ping(ctx context.Context) error {
	client, err := md.connect(ctx)
	if err != nil {
		return err
	}
	return client.Disconnect(ctx)
}

func (md *MongoVerifier) WaitForDatabaseToBeAvailable(ctx context.Context, sink verification.Sink) error {
	return waitFor(ctx, md.Wait, loggerOrDefault(md.Logger), md.ping, sink)
}

func (md *MongoVerifier) serverStatus(ctx context.Context) (bson.M, error) {
	client, err := md.connect(ctx)
	if err != nil {
		return nil, err
	}
	defer client.Disconnect(context.Background())

	var status bson.M
	if err := client.Database("admin").RunCommand(ctx, bson.D{{Key: "serverStatus", Value: 1}}).Decode(&status); err != nil {
		return nil, fmt.Errorf("serverStatus failed: %w", err)
	}
	return status, nil
}

// lookupCounter walks a dotted path through nested documents and returns it as a counter.
func lookupCounter(doc bson.M, path ...string) (uint64, error) {
	var current interface{} = doc
	for _, key := range path {
		var ok bool
		switch m := current.(type) {
		case bson.M:
			current, ok = m[key]
		case bson.D:
			current, ok = m.Map()[key]
		default:
			return 0, fmt.Errorf("serverStatus: %v is not a document", key)
		}
		if !ok {
			return 0, fmt.Errorf("serverStatus: missing %v", key)
		}
	}

	n, ok := toInt64(current)
	if !ok {
		return 0, fmt.Errorf("serverStatus: %v is not a number", path)
	}
	if n < 0 {
		return 0, fmt.Errorf("%w: negative counter %v", verification.ErrMeasurementAnomaly, path)
	}
	return uint64(n), nil
}

func toInt64(v interface{}) (int64, bool) {
	switch n := v.(type) {
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case int:
		return int64(n), true
	case float64:
		return int64(n), true
	}
	return 0, false
}

func (md *MongoVerifier) GetAllFromWorldTable(ctx context.Context) (map[int32]int32, error) {
	world := map[int32]int32{}

	client, err := md.connect(ctx)
	if err != nil {
		return world, err
	}
	defer client.Disconnect(context.Background())

	cursor, err := client.Database(md.Database).Collection(WorldTable).Find(ctx, bson.M{})
	if err != nil {
		return world, fmt.Errorf("collection.Find failed: %w", err)
	}
	defer cursor.Close(ctx)

	for cursor.Next(ctx) {
		var doc bson.M
		if err := cursor.Decode(&doc); err != nil {
			return map[int32]int32{}, fmt.Errorf("cursor.Decode failed: %w", err)
		}
		idValue, ok := doc["id"]
		if !ok {
			idValue = doc["_id"]
		}
		id, okID := toInt64(idValue)
		randomNumber, okRN := toInt64(doc["randomNumber"])
		if !okID || !okRN {
			continue
		}
		world[int32(id)] = int32(randomNumber)
	}
	if err := cursor.Err(); err != nil {
		return map[int32]int32{}, err
	}
	return world, nil
}

func (md *MongoVerifier) InsertOneThousandFortunes(ctx context.Context) error {
	client, err := md.connect(ctx)
	if err != nil {
		return err
	}
	defer client.Disconnect(context.Background())

	ids := seededFortunes()
	docs := make([]interface{}, len(ids))
	for i, id := range ids {
		docs[i] = bson.M{"_id": id, "id": id, "message": SeededFortuneMessage}
	}

	if _, err := client.Database(md.Database).Collection(FortuneTable).InsertMany(ctx, docs); err != nil {
		return fmt.Errorf("collection.InsertMany failed: %w", err)
	}
	return nil
}

func (md *MongoVerifier) GetCountOfAllQueriesForTable(ctx context.Context, table string) (uint64, error) {
	status, err := md.serverStatus(ctx)
	if err != nil {
		return 0, err
	}
	queries, err := lookupCounter(status, "opcounters", "query")
	if err != nil {
		return 0, err
	}
	updates, err := lookupCounter(status, "opcounters", "update")
	if err != nil {
		return 0, err
	}
	return withMargin(updates, MongoMarginOfError) + queries, nil
}

// GetCountOfRowsSelectedForTable multiplies the query opcounter by expectedRowsPerQuery:
// MongoDB has no per-row read counter that excludes updates.
func (md *MongoVerifier) GetCountOfRowsSelectedForTable(ctx context.Context, table string, expectedRowsPerQuery uint64) (uint64, error) {
	status, err := md.serverStatus(ctx)
	if err != nil {
		return 0, err
	}
	queries, err := lookupCounter(status, "opcounters", "query")
	if err != nil {
		return 0, err
	}
	return queries * expectedRowsPerQuery, nil
}

func (md *MongoVerifier) GetCountOfRowsUpdatedForTable(ctx context.Context, table string, expectedRowsPerQuery uint64) (uint64, error) {
	status, err := md.serverStatus(ctx)
	if err != nil {
		return 0, err
	}
	updated, err := lookupCounter(status, "metrics", "document", "updated")
	if err != nil {
		return 0, err
	}
	return withMargin(updated, MongoMarginOfError), nil
}

func (md *MongoVerifier) Seed(ctx context.Context) error {
	client, err := md.connect(ctx)
	if err != nil {
		return err
	}
	defer client.Disconnect(context.Background())

	db := client.Database(md.Database)
	for _, name := range []string{WorldTable, FortuneTable} {
		if err := db.Collection(name).Drop(ctx); err != nil {
			return fmt.Errorf("collection.Drop failed: %w", err)
		}
	}

	rows := worldRows()
	world := make([]interface{}, len(rows))
	for i, r := range rows {
		world[i] = bson.M{"_id": r[0], "id": r[0], "randomNumber": r[1]}
	}
	if _, err := db.Collection(WorldTable).InsertMany(ctx, world); err != nil {
		return fmt.Errorf("collection.InsertMany failed: %w", err)
	}

	fortunes := make([]interface{}, len(CanonicalFortunes))
	for i, message := range CanonicalFortunes {
		fortunes[i] = bson.M{"_id": int32(i + 1), "id": int32(i + 1), "message": message}
	}
	if _, err := db.Collection(FortuneTable).InsertMany(ctx, fortunes); err != nil {
		return fmt.Errorf("collection.InsertMany failed: %w", err)
	}
	return nil
}
