package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"autostats/config"
	"autostats/models"
)

type MongoDBService struct {
	client  *mongo.Client
	db      *mongo.Database
	enabled bool
}

const (
	CollectionRows = "sheet_rows"
)

func NewMongoDBService(cfg *config.Config) (*MongoDBService, error) {
	if !cfg.MongoDB.Enabled {
		log.Info().Msg("MongoDB is disabled in configuration")
		return &MongoDBService{enabled: false}, nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	clientOptions := options.Client().ApplyURI(cfg.MongoDB.URI)
	client, err := mongo.Connect(ctx, clientOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	service := &MongoDBService{
		client:  client,
		db:      client.Database(cfg.MongoDB.Database),
		enabled: true,
	}

	if err := service.createIndexes(ctx); err != nil {
		log.Warn().Err(err).Msg("Failed to create MongoDB indexes")
	}

	log.Info().Str("database", cfg.MongoDB.Database).Msg("MongoDB connected")
	return service, nil
}

func (m *MongoDBService) Enabled() bool {
	return m != nil && m.enabled
}

func (m *MongoDBService) createIndexes(ctx context.Context) error {
	_, err := m.db.Collection(CollectionRows).Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			// one row per sheet per run timestamp
			Keys:    bson.D{{Key: "sheet", Value: 1}, {Key: "timestamp", Value: 1}},
			Options: options.Index().SetName("sheet_timestamp").SetUnique(true),
		},
		{
			Keys:    bson.D{{Key: "network", Value: 1}, {Key: "timestamp", Value: -1}},
			Options: options.Index().SetName("network_timestamp"),
		},
	})
	return err
}

func (m *MongoDBService) Close() error {
	if !m.Enabled() || m.client == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return m.client.Disconnect(ctx)
}

// InsertRow mirrors an appended row. Re-inserting the same (sheet, timestamp) is a no-op.
func (m *MongoDBService) InsertRow(ctx context.Context, record models.RowRecord) error {
	if !m.Enabled() {
		return nil
	}
	_, err := m.db.Collection(CollectionRows).InsertOne(ctx, record)
	if mongo.IsDuplicateKeyError(err) {
		log.Debug().Str("sheet", record.Sheet).Time("timestamp", record.Timestamp).Msg("Row already mirrored")
		return nil
	}
	return err
}

// GetRowsRange retrieves a network's mirrored rows within a time range, oldest first
func (m *MongoDBService) GetRowsRange(ctx context.Context, network string, start, end time.Time) ([]models.RowRecord, error) {
	if !m.Enabled() {
		return nil, fmt.Errorf("MongoDB not enabled")
	}

	filter := bson.M{
		"network": network,
		"timestamp": bson.M{
			"$gte": start,
			"$lte": end,
		},
	}

	opts := options.Find().SetSort(bson.M{"timestamp": 1})
	cursor, err := m.db.Collection(CollectionRows).Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var rows []models.RowRecord
	if err := cursor.All(ctx, &rows); err != nil {
		return nil, err
	}
	return rows, nil
}

// GetLatestRow gets the most recent mirrored row for a network, nil if there is none
func (m *MongoDBService) GetLatestRow(ctx context.Context, network string) (*models.RowRecord, error) {
	if !m.Enabled() {
		return nil, fmt.Errorf("MongoDB not enabled")
	}

	var row models.RowRecord
	opts := options.FindOne().SetSort(bson.M{"timestamp": -1})
	err := m.db.Collection(CollectionRows).FindOne(ctx, bson.M{"network": network}, opts).Decode(&row)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

// CountRows returns the number of mirrored rows per network
func (m *MongoDBService) CountRows(ctx context.Context) (map[string]int64, error) {
	if !m.Enabled() {
		return nil, fmt.Errorf("MongoDB not enabled")
	}

	pipeline := mongo.Pipeline{
		{{Key: "$group", Value: bson.M{
			"_id":   "$network",
			"count": bson.M{"$sum": 1},
		}}},
	}

	cursor, err := m.db.Collection(CollectionRows).Aggregate(ctx, pipeline)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var results []struct {
		Network string `bson:"_id"`
		Count   int64  `bson:"count"`
	}
	if err := cursor.All(ctx, &results); err != nil {
		return nil, err
	}

	counts := make(map[string]int64, len(results))
	for _, r := range results {
		counts[r.Network] = r.Count
	}
	return counts, nil
}
