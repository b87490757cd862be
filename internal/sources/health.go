package sources

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/sifthq/sift/internal/domain"
)

const DefaultHealthCollection = "health_events"

// Health queries the infrastructure health index. The ingest side upserts one
// document per health notice keyed by its ARN.
type Health struct {
	database   *mongo.Database
	params     domain.ParameterStore
	collection string
	limit      int
}

type HealthConfig struct {
	// Collection holding the health documents. Defaults to
	// DefaultHealthCollection.
	Collection string
	// Limit caps how many notices a single run may pick up. Zero means no cap.
	Limit int
}

func NewHealth(database *mongo.Database, params domain.ParameterStore, cfg HealthConfig) *Health {
	collection := cfg.Collection
	if collection == "" {
		collection = DefaultHealthCollection
	}

	return &Health{
		database:   database,
		params:     params,
		collection: collection,
		limit:      cfg.Limit,
	}
}

// healthDocument is the index representation of a health notice.
type healthDocument struct {
	ARN              string    `bson:"arn"`
	Service          string    `bson:"service"`
	EventTypeCode    string    `bson:"event_type_code"`
	Region           string    `bson:"region"`
	StatusCode       string    `bson:"status_code"`
	Description      string    `bson:"description"`
	AffectedEntities []string  `bson:"affected_entities,omitempty"`
	LastUpdatedAt    time.Time `bson:"last_updated_at"`
}

func (d healthDocument) toEvent() domain.HealthEvent {
	return domain.HealthEvent{
		ARN:              d.ARN,
		Service:          d.Service,
		EventTypeCode:    d.EventTypeCode,
		Region:           d.Region,
		StatusCode:       d.StatusCode,
		Description:      d.Description,
		AffectedEntities: d.AffectedEntities,
		LastUpdatedAt:    d.LastUpdatedAt,
	}
}

// healthFilter matches every notice updated at or after the watermark. A zero
// watermark matches everything.
func healthFilter(since time.Time) bson.M {
	if since.IsZero() {
		return bson.M{}
	}
	return bson.M{"last_updated_at": bson.M{"$gte": since}}
}

func (h *Health) Count(ctx context.Context) (int, error) {
	since, err := h.params.EventsSince(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to read events watermark: %w", err)
	}

	countOptions := options.Count()
	if h.limit > 0 {
		countOptions.SetLimit(int64(h.limit))
	}

	count, err := h.database.Collection(h.collection).CountDocuments(ctx, healthFilter(since), countOptions)
	if err != nil {
		return 0, fmt.Errorf("failed to count health events: %w", err)
	}

	return int(count), nil
}

func (h *Health) List(ctx context.Context) ([]domain.EventRecord, error) {
	since, err := h.params.EventsSince(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read events watermark: %w", err)
	}

	findOptions := options.Find()
	findOptions.SetSort(bson.D{{Key: "last_updated_at", Value: 1}, {Key: "arn", Value: 1}})
	if h.limit > 0 {
		findOptions.SetLimit(int64(h.limit))
	}

	cursor, err := h.database.Collection(h.collection).Find(ctx, healthFilter(since), findOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to find health events: %w", err)
	}
	defer cursor.Close(ctx)

	var documents []healthDocument
	if err := cursor.All(ctx, &documents); err != nil {
		return nil, fmt.Errorf("failed to decode health events: %w", err)
	}

	events := make([]domain.EventRecord, 0, len(documents))
	for _, doc := range documents {
		if doc.ARN == "" {
			continue
		}
		events = append(events, doc.toEvent())
	}

	return events, nil
}
