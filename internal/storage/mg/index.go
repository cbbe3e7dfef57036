package mg

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"moviebot/internal/models"
	"moviebot/internal/shared"
)

const collectionName = "channel_index"

type entryDoc struct {
	ChatID    int64     `bson:"chat_id"`
	MessageID int       `bson:"message_id"`
	TMDBID    int64     `bson:"tmdb_id,omitempty"`
	Title     string    `bson:"title,omitempty"`
	Caption   string    `bson:"caption,omitempty"`
	Link      string    `bson:"link,omitempty"`
	IsMedia   bool      `bson:"is_media"`
	FileID    string    `bson:"file_id,omitempty"`
	FileName  string    `bson:"file_name,omitempty"`
	Quality   string    `bson:"quality,omitempty"`
	PostedAt  time.Time `bson:"posted_at"`
	UpdatedAt time.Time `bson:"updated_at"`
}

func (d entryDoc) entry() models.CatalogEntry {
	return models.CatalogEntry{
		ChatID:    d.ChatID,
		MessageID: d.MessageID,
		TMDBID:    d.TMDBID,
		Title:     d.Title,
		Caption:   d.Caption,
		Link:      d.Link,
		IsMedia:   d.IsMedia,
		FileID:    d.FileID,
		FileName:  d.FileName,
		Quality:   d.Quality,
		PostedAt:  d.PostedAt.UTC(),
	}
}

// Index implements storage.ContentIndex on a Mongo collection
type Index struct {
	client *mongo.Client
	col    *mongo.Collection
	logger *zap.Logger
}

// NewIndex connects to uri and prepares the channel index collection
func NewIndex(ctx context.Context, uri, database string, logger *zap.Logger) (*Index, error) {
	if uri == "" {
		return nil, errors.New("MONGODB_URI is empty")
	}
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("failed to ping mongo: %w", err)
	}

	idx := &Index{
		client: client,
		col:    client.Database(database).Collection(collectionName),
		logger: logger,
	}
	return idx, nil
}

// Initialize creates the collection indexes
func (i *Index) Initialize(ctx context.Context) error {
	_, err := i.col.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "chat_id", Value: 1}, {Key: "message_id", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{Keys: bson.D{{Key: "tmdb_id", Value: 1}, {Key: "posted_at", Value: -1}}},
		{Keys: bson.D{{Key: "posted_at", Value: -1}}},
	})
	if err != nil {
		return fmt.Errorf("failed to create channel index indexes: %w", err)
	}
	i.logger.Info("Channel index is ready", zap.String("collection", collectionName))
	return nil
}

// UpsertEntry stores a post, replacing an earlier version of the same message
func (i *Index) UpsertEntry(ctx context.Context, entry models.CatalogEntry) error {
	_, err := i.col.UpdateOne(ctx,
		bson.M{"chat_id": entry.ChatID, "message_id": entry.MessageID},
		bson.M{"$set": bson.M{
			"chat_id":    entry.ChatID,
			"message_id": entry.MessageID,
			"tmdb_id":    entry.TMDBID,
			"title":      entry.Title,
			"caption":    entry.Caption,
			"link":       entry.Link,
			"is_media":   entry.IsMedia,
			"file_id":    entry.FileID,
			"file_name":  entry.FileName,
			"quality":    entry.Quality,
			"posted_at":  entry.PostedAt,
			"updated_at": time.Now(),
		}},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert channel post %d: %w", entry.MessageID, err)
	}
	return nil
}

// GetEntry returns one indexed post
func (i *Index) GetEntry(ctx context.Context, chatID int64, messageID int) (*models.CatalogEntry, error) {
	var doc entryDoc
	err := i.col.FindOne(ctx, bson.M{"chat_id": chatID, "message_id": messageID}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, shared.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get channel post %d: %w", messageID, err)
	}
	entry := doc.entry()
	return &entry, nil
}

// FindByTMDB returns posts tagged with tmdbID, newest first
func (i *Index) FindByTMDB(ctx context.Context, tmdbID int64) ([]models.CatalogEntry, error) {
	opts := options.Find().SetSort(bson.D{{Key: "posted_at", Value: -1}})
	return i.find(ctx, bson.M{"tmdb_id": tmdbID}, opts)
}

// Recent returns the newest posts first
func (i *Index) Recent(ctx context.Context, limit int) ([]models.CatalogEntry, error) {
	opts := options.Find().SetSort(bson.D{{Key: "posted_at", Value: -1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	return i.find(ctx, bson.M{}, opts)
}

func (i *Index) find(ctx context.Context, filter bson.M, opts *options.FindOptions) ([]models.CatalogEntry, error) {
	cur, err := i.col.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to query channel index: %w", err)
	}
	defer cur.Close(ctx)

	var entries []models.CatalogEntry
	for cur.Next(ctx) {
		var doc entryDoc
		if err := cur.Decode(&doc); err != nil {
			return nil, fmt.Errorf("failed to decode channel post: %w", err)
		}
		entries = append(entries, doc.entry())
	}
	if err := cur.Err(); err != nil {
		return nil, fmt.Errorf("error iterating channel index: %w", err)
	}
	return entries, nil
}

// Close disconnects the client
func (i *Index) Close(ctx context.Context) error {
	return i.client.Disconnect(ctx)
}
