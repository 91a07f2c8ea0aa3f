package mongo

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/AdekunleBamz/Monascribe-sub000/internal/domain/model"
)

const (
	walletsCollection = "smart_wallets"
	scoresCollection  = "wallet_scores"

	defaultConnectTimeout = 10 * time.Second
	defaultWriteTimeout   = 15 * time.Second
)

// Store materializes wallet and score documents into MongoDB for the tiered
// read APIs. Never the system of record; every write is a keyed upsert.
type Store struct {
	client  *mongo.Client
	wallets *mongo.Collection
	scores  *mongo.Collection
}

func New(ctx context.Context, uri, database string) (*Store, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultConnectTimeout)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		return nil, fmt.Errorf("ping mongo: %w", err)
	}

	db := client.Database(database)
	return &Store{
		client:  client,
		wallets: db.Collection(walletsCollection),
		scores:  db.Collection(scoresCollection),
	}, nil
}

// UpsertWallet writes the wallet projection keyed by address. Replaying the
// same document is a no-op beyond the syncedAt bump.
func (s *Store) UpsertWallet(ctx context.Context, doc *model.WalletDocument) error {
	ctx, cancel := context.WithTimeout(ctx, defaultWriteTimeout)
	defer cancel()

	// _id must stay out of $set: the filter seeds it on insert and Mongo
	// rejects updates that touch it.
	_, err := s.wallets.UpdateOne(ctx,
		bson.M{"_id": doc.Address},
		bson.M{"$set": bson.M{
			"totalVolume":      doc.TotalVolume,
			"transactionCount": doc.TransactionCount,
			"totalGasCost":     doc.TotalGasCost,
			"firstSeen":        doc.FirstSeen,
			"lastActive":       doc.LastActive,
			"tags":             doc.Tags,
			"isWhale":          doc.IsWhale,
			"totalScore":       doc.TotalScore,
			"syncedAt":         doc.SyncedAt,
		}},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("upsert wallet doc %s: %w", doc.Address, err)
	}
	return nil
}

// UpsertScore writes the score breakdown keyed by its synthetic id.
func (s *Store) UpsertScore(ctx context.Context, doc *model.ScoreDocument) error {
	ctx, cancel := context.WithTimeout(ctx, defaultWriteTimeout)
	defer cancel()

	_, err := s.scores.UpdateOne(ctx,
		bson.M{"_id": doc.ID},
		bson.M{"$set": bson.M{
			"walletAddress":  doc.Wallet,
			"volumeScore":    doc.VolumeScore,
			"frequencyScore": doc.FrequencyScore,
			"diversityScore": doc.DiversityScore,
			"timingScore":    doc.TimingScore,
			"totalScore":     doc.TotalScore,
			"lastUpdated":    doc.LastUpdated,
			"syncedAt":       doc.SyncedAt,
		}},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("upsert score doc %s: %w", doc.Wallet, err)
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, defaultConnectTimeout)
	defer cancel()
	return s.client.Ping(ctx, readpref.Primary())
}

func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}
