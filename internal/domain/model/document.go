package model

import (
	"time"

	"github.com/google/uuid"
)

// WalletDocument is the denormalized wallet projection upserted into the
// downstream store, keyed by address. Eventually consistent with the
// aggregator's state; never the system of record.
type WalletDocument struct {
	Address          string    `bson:"_id"`
	TotalVolume      uint64    `bson:"totalVolume"`
	TransactionCount int64     `bson:"transactionCount"`
	TotalGasCost     uint64    `bson:"totalGasCost"`
	FirstSeen        time.Time `bson:"firstSeen"`
	LastActive       time.Time `bson:"lastActive"`
	Tags             []string  `bson:"tags"`
	IsWhale          bool      `bson:"isWhale"`
	TotalScore       float64   `bson:"totalScore"`
	SyncedAt         time.Time `bson:"syncedAt"`
}

// ScoreDocument is the score-breakdown projection, keyed by a synthetic id
// derived deterministically from the address so replayed upserts hit the
// same document.
type ScoreDocument struct {
	ID             string    `bson:"_id"`
	Wallet         string    `bson:"walletAddress"`
	VolumeScore    float64   `bson:"volumeScore"`
	FrequencyScore float64   `bson:"frequencyScore"`
	DiversityScore float64   `bson:"diversityScore"`
	TimingScore    float64   `bson:"timingScore"`
	TotalScore     float64   `bson:"totalScore"`
	LastUpdated    time.Time `bson:"lastUpdated"`
	SyncedAt       time.Time `bson:"syncedAt"`
}

// ScoreDocumentID derives the synthetic score document id for an address.
func ScoreDocumentID(address string) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte("score:"+address)).String()
}

// ProjectWallet builds the materialized wallet document from state and a
// freshly computed score.
func ProjectWallet(state *WalletState, score ScoreRecord, syncedAt time.Time) *WalletDocument {
	return &WalletDocument{
		Address:          state.Address,
		TotalVolume:      state.TotalVolume,
		TransactionCount: state.TransactionCount,
		TotalGasCost:     state.TotalGasCost,
		FirstSeen:        state.FirstSeen,
		LastActive:       state.LastActive,
		Tags:             state.Tags.Sorted(),
		IsWhale:          state.IsWhale,
		TotalScore:       score.TotalScore,
		SyncedAt:         syncedAt,
	}
}

// ProjectScore builds the materialized score document from a score record.
func ProjectScore(score ScoreRecord, syncedAt time.Time) *ScoreDocument {
	return &ScoreDocument{
		ID:             ScoreDocumentID(score.Wallet),
		Wallet:         score.Wallet,
		VolumeScore:    score.VolumeScore,
		FrequencyScore: score.FrequencyScore,
		DiversityScore: score.DiversityScore,
		TimingScore:    score.TimingScore,
		TotalScore:     score.TotalScore,
		LastUpdated:    score.LastUpdated,
		SyncedAt:       syncedAt,
	}
}
