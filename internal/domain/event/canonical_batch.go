package event

import "github.com/AdekunleBamz/Monascribe-sub000/internal/domain/model"

// CanonicalBatch carries normalized events ready for aggregation. Dropped
// counts records the normalizer rejected; they never abort a batch.
type CanonicalBatch struct {
	SourceID  string
	FromBlock int64
	ToBlock   int64
	Events    []model.CanonicalEvent
	Dropped   int
}
