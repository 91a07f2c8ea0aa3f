package event

import "time"

// RawEvent is a loosely typed record as delivered by the indexer feed.
// Validation and canonicalization happen in the normalizer.
type RawEvent struct {
	ID           string `json:"id"`
	Kind         string `json:"kind"`
	Wallet       string `json:"wallet"`
	Counterparty string `json:"counterparty,omitempty"`
	Amount       string `json:"amount"`
	GasCost      string `json:"gasCost,omitempty"`
	Protocol     string `json:"protocol,omitempty"`
	BlockNumber  int64  `json:"blockNumber"`
	Timestamp    int64  `json:"timestamp"` // unix seconds
}

// RawBatch is one poll window of feed records for a single source.
type RawBatch struct {
	SourceID  string
	FromBlock int64
	ToBlock   int64
	Events    []RawEvent
	FetchedAt time.Time
}
