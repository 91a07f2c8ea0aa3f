package model

import (
	"sort"
	"time"
)

// TagSet is an unordered set of classification/protocol tags.
type TagSet map[string]struct{}

func NewTagSet(tags ...string) TagSet {
	s := make(TagSet, len(tags))
	for _, t := range tags {
		s[t] = struct{}{}
	}
	return s
}

func (s TagSet) Add(tag string) {
	s[tag] = struct{}{}
}

func (s TagSet) Has(tag string) bool {
	_, ok := s[tag]
	return ok
}

func (s TagSet) Len() int { return len(s) }

// Sorted returns the tags in lexical order, for stable persistence and logs.
func (s TagSet) Sorted() []string {
	out := make([]string, 0, len(s))
	for t := range s {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

func (s TagSet) Clone() TagSet {
	out := make(TagSet, len(s))
	for t := range s {
		out[t] = struct{}{}
	}
	return out
}

// WalletState is the per-wallet running aggregate. Owned exclusively by the
// aggregator; all mutation goes through event application. Never deleted.
type WalletState struct {
	Address          string    `db:"address"` // lower-cased key
	TotalVolume      uint64    `db:"total_volume"`
	TransactionCount int64     `db:"transaction_count"`
	TotalGasCost     uint64    `db:"total_gas_cost"`
	MaxEventAmount   uint64    `db:"max_event_amount"`
	FirstSeen        time.Time `db:"first_seen"`
	LastActive       time.Time `db:"last_active"`
	Protocols        TagSet    `db:"protocols"`
	Tags             TagSet    `db:"tags"`
	IsWhale          bool      `db:"is_whale"`
	UpdatedAt        time.Time `db:"updated_at"`
}

// NewWalletState initializes state for an address first seen at ts.
func NewWalletState(address string, ts time.Time) *WalletState {
	return &WalletState{
		Address:    address,
		FirstSeen:  ts,
		LastActive: ts,
		Protocols:  make(TagSet),
		Tags:       make(TagSet),
	}
}

// Clone returns a deep copy, safe to hand outside the aggregator.
func (w *WalletState) Clone() *WalletState {
	c := *w
	c.Protocols = w.Protocols.Clone()
	c.Tags = w.Tags.Clone()
	return &c
}
