package model

import "time"

// EventKind discriminates the canonical event tagged union.
type EventKind string

const (
	KindSubscribed EventKind = "SUBSCRIBED"
	KindCancelled  EventKind = "CANCELLED"
	KindTransfer   EventKind = "TRANSFER"
	KindDEXTrade   EventKind = "DEX_TRADE"
)

// Valid reports whether k is a known event kind.
func (k EventKind) Valid() bool {
	switch k {
	case KindSubscribed, KindCancelled, KindTransfer, KindDEXTrade:
		return true
	}
	return false
}

// TwoParty reports whether events of this kind carry a counterparty whose
// wallet state must also be updated.
func (k EventKind) TwoParty() bool {
	return k == KindTransfer
}

// CanonicalEvent is the normalized internal event shape. Immutable once
// produced by the normalizer; addresses are already lower-cased.
type CanonicalEvent struct {
	ID           string // source-qualified, globally unique per source
	Kind         EventKind
	Wallet       string
	Counterparty string // set for two-party transfers, otherwise empty
	Amount       uint64 // base units; zero-value events still count as activity
	GasCost      uint64 // base units, zero when the feed omits it
	Protocol     string // protocol marker, e.g. "monascribe", "uniswap"
	BlockNumber  int64
	Timestamp    time.Time
}

// ProtocolSubscription is the protocol marker stamped on subscription-service
// events by the normalizer. The classifier keys the subscriber tag off it.
const ProtocolSubscription = "monascribe"
