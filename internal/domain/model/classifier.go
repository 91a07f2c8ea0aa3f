package model

// Canonical tag vocabulary.
const (
	TagWhale         = "whale"
	TagHighScorer    = "high-scorer"
	TagActiveTrader  = "active-trader"
	TagSubscriber    = "subscriber"
	TagLargeTransfer = "large-transfer"
)

// Thresholds holds the classification and scoring constants. They are
// configuration: callers construct one from the environment (or a thresholds
// file) and inject it, so retuning never touches the aggregator or scorer.
type Thresholds struct {
	WhaleVolume         uint64  `yaml:"whale_volume"`
	HighGasCost         uint64  `yaml:"high_gas_cost"`
	LargeTransfer       uint64  `yaml:"large_transfer"`
	WhaleTxCount        int64   `yaml:"whale_tx_count"`
	ActiveTraderTxCount int64   `yaml:"active_trader_tx_count"`
	HighScorerTotal     float64 `yaml:"high_scorer_total"`
}

// DefaultThresholds mirrors the production heuristics. The weights are
// placeholders inherited from the original tuning, kept configurable rather
// than re-derived.
func DefaultThresholds() Thresholds {
	return Thresholds{
		WhaleVolume:         100_000,
		HighGasCost:         1_000_000,
		LargeTransfer:       10_000,
		WhaleTxCount:        100,
		ActiveTraderTxCount: 50,
		HighScorerTotal:     400,
	}
}

// Classification is the classifier's output: a whale verdict plus an additive
// tag set. Tags are a union across independent rules, never exclusive.
type Classification struct {
	IsWhale bool
	Tags    TagSet
}

// Classify evaluates the declarative threshold rules against wallet state and
// its freshly computed score. Pure re-derivation: callers overwrite the
// wallet's tags with the result, they never merge stored truth back in.
func (t Thresholds) Classify(state *WalletState, score ScoreRecord) Classification {
	tags := make(TagSet)

	isWhale := state.TotalVolume >= t.WhaleVolume ||
		state.TotalGasCost >= t.HighGasCost ||
		state.TransactionCount >= t.WhaleTxCount

	if isWhale {
		tags.Add(TagWhale)
	}
	if score.TotalScore > t.HighScorerTotal {
		tags.Add(TagHighScorer)
	}
	if state.TransactionCount >= t.ActiveTraderTxCount {
		tags.Add(TagActiveTrader)
	}
	if state.Protocols.Has(ProtocolSubscription) {
		tags.Add(TagSubscriber)
	}
	if t.LargeTransfer > 0 && state.MaxEventAmount >= t.LargeTransfer {
		tags.Add(TagLargeTransfer)
	}

	// Protocol markers ride along as per-protocol tags so the diversity
	// component reflects breadth of activity, not just rule hits.
	for p := range state.Protocols {
		tags.Add(p)
	}

	return Classification{IsWhale: isWhale, Tags: tags}
}
