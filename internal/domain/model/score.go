package model

import "time"

// Score component and total ceilings.
const (
	ScoreComponentMax = 100.0
	ScoreTotalMax     = 500.0
)

// ScoreRecord is a derived projection of WalletState: fully recomputable,
// never independently mutable. LastUpdated is the "now" the record was
// computed against.
type ScoreRecord struct {
	Wallet         string
	VolumeScore    float64
	FrequencyScore float64
	DiversityScore float64
	TimingScore    float64
	TotalScore     float64
	LastUpdated    time.Time
}

// ComputeScore derives the composite score from wallet state. Pure and
// deterministic given state, thresholds and now; safe to run redundantly.
func ComputeScore(state *WalletState, t Thresholds, now time.Time) ScoreRecord {
	volume := 0.0
	if t.WhaleVolume > 0 {
		volume = clampComponent(float64(state.TotalVolume) / float64(t.WhaleVolume) * 100)
	}

	frequency := clampComponent(float64(state.TransactionCount) * 2)
	diversity := clampComponent(float64(state.Tags.Len()) * 20)

	timing := 0.0
	if !state.LastActive.IsZero() {
		hours := now.Sub(state.LastActive).Hours()
		if hours < 0 {
			hours = 0
		}
		timing = clampComponent(100 - hours)
	}

	total := volume + frequency + diversity + timing
	if total > ScoreTotalMax {
		total = ScoreTotalMax
	}

	return ScoreRecord{
		Wallet:         state.Address,
		VolumeScore:    volume,
		FrequencyScore: frequency,
		DiversityScore: diversity,
		TimingScore:    timing,
		TotalScore:     total,
		LastUpdated:    now,
	}
}

func clampComponent(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > ScoreComponentMax {
		return ScoreComponentMax
	}
	return v
}
