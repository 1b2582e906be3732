package burst

import (
	"time"

	"darkroom/internal/config"
)

// Policy holds the classification thresholds. Similarities are percentages.
type Policy struct {
	SequenceWindow          time.Duration
	BurstWindow             time.Duration
	DuplicateSimilarity     float64
	NearDuplicateSimilarity float64
}

// DefaultPolicy mirrors the configuration defaults.
func DefaultPolicy() Policy {
	return Policy{
		SequenceWindow:          30 * time.Second,
		BurstWindow:             5 * time.Second,
		DuplicateSimilarity:     99.9,
		NearDuplicateSimilarity: 98.0,
	}
}

// PolicyFromConfig converts the [burst] section into a Policy.
func PolicyFromConfig(cfg config.Burst) Policy {
	p := Policy{
		SequenceWindow:          seconds(cfg.SequenceWindowSeconds),
		BurstWindow:             seconds(cfg.BurstWindowSeconds),
		DuplicateSimilarity:     cfg.DuplicateSimilarity,
		NearDuplicateSimilarity: cfg.NearDuplicateSimilarity,
	}
	def := DefaultPolicy()
	if p.SequenceWindow <= 0 {
		p.SequenceWindow = def.SequenceWindow
	}
	if p.BurstWindow <= 0 {
		p.BurstWindow = def.BurstWindow
	}
	if p.DuplicateSimilarity <= 0 {
		p.DuplicateSimilarity = def.DuplicateSimilarity
	}
	if p.NearDuplicateSimilarity <= 0 {
		p.NearDuplicateSimilarity = def.NearDuplicateSimilarity
	}
	return p
}

func seconds(v float64) time.Duration {
	return time.Duration(v * float64(time.Second))
}
