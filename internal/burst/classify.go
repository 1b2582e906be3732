package burst

import (
	"fmt"
	"math"
	"strings"
	"time"

	"darkroom/internal/hasher"
)

// Kind is the outcome of comparing two candidates.
type Kind string

const (
	KindBurst     Kind = "burst"
	KindDuplicate Kind = "duplicate"
	KindDistinct  Kind = "distinct"
)

// ExposureKey is the exposure triple compared between frames. The zero value
// means unknown and never matches.
type ExposureKey struct {
	ExposureTime string
	FNumber      float64
	ISO          int
}

// Known reports whether all three exposure values are present.
func (k ExposureKey) Known() bool {
	return k.ExposureTime != "" && k.FNumber > 0 && k.ISO > 0
}

// Candidate is one photo under comparison.
type Candidate struct {
	VersionID      string
	Filename       string
	CapturedAt     *time.Time
	CameraMake     string
	CameraModel    string
	Exposure       ExposureKey
	PerceptualHash uint64
	Size           int64
}

// Decision is the result of Classify. A near-duplicate is a grouping hint:
// Kind stays distinct and NearDuplicate is set.
type Decision struct {
	Kind          Kind     `json:"kind"`
	NearDuplicate bool     `json:"near_duplicate,omitempty"`
	Confidence    float64  `json:"confidence"`
	Similarity    float64  `json:"similarity"`
	Evidence      []string `json:"evidence,omitempty"`
}

// SimilarityFunc returns the visual similarity of two candidates in percent.
type SimilarityFunc func(a, b Candidate) float64

// Classifier applies a Policy to candidate pairs.
type Classifier struct {
	Policy Policy
	// Similarity defaults to the perceptual hash similarity.
	Similarity SimilarityFunc
}

// NewClassifier returns a classifier using the perceptual hash similarity.
func NewClassifier(policy Policy) *Classifier {
	return &Classifier{Policy: policy}
}

// PerceptualSimilarity compares the 64-bit difference hashes of two candidates.
func PerceptualSimilarity(a, b Candidate) float64 {
	return hasher.Similarity(a.PerceptualHash, b.PerceptualHash)
}

// Classify compares two candidates. Rules are applied in order and the first
// match wins:
//
//  1. capture gap beyond the sequence window skips every burst rule
//  2. sequential filenames
//  3. same camera with matching exposure inside the sequence window
//  4. capture gap inside the burst window
//  5. visual similarity against the duplicate thresholds
func (c *Classifier) Classify(a, b Candidate) Decision {
	policy := c.Policy
	if policy == (Policy{}) {
		policy = DefaultPolicy()
	}
	similarity := c.similarity(a, b)

	gap, haveGap := captureGap(a, b)
	var evidence []string
	if haveGap {
		evidence = append(evidence, "gap="+gap.String())
	}

	if !haveGap || gap <= policy.SequenceWindow {
		if rule, ok := sequencePattern(a.Filename, b.Filename); ok {
			return Decision{
				Kind:       KindBurst,
				Confidence: 0.9,
				Similarity: similarity,
				Evidence:   append(evidence, "filename:"+rule),
			}
		}
	}

	if haveGap && gap <= policy.SequenceWindow && sameCamera(a, b) && a.Exposure.Known() && a.Exposure == b.Exposure {
		return Decision{
			Kind:       KindBurst,
			Confidence: 0.85,
			Similarity: similarity,
			Evidence:   append(evidence, "camera:"+cameraLabel(a), "exposure:"+exposureLabel(a.Exposure)),
		}
	}

	if haveGap && gap <= policy.BurstWindow {
		confidence := 0.7
		if policy.BurstWindow > 0 {
			confidence += 0.3 * (1 - float64(gap)/float64(policy.BurstWindow))
		}
		return Decision{
			Kind:       KindBurst,
			Confidence: round(confidence),
			Similarity: similarity,
			Evidence:   append(evidence, "rapid_succession"),
		}
	}

	evidence = append(evidence, fmt.Sprintf("similarity=%.2f", similarity))
	switch {
	case similarity >= policy.DuplicateSimilarity:
		return Decision{Kind: KindDuplicate, Confidence: round(similarity / 100), Similarity: similarity, Evidence: evidence}
	case similarity >= policy.NearDuplicateSimilarity:
		return Decision{Kind: KindDistinct, NearDuplicate: true, Confidence: round(similarity / 100), Similarity: similarity, Evidence: evidence}
	default:
		return Decision{Kind: KindDistinct, Confidence: round(math.Max(0.5, (100-similarity)/100)), Similarity: similarity, Evidence: evidence}
	}
}

func (c *Classifier) similarity(a, b Candidate) float64 {
	fn := c.Similarity
	if fn == nil {
		fn = PerceptualSimilarity
	}
	s := fn(a, b)
	if math.IsNaN(s) || s < 0 {
		return 0
	}
	if s > 100 {
		return 100
	}
	return s
}

func captureGap(a, b Candidate) (time.Duration, bool) {
	if a.CapturedAt == nil || b.CapturedAt == nil {
		return 0, false
	}
	gap := a.CapturedAt.Sub(*b.CapturedAt)
	if gap < 0 {
		gap = -gap
	}
	return gap, true
}

func sameCamera(a, b Candidate) bool {
	makeA, makeB := strings.TrimSpace(a.CameraMake), strings.TrimSpace(b.CameraMake)
	modelA, modelB := strings.TrimSpace(a.CameraModel), strings.TrimSpace(b.CameraModel)
	if modelA == "" || modelB == "" {
		return false
	}
	return strings.EqualFold(makeA, makeB) && strings.EqualFold(modelA, modelB)
}

func cameraLabel(c Candidate) string {
	return strings.TrimSpace(strings.TrimSpace(c.CameraMake) + " " + strings.TrimSpace(c.CameraModel))
}

func exposureLabel(k ExposureKey) string {
	return fmt.Sprintf("%s f/%.1f ISO%d", k.ExposureTime, k.FNumber, k.ISO)
}

func round(v float64) float64 {
	return math.Round(v*1000) / 1000
}
