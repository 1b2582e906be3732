package store

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Tier names a storage tier.
type Tier string

const (
	TierBronze Tier = "bronze"
	TierSilver Tier = "silver"
	TierGold   Tier = "gold"
)

// Tiers lists the tiers in promotion order.
var Tiers = []Tier{TierBronze, TierSilver, TierGold}

// Rank orders tiers for monotonic promotion checks. Unknown tiers rank -1.
func (t Tier) Rank() int {
	switch t {
	case TierBronze:
		return 0
	case TierSilver:
		return 1
	case TierGold:
		return 2
	default:
		return -1
	}
}

// Next returns the tier one step above t, or "" for gold.
func (t Tier) Next() Tier {
	switch t {
	case TierBronze:
		return TierSilver
	case TierSilver:
		return TierGold
	default:
		return ""
	}
}

// ParseTier converts user input into a Tier.
func ParseTier(value string) (Tier, error) {
	tier := Tier(strings.ToLower(strings.TrimSpace(value)))
	if tier.Rank() < 0 {
		return "", fmt.Errorf("unknown tier %q (want bronze, silver or gold)", value)
	}
	return tier, nil
}

// Action names an audit history event.
type Action string

const (
	ActionIngested         Action = "INGESTED"
	ActionProcessed        Action = "PROCESSED"
	ActionPromoted         Action = "PROMOTED"
	ActionDemoted          Action = "DEMOTED"
	ActionMetadataEdited   Action = "METADATA_EDITED"
	ActionProcessingFailed Action = "PROCESSING_FAILED"
	ActionRejected         Action = "REJECTED"
	ActionArchived         Action = "ARCHIVED"
	ActionDeleted          Action = "DELETED"
)

// Asset is the logical photo, independent of tier.
type Asset struct {
	ID               string
	OriginalFilename string
	CreatedAt        time.Time
	Rejected         bool
	RejectedReason   string
}

// FileVersion is one physical file belonging to an asset at a tier.
type FileVersion struct {
	ID             string
	AssetID        string
	Tier           Tier
	Path           string
	ContentHash    string
	PerceptualHash uint64
	Width          int
	Height         int
	Size           int64
	MimeType       string
	Metadata       json.RawMessage
	IsReviewed     bool
	Rating         int
	Keywords       []string
	Active         bool
	CreatedAt      time.Time
}

// HistoryEntry is one immutable audit row.
type HistoryEntry struct {
	ID        int64
	AssetID   string
	Action    Action
	Details   string
	Timestamp time.Time
}

// Relationship is an unordered edge between two people. A always sorts before B.
type Relationship struct {
	A         string
	B         string
	Kind      string
	CreatedAt time.Time
}

// Stats summarizes catalog contents.
type Stats struct {
	Assets   int
	Rejected int
	Active   map[Tier]int
	History  int
}

// ReviewUpdate carries the review fields that may change on an active version.
type ReviewUpdate struct {
	IsReviewed bool
	Rating     int
	Keywords   []string
	Metadata   json.RawMessage
}
