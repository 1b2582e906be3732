package burst

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
)

// Group is a cluster of frames from one capture sequence.
type Group struct {
	ID             string   `json:"id"`
	VersionIDs     []string `json:"version_ids"`
	Representative string   `json:"representative"`
	Confidence     float64  `json:"confidence"`
	Evidence       []string `json:"evidence,omitempty"`
}

// Group clusters candidates by single linkage over pairwise burst decisions.
// Candidates without a capture time are still compared, so filename patterns
// can link them. Singletons are not returned.
func (c *Classifier) Group(candidates []Candidate) []Group {
	if len(candidates) < 2 {
		return nil
	}
	sorted := append([]Candidate(nil), candidates...)
	sort.SliceStable(sorted, func(i, j int) bool { return captureLess(sorted[i], sorted[j]) })

	parent := make([]int, len(sorted))
	for i := range parent {
		parent[i] = i
	}
	var find func(int) int
	find = func(i int) int {
		for parent[i] != i {
			parent[i] = parent[parent[i]]
			i = parent[i]
		}
		return i
	}

	type link struct {
		confidence float64
		evidence   []string
	}
	links := make(map[int][]link)
	for i := 0; i < len(sorted); i++ {
		for j := i + 1; j < len(sorted); j++ {
			decision := c.Classify(sorted[i], sorted[j])
			if decision.Kind != KindBurst {
				continue
			}
			ri, rj := find(i), find(j)
			if ri != rj {
				parent[rj] = ri
			}
			links[i] = append(links[i], link{decision.Confidence, decision.Evidence})
		}
	}

	members := make(map[int][]int)
	var roots []int
	for i := range sorted {
		root := find(i)
		if _, ok := members[root]; !ok {
			roots = append(roots, root)
		}
		members[root] = append(members[root], i)
	}

	var groups []Group
	for _, root := range roots {
		idx := members[root]
		if len(idx) < 2 {
			continue
		}
		group := Group{VersionIDs: make([]string, 0, len(idx))}
		best := idx[0]
		var total float64
		var count int
		seen := map[string]struct{}{}
		for _, i := range idx {
			group.VersionIDs = append(group.VersionIDs, sorted[i].VersionID)
			if representativeLess(sorted[i], sorted[best]) {
				best = i
			}
			for _, l := range links[i] {
				total += l.confidence
				count++
				for _, e := range l.evidence {
					if strings.HasPrefix(e, "gap=") {
						continue
					}
					if _, dup := seen[e]; !dup {
						seen[e] = struct{}{}
						group.Evidence = append(group.Evidence, e)
					}
				}
			}
		}
		group.Representative = sorted[best].VersionID
		if count > 0 {
			group.Confidence = round(total / float64(count))
		}
		group.ID = groupID(group.VersionIDs)
		groups = append(groups, group)
	}
	return groups
}

// representativeLess prefers the largest file, then the earliest capture, then
// the lowest version id.
func representativeLess(a, b Candidate) bool {
	if a.Size != b.Size {
		return a.Size > b.Size
	}
	switch {
	case a.CapturedAt != nil && b.CapturedAt != nil && !a.CapturedAt.Equal(*b.CapturedAt):
		return a.CapturedAt.Before(*b.CapturedAt)
	case a.CapturedAt != nil && b.CapturedAt == nil:
		return true
	case a.CapturedAt == nil && b.CapturedAt != nil:
		return false
	}
	return a.VersionID < b.VersionID
}

func captureLess(a, b Candidate) bool {
	switch {
	case a.CapturedAt != nil && b.CapturedAt != nil:
		if !a.CapturedAt.Equal(*b.CapturedAt) {
			return a.CapturedAt.Before(*b.CapturedAt)
		}
	case a.CapturedAt != nil:
		return true
	case b.CapturedAt != nil:
		return false
	}
	return a.VersionID < b.VersionID
}

// groupID is stable for a given membership regardless of input order.
func groupID(versionIDs []string) string {
	ids := append([]string(nil), versionIDs...)
	sort.Strings(ids)
	sum := sha256.Sum256([]byte(strings.Join(ids, "\x00")))
	return "burst-" + hex.EncodeToString(sum[:])[:12]
}
