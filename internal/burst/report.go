package burst

// Pair links two versions judged duplicates or near-duplicates.
type Pair struct {
	A          string  `json:"a"`
	B          string  `json:"b"`
	Similarity float64 `json:"similarity"`
}

// Report is the full classification of a candidate set.
type Report struct {
	Groups         []Group `json:"groups"`
	Duplicates     []Pair  `json:"duplicates,omitempty"`
	NearDuplicates []Pair  `json:"near_duplicates,omitempty"`
}

// GroupOf returns the group containing versionID.
func (r Report) GroupOf(versionID string) (Group, bool) {
	for _, g := range r.Groups {
		for _, id := range g.VersionIDs {
			if id == versionID {
				return g, true
			}
		}
	}
	return Group{}, false
}

// Analyze groups bursts and reports duplicate pairs. Frames of one burst look
// alike by nature, so pairs inside the same group are never reported.
func (c *Classifier) Analyze(candidates []Candidate) Report {
	report := Report{Groups: c.Group(candidates)}
	groupOf := make(map[string]string)
	for _, g := range report.Groups {
		for _, id := range g.VersionIDs {
			groupOf[id] = g.ID
		}
	}
	for i := 0; i < len(candidates); i++ {
		for j := i + 1; j < len(candidates); j++ {
			a, b := candidates[i], candidates[j]
			if ga, ok := groupOf[a.VersionID]; ok && ga == groupOf[b.VersionID] {
				continue
			}
			decision := c.Classify(a, b)
			pair := Pair{A: a.VersionID, B: b.VersionID, Similarity: decision.Similarity}
			switch {
			case decision.Kind == KindDuplicate:
				report.Duplicates = append(report.Duplicates, pair)
			case decision.NearDuplicate:
				report.NearDuplicates = append(report.NearDuplicates, pair)
			}
		}
	}
	return report
}
