package model

// Candidate is one media source observed on a rendered page, as captured
// from the browser's network events (C3) before being handed to the C6
// selector.
type Candidate struct {
	URL             string `json:"url"`
	IsHLS           bool   `json:"is_hls"`
	MimeType        string `json:"mime_type,omitempty"`
	IsPrimaryPlayer bool   `json:"is_primary_player"`
	DeclaredSize    int64  `json:"declared_size,omitempty"`

	// firstSeen preserves encounter order for tie-breaking (§4.6 step 5).
	firstSeen int
}

func (c *Candidate) SetFirstSeen(n int) { c.firstSeen = n }
func (c *Candidate) FirstSeen() int     { return c.firstSeen }

// ScoredCandidate pairs a Candidate with its computed score and the reasons
// the scorer applied (§4.6 "logs the chosen URL, total score, and the
// applied reasons").
type ScoredCandidate struct {
	Candidate Candidate
	Score     int
	Reasons   []string
}
