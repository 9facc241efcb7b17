package cache

// Record is the reputation service's response body for a known user,
// also the on-disk snapshot format.
type Record struct {
	UserID    string `json:"userId,omitempty"`
	UserName  string `json:"userName"`
	IsYoinker bool   `json:"isYoinker"`
	Reason    string `json:"reason"`
	Year      string `json:"year"`
	Status    string `json:"status,omitempty"`
}

// Outcome classifies a lookup result.
type Outcome string

const (
	// OutcomeFound means the service flagged the identifier as a yoinker.
	OutcomeFound Outcome = "found"

	// OutcomeNotFound means the service confirmed the identifier absent
	// (404, or 200 with a negative flag). Terminal and durable.
	OutcomeNotFound Outcome = "not_found"

	// OutcomeUnresolved means the lookup failed after exhausting its retry
	// budget. Never persisted; eligible for retry on the next run.
	OutcomeUnresolved Outcome = "unresolved"
)

// Result is the outcome of one identifier lookup. Record is non-nil only
// for OutcomeFound; Err carries detail only for OutcomeUnresolved.
type Result struct {
	Outcome Outcome
	Record  *Record
	Err     error
}

// Found reports whether the result is a positive hit.
func (r Result) Found() bool {
	return r.Outcome == OutcomeFound
}

// Terminal reports whether the result is worth persisting.
func (r Result) Terminal() bool {
	return r.Outcome == OutcomeFound || r.Outcome == OutcomeNotFound
}
