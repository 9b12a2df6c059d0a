package rates

import "time"

// Seniority is the career level a rate entry prices.
type Seniority string

const (
	SeniorityIntern   Seniority = "intern"
	SeniorityJunior   Seniority = "junior"
	SeniorityMiddle   Seniority = "middle"
	SenioritySenior   Seniority = "senior"
	SeniorityDirector Seniority = "director"
)

// WorkMode is the work arrangement a rate entry prices.
type WorkMode string

const (
	WorkModeRemote WorkMode = "remote"
	WorkModeHybrid WorkMode = "hybrid"
	WorkModeOnSite WorkMode = "on_site"
)

// Entry mirrors the rate_entries table. Entries are never deleted, only
// deactivated, so historical prices stay auditable. Location nil means the
// entry applies to any location.
type Entry struct {
	ID        string
	Profile   string
	Seniority Seniority
	WorkMode  WorkMode
	Location  *string
	Credits   int64
	MinSalary *int64
	Active    bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Quote is the outcome of a price resolution. Matched=false means no active
// entry covered the attributes and Credits carries the configured default,
// so callers can tell policy pricing from configured pricing.
type Quote struct {
	Credits   int64
	Matched   bool
	RateID    string
	MinSalary *int64
}

// ValidSeniority reports whether s is a known seniority level.
func ValidSeniority(s Seniority) bool {
	switch s {
	case SeniorityIntern, SeniorityJunior, SeniorityMiddle, SenioritySenior, SeniorityDirector:
		return true
	}
	return false
}

// ValidWorkMode reports whether m is a known work arrangement.
func ValidWorkMode(m WorkMode) bool {
	switch m {
	case WorkModeRemote, WorkModeHybrid, WorkModeOnSite:
		return true
	}
	return false
}
