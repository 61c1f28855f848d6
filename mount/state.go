package mount

import (
	"fmt"
	"time"
)

// State is the lifecycle of one page visit.
type State int

const (
	StateIdle State = iota
	StateFetching
	StateMounted
	StateFailed
	StateSuperseded // a newer visit started while this one was fetching
	StateEmpty      // the service had nothing for this page
)

var stateNames = [...]string{"idle", "fetching", "mounted", "failed", "superseded", "empty"}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// MarshalText implements encoding.TextMarshaler.
func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// Terminal reports whether no further transition can happen.
func (s State) Terminal() bool {
	switch s {
	case StateMounted, StateFailed, StateSuperseded, StateEmpty:
		return true
	}
	return false
}

// Outcome is what one Run call ended with.
type Outcome int

const (
	OutcomePending Outcome = iota
	OutcomeNotApplicable
	OutcomeAlreadyMounted
	OutcomeTargetAbsent
	OutcomeEmpty
	OutcomeMounted
	OutcomeFailed
	OutcomeSuperseded
)

var outcomeNames = [...]string{
	"pending", "not_applicable", "already_mounted", "target_absent",
	"empty", "mounted", "failed", "superseded",
}

func (o Outcome) String() string {
	if int(o) < len(outcomeNames) {
		return outcomeNames[o]
	}
	return fmt.Sprintf("outcome(%d)", int(o))
}

// MarshalText implements encoding.TextMarshaler.
func (o Outcome) MarshalText() ([]byte, error) { return []byte(o.String()), nil }

// Visit is the MountState of one logical page visit. Only the visit holding
// the controller's current generation is authoritative.
type Visit struct {
	ID         string    `json:"id"`
	URL        string    `json:"url"`
	Generation uint64    `json:"generation"`
	State      State     `json:"state"`
	Outcome    Outcome   `json:"outcome"`
	Items      int       `json:"items,omitempty"`
	Err        string    `json:"error,omitempty"`
	StartedAt  time.Time `json:"started_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

func (v Visit) with(state State, outcome Outcome, err error, now time.Time) Visit {
	v.State = state
	v.Outcome = outcome
	v.Err = ""
	if err != nil {
		v.Err = err.Error()
	}
	v.UpdatedAt = now
	return v
}
