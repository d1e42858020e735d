package matchphase

import (
	"fmt"
	"strings"
)

// Phase is the live match clock stage. Values are the backend wire codes.
type Phase string

const (
	PhaseNotStarted Phase = "P"
	PhaseFirstHalf  Phase = "C1"
	PhaseHalfTime   Phase = "E"
	PhaseSecondHalf Phase = "C2"
	PhaseEnded      Phase = "T"
	PhaseFinished   Phase = "F"
	PhaseSuspended  Phase = "S"
)

// order is the forward sequence. Suspended sits outside of it.
var order = map[Phase]int{
	PhaseNotStarted: 0,
	PhaseFirstHalf:  1,
	PhaseHalfTime:   2,
	PhaseSecondHalf: 3,
	PhaseEnded:      4,
	PhaseFinished:   5,
}

var phaseNames = map[Phase]string{
	PhaseNotStarted: "not_started",
	PhaseFirstHalf:  "first_half",
	PhaseHalfTime:   "half_time",
	PhaseSecondHalf: "second_half",
	PhaseEnded:      "ended",
	PhaseFinished:   "finished",
	PhaseSuspended:  "suspended",
}

func ParsePhase(raw string) (Phase, error) {
	p := Phase(strings.ToUpper(strings.TrimSpace(raw)))
	if _, ok := phaseNames[p]; !ok {
		return "", fmt.Errorf("unknown match phase %q", raw)
	}
	return p, nil
}

func (p Phase) Valid() bool {
	_, ok := phaseNames[p]
	return ok
}

func (p Phase) String() string {
	if name, ok := phaseNames[p]; ok {
		return name
	}
	return "unknown(" + string(p) + ")"
}

// Terminal phases accept no further transitions.
func (p Phase) Terminal() bool {
	return p == PhaseFinished || p == PhaseSuspended
}

// Before reports whether p comes strictly earlier than other in the forward
// sequence. Suspended is never before anything and everything non-terminal
// is before it.
func (p Phase) Before(other Phase) bool {
	if p == other {
		return false
	}
	if other == PhaseSuspended {
		return !p.Terminal()
	}
	pi, okP := order[p]
	oi, okO := order[other]
	if !okP || !okO {
		return false
	}
	return pi < oi
}

type Action string

const (
	ActionStartMatch      Action = "start_match"
	ActionEndFirstHalf    Action = "end_first_half"
	ActionStartSecondHalf Action = "start_second_half"
	ActionEndMatch        Action = "end_match"
	ActionFinalizeMatch   Action = "finalize_match"
	ActionSuspendMatch    Action = "suspend_match"
)

type rule struct {
	from    Phase
	to      Phase
	success string
}

var rules = map[Action]rule{
	ActionStartMatch:      {from: PhaseNotStarted, to: PhaseFirstHalf, success: "Match started"},
	ActionEndFirstHalf:    {from: PhaseFirstHalf, to: PhaseHalfTime, success: "First half ended"},
	ActionStartSecondHalf: {from: PhaseHalfTime, to: PhaseSecondHalf, success: "Second half started"},
	ActionEndMatch:        {from: PhaseSecondHalf, to: PhaseEnded, success: "Match ended"},
	ActionFinalizeMatch:   {from: PhaseEnded, to: PhaseFinished, success: "Match finalized"},
	ActionSuspendMatch:    {to: PhaseSuspended, success: "Match suspended"},
}

func ParseAction(raw string) (Action, error) {
	a := Action(strings.ToLower(strings.TrimSpace(raw)))
	if _, ok := rules[a]; !ok {
		return "", fmt.Errorf("unknown match action %q", raw)
	}
	return a, nil
}

// Target returns the phase an action leads to.
func (a Action) Target() (Phase, bool) {
	r, ok := rules[a]
	return r.to, ok
}

// Allowed reports whether the action may be applied from phase p.
func (a Action) Allowed(p Phase) bool {
	r, ok := rules[a]
	if !ok {
		return false
	}
	if a == ActionSuspendMatch {
		return p.Valid() && !p.Terminal()
	}
	return r.from == p
}

// StartsClock reports whether the backend answers this action with a start time.
func (a Action) StartsClock() bool {
	return a == ActionStartMatch || a == ActionStartSecondHalf
}
