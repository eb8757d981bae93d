package diagnose

import (
	"errors"
	"fmt"
)

// ErrInvalidStep wraps all step validation failures so callers can
// distinguish malformed input from phase execution errors.
var ErrInvalidStep = errors.New("invalid step")

// Step is one operator-submitted unit of the diagnostic session. Immutable
// once ledgered.
type Step struct {
	Thought    string `json:"thought"`
	Number     int    `json:"thoughtNumber"`
	Total      int    `json:"totalThoughts"`
	NextNeeded bool   `json:"nextThoughtNeeded"`

	// RevisesStep marks this step as a revision of a prior step number.
	RevisesStep int `json:"revisesThought,omitempty"`
	// BranchFrom + BranchID open or extend a named alternative line of
	// investigation diverging from a prior step.
	BranchFrom int    `json:"branchFromThought,omitempty"`
	BranchID   string `json:"branchId,omitempty"`
}

// Validate checks the required fields. Optional markers (revision, branch)
// pass through unchecked.
func (s Step) Validate() error {
	if s.Thought == "" {
		return fmt.Errorf("%w: thought must be a non-empty string", ErrInvalidStep)
	}
	if s.Number <= 0 {
		return fmt.Errorf("%w: thoughtNumber must be a positive number", ErrInvalidStep)
	}
	if s.Total <= 0 {
		return fmt.Errorf("%w: totalThoughts must be a positive number", ErrInvalidStep)
	}
	return nil
}

// Ledger is the append-only ordered history of steps. Branch membership is a
// list of indexes into the main sequence, not a copy, so a step ledgered
// under a branch appears in both views without duplication.
type Ledger struct {
	steps    []Step
	branches map[string][]int
}

// Append records a step. If the step's number exceeds its declared total the
// stored total is raised to match (monotonic correction; a later smaller
// submission never lowers an earlier step's total). Returns the step as
// stored.
func (l *Ledger) Append(step Step) Step {
	if step.Number > step.Total {
		step.Total = step.Number
	}
	l.steps = append(l.steps, step)
	if step.BranchID != "" {
		if l.branches == nil {
			l.branches = make(map[string][]int)
		}
		l.branches[step.BranchID] = append(l.branches[step.BranchID], len(l.steps)-1)
	}
	return step
}

// Len returns the number of ledgered steps.
func (l *Ledger) Len() int { return len(l.steps) }

// Steps returns the main sequence in causal order.
func (l *Ledger) Steps() []Step {
	out := make([]Step, len(l.steps))
	copy(out, l.steps)
	return out
}

// BranchNames lists the identifiers of all named branches.
func (l *Ledger) BranchNames() []string {
	names := make([]string, 0, len(l.branches))
	for name := range l.branches {
		names = append(names, name)
	}
	return names
}

// Branch returns the ordered subsequence of steps that named the branch.
func (l *Ledger) Branch(id string) []Step {
	idxs, ok := l.branches[id]
	if !ok {
		return nil
	}
	out := make([]Step, 0, len(idxs))
	for _, i := range idxs {
		out = append(out, l.steps[i])
	}
	return out
}
