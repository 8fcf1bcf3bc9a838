package core

import (
	"errors"
	"fmt"
	"net/netip"
	"strings"

	"github.com/encodeous/spindle/policy"
	"github.com/encodeous/spindle/rib"
	"github.com/encodeous/spindle/state"
)

var ErrNonConvergence = errors.New("routing did not converge")

type (
	TopologyError   = state.TopologyError
	ComparatorError = rib.ComparatorError
)

var ErrComparatorContract = rib.ErrComparatorContract

// ChangedPrefix is a prefix whose best route changed on a router
type ChangedPrefix struct {
	Node   state.NodeVrf
	Prefix netip.Prefix
}

func (c ChangedPrefix) String() string {
	return c.Node.String() + " " + c.Prefix.String()
}

// NonConvergenceError is returned when the round budget or the deadline is exhausted. No partial result accompanies
// it, the computation has to be restarted from scratch.
type NonConvergenceError struct {
	Round       int
	Cap         int
	Cause       error
	LastChanged []ChangedPrefix
}

func (e *NonConvergenceError) Error() string {
	sb := strings.Builder{}
	fmt.Fprintf(&sb, "%v at round %d (cap %d)", ErrNonConvergence, e.Round, e.Cap)
	if e.Cause != nil {
		fmt.Fprintf(&sb, ": %v", e.Cause)
	}
	if len(e.LastChanged) > 0 {
		parts := make([]string, len(e.LastChanged))
		for i, c := range e.LastChanged {
			parts[i] = c.String()
		}
		fmt.Fprintf(&sb, ", still changing: %s", strings.Join(parts, ", "))
	}
	return sb.String()
}

func (e *NonConvergenceError) Unwrap() []error {
	if e.Cause == nil {
		return []error{ErrNonConvergence}
	}
	return []error{ErrNonConvergence, e.Cause}
}

// PolicyWarning records a policy that could not be evaluated. The route was treated as rejected.
type PolicyWarning struct {
	Round     int
	Node      state.NodeVrf
	Session   string `yaml:",omitempty"`
	Policy    string
	Direction policy.Direction
	Reason    string
}

func (w PolicyWarning) key() string {
	return fmt.Sprintf("%s|%s|%s|%s", w.Node, w.Session, w.Policy, w.Direction)
}

func (w PolicyWarning) String() string {
	s := fmt.Sprintf("round %d: %s %s policy %s", w.Round, w.Node, w.Direction, w.Policy)
	if w.Session != "" {
		s += " on " + w.Session
	}
	return s + ": " + w.Reason
}
