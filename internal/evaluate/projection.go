package evaluate

import (
	"fmt"

	"github.com/himanishpuri/NeuroMotion/internal/nn"
	"github.com/himanishpuri/NeuroMotion/pkg/models"
)

// Policy says what to do when an embedding's width differs from what a
// decoder expects.
type Policy string

const (
	// PolicyReject fails the unit with a ShapeError.
	PolicyReject Policy = "reject"
	// PolicyTruncate keeps the leading columns, zero-padding when narrower.
	PolicyTruncate Policy = "truncate"
	// PolicyProject applies a linear map declared for that exact pair.
	PolicyProject Policy = "project"
)

func ParsePolicy(s string) (Policy, error) {
	switch p := Policy(s); p {
	case PolicyReject, PolicyTruncate, PolicyProject:
		return p, nil
	case "":
		return PolicyReject, nil
	}
	return "", fmt.Errorf("unknown dimension policy %q", s)
}

// Negotiator resolves width mismatches before a decoder is invoked. The
// decision depends only on declared dimensions; nothing is retried after a
// failure.
type Negotiator struct {
	Policy      Policy
	projections map[[2]int]*nn.Linear
}

func NewNegotiator(p Policy) *Negotiator {
	return &Negotiator{Policy: p, projections: make(map[[2]int]*nn.Linear)}
}

// Declare registers the projection used for inputs of width from going to a
// decoder of width to.
func (n *Negotiator) Declare(from, to int, proj *nn.Linear) error {
	if proj.In != from || proj.Out != to {
		return &models.ShapeError{Op: "declare projection", Want: from, Got: proj.In,
			Detail: fmt.Sprintf("projection is %d→%d, declared %d→%d", proj.In, proj.Out, from, to)}
	}
	n.projections[[2]int{from, to}] = proj
	return nil
}

// Declared reports whether a projection exists for (from, to).
func (n *Negotiator) Declared(from, to int) bool {
	_, ok := n.projections[[2]int{from, to}]
	return ok
}

// Fit returns x adapted to width want, or a ShapeError when the policy does
// not allow it.
func (n *Negotiator) Fit(x *models.Sequence, want int) (*models.Sequence, error) {
	got := x.Dim()
	if got == want {
		return x, nil
	}
	switch n.Policy {
	case PolicyTruncate:
		return x.FitColumns(want), nil
	case PolicyProject:
		proj, ok := n.projections[[2]int{got, want}]
		if !ok {
			return nil, &models.ShapeError{Op: "negotiate input", Want: want, Got: got, Detail: "no projection declared"}
		}
		if x.Len() == 0 {
			return models.NewSequence(0, want), nil
		}
		return models.FromDense(proj.Forward(x.Dense())), nil
	default:
		return nil, &models.ShapeError{Op: "negotiate input", Want: want, Got: got}
	}
}
