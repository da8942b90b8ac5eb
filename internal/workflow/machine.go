package workflow

import (
	"github.com/iliyamo/mindwell/internal/apperr"
	"github.com/iliyamo/mindwell/internal/model"
)

// Edge is one legal status change.
type Edge[S ~string] struct {
	From, To S
}

// Machine is a closed set of states and the edges between them. Anything
// not listed is illegal, including staying in the same state.
type Machine[S ~string] struct {
	name   string
	states map[S]struct{}
	edges  map[S]map[S]struct{}
}

func NewMachine[S ~string](name string, states []S, edges ...Edge[S]) *Machine[S] {
	m := &Machine[S]{
		name:   name,
		states: make(map[S]struct{}, len(states)),
		edges:  make(map[S]map[S]struct{}, len(states)),
	}
	for _, s := range states {
		m.states[s] = struct{}{}
	}
	for _, e := range edges {
		if m.edges[e.From] == nil {
			m.edges[e.From] = map[S]struct{}{}
		}
		m.edges[e.From][e.To] = struct{}{}
	}
	return m
}

func (m *Machine[S]) Name() string { return m.name }

// Known reports whether s is a state of this machine.
func (m *Machine[S]) Known(s S) bool {
	_, ok := m.states[s]
	return ok
}

// Can reports whether from→to is an edge.
func (m *Machine[S]) Can(from, to S) bool {
	_, ok := m.edges[from][to]
	return ok
}

// Check is Can as an error.
func (m *Machine[S]) Check(from, to S) error {
	if m.Can(from, to) {
		return nil
	}
	return &apperr.TransitionError{Machine: m.name, From: string(from), To: string(to)}
}

// Terminal reports whether s has no outgoing edges.
func (m *Machine[S]) Terminal(s S) bool { return len(m.edges[s]) == 0 }

// States returns every state in no particular order.
func (m *Machine[S]) States() []S {
	out := make([]S, 0, len(m.states))
	for s := range m.states {
		out = append(out, s)
	}
	return out
}

var (
	ApplicationMachine = NewMachine("therapist_application",
		[]model.ApplicationStatus{model.ApplicationPending, model.ApplicationApproved, model.ApplicationRejected},
		Edge[model.ApplicationStatus]{model.ApplicationPending, model.ApplicationApproved},
		Edge[model.ApplicationStatus]{model.ApplicationPending, model.ApplicationRejected},
		Edge[model.ApplicationStatus]{model.ApplicationApproved, model.ApplicationPending},
		Edge[model.ApplicationStatus]{model.ApplicationRejected, model.ApplicationPending},
	)

	PlanMachine = NewMachine("treatment_plan",
		[]model.PlanStatus{model.PlanActive, model.PlanCompleted, model.PlanCanceled},
		Edge[model.PlanStatus]{model.PlanActive, model.PlanCompleted},
		Edge[model.PlanStatus]{model.PlanActive, model.PlanCanceled},
	)

	ReportMachine = NewMachine("problem_report",
		[]model.ReportStatus{model.ReportPending, model.ReportInProgress, model.ReportResolved, model.ReportClosed},
		Edge[model.ReportStatus]{model.ReportPending, model.ReportInProgress},
		Edge[model.ReportStatus]{model.ReportInProgress, model.ReportResolved},
		Edge[model.ReportStatus]{model.ReportResolved, model.ReportClosed},
		Edge[model.ReportStatus]{model.ReportPending, model.ReportClosed},
		Edge[model.ReportStatus]{model.ReportInProgress, model.ReportClosed},
	)
)
