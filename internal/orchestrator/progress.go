package orchestrator

import (
	"fmt"
	"strings"
)

// SubGoalStatus tracks execution state of a sub-goal.
type SubGoalStatus string

const (
	SubGoalPending    SubGoalStatus = "pending"
	SubGoalInProgress SubGoalStatus = "in_progress"
	SubGoalCompleted  SubGoalStatus = "completed"
	SubGoalFailed     SubGoalStatus = "failed"
)

func (s SubGoalStatus) icon() string {
	switch s {
	case SubGoalInProgress:
		return "[→]"
	case SubGoalCompleted:
		return "[✓]"
	case SubGoalFailed:
		return "[✗]"
	default:
		return "[ ]"
	}
}

// SubGoal is one unit of the supervisor's plan.
type SubGoal struct {
	ID            string        `json:"id"`
	Description   string        `json:"description"`
	Status        SubGoalStatus `json:"status"`
	AssignedAgent string        `json:"assigned_agent,omitempty"`
	Result        string        `json:"result,omitempty"`
}

// TaskProgress is the ordered plan of one orchestration run. It is owned by
// that run and is not safe for concurrent use.
type TaskProgress struct {
	goals []*SubGoal
	index map[string]*SubGoal
}

// NewTaskProgress creates an empty plan.
func NewTaskProgress() *TaskProgress {
	return &TaskProgress{index: make(map[string]*SubGoal)}
}

// Add registers a pending sub-goal. It reports false when id is taken.
func (p *TaskProgress) Add(id, description string) bool {
	if _, ok := p.index[id]; ok {
		return false
	}
	g := &SubGoal{ID: id, Description: description, Status: SubGoalPending}
	p.goals = append(p.goals, g)
	p.index[id] = g
	return true
}

// Has reports whether id is registered.
func (p *TaskProgress) Has(id string) bool {
	_, ok := p.index[id]
	return ok
}

// Get returns a copy of the sub-goal called id.
func (p *TaskProgress) Get(id string) (SubGoal, bool) {
	g, ok := p.index[id]
	if !ok {
		return SubGoal{}, false
	}
	return *g, true
}

func (p *TaskProgress) MarkInProgress(id, agentName string) {
	if g, ok := p.index[id]; ok {
		g.Status = SubGoalInProgress
		g.AssignedAgent = agentName
	}
}

func (p *TaskProgress) MarkCompleted(id, result string) {
	if g, ok := p.index[id]; ok {
		g.Status = SubGoalCompleted
		g.Result = result
	}
}

func (p *TaskProgress) MarkFailed(id, reason string) {
	if g, ok := p.index[id]; ok {
		g.Status = SubGoalFailed
		g.Result = reason
	}
}

// Goals returns copies of the sub-goals in declaration order.
func (p *TaskProgress) Goals() []SubGoal {
	out := make([]SubGoal, len(p.goals))
	for i, g := range p.goals {
		out[i] = *g
	}
	return out
}

func (p *TaskProgress) Len() int { return len(p.goals) }

// Completed counts sub-goals currently in the completed state. Counts are
// derived from status so a retried goal is never counted twice.
func (p *TaskProgress) Completed() int { return p.count(SubGoalCompleted) }

func (p *TaskProgress) Failed() int { return p.count(SubGoalFailed) }

func (p *TaskProgress) count(status SubGoalStatus) int {
	n := 0
	for _, g := range p.goals {
		if g.Status == status {
			n++
		}
	}
	return n
}

// Fraction is the completed share of the plan in [0, 1].
func (p *TaskProgress) Fraction() float64 {
	if len(p.goals) == 0 {
		return 0
	}
	return float64(p.Completed()) / float64(len(p.goals))
}

// IsComplete reports whether a non-empty plan has every goal completed.
func (p *TaskProgress) IsComplete() bool {
	return len(p.goals) > 0 && p.Completed() == len(p.goals)
}

// Results lists the results of completed goals in declaration order.
func (p *TaskProgress) Results() []string {
	var out []string
	for _, g := range p.goals {
		if g.Status == SubGoalCompleted {
			out = append(out, g.Result)
		}
	}
	return out
}

// Summary is the one-line progress report.
func (p *TaskProgress) Summary() string {
	return fmt.Sprintf("Progress: %d/%d sub-goals completed (%.0f%%), %d failed",
		p.Completed(), len(p.goals), p.Fraction()*100, p.Failed())
}

// Detail renders the checklist shown to the supervisor LLM.
func (p *TaskProgress) Detail() string {
	var b strings.Builder
	fmt.Fprintf(&b, "\nTask Progress (%d/%d):\n", p.Completed(), len(p.goals))
	for _, g := range p.goals {
		fmt.Fprintf(&b, "  %s %s\n", g.Status.icon(), g.Description)
	}
	return b.String()
}
