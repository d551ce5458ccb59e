package pipeline

// State is the lifecycle of one run. Transitions only move forward:
// NotStarted → FetchingPages → DispatchingMarks → Drained.
type State int32

const (
	// NotStarted is the state before Run.
	NotStarted State = iota
	// FetchingPages lasts until every planned page has been fetched or has
	// failed. Star tasks for completed pages already run in this state.
	FetchingPages
	// DispatchingMarks lasts until every dispatched star has reported.
	DispatchingMarks
	// Drained is terminal: every page and every star has an outcome.
	Drained
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case NotStarted:
		return "not_started"
	case FetchingPages:
		return "fetching_pages"
	case DispatchingMarks:
		return "dispatching_marks"
	case Drained:
		return "drained"
	default:
		return "unknown"
	}
}
