package flow

import "fmt"

// InvalidPhaseError reports an action attempted in a phase that does not
// permit it.
type InvalidPhaseError struct {
	Phase  Phase
	Action string
}

func (e *InvalidPhaseError) Error() string {
	return fmt.Sprintf("action %q not allowed in phase %q", e.Action, e.Phase)
}
