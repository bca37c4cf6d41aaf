package conversation

import "fmt"

// ValidationError marks user input rejected by a flow step. The flow
// re-prompts the same step and never advances on one.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}
