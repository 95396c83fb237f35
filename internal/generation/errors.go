package generation

import "fmt"

// Error is returned for every generation failure: timeouts, provider errors,
// and output that does not parse. It is fatal for the whole request.
type Error struct {
	Provider string
	Err      error
}

func (e *Error) Error() string {
	if e.Provider == "" {
		return fmt.Sprintf("generation failed: %v", e.Err)
	}
	return fmt.Sprintf("generation failed (%s): %v", e.Provider, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }
