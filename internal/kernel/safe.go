package kernel

import "fmt"

// runSafely calls fn under scope, turning a panic into an error so one
// misbehaving module or driver cannot take the process down.
func runSafely(scope string, fn func() error) (err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			err = fmt.Errorf("%s: panic: %v", scope, recovered)
		}
	}()

	if callErr := fn(); callErr != nil {
		return fmt.Errorf("%s: %w", scope, callErr)
	}

	return nil
}
