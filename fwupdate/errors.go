package fwupdate

import "fmt"

// AbortError is returned when an update failed and putting the controllers
// back into normal operation failed as well.
type AbortError struct {
	// Err is the failure that aborted the update.
	Err error
	// RecoveryErr is the first failure to exit fw update mode.
	RecoveryErr error
}

func (e *AbortError) Error() string {
	return fmt.Sprintf("%v (recovery failed: %v)", e.Err, e.RecoveryErr)
}

func (e *AbortError) Unwrap() error {
	return e.Err
}
