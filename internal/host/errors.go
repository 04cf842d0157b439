package host

import (
	"errors"
	"fmt"
)

// ErrUnauthorized is returned by Mount/Unmount when the caller's API key does
// not match the host's configured key.
var ErrUnauthorized = errors.New("host: invalid api key")

// DuplicateMountError is returned by Mount when a service is already mounted
// at exactly the given base URI.
type DuplicateMountError struct {
	URI string
}

func (e *DuplicateMountError) Error() string {
	return fmt.Sprintf("host: %s is already mounted", e.URI)
}

// NotMountedError is returned by Unmount when no service is mounted at
// exactly the given base URI.
type NotMountedError struct {
	URI string
}

func (e *NotMountedError) Error() string {
	return fmt.Sprintf("host: nothing mounted at %s", e.URI)
}
