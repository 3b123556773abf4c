package instagram

import "errors"

var (
	// ErrAuth means a session could not be established. Fatal to the
	// triggering request only.
	ErrAuth = errors.New("instagram: authentication failed")

	// Resolution failures.
	ErrNotFound         = errors.New("instagram: post not found")
	ErrPrivateOrRemoved = errors.New("instagram: post is private or removed")
	ErrTransientNetwork = errors.New("instagram: transient network error")
)

// IsResolutionError reports whether err is one of the resolution failures.
func IsResolutionError(err error) bool {
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrPrivateOrRemoved) ||
		errors.Is(err, ErrTransientNetwork)
}
