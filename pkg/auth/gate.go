package auth

import "errors"

// ErrForbidden means the authenticated subject does not match the resource
// owner named in the path. Handlers map it to 403.
var ErrForbidden = errors.New("forbidden")

// RequireOwner rejects requests whose verified subject differs from the
// owner identifier taken from the URL path. Comparison is exact and
// case-sensitive. Must run before any datastore access.
func RequireOwner(subject, pathOwner string) error {
	if subject != pathOwner {
		return ErrForbidden
	}
	return nil
}
