package artifact

import "errors"

// Sentinel errors returned by artifact stores. Callers match them with
// errors.Is; implementations wrap them with detail via fmt.Errorf("%w: ...").
var (
	// ErrPayloadTooLarge indicates the fetched image exceeds the size cap.
	ErrPayloadTooLarge = errors.New("artifact payload too large")

	// ErrInvalidLocator indicates a locator scheme the store cannot fetch.
	ErrInvalidLocator = errors.New("invalid artifact locator")

	// ErrInvalidRef indicates a reference that is not a bare generated name.
	ErrInvalidRef = errors.New("invalid artifact reference")

	// ErrNotFound indicates the referenced artifact does not exist.
	ErrNotFound = errors.New("artifact not found")
)
