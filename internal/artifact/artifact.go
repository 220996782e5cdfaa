// Package artifact defines the storage boundary for generated images.
// Generator output is ephemeral (a signed URL or an inline data: URI); the
// artifact store turns it into a durable, locally served file. Tasks record
// only the reference, never bytes or paths.
package artifact

import "context"

// Stored describes one persisted artifact.
type Stored struct {
	// Ref is the stable reference recorded on the task and used on the
	// serving path. Refs are bare filenames, never paths.
	Ref string

	// Size is the artifact size in bytes.
	Size int64
}

// Stats summarizes the artifact inventory for system status reporting.
type Stats struct {
	Count      int
	TotalBytes int64
}

// Store persists generated artifacts and serves them back by reference.
type Store interface {
	// Persist fetches the image the locator points at and stores it under a
	// fresh reference. Supported locators are http(s) URLs and base64 data:
	// URIs. Payloads over the configured cap return ErrPayloadTooLarge; a
	// failed Persist never leaves a partial artifact visible.
	Persist(ctx context.Context, locator string) (*Stored, error)

	// Resolve maps a reference to a filesystem path suitable for serving.
	// Returns ErrInvalidRef for anything that is not a bare generated name
	// and ErrNotFound when the artifact does not exist.
	Resolve(ref string) (string, error)

	// ResolveThumb resolves the thumbnail variant of a reference, derived by
	// the _thumb stem convention. ErrNotFound when no thumbnail exists.
	ResolveThumb(ref string) (string, error)

	// Delete removes the artifact and any thumbnail variant. Reports whether
	// the primary artifact existed.
	Delete(ctx context.Context, ref string) (bool, error)

	// Stats reports the artifact count and total bytes on disk.
	Stats(ctx context.Context) (*Stats, error)
}
