// Package localfs implements the artifact store on the local filesystem.
// Artifacts are flat files under a single root directory; references are the
// generated filenames.
package localfs

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/phrazzld/pictor-api/internal/artifact"
	"github.com/phrazzld/pictor-api/internal/platform/logger"
)

const (
	// defaultMaxBytes caps artifacts at 5MB when no cap is configured.
	defaultMaxBytes = 5 << 20

	// fetchTimeout bounds a single locator download.
	fetchTimeout = 30 * time.Second

	// tmpPrefix marks in-flight downloads. The leading dot keeps them out of
	// Stats and unresolvable through Resolve.
	tmpPrefix = ".tmp-"
)

// allowedExts are the artifact extensions taken over from a locator path.
var allowedExts = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".gif":  true,
	".webp": true,
}

// LocalArtifactStore implements artifact.Store on a local directory.
// Writes go to a dot-prefixed temp file first and are renamed into place, so
// a reference either resolves to a complete artifact or not at all.
type LocalArtifactStore struct {
	root     string
	maxBytes int64
	client   *http.Client
	logger   *slog.Logger
}

// NewLocalArtifactStore creates the store rooted at root, creating the
// directory if needed. maxBytes <= 0 selects the default cap.
func NewLocalArtifactStore(root string, maxBytes int64, logger *slog.Logger) (*LocalArtifactStore, error) {
	if root == "" {
		return nil, errors.New("artifact root cannot be empty")
	}
	if maxBytes <= 0 {
		maxBytes = defaultMaxBytes
	}
	if logger == nil {
		logger = slog.Default()
	}

	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("creating artifact directory %s: %w", root, err)
	}

	return &LocalArtifactStore{
		root:     root,
		maxBytes: maxBytes,
		client:   &http.Client{Timeout: fetchTimeout},
		logger:   logger.With(slog.String("component", "artifact_store")),
	}, nil
}

// Ensure LocalArtifactStore satisfies the artifact.Store interface.
var _ artifact.Store = (*LocalArtifactStore)(nil)

// Persist fetches the locator's payload and stores it under a fresh reference.
func (s *LocalArtifactStore) Persist(ctx context.Context, locator string) (*artifact.Stored, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	switch {
	case strings.HasPrefix(locator, "data:"):
		data, ext, err := decodeDataLocator(locator, s.maxBytes)
		if err != nil {
			return nil, err
		}
		stored, err := s.writeArtifact(bytes.NewReader(data), ext)
		if err != nil {
			return nil, err
		}
		log.DebugContext(ctx, "artifact persisted from data URI",
			slog.String("ref", stored.Ref),
			slog.Int64("size", stored.Size))
		return stored, nil

	case strings.HasPrefix(locator, "http://"), strings.HasPrefix(locator, "https://"):
		return s.persistFromURL(ctx, log, locator)

	default:
		return nil, fmt.Errorf("%w: unsupported scheme in %q",
			artifact.ErrInvalidLocator, truncateLocator(locator))
	}
}

// persistFromURL downloads the image behind an http(s) locator.
func (s *LocalArtifactStore) persistFromURL(ctx context.Context, log *slog.Logger, locator string) (*artifact.Stored, error) {
	u, err := url.Parse(locator)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", artifact.ErrInvalidLocator, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, locator, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", artifact.ErrInvalidLocator, err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching artifact: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetching artifact: unexpected status %d", resp.StatusCode)
	}

	// The declared length rejects oversized payloads before the download;
	// writeArtifact enforces the cap on the actual bytes either way.
	if resp.ContentLength > s.maxBytes {
		return nil, fmt.Errorf("%w: declared length %d exceeds cap %d",
			artifact.ErrPayloadTooLarge, resp.ContentLength, s.maxBytes)
	}

	stored, err := s.writeArtifact(resp.Body, extForHTTP(u, resp.Header.Get("Content-Type")))
	if err != nil {
		return nil, err
	}

	log.DebugContext(ctx, "artifact persisted from url",
		slog.String("ref", stored.Ref),
		slog.Int64("size", stored.Size))
	return stored, nil
}

// writeArtifact streams the payload to a temp file and renames it into place
// under a fresh reference. Failures remove the temp file; the final name only
// ever points at a complete artifact.
func (s *LocalArtifactStore) writeArtifact(r io.Reader, ext string) (*artifact.Stored, error) {
	tmp, err := os.CreateTemp(s.root, tmpPrefix+"*")
	if err != nil {
		return nil, fmt.Errorf("creating temp artifact: %w", err)
	}
	tmpName := tmp.Name()

	n, err := io.Copy(tmp, io.LimitReader(r, s.maxBytes+1))
	if err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return nil, fmt.Errorf("writing artifact: %w", err)
	}
	if n > s.maxBytes {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return nil, fmt.Errorf("%w: payload exceeds cap %d", artifact.ErrPayloadTooLarge, s.maxBytes)
	}
	if n == 0 {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return nil, errors.New("fetched empty artifact payload")
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return nil, fmt.Errorf("closing temp artifact: %w", err)
	}

	ref := uniqueName(ext)
	if err := os.Rename(tmpName, filepath.Join(s.root, ref)); err != nil {
		_ = os.Remove(tmpName)
		return nil, fmt.Errorf("publishing artifact: %w", err)
	}

	return &artifact.Stored{Ref: ref, Size: n}, nil
}

// Resolve maps a reference to the absolute path of the stored artifact.
func (s *LocalArtifactStore) Resolve(ref string) (string, error) {
	if err := validateRef(ref); err != nil {
		return "", err
	}

	p := filepath.Join(s.root, ref)
	info, err := os.Stat(p)
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("%w: %s", artifact.ErrNotFound, ref)
		}
		return "", fmt.Errorf("stat artifact %s: %w", ref, err)
	}
	if info.IsDir() {
		return "", fmt.Errorf("%w: %s", artifact.ErrNotFound, ref)
	}

	return p, nil
}

// ResolveThumb resolves the thumbnail variant of a reference.
func (s *LocalArtifactStore) ResolveThumb(ref string) (string, error) {
	if err := validateRef(ref); err != nil {
		return "", err
	}
	return s.Resolve(thumbRef(ref))
}

// Delete removes the artifact and its thumbnail variant if one exists.
// Returns false without error when the primary artifact is already gone.
func (s *LocalArtifactStore) Delete(ctx context.Context, ref string) (bool, error) {
	if err := validateRef(ref); err != nil {
		return false, err
	}

	// The thumbnail goes first so that a crash between the two removals
	// cannot orphan it behind a missing primary.
	if err := os.Remove(filepath.Join(s.root, thumbRef(ref))); err != nil && !os.IsNotExist(err) {
		return false, fmt.Errorf("removing thumbnail for %s: %w", ref, err)
	}

	if err := os.Remove(filepath.Join(s.root, ref)); err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("removing artifact %s: %w", ref, err)
	}

	logger.FromContextOrDefault(ctx, s.logger).DebugContext(ctx, "artifact deleted",
		slog.String("ref", ref))
	return true, nil
}

// Stats reports the artifact count and total bytes under the root.
func (s *LocalArtifactStore) Stats(ctx context.Context) (*artifact.Stats, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return nil, fmt.Errorf("reading artifact directory: %w", err)
	}

	stats := &artifact.Stats{}
	for _, entry := range entries {
		// In-flight temp files and subdirectories are not artifacts.
		if entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			return nil, fmt.Errorf("stat %s: %w", entry.Name(), err)
		}
		stats.Count++
		stats.TotalBytes += info.Size()
	}

	return stats, nil
}

// uniqueName builds a reference of the form 20060102_150405_8hexchars.ext.
func uniqueName(ext string) string {
	stamp := time.Now().UTC().Format("20060102_150405")
	return stamp + "_" + uuid.NewString()[:8] + ext
}

// validateRef rejects anything that is not a bare generated filename. Path
// separators, parent references, and dot-prefixed names never resolve.
func validateRef(ref string) error {
	if ref == "" ||
		strings.HasPrefix(ref, ".") ||
		strings.Contains(ref, "..") ||
		strings.ContainsAny(ref, `/\`) {
		return fmt.Errorf("%w: %q", artifact.ErrInvalidRef, ref)
	}
	return nil
}

// thumbRef derives the thumbnail name: stem_thumb.ext.
func thumbRef(ref string) string {
	ext := path.Ext(ref)
	return strings.TrimSuffix(ref, ext) + "_thumb" + ext
}

// decodeDataLocator decodes a base64 data: URI, enforcing the size cap
// before decoding.
func decodeDataLocator(locator string, maxBytes int64) ([]byte, string, error) {
	meta, payload, ok := strings.Cut(strings.TrimPrefix(locator, "data:"), ",")
	if !ok {
		return nil, "", fmt.Errorf("%w: malformed data URI", artifact.ErrInvalidLocator)
	}
	if !strings.HasSuffix(meta, ";base64") {
		return nil, "", fmt.Errorf("%w: only base64 data URIs are supported", artifact.ErrInvalidLocator)
	}

	if int64(base64.StdEncoding.DecodedLen(len(payload))) > maxBytes {
		return nil, "", fmt.Errorf("%w: encoded payload exceeds cap %d", artifact.ErrPayloadTooLarge, maxBytes)
	}

	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, "", fmt.Errorf("%w: undecodable data URI: %v", artifact.ErrInvalidLocator, err)
	}

	ext := extForMIME(strings.TrimSuffix(meta, ";base64"))
	if ext == "" {
		ext = ".jpg"
	}
	return data, ext, nil
}

// extForHTTP picks the artifact extension for a downloaded image: the
// locator path's extension when recognizable, else the content type, else
// jpg.
func extForHTTP(u *url.URL, contentType string) string {
	if ext := strings.ToLower(path.Ext(u.Path)); allowedExts[ext] {
		return ext
	}
	if ext := extForMIME(contentType); ext != "" {
		return ext
	}
	return ".jpg"
}

// extForMIME maps an image media type to a file extension, ignoring
// parameters. Unknown types map to the empty string.
func extForMIME(contentType string) string {
	mt := contentType
	if i := strings.Index(mt, ";"); i >= 0 {
		mt = mt[:i]
	}
	switch strings.TrimSpace(strings.ToLower(mt)) {
	case "image/jpeg":
		return ".jpg"
	case "image/png":
		return ".png"
	case "image/webp":
		return ".webp"
	case "image/gif":
		return ".gif"
	}
	return ""
}

// truncateLocator shortens a locator for error messages.
func truncateLocator(locator string) string {
	const max = 64
	if len(locator) <= max {
		return locator
	}
	return locator[:max] + "..."
}
