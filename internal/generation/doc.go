// Package generation provides interfaces and implementations for interacting
// with external image-generation services. It abstracts the details of the
// provider API integration, allowing the application to turn prompts into
// fetchable image locators without coupling to a specific vendor, and owns
// the retry/backoff policy applied to transient provider failures.
package generation
