// Package gemini implements the image generation boundary against Google's
// Gemini API using the google.golang.org/genai SDK.
//
// Unlike the ark provider, Gemini returns image bytes inline rather than a
// hosted URL, so results are encoded as data: URIs and decoded again by the
// artifact store when the image is persisted.
package gemini
