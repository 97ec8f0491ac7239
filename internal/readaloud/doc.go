// Package readaloud turns a chapter's text segments into continuously
// playing synthesized audio. It derives a stable cache key per segment,
// downloads ahead of the playing position through a single-flight fill
// pass, substitutes silence for unspeakable or repeatedly failing
// segments, and tracks the sounding position to drive reading progress
// and page turns.
//
// The package owns the pipeline only. The voice list, the chapter and
// page model, the audio output device and the HTTP transport are
// collaborators reached through the interfaces in types.go.
package readaloud
