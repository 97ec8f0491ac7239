// Package player plays an ordered queue of cached wav files through
// the system audio device via oto. It reports state transitions, item
// changes and per-item errors to a registered listener, and supports
// pause, resume and a playback-speed multiplier.
//
// A zero-byte queue file is the silence marker: it plays as a short
// silent gap instead of being decoded.
package player
