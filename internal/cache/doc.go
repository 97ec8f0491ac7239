// Package cache stores synthesized segment audio as a flat directory
// of {key}.wav files. A zero-byte file is the silence marker for a
// segment with nothing to speak. Writes publish atomically so the
// player never observes a truncated file, and retention trimming keeps
// only the newest entries by modification time.
package cache
