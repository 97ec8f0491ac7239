package readaloud

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// keyVersion is bumped whenever the derivation inputs change shape, so
// stale cache entries age out instead of being misread.
const keyVersion = "v1"

// DeriveKey computes the cache key for one segment. The key is
// deterministic in (chapter title, voice, speech rate, text) and of
// fixed length regardless of segment size: a digest of the chapter
// title joined with a digest of the voice, rate and text. Changing any
// input changes the key, so a voice or rate switch never reuses audio
// synthesized under the old settings.
func DeriveKey(chapterTitle, voiceID string, speechRate int, text string) string {
	title := sha256.Sum256([]byte(chapterTitle))
	body := sha256.Sum256(fmt.Appendf(nil, "%s|%d|%s", voiceID, speechRate, text))
	return keyVersion + "_" + hex.EncodeToString(title[:8]) + "_" + hex.EncodeToString(body[:20])
}
