package scan

import (
	"crypto/sha256"
	"encoding/hex"
)

// hash8 returns a stable 8 hex char hash of s, used for job ids and
// item/thumbnail names.
func hash8(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])[:8]
}
