package cache

import (
	"crypto/sha1"
	"encoding/hex"
	"strings"
)

// PlanKey derives the cache key for a query. The prompt version is part of the
// key so a prompt change never serves plans extracted under the old wording.
func PlanKey(query, promptVersion string) string {
	normalized := strings.ToLower(strings.Join(strings.Fields(query), " "))
	sum := sha1.Sum([]byte(promptVersion + "\x00" + normalized))
	return "plan:" + hex.EncodeToString(sum[:])
}
