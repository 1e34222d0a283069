package scoring

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
)

// GroupHash is the stable key of a (category, normalized text) group, stored
// with each submission so repeats can be found with an index scan.
func GroupHash(categoryID int64, normalized string) string {
	if normalized == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(strconv.FormatInt(categoryID, 10) + ":" + normalized))
	return hex.EncodeToString(sum[:8])
}
