package cache

import (
	"strconv"

	"github.com/cespare/xxhash/v2"
)

// Slot maps a logical key to its storage slot. The mapping is stable and
// lossy: distinct keys may share a slot and the key cannot be recovered.
func Slot(key string) string {
	return strconv.FormatUint(xxhash.Sum64String(key), 16)
}
