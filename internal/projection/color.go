package projection

import "hash/fnv"

// palette is a fixed set of terminal-friendly ANSI 256-color indices;
// deterministicColor picks one by hashing the input id so the same
// entity always renders in the same color across sessions.
var palette = []int{1, 2, 3, 4, 5, 6, 9, 10, 11, 12, 13, 14, 33, 39, 45, 75, 99, 105, 141, 171, 177, 203, 209, 214}

// deterministicColor returns the same palette index for the same id on
// every call (spec 8: stable across 100 repeated invocations).
func deterministicColor(id string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(id))
	return palette[h.Sum32()%uint32(len(palette))]
}
