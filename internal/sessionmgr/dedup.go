package sessionmgr

import "strings"

// snapshotDedup assembles a sequence of streamed text fragments into the
// final assistant message, handling providers that emit cumulative
// snapshots (each fragment is a superset of the previous one) as well as
// providers that emit true diffs. Implements spec.md §4.1 step 8 /
// testable property 4: "if the last assistant message is an exact
// superset of an earlier streamed delta snapshot, dedupe so history
// contains the longest single message".
func snapshotDedup(fragments []string) string {
	longest := ""
	for _, f := range fragments {
		if strings.HasPrefix(f, longest) {
			longest = f
			continue
		}
		if strings.HasPrefix(longest, f) {
			continue // f is a prefix of what we already have; discard
		}
		// True diff stream: accumulate by concatenation.
		longest += f
	}
	return longest
}
