// Package sessionkey derives deterministic session identifiers for
// channel-originated conversations. Grounded in the teacher's
// internal/sessions/key.go colon-joined builders, generalized per spec.md
// §3: the raw derivation is hashed when it exceeds a length cap.
package sessionkey

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

// MaxRawLength is the length cap above which a derived key is replaced by
// its hash.
const MaxRawLength = 200

// Origin identifies the channel-side coordinates a session was derived
// from.
type Origin struct {
	Channel     string
	WorkspaceID string
	AccountID   string
	ChatID      string
	UserID      string
	ThreadID    string
}

// Derive builds a deterministic session id from o. Components are joined
// in a fixed order with ":" separators; empty components are elided rather
// than leaving a double separator. If the raw joined form exceeds
// MaxRawLength, the id becomes "sess:<sha256-hex-of-raw>" instead.
func Derive(o Origin) string {
	parts := make([]string, 0, 6)
	for _, p := range []string{o.Channel, o.WorkspaceID, o.AccountID, o.ChatID, o.UserID, o.ThreadID} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	raw := strings.Join(parts, ":")
	if len(raw) <= MaxRawLength {
		return raw
	}
	sum := sha256.Sum256([]byte(raw))
	return fmt.Sprintf("sess:%s", hex.EncodeToString(sum[:]))
}

// Sanitize replaces characters that are unsafe in a filename with "_". The
// session store uses this before deriving per-session file paths.
func Sanitize(sessionID string) string {
	replacer := strings.NewReplacer(
		":", "_", "/", "_", "\\", "_", "*", "_", "?", "_",
		"\"", "_", "<", "_", ">", "_", "|", "_",
	)
	return replacer.Replace(sessionID)
}
