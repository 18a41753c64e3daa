package store

// HistoryBudget bounds a session's history at save time.
type HistoryBudget struct {
	MaxMessages           int
	MaxChars              int
	PreserveLeadingSystem bool
}

// TrimResult reports what HistoryBudget.Apply dropped.
type TrimResult struct {
	Trimmed           bool
	DroppedMessages   int
	DroppedCharacters int
}

// Apply trims history in place according to b, returning a report of what
// was dropped. System messages at the head of history are preserved ahead
// of the cap when PreserveLeadingSystem is set.
func (b HistoryBudget) Apply(history []Message) ([]Message, TrimResult) {
	if b.MaxMessages <= 0 && b.MaxChars <= 0 {
		return history, TrimResult{}
	}

	leadingSystem := 0
	if b.PreserveLeadingSystem {
		for leadingSystem < len(history) && history[leadingSystem].Role == RoleSystem {
			leadingSystem++
		}
	}
	head := history[:leadingSystem]
	rest := history[leadingSystem:]

	droppedMsgs := 0
	if b.MaxMessages > 0 {
		allowed := b.MaxMessages - leadingSystem
		if allowed < 0 {
			allowed = 0
		}
		if len(rest) > allowed {
			droppedMsgs = len(rest) - allowed
			rest = rest[droppedMsgs:]
		}
	}

	droppedChars := 0
	if b.MaxChars > 0 {
		total := 0
		for _, m := range head {
			total += len(m.Content)
		}
		for _, m := range rest {
			total += len(m.Content)
		}
		for total > b.MaxChars && len(rest) > 0 {
			total -= len(rest[0].Content)
			droppedChars += len(rest[0].Content)
			droppedMsgs++
			rest = rest[1:]
		}
	}

	trimmed := droppedMsgs > 0 || droppedChars > 0
	out := make([]Message, 0, len(head)+len(rest))
	out = append(out, head...)
	out = append(out, rest...)
	return out, TrimResult{Trimmed: trimmed, DroppedMessages: droppedMsgs, DroppedCharacters: droppedChars}
}
