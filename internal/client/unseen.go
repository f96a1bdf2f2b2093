package client

// UnseenEventKind says how an unseen-count event changes the counts.
type UnseenEventKind int

const (
	// UnseenReload replaces all counts with server-computed values.
	UnseenReload UnseenEventKind = iota
	// UnseenReceived counts one pushed message from a sender not being viewed.
	UnseenReceived
	// UnseenViewed clears the count of the contact that was just opened.
	UnseenViewed
)

// UnseenEvent is one input to ReduceUnseen.
type UnseenEvent struct {
	Kind   UnseenEventKind
	Sender string
	Counts map[string]int
}

// ReduceUnseen applies ev to counts and returns the new counts. counts is not
// modified. Zero entries are dropped.
func ReduceUnseen(counts map[string]int, ev UnseenEvent) map[string]int {
	next := make(map[string]int, len(counts)+1)

	switch ev.Kind {
	case UnseenReload:
		for sender, n := range ev.Counts {
			if n > 0 {
				next[sender] = n
			}
		}
		return next
	default:
		for sender, n := range counts {
			next[sender] = n
		}
	}

	switch ev.Kind {
	case UnseenReceived:
		if ev.Sender != "" {
			next[ev.Sender]++
		}
	case UnseenViewed:
		delete(next, ev.Sender)
	}
	return next
}
