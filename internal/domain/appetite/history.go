package appetite

// ConsecutiveBreachStreak counts trailing entries, newest backward, that are
// in breach (AMBER or RED). The first non-breach entry stops the count, so a
// data gap (NO_DATA, NO_KRI, UNKNOWN) resets an escalation streak rather than
// silently continuing it. History is ordered oldest to newest. Returns 0 when
// the newest entry is not a breach.
func ConsecutiveBreachStreak(history []RAGStatus) int {
	streak := 0
	for i := len(history) - 1; i >= 0; i-- {
		if !history[i].IsBreach() {
			break
		}
		streak++
	}
	return streak
}

// BreachesInWindow counts how many of the last min(n, len(history)) entries
// are in breach. Unlike the streak, contiguity is not required.
func BreachesInWindow(history []RAGStatus, n int) int {
	if n <= 0 {
		return 0
	}

	start := len(history) - n
	if start < 0 {
		start = 0
	}

	count := 0
	for _, status := range history[start:] {
		if status.IsBreach() {
			count++
		}
	}
	return count
}
