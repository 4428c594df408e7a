package loopdetect

// shouldDispatch reports whether a history of n frames is due for analysis:
// n must equal threshold, 2·threshold, 4·threshold and so on.
func shouldDispatch(n, threshold int) bool {
	if threshold < 1 || n < threshold || n%threshold != 0 {
		return false
	}
	q := n / threshold
	return q&(q-1) == 0
}
