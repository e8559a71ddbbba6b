package retain

import "strings"

// splitBoundaries are tried in order of preference when a chunk must be
// cut: blank line, then line, then sentence-ending
// punctuation, then clause-separating punctuation, then a bare space, and
// finally any character as a last resort.
var splitBoundaries = []string{"\n\n", "\n", ". ", "! ", "? ", "; ", ", ", " "}

// splitText breaks text into chunks of about maxChars, cutting each chunk
// after the last occurrence, within the first maxChars bytes, of the
// highest-priority boundary in splitBoundaries that occurs there. When no
// boundary occurs in that window a chunk may overshoot maxChars by up to
// 20% to reach one, instead of cutting mid-word.
func splitText(text string, maxChars int) []string {
	if maxChars <= 0 || len(text) <= maxChars {
		return []string{text}
	}

	var chunks []string
	remaining := text
	for len(remaining) > maxChars {
		cut := bestCut(remaining, maxChars)
		chunks = append(chunks, remaining[:cut])
		remaining = remaining[cut:]
	}
	if remaining != "" {
		chunks = append(chunks, remaining)
	}
	return chunks
}

// bestCut returns the byte offset to cut text at, searching backward from
// maxChars for the highest-priority boundary, falling back to a forward
// search (allowing slight overshoot) and finally to a hard cut at maxChars.
func bestCut(text string, maxChars int) int {
	window := text
	if len(window) > maxChars {
		window = window[:maxChars]
	}

	for _, boundary := range splitBoundaries {
		if idx := strings.LastIndex(window, boundary); idx >= 0 {
			return idx + len(boundary)
		}
	}

	// No boundary within the window: look slightly past maxChars (up to
	// 20% overshoot) for the first boundary instead of cutting mid-word.
	overshootLimit := maxChars + maxChars/5
	if overshootLimit > len(text) {
		overshootLimit = len(text)
	}
	tail := text[maxChars:overshootLimit]
	for _, boundary := range splitBoundaries {
		if idx := strings.Index(tail, boundary); idx >= 0 {
			return maxChars + idx + len(boundary)
		}
	}

	return maxChars
}

// splitMidpoint halves text, used when extraction hits the model's output
// cap. It cuts after the first occurrence of the highest-priority boundary
// found within ±20% of the midpoint, or at the midpoint itself when none
// occurs there.
func splitMidpoint(text string) (string, string) {
	mid := len(text) / 2
	tolerance := mid / 5
	lo, hi := mid-tolerance, mid+tolerance
	if lo < 0 {
		lo = 0
	}
	if hi > len(text) {
		hi = len(text)
	}
	window := text[lo:hi]

	best := -1
	for _, boundary := range splitBoundaries {
		if idx := strings.Index(window, boundary); idx >= 0 {
			best = lo + idx + len(boundary)
			break
		}
	}
	if best < 0 || best <= 0 || best >= len(text) {
		best = mid
	}
	return text[:best], text[best:]
}
