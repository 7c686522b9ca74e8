package prompt

import (
	"strings"
	"unicode/utf8"
)

// Coverage returns the percentage (0-100) of existingText reproduced in
// newText: 100 when newText contains existingText, otherwise the length of the
// longest contiguous run of existingText found anywhere in newText divided by
// len(existingText). Lengths are counted in runes. No normalization is applied.
func Coverage(newText, existingText string) float64 {
	if existingText == "" {
		return 0
	}
	if strings.Contains(newText, existingText) {
		return 100
	}

	// Byte offset of every rune start, plus the end of the string. Slicing on
	// these never splits a UTF-8 sequence, so byte containment equals rune
	// containment.
	bounds := make([]int, 0, len(existingText)+1)
	for i := range existingText {
		bounds = append(bounds, i)
	}
	bounds = append(bounds, len(existingText))
	n := len(bounds) - 1

	maxMatch := 0
	for i := 0; i < n && n-i > maxMatch; i++ {
		// If existing[i:j] is absent, every longer run starting at i is absent
		// too, so extend j only while the run keeps matching.
		j := i + maxMatch + 1
		if !strings.Contains(newText, existingText[bounds[i]:bounds[j]]) {
			continue
		}
		for j < n && strings.Contains(newText, existingText[bounds[i]:bounds[j+1]]) {
			j++
		}
		maxMatch = j - i
	}

	return 100 * float64(maxMatch) / float64(utf8.RuneCountInString(existingText))
}
