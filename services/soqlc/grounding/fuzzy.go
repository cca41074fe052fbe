// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package grounding

import "strings"

// Levenshtein computes the edit distance between two strings.
//
// Description:
//
//	Standard dynamic-programming edit distance with two rolling rows.
//	Case is significant; callers normalize first when they want
//	case-insensitive comparison.
//
// Performance: O(len(a) * len(b)) time, O(len(b)) space.
func Levenshtein(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	if len(ra) == 0 {
		return len(rb)
	}
	if len(rb) == 0 {
		return len(ra)
	}

	prev := make([]int, len(rb)+1)
	curr := make([]int, len(rb)+1)
	for j := 0; j <= len(rb); j++ {
		prev[j] = j
	}
	for i := 1; i <= len(ra); i++ {
		curr[0] = i
		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			curr[j] = minInt(prev[j]+1, curr[j-1]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[len(rb)]
}

// Similarity returns 1 - distance/longerLength, the relative-length
// measure the fuzzy threshold applies to. Identical strings score 1.0.
func Similarity(a, b string) float64 {
	la, lb := len([]rune(a)), len([]rune(b))
	longer := la
	if lb > longer {
		longer = lb
	}
	if longer == 0 {
		return 1.0
	}
	return 1.0 - float64(Levenshtein(a, b))/float64(longer)
}

// fuzzyMatch reports whether candidate matches value at or above the
// threshold, comparing case-insensitively. A containment prefix match
// ("Microsoft" against "Microsoft Corp") is scored by the relative length
// of the shared prefix term, which keeps abbreviated company names above
// the threshold without admitting arbitrary substrings.
func fuzzyMatch(candidate, value string, threshold float64) (float64, bool) {
	c := strings.ToLower(strings.TrimSpace(candidate))
	v := strings.ToLower(strings.TrimSpace(value))
	if c == "" || v == "" {
		return 0, false
	}
	if c == v {
		return 1.0, true
	}
	if sim := Similarity(c, v); sim >= threshold {
		return sim, true
	}
	// Token-prefix containment: every candidate token matches a leading
	// token of the value.
	cTokens := strings.Fields(c)
	vTokens := strings.Fields(v)
	if len(cTokens) > 0 && len(cTokens) <= len(vTokens) {
		sim := 0.0
		for i, ct := range cTokens {
			s := Similarity(ct, vTokens[i])
			if s < threshold {
				return 0, false
			}
			sim += s
		}
		return sim / float64(len(cTokens)) * 0.95, true
	}
	return 0, false
}

func minInt(nums ...int) int {
	m := nums[0]
	for _, n := range nums[1:] {
		if n < m {
			m = n
		}
	}
	return m
}
