// Package offtopic implements the deterministic pre-filter that keeps
// clearly irrelevant answers away from the paid grading provider.
package offtopic

import (
	"regexp"
	"strings"
)

// Answers sharing less than this fraction of the question's keywords are
// considered off-topic.
const overlapThreshold = 0.20

// Question keywords shorter than this carry too little signal to match on.
const minKeywordLen = 6

var wordPattern = regexp.MustCompile(`[a-zA-Z]+`)

// Detect reports whether the answer is off-topic for the question.
// Pure and deterministic: identical inputs always produce the same verdict.
func Detect(question, answer string) bool {
	keywords := extractKeywords(question)
	if len(keywords) == 0 {
		// Nothing to match against; give the answer the benefit of the doubt.
		return false
	}
	return Overlap(keywords, answer) < overlapThreshold
}

// Overlap returns the fraction of keywords present in the answer,
// using case-insensitive substring matching.
func Overlap(keywords []string, answer string) float64 {
	if len(keywords) == 0 {
		return 0
	}
	lowered := strings.ToLower(answer)
	matched := 0
	for _, kw := range keywords {
		if strings.Contains(lowered, kw) {
			matched++
		}
	}
	return float64(matched) / float64(len(keywords))
}

func extractKeywords(question string) []string {
	seen := make(map[string]struct{})
	var keywords []string
	for _, word := range wordPattern.FindAllString(question, -1) {
		if len(word) < minKeywordLen {
			continue
		}
		lowered := strings.ToLower(word)
		if _, ok := seen[lowered]; ok {
			continue
		}
		seen[lowered] = struct{}{}
		keywords = append(keywords, lowered)
	}
	return keywords
}
