package service

import "strings"

// Summarizer condenses the student's free-form reason for staff views. The
// implementation is a black box to the workflow; deployments may plug in a
// remote model behind this interface.
type Summarizer interface {
	Summarize(text string) string
}

// SummarizerFunc allows using plain functions.
type SummarizerFunc func(text string) string

// Summarize implements Summarizer.
func (f SummarizerFunc) Summarize(text string) string {
	return f(text)
}

// WordLimitSummarizer is the local default: it keeps the reason as-is when
// short and truncates on a word boundary otherwise.
type WordLimitSummarizer struct {
	MaxWords int
}

// NewWordLimitSummarizer constructs the default summarizer.
func NewWordLimitSummarizer(maxWords int) *WordLimitSummarizer {
	if maxWords <= 0 {
		maxWords = 18
	}
	return &WordLimitSummarizer{MaxWords: maxWords}
}

// Summarize implements Summarizer.
func (s *WordLimitSummarizer) Summarize(text string) string {
	trimmed := strings.TrimSpace(text)
	words := strings.Fields(trimmed)
	if len(words) <= s.MaxWords {
		return trimmed
	}
	return strings.Join(words[:s.MaxWords], " ") + "…"
}
