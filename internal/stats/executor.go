package stats

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	// wordFreqTopN caps the number of frequency rows emitted by wordfreq.
	wordFreqTopN = 10

	// longestTopN caps the number of words emitted by longest.
	longestTopN = 5
)

// BuiltinExecutor computes text statistics in-process. It is stateless and
// safe for concurrent use.
type BuiltinExecutor struct{}

// NewBuiltinExecutor creates a BuiltinExecutor.
func NewBuiltinExecutor() *BuiltinExecutor {
	return &BuiltinExecutor{}
}

// Execute runs one stats command against text and returns its ordered result
// lines. Results are deterministic for a given (cmd, text) pair.
func (e *BuiltinExecutor) Execute(ctx context.Context, cmd CommandType, text string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	switch cmd {
	case CommandCount:
		return countResults(text), nil
	case CommandAverage:
		return averageResults(text), nil
	case CommandWordFreq:
		return wordFreqResults(text), nil
	case CommandLongest:
		return longestResults(text), nil
	case CommandReadability:
		return readabilityResults(text), nil
	default:
		return nil, fmt.Errorf("unknown stats command %q", cmd)
	}
}

func countResults(text string) []string {
	lines := 0
	if text != "" {
		lines = strings.Count(text, "\n") + 1
	}
	words := tokenize(text)
	return []string{
		fmt.Sprintf("lines: %d", lines),
		fmt.Sprintf("words: %d", len(words)),
		fmt.Sprintf("chars: %d", utf8.RuneCountInString(text)),
	}
}

func averageResults(text string) []string {
	words := tokenize(text)
	sentences := countSentences(text)

	var avgWordLen, avgSentenceLen float64
	if len(words) > 0 {
		total := 0
		for _, w := range words {
			total += utf8.RuneCountInString(w)
		}
		avgWordLen = float64(total) / float64(len(words))
	}
	if sentences > 0 {
		avgSentenceLen = float64(len(words)) / float64(sentences)
	}

	return []string{
		fmt.Sprintf("avg_word_length: %.2f", avgWordLen),
		fmt.Sprintf("avg_sentence_length: %.2f", avgSentenceLen),
	}
}

func wordFreqResults(text string) []string {
	words := tokenize(text)
	freq := make(map[string]int, len(words))
	for _, w := range words {
		freq[strings.ToLower(w)]++
	}

	type entry struct {
		word  string
		count int
	}
	entries := make([]entry, 0, len(freq))
	for w, c := range freq {
		entries = append(entries, entry{word: w, count: c})
	}
	// Frequency descending, then alphabetical so output is stable.
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].count != entries[j].count {
			return entries[i].count > entries[j].count
		}
		return entries[i].word < entries[j].word
	})

	if len(entries) > wordFreqTopN {
		entries = entries[:wordFreqTopN]
	}
	results := make([]string, 0, len(entries))
	for _, e := range entries {
		results = append(results, fmt.Sprintf("%s: %d", e.word, e.count))
	}
	return results
}

func longestResults(text string) []string {
	seen := make(map[string]struct{})
	var distinct []string
	for _, w := range tokenize(text) {
		lw := strings.ToLower(w)
		if _, ok := seen[lw]; ok {
			continue
		}
		seen[lw] = struct{}{}
		distinct = append(distinct, lw)
	}

	// Length descending, then alphabetical.
	sort.Slice(distinct, func(i, j int) bool {
		li := utf8.RuneCountInString(distinct[i])
		lj := utf8.RuneCountInString(distinct[j])
		if li != lj {
			return li > lj
		}
		return distinct[i] < distinct[j]
	})

	if len(distinct) > longestTopN {
		distinct = distinct[:longestTopN]
	}
	results := make([]string, 0, len(distinct))
	for _, w := range distinct {
		results = append(results, fmt.Sprintf("%s: %d", w, utf8.RuneCountInString(w)))
	}
	return results
}

// readabilityResults computes the Automated Readability Index.
func readabilityResults(text string) []string {
	words := tokenize(text)
	sentences := countSentences(text)

	var score float64
	if len(words) > 0 && sentences > 0 {
		chars := 0
		for _, w := range words {
			chars += utf8.RuneCountInString(w)
		}
		score = 4.71*(float64(chars)/float64(len(words))) +
			0.5*(float64(len(words))/float64(sentences)) - 21.43
	}

	return []string{
		fmt.Sprintf("ari: %.2f", score),
		fmt.Sprintf("sentences: %d", sentences),
	}
}

// tokenize splits text into words, stripping surrounding punctuation.
// Apostrophes and hyphens inside a word are kept.
func tokenize(text string) []string {
	fields := strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r) && r != '\'' && r != '-'
	})
	words := make([]string, 0, len(fields))
	for _, f := range fields {
		f = strings.Trim(f, "'-")
		if f != "" {
			words = append(words, f)
		}
	}
	return words
}

// countSentences counts terminator runs so "Wait..." is one sentence.
func countSentences(text string) int {
	count := 0
	inRun := false
	for _, r := range text {
		switch r {
		case '.', '!', '?':
			if !inRun {
				count++
				inRun = true
			}
		default:
			inRun = false
		}
	}
	return count
}
