// Package scoring computes deterministic text-quality metrics for
// generated responses. All scores are in [0,1] and depend only on the
// response text and the originating prompt, so evaluating the same
// inputs always yields the same result.
package scoring

import (
	"math"
	"regexp"
	"sort"
	"strings"
	"unicode"
)

// Metric names reported by the evaluator.
const (
	MetricLexicalDiversity = "lexical_diversity"
	MetricStructure        = "structure"
	MetricCoherence        = "coherence"
	MetricRelevance        = "relevance"
	MetricOverall          = "overall"
)

// Result holds the evaluation outcome for one response.
type Result struct {
	WordCount     int
	SentenceCount int
	Metrics       map[string]float64
}

// Thresholds for the structure heuristic.
const (
	minWordsFull    = 25
	maxWordsFull    = 400
	minWordsPartial = 15
	maxWordsPartial = 800
	sentenceStdMin  = 3
	sentenceStdMax  = 15
)

var structuralIndicators = []string{
	"first", "second", "third", "finally", "however", "therefore",
	"moreover", "furthermore", "additionally", "for example",
	"in contrast", "on the other hand", "as a result", "next",
}

var conclusionWords = []string{
	"in conclusion", "in summary", "to summarize", "to conclude",
	"overall", "ultimately", "in short",
}

var enumerationPattern = regexp.MustCompile(`\b\d+\.\s|\b[a-z]\)\s`)

// Evaluate scores a response against its prompt.
func Evaluate(text, prompt string) Result {
	words := tokenize(text)
	sentences := splitSentences(text)

	metrics := map[string]float64{
		MetricLexicalDiversity: lexicalDiversity(words),
		MetricStructure:        structureScore(text, sentences, words),
		MetricCoherence:        coherenceScore(sentences),
		MetricRelevance:        relevanceScore(prompt, text),
	}
	metrics[MetricOverall] = overallScore(metrics)

	return Result{
		WordCount:     len(words),
		SentenceCount: len(sentences),
		Metrics:       metrics,
	}
}

// MetricNames returns the reported metric names in stable order.
func MetricNames() []string {
	return []string{
		MetricCoherence,
		MetricLexicalDiversity,
		MetricOverall,
		MetricRelevance,
		MetricStructure,
	}
}

func tokenize(text string) []string {
	return strings.Fields(text)
}

// splitSentences segments text at terminal punctuation. Non-empty text
// without terminal punctuation counts as a single sentence.
func splitSentences(text string) []string {
	var sentences []string
	var current strings.Builder

	for _, r := range text {
		current.WriteRune(r)
		if r == '.' || r == '!' || r == '?' {
			if s := strings.TrimSpace(current.String()); s != "" {
				sentences = append(sentences, s)
			}
			current.Reset()
		}
	}
	if s := strings.TrimSpace(current.String()); s != "" {
		sentences = append(sentences, s)
	}

	return sentences
}

// lexicalDiversity is the ratio of unique case-folded alphabetic words
// to total alphabetic words.
func lexicalDiversity(words []string) float64 {
	var total int
	unique := make(map[string]struct{})

	for _, w := range words {
		w = strings.ToLower(strings.TrimFunc(w, func(r rune) bool {
			return !unicode.IsLetter(r)
		}))
		if w == "" || !isAlpha(w) {
			continue
		}
		total++
		unique[w] = struct{}{}
	}

	if total == 0 {
		return 0.0
	}
	return float64(len(unique)) / float64(total)
}

func isAlpha(s string) bool {
	for _, r := range s {
		if !unicode.IsLetter(r) {
			return false
		}
	}
	return true
}

// structureScore is an 8-point heuristic normalized to [0,1].
func structureScore(text string, sentences, words []string) float64 {
	if len(words) == 0 {
		return 0.0
	}

	var score float64
	const maxScore = 8.0

	score += lengthAppropriatenessScore(len(words))
	score += sentenceVarietyScore(sentences)
	score += paragraphStructureScore(text)
	score += structuralMarkersScore(text)
	score += averageSentenceLengthScore(sentences, words)
	score += properCapitalizationScore(sentences)
	score += listEnumerationScore(text, sentences)
	score += conclusionIndicatorScore(text)

	return math.Min(score/maxScore, 1.0)
}

func lengthAppropriatenessScore(wordCount int) float64 {
	switch {
	case wordCount >= minWordsFull && wordCount <= maxWordsFull:
		return 1.0
	case wordCount >= minWordsPartial && wordCount < minWordsFull,
		wordCount > maxWordsFull && wordCount <= maxWordsPartial:
		return 0.5
	default:
		return 0.0
	}
}

func sentenceVarietyScore(sentences []string) float64 {
	if len(sentences) < 2 {
		return 0.0
	}

	lengths := make([]float64, len(sentences))
	var sum float64
	for i, s := range sentences {
		lengths[i] = float64(len(tokenize(s)))
		sum += lengths[i]
	}
	mean := sum / float64(len(lengths))

	var variance float64
	for _, l := range lengths {
		variance += (l - mean) * (l - mean)
	}
	std := math.Sqrt(variance / float64(len(lengths)))

	if std >= sentenceStdMin && std <= sentenceStdMax {
		return 1.0
	}
	return 0.0
}

func paragraphStructureScore(text string) float64 {
	breaks := strings.Count(text, "\n\n") + strings.Count(text, "\n")
	switch {
	case breaks >= 2:
		return 1.0
	case breaks == 1:
		return 0.5
	default:
		return 0.0
	}
}

func structuralMarkersScore(text string) float64 {
	lower := strings.ToLower(text)
	for _, indicator := range structuralIndicators {
		if strings.Contains(lower, indicator) {
			return 1.0
		}
	}
	return 0.0
}

func averageSentenceLengthScore(sentences, words []string) float64 {
	if len(sentences) == 0 {
		return 0.0
	}
	avg := float64(len(words)) / float64(len(sentences))
	switch {
	case avg >= 10 && avg <= 25:
		return 1.0
	case avg >= 8 && avg <= 30:
		return 0.5
	default:
		return 0.0
	}
}

func properCapitalizationScore(sentences []string) float64 {
	if len(sentences) == 0 {
		return 0.0
	}

	var properCaps int
	for _, s := range sentences {
		s = strings.TrimLeft(s, "\"'-•* ")
		if s == "" {
			continue
		}
		if unicode.IsUpper([]rune(s)[0]) {
			properCaps++
		}
	}
	return float64(properCaps) / float64(len(sentences))
}

func listEnumerationScore(text string, sentences []string) float64 {
	if len(sentences) == 0 {
		return 0.0
	}

	items := strings.Count(text, "•") + strings.Count(text, "- ") + strings.Count(text, "* ")
	items += len(enumerationPattern.FindAllString(strings.ToLower(text), -1))

	return math.Min(float64(items)/float64(len(sentences)), 1.0)
}

func conclusionIndicatorScore(text string) float64 {
	lower := strings.ToLower(text)
	for _, word := range conclusionWords {
		if strings.Contains(lower, word) {
			return 1.0
		}
	}
	return 0.0
}

// coherenceScore is the mean token-overlap similarity between adjacent
// sentences. A single sentence is fully coherent by definition.
func coherenceScore(sentences []string) float64 {
	if len(sentences) == 0 {
		return 0.0
	}
	if len(sentences) == 1 {
		return 1.0
	}

	var sum float64
	for i := 0; i < len(sentences)-1; i++ {
		sum += tokenOverlap(sentences[i], sentences[i+1])
	}
	score := sum / float64(len(sentences)-1)

	return clamp01(score)
}

func tokenOverlap(a, b string) float64 {
	setA := wordSet(a)
	setB := wordSet(b)
	if len(setA) == 0 || len(setB) == 0 {
		return 0.0
	}

	var shared int
	for w := range setA {
		if _, ok := setB[w]; ok {
			shared++
		}
	}

	union := len(setA) + len(setB) - shared
	return float64(shared) / float64(union)
}

func wordSet(s string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, w := range tokenize(strings.ToLower(s)) {
		w = strings.TrimFunc(w, func(r rune) bool {
			return !unicode.IsLetter(r) && !unicode.IsDigit(r)
		})
		if w != "" {
			set[w] = struct{}{}
		}
	}
	return set
}

// relevanceScore is the term-frequency cosine similarity between the
// prompt and the response.
func relevanceScore(prompt, text string) float64 {
	if strings.TrimSpace(prompt) == "" || strings.TrimSpace(text) == "" {
		return 0.0
	}

	promptFreq := termFrequencies(prompt)
	textFreq := termFrequencies(text)
	if len(promptFreq) == 0 || len(textFreq) == 0 {
		return 0.0
	}

	var dot, normA, normB float64
	for w, fa := range promptFreq {
		if fb, ok := textFreq[w]; ok {
			dot += fa * fb
		}
		normA += fa * fa
	}
	for _, fb := range textFreq {
		normB += fb * fb
	}

	if normA == 0 || normB == 0 {
		return 0.0
	}
	return clamp01(dot / (math.Sqrt(normA) * math.Sqrt(normB)))
}

func termFrequencies(s string) map[string]float64 {
	freq := make(map[string]float64)
	for _, w := range tokenize(strings.ToLower(s)) {
		w = strings.TrimFunc(w, func(r rune) bool {
			return !unicode.IsLetter(r) && !unicode.IsDigit(r)
		})
		if w != "" {
			freq[w]++
		}
	}
	return freq
}

// overallScore is the arithmetic mean of the component metrics.
func overallScore(metrics map[string]float64) float64 {
	names := make([]string, 0, len(metrics))
	for name := range metrics {
		names = append(names, name)
	}
	sort.Strings(names)

	var sum float64
	for _, name := range names {
		sum += metrics[name]
	}
	return clamp01(sum / float64(len(names)))
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
