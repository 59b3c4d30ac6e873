package orchestrator

import (
	"regexp"
	"strings"
)

const (
	repetitionWindow    = 100   // sentences kept
	repetitionMaxChars  = 16384 // characters kept
	repetitionThreshold = 10    // occurrences of one pattern that count as a loop
	repetitionMaxNGram  = 10    // longest sentence sequence compared
)

var sentenceBoundary = regexp.MustCompile(`[.!?]+(?:["')]*\s+|["')]*$)`)

// repetitionGuard watches streamed text for a model stuck repeating the
// same sentence or sequence of sentences.
type repetitionGuard struct {
	pending   string
	sentences []string
	chars     int
}

func newRepetitionGuard() *repetitionGuard {
	return &repetitionGuard{sentences: make([]string, 0, repetitionWindow)}
}

// Add feeds a text delta. Only completed sentences are compared; the
// trailing fragment waits for the next delta. It returns the repeated
// pattern once it occurs more than repetitionThreshold times.
func (g *repetitionGuard) Add(delta string) (string, bool) {
	g.pending += delta
	bounds := sentenceBoundary.FindAllStringIndex(g.pending, -1)
	if len(bounds) == 0 {
		return "", false
	}

	start := 0
	for _, b := range bounds {
		// A boundary at the very end may still grow ("..." or a quote).
		if b[1] == len(g.pending) {
			break
		}
		g.push(g.pending[start:b[0]])
		start = b[1]
	}
	g.pending = g.pending[start:]
	return g.check()
}

func (g *repetitionGuard) push(sentence string) {
	sentence = strings.Join(strings.Fields(sentence), " ")
	if sentence == "" {
		return
	}
	g.sentences = append(g.sentences, sentence)
	g.chars += len(sentence)
	for len(g.sentences) > 0 && (len(g.sentences) > repetitionWindow || g.chars > repetitionMaxChars) {
		g.chars -= len(g.sentences[0])
		g.sentences = g.sentences[1:]
	}
}

func (g *repetitionGuard) check() (string, bool) {
	n := len(g.sentences)
	if n < 2 {
		return "", false
	}
	maxN := repetitionMaxNGram
	if n < maxN {
		maxN = n
	}

	for size := 1; size <= maxN; size++ {
		counts := make(map[string]int)
		for i := 0; i+size <= n; i++ {
			pattern := strings.Join(g.sentences[i:i+size], " | ")
			counts[pattern]++
			if counts[pattern] > repetitionThreshold {
				return pattern, true
			}
		}
	}
	return "", false
}
