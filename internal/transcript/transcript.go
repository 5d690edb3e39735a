// Package transcript fixes speech-to-text output for the proper nouns of a
// campaign.
//
// Transcription services rarely know fantasy names: "Eldrinax" comes back as
// "elder nacks", "Tower of Whispers" as "tower of wispers". A [Corrector]
// holds the known terms and rewrites windows of the transcribed text that
// sound and look like one of them.
//
// Matching runs in two stages per window:
//
//  1. Phonetic filtering: Double Metaphone codes of the window words are
//     compared with the codes of each term. A shared code makes the term a
//     phonetic candidate, accepted above the phonetic threshold.
//  2. Fuzzy fallback: without a shared code, a term is only accepted when its
//     Jaro-Winkler similarity reaches the stricter fuzzy threshold.
//
// Similarity is the better of the full window against the full term and both
// with spaces removed, so split words ("grim jaw") still match compounds
// ("Grimjaw").
package transcript

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/antzucaro/matchr"
)

const (
	// DefaultPhoneticThreshold is the minimum similarity for a phonetic
	// candidate.
	DefaultPhoneticThreshold = 0.80

	// DefaultFuzzyThreshold is the minimum similarity for a term without a
	// shared phonetic code.
	DefaultFuzzyThreshold = 0.88

	// minCodeLen is the shortest word that contributes phonetic codes. Short
	// function words ("of", "a") share codes with too many terms.
	minCodeLen = 3
)

// Correction is a single substitution made by [Corrector.Correct].
type Correction struct {
	// Original is the window as transcribed, without surrounding punctuation.
	Original string

	// Corrected is the vocabulary term that replaced it.
	Corrected string

	// Confidence is the Jaro-Winkler similarity of the match (0.0-1.0).
	Confidence float64

	// Phonetic is true when the window and term shared a phonetic code.
	Phonetic bool
}

// Result is the output of [Corrector.Correct].
type Result struct {
	// Text is the corrected transcript.
	Text string

	// Corrections lists the substitutions in text order.
	Corrections []Correction
}

// Option configures a [Corrector].
type Option func(*Corrector)

// WithPhoneticThreshold overrides [DefaultPhoneticThreshold].
func WithPhoneticThreshold(threshold float64) Option {
	return func(c *Corrector) { c.phoneticThreshold = threshold }
}

// WithFuzzyThreshold overrides [DefaultFuzzyThreshold].
func WithFuzzyThreshold(threshold float64) Option {
	return func(c *Corrector) { c.fuzzyThreshold = threshold }
}

type term struct {
	text   string
	lower  string
	concat string
	words  int
	codes  map[string]struct{}
}

// Corrector rewrites transcripts against a fixed vocabulary. It is read-only
// after construction and safe for concurrent use.
type Corrector struct {
	terms             []term
	maxWords          int
	phoneticThreshold float64
	fuzzyThreshold    float64
}

// New prepares a Corrector for vocabulary. Blank and duplicate terms are
// ignored.
func New(vocabulary []string, opts ...Option) *Corrector {
	c := &Corrector{
		phoneticThreshold: DefaultPhoneticThreshold,
		fuzzyThreshold:    DefaultFuzzyThreshold,
	}
	for _, o := range opts {
		o(c)
	}

	seen := make(map[string]bool, len(vocabulary))
	for _, v := range vocabulary {
		v = strings.TrimSpace(v)
		lower := strings.ToLower(v)
		if v == "" || seen[lower] {
			continue
		}
		seen[lower] = true
		words := strings.Fields(lower)
		c.terms = append(c.terms, term{
			text:   strings.Join(strings.Fields(v), " "),
			lower:  strings.Join(words, " "),
			concat: strings.Join(words, ""),
			words:  len(words),
			codes:  codes(words),
		})
		// A single-word term may arrive split in two.
		c.maxWords = max(c.maxWords, len(words), min(len(words)+1, 2))
	}
	return c
}

// Len returns the number of terms.
func (c *Corrector) Len() int { return len(c.terms) }

// Correct scans text left to right. At each word it tries every window that
// could spell a term, replaces the best accepted match and continues after
// it. Punctuation around a replaced window is kept; whitespace is normalized
// to single spaces.
func (c *Corrector) Correct(text string) Result {
	tokens := strings.Fields(text)
	if len(c.terms) == 0 || len(tokens) == 0 {
		return Result{Text: text}
	}

	var (
		out         = make([]string, 0, len(tokens))
		corrections []Correction
	)
	for i := 0; i < len(tokens); {
		best, n := c.bestAt(tokens[i:])
		if n == 0 {
			out = append(out, tokens[i])
			i++
			continue
		}
		lead, _, _ := splitPunct(tokens[i])
		_, _, trail := splitPunct(tokens[i+n-1])
		out = append(out, lead+best.Corrected+trail)
		if best.Original != best.Corrected {
			corrections = append(corrections, best)
		}
		i += n
	}
	return Result{Text: strings.Join(out, " "), Corrections: corrections}
}

// bestAt returns the best match for a window starting at tokens[0] and the
// window length, or n == 0 when nothing matched. Ties go to the shorter
// window.
func (c *Corrector) bestAt(tokens []string) (best Correction, n int) {
	for size := 1; size <= min(c.maxWords, len(tokens)); size++ {
		words := make([]string, 0, size)
		for _, tok := range tokens[:size] {
			_, core, _ := splitPunct(tok)
			if core == "" {
				break
			}
			words = append(words, strings.ToLower(core))
		}
		if len(words) != size {
			break
		}
		windowCodes := codes(words)
		full := strings.Join(words, " ")
		concat := strings.Join(words, "")

		for _, t := range c.terms {
			if size != t.words && !(t.words == 1 && size == 2) {
				continue
			}
			score := max(
				matchr.JaroWinkler(full, t.lower, false),
				matchr.JaroWinkler(concat, t.concat, false),
			)
			phonetic := overlap(windowCodes, t.codes)
			threshold := c.fuzzyThreshold
			if phonetic {
				threshold = c.phoneticThreshold
			}
			if score < threshold || score <= best.Confidence {
				continue
			}
			original := make([]string, 0, size)
			for _, tok := range tokens[:size] {
				_, core, _ := splitPunct(tok)
				original = append(original, core)
			}
			best = Correction{
				Original:   strings.Join(original, " "),
				Corrected:  t.text,
				Confidence: score,
				Phonetic:   phonetic,
			}
			n = size
		}
	}
	return best, n
}

// codes returns the Double Metaphone codes of every word long enough to
// carry them.
func codes(words []string) map[string]struct{} {
	out := make(map[string]struct{}, len(words)*2)
	for _, w := range words {
		if len(w) < minCodeLen {
			continue
		}
		primary, secondary := matchr.DoubleMetaphone(w)
		if primary != "" {
			out[primary] = struct{}{}
		}
		if secondary != "" {
			out[secondary] = struct{}{}
		}
	}
	return out
}

func overlap(a, b map[string]struct{}) bool {
	if len(a) > len(b) {
		a, b = b, a
	}
	for k := range a {
		if _, ok := b[k]; ok {
			return true
		}
	}
	return false
}

// splitPunct splits tok into leading punctuation, the word and trailing
// punctuation.
func splitPunct(tok string) (lead, core, trail string) {
	isWord := func(r rune) bool { return unicode.IsLetter(r) || unicode.IsDigit(r) }
	start := strings.IndexFunc(tok, isWord)
	if start < 0 {
		return tok, "", ""
	}
	end := strings.LastIndexFunc(tok, isWord)
	_, size := utf8.DecodeRuneInString(tok[end:])
	end += size
	return tok[:start], tok[start:end], tok[end:]
}
