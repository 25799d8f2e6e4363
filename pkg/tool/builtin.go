package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"unicode"
)

// Builtins returns the reference tools shipped with the workforce. Real
// deployments replace serp_lookup with a search backend; the analysis tools
// are pure Go and production-usable as-is.
func Builtins() []Tool {
	return []Tool{SERPLookup(), KeywordDensity(), ReadabilityScore()}
}

// SERPLookup is a stand-in search-results tool. It answers deterministically
// from the query so brains can exercise the tool-call path offline.
func SERPLookup() Tool {
	return Tool{
		Name:        "serp_lookup",
		Description: "Look up search engine results for a query",
		Schema: json.RawMessage(`{
			"type": "object",
			"properties": {
				"query": {"type": "string", "minLength": 1},
				"limit": {"type": "integer", "minimum": 1, "maximum": 20}
			},
			"required": ["query"],
			"additionalProperties": false
		}`),
		Handler: func(ctx context.Context, args Args) (any, error) {
			query := args.String("query")
			limit := args.Int("limit")
			if limit == 0 {
				limit = 5
			}
			results := make([]map[string]any, 0, limit)
			for i := 1; i <= limit; i++ {
				results = append(results, map[string]any{
					"rank":  i,
					"title": fmt.Sprintf("Result %d for %q", i, query),
					"url":   fmt.Sprintf("https://example.com/%d", i),
				})
			}
			return map[string]any{"query": query, "results": results}, nil
		},
	}
}

// KeywordDensity counts keyword occurrences per hundred words of text.
func KeywordDensity() Tool {
	return Tool{
		Name:        "keyword_density",
		Description: "Compute keyword density percentages for a piece of text",
		Schema: json.RawMessage(`{
			"type": "object",
			"properties": {
				"text": {"type": "string", "minLength": 1},
				"keywords": {"type": "array", "items": {"type": "string"}, "minItems": 1}
			},
			"required": ["text", "keywords"],
			"additionalProperties": false
		}`),
		Handler: func(ctx context.Context, args Args) (any, error) {
			words := splitWords(args.String("text"))
			if len(words) == 0 {
				return nil, fmt.Errorf("text contains no words")
			}
			counts := make(map[string]int)
			for _, w := range words {
				counts[w]++
			}

			rawKeywords, _ := args["keywords"].([]any)
			density := make(map[string]float64, len(rawKeywords))
			for _, rk := range rawKeywords {
				kw, _ := rk.(string)
				if kw == "" {
					continue
				}
				density[strings.ToLower(kw)] = float64(counts[strings.ToLower(kw)]) / float64(len(words)) * 100
			}
			return map[string]any{"word_count": len(words), "density": density}, nil
		},
	}
}

// ReadabilityScore computes a Flesch reading-ease approximation.
func ReadabilityScore() Tool {
	return Tool{
		Name:        "readability_score",
		Description: "Score text readability (Flesch reading ease)",
		Schema: json.RawMessage(`{
			"type": "object",
			"properties": {
				"text": {"type": "string", "minLength": 1}
			},
			"required": ["text"],
			"additionalProperties": false
		}`),
		Handler: func(ctx context.Context, args Args) (any, error) {
			text := args.String("text")
			words := splitWords(text)
			if len(words) == 0 {
				return nil, fmt.Errorf("text contains no words")
			}
			sentences := countSentences(text)
			syllables := 0
			for _, w := range words {
				syllables += countSyllables(w)
			}
			score := 206.835 -
				1.015*(float64(len(words))/float64(sentences)) -
				84.6*(float64(syllables)/float64(len(words)))
			return map[string]any{
				"score":     score,
				"words":     len(words),
				"sentences": sentences,
			}, nil
		},
	}
}

func splitWords(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r) && r != '\''
	})
}

func countSentences(text string) int {
	n := 0
	for _, r := range text {
		if r == '.' || r == '!' || r == '?' {
			n++
		}
	}
	if n == 0 {
		n = 1
	}
	return n
}

// countSyllables approximates syllables by counting vowel groups.
func countSyllables(word string) int {
	const vowels = "aeiouy"
	n := 0
	prevVowel := false
	for _, r := range word {
		isVowel := strings.ContainsRune(vowels, r)
		if isVowel && !prevVowel {
			n++
		}
		prevVowel = isVowel
	}
	if strings.HasSuffix(word, "e") && n > 1 {
		n--
	}
	if n == 0 {
		n = 1
	}
	return n
}
