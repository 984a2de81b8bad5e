package utils

import (
	"regexp"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Common stop words for text processing
var stopWords = map[string]bool{
	"a": true, "an": true, "and": true, "are": true, "as": true, "at": true,
	"be": true, "by": true, "for": true, "from": true, "has": true, "he": true,
	"in": true, "is": true, "it": true, "its": true, "of": true, "on": true,
	"that": true, "the": true, "to": true, "was": true, "will": true, "with": true,
	"this": true, "but": true, "they": true, "have": true, "had": true,
	"were": true, "been": true, "their": true, "she": true, "which": true, "do": true,
	"or": true, "if": true, "not": true, "what": true, "there": true, "can": true,
	"out": true, "up": true, "one": true, "about": true, "more": true, "so": true,
	"said": true, "when": true, "some": true, "into": true, "them": true, "then": true,
	"two": true, "how": true, "her": true, "than": true, "first": true, "way": true,
	"even": true, "back": true, "any": true, "over": true, "where": true, "just": true,
	"you": true, "your": true, "our": true, "we": true, "all": true, "also": true,
}

var invalidFilenameChars = regexp.MustCompile(`[<>:"/\\|?*]`)

// CleanText collapses runs of whitespace into single spaces and trims the result
func CleanText(text string) string {
	return strings.Join(strings.Fields(text), " ")
}

// RemoveStopWords filters out common stop words from text
func RemoveStopWords(text string) string {
	words := strings.Fields(strings.ToLower(text))
	filtered := make([]string, 0, len(words))

	for _, word := range words {
		// Remove punctuation from word edges
		word = strings.TrimFunc(word, unicode.IsPunct)
		if !stopWords[word] && len(word) > 0 {
			filtered = append(filtered, word)
		}
	}

	return strings.Join(filtered, " ")
}

// ExtractKeywords returns the limit most frequent non stop words of text.
// Ties are broken alphabetically.
func ExtractKeywords(text string, limit int) []string {
	wordCount := make(map[string]int)
	for _, word := range strings.Fields(RemoveStopWords(text)) {
		if utf8.RuneCountInString(word) > 2 { // Skip very short words
			wordCount[word]++
		}
	}

	type kv struct {
		Key   string
		Value int
	}
	sorted := make([]kv, 0, len(wordCount))
	for k, v := range wordCount {
		sorted = append(sorted, kv{k, v})
	}
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].Value != sorted[j].Value {
			return sorted[i].Value > sorted[j].Value
		}
		return sorted[i].Key < sorted[j].Key
	})

	keywords := make([]string, 0, limit)
	for i := 0; i < limit && i < len(sorted); i++ {
		keywords = append(keywords, sorted[i].Key)
	}
	return keywords
}

// TruncateText truncates text to at most maxLength runes, cutting at a word
// boundary when possible
func TruncateText(text string, maxLength int) string {
	runes := []rune(text)
	if len(runes) <= maxLength {
		return text
	}

	truncated := string(runes[:maxLength])
	if lastSpace := strings.LastIndex(truncated, " "); lastSpace > 0 {
		truncated = truncated[:lastSpace]
	}
	return truncated + "..."
}

// SanitizeFilename removes invalid characters from a filename
func SanitizeFilename(filename string) string {
	filename = invalidFilenameChars.ReplaceAllString(filename, "_")

	// Remove control characters
	cleaned := strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, filename)

	// Limit length without splitting a multi-byte character
	if len(cleaned) > 200 {
		cut := 200
		for cut > 0 && !utf8.RuneStart(cleaned[cut]) {
			cut--
		}
		cleaned = cleaned[:cut]
	}

	return cleaned
}

// CalculateReadingTime estimates reading time in minutes
func CalculateReadingTime(text string) int {
	wordsPerMinute := 200
	minutes := len(strings.Fields(text)) / wordsPerMinute
	if minutes < 1 {
		return 1
	}
	return minutes
}
