// Package parse holds the pure extraction functions that turn free-form
// model output into ratings, probabilities, vocabulary tokens and search
// query lists. No function here performs I/O.
package parse

import (
	"regexp"
	"sort"
	"strconv"
	"strings"
)

const (
	// DefaultProbability is returned when no probability can be extracted.
	DefaultProbability = 0.5
	// DefaultRating is the conservative "irrelevant" rating used when a
	// rating cannot be parsed.
	DefaultRating = 1.0

	// endWordWindow bounds how far back from the end of a response a
	// vocabulary token is searched for.
	endWordWindow = 50
)

var (
	starredRe  = regexp.MustCompile(`\*([^*\n]*?[\d.]+[^*\n]*?)\*`)
	trailingRe = regexp.MustCompile(`([\d.]+[^*\n]*?)\*`)
	numberRe   = regexp.MustCompile(`\d*\.?\d+`)
)

// ExtractProbability finds the last asterisk-delimited number in text and
// returns it as a probability. A trailing "%" divides the value by 100.
// Values above 1 are ignored. Falls back to a number immediately before a
// closing asterisk, then to DefaultProbability.
func ExtractProbability(text string) float64 {
	if p, ok := lastInRange(starredRe.FindAllStringSubmatch(text, -1)); ok {
		return p
	}
	if p, ok := lastInRange(trailingRe.FindAllStringSubmatch(text, -1)); ok {
		return p
	}
	return DefaultProbability
}

func lastInRange(matches [][]string) (float64, bool) {
	for i := len(matches) - 1; i >= 0; i-- {
		inner := matches[i][1]
		num := numberRe.FindString(inner)
		if num == "" {
			continue
		}
		v, err := strconv.ParseFloat(num, 64)
		if err != nil {
			continue
		}
		if strings.Contains(inner, "%") {
			v /= 100
		}
		if v >= 0 && v <= 1 {
			return v, true
		}
	}
	return 0, false
}

// ExtractRating parses a 1-6 relevance or alignment rating. The first word
// of the response is tried first, then the first word after a "Rating:"
// marker. Unparseable responses yield DefaultRating.
func ExtractRating(text string) float64 {
	if v, ok := leadingNumber(text); ok {
		return v
	}
	if idx := strings.LastIndex(text, "Rating:"); idx >= 0 {
		if v, ok := leadingNumber(text[idx+len("Rating:"):]); ok {
			return v
		}
	}
	return DefaultRating
}

func leadingNumber(s string) (float64, bool) {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return 0, false
	}
	word := strings.Trim(fields[0], ".,;:*")
	v, err := strconv.ParseFloat(word, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// FindEndWord searches the tail of a response for a vocabulary entry.
// Longer entries are tried first so "Very Unlikely" wins over its
// substring "Unlikely". Matching is case-insensitive over the last
// endWordWindow characters. Returns false when nothing matches.
func FindEndWord(text string, vocabulary []string) (string, bool) {
	tail := text
	if len(tail) > endWordWindow {
		tail = tail[len(tail)-endWordWindow:]
	}
	tail = strings.ToLower(tail)

	ordered := make([]string, len(vocabulary))
	copy(ordered, vocabulary)
	sort.SliceStable(ordered, func(i, j int) bool {
		return len(strings.Fields(ordered[i])) > len(strings.Fields(ordered[j]))
	})
	for _, w := range ordered {
		if strings.Contains(tail, strings.ToLower(w)) {
			return w, true
		}
	}
	return "", false
}

// ParseSearchQueries extracts semicolon-separated queries from a planner
// response. The expected shape ends with a "Search Queries:" line followed
// by the queries; responses that inline the queries after the marker are
// handled too.
func ParseSearchQueries(response string) []string {
	lines := strings.Split(strings.TrimSpace(response), "\n")

	var raw string
	if len(lines) >= 2 && strings.Contains(lines[len(lines)-2], "Search Queries:") {
		raw = lines[len(lines)-1]
	} else if idx := strings.LastIndex(response, "Search Queries:"); idx >= 0 {
		raw = strings.ReplaceAll(response[idx+len("Search Queries:"):], "\n", ";")
	} else {
		raw = lines[len(lines)-1]
	}

	var queries []string
	for _, part := range strings.Split(raw, ";") {
		q := strings.Trim(strings.TrimSpace(part), `.-;"`)
		q = strings.TrimSpace(q)
		if q != "" {
			queries = append(queries, q)
		}
	}
	return queries
}
