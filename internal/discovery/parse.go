package discovery

import (
	"strings"

	"github.com/tidwall/gjson"
)

// candidate is one suggestion from the generator before validation.
type candidate struct {
	Name        string
	URL         string
	Description string
}

// parseCandidates finds the first balanced JSON array in free text that holds objects or
// URL strings. Anything else yields nil.
func parseCandidates(text string) []candidate {
	for start := strings.IndexByte(text, '['); start >= 0; start = nextBracket(text, start) {
		end := matchingBracket(text, start)
		if end < 0 {
			continue
		}
		if out, ok := decodeArray(text[start : end+1]); ok {
			return out
		}
	}
	return nil
}

func nextBracket(text string, after int) int {
	next := strings.IndexByte(text[after+1:], '[')
	if next < 0 {
		return -1
	}
	return after + 1 + next
}

// matchingBracket returns the index of the ']' closing text[start], skipping brackets inside
// JSON strings.
func matchingBracket(text string, start int) int {
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		c := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '[':
			depth++
		case ']':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

func decodeArray(block string) ([]candidate, bool) {
	if !gjson.Valid(block) {
		return nil, false
	}
	doc := gjson.Parse(block)
	if !doc.IsArray() {
		return nil, false
	}

	var out []candidate
	ok := true
	doc.ForEach(func(_, value gjson.Result) bool {
		switch {
		case value.IsObject():
			out = append(out, candidate{
				Name:        strings.TrimSpace(value.Get("name").String()),
				URL:         strings.TrimSpace(firstString(value, "url", "feed", "feed_url", "rss")),
				Description: strings.TrimSpace(value.Get("description").String()),
			})
		case value.Type == gjson.String:
			out = append(out, candidate{URL: strings.TrimSpace(value.String())})
		default:
			ok = false
			return false
		}
		return true
	})
	if !ok {
		return nil, false
	}
	return out, true
}

func firstString(obj gjson.Result, keys ...string) string {
	for _, key := range keys {
		if v := obj.Get(key); v.Type == gjson.String && v.String() != "" {
			return v.String()
		}
	}
	return ""
}
