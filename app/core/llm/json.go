package llm

import "github.com/tidwall/gjson"

// ExtractJSONObject scans text for balanced {...} spans, honoring string
// literals and escapes, and returns the first one that is valid JSON. When
// only invalid spans exist the first of them is returned with ok=false. An
// empty payload means no balanced object was present.
func ExtractJSONObject(text string) (payload string, ok bool) {
	var firstInvalid string
	for start := 0; start < len(text); start++ {
		if text[start] != '{' {
			continue
		}
		end := matchBrace(text, start)
		if end < 0 {
			continue
		}
		candidate := text[start : end+1]
		if gjson.Valid(candidate) {
			return candidate, true
		}
		if firstInvalid == "" {
			firstInvalid = candidate
		}
	}
	return firstInvalid, false
}

func matchBrace(text string, start int) int {
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
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}
