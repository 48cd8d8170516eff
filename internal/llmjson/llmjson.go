// Package llmjson decodes JSON out of free-form language-model replies.
package llmjson

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrParse wraps every decoding failure.
var ErrParse = errors.New("model response is not valid json")

// Decode parses raw into v. When raw is not JSON as a whole, the first
// balanced JSON object embedded in it is tried instead.
func Decode(raw string, v any) error {
	text := stripFences(strings.TrimSpace(raw))
	if text == "" {
		return fmt.Errorf("%w: empty response", ErrParse)
	}

	directErr := json.Unmarshal([]byte(text), v)
	if directErr == nil {
		return nil
	}

	obj, ok := FirstObject(text)
	if !ok {
		return fmt.Errorf("%w: %v", ErrParse, directErr)
	}
	if err := json.Unmarshal([]byte(obj), v); err != nil {
		return fmt.Errorf("%w: %v", ErrParse, err)
	}
	return nil
}

// FirstObject returns the first balanced {...} span, skipping braces inside strings.
func FirstObject(text string) (string, bool) {
	start := -1
	depth := 0
	inString := false
	escaped := false

	for i := 0; i < len(text); i++ {
		c := text[i]
		if start < 0 {
			if c == '{' {
				start = i
				depth = 1
			}
			continue
		}

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
				return text[start : i+1], true
			}
		}
	}
	return "", false
}

func stripFences(text string) string {
	if !strings.HasPrefix(text, "```") {
		return text
	}
	text = strings.TrimPrefix(text, "```")
	if nl := strings.IndexByte(text, '\n'); nl >= 0 {
		text = text[nl+1:]
	}
	return strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(text), "```"))
}
