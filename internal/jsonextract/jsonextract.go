// Package jsonextract pulls JSON documents out of free-form model output.
//
// Models often wrap JSON in markdown fences or surround it with prose even
// when told not to. Extract finds the first balanced object or array that
// parses, scanning past string literals so braces inside strings do not
// confuse the match.
package jsonextract

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ParseError reports that no usable JSON could be found in Input
type ParseError struct {
	Input  string
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("no valid JSON found in model output: %s", e.Reason)
}

// Extract returns the first syntactically valid JSON object or array in text.
// A fenced block is tried first, then the whole text.
func Extract(text string) (string, error) {
	clean := strings.TrimSpace(text)
	if clean == "" {
		return "", &ParseError{Input: text, Reason: "empty input"}
	}

	if fenced, ok := fenceBody(clean); ok {
		if candidate, found := scan(fenced); found {
			return candidate, nil
		}
	}
	if candidate, found := scan(clean); found {
		return candidate, nil
	}
	return "", &ParseError{Input: text, Reason: "no balanced object or array"}
}

// scan returns the first balanced object or array in s that parses
func scan(s string) (string, bool) {
	for start := 0; start < len(s); start++ {
		if s[start] != '{' && s[start] != '[' {
			continue
		}
		end, ok := matchClose(s, start)
		if !ok {
			continue
		}
		candidate := s[start : end+1]
		if json.Valid([]byte(candidate)) {
			return candidate, true
		}
	}
	return "", false
}

// Decode extracts the first JSON document in text and unmarshals it into v
func Decode(text string, v any) error {
	raw, err := Extract(text)
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(raw), v); err != nil {
		return &ParseError{Input: text, Reason: err.Error()}
	}
	return nil
}

// fenceBody returns the contents of the first ``` fence, without a json tag
func fenceBody(text string) (string, bool) {
	i := strings.Index(text, "```")
	if i < 0 {
		return "", false
	}
	rest := strings.TrimPrefix(text[i+3:], "json")
	if j := strings.Index(rest, "```"); j >= 0 {
		rest = rest[:j]
	}
	body := strings.TrimSpace(rest)
	return body, body != ""
}

// matchClose returns the index of the bracket closing the one at start
func matchClose(s string, start int) (int, bool) {
	stack := make([]byte, 0, 8)
	inString := false
	escaped := false

	for i := start; i < len(s); i++ {
		c := s[i]
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
			stack = append(stack, '}')
		case '[':
			stack = append(stack, ']')
		case '}', ']':
			if len(stack) == 0 || stack[len(stack)-1] != c {
				return 0, false
			}
			stack = stack[:len(stack)-1]
			if len(stack) == 0 {
				return i, true
			}
		}
	}
	return 0, false
}
