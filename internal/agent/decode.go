package agent

import (
	"encoding/json"
	"errors"
	"strings"

	"github.com/ggonzalez94/tradeagent/internal/intent"
)

var errNoObject = errors.New("no JSON object in model output")

// DecodeResponse extracts the first complete JSON object from raw model output
// and decodes it as a response. Surrounding prose and code fences are ignored.
func DecodeResponse(raw string) (intent.Response, error) {
	obj, ok := firstObject(raw)
	if !ok {
		return intent.Response{}, errNoObject
	}
	var keys map[string]json.RawMessage
	if err := json.Unmarshal([]byte(obj), &keys); err != nil {
		return intent.Response{}, err
	}
	_, hasMessage := keys["message"]
	_, hasAction := keys["action"]
	_, hasIntent := keys["intent"]
	if !hasMessage && !hasAction && !hasIntent {
		return intent.Response{}, errors.New("model output is not a response object")
	}
	var resp intent.Response
	if err := json.Unmarshal([]byte(obj), &resp); err != nil {
		return intent.Response{}, err
	}
	return resp, nil
}

// firstObject scans for the first balanced {...} span, honoring strings.
func firstObject(s string) (string, bool) {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return "", false
	}
	depth := 0
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
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1], true
			}
		}
	}
	return "", false
}
