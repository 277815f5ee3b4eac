package llm

import (
	"encoding/json"
	"fmt"
	"strings"
)

// StripFences removes a surrounding ``` or ```json block and any prose
// before the first brace or bracket.
func StripFences(text string) string {
	s := strings.TrimSpace(text)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```")
		if nl := strings.IndexByte(s, '\n'); nl >= 0 {
			lang := strings.TrimSpace(s[:nl])
			if lang == "" || !strings.ContainsAny(lang, "{[") {
				s = s[nl+1:]
			}
		}
		if end := strings.LastIndex(s, "```"); end >= 0 {
			s = s[:end]
		}
		s = strings.TrimSpace(s)
	}

	start := strings.IndexAny(s, "{[")
	if start < 0 {
		return s
	}
	closer := byte('}')
	if s[start] == '[' {
		closer = ']'
	}
	end := strings.LastIndexByte(s, closer)
	if end < start {
		return s[start:]
	}
	return s[start : end+1]
}

// ParseJSON strips fences and decodes text into v.
func ParseJSON(text string, v any) error {
	clean := StripFences(text)
	if clean == "" {
		return fmt.Errorf("empty response")
	}
	if err := json.Unmarshal([]byte(clean), v); err != nil {
		return fmt.Errorf("decoding llm json: %w", err)
	}
	return nil
}
