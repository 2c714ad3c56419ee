// Package llmutil holds helpers for consuming free-form model output.
package llmutil

import (
	"fmt"
	"regexp"
	"strings"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// fencedObject matches a JSON object wrapped in a markdown code fence, with or
// without a language tag. \x60 is a backtick.
var fencedObject = regexp.MustCompile("(?s)\x60\x60\x60[a-zA-Z]*\\s*({.*})\\s*\x60\x60\x60")

// maxSnippet bounds how much of a bad response ends up in an error.
const maxSnippet = 200

// ExtractObject returns the JSON object embedded in a model response. Models
// asked for bare JSON still wrap it in code fences or chat around it.
func ExtractObject(response string) (string, error) {
	response = strings.TrimSpace(response)
	if strings.HasPrefix(response, "{") && strings.HasSuffix(response, "}") {
		return response, nil
	}
	if m := fencedObject.FindStringSubmatch(response); len(m) > 1 {
		return m[1], nil
	}
	first := strings.Index(response, "{")
	last := strings.LastIndex(response, "}")
	if first == -1 || last <= first {
		return "", fmt.Errorf("no JSON object in model output: %q", truncate(response))
	}
	return response[first : last+1], nil
}

// ParseObject decodes the JSON object embedded in response into a T.
func ParseObject[T any](response string) (*T, error) {
	raw, err := ExtractObject(response)
	if err != nil {
		return nil, err
	}
	var out T
	if err := json.UnmarshalFromString(raw, &out); err != nil {
		return nil, fmt.Errorf("failed to decode model JSON: %w (got %q)", err, truncate(raw))
	}
	return &out, nil
}

func truncate(s string) string {
	if len(s) <= maxSnippet {
		return s
	}
	return s[:maxSnippet] + "..."
}
