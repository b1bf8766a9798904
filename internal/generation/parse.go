package generation

import (
	"strings"

	"github.com/bytedance/sonic"
	"github.com/kaptinlin/jsonrepair"
)

// stripCodeFence removes a surrounding ```lang fence. An unterminated fence
// is stripped too so partial output still parses.
func stripCodeFence(text string) string {
	t := strings.TrimSpace(text)
	if !strings.HasPrefix(t, "```") {
		return t
	}
	if nl := strings.IndexByte(t, '\n'); nl >= 0 {
		t = t[nl+1:]
	} else {
		return ""
	}
	t = strings.TrimSpace(t)
	t = strings.TrimSuffix(t, "```")
	return strings.TrimSpace(t)
}

// parseStrict parses text as JSON. Failure is expected mid-stream.
func parseStrict(text string) (any, bool) {
	t := stripCodeFence(text)
	if t == "" {
		return nil, false
	}
	var v any
	if err := sonic.UnmarshalString(t, &v); err != nil {
		return nil, false
	}
	return v, true
}

// parseFinal is the end-of-stream attempt: strict first, then repaired.
func parseFinal(text string) (any, bool) {
	if v, ok := parseStrict(text); ok {
		return v, true
	}
	t := stripCodeFence(text)
	if t == "" {
		return nil, false
	}
	fixed, err := jsonrepair.JSONRepair(t)
	if err != nil {
		return nil, false
	}
	var v any
	if err := sonic.UnmarshalString(fixed, &v); err != nil {
		return nil, false
	}
	return v, true
}
