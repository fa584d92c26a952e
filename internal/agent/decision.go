package agent

import (
	"encoding/json"
	"strings"

	"github.com/kaptinlin/jsonrepair"
)

// Tier reports which decoding strategy produced a value.
type Tier int

const (
	TierStrict Tier = iota
	TierExtracted
	TierRepaired
	TierRaw
)

func (t Tier) String() string {
	switch t {
	case TierStrict:
		return "strict"
	case TierExtracted:
		return "extracted"
	case TierRepaired:
		return "repaired"
	default:
		return "raw"
	}
}

// DecodeJSON decodes an LLM reply into T. It tries the whole text, then the
// substring between the first '{' and the last '}', then a repaired version
// of that substring. TierRaw means every attempt failed and v is zero.
func DecodeJSON[T any](text string) (T, Tier) {
	var v T
	if err := json.Unmarshal([]byte(strings.TrimSpace(text)), &v); err == nil {
		return v, TierStrict
	}

	candidate, ok := extractObject(text)
	if !ok {
		var zero T
		return zero, TierRaw
	}
	v = *new(T)
	if err := json.Unmarshal([]byte(candidate), &v); err == nil {
		return v, TierExtracted
	}

	repaired, err := jsonrepair.JSONRepair(candidate)
	if err == nil {
		v = *new(T)
		if err := json.Unmarshal([]byte(repaired), &v); err == nil {
			return v, TierRepaired
		}
	}
	var zero T
	return zero, TierRaw
}

func extractObject(text string) (string, bool) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return "", false
	}
	return text[start : end+1], true
}

// DecodeDecision parses a reasoning reply. Unparseable text becomes the
// thought of a non-final decision without an action.
func DecodeDecision(text string) (Decision, Tier) {
	d, tier := DecodeJSON[Decision](text)
	if tier == TierRaw {
		return Decision{Thought: text}, TierRaw
	}
	if d.Action != nil && d.Action.Tool == "" {
		d.Action = nil
	}
	return d, tier
}

// encodeDecision renders the decision echoed back as the assistant turn.
func encodeDecision(d Decision) string {
	out := struct {
		Thought     string  `json:"thought"`
		Action      *Action `json:"action"`
		IsFinal     bool    `json:"is_final"`
		FinalAnswer any     `json:"final_answer"`
	}{Thought: d.Thought, Action: d.Action}
	data, err := json.Marshal(out)
	if err != nil {
		return d.Thought
	}
	return string(data)
}
