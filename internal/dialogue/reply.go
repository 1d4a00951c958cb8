package dialogue

import (
	"encoding/json"
	"strings"
)

const defaultTone = "neutral"

// Reply is a parsed completion.
type Reply struct {
	Text string `json:"npc_reply"`
	Tone string `json:"tone"`
}

// ParseReply reads the JSON object the model is asked for. Completions that aren't valid JSON are used verbatim.
func ParseReply(completion string) Reply {
	raw := strings.TrimSpace(completion)
	raw = strings.TrimPrefix(raw, "```json")
	raw = strings.TrimPrefix(raw, "```")
	raw = strings.TrimSuffix(raw, "```")
	raw = strings.TrimSpace(raw)

	var r Reply
	if err := json.Unmarshal([]byte(raw), &r); err != nil || strings.TrimSpace(r.Text) == "" {
		return Reply{Text: strings.TrimSpace(completion), Tone: defaultTone}
	}
	r.Text = strings.TrimSpace(r.Text)
	if r.Tone == "" {
		r.Tone = defaultTone
	}
	return r
}
