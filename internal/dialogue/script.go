// Package dialogue handles dialogue scripts: parsing webhook payloads into
// ordered lines, the built-in script catalog, and serial playback.
package dialogue

import (
	"encoding/json"
	"fmt"
	"strings"
)

const defaultRemoteLabel = "n8n"

// Script is a labelled, ordered list of non-empty lines.
type Script struct {
	Label string   `json:"label"`
	Lines []string `json:"lines"`
}

// Text renders the script one line per row.
func (s Script) Text() string {
	return strings.Join(s.Lines, "\n")
}

// ParseLines splits text by line, trims each line and drops blank ones.
func ParseLines(text string) []string {
	raw := strings.Split(text, "\n")
	lines := make([]string, 0, len(raw))
	for _, l := range raw {
		l = strings.TrimSpace(l)
		if l == "" {
			continue
		}
		lines = append(lines, l)
	}
	return lines
}

type payload struct {
	Dialogue json.RawMessage `json:"dialogue"`
	Script   string          `json:"script"`
	Label    string          `json:"label"`
}

// ParsePayload reads a webhook dialogue body: {"dialogue": [...]} wins over
// {"script": "..."}; anything else yields an empty script.
func ParsePayload(body []byte) (Script, error) {
	var p payload
	if err := json.Unmarshal(body, &p); err != nil {
		return Script{}, fmt.Errorf("decode dialogue payload: %w", err)
	}
	label := strings.TrimSpace(p.Label)
	if label == "" {
		label = defaultRemoteLabel
	}

	var arr []string
	if len(p.Dialogue) > 0 && json.Unmarshal(p.Dialogue, &arr) == nil {
		return Script{Label: label, Lines: ParseLines(strings.Join(arr, "\n"))}, nil
	}
	if p.Script != "" {
		return Script{Label: label, Lines: ParseLines(p.Script)}, nil
	}
	return Script{Label: label, Lines: []string{}}, nil
}
