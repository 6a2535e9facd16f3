package generator

import (
	"regexp"
	"strings"
)

var messageRe = regexp.MustCompile(`(?s)##MESSAGE##\s*##PERSONA##(.*?)##PERSONA##\s*##BODY##(.*?)##BODY##`)

// parseDrafts extracts ##MESSAGE## blocks from raw model output. The
// persona field is "persona_id|persona_name"; only the id is kept. Blocks
// with an empty persona or body are dropped.
func parseDrafts(raw string) []rawDraft {
	var out []rawDraft
	for _, match := range messageRe.FindAllStringSubmatch(raw, -1) {
		personaField := strings.TrimSpace(match[1])
		body := strings.TrimSpace(match[2])
		ref := personaField
		if idx := strings.Index(personaField, "|"); idx >= 0 {
			ref = strings.TrimSpace(personaField[:idx])
		}
		if ref == "" || body == "" {
			continue
		}
		out = append(out, rawDraft{personaRef: ref, body: body})
	}
	return out
}
