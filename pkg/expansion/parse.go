package expansion

import (
	"encoding/json"
	"strings"
)

// jsonExpansion mirrors the shape requested of the model.
type jsonExpansion struct {
	Expanded []string `json:"expanded"`
	Hyde     string   `json:"hyde"`
	Intent   string   `json:"intent"`
	Entities []string `json:"entities"`
}

// parseJSONExpansion finds the first balanced {...} object in the
// response by scanning brace depth and decodes it.
func parseJSONExpansion(response string) (*ParsedExpansion, bool) {
	start, end := -1, -1
	depth := 0
	for i, r := range response {
		switch r {
		case '{':
			if start == -1 {
				start = i
			}
			depth++
		case '}':
			depth--
			if depth == 0 && start != -1 {
				end = i + 1
			}
		}
		if end != -1 {
			break
		}
	}
	if start == -1 || end == -1 {
		return nil, false
	}

	var parsed jsonExpansion
	if err := json.Unmarshal([]byte(response[start:end]), &parsed); err != nil {
		return nil, false
	}
	if len(parsed.Expanded) == 0 && parsed.Hyde == "" && len(parsed.Entities) == 0 {
		return nil, false
	}

	return &ParsedExpansion{
		Expanded: dedupeFold(parsed.Expanded),
		Hyde:     strings.TrimSpace(parsed.Hyde),
		Intent:   normalizeIntent(parsed.Intent),
		Entities: dedupeFold(parsed.Entities),
	}, true
}

// parseLabeledExpansion is the fallback path for models that ignore
// the JSON instruction and answer with labeled sections, e.g.:
//
//	EXPANDED: query one | query two | query three
//	HYDE: some hypothetical passage
//	INTENT: MECHANISM
//	ENTITIES: dopamine, serotonin
func parseLabeledExpansion(response string) (*ParsedExpansion, bool) {
	out := &ParsedExpansion{}
	found := false

	for _, line := range strings.Split(response, "\n") {
		line = strings.TrimSpace(line)
		upper := strings.ToUpper(line)
		switch {
		case strings.HasPrefix(upper, "EXPANDED:"):
			rest := line[len("EXPANDED:"):]
			out.Expanded = dedupeFold(splitList(rest))
			found = true
		case strings.HasPrefix(upper, "HYDE:"):
			out.Hyde = strings.TrimSpace(line[len("HYDE:"):])
			found = true
		case strings.HasPrefix(upper, "INTENT:"):
			out.Intent = normalizeIntent(line[len("INTENT:"):])
			found = true
		case strings.HasPrefix(upper, "ENTITIES:"):
			rest := line[len("ENTITIES:"):]
			out.Entities = dedupeFold(splitList(rest))
			found = true
		}
	}
	if !found {
		return nil, false
	}
	if out.Intent == "" {
		out.Intent = "UNKNOWN"
	}
	return out, true
}

// splitList splits on "|" or "," — models vary in which they pick.
func splitList(s string) []string {
	sep := ","
	if strings.Contains(s, "|") {
		sep = "|"
	}
	return strings.Split(s, sep)
}
