package prompt

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/ragcore/ragcore/pkg/querystate"
)

const defaultTopN = 5

// WorkTitler resolves a work's display title, needed only when falling
// back to singleton groups built from RetrievedContext (which carries
// no title of its own).
type WorkTitler interface {
	WorkTitle(ctx context.Context, workID string) (string, error)
}

type evidenceGroup struct {
	workID    string
	workTitle string
	content   string
	startLine int
	endLine   int
}

// BuildAugmentationPrompt selects the evidence source
// (clean_retrieval_context, or retrieved_context as singleton groups),
// formats numbered [S#] blocks, and fills the rag_augmentation
// template. It never invokes the generative model.
func (b *Builder) BuildAugmentationPrompt(ctx context.Context, works WorkTitler, q *querystate.Query, topN int) (string, int, error) {
	if topN <= 0 {
		topN = defaultTopN
	}

	groups := selectGroups(q, topN)
	for i := range groups {
		if groups[i].workTitle == "" && works != nil {
			if title, err := works.WorkTitle(ctx, groups[i].workID); err == nil {
				groups[i].workTitle = title
			}
		}
	}

	blocks := make([]string, 0, len(groups))
	for i, g := range groups {
		blocks = append(blocks, formatBlock(i+1, g))
	}
	contexts := b.trimToBudget(strings.Join(blocks, "\n\n"))

	entitiesStr := "(none)"
	if len(q.Entities) > 0 {
		entitiesStr = strings.Join(q.Entities, ", ")
	}
	intent := string(q.Intent)
	if intent == "" {
		intent = "UNKNOWN"
	}

	prompt, err := b.Render(ctx, "rag_augmentation", map[string]string{
		"query":        q.OriginalQuery,
		"contexts":     contexts,
		"intent":       intent,
		"entities_str": entitiesStr,
	})
	if err != nil {
		return "", 0, err
	}
	return prompt, len(groups), nil
}

func selectGroups(q *querystate.Query, topN int) []evidenceGroup {
	var groups []evidenceGroup
	if len(q.CleanRetrievalContext) > 0 {
		for _, g := range q.CleanRetrievalContext {
			groups = append(groups, evidenceGroup{
				workID: g.WorkID, workTitle: g.WorkTitle, content: g.Content,
				startLine: g.StartLine, endLine: g.EndLine,
			})
		}
	} else {
		for _, c := range q.RetrievedContext {
			groups = append(groups, evidenceGroup{
				workID: c.WorkID, content: c.Content,
				startLine: c.StartLine, endLine: c.EndLine,
			})
		}
	}
	if len(groups) > topN {
		groups = groups[:topN]
	}
	return groups
}

func formatBlock(index int, g evidenceGroup) string {
	first, rest := splitFirstLine(g.content)
	title := g.workTitle
	if title == "" {
		title = g.workID
	}
	return fmt.Sprintf("[S%d] Source: %s -- %s | (work_id=%s, start_line=%s, end_line=%s)\nText:\n%s",
		index, title, first, g.workID, strconv.Itoa(g.startLine), strconv.Itoa(g.endLine), rest)
}

// splitFirstLine returns the first non-blank line and the remainder
// with that line (and one immediately following blank line) removed,
// leading/trailing blank lines trimmed.
func splitFirstLine(content string) (first, rest string) {
	lines := strings.Split(content, "\n")
	start := 0
	for start < len(lines) && strings.TrimSpace(lines[start]) == "" {
		start++
	}
	if start >= len(lines) {
		return "", ""
	}
	first = strings.TrimSpace(lines[start])
	remaining := lines[start+1:]
	if len(remaining) > 0 && strings.TrimSpace(remaining[0]) == "" {
		remaining = remaining[1:]
	}
	rest = trimBlankLines(strings.Join(remaining, "\n"))
	rest = strings.TrimRight(rest, " \t\n\r")
	return first, rest
}

func trimBlankLines(s string) string {
	lines := strings.Split(s, "\n")
	i := 0
	for i < len(lines) && strings.TrimSpace(lines[i]) == "" {
		i++
	}
	j := len(lines)
	for j > i && strings.TrimSpace(lines[j-1]) == "" {
		j--
	}
	return strings.Join(lines[i:j], "\n")
}
