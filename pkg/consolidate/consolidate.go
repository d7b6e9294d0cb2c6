// Package consolidate groups retrieved chunks by (work, parent),
// decides replace-by-parent vs. merge-adjacent, and enriches content
// from source files.
package consolidate

import (
	"context"
	"sort"
	"strings"

	"github.com/ragcore/ragcore/pkg/apperr"
	"github.com/ragcore/ragcore/pkg/corpus"
	"github.com/ragcore/ragcore/pkg/logger"
	"github.com/ragcore/ragcore/pkg/querystate"
)

const component = "consolidate"

const (
	gapThreshold    = 7
	coverageReplace = 0.5
	minContentChars = 350
)

// Gateway is the subset of corpus.Gateway the consolidator needs.
type Gateway interface {
	GetChunks(ctx context.Context, ids []string) (map[string]*corpus.Chunk, error)
	GetParentChunks(ctx context.Context, childIDs []string) (map[string]*corpus.Chunk, error)
	GetWork(ctx context.Context, workID string) (*corpus.Work, error)
	ReadSanitizedSlice(ctx context.Context, workID string, startLine, endLine int) (string, error)
}

type bucketKey struct {
	workID   string
	parentID string
}

// Consolidate runs the bucket → coverage-or-merge → enrich →
// heading-chain → filter → sort pipeline, returning the final groups
// and any warnings (e.g. stale-source fallbacks) to surface on the
// HTTP response.
func Consolidate(ctx context.Context, gw Gateway, retrieved []querystate.RetrievedChunk) ([]querystate.ConsolidatedGroup, []string, error) {
	if len(retrieved) == 0 {
		return nil, nil, apperr.New(apperr.PreconditionFailed, component, "Consolidate", "retrieved_context is empty", nil)
	}

	ids := make([]string, 0, len(retrieved))
	for _, rc := range retrieved {
		ids = append(ids, rc.ChunkID)
	}

	chunks, err := gw.GetChunks(ctx, ids)
	if err != nil {
		return nil, nil, err
	}
	directParents, err := gw.GetParentChunks(ctx, ids)
	if err != nil {
		return nil, nil, err
	}

	ancestors := newAncestorCache(gw, directParents)

	buckets := make(map[bucketKey][]querystate.RetrievedChunk)
	for _, rc := range retrieved {
		buckets[bucketKey{workID: rc.WorkID, parentID: rc.ParentID}] = append(buckets[bucketKey{workID: rc.WorkID, parentID: rc.ParentID}], rc)
	}

	// Queue buckets deepest-first so a promoted parent group can be
	// re-bucketed against its own grandparent and considered for a
	// second promotion, recursing upward until coverage falls short or
	// the root is reached.
	queue := make([]bucketKey, 0, len(buckets))
	for k := range buckets {
		queue = append(queue, k)
	}
	byDepthDesc := func() {
		sort.Slice(queue, func(i, j int) bool { return ancestors.depth(ctx, queue[i].parentID) > ancestors.depth(ctx, queue[j].parentID) })
	}
	byDepthDesc()

	var warnings []string
	var groups []querystate.ConsolidatedGroup
	processed := make(map[bucketKey]bool)
	promoted := make(map[string]querystate.ConsolidatedGroup)

	for len(queue) > 0 {
		k := queue[0]
		queue = queue[1:]
		if processed[k] {
			continue
		}
		processed[k] = true

		members := append([]querystate.RetrievedChunk(nil), buckets[k]...)
		sort.Slice(members, func(i, j int) bool { return members[i].StartLine < members[j].StartLine })

		parent, hasParent := ancestors.get(ctx, k.parentID)
		if hasParent && parent != nil {
			if coverage := computeCoverage(members, parent); coverage >= coverageReplace {
				g := parentReplacementGroup(k, parent, members)
				promoted[parent.ID] = g

				// Recurse this group upward: the promoted parent
				// becomes a synthetic single member of its own
				// (work_id, grandparent_id) bucket, re-running the
				// coverage/merge decision one level up. The group is
				// emitted when that bucket is processed, unless a
				// further promotion absorbs it.
				nk := bucketKey{workID: k.workID, parentID: parent.ParentID}
				buckets[nk] = append(buckets[nk], querystate.RetrievedChunk{
					ChunkID: parent.ID, WorkID: k.workID, ParentID: parent.ParentID,
					Content: parent.Content, StartLine: parent.StartLine, EndLine: parent.EndLine,
					Level: string(parent.Level), FinalScore: g.Score,
				})
				delete(processed, nk)
				queue = append(queue, nk)
				byDepthDesc()
				continue
			}
		}
		var plain []querystate.RetrievedChunk
		for _, m := range members {
			if pg, ok := promoted[m.ChunkID]; ok {
				groups = append(groups, pg)
			} else {
				plain = append(plain, m)
			}
		}
		groups = append(groups, mergeAdjacent(k, plain)...)
	}

	// Enrichment, heading chain, filter.
	workTitles := make(map[string]string)
	final := make([]querystate.ConsolidatedGroup, 0, len(groups))
	for _, g := range groups {
		content, warn, err := enrichContent(ctx, gw, g, chunks)
		if err != nil {
			return nil, nil, err
		}
		if warn != "" {
			warnings = append(warnings, warn)
		}
		g.Content = content
		g.HeadingChain = ancestors.headingChain(ctx, g.ParentID)
		if title, ok := workTitles[g.WorkID]; ok {
			g.WorkTitle = title
		} else if w, err := gw.GetWork(ctx, g.WorkID); err == nil {
			workTitles[g.WorkID] = w.Title
			g.WorkTitle = w.Title
		}

		if len(strings.TrimSpace(g.Content)) < minContentChars {
			continue
		}
		final = append(final, g)
	}

	sort.SliceStable(final, func(i, j int) bool {
		if final[i].Score != final[j].Score {
			return final[i].Score > final[j].Score
		}
		if final[i].WorkID != final[j].WorkID {
			return final[i].WorkID < final[j].WorkID
		}
		return final[i].StartLine < final[j].StartLine
	})

	return final, warnings, nil
}

// ancestorCache resolves a chunk's parent record by id, memoizing
// fetches so repeated ancestor walks during depth-sort and
// heading-chain computation cost at most one Gateway round trip per
// distinct id.
type ancestorCache struct {
	gw    Gateway
	byID  map[string]*corpus.Chunk
}

func newAncestorCache(gw Gateway, seed map[string]*corpus.Chunk) *ancestorCache {
	byID := make(map[string]*corpus.Chunk, len(seed))
	for _, c := range seed {
		byID[c.ID] = c
	}
	return &ancestorCache{gw: gw, byID: byID}
}

func (a *ancestorCache) get(ctx context.Context, id string) (*corpus.Chunk, bool) {
	if id == "" {
		return nil, false
	}
	if c, ok := a.byID[id]; ok {
		return c, true
	}
	fetched, err := a.gw.GetChunks(ctx, []string{id})
	if err != nil {
		return nil, false
	}
	c, ok := fetched[id]
	if ok {
		a.byID[id] = c
	}
	return c, ok
}

func (a *ancestorCache) depth(ctx context.Context, id string) int {
	d := 0
	cur := id
	for cur != "" {
		d++
		c, ok := a.get(ctx, cur)
		if !ok {
			break
		}
		cur = c.ParentID
	}
	return d
}

// headingChain walks parent pointers starting at parentID until null,
// returning ordered ancestor heading titles (root first).
func (a *ancestorCache) headingChain(ctx context.Context, parentID string) []string {
	var chain []string
	cur := parentID
	seen := map[string]bool{}
	for cur != "" && !seen[cur] {
		seen[cur] = true
		c, ok := a.get(ctx, cur)
		if !ok {
			break
		}
		title := strings.SplitN(c.Content, "\n", 2)[0]
		chain = append([]string{title}, chain...)
		cur = c.ParentID
	}
	return chain
}

// computeCoverage = Σ span(child) / span(parent), counting unique
// (non-overlapping) line ranges within the parent once.
func computeCoverage(members []querystate.RetrievedChunk, parent *corpus.Chunk) float64 {
	parentSpan := parent.EndLine - parent.StartLine + 1
	if parentSpan <= 0 {
		return 0
	}
	covered := uniqueLineCount(members)
	return float64(covered) / float64(parentSpan)
}

// uniqueLineCount merges overlapping [start,end] ranges and sums
// their total length.
func uniqueLineCount(members []querystate.RetrievedChunk) int {
	type span struct{ start, end int }
	spans := make([]span, len(members))
	for i, m := range members {
		spans[i] = span{m.StartLine, m.EndLine}
	}
	sort.Slice(spans, func(i, j int) bool { return spans[i].start < spans[j].start })

	total := 0
	curStart, curEnd := -1, -1
	for _, s := range spans {
		if curStart == -1 {
			curStart, curEnd = s.start, s.end
			continue
		}
		if s.start <= curEnd+1 {
			if s.end > curEnd {
				curEnd = s.end
			}
			continue
		}
		total += curEnd - curStart + 1
		curStart, curEnd = s.start, s.end
	}
	if curStart != -1 {
		total += curEnd - curStart + 1
	}
	return total
}

func parentReplacementGroup(k bucketKey, parent *corpus.Chunk, members []querystate.RetrievedChunk) querystate.ConsolidatedGroup {
	maxScore := 0.0
	for _, m := range members {
		if m.FinalScore > maxScore {
			maxScore = m.FinalScore
		}
	}
	return querystate.ConsolidatedGroup{
		ChunkIDs:  []string{parent.ID},
		ParentID:  k.parentID,
		WorkID:    k.workID,
		Content:   parent.Content,
		StartLine: parent.StartLine,
		EndLine:   parent.EndLine,
		Score:     maxScore,
	}
}

// mergeAdjacent sorts members by start_line and sweeps, coalescing
// runs where the gap between consecutive members is <= gapThreshold.
func mergeAdjacent(k bucketKey, members []querystate.RetrievedChunk) []querystate.ConsolidatedGroup {
	if len(members) == 0 {
		return nil
	}
	var groups []querystate.ConsolidatedGroup
	run := []querystate.RetrievedChunk{members[0]}

	flush := func() {
		ids := make([]string, len(run))
		maxScore := 0.0
		minStart, maxEnd := run[0].StartLine, run[0].EndLine
		for i, m := range run {
			ids[i] = m.ChunkID
			if m.FinalScore > maxScore {
				maxScore = m.FinalScore
			}
			if m.StartLine < minStart {
				minStart = m.StartLine
			}
			if m.EndLine > maxEnd {
				maxEnd = m.EndLine
			}
		}
		groups = append(groups, querystate.ConsolidatedGroup{
			ChunkIDs:  ids,
			ParentID:  k.parentID,
			WorkID:    k.workID,
			StartLine: minStart,
			EndLine:   maxEnd,
			Score:     maxScore,
		})
	}

	for i := 1; i < len(members); i++ {
		prev := run[len(run)-1]
		next := members[i]
		gap := next.StartLine - prev.EndLine
		if gap >= 0 && gap <= gapThreshold {
			run = append(run, next)
			continue
		}
		flush()
		run = []querystate.RetrievedChunk{next}
	}
	flush()
	return groups
}

// enrichContent reads the sanitized slice for the group's span; on
// StaleSource it falls back to concatenating stored chunk contents.
func enrichContent(ctx context.Context, gw Gateway, g querystate.ConsolidatedGroup, chunks map[string]*corpus.Chunk) (string, string, error) {
	text, err := gw.ReadSanitizedSlice(ctx, g.WorkID, g.StartLine, g.EndLine)
	if err == nil {
		return prependHeadingIfFirstLine(text, g, chunks), "", nil
	}
	if apperr.Is(err, apperr.StaleSource) {
		logger.Component(component).Warn("sanitized source stale during consolidation, falling back to stored chunk content", "work_id", g.WorkID)
		var b strings.Builder
		for i, id := range g.ChunkIDs {
			if i > 0 {
				b.WriteString("\n\n")
			}
			if c, ok := chunks[id]; ok {
				b.WriteString(c.Content)
			}
		}
		return b.String(), "stale source for work " + g.WorkID + ": fell back to stored chunk content", nil
	}
	return "", "", err
}

// prependHeadingIfFirstLine prepends the run's leading heading line
// (if the first retrieved chunk in the group is itself a heading),
// followed by a blank line, so downstream prompts see the section
// title.
func prependHeadingIfFirstLine(text string, g querystate.ConsolidatedGroup, chunks map[string]*corpus.Chunk) string {
	if len(g.ChunkIDs) == 0 {
		return text
	}
	c, ok := chunks[g.ChunkIDs[0]]
	if !ok || c.IsContent() {
		return text
	}
	heading := strings.SplitN(c.Content, "\n", 2)[0]
	if heading == "" {
		return text
	}
	return heading + "\n\n" + text
}
