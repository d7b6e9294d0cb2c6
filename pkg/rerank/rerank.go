package rerank

import (
	"context"
	"regexp"
	"sort"
	"strings"

	"github.com/ragcore/ragcore/pkg/logger"
)

// Candidate is one fused result awaiting rerank scoring.
type Candidate struct {
	ChunkID           string
	Text              string
	RRFScore          float64
	FirstHeadingLevel string // the chunk's nearest ancestor heading level, e.g. "H1"
}

// Scored is a candidate after scoring and boosting.
type Scored struct {
	ChunkID     string
	RerankScore float64
	EntityBoost float64
	IntentBoost float64
	FinalScore  float64
}

// Config holds the two additive score-boost weights.
type Config struct {
	EntityBoost float64 // β, default 0.1
	IntentBoost float64 // β_intent, default 0.05
	TopK        int     // K_rerank, default 15
	MaxChars    int      // per-document truncation before scoring, default 2000
}

func DefaultConfig() Config {
	return Config{EntityBoost: 0.1, IntentBoost: 0.05, TopK: 15, MaxChars: 2000}
}

// Reranker wraps a CrossEncoder and applies the entity/intent boost
// formulas, falling back to RRF order when the encoder is
// unavailable.
type Reranker struct {
	encoder CrossEncoder
	cfg     Config
}

func New(encoder CrossEncoder, cfg Config) *Reranker {
	if cfg.EntityBoost == 0 {
		cfg.EntityBoost = DefaultConfig().EntityBoost
	}
	if cfg.IntentBoost == 0 {
		cfg.IntentBoost = DefaultConfig().IntentBoost
	}
	if cfg.TopK == 0 {
		cfg.TopK = DefaultConfig().TopK
	}
	if cfg.MaxChars == 0 {
		cfg.MaxChars = DefaultConfig().MaxChars
	}
	return &Reranker{encoder: encoder, cfg: cfg}
}

// Rerank scores candidates against query, applies entity/intent
// boosts keyed by entities and intent, sorts descending by
// final_score (ties: descending rerank_score, then ascending
// chunk_id), and returns the top K_rerank.
func (r *Reranker) Rerank(ctx context.Context, query string, candidates []Candidate, entities []string, intent string) []Scored {
	if len(candidates) == 0 {
		return nil
	}

	rerankScores := r.scoreOrFallback(ctx, query, candidates)

	out := make([]Scored, len(candidates))
	for i, c := range candidates {
		entityBoost := r.entityBoost(entities, c.Text)
		intentBoost := r.intentBoost(intent, c, entities)
		rs := rerankScores[i]
		out[i] = Scored{
			ChunkID:     c.ChunkID,
			RerankScore: rs,
			EntityBoost: entityBoost,
			IntentBoost: intentBoost,
			FinalScore:  rs + entityBoost + intentBoost,
		}
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].FinalScore != out[j].FinalScore {
			return out[i].FinalScore > out[j].FinalScore
		}
		if out[i].RerankScore != out[j].RerankScore {
			return out[i].RerankScore > out[j].RerankScore
		}
		return out[i].ChunkID < out[j].ChunkID
	})

	if len(out) > r.cfg.TopK {
		out = out[:r.cfg.TopK]
	}
	return out
}

// scoreOrFallback invokes the cross-encoder; on unavailability or
// error it falls back to RRF order (rerank_score = rrf_score).
func (r *Reranker) scoreOrFallback(ctx context.Context, query string, candidates []Candidate) []float64 {
	if r.encoder != nil && r.encoder.Available(ctx) {
		docs := make([]string, len(candidates))
		for i, c := range candidates {
			docs[i] = truncate(c.Text, r.cfg.MaxChars)
		}
		scores, err := r.encoder.Score(ctx, query, docs)
		if err == nil && len(scores) == len(candidates) {
			out := make([]float64, len(candidates))
			for i, s := range scores {
				out[i] = float64(s)
			}
			return out
		}
		logger.Component(component).Warn("cross-encoder scoring failed, falling back to RRF order", "error", err)
	}
	out := make([]float64, len(candidates))
	for i, c := range candidates {
		out[i] = c.RRFScore
	}
	return out
}

var wordMatchers = map[string]*regexp.Regexp{}

func wordMatcher(term string) *regexp.Regexp {
	if re, ok := wordMatchers[term]; ok {
		return re
	}
	re := regexp.MustCompile(`(?i)\b` + regexp.QuoteMeta(term) + `\b`)
	wordMatchers[term] = re
	return re
}

// entityBoost = β · |entities ∩ chunk_text_lower| / max(1, |entities|),
// whole-word, case-insensitive matching.
func (r *Reranker) entityBoost(entities []string, text string) float64 {
	if len(entities) == 0 {
		return 0
	}
	matched := 0
	for _, e := range entities {
		e = strings.TrimSpace(e)
		if e == "" {
			continue
		}
		if wordMatcher(e).MatchString(text) {
			matched++
		}
	}
	denom := len(entities)
	if denom < 1 {
		denom = 1
	}
	return r.cfg.EntityBoost * float64(matched) / float64(denom)
}

func (r *Reranker) intentBoost(intent string, c Candidate, entities []string) float64 {
	lower := strings.ToLower(c.Text)
	switch intent {
	case "DEFINITION":
		if strings.Contains(lower, "is defined as") || strings.Contains(lower, "refers to") || c.FirstHeadingLevel == "H1" {
			return r.cfg.IntentBoost
		}
	case "MECHANISM":
		if strings.Contains(lower, "because") || strings.Contains(lower, "results in") || strings.Contains(lower, "mechanism") {
			return r.cfg.IntentBoost
		}
	case "COMPARISON":
		if coOccurWithin(c.Text, entities, 200) {
			return r.cfg.IntentBoost
		}
	case "APPLICATION", "STUDY_DETAIL", "CRITIQUE", "UNKNOWN", "":
		return 0
	}
	return 0
}

// coOccurWithin reports whether any two distinct entities each occur
// within win characters of one another in text.
func coOccurWithin(text string, entities []string, win int) bool {
	type occ struct {
		entity string
		pos    int
	}
	var positions []occ
	lower := strings.ToLower(text)
	for _, e := range entities {
		e = strings.TrimSpace(e)
		if e == "" {
			continue
		}
		el := strings.ToLower(e)
		start := 0
		for {
			idx := strings.Index(lower[start:], el)
			if idx < 0 {
				break
			}
			positions = append(positions, occ{entity: e, pos: start + idx})
			start += idx + len(el)
		}
	}
	for i := 0; i < len(positions); i++ {
		for j := i + 1; j < len(positions); j++ {
			if positions[i].entity == positions[j].entity {
				continue
			}
			d := positions[i].pos - positions[j].pos
			if d < 0 {
				d = -d
			}
			if d <= win {
				return true
			}
		}
	}
	return false
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
