package memory

import (
	"context"
	"sort"
	"strings"

	"github.com/yantianqi1/write-agent/internal/coreerr"
	"github.com/yantianqi1/write-agent/internal/tokenizer"
)

// Scored pairs an Item with its fused relevance score from Search.
type Scored struct {
	Item  Item
	Score float64
}

// Search ranks items by spec.md §4.B's fused score: 0.5*lexical +
// 0.5*vector when an Embedder is configured, lexical-only otherwise. Ties
// break by UpdatedAt descending. level == "" searches every tier.
func (s *Service) Search(ctx context.Context, projectID, query string, level Level, k int) ([]Scored, error) {
	if k <= 0 {
		k = 10
	}

	var candidates []Item
	if level == "" {
		for _, lv := range []Level{Global, Character, Plot, Context, Style} {
			items, err := s.backend.List(ctx, projectID, lv, 0)
			if err != nil {
				return nil, coreerr.Wrap(coreerr.Storage, err, "list memory items")
			}
			candidates = append(candidates, items...)
		}
	} else {
		items, err := s.backend.List(ctx, projectID, level, 0)
		if err != nil {
			return nil, coreerr.Wrap(coreerr.Storage, err, "list memory items")
		}
		candidates = items
	}
	if len(candidates) == 0 {
		return nil, nil
	}

	queryWords := tokenizeWords(query)

	var vectorScores map[string]float64
	if s.embedder != nil && query != "" {
		qvec, err := s.embedder.Embed(ctx, query)
		if err != nil {
			return nil, coreerr.Wrap(coreerr.ProviderError, err, "embed search query")
		}
		fetchK := len(candidates)
		if fetchK > 200 {
			fetchK = 200
		}
		results, err := s.vectorStore.Query(ctx, projectID, qvec, fetchK, nil)
		if err != nil {
			return nil, coreerr.Wrap(coreerr.Storage, err, "query vector store")
		}
		vectorScores = make(map[string]float64, len(results))
		for _, r := range results {
			vectorScores[r.ID] = float64(r.Score)
		}
	}

	scored := make([]Scored, 0, len(candidates))
	for _, it := range candidates {
		lexical := lexicalScore(queryWords, tokenizeWords(it.Content))
		score := lexical
		if vectorScores != nil {
			score = 0.5*lexical + 0.5*vectorScores[it.ID]
		}
		scored = append(scored, Scored{Item: it, Score: score})
	}

	sort.Slice(scored, func(i, j int) bool {
		if scored[i].Score != scored[j].Score {
			return scored[i].Score > scored[j].Score
		}
		return scored[i].Item.UpdatedAt.After(scored[j].Item.UpdatedAt)
	})

	if len(scored) > k {
		scored = scored[:k]
	}
	return scored, nil
}

// tokenizeWords lowercases and strips punctuation, matching the teacher's
// keyword-index tokenizer (pkg/memory/index_keyword.go).
func tokenizeWords(text string) map[string]struct{} {
	words := make(map[string]struct{})
	for _, w := range strings.Fields(strings.ToLower(text)) {
		w = strings.Trim(w, ".,!?;:\"'()[]{}")
		if len(w) > 0 {
			words[w] = struct{}{}
		}
	}
	return words
}

// lexicalScore is the normalized overlap fraction of query words found in
// doc (spec.md §4.B: "normalized token overlap").
func lexicalScore(query, doc map[string]struct{}) float64 {
	if len(query) == 0 {
		return 0
	}
	var hits int
	for w := range query {
		if _, ok := doc[w]; ok {
			hits++
		}
	}
	return float64(hits) / float64(len(query))
}

// section budgets as fractions of the BuildContext token budget, in the
// fixed priority order spec.md §4.B specifies.
var sectionBudgets = []struct {
	level   Level
	fraction float64
}{
	{Context, 0.40},
	{Character, 0.25},
	{Plot, 0.20},
	{Global, 0.10},
	{Style, 0.05},
}

// BuildContext composes a retrieval string under budgetTokens, taking
// sections in spec.md §4.B's priority order and truncating each at
// paragraph boundaries on overflow.
func (s *Service) BuildContext(ctx context.Context, projectID, query string, budgetTokens int, counter tokenizer.Counter) (string, error) {
	if counter == nil {
		counter = tokenizer.HeuristicCounter{}
	}

	var sections []string
	for _, sb := range sectionBudgets {
		sectionBudget := int(float64(budgetTokens) * sb.fraction)
		if sectionBudget <= 0 {
			continue
		}

		var items []Item
		var err error
		switch sb.level {
		case Context:
			items, err = s.backend.List(ctx, projectID, Context, 0)
			if err != nil {
				return "", coreerr.Wrap(coreerr.Storage, err, "list context items")
			}
			sort.Slice(items, func(i, j int) bool { return orderOf(items[i]) > orderOf(items[j]) })
		case Style:
			items, err = s.backend.List(ctx, projectID, Style, 0)
			if err != nil {
				return "", coreerr.Wrap(coreerr.Storage, err, "list style items")
			}
		default:
			scored, serr := s.Search(ctx, projectID, query, sb.level, 8)
			if serr != nil {
				return "", serr
			}
			for _, sc := range scored {
				items = append(items, sc.Item)
			}
		}

		text := truncateToParagraphBudget(items, sectionBudget, counter)
		if text != "" {
			sections = append(sections, text)
		}
	}

	return strings.Join(sections, "\n\n"), nil
}

// truncateToParagraphBudget concatenates item contents (each item itself
// split into paragraphs on blank lines) until adding the next paragraph
// would exceed budget tokens.
func truncateToParagraphBudget(items []Item, budget int, counter tokenizer.Counter) string {
	var b strings.Builder
	used := 0
	for _, it := range items {
		paras := strings.Split(it.Content, "\n\n")
		for _, p := range paras {
			if p == "" {
				continue
			}
			n, err := counter.Count(p)
			if err != nil {
				n = len(p) / 4
			}
			if used > 0 && used+n > budget {
				return b.String()
			}
			if b.Len() > 0 {
				b.WriteString("\n\n")
			}
			b.WriteString(p)
			used += n
		}
	}
	return b.String()
}
