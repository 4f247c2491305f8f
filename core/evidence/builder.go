package evidence

import (
	"log/slog"
	"strings"

	"github.com/siherrmann/graphrag/helper"
	"github.com/siherrmann/graphrag/model"
)

// Builder turns fused results into a token-budgeted, cited context.
// A Builder holds no per-call state and is safe for concurrent use.
type Builder struct {
	tokenizer Tokenizer
	logger    *slog.Logger
}

// NewBuilder creates a builder, a nil tokenizer counts four characters per token
func NewBuilder(tokenizer Tokenizer, logger *slog.Logger) *Builder {
	if tokenizer == nil {
		tokenizer = CharTokenizer{}
	}
	if logger == nil {
		logger = helper.DiscardLogger()
	}
	return &Builder{
		tokenizer: tokenizer,
		logger:    logger,
	}
}

// Tokenizer returns the tokenizer used for budgeting
func (b *Builder) Tokenizer() Tokenizer {
	return b.tokenizer
}

type citationKey struct {
	sourceID string
	modality model.Modality
}

// citationTable numbers sources in order of first use
type citationTable struct {
	byKey map[citationKey]int
	list  []model.Citation
}

func (t *citationTable) cite(r *model.FusedResult) model.Citation {
	key := citationKey{sourceID: r.Metadata.String("source_id"), modality: r.PrimarySource()}
	if key.sourceID == "" {
		key.sourceID = r.ID
	}
	if i, ok := t.byKey[key]; ok {
		return t.list[i]
	}

	citation := model.Citation{
		Number:   len(t.list) + 1,
		SourceID: key.sourceID,
		Modality: key.modality,
		Title:    r.Metadata.String("title"),
		URL:      r.Metadata.String("url"),
		Metadata: r.Metadata.Clone(),
	}
	t.byKey[key] = len(t.list)
	t.list = append(t.list, citation)
	return citation
}

// Build includes results in rank order until the next one would exceed
// maxTokens. Inclusion stops at the first result that does not fit.
func (b *Builder) Build(fused []model.FusedResult, maxTokens int) model.EvidenceContext {
	out := model.EvidenceContext{
		ContextChunks: []model.ContextChunk{},
		EvidenceChain: []model.EvidenceEntry{},
		Citations:     []model.Citation{},
	}
	table := &citationTable{byKey: map[citationKey]int{}}

	var parts []string
	total := 0
	for i := range fused {
		r := &fused[i]
		tokens := b.tokenizer.Count(r.Text)
		if total+tokens > maxTokens {
			b.logger.Debug("Token budget exhausted", slog.Int("included", len(out.ContextChunks)), slog.Int("remaining", len(fused)-i), slog.Int("max_tokens", maxTokens))
			break
		}
		total += tokens

		citation := table.cite(r)
		marker := citation.Marker()
		parts = append(parts, r.Text+" "+marker)

		out.ContextChunks = append(out.ContextChunks, model.ContextChunk{
			ResultID: r.ID,
			Text:     r.Text,
			Citation: marker,
			Tokens:   tokens,
		})
		out.EvidenceChain = append(out.EvidenceChain, model.EvidenceEntry{
			Rank:          len(out.EvidenceChain) + 1,
			ResultID:      r.ID,
			Citation:      marker,
			VectorScore:   r.VectorScore,
			KeywordScore:  r.KeywordScore,
			GraphScore:    r.GraphScore,
			CombinedScore: r.Score,
			Sources:       append([]model.Modality(nil), r.Sources...),
			Tokens:        tokens,
			GraphPath:     summarizePath(r.Path),
		})
	}

	out.Citations = append(out.Citations, table.list...)
	out.Context = strings.Join(parts, "\n\n")
	out.Bibliography = bibliography(out.Citations)
	out.TotalTokens = total
	out.TotalChunks = len(out.ContextChunks)
	return out
}

func summarizePath(path *model.GraphPath) []model.PathNodeSummary {
	if path == nil {
		return nil
	}
	nodes := make([]model.PathNodeSummary, len(path.Nodes))
	for i, n := range path.Nodes {
		nodes[i] = model.PathNodeSummary{
			ID:         n.ID.String(),
			Labels:     append([]string{}, n.Labels...),
			Properties: n.Properties.Clone(),
		}
		if n.Name != "" {
			nodes[i].Properties["name"] = n.Name
		}
	}
	return nodes
}

func bibliography(citations []model.Citation) string {
	lines := make([]string, len(citations))
	for i, c := range citations {
		lines[i] = c.Reference()
	}
	return strings.Join(lines, "\n")
}
