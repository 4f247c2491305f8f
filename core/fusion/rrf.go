package fusion

import (
	"sort"

	"github.com/siherrmann/graphrag/model"
)

// DefaultK is the rank damping constant of reciprocal rank fusion
const DefaultK = 60.0

// Fuser merges ranked modality lists with weighted reciprocal rank fusion
type Fuser struct {
	k float64
}

// NewFuser creates a fuser, k <= 0 selects DefaultK
func NewFuser(k float64) *Fuser {
	if k <= 0 {
		k = DefaultK
	}
	return &Fuser{k: k}
}

// K returns the damping constant
func (f *Fuser) K() float64 {
	return f.k
}

// Fuse merges the lists with DefaultK
func Fuse(vector, keyword, graph []model.ModalityResult, weights model.Weights) []model.FusedResult {
	return NewFuser(DefaultK).Fuse(vector, keyword, graph, weights)
}

// Fuse scores every result with weight / (k + rank) per contributing
// modality and returns one entry per identifier, best first. Lists must be
// ranked best first. Modalities with weight 0 are ignored. Equal scores
// keep encounter order: vector, then keyword, then graph.
func (f *Fuser) Fuse(vector, keyword, graph []model.ModalityResult, weights model.Weights) []model.FusedResult {
	lists := map[model.Modality][]model.ModalityResult{
		model.ModalityVector:  vector,
		model.ModalityKeyword: keyword,
		model.ModalityGraph:   graph,
	}

	var order []*model.FusedResult
	byID := map[string]*model.FusedResult{}

	for _, modality := range model.Modalities {
		weight := weights.For(modality)
		if weight <= 0 {
			continue
		}

		for i, r := range lists[modality] {
			id := resultKey(r)
			if id == "" {
				continue
			}

			fused, ok := byID[id]
			if !ok {
				fused = &model.FusedResult{
					ID:       id,
					Text:     r.Text,
					Metadata: r.Metadata.Clone(),
					Path:     r.Path,
				}
				byID[id] = fused
				order = append(order, fused)
			}
			// A repeated identifier within one list only counts at its best rank
			if fused.HasSource(modality) {
				continue
			}

			fused.Score += weight / (f.k + float64(i+1))
			fused.Sources = append(fused.Sources, modality)
			setRawScore(fused, modality, r.Score)
			mergeMetadata(fused, r)
		}
	}

	results := make([]model.FusedResult, len(order))
	for i, r := range order {
		results[i] = *r
	}
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
	for i := range results {
		results[i].Rank = i + 1
	}
	return results
}

func resultKey(r model.ModalityResult) string {
	if r.ID != "" {
		return r.ID
	}
	if r.Path != nil {
		return r.Path.Key()
	}
	return ""
}

func setRawScore(fused *model.FusedResult, modality model.Modality, score float64) {
	switch modality {
	case model.ModalityVector:
		fused.VectorScore = score
	case model.ModalityKeyword:
		fused.KeywordScore = score
	case model.ModalityGraph:
		fused.GraphScore = score
	}
}

func mergeMetadata(fused *model.FusedResult, r model.ModalityResult) {
	if fused.Text == "" {
		fused.Text = r.Text
	}
	if fused.Path == nil {
		fused.Path = r.Path
	}
	for k, v := range r.Metadata {
		if _, ok := fused.Metadata[k]; !ok {
			fused.Metadata[k] = v
		}
	}
}
