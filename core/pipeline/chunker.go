package pipeline

import (
	"context"
	"fmt"
	"math"
	"strings"
	"unicode"

	"github.com/siherrmann/graphrag/model"
)

// splitSentences splits on sentence punctuation followed by a space
func splitSentences(text string) []string {
	text = strings.ReplaceAll(text, "! ", "!|")
	text = strings.ReplaceAll(text, "? ", "?|")
	text = strings.ReplaceAll(text, ". ", ".|")

	var sentences []string
	for _, s := range strings.Split(text, "|") {
		s = strings.TrimSpace(s)
		if s != "" {
			sentences = append(sentences, s)
		}
	}
	return sentences
}

// groupSentences joins groups of sentences into chunks. Each chunk after the
// first repeats the last overlap sentences of its predecessor.
func groupSentences(groups [][]string, method string) []TextChunk {
	chunks := make([]TextChunk, 0, len(groups))
	pos := 0
	for i, group := range groups {
		content := strings.Join(group, " ")
		chunks = append(chunks, TextChunk{
			Content:    content,
			ChunkIndex: i,
			StartPos:   pos,
			EndPos:     pos + len(content),
			Metadata: model.Metadata{
				"num_sentences":   len(group),
				"chunking_method": method,
			},
		})
		pos += len(content) + 1
	}
	return chunks
}

// SentenceChunker creates a chunker that groups maxSentencesPerChunk
// sentences and repeats overlapSentences sentences between neighbours
func SentenceChunker(maxSentencesPerChunk int, overlapSentences int) ChunkFunc {
	return func(text string) ([]TextChunk, error) {
		if maxSentencesPerChunk <= 0 {
			return nil, fmt.Errorf("max sentences per chunk must be positive")
		}
		if overlapSentences < 0 || overlapSentences >= maxSentencesPerChunk {
			return nil, fmt.Errorf("sentence overlap must be between 0 and %d", maxSentencesPerChunk-1)
		}

		sentences := splitSentences(text)
		var groups [][]string
		step := maxSentencesPerChunk - overlapSentences
		for start := 0; start < len(sentences); start += step {
			end := start + maxSentencesPerChunk
			if end > len(sentences) {
				end = len(sentences)
			}
			groups = append(groups, sentences[start:end])
			if end == len(sentences) {
				break
			}
		}

		return groupSentences(groups, "sentence"), nil
	}
}

// ParagraphChunker creates a chunker that splits by blank lines
func ParagraphChunker() ChunkFunc {
	return func(text string) ([]TextChunk, error) {
		var chunks []TextChunk
		pos := 0
		for _, para := range strings.Split(text, "\n\n") {
			start := pos + strings.Index(text[pos:], para)
			pos = start + len(para)

			trimmed := strings.TrimSpace(para)
			if trimmed == "" {
				continue
			}
			chunks = append(chunks, TextChunk{
				Content:    trimmed,
				ChunkIndex: len(chunks),
				StartPos:   start,
				EndPos:     start + len(para),
				Metadata:   model.Metadata{"chunking_method": "paragraph"},
			})
		}
		return chunks, nil
	}
}

// WindowChunker creates a chunker of at most size characters per chunk
// where neighbouring chunks share about overlap characters. Cuts are moved
// back to the last whitespace when there is one.
func WindowChunker(size int, overlap int) ChunkFunc {
	return func(text string) ([]TextChunk, error) {
		if size <= 0 {
			return nil, fmt.Errorf("chunk size must be positive")
		}
		if overlap < 0 || overlap >= size {
			return nil, fmt.Errorf("chunk overlap must be between 0 and %d", size-1)
		}

		runes := []rune(text)
		var chunks []TextChunk
		for start := 0; start < len(runes); {
			end := start + size
			if end >= len(runes) {
				end = len(runes)
			} else if cut := lastSpace(runes[start:end]); cut > overlap {
				end = start + cut
			}

			content := strings.TrimSpace(string(runes[start:end]))
			if content != "" {
				chunks = append(chunks, TextChunk{
					Content:    content,
					ChunkIndex: len(chunks),
					StartPos:   start,
					EndPos:     end,
					Metadata:   model.Metadata{"chunking_method": "window", "overlap": overlap},
				})
			}
			if end == len(runes) {
				break
			}
			start = end - overlap
		}
		return chunks, nil
	}
}

func lastSpace(runes []rune) int {
	for i := len(runes) - 1; i > 0; i-- {
		if unicode.IsSpace(runes[i]) {
			return i
		}
	}
	return -1
}

// cosineSimilarity calculates the cosine similarity between two embedding vectors
func cosineSimilarity(a, b []float32) float32 {
	if len(a) != len(b) {
		return 0
	}

	var dotProduct, normA, normB float32
	for i := range a {
		dotProduct += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	return dotProduct / (float32(math.Sqrt(float64(normA))) * float32(math.Sqrt(float64(normB))))
}

// SemanticChunker groups sentences while they stay similar to the running
// average of the current chunk and the chunk stays below maxChunkSize
// characters
func SemanticChunker(embed EmbedFunc, maxChunkSize int, similarityThreshold float32) ChunkFunc {
	return func(text string) ([]TextChunk, error) {
		sentences := splitSentences(text)
		if len(sentences) == 0 {
			return []TextChunk{}, nil
		}

		embeddings := make([][]float32, len(sentences))
		for i, s := range sentences {
			e, err := embed(context.Background(), s)
			if err != nil {
				return nil, fmt.Errorf("failed to embed sentence %d: %w", i, err)
			}
			embeddings[i] = e
		}

		var groups [][]string
		var current []string
		var average []float32
		length := 0
		for i, sentence := range sentences {
			if len(current) > 0 {
				similar := cosineSimilarity(average, embeddings[i]) >= similarityThreshold
				if !similar || length+len(sentence) > maxChunkSize {
					groups = append(groups, current)
					current, average, length = nil, nil, 0
				}
			}

			current = append(current, sentence)
			length += len(sentence)
			average = runningAverage(average, embeddings[i], len(current))
		}
		groups = append(groups, current)

		return groupSentences(groups, "semantic"), nil
	}
}

func runningAverage(average []float32, next []float32, n int) []float32 {
	if average == nil {
		return append([]float32(nil), next...)
	}
	for i := range average {
		if i < len(next) {
			average[i] += (next[i] - average[i]) / float32(n)
		}
	}
	return average
}
