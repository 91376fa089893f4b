package parser

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// Chunk is one embedding-sized fragment of a document.
type Chunk struct {
	Content  string
	Heading  string // Section path, empty for unsectioned content
	Position int
}

// ChunkConfig defines chunking parameters.
type ChunkConfig struct {
	// Threshold: only chunk if content exceeds this length
	Threshold int
	// TargetSize: ideal chunk size
	TargetSize int
	// MinSize: minimum chunk size (smaller chunks merge with neighbors)
	MinSize int
	// MaxSize: maximum chunk size (larger chunks split at sentences)
	MaxSize int
	// Overlap: character overlap between chunks
	Overlap int
}

// DefaultChunkConfig returns sensible defaults for all-MiniLM class
// embedding models.
func DefaultChunkConfig() ChunkConfig {
	return ChunkConfig{
		Threshold:  1500,
		TargetSize: 750,
		MinSize:    200,
		MaxSize:    1000,
		Overlap:    100,
	}
}

// Split breaks a document into chunks, preferring section boundaries, then
// paragraph boundaries, then sentence boundaries.
func Split(doc *Document, config ChunkConfig) []Chunk {
	body := strings.TrimSpace(doc.Body)
	if body == "" {
		return nil
	}

	// Short documents stay whole
	if len(body) <= config.Threshold {
		return []Chunk{{
			Content:  body,
			Position: 0,
		}}
	}

	if len(doc.Sections) > 0 {
		return splitSections(doc.Sections, config)
	}

	return splitParagraphs(doc.Body, config)
}

// splitSections creates chunks from document sections.
func splitSections(sections []Section, config ChunkConfig) []Chunk {
	var chunks []Chunk
	position := 0

	for _, section := range sections {
		if section.Content == "" {
			continue
		}

		if len(section.Content) <= config.MaxSize {
			if len(section.Content) >= config.MinSize || len(chunks) == 0 {
				chunks = append(chunks, Chunk{
					Content:  section.Content,
					Heading:  section.Path,
					Position: position,
				})
				position++
			} else {
				// Merge tiny section with the previous chunk
				last := &chunks[len(chunks)-1]
				last.Content += "\n\n" + section.Content
			}
			continue
		}

		// Large section: split into paragraphs
		for _, pc := range splitParagraphs(section.Content, config) {
			chunks = append(chunks, Chunk{
				Content:  pc.Content,
				Heading:  section.Path,
				Position: position,
			})
			position++
		}
	}

	return applyOverlap(chunks, config.Overlap)
}

// splitParagraphs splits content at paragraph boundaries.
func splitParagraphs(content string, config ChunkConfig) []Chunk {
	paragraphs := strings.Split(content, "\n\n")

	var chunks []Chunk
	var current strings.Builder
	position := 0

	flush := func() {
		if current.Len() > 0 {
			chunks = append(chunks, Chunk{
				Content:  strings.TrimSpace(current.String()),
				Position: position,
			})
			position++
			current.Reset()
		}
	}

	for _, para := range paragraphs {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}

		if current.Len()+len(para) > config.MaxSize {
			flush()
		}

		// A single oversized paragraph splits at sentences
		if len(para) > config.MaxSize {
			flush()
			for _, sc := range splitSentences(para, config) {
				chunks = append(chunks, Chunk{
					Content:  sc,
					Position: position,
				})
				position++
			}
			continue
		}

		if current.Len() > 0 {
			current.WriteString("\n\n")
		}
		current.WriteString(para)
	}

	flush()

	return chunks
}

// splitSentences packs sentences into chunks up to the target size.
func splitSentences(text string, config ChunkConfig) []string {
	sentences := sentenceBoundaries(text)

	var chunks []string
	var current strings.Builder

	for _, sentence := range sentences {
		sentence = strings.TrimSpace(sentence)
		if sentence == "" {
			continue
		}

		if current.Len()+len(sentence) > config.TargetSize && current.Len() > 0 {
			chunks = append(chunks, strings.TrimSpace(current.String()))
			current.Reset()
		}

		if current.Len() > 0 {
			current.WriteString(" ")
		}
		current.WriteString(sentence)
	}

	if current.Len() > 0 {
		chunks = append(chunks, strings.TrimSpace(current.String()))
	}

	return chunks
}

// sentenceBoundaries splits text into sentences.
func sentenceBoundaries(text string) []string {
	var sentences []string
	var current strings.Builder

	runes := []rune(text)
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		current.WriteRune(r)

		if r == '.' || r == '!' || r == '?' {
			if i+1 >= len(runes) || unicode.IsSpace(runes[i+1]) {
				// Skip likely abbreviations like "Dr."
				if i > 1 && unicode.IsUpper(runes[i-1]) {
					continue
				}
				sentences = append(sentences, current.String())
				current.Reset()
			}
		}
	}

	if current.Len() > 0 {
		sentences = append(sentences, current.String())
	}

	return sentences
}

// applyOverlap prefixes each chunk with the tail of its predecessor so
// context survives chunk boundaries.
func applyOverlap(chunks []Chunk, overlap int) []Chunk {
	if overlap <= 0 || len(chunks) <= 1 {
		return chunks
	}

	result := make([]Chunk, len(chunks))
	copy(result, chunks)

	for i := 1; i < len(result); i++ {
		prev := result[i-1].Content
		if len(prev) > overlap {
			// Back up to a rune boundary so the tail never opens with a
			// partial UTF-8 sequence
			cut := len(prev) - overlap
			for cut < len(prev) && !utf8.RuneStart(prev[cut]) {
				cut++
			}
			tail := prev[cut:]
			// Start at a word boundary
			if idx := strings.LastIndex(tail, " "); idx > 0 {
				tail = tail[idx+1:]
			}
			result[i].Content = tail + " " + result[i].Content
		}
	}

	return result
}
