// Package chunk splits document text into overlapping bounded spans, the
// atomic unit of embedding and retrieval.
package chunk

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"unicode"
	"unicode/utf8"

	"knowgo/src/core/kerr"
	"knowgo/src/core/knowledge"
)

const (
	DefaultMaxChunkSize = 1500
	DefaultOverlap      = 300
)

// Splitter cuts text into chunks of at most maxSize runes, each sharing
// overlap runes with its predecessor. Cut points prefer the nearest
// paragraph or sentence break before the size limit; when none exists
// within the lookback window the cut is a hard one.
type Splitter struct {
	maxSize int
	overlap int
	lenFn   func(string) int
}

// Option configures a Splitter.
type Option func(*Splitter)

// WithLenFunc overrides how a chunk's token count is measured. The default
// counts runes.
func WithLenFunc(fn func(string) int) Option {
	return func(s *Splitter) {
		s.lenFn = fn
	}
}

// NewSplitter validates the size parameters and returns a Splitter.
func NewSplitter(maxSize, overlap int, opts ...Option) (*Splitter, error) {
	if maxSize <= 0 {
		return nil, kerr.Newf(kerr.KindValidation, "chunk.NewSplitter", "max chunk size must be positive, got %d", maxSize)
	}
	if overlap < 0 || overlap >= maxSize {
		return nil, kerr.Newf(kerr.KindValidation, "chunk.NewSplitter", "overlap %d must be non-negative and smaller than chunk size %d", overlap, maxSize)
	}

	s := &Splitter{
		maxSize: maxSize,
		overlap: overlap,
		lenFn:   utf8.RuneCountInString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Split cuts text into the ordered chunk sequence for documentID. Chunk IDs
// are left zero; the ingestion pipeline assigns them. Whitespace-only
// trailing spans are dropped; a whitespace-only text yields no chunks.
func (s *Splitter) Split(documentID int64, text string) []knowledge.Chunk {
	runes := []rune(text)
	total := len(runes)
	if total == 0 {
		return nil
	}

	// A boundary closer to the start than this is not worth taking;
	// beyond it we fall back to a hard cut.
	lookback := s.maxSize / 5

	var chunks []knowledge.Chunk
	start := 0
	for seq := 0; ; seq++ {
		end := start + s.maxSize
		if end >= total {
			end = total
		} else if cut := findBoundary(runes, end-lookback, end); cut > start+s.overlap {
			end = cut
		}

		span := string(runes[start:end])
		if end == total && strings.TrimSpace(span) == "" {
			break
		}

		chunks = append(chunks, knowledge.Chunk{
			DocumentID: documentID,
			Seq:        seq,
			Text:       span,
			TokenCount: s.lenFn(span),
			Checksum:   Checksum(span),
		})

		if end >= total {
			break
		}
		start = end - s.overlap
	}

	return chunks
}

// Reconstruct rebuilds the original text from an ordered chunk sequence by
// stripping each chunk's leading overlap region.
func Reconstruct(chunks []knowledge.Chunk, overlap int) string {
	var b strings.Builder
	for i, c := range chunks {
		if i == 0 {
			b.WriteString(c.Text)
			continue
		}
		runes := []rune(c.Text)
		if overlap >= len(runes) {
			continue
		}
		b.WriteString(string(runes[overlap:]))
	}
	return b.String()
}

// Checksum returns the hex SHA-256 of a chunk's text.
func Checksum(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

// findBoundary returns the best cut position in (from, to], or 0 when the
// window contains no usable break. Paragraph breaks win over sentence ends,
// sentence ends over line breaks; within a tier the latest break wins.
func findBoundary(runes []rune, from, to int) int {
	if from < 0 {
		from = 0
	}
	for i := to; i >= from+2; i-- {
		if runes[i-1] == '\n' && runes[i-2] == '\n' {
			return i
		}
	}
	for i := to; i >= from+2; i-- {
		if isSentenceEnd(runes[i-2]) && unicode.IsSpace(runes[i-1]) {
			return i
		}
	}
	for i := to; i >= from+1; i-- {
		if runes[i-1] == '\n' {
			return i
		}
	}
	return 0
}

func isSentenceEnd(r rune) bool {
	switch r {
	case '.', '!', '?', '。', '！', '？':
		return true
	}
	return false
}
