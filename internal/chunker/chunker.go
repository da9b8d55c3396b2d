package chunker

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/finsightlabs/callrag/internal/transcript"
)

// Chunk is a bounded segment of one transcript, the atomic unit of
// retrieval. IDs are a deterministic function of document id and sequence
// index so re-chunking identical text is idempotent.
type Chunk struct {
	ID    string // "<documentID>:<seq>"
	Seq   int
	Start int // byte offset into the source text, inclusive
	End   int // byte offset, exclusive
	Text  string

	// Denormalized source metadata for filter-time access without a join.
	DocumentID string
	Company    string
	Date       string // "2006-01-02"
	Quarter    string

	Chars int // text length in runes
}

// MalformedDocumentError reports a document whose text cannot be chunked.
// It is fatal for that document only, never for a batch.
type MalformedDocumentError struct {
	DocumentID string
	Reason     string
}

func (e *MalformedDocumentError) Error() string {
	return fmt.Sprintf("malformed document %s: %s", e.DocumentID, e.Reason)
}

// IsMalformedDocument checks if err is a MalformedDocumentError.
func IsMalformedDocument(err error) bool {
	var target *MalformedDocumentError
	return errors.As(err, &target)
}

// Chunker splits transcripts into overlapping sentence-aligned segments.
type Chunker struct {
	maxChars     int
	overlapChars int
}

// New creates a chunker. maxChars bounds every produced chunk; adjacent
// chunks share up to overlapChars of trailing text so concepts spanning a
// boundary stay retrievable from at least one chunk.
func New(maxChars, overlapChars int) *Chunker {
	if maxChars <= 0 {
		maxChars = 512
	}
	if overlapChars < 0 {
		overlapChars = 0
	}
	if overlapChars >= maxChars {
		overlapChars = maxChars / 4
	}
	return &Chunker{maxChars: maxChars, overlapChars: overlapChars}
}

// sentenceRe matches one sentence including its terminal punctuation and
// trailing whitespace. Text without terminal punctuation is handled as a
// final remainder span.
var sentenceRe = regexp.MustCompile(`[^.!?]*[.!?]+[")'\]]*\s*`)

// Chunk splits a document into ordered chunks. Same text and same
// configuration always produce the same boundaries and ids.
func (c *Chunker) Chunk(doc transcript.Document) ([]Chunk, error) {
	if !utf8.ValidString(doc.Text) {
		return nil, &MalformedDocumentError{DocumentID: doc.ID, Reason: "text is not valid UTF-8"}
	}
	if strings.TrimSpace(doc.Text) == "" {
		return nil, &MalformedDocumentError{DocumentID: doc.ID, Reason: "empty text"}
	}

	sentences := sentenceSpans(doc.Text)

	var chunks []Chunk
	seq := 0
	i := 0
	for i < len(sentences) {
		// A single oversized sentence is hard-cut into windows.
		if runeLen(doc.Text, sentences[i]) > c.maxChars {
			for _, w := range hardCut(doc.Text, sentences[i], c.maxChars, c.overlapChars) {
				chunks = append(chunks, c.newChunk(doc, seq, w))
				seq++
			}
			i++
			continue
		}

		start := i
		end := i
		length := 0
		for end < len(sentences) {
			next := runeLen(doc.Text, sentences[end])
			if next > c.maxChars {
				break
			}
			if length+next > c.maxChars && length > 0 {
				break
			}
			length += next
			end++
		}

		chunks = append(chunks, c.newChunk(doc, seq, span{sentences[start].start, sentences[end-1].end}))
		seq++

		if end >= len(sentences) {
			break
		}
		// Back up over trailing sentences that fit the overlap budget, but
		// always make progress past the first sentence of this chunk.
		i = end
		overlap := 0
		for j := end - 1; j > start; j-- {
			overlap += runeLen(doc.Text, sentences[j])
			if overlap > c.overlapChars {
				break
			}
			i = j
		}
	}

	return chunks, nil
}

// ChunkID builds the deterministic chunk identifier.
func ChunkID(documentID string, seq int) string {
	return fmt.Sprintf("%s:%d", documentID, seq)
}

type span struct {
	start, end int
}

func (c *Chunker) newChunk(doc transcript.Document, seq int, s span) Chunk {
	text := doc.Text[s.start:s.end]
	return Chunk{
		ID:         ChunkID(doc.ID, seq),
		Seq:        seq,
		Start:      s.start,
		End:        s.end,
		Text:       text,
		DocumentID: doc.ID,
		Company:    doc.Company,
		Date:       doc.Date.Format("2006-01-02"),
		Quarter:    doc.Quarter,
		Chars:      utf8.RuneCountInString(text),
	}
}

// sentenceSpans returns byte spans covering the whole text with no gaps:
// every boundary of span n is the start of span n+1.
func sentenceSpans(text string) []span {
	var spans []span
	last := 0
	for _, m := range sentenceRe.FindAllStringIndex(text, -1) {
		if m[0] > last {
			spans = append(spans, span{last, m[0]})
		}
		spans = append(spans, span{m[0], m[1]})
		last = m[1]
	}
	if last < len(text) {
		spans = append(spans, span{last, len(text)})
	}
	return spans
}

// hardCut splits one span into rune windows of at most maxChars with the
// configured overlap between adjacent windows.
func hardCut(text string, s span, maxChars, overlap int) []span {
	runes := []rune(text[s.start:s.end])
	if len(runes) <= maxChars {
		return []span{s}
	}
	step := maxChars - overlap
	if step <= 0 {
		step = maxChars
	}

	// Precompute byte offsets per rune index relative to the span start.
	offsets := make([]int, len(runes)+1)
	off := 0
	for i, r := range runes {
		offsets[i] = off
		off += utf8.RuneLen(r)
	}
	offsets[len(runes)] = off

	var out []span
	for begin := 0; begin < len(runes); begin += step {
		end := begin + maxChars
		if end > len(runes) {
			end = len(runes)
		}
		out = append(out, span{s.start + offsets[begin], s.start + offsets[end]})
		if end == len(runes) {
			break
		}
	}
	return out
}

func runeLen(text string, s span) int {
	return utf8.RuneCountInString(text[s.start:s.end])
}
