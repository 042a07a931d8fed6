package chunker

import (
    "crypto/sha256"
    "encoding/hex"
    "fmt"
    "regexp"
    "strings"

    "ragforge/internal/rag/ingest"
)

// Chunk represents a produced chunk of text.
type Chunk struct {
    Index int
    Text  string
    // ID is deterministic: a hash of the owning document id and this
    // chunk's index, so re-running the pipeline over unchanged text
    // reproduces identical chunk identities (idempotent ingestion).
    ID string
}

// ChunkID derives the deterministic chunk identifier from a document id and
// chunk index.
func ChunkID(docID string, index int) string {
    h := sha256.Sum256([]byte(fmt.Sprintf("%s:%d", docID, index)))
    return "chunk:" + docID + ":" + hex.EncodeToString(h[:8])
}

// Chunker interface provides text chunking strategies.
type Chunker interface {
    Chunk(text string, opt ingest.ChunkingOptions) ([]Chunk, error)
}

// SimpleChunker implements multiple lightweight strategies based on options.
type SimpleChunker struct{}

// Chunk splits text into chunks using strategy hints in options. The default
// ("", "recursive") strategy splits on section, then paragraph, then
// sentence, then word boundaries, targeting ~1000 characters per chunk with
// a 200-character overlap, matching the platform's document ingestion
// contract rather than a token-count heuristic.
func (SimpleChunker) Chunk(text string, opt ingest.ChunkingOptions) ([]Chunk, error) {
    strategy := strings.ToLower(opt.Strategy)
    if strategy == "" {
        strategy = "recursive"
    }
    var chunks []Chunk
    switch strategy {
    case "recursive":
        chunks = RecursiveChunk(text, RecursiveOptions{})
    case "fixed", "tokens", "sentences":
        chunks = fixedChunk(text, opt)
    case "markdown", "md":
        chunks = markdownChunk(text, opt)
    case "code":
        chunks = codeChunk(text, opt)
    default:
        chunks = RecursiveChunk(text, RecursiveOptions{})
    }
    return chunks, nil
}

// RecursiveOptions tunes RecursiveChunk. Zero values apply the platform
// defaults (1000/200).
type RecursiveOptions struct {
    TargetChars int
    OverlapChars int
}

var (
    sectionBreakRe   = regexp.MustCompile(`\n\s*\n\s*\n+`)
    paragraphBreakRe = regexp.MustCompile(`\n\s*\n`)
    sentenceBreakRe  = regexp.MustCompile(`(?m)(?:[.!?])\s+`)
)

// RecursiveChunk implements the document chunking contract: try to split on
// section breaks first, then paragraphs, then sentences, falling back to a
// fixed-width word-boundary split only when a unit is still too large. Every
// produced chunk is at most TargetChars, except that the overlap tail carried
// into a chunk can push it past TargetChars by up to OverlapChars plus a
// two-character separator, and consecutive
// chunks overlap by OverlapChars so retrieval never loses context that
// straddled a boundary.
func RecursiveChunk(text string, opt RecursiveOptions) []Chunk {
    target := opt.TargetChars
    if target <= 0 {
        target = 1000
    }
    overlap := opt.OverlapChars
    if overlap <= 0 || overlap >= target {
        overlap = 200
    }

    units := splitRecursive(text, target, []*regexp.Regexp{sectionBreakRe, paragraphBreakRe, sentenceBreakRe})

    var out []Chunk
    var buf strings.Builder
    idx := 0
    flush := func() {
        s := strings.TrimSpace(buf.String())
        if s == "" {
            return
        }
        out = append(out, Chunk{Index: idx, Text: s})
        idx++
    }
    for _, u := range units {
        u = strings.TrimSpace(u)
        if u == "" {
            continue
        }
        if buf.Len() > 0 && buf.Len()+len(u)+1 > target {
            flush()
            if overlap > 0 {
                tail := lastNChars(buf.String(), overlap)
                buf.Reset()
                buf.WriteString(tail)
            } else {
                buf.Reset()
            }
        }
        if buf.Len() > 0 {
            buf.WriteString("\n\n")
        }
        buf.WriteString(u)
    }
    flush()
    return out
}

// splitRecursive splits text using the first delimiter in delims that yields
// units no larger than target; units still over target are split on the next
// delimiter in the list, and anything left after exhausting delims falls
// back to a fixed-width word-boundary split.
func splitRecursive(text string, target int, delims []*regexp.Regexp) []string {
    if len(text) <= target {
        return []string{text}
    }
    if len(delims) == 0 {
        return fixedWidthSplit(text, target)
    }
    parts := delims[0].Split(text, -1)
    if len(parts) <= 1 {
        return splitRecursive(text, target, delims[1:])
    }
    var out []string
    for _, p := range parts {
        if p == "" {
            continue
        }
        if len(p) > target {
            out = append(out, splitRecursive(p, target, delims[1:])...)
        } else {
            out = append(out, p)
        }
    }
    return out
}

// fixedWidthSplit is the last-resort fallback: split on the nearest space to
// target so no chunk ever exceeds it, even for unbroken runs of text.
func fixedWidthSplit(text string, target int) []string {
    var out []string
    start := 0
    for start < len(text) {
        end := start + target
        if end >= len(text) {
            out = append(out, text[start:])
            break
        }
        if i := strings.LastIndex(text[start:end], " "); i > target/2 {
            end = start + i
        }
        out = append(out, text[start:end])
        start = end
    }
    return out
}

func lastNChars(s string, n int) string {
    r := []rune(s)
    if len(r) <= n {
        return s
    }
    return string(r[len(r)-n:])
}

func targetLen(opt ingest.ChunkingOptions) int {
    n := opt.MaxTokens
    if n <= 0 {
        n = 512
    }
    // treat as approximate characters per chunk if tokens unknown
    return n * 4 // rough 4 chars per token heuristic
}

// fixedChunk makes contiguous chunks of target size with optional overlap.
func fixedChunk(text string, opt ingest.ChunkingOptions) []Chunk {
    tgt := targetLen(opt)
    if tgt < 32 {
        tgt = 32
    }
    ov := opt.Overlap
    if ov < 0 {
        ov = 0
    }
    ovChars := ov * 4
    var out []Chunk
    start := 0
    idx := 0
    for start < len(text) {
        end := start + tgt
        if end > len(text) {
            end = len(text)
        } else {
            // try to cut at whitespace boundary to reduce mid-word splits
            if i := strings.LastIndex(text[start:end], " "); i > tgt/2 {
                end = start + i
            }
        }
        chunk := strings.TrimSpace(text[start:end])
        if chunk != "" {
            out = append(out, Chunk{Index: idx, Text: chunk})
            idx++
        }
        if end == len(text) {
            break
        }
        // next start considers overlap
        next := end - ovChars
        if next <= start {
            next = end
        }
        start = next
    }
    return out
}

// markdownChunk prefers splitting on headings and paragraph breaks and preserves headings.
func markdownChunk(text string, opt ingest.ChunkingOptions) []Chunk {
    tgt := targetLen(opt)
    lines := strings.Split(text, "\n")
    var out []Chunk
    var buf strings.Builder
    idx := 0
    writeFlush := func() {
        if s := strings.TrimSpace(buf.String()); s != "" {
            out = append(out, Chunk{Index: idx, Text: s})
            idx++
            buf.Reset()
        }
    }
    for i, ln := range lines {
        isHeading := strings.HasPrefix(ln, "#")
        isParaBreak := strings.TrimSpace(ln) == "" && i+1 < len(lines) && strings.TrimSpace(lines[i+1]) != ""
        // Always consider heading as a hard boundary when buffer has content
        if isHeading && buf.Len() > 0 { writeFlush() }
        // Append line
        if buf.Len() > 0 {
            buf.WriteString("\n")
        }
        buf.WriteString(ln)
        // Consider flushing at paragraph boundary if exceeding target
        if (isHeading || isParaBreak) && buf.Len() >= tgt {
            writeFlush()
        }
    }
    writeFlush()
    return out
}

var codeSplitRe = regexp.MustCompile(`(?m)^\s*(func |class |def |#[#\s]|//)`) // heuristics for code boundaries

// codeChunk attempts to respect function/class boundaries and comments.
func codeChunk(text string, opt ingest.ChunkingOptions) []Chunk {
    tgt := targetLen(opt)
    lines := strings.Split(text, "\n")
    var out []Chunk
    var buf strings.Builder
    idx := 0
    for i, ln := range lines {
        if codeSplitRe.MatchString(ln) && (buf.Len() > 0 && (buf.Len()+len(ln)+1 > tgt || strings.Contains(buf.String(), "func "))) {
            out = append(out, Chunk{Index: idx, Text: strings.TrimRight(buf.String(), "\n")})
            idx++
            buf.Reset()
        }
        buf.WriteString(ln)
        if i < len(lines)-1 {
            buf.WriteString("\n")
        }
    }
    if s := strings.TrimSpace(buf.String()); s != "" {
        out = append(out, Chunk{Index: idx, Text: s})
    }
    return out
}

