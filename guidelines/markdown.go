package guidelines

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"

	matrixerrors "github.com/Mangalasridharan/MaTriX-AI-Maternal-Triage-Escalation-Intelligence/errors"
)

var (
	wordPattern = regexp.MustCompile(`\S+`)
	slugPattern = regexp.MustCompile(`[^a-z0-9]+`)
)

// MarkdownSplitter turns a guideline document into chunks, one per heading
// section. Short sections are merged forward and long ones are windowed by
// words with overlap.
type MarkdownSplitter struct {
	maxHeadingLevel int
	maxCharacters   int
	minCharacters   int
	windowWords     int
	overlapWords    int
	parser          goldmark.Markdown
}

// SplitterOption customises a MarkdownSplitter.
type SplitterOption func(*MarkdownSplitter)

// WithMaxHeadingLevel caps which heading level starts a new section (default 3).
func WithMaxHeadingLevel(level int) SplitterOption {
	return func(s *MarkdownSplitter) {
		if level > 0 {
			s.maxHeadingLevel = level
		}
	}
}

// WithSectionBounds sets the merge floor and the windowing ceiling in characters.
func WithSectionBounds(minChars, maxChars int) SplitterOption {
	return func(s *MarkdownSplitter) {
		if minChars >= 0 {
			s.minCharacters = minChars
		}
		if maxChars > 0 {
			s.maxCharacters = maxChars
		}
	}
}

// WithWindow sets the word window used for oversized sections.
func WithWindow(words, overlap int) SplitterOption {
	return func(s *MarkdownSplitter) {
		if words > 0 {
			s.windowWords = words
		}
		if overlap >= 0 && overlap < s.windowWords {
			s.overlapWords = overlap
		}
	}
}

// NewMarkdownSplitter creates a splitter sized for guideline excerpts.
func NewMarkdownSplitter(opts ...SplitterOption) *MarkdownSplitter {
	s := &MarkdownSplitter{
		maxHeadingLevel: 3,
		maxCharacters:   1200,
		minCharacters:   200,
		windowWords:     150,
		overlapWords:    25,
		parser:          goldmark.New(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type section struct {
	title string
	raw   string
}

// Split chunks content. Chunk IDs are derived from source and are stable
// across runs for the same document.
func (s *MarkdownSplitter) Split(source string, content []byte) ([]Chunk, error) {
	if strings.TrimSpace(source) == "" {
		return nil, fmt.Errorf("%w: markdown corpus needs a source name", matrixerrors.ErrInvalidInput)
	}
	prefix := slug(source)

	var chunks []Chunk
	for _, sec := range s.sections(content) {
		pieces := []string{sec.raw}
		if len(sec.raw) > s.maxCharacters {
			pieces = s.window(sec.raw)
		}
		for _, p := range pieces {
			src := source
			if sec.title != "" {
				src = source + " - " + sec.title
			}
			chunks = append(chunks, Chunk{
				ID:     fmt.Sprintf("%s-%03d", prefix, len(chunks)+1),
				Source: src,
				Text:   p,
			})
		}
	}
	if len(chunks) == 0 {
		return nil, fmt.Errorf("%w: markdown corpus %q is empty", matrixerrors.ErrInvalidInput, source)
	}
	return chunks, nil
}

func (s *MarkdownSplitter) sections(content []byte) []section {
	root := s.parser.Parser().Parse(text.NewReader(content))

	type heading struct {
		start int
		title string
	}
	var headings []heading
	_ = ast.Walk(root, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		h, ok := n.(*ast.Heading)
		if !ok || h.Level > s.maxHeadingLevel {
			return ast.WalkContinue, nil
		}
		lines := h.Lines()
		if lines == nil || lines.Len() == 0 {
			return ast.WalkContinue, nil
		}
		// Back up over the leading hashes so each section keeps its heading.
		start := lines.At(0).Start
		for start > 0 && content[start-1] != '\n' {
			start--
		}
		headings = append(headings, heading{
			start: start,
			title: strings.TrimSpace(string(h.Text(content))),
		})
		return ast.WalkSkipChildren, nil
	})

	if len(headings) == 0 {
		if raw := strings.TrimSpace(string(content)); raw != "" {
			return []section{{raw: raw}}
		}
		return nil
	}

	var out []section
	if intro := strings.TrimSpace(string(content[:headings[0].start])); intro != "" {
		out = append(out, section{raw: intro})
	}
	for i, h := range headings {
		end := len(content)
		if i+1 < len(headings) {
			end = headings[i+1].start
		}
		if raw := strings.TrimSpace(string(content[h.start:end])); raw != "" {
			out = append(out, section{title: h.title, raw: raw})
		}
	}
	return s.mergeShort(out)
}

func (s *MarkdownSplitter) mergeShort(secs []section) []section {
	if s.minCharacters <= 0 {
		return secs
	}
	merged := make([]section, 0, len(secs))
	var pending *section
	for i, sec := range secs {
		cur := sec
		if pending != nil {
			cur = section{
				title: firstNonEmpty(pending.title, sec.title),
				raw:   pending.raw + "\n\n" + sec.raw,
			}
			pending = nil
		}
		if len(cur.raw) < s.minCharacters && i < len(secs)-1 {
			tmp := cur
			pending = &tmp
			continue
		}
		merged = append(merged, cur)
	}
	return merged
}

// window splits text into overlapping word windows, keeping the original
// spacing inside each window.
func (s *MarkdownSplitter) window(raw string) []string {
	locs := wordPattern.FindAllStringIndex(raw, -1)
	if len(locs) == 0 {
		return nil
	}
	overlap := s.overlapWords
	if overlap >= s.windowWords {
		overlap = 0
	}
	var out []string
	for start := 0; start < len(locs); {
		end := start + s.windowWords
		if end > len(locs) {
			end = len(locs)
		}
		out = append(out, raw[locs[start][0]:locs[end-1][1]])
		if end == len(locs) {
			break
		}
		start = end - overlap
	}
	return out
}

func slug(s string) string {
	return strings.Trim(slugPattern.ReplaceAllString(strings.ToLower(s), "-"), "-")
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
