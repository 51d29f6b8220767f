package chunk

import (
	"regexp"
	"strings"
)

// headerPattern matches Markdown ATX headers: "# Title", "## Title", ….
var headerPattern = regexp.MustCompile(`^(#{1,6})\s+(.+)$`)

// Markdown splits Markdown text into chunks, keeping header sections
// together where they fit and falling back to line packing within an
// oversized section (spec §4.3 chunkMarkdown).
func Markdown(text string, opts Options) []Piece {
	opts = withDefaults(opts)
	if strings.TrimSpace(text) == "" {
		return nil
	}

	lines := strings.Split(text, "\n")
	sections := splitSections(lines)
	if len(sections) == 0 {
		return Text(text, opts)
	}

	var pieces []Piece
	for _, sec := range sections {
		pieces = append(pieces, packLines(sec.lines, sec.startLine, opts)...)
	}
	return pieces
}

// Text splits plain text into token-bounded, overlap-carrying chunks by
// packing whole lines (spec §4.3 "Splits text into approximately
// tokens-sized chunks with overlap tokens carried into the next chunk").
func Text(text string, opts Options) []Piece {
	opts = withDefaults(opts)
	if strings.TrimSpace(text) == "" {
		return nil
	}
	lines := strings.Split(text, "\n")
	return packLines(lines, 1, opts)
}

func withDefaults(opts Options) Options {
	if opts.Tokens <= 0 {
		opts.Tokens = DefaultMemoryOptions.Tokens
	}
	if opts.Overlap < 0 || opts.Overlap >= opts.Tokens {
		opts.Overlap = DefaultMemoryOptions.Overlap
	}
	return opts
}

type section struct {
	startLine int // 1-indexed
	lines     []string
}

// splitSections groups lines under the header that introduces them. Content
// before the first header (if any) becomes its own leading section starting
// at line 1. Returns nil if the text contains no headers at all.
func splitSections(lines []string) []*section {
	var sections []*section
	var cur *section
	sawHeader := false

	for i, line := range lines {
		lineNo := i + 1
		if headerPattern.MatchString(line) {
			sawHeader = true
			if cur != nil {
				sections = append(sections, cur)
			}
			cur = &section{startLine: lineNo}
		} else if cur == nil {
			cur = &section{startLine: lineNo}
		}
		cur.lines = append(cur.lines, line)
	}
	if cur != nil {
		sections = append(sections, cur)
	}
	if !sawHeader {
		return nil
	}
	return sections
}

// packLines packs lines (whose first line is at absolute line number
// startLine) into token-bounded Pieces, carrying the trailing ~overlap
// tokens of one piece into the start of the next.
func packLines(lines []string, startLine int, opts Options) []Piece {
	var pieces []Piece
	var buf []string
	bufStart := startLine
	tokens := 0

	flush := func(endLineExclusive int) {
		if len(buf) == 0 {
			return
		}
		text := strings.TrimRight(strings.Join(buf, "\n"), " \n")
		if strings.TrimSpace(text) == "" {
			buf = nil
			tokens = 0
			return
		}
		pieces = append(pieces, Piece{
			StartLine: bufStart,
			EndLine:   endLineExclusive - 1,
			Text:      text,
			Hash:      hashText(text),
		})
	}

	for i, line := range lines {
		lineNo := startLine + i
		lineTokens := estimateTokens(line) + 1 // +1 for the newline

		if len(buf) > 0 && tokens+lineTokens > opts.Tokens {
			flush(lineNo)

			// Carry trailing lines worth ~opts.Overlap tokens into the next buffer.
			overlapLines, overlapTokens, overlapStart := trailingOverlap(buf, bufStart, opts.Overlap)
			buf = append([]string{}, overlapLines...)
			tokens = overlapTokens
			bufStart = overlapStart
		}

		buf = append(buf, line)
		tokens += lineTokens
	}
	flush(startLine + len(lines))

	return pieces
}

// trailingOverlap returns the suffix of buf (whose first line sits at
// bufStart) whose cumulative token count is closest to, without exceeding,
// overlapBudget — plus the absolute line number of its first line.
func trailingOverlap(buf []string, bufStart int, overlapBudget int) (lines []string, tokens int, start int) {
	if overlapBudget <= 0 {
		return nil, 0, bufStart + len(buf)
	}
	sum := 0
	cut := len(buf)
	for cut > 0 {
		t := estimateTokens(buf[cut-1]) + 1
		if sum+t > overlapBudget {
			break
		}
		sum += t
		cut--
	}
	return buf[cut:], sum, bufStart + cut
}
