package asmtext

import (
	"bufio"
	"io"
	"strconv"
	"strings"
)

// A Line is one logical line of assembly: zero or more labels, followed by
// an optional command (a directive or an instruction mnemonic) and the
// remainder of the line holding its arguments.
type Line struct {
	Labels  []Fragment
	Command Fragment // empty if the line held only labels
	Args    Fragment // text following Command, whitespace-trimmed
}

func (l Line) IsEmpty() bool {
	return len(l.Labels) == 0 && l.Command.IsEmpty()
}

// A Scanner splits source text into logical Lines, stripping comments,
// peeling labels, and consuming `#line "file" num`-style directives
// in-band rather than surfacing them as Lines.
type Scanner struct {
	sc      *bufio.Scanner
	curFile string
	curLine int
	line    Line
	err     error
}

// NewScanner creates a Scanner over r, reporting source positions under
// the given logical file name until a #line directive overrides it.
func NewScanner(r io.Reader, file string) *Scanner {
	return &Scanner{
		sc:      bufio.NewScanner(r),
		curFile: file,
		curLine: 0,
	}
}

// Scan advances to the next non-empty logical line, returns false at EOF
// or on error (see Err).
func (s *Scanner) Scan() bool {
	for s.sc.Scan() {
		s.curLine++
		text := s.sc.Text()
		frag := NewFragment(s.curFile, s.curLine, text).StripTrailingComment()

		if frag.StartsWithByte('#') {
			s.handleLineDirective(frag)
			continue
		}

		parsed, ok := s.parseLine(frag)
		if !ok {
			continue
		}
		s.line = parsed
		return true
	}
	s.err = s.sc.Err()
	return false
}

func (s *Scanner) Line() Line { return s.line }
func (s *Scanner) Err() error { return s.err }

// handleLineDirective parses `#line "file" num` (or the shorthand `# num
// "file"`) and updates the scanner's notion of current file/line without
// emitting a Line.
func (s *Scanner) handleLineDirective(frag Fragment) {
	rest := frag.Consume(1)
	if rest.StartsWithString("line") {
		rest = rest.Consume(4)
	}
	rest = rest.ConsumeWhitespace()

	var numTok, fileTok Fragment
	if rest.StartsWithByte('"') {
		fileTok, rest = parseQuoted(rest)
		rest = rest.ConsumeWhitespace()
		numTok, _ = rest.ConsumeWhile(IsDecimal)
	} else {
		numTok, rest = rest.ConsumeWhile(IsDecimal)
		rest = rest.ConsumeWhitespace()
		if rest.StartsWithByte('"') {
			fileTok, _ = parseQuoted(rest)
		}
	}

	if n, err := strconv.Atoi(numTok.Str); err == nil {
		s.curLine = n - 1 // next Scan() increments
	}
	if fileTok.Str != "" {
		s.curFile = fileTok.Str
	}
}

func parseQuoted(f Fragment) (inner, remain Fragment) {
	f = f.Consume(1)
	inner, remain = f.ConsumeUntilByte('"')
	if !remain.IsEmpty() {
		remain = remain.Consume(1)
	}
	return inner, remain
}

// parseLine peels labels (identifiers followed by ':') from the front of
// the line, then splits the remaining command token from its arguments.
func (s *Scanner) parseLine(frag Fragment) (Line, bool) {
	var line Line
	line.Labels = make([]Fragment, 0, 1)

	cur := frag
	for {
		cur = cur.ConsumeWhitespace()
		if cur.IsEmpty() {
			break
		}
		label, isLabel := tryConsumeLabel(cur)
		if !isLabel {
			break
		}
		line.Labels = append(line.Labels, label.tok)
		cur = label.remain
	}

	cur = cur.ConsumeWhitespace()
	if cur.IsEmpty() {
		return line, !line.IsEmpty()
	}

	cmd, remain := cur.ConsumeWhile(IsWordChar)
	line.Command = cmd
	line.Args = remain.ConsumeWhitespace()
	return line, true
}

type labelResult struct {
	tok    Fragment
	remain Fragment
}

// tryConsumeLabel recognizes `identifier:` at the start of cur. It does not
// consume anything if the token isn't followed immediately by ':'.
func tryConsumeLabel(cur Fragment) (labelResult, bool) {
	if !cur.StartsWith(IsIdentStart) {
		return labelResult{}, false
	}
	tok, remain := cur.ConsumeWhile(IsIdentChar)
	if !remain.StartsWithByte(':') {
		return labelResult{}, false
	}
	return labelResult{tok: tok, remain: remain.Consume(1)}, true
}

// SplitComma splits f on top-level commas, trimming surrounding whitespace
// from each piece. Used by directives that take comma-separated argument
// lists.
func SplitComma(f Fragment) []Fragment {
	return splitOn(f, ',')
}

func splitOn(f Fragment, sep byte) []Fragment {
	var out []Fragment
	for {
		f = f.ConsumeWhitespace()
		if f.IsEmpty() {
			break
		}
		piece, remain := f.ConsumeUntilByte(sep)
		out = append(out, trimTrailingWhitespace(piece))
		if remain.IsEmpty() {
			break
		}
		f = remain.Consume(1)
	}
	return out
}

func trimTrailingWhitespace(f Fragment) Fragment {
	n := len(f.Str)
	for n > 0 && IsWhitespace(f.Str[n-1]) {
		n--
	}
	return f.Trunc(n)
}

// IsValidIdentifier reports whether s matches [A-Za-z_$][A-Za-z0-9_$]*.
func IsValidIdentifier(s string) bool {
	if s == "" || !IsIdentStart(s[0]) {
		return false
	}
	for i := 1; i < len(s); i++ {
		if !IsIdentChar(s[i]) {
			return false
		}
	}
	return true
}

// IsHidden reports whether an identifier is a hidden ("_"-prefixed) symbol
// per DATA MODEL: hidden symbols are allocated storage and aliased but not
// exported to the symbol table or header.
func IsHidden(name string) bool {
	return strings.HasPrefix(name, "_")
}
