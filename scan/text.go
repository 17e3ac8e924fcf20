package scan

import (
	"bytes"
	"path/filepath"
	"strings"
)

// Prefix sets for TextScanner.
var (
	PrefixesGo     = []string{"func "}
	PrefixesPython = []string{"def ", "  def ", "    def ", "\tdef ", "class ", "  class ", "    class ", "\tclass "}
	PrefixesPerl   = []string{"package ", "sub "}
	PrefixesSh     = []string{"function "}
	PrefixesSQL    = []string{"INSERT INTO ", "DROP TABLE ", "CREATE TABLE "}
	PrefixesPDF    = []string{"<<", "stream"}
	PrefixesMail   = []string{"From ", "--"}
)

var prefixesByExt = map[string][]string{
	"go":   PrefixesGo,
	"py":   PrefixesPython,
	"pl":   PrefixesPerl,
	"pm":   PrefixesPerl,
	"sh":   PrefixesSh,
	"sql":  PrefixesSQL,
	"pdf":  PrefixesPDF,
	"mbox": PrefixesMail,
	"eml":  PrefixesMail,
}

// TextScanner reports the offset of the start of each line that begins
// with one of its prefixes.
type TextScanner struct {
	prefixes [][]byte
	maxLen   int

	offset    int64
	lineStart int64
	head      []byte
	collect   bool
}

// NewTextScanner returns a scanner for the given line prefixes.
func NewTextScanner(prefixes []string) *TextScanner {
	s := &TextScanner{collect: true}
	for _, p := range prefixes {
		if p == "" {
			continue
		}
		s.prefixes = append(s.prefixes, []byte(p))
		if len(p) > s.maxLen {
			s.maxLen = len(p)
		}
	}
	s.head = make([]byte, 0, s.maxLen)
	return s
}

// Lag is the longest prefix: a matching line is reported once its
// prefix has been seen.
func (s *TextScanner) Lag() int {
	return s.maxLen
}

func (s *TextScanner) Scan(buf []byte) (offsets []int64) {
	for i, b := range buf {
		pos := s.offset + int64(i)
		if b == '\n' {
			s.lineStart = pos + 1
			s.head = s.head[:0]
			s.collect = true
			continue
		}
		if !s.collect {
			continue
		}
		s.head = append(s.head, b)
		if s.matches() {
			offsets = append(offsets, s.lineStart)
			s.collect = false
		} else if len(s.head) >= s.maxLen {
			s.collect = false
		}
	}
	s.offset += int64(len(buf))
	return
}

func (s *TextScanner) matches() bool {
	for _, p := range s.prefixes {
		if bytes.HasPrefix(s.head, p) {
			return true
		}
	}
	return false
}

// ForFilename returns a scanner suited to the file's extension, or nil.
func ForFilename(name string) OffsetScanner {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(name)), ".")
	prefixes, ok := prefixesByExt[ext]
	if !ok {
		return nil
	}
	return NewTextScanner(prefixes)
}
