// Package csvio reads and writes the dashboard's CSV formats: the sales
// export and the bulk import sheet.
package csvio

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var (
	ErrEmptyFile     = errors.New("csvio: empty file")
	ErrMissingHeader = errors.New("csvio: missing header row")
	ErrMissingColumn = errors.New("csvio: missing required column")
)

// DateLayout is the minute-resolution timestamp used in both formats.
const DateLayout = "2006-01-02 15:04"

// newReader strips a UTF-8 BOM and returns a tolerant csv reader.
func newReader(r io.Reader) (*csv.Reader, error) {
	br := bufio.NewReader(r)
	head, err := br.Peek(3)
	if err != nil && err != io.EOF {
		return nil, fmt.Errorf("csvio: read: %w", err)
	}
	if len(head) == 0 {
		return nil, ErrEmptyFile
	}
	if len(head) >= 3 && head[0] == 0xEF && head[1] == 0xBB && head[2] == 0xBF {
		_, _ = br.Discard(3)
	}
	cr := csv.NewReader(br)
	cr.LazyQuotes = true
	cr.TrimLeadingSpace = true
	cr.FieldsPerRecord = -1
	return cr, nil
}

// readHeader maps lower-cased header names to column indexes and checks
// that every required column is present.
func readHeader(cr *csv.Reader, required []string) (map[string]int, error) {
	record, err := cr.Read()
	if err == io.EOF {
		return nil, ErrMissingHeader
	}
	if err != nil {
		return nil, fmt.Errorf("csvio: read header: %w", err)
	}
	cols := make(map[string]int, len(record))
	for i, h := range record {
		cols[strings.ToLower(strings.TrimSpace(h))] = i
	}
	var missing []string
	for _, name := range required {
		if _, ok := cols[strings.ToLower(name)]; !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrMissingColumn, strings.Join(missing, ", "))
	}
	return cols, nil
}

func field(record []string, cols map[string]int, name string) string {
	i, ok := cols[strings.ToLower(name)]
	if !ok || i >= len(record) {
		return ""
	}
	return strings.TrimSpace(record[i])
}

// lineOf returns the input line a record or read error started on.
func lineOf(cr *csv.Reader, record []string, err error) int {
	var pe *csv.ParseError
	if errors.As(err, &pe) {
		return pe.StartLine
	}
	if len(record) > 0 {
		line, _ := cr.FieldPos(0)
		return line
	}
	return 0
}

func blank(record []string) bool {
	for _, f := range record {
		if strings.TrimSpace(f) != "" {
			return false
		}
	}
	return true
}

// FileName returns "<slug>-sales.csv" for a view title.
func FileName(title string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, title)
	if err != nil {
		folded = title
	}
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(folded) {
		switch {
		case r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)):
			b.WriteRune(r)
			dash = false
		case b.Len() > 0 && !dash:
			b.WriteByte('-')
			dash = true
		}
	}
	slug := strings.TrimSuffix(b.String(), "-")
	if slug == "" {
		slug = "dashboard"
	}
	return slug + "-sales.csv"
}
