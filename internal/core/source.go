package core

// source.go reads the people CSV into typed records.
//
// The input is decoded through a UTF-8 transformer that strips a leading
// byte order mark (common in files saved by Windows spreadsheet tools) and
// replaces invalid byte sequences with U+FFFD, so a single bad cell never
// aborts the parse.

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// Input column headers. Matching is case-insensitive.
const (
	ColName        = "Name"
	ColSurname     = "Surname"
	ColRealName    = "Real Name"
	ColGender      = "Gender"
	ColType        = "Type"
	ColNationality = "Nationality"
	ColHaveImage   = "Have Image [Y/N]"
)

// RequiredColumns lists every header the source must contain.
var RequiredColumns = []string{
	ColName, ColSurname, ColRealName, ColGender, ColType, ColNationality, ColHaveImage,
}

var (
	// ErrSourceNotFound is returned when the input file does not exist.
	ErrSourceNotFound = errors.New("source file not found")

	// ErrSourceFormat matches every *FormatError.
	ErrSourceFormat = errors.New("invalid source format")

	// ErrSourceTooLarge is returned when the input exceeds the size limit.
	ErrSourceTooLarge = errors.New("file too large")
)

// FormatError describes a structural problem in the input.
type FormatError struct {
	Line   int
	Column string
	Reason string
}

func (e *FormatError) Error() string {
	var b strings.Builder
	b.WriteString(ErrSourceFormat.Error())
	if e.Line > 0 {
		fmt.Fprintf(&b, ": line %d", e.Line)
	}
	if e.Column != "" {
		fmt.Fprintf(&b, ": column %q", e.Column)
	}
	b.WriteString(": ")
	b.WriteString(e.Reason)
	return b.String()
}

// Is reports whether target is ErrSourceFormat.
func (e *FormatError) Is(target error) bool {
	return target == ErrSourceFormat
}

// HeaderIndex maps lowercase column names to their position in a row.
type HeaderIndex map[string]int

// MakeHeaderIndex builds a HeaderIndex from a header row.
func MakeHeaderIndex(header []string) HeaderIndex {
	idx := make(HeaderIndex, len(header))
	for i, h := range header {
		key := strings.ToLower(CleanCell(h))
		if _, dup := idx[key]; !dup {
			idx[key] = i
		}
	}
	return idx
}

// cell returns the cleaned value of column col, or "" when the row is short.
func (h HeaderIndex) cell(row []string, col string) string {
	return CleanCell(h.raw(row, col))
}

// raw returns column col exactly as read.
func (h HeaderIndex) raw(row []string, col string) string {
	pos, ok := h[strings.ToLower(col)]
	if !ok || pos >= len(row) {
		return ""
	}
	return row[pos]
}

// ReadFile opens path and parses it with ParseRecords.
// maxSize <= 0 disables the size check. A path that cannot be opened or is
// not a regular file fails with ErrSourceNotFound.
func ReadFile(path string, maxSize int64) ([]PersonRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w at %s: %w", ErrSourceNotFound, path, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("%w at %s: %w", ErrSourceNotFound, path, err)
	}
	if !info.Mode().IsRegular() {
		return nil, fmt.Errorf("%w at %s: not a regular file", ErrSourceNotFound, path)
	}

	records, err := ParseRecords(f, maxSize)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return records, nil
}

// ParseRecords reads a CSV stream whose first non-empty row is the header.
// Empty rows are skipped. A missing required column or an empty Name cell
// fails the whole parse with a *FormatError.
func ParseRecords(r io.Reader, maxSize int64) ([]PersonRecord, error) {
	if maxSize > 0 {
		r = &limitedReader{r: r, remaining: maxSize}
	}

	reader := csv.NewReader(transform.NewReader(r, unicode.UTF8BOM.NewDecoder()))
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	var header HeaderIndex
	records := make([]PersonRecord, 0)

	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, wrapReadError(err)
		}

		if isEmptyRow(row) {
			continue
		}

		line, _ := reader.FieldPos(0)

		if header == nil {
			header = MakeHeaderIndex(row)
			for _, col := range RequiredColumns {
				if _, ok := header[strings.ToLower(col)]; !ok {
					return nil, &FormatError{Line: line, Column: col, Reason: "missing required column"}
				}
			}
			continue
		}

		rec, err := buildRecord(row, header, line)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}

	if header == nil {
		return nil, &FormatError{Reason: "empty file"}
	}

	return records, nil
}

func buildRecord(row []string, h HeaderIndex, line int) (PersonRecord, error) {
	name := h.cell(row, ColName)
	if name == "" {
		return PersonRecord{}, &FormatError{Line: line, Column: ColName, Reason: "empty required field"}
	}

	return PersonRecord{
		Line:          line,
		Name:          name,
		Surname:       ToPgText(h.cell(row, ColSurname)),
		RealName:      ToPgText(h.cell(row, ColRealName)),
		Gender:        ToPgText(h.cell(row, ColGender)),
		HasImage:      ParseHasImage(h.raw(row, ColHaveImage)),
		Types:         SplitTokens(h.cell(row, ColType)),
		Nationalities: SplitTokens(h.cell(row, ColNationality)),
	}, nil
}

func wrapReadError(err error) error {
	if errors.Is(err, ErrSourceTooLarge) {
		return err
	}
	var pe *csv.ParseError
	if errors.As(err, &pe) {
		if errors.Is(pe.Err, ErrSourceTooLarge) {
			return pe.Err
		}
		return &FormatError{Line: pe.Line, Reason: pe.Err.Error()}
	}
	return fmt.Errorf("read source: %w", err)
}

func isEmptyRow(row []string) bool {
	for _, v := range row {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

// limitedReader fails with ErrSourceTooLarge once more than remaining bytes
// have been read. io.LimitReader would silently truncate instead.
type limitedReader struct {
	r         io.Reader
	remaining int64
}

func (l *limitedReader) Read(p []byte) (int, error) {
	if l.remaining < 0 {
		return 0, ErrSourceTooLarge
	}
	if int64(len(p)) > l.remaining+1 {
		p = p[:l.remaining+1]
	}
	n, err := l.r.Read(p)
	l.remaining -= int64(n)
	if l.remaining < 0 {
		return 0, ErrSourceTooLarge
	}
	return n, err
}
