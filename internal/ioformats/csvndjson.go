package ioformats

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"heiten-crawler/internal/models"
)

var ErrSchemaMissing = errors.New("column schema missing")

// ReadSchema reads one column name per line. Blank lines are skipped and a
// leading UTF-8 BOM is ignored.
func ReadSchema(path string) (models.Schema, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrSchemaMissing, path)
		}
		return nil, err
	}
	defer f.Close()

	var out models.Schema
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		col := strings.TrimSpace(strings.TrimPrefix(sc.Text(), "\ufeff"))
		if col == "" {
			continue
		}
		out = append(out, col)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: %s is empty", ErrSchemaMissing, path)
	}
	return out, nil
}

type Mode int

const (
	Create Mode = iota
	Append
)

// ModeForPage picks create for a crawl starting at page 1, append otherwise.
func ModeForPage(begin int) Mode {
	if begin == 1 {
		return Create
	}
	return Append
}

func (m Mode) String() string {
	if m == Append {
		return "append"
	}
	return "create"
}

const (
	FormatCSV    = "csv"
	FormatNDJSON = "ndjson"
)

// Sink receives records as they are harvested. Writes are buffered until
// Flush.
type Sink interface {
	Write(rec models.Record) error
	Flush() error
	Close() error
}

// OpenSink opens path for the given format. Create truncates the file and,
// for csv, writes the header row; Append keeps what is there.
func OpenSink(path, format string, mode Mode, schema models.Schema) (Sink, error) {
	if len(schema) == 0 {
		return nil, ErrSchemaMissing
	}
	if format == "" {
		format = FormatCSV
	}
	if format != FormatCSV && format != FormatNDJSON {
		return nil, fmt.Errorf("unknown output format %q", format)
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create output directory: %w", err)
		}
	}

	flags := os.O_CREATE | os.O_WRONLY | os.O_TRUNC
	if mode == Append {
		flags = os.O_CREATE | os.O_WRONLY | os.O_APPEND
	}
	f, err := os.OpenFile(path, flags, 0644)
	if err != nil {
		return nil, err
	}
	base := fileSink{f: f, w: bufio.NewWriter(f), schema: schema}

	if format == FormatNDJSON {
		enc := json.NewEncoder(base.w)
		enc.SetEscapeHTML(false)
		return &ndjsonSink{fileSink: base, enc: enc}, nil
	}
	s := &delimitedSink{fileSink: base}
	if mode == Create {
		if err := s.writeLine(schema); err != nil {
			f.Close()
			return nil, err
		}
	}
	return s, nil
}

type fileSink struct {
	f      *os.File
	w      *bufio.Writer
	schema models.Schema
}

func (s *fileSink) Flush() error {
	if err := s.w.Flush(); err != nil {
		return err
	}
	return s.f.Sync()
}

func (s *fileSink) Close() error {
	ferr := s.Flush()
	cerr := s.f.Close()
	return errors.Join(ferr, cerr)
}

// Delimiter is the field separator of the csv output. Values never contain
// it or a line break; see Sanitize.
const Delimiter = ","

const (
	delimiterSubstitute = "、"
	lineBreakSubstitute = " / "
)

var sanitizer = strings.NewReplacer(
	Delimiter, delimiterSubstitute,
	"\r\n", lineBreakSubstitute,
	"\n", lineBreakSubstitute,
	"\r", lineBreakSubstitute,
)

// Sanitize makes a value safe for an unquoted delimited line.
func Sanitize(v string) string {
	return sanitizer.Replace(v)
}

type delimitedSink struct {
	fileSink
}

func (s *delimitedSink) Write(rec models.Record) error {
	return s.writeLine(rec.Project(s.schema))
}

func (s *delimitedSink) writeLine(values []string) error {
	for i, v := range values {
		if i > 0 {
			if _, err := s.w.WriteString(Delimiter); err != nil {
				return err
			}
		}
		if _, err := s.w.WriteString(Sanitize(v)); err != nil {
			return err
		}
	}
	return s.w.WriteByte('\n')
}

type ndjsonSink struct {
	fileSink
	enc *json.Encoder
}

// Write emits the schema columns only, keyed by column name.
func (s *ndjsonSink) Write(rec models.Record) error {
	row := make(map[string]string, len(s.schema))
	for i, v := range rec.Project(s.schema) {
		row[s.schema[i]] = v
	}
	return s.enc.Encode(row)
}

// ParseRow splits a delimited output line back into column values keyed by
// schema order. It is the inverse of the csv sink modulo Sanitize.
func ParseRow(line string, schema models.Schema) (map[string]string, error) {
	parts := strings.Split(strings.TrimRight(line, "\n"), Delimiter)
	if len(parts) != len(schema) {
		return nil, fmt.Errorf("row has %d fields, schema has %d", len(parts), len(schema))
	}
	out := make(map[string]string, len(schema))
	for i, col := range schema {
		out[col] = parts[i]
	}
	return out, nil
}
