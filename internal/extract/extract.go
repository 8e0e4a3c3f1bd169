// Package extract reads flat CSV files into typed datasets. It is a
// collaborator of the pipeline core: the orchestrator only sees the
// read_table contract and the SourceNotFound / DecodeError taxonomy.
package extract

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/transform"

	"dwetl/internal/dataset"
)

// SourceNotFoundError reports a source file that does not exist.
type SourceNotFoundError struct {
	Path string
}

func (e *SourceNotFoundError) Error() string {
	return fmt.Sprintf("source not found: %s", e.Path)
}

// DecodeError reports input that does not decode under the declared encoding,
// or an unsupported encoding name.
type DecodeError struct {
	Path     string
	Encoding string
	Err      error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode %s as %s: %v", e.Path, e.Encoding, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// utf8BOM is stripped from the first header cell if present.
const utf8BOM = "\uFEFF"

// Reader extracts CSV files. The zero value is usable; Logger defaults to a
// no-op and Comma to ','.
type Reader struct {
	Logger *zap.Logger
	Comma  rune
}

// ReadTable reads the file at path into a dataset. Header names become the
// column set (trimmed, BOM-stripped); each field is typed independently via
// dataset.Infer. Rows whose width differs from the header are skipped with a
// warning, mirroring the soft-fail behavior of the CSV intake elsewhere in
// this codebase; file-level problems are fatal.
//
// Supported encodings: "utf-8" (default), "latin-1"/"iso-8859-1", and
// "windows-1252"/"cp1252".
func (r *Reader) ReadTable(path, encodingName string) (*dataset.Dataset, error) {
	logger := r.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, &SourceNotFoundError{Path: path}
		}
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	decoded, err := decodeReader(f, encodingName)
	if err != nil {
		return nil, &DecodeError{Path: path, Encoding: canonicalEncoding(encodingName), Err: err}
	}

	cr := csv.NewReader(decoded)
	if r.Comma != 0 {
		cr.Comma = r.Comma
	}
	cr.FieldsPerRecord = -1 // width enforced after read, soft-fail per row
	cr.TrimLeadingSpace = false

	header, err := cr.Read()
	if err != nil {
		return nil, decodeOrReadErr(path, encodingName, "read header", err)
	}
	cols := make([]string, len(header))
	for i, h := range header {
		h = strings.TrimPrefix(h, utf8BOM)
		cols[i] = strings.TrimSpace(h)
	}

	ds, err := dataset.New(cols)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	skipped := 0
	row := make([]dataset.Value, len(cols))
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, decodeOrReadErr(path, encodingName, fmt.Sprintf("line %d", line), err)
		}
		if len(rec) != len(cols) {
			logger.Warn("skipping row with unexpected field count",
				zap.String("source", path),
				zap.Int("line", line),
				zap.Int("fields", len(rec)),
				zap.Int("want", len(cols)))
			skipped++
			continue
		}
		for i, raw := range rec {
			row[i] = dataset.Infer(raw)
		}
		if err := ds.AppendRow(row); err != nil {
			return nil, fmt.Errorf("%s line %d: %w", path, line, err)
		}
	}
	if skipped > 0 {
		logger.Warn("rows skipped during extraction",
			zap.String("source", path),
			zap.Int("skipped", skipped))
	}
	return ds, nil
}

// decodeReader wraps f with a decoder for the named encoding. For UTF-8 a
// validator is installed so a mis-declared encoding surfaces as DecodeError
// instead of garbage columns.
func decodeReader(f io.Reader, name string) (io.Reader, error) {
	switch canonicalEncoding(name) {
	case "utf-8":
		return transform.NewReader(f, encoding.UTF8Validator), nil
	case "latin-1":
		return transform.NewReader(f, charmap.ISO8859_1.NewDecoder()), nil
	case "windows-1252":
		return transform.NewReader(f, charmap.Windows1252.NewDecoder()), nil
	default:
		return nil, fmt.Errorf("unsupported encoding %q", name)
	}
}

func canonicalEncoding(name string) string {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "utf-8", "utf8":
		return "utf-8"
	case "latin-1", "latin1", "iso-8859-1", "iso8859-1":
		return "latin-1"
	case "windows-1252", "cp1252":
		return "windows-1252"
	default:
		return strings.ToLower(strings.TrimSpace(name))
	}
}

// decodeOrReadErr distinguishes transformer (encoding) failures from CSV
// syntax problems so the right taxonomy error reaches the orchestrator.
func decodeOrReadErr(path, encodingName, ctxMsg string, err error) error {
	if errors.Is(err, encoding.ErrInvalidUTF8) {
		return &DecodeError{Path: path, Encoding: canonicalEncoding(encodingName), Err: err}
	}
	return fmt.Errorf("%s %s: %w", path, ctxMsg, err)
}
