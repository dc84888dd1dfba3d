// Package export writes device records as display text, the format a user
// saves and reloads, optionally zstd compressed.
package export

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/klauspost/compress/zstd"

	"github.com/gosuda/logcatd/internal/domain"
	"github.com/gosuda/logcatd/internal/logcat"
)

// Encoding selects the byte encoding of an export.
type Encoding string

const (
	Plain Encoding = "plain"
	Zstd  Encoding = "zstd"
)

// ErrUnknownEncoding is returned for an Encoding other than Plain or Zstd.
var ErrUnknownEncoding = errors.New("export: unknown encoding") //nolint:gochecknoglobals // sentinel error

// ParseEncoding maps a user supplied name onto an Encoding. Empty selects
// Plain.
func ParseEncoding(name string) (Encoding, error) {
	switch Encoding(strings.ToLower(name)) {
	case "", Plain:
		return Plain, nil
	case Zstd:
		return Zstd, nil
	default:
		return "", fmt.Errorf("export.ParseEncoding(%q): %w", name, ErrUnknownEncoding)
	}
}

// ContentType returns the media type of an export in enc.
func (enc Encoding) ContentType() string {
	if enc == Zstd {
		return "application/zstd"
	}
	return "text/plain; charset=utf-8"
}

// Extension returns the file name suffix of an export in enc.
func (enc Encoding) Extension() string {
	if enc == Zstd {
		return ".log.zst"
	}
	return ".log"
}

// Write renders recs with f, one record per line, and writes them to w.
// Multi-line messages keep their embedded newlines.
func Write(w io.Writer, recs []domain.Record, f *logcat.Formatter, enc Encoding) error {
	switch enc {
	case Plain:
		return writeLines(w, recs, f)
	case Zstd:
		zw, err := zstd.NewWriter(w)
		if err != nil {
			return fmt.Errorf("export.Write: %w", err)
		}
		if err := writeLines(zw, recs, f); err != nil {
			zw.Close()
			return err
		}
		if err := zw.Close(); err != nil {
			return fmt.Errorf("export.Write: %w", err)
		}
		return nil
	default:
		return fmt.Errorf("export.Write: %w", ErrUnknownEncoding)
	}
}

func writeLines(w io.Writer, recs []domain.Record, f *logcat.Formatter) error {
	bw := bufio.NewWriter(w)
	for _, rec := range recs {
		if _, err := bw.WriteString(f.Format(rec)); err != nil {
			return fmt.Errorf("export.Write: %w", err)
		}
		if err := bw.WriteByte('\n'); err != nil {
			return fmt.Errorf("export.Write: %w", err)
		}
	}
	if err := bw.Flush(); err != nil {
		return fmt.Errorf("export.Write: %w", err)
	}
	return nil
}

// Read parses an export written with the same formatter options. A line the
// formatter cannot parse continues the message of the record before it;
// such lines ahead of the first record are dropped.
func Read(r io.Reader, f *logcat.Formatter, enc Encoding) ([]domain.Record, error) {
	switch enc {
	case Plain:
		return readLines(r, f)
	case Zstd:
		zr, err := zstd.NewReader(r)
		if err != nil {
			return nil, fmt.Errorf("export.Read: %w", err)
		}
		defer zr.Close()
		return readLines(zr, f)
	default:
		return nil, fmt.Errorf("export.Read: %w", ErrUnknownEncoding)
	}
}

func readLines(r io.Reader, f *logcat.Formatter) ([]domain.Record, error) {
	var (
		recs []domain.Record
		msg  strings.Builder
	)
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for sc.Scan() {
		line := sc.Text()
		if rec, ok := f.Parse(line); ok {
			if len(recs) > 0 {
				recs[len(recs)-1].Message = msg.String()
			}
			recs = append(recs, rec)
			msg.Reset()
			msg.WriteString(rec.Message)
			continue
		}
		if len(recs) == 0 {
			continue
		}
		msg.WriteByte('\n')
		msg.WriteString(line)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("export.Read: %w", err)
	}
	if len(recs) > 0 {
		recs[len(recs)-1].Message = msg.String()
	}
	return recs, nil
}
