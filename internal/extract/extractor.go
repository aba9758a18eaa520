// Package extract streams MaStR XML exports into embedded records.
package extract

import (
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"iter"
	"os"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"
	"go.uber.org/zap"

	"github.com/kailas-cloud/mastrvec/internal/domain"
	"github.com/kailas-cloud/mastrvec/internal/domain/record"
	"github.com/kailas-cloud/mastrvec/internal/domain/value"
	"github.com/kailas-cloud/mastrvec/internal/metrics"
)

// IDStrategy selects how record IDs are assigned.
type IDStrategy string

// ID strategies.
const (
	// IDFile numbers elements 1..n within each file. IDs collide across files.
	IDFile IDStrategy = "file"
	// IDHash derives a stable 63-bit ID from the file's relative path and the element ordinal.
	IDHash IDStrategy = "hash"
)

const progressEvery = 100

// Embedder produces a vector for the combined text of one element.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Source identifies one XML file.
type Source struct {
	Path       string
	Rel        string // path relative to the data directory; feeds hash IDs
	Collection string
}

// Extractor turns XML files into records.
type Extractor struct {
	embedder Embedder
	ids      IDStrategy
	logger   *zap.Logger
}

// New creates an Extractor.
func New(embedder Embedder, ids IDStrategy, logger *zap.Logger) *Extractor {
	if ids == "" {
		ids = IDFile
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Extractor{embedder: embedder, ids: ids, logger: logger}
}

// Records lazily yields one record per top-level element under the document root.
// Elements whose embedding fails are logged and skipped. A parse error, a dimension mismatch
// or context cancellation is yielded once and ends the sequence; callers should discard
// records already received from that file.
func (e *Extractor) Records(ctx context.Context, src Source) iter.Seq2[record.Record, error] {
	return func(yield func(record.Record, error) bool) {
		f, err := os.Open(src.Path)
		if err != nil {
			yield(record.Record{}, fmt.Errorf("open %s: %w", src.Path, err))
			return
		}
		defer f.Close()

		e.stream(ctx, src, f, yield)
	}
}

func (e *Extractor) stream(ctx context.Context, src Source, r io.Reader, yield func(record.Record, error) bool) {
	log := e.logger.With(zap.String("file", src.Rel), zap.String("collection", src.Collection))
	d := newDecoder(r)

	fail := func(err error) {
		yield(record.Record{}, fmt.Errorf("parse %s: %w", src.Rel, err))
	}

	if err := skipToRoot(d); err != nil {
		fail(err)
		return
	}

	ordinal, emitted := 0, 0
	for {
		tok, err := d.Token()
		if err != nil {
			if errors.Is(err, io.EOF) {
				err = fmt.Errorf("root element not closed: %w", io.ErrUnexpectedEOF)
			}
			fail(err)
			return
		}

		switch t := tok.(type) {
		case xml.EndElement:
			// Root closed; anything after it must still be well-formed.
			if err := drain(d); err != nil {
				fail(err)
				return
			}
			log.Info("XML processing finished", zap.Int("elements", ordinal), zap.Int("records", emitted))
			return
		case xml.StartElement:
			n, err := readNode(d, t)
			if err != nil {
				fail(err)
				return
			}
			ordinal++
			if err := ctx.Err(); err != nil {
				yield(record.Record{}, err)
				return
			}

			rec, err := e.build(ctx, src, n, ordinal)
			if err != nil {
				if errors.Is(err, domain.ErrDimensionMismatch) || ctx.Err() != nil {
					yield(record.Record{}, fmt.Errorf("%s element %d: %w", src.Rel, ordinal, err))
					return
				}
				log.Error("Skipping element", zap.Int("element", ordinal), zap.Error(err))
				metrics.RecordsSkippedTotal.WithLabelValues(src.Collection, "embedding_failed").Inc()
			} else {
				emitted++
				if !yield(rec, nil) {
					return
				}
			}

			if ordinal%progressEvery == 0 {
				log.Info("Records processed", zap.Int("elements", ordinal))
			}
		}
	}
}

// build converts one top-level element into a record.
func (e *Extractor) build(ctx context.Context, src Source, n node, ordinal int) (record.Record, error) {
	text := combinedText(n)
	vec, err := e.embedder.Embed(ctx, text)
	if err != nil {
		return record.Record{}, err
	}

	rec := record.Record{
		ID:       e.id(src.Rel, ordinal),
		Fields:   make(map[string]any, len(n.children)),
		Vector:   vec,
		Metadata: make(map[string]string, len(n.children)),
		Text:     text,
	}
	for _, c := range n.children {
		t := strings.TrimSpace(c.text)
		if t == "" {
			continue
		}
		rec.Metadata[c.tag] = t
		name := strings.ToLower(c.tag)
		if record.IsReserved(name) {
			continue
		}
		rec.Fields[name] = value.Convert(t)
	}
	return rec, nil
}

func (e *Extractor) id(rel string, ordinal int) int64 {
	if e.ids == IDHash {
		h := xxhash.Sum64String(rel + "#" + strconv.Itoa(ordinal))
		return int64(h >> 1)
	}
	return int64(ordinal)
}

// skipToRoot advances past the prolog to the first start element.
func skipToRoot(d *xml.Decoder) error {
	for {
		tok, err := d.Token()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return errors.New("no root element")
			}
			return err
		}
		if _, ok := tok.(xml.StartElement); ok {
			return nil
		}
	}
}

// drain checks the epilog: only comments, processing instructions and whitespace may follow the root.
func drain(d *xml.Decoder) error {
	for {
		tok, err := d.Token()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			return fmt.Errorf("unexpected element <%s> after root", t.Name.Local)
		case xml.CharData:
			if len(strings.TrimSpace(string(t))) > 0 {
				return errors.New("unexpected text after root")
			}
		}
	}
}
