// Package extract turns an uploaded PDF into a single linear text string.
//
// Pages are kept in document order and separated by a newline. Within a page
// the text fragments (one per show-text operation) are kept in the order the
// content stream draws them and joined by a single space. No other
// whitespace normalization happens.
package extract

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

// ErrExtraction marks every failure to read text out of a document.
var ErrExtraction = errors.New("pdf extraction failed")

// Stats describes what an extraction found.
type Stats struct {
	Pages      int
	EmptyPages int
	Fragments  int
}

// Extractor validates PDFs with pdfcpu and reads their text with ledongthuc/pdf.
type Extractor struct{}

// New creates an Extractor. pdfcpu is switched to its in-memory default
// configuration so that no config directory is created on disk.
func New() *Extractor {
	api.DisableConfigDir()
	return &Extractor{}
}

type outcome struct {
	text  string
	stats Stats
	err   error
}

// Extract returns the flattened text of data.
func (e *Extractor) Extract(ctx context.Context, data []byte) (string, error) {
	text, _, err := e.ExtractWithStats(ctx, data)
	return text, err
}

// ExtractWithStats returns the flattened text of data along with page and
// fragment counts. The parser runs on its own goroutine and reports exactly
// once; a parser panic is reported as ErrExtraction.
func (e *Extractor) ExtractWithStats(ctx context.Context, data []byte) (string, Stats, error) {
	if len(data) == 0 {
		return "", Stats{}, fmt.Errorf("%w: empty document", ErrExtraction)
	}

	done := make(chan outcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- outcome{err: fmt.Errorf("%w: parser panic: %v", ErrExtraction, r)}
			}
		}()
		text, stats, err := e.extract(data)
		done <- outcome{text: text, stats: stats, err: err}
	}()

	select {
	case out := <-done:
		return out.text, out.stats, out.err
	case <-ctx.Done():
		return "", Stats{}, fmt.Errorf("%w: %w", ErrExtraction, ctx.Err())
	}
}

func (e *Extractor) extract(data []byte) (string, Stats, error) {
	if err := validate(data); err != nil {
		return "", Stats{}, err
	}

	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", Stats{}, fmt.Errorf("%w: failed to open PDF: %v", ErrExtraction, err)
	}

	stats := Stats{Pages: r.NumPage()}
	pages := make([]string, 0, stats.Pages)
	for i := 1; i <= stats.Pages; i++ {
		fragments, err := pageFragments(r.Page(i))
		if err != nil {
			return "", Stats{}, fmt.Errorf("%w: page %d: %v", ErrExtraction, i, err)
		}
		if len(fragments) == 0 {
			stats.EmptyPages++
		}
		stats.Fragments += len(fragments)
		pages = append(pages, strings.Join(fragments, " "))
	}

	// A document with no text at all yields "", not a run of blank lines.
	if stats.Fragments == 0 {
		return "", stats, nil
	}
	return strings.Join(pages, "\n"), stats, nil
}

// pageFragments walks the page content streams and returns one fragment per
// show-text operator, in drawing order. Positioning operators are ignored.
func pageFragments(p pdf.Page) (fragments []string, err error) {
	if p.V.IsNull() {
		return nil, nil
	}
	defer func() {
		if r := recover(); r != nil {
			fragments, err = nil, fmt.Errorf("content stream: %v", r)
		}
	}()

	encoders := make(map[string]pdf.TextEncoding)
	for _, name := range p.Fonts() {
		encoders[name] = p.Font(name).Encoder()
	}

	// enc is nil until the first Tf and for fonts the page does not declare.
	var enc pdf.TextEncoding
	decode := func(raw string) string {
		if enc == nil {
			return raw
		}
		return enc.Decode(raw)
	}
	show := func(s string) {
		if s != "" {
			fragments = append(fragments, s)
		}
	}

	interpret := func(stk *pdf.Stack, op string) {
		args := make([]pdf.Value, stk.Len())
		for i := len(args) - 1; i >= 0; i-- {
			args[i] = stk.Pop()
		}
		switch op {
		case "Tf":
			if len(args) == 2 {
				enc = encoders[args[0].Name()]
			}
		case "Tj", "'":
			if len(args) == 1 {
				show(decode(args[0].RawString()))
			}
		case "\"":
			if len(args) == 3 {
				show(decode(args[2].RawString()))
			}
		case "TJ":
			if len(args) != 1 {
				return
			}
			var sb strings.Builder
			for i := 0; i < args[0].Len(); i++ {
				if item := args[0].Index(i); item.Kind() == pdf.String {
					sb.WriteString(decode(item.RawString()))
				}
			}
			show(sb.String())
		}
	}

	contents := p.V.Key("Contents")
	switch contents.Kind() {
	case pdf.Null:
		return nil, nil
	case pdf.Array:
		// Graphics state, the current font included, carries across streams.
		for i := 0; i < contents.Len(); i++ {
			pdf.Interpret(contents.Index(i), interpret)
		}
	default:
		pdf.Interpret(contents, interpret)
	}
	return fragments, nil
}

// validate runs pdfcpu's relaxed structural validation. The configuration is
// built per call because pdfcpu records the current command on it.
func validate(data []byte) error {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	if err := api.Validate(bytes.NewReader(data), conf); err != nil {
		return fmt.Errorf("%w: invalid PDF: %v", ErrExtraction, err)
	}
	return nil
}

// IsPDF reports whether data starts with the PDF magic bytes.
func IsPDF(data []byte) bool {
	return bytes.HasPrefix(data, []byte("%PDF-"))
}
