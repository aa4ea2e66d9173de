// Package testutil builds PDF fixtures for tests.
package testutil

import (
	"bytes"
	"fmt"
	"testing"

	"github.com/jung-kurt/gofpdf"
)

// FoxText is the sentence printed by FoxPDF.
const FoxText = "The quick brown fox jumps over the lazy dog"

// PDF renders one page per entry; each entry is a list of lines printed top
// to bottom. An entry with no lines gets a drawn rectangle and no text.
func PDF(t testing.TB, pages ...[]string) []byte {
	t.Helper()

	doc := gofpdf.New("P", "mm", "A4", "")
	doc.SetCompression(false)
	for _, lines := range pages {
		doc.AddPage()
		doc.SetFont("Helvetica", "", 12)
		if len(lines) == 0 {
			doc.Rect(20, 20, 80, 40, "D")
			continue
		}
		for i, line := range lines {
			doc.Text(20, float64(30+i*15), line)
		}
	}

	var buf bytes.Buffer
	if err := doc.Output(&buf); err != nil {
		t.Fatalf("failed to render PDF fixture: %v", err)
	}
	return buf.Bytes()
}

// TextPDF renders one single-line page per argument.
func TextPDF(t testing.TB, pages ...string) []byte {
	t.Helper()
	lines := make([][]string, len(pages))
	for i, p := range pages {
		lines[i] = []string{p}
	}
	return PDF(t, lines...)
}

// FoxPDF is a one-page PDF containing FoxText.
func FoxPDF(t testing.TB) []byte {
	t.Helper()
	return TextPDF(t, FoxText)
}

// ImageOnlyPDF renders n pages without any text.
func ImageOnlyPDF(t testing.TB, n int) []byte {
	t.Helper()
	return PDF(t, make([][]string, n)...)
}

// SameRowPDF renders one page with two fragments printed on the same line.
func SameRowPDF(t testing.TB, left, right string) []byte {
	t.Helper()

	doc := gofpdf.New("P", "mm", "A4", "")
	doc.SetCompression(false)
	doc.AddPage()
	doc.SetFont("Helvetica", "", 12)
	doc.Text(20, 30, left)
	doc.Text(120, 30, right)

	var buf bytes.Buffer
	if err := doc.Output(&buf); err != nil {
		t.Fatalf("failed to render PDF fixture: %v", err)
	}
	return buf.Bytes()
}

// ContentPDF builds a one-page PDF whose content stream is exactly content.
// The page declares Helvetica as /F1, so content can position text with Tm
// or Td and draw it in any order.
func ContentPDF(t testing.TB, content string) []byte {
	t.Helper()

	objects := []string{
		"<< /Type /Catalog /Pages 2 0 R >>",
		"<< /Type /Pages /Kids [3 0 R] /Count 1 >>",
		"<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Resources << /Font << /F1 4 0 R >> >> /Contents 5 0 R >>",
		"<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica /Encoding /WinAnsiEncoding >>",
		fmt.Sprintf("<< /Length %d >>\nstream\n%s\nendstream", len(content), content),
	}

	var buf bytes.Buffer
	buf.WriteString("%PDF-1.4\n")
	offsets := make([]int, len(objects))
	for i, obj := range objects {
		offsets[i] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", i+1, obj)
	}
	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n0000000000 65535 f \n", len(objects)+1)
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(objects)+1, xref)
	return buf.Bytes()
}
