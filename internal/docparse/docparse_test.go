package docparse

import (
	"archive/zip"
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildDOCX(t *testing.T, documentXML string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)

	w, err := zw.Create("[Content_Types].xml")
	require.NoError(t, err)
	_, err = w.Write([]byte(`<?xml version="1.0"?><Types/>`))
	require.NoError(t, err)

	w, err = zw.Create("word/document.xml")
	require.NoError(t, err)
	_, err = w.Write([]byte(documentXML))
	require.NoError(t, err)

	require.NoError(t, zw.Close())
	return buf.Bytes()
}

// buildPDF writes a one-page PDF showing text in Helvetica, with a correct
// cross-reference table.
func buildPDF(text string) []byte {
	content := fmt.Sprintf("BT /F1 12 Tf 72 712 Td (%s) Tj ET", text)
	objects := []string{
		"<< /Type /Catalog /Pages 2 0 R >>",
		"<< /Type /Pages /Kids [3 0 R] /Count 1 >>",
		"<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Contents 4 0 R /Resources << /Font << /F1 5 0 R >> >> >>",
		fmt.Sprintf("<< /Length %d >>\nstream\n%s\nendstream", len(content), content),
		"<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica /Encoding /WinAnsiEncoding >>",
	}

	var buf bytes.Buffer
	buf.WriteString("%PDF-1.4\n")
	offsets := make([]int, len(objects))
	for i, obj := range objects {
		offsets[i] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", i+1, obj)
	}

	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n", len(objects)+1)
	buf.WriteString("0000000000 65535 f \n")
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(objects)+1, xref)
	return buf.Bytes()
}

func TestExtractBytes_Text(t *testing.T) {
	got, err := ExtractBytes("notes.TXT", []byte("Sleeps 9h\nEats rice"))
	require.NoError(t, err)
	assert.Equal(t, "Sleeps 9h\nEats rice", got)

	got, err = ExtractBytes("summary.md", []byte("# WISC\nok"))
	require.NoError(t, err)
	assert.Equal(t, "# WISC\nok", got)
}

func TestExtractBytes_InvalidUTF8Dropped(t *testing.T) {
	got, err := ExtractBytes("notes.txt", []byte("iron\xff\xfe level"))
	require.NoError(t, err)
	assert.Equal(t, "iron level", got)
}

func TestExtractBytes_DOCX(t *testing.T) {
	doc := `<?xml version="1.0" encoding="UTF-8"?>
<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main">
  <w:body>
    <w:p><w:r><w:t>Conners 3 summary</w:t></w:r></w:p>
    <w:p><w:r><w:t xml:space="preserve">Attention: </w:t></w:r><w:r><w:t>elevated</w:t></w:r></w:p>
    <w:p><w:r><w:t>Score</w:t><w:tab/><w:t>72</w:t></w:r></w:p>
  </w:body>
</w:document>`

	got, err := ExtractBytes("conners.docx", buildDOCX(t, doc))
	require.NoError(t, err)
	assert.Equal(t, "Conners 3 summary\nAttention: elevated\nScore\t72", got)
}

func TestExtractBytes_DOCXMissingDocument(t *testing.T) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	_, err := zw.Create("other.xml")
	require.NoError(t, err)
	require.NoError(t, zw.Close())

	_, err = ExtractBytes("empty.docx", buf.Bytes())
	assert.Error(t, err)
}

func TestExtractBytes_DOCXNotZip(t *testing.T) {
	_, err := ExtractBytes("fake.docx", []byte("plain text"))
	assert.Error(t, err)
}

func TestExtractBytes_PDF(t *testing.T) {
	got, err := ExtractBytes("labs.pdf", buildPDF("Ferritin 9 ng per mL"))
	require.NoError(t, err)
	assert.Contains(t, got, "Ferritin 9 ng per mL")
}

func TestExtractBytes_PDFCorrupt(t *testing.T) {
	_, err := ExtractBytes("labs.pdf", []byte("%PDF-1.4 truncated"))
	assert.Error(t, err)
}

func TestExtractBytes_Unsupported(t *testing.T) {
	for _, name := range []string{"scan.png", "report.doc", "noext"} {
		_, err := ExtractBytes(name, []byte("x"))
		assert.ErrorIs(t, err, ErrUnsupported, name)
	}
}

func TestExtract_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "answers.txt")
	require.NoError(t, os.WriteFile(path, []byte("Picky with textures"), 0o644))

	got, err := Extract(path)
	require.NoError(t, err)
	assert.Equal(t, "Picky with textures", got)

	_, err = Extract(filepath.Join(t.TempDir(), "missing.txt"))
	assert.Error(t, err)
}

func TestSupported(t *testing.T) {
	for _, ext := range Supported {
		_, err := ExtractBytes("x"+ext, []byte{})
		assert.NotErrorIs(t, err, ErrUnsupported, ext)
	}
}
