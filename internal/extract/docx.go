package extract

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"
)

var (
	ErrMissingDocumentPart  = errors.New("docx has no word/document.xml")
	ErrDocumentPartTooLarge = errors.New("docx word/document.xml exceeds the size limit")
)

// DefaultMaxPartBytes bounds the decompressed size of word/document.xml.
const DefaultMaxPartBytes = 64 << 20

// Docx reads the main document part of an Office Open XML file.
// MaxPartBytes of zero means DefaultMaxPartBytes.
type Docx struct {
	MaxPartBytes int64
}

func (d Docx) ExtractText(_ context.Context, data []byte) (string, error) {
	limit := d.MaxPartBytes
	if limit <= 0 {
		limit = DefaultMaxPartBytes
	}
	archive, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("open docx archive failed: %w", err)
	}
	for _, f := range archive.File {
		if f.Name != "word/document.xml" {
			continue
		}
		if f.UncompressedSize64 > uint64(limit) {
			return "", fmt.Errorf("%w: declares %d bytes, limit %d", ErrDocumentPartTooLarge, f.UncompressedSize64, limit)
		}
		rc, err := f.Open()
		if err != nil {
			return "", fmt.Errorf("open docx part failed: %w", err)
		}
		defer rc.Close()
		// The declared size can lie, so the stream itself is capped too.
		return documentText(&cappedReader{r: rc, remaining: limit})
	}
	return "", ErrMissingDocumentPart
}

// documentText walks WordprocessingML tokens, keeping run text and turning
// paragraph ends, tabs and breaks into whitespace. Tables are read row by row.
func documentText(r io.Reader) (string, error) {
	decoder := xml.NewDecoder(r)
	var (
		out    strings.Builder
		inText bool
	)
	for {
		tok, err := decoder.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", fmt.Errorf("parse docx xml failed: %w", err)
		}
		switch el := tok.(type) {
		case xml.StartElement:
			switch el.Name.Local {
			case "t":
				inText = true
			case "tab":
				out.WriteByte('\t')
			case "br", "cr":
				out.WriteByte('\n')
			}
		case xml.EndElement:
			switch el.Name.Local {
			case "t":
				inText = false
			case "p":
				out.WriteByte('\n')
			case "tc":
				out.WriteByte('\t')
			}
		case xml.CharData:
			if inText {
				out.Write(el)
			}
		}
	}
	return out.String(), nil
}

// cappedReader fails with ErrDocumentPartTooLarge once more than remaining
// bytes have been read.
type cappedReader struct {
	r         io.Reader
	remaining int64
}

func (c *cappedReader) Read(p []byte) (int, error) {
	if c.remaining < 0 {
		return 0, ErrDocumentPartTooLarge
	}
	if int64(len(p)) > c.remaining+1 {
		p = p[:c.remaining+1]
	}
	n, err := c.r.Read(p)
	c.remaining -= int64(n)
	if c.remaining < 0 {
		return 0, ErrDocumentPartTooLarge
	}
	return n, err
}
