package extract

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/binary"
	"testing"
	"unicode/utf16"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolve(t *testing.T) {
	tests := []struct {
		name     string
		filename string
		declared string
		data     []byte
		want     FileType
		ok       bool
	}{
		{"pdf by extension", "Report.PDF", "", nil, TypePDF, true},
		{"txt by extension", "notes.txt", "application/octet-stream", nil, TypeTXT, true},
		{"doc by extension", "old.doc", "", nil, TypeDOC, true},
		{"docx by extension", "new.docx", "", nil, TypeDOCX, true},
		{"unknown extension rejected", "image.png", "text/plain", []byte("hello"), "", false},
		{"declared type without extension", "upload", "application/pdf; charset=binary", nil, TypePDF, true},
		{"sniffed pdf", "upload", "", []byte("%PDF-1.4\n%\xe2\xe3\xcf\xd3\n"), TypePDF, true},
		{"sniffed text", "upload", "application/octet-stream", []byte("plain words here"), TypeTXT, true},
		{"nothing to go on", "upload", "", nil, "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Resolve(tt.filename, tt.declared, tt.data)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRegistryHasEveryAcceptedType(t *testing.T) {
	r := NewRegistry()
	for _, ft := range []FileType{TypePDF, TypeTXT, TypeDOC, TypeDOCX} {
		_, ok := r.For(ft)
		assert.True(t, ok, ft)
		assert.NotEmpty(t, ContentType(ft))
	}
	_, ok := r.For("rtf")
	assert.False(t, ok)
}

func TestNormalize(t *testing.T) {
	assert.Equal(t, "a\nb\nc", Normalize("  a\r\nb\rc \n"))
}

func TestTextExtractor(t *testing.T) {
	ctx := context.Background()

	out, err := Text{}.ExtractText(ctx, []byte("\xEF\xBB\xBFhello"))
	require.NoError(t, err)
	assert.Equal(t, "hello", out)

	units := utf16.Encode([]rune("héllo"))
	le := []byte{0xFF, 0xFE}
	for _, u := range units {
		le = binary.LittleEndian.AppendUint16(le, u)
	}
	out, err = Text{}.ExtractText(ctx, le)
	require.NoError(t, err)
	assert.Equal(t, "héllo", out)

	_, err = Text{}.ExtractText(ctx, []byte{0xff, 0x00, 0xc3, 0x28})
	assert.ErrorIs(t, err, ErrInvalidEncoding)
}

func buildDocx(t *testing.T, documentXML string) []byte {
	t.Helper()
	buf := new(bytes.Buffer)
	w := zip.NewWriter(buf)
	if documentXML != "" {
		part, err := w.Create("word/document.xml")
		require.NoError(t, err)
		_, err = part.Write([]byte(documentXML))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return buf.Bytes()
}

func TestDocxExtractor(t *testing.T) {
	doc := buildDocx(t, `<?xml version="1.0" encoding="UTF-8"?>
<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main">
<w:body>
<w:p><w:r><w:t>First</w:t></w:r><w:r><w:t xml:space="preserve"> paragraph</w:t></w:r></w:p>
<w:tbl><w:tr><w:tc><w:p><w:r><w:t>cell</w:t></w:r></w:p></w:tc></w:tr></w:tbl>
<w:p><w:r><w:t>Second</w:t><w:tab/><w:t>tabbed</w:t></w:r></w:p>
</w:body>
</w:document>`)

	out, err := Docx{}.ExtractText(context.Background(), doc)
	require.NoError(t, err)
	assert.Equal(t, "First paragraph\ncell\n\tSecond\ttabbed\n", out)
}

func TestDocxExtractorErrors(t *testing.T) {
	_, err := Docx{}.ExtractText(context.Background(), []byte("not a zip"))
	assert.Error(t, err)

	_, err = Docx{}.ExtractText(context.Background(), buildDocx(t, ""))
	assert.ErrorIs(t, err, ErrMissingDocumentPart)
}

func TestDocxExtractorCapsDocumentPart(t *testing.T) {
	body := `<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"><w:body><w:p><w:r><w:t>` +
		string(bytes.Repeat([]byte("a"), 4096)) + `</w:t></w:r></w:p></w:body></w:document>`
	doc := buildDocx(t, body)

	_, err := Docx{MaxPartBytes: 1024}.ExtractText(context.Background(), doc)
	assert.ErrorIs(t, err, ErrDocumentPartTooLarge)

	out, err := Docx{MaxPartBytes: int64(len(body))}.ExtractText(context.Background(), doc)
	require.NoError(t, err)
	assert.Len(t, out, 4096+1)
}

func TestCappedReaderStopsPastLimit(t *testing.T) {
	xmlBody := []byte(`<w:t>` + string(bytes.Repeat([]byte("b"), 100)) + `</w:t>`)

	_, err := documentText(&cappedReader{r: bytes.NewReader(xmlBody), remaining: 64})
	assert.ErrorIs(t, err, ErrDocumentPartTooLarge)

	_, err = documentText(&cappedReader{r: bytes.NewReader(xmlBody), remaining: int64(len(xmlBody))})
	assert.NoError(t, err)
}

func TestPDFExtractorRejectsGarbage(t *testing.T) {
	_, err := PDF{}.ExtractText(context.Background(), []byte("definitely not a pdf"))
	assert.Error(t, err)

	_, err = PDF{}.ExtractText(context.Background(), nil)
	assert.Error(t, err)
}

func TestDocExtractorRejectsNonOLE(t *testing.T) {
	_, err := Doc{}.ExtractText(context.Background(), []byte("plain text renamed to .doc"))
	assert.ErrorIs(t, err, ErrNotWordDocument)
}

// buildCompoundFile lays out a version 4 compound file with 4096 byte
// sectors: header, one FAT sector, one directory sector and one data sector.
// The directory holds the root and a WordDocument stream whose recorded size
// is wordSize, whatever the real data.
func buildCompoundFile(t *testing.T, wordSize uint64) []byte {
	t.Helper()
	const (
		sectorSize = 4096
		freeSect   = 0xFFFFFFFF
		endOfChain = 0xFFFFFFFE
		fatSect    = 0xFFFFFFFD
		noStream   = 0xFFFFFFFF
	)
	le := binary.LittleEndian
	out := make([]byte, 4*sectorSize)

	header := out[:sectorSize]
	copy(header, []byte{0xD0, 0xCF, 0x11, 0xE0, 0xA1, 0xB1, 0x1A, 0xE1})
	le.PutUint16(header[24:], 0x003E)
	le.PutUint16(header[26:], 4)
	le.PutUint16(header[28:], 0xFFFE)
	le.PutUint16(header[30:], 12)
	le.PutUint16(header[32:], 6)
	le.PutUint32(header[40:], 1)
	le.PutUint32(header[44:], 1)
	le.PutUint32(header[48:], 1)
	le.PutUint32(header[56:], 0x1000)
	le.PutUint32(header[60:], endOfChain)
	le.PutUint32(header[68:], endOfChain)
	le.PutUint32(header[76:], 0)
	for off := 80; off < 512; off += 4 {
		le.PutUint32(header[off:], freeSect)
	}

	fat := out[sectorSize : 2*sectorSize]
	for off := 0; off < sectorSize; off += 4 {
		le.PutUint32(fat[off:], freeSect)
	}
	le.PutUint32(fat[0:], fatSect)
	le.PutUint32(fat[4:], endOfChain)
	le.PutUint32(fat[8:], endOfChain)

	dir := out[2*sectorSize : 3*sectorSize]
	entry := func(i int, name string, kind byte, child, start uint32, size uint64) {
		e := dir[i*128 : (i+1)*128]
		units := utf16.Encode([]rune(name))
		for j, u := range units {
			le.PutUint16(e[j*2:], u)
		}
		le.PutUint16(e[64:], uint16((len(units)+1)*2))
		e[66] = kind
		e[67] = 1
		le.PutUint32(e[68:], noStream)
		le.PutUint32(e[72:], noStream)
		le.PutUint32(e[76:], child)
		le.PutUint32(e[116:], start)
		le.PutUint64(e[120:], size)
	}
	entry(0, "Root Entry", 5, 1, endOfChain, 0)
	entry(1, "WordDocument", 2, noStream, 2, wordSize)
	for i := 2; i < sectorSize/128; i++ {
		e := dir[i*128 : (i+1)*128]
		le.PutUint32(e[68:], noStream)
		le.PutUint32(e[72:], noStream)
		le.PutUint32(e[76:], noStream)
	}
	return out
}

func TestDocExtractorRejectsOversizedStreamClaim(t *testing.T) {
	_, err := Doc{}.ExtractText(context.Background(), buildCompoundFile(t, 1<<50))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrCorruptDoc)
	assert.Contains(t, err.Error(), "WordDocument stream claims")

	// The same layout with an honest size reads the stream and fails on the FIB.
	_, err = Doc{}.ExtractText(context.Background(), buildCompoundFile(t, 4096))
	assert.ErrorIs(t, err, ErrNotWordDocument)
}

// buildWordStreams lays out a minimal FIB followed by the text, plus a table
// stream holding a Clx with one piece per entry in pieces.
func buildWordStreams(t *testing.T, pieces []string, compressed []bool, flags uint16) ([]byte, []byte, int) {
	t.Helper()
	const (
		csw       = 14
		cslw      = 22
		cbRgFcLcb = 93
	)
	fibLen := 32 + 2 + csw*2 + 2 + cslw*4 + 2 + cbRgFcLcb*8
	word := make([]byte, fibLen)
	binary.LittleEndian.PutUint16(word[0:], wordIdent)
	binary.LittleEndian.PutUint16(word[0x0A:], flags)
	binary.LittleEndian.PutUint16(word[32:], csw)
	lwPos := 32 + 2 + csw*2
	binary.LittleEndian.PutUint16(word[lwPos:], cslw)
	fcPos := lwPos + 2 + cslw*4
	binary.LittleEndian.PutUint16(word[fcPos:], cbRgFcLcb)

	var (
		cps   []uint32
		pcds  []byte
		cp    uint32
		total int
	)
	for i, piece := range pieces {
		cps = append(cps, cp)
		runes := []rune(piece)
		offset := len(word)
		var fc uint32
		if compressed[i] {
			word = append(word, []byte(piece)...)
			fc = uint32(offset*2) | fcCompressedBit
		} else {
			for _, u := range utf16.Encode(runes) {
				word = binary.LittleEndian.AppendUint16(word, u)
			}
			fc = uint32(offset)
		}
		pcd := make([]byte, 8)
		binary.LittleEndian.PutUint32(pcd[2:], fc)
		pcds = append(pcds, pcd...)
		cp += uint32(len(runes))
		total += len(runes)
	}
	cps = append(cps, cp)

	plc := make([]byte, 0, len(cps)*4+len(pcds))
	for _, c := range cps {
		plc = binary.LittleEndian.AppendUint32(plc, c)
	}
	plc = append(plc, pcds...)

	table := []byte{0xAA, 0xBB} // padding before the Clx
	clxStart := len(table)
	table = append(table, 0x01, 0x02, 0x00, 0x00, 0x00) // one Prc with two bytes of grpprl
	table = append(table, 0x02)
	table = binary.LittleEndian.AppendUint32(table, uint32(len(plc)))
	table = append(table, plc...)

	binary.LittleEndian.PutUint32(word[lwPos+2+12:], uint32(total))
	clxPair := fcPos + 2 + clxPairIndex*8
	binary.LittleEndian.PutUint32(word[clxPair:], uint32(clxStart))
	binary.LittleEndian.PutUint32(word[clxPair+4:], uint32(len(table)-clxStart))
	return word, table, total
}

func TestDocPieceTable(t *testing.T) {
	word, table, _ := buildWordStreams(t,
		[]string{"Hello world\r", "café \x13 HYPERLINK x \x14link\x15 done\r"},
		[]bool{true, false},
		fibFlagTable1,
	)

	f, err := parseFIB(word)
	require.NoError(t, err)
	assert.True(t, f.table1)

	out, err := pieceText(word, table, f)
	require.NoError(t, err)
	assert.Equal(t, "Hello world\ncafé link done\n", out)
}

func TestDocPieceTableStopsAtMainText(t *testing.T) {
	word, table, _ := buildWordStreams(t, []string{"body\r", "footnote"}, []bool{true, true}, 0)
	f, err := parseFIB(word)
	require.NoError(t, err)
	f.ccpText = 5

	out, err := pieceText(word, table, f)
	require.NoError(t, err)
	assert.Equal(t, "body\n", out)
}

func TestParseFIBRejectsEncrypted(t *testing.T) {
	word, _, _ := buildWordStreams(t, []string{"x"}, []bool{true}, fibFlagEncrypted)
	_, err := parseFIB(word)
	assert.ErrorIs(t, err, ErrEncryptedDoc)
}
