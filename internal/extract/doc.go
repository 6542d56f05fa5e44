package extract

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode/utf16"

	"github.com/richardlehane/mscfb"
	"golang.org/x/text/encoding/charmap"
)

var (
	ErrNotWordDocument = errors.New("not a Word 97-2003 document")
	ErrEncryptedDoc    = errors.New("encrypted Word documents are not supported")
	ErrCorruptDoc      = errors.New("corrupt Word document structure")
)

const (
	wordIdent        = 0xA5EC
	fibFlagEncrypted = 0x0100
	fibFlagTable1    = 0x0200
	fcCompressedBit  = 0x40000000
	clxPairIndex     = 33
)

// Doc reads legacy binary Word files: an OLE compound file whose
// WordDocument stream holds the text, located through the piece table in
// the 0Table or 1Table stream.
type Doc struct{}

func (Doc) ExtractText(_ context.Context, data []byte) (string, error) {
	streams, err := readStreams(data, "WordDocument", "0Table", "1Table")
	if err != nil {
		return "", err
	}
	word, ok := streams["WordDocument"]
	if !ok {
		return "", ErrNotWordDocument
	}
	f, err := parseFIB(word)
	if err != nil {
		return "", err
	}
	tableName := "0Table"
	if f.table1 {
		tableName = "1Table"
	}
	table, ok := streams[tableName]
	if !ok {
		return "", fmt.Errorf("%w: missing %s stream", ErrCorruptDoc, tableName)
	}
	return pieceText(word, table, f)
}

func readStreams(data []byte, names ...string) (map[string][]byte, error) {
	doc, err := mscfb.New(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotWordDocument, err)
	}
	wanted := make(map[string]bool, len(names))
	for _, n := range names {
		wanted[n] = true
	}
	out := make(map[string][]byte)
	for entry, err := doc.Next(); ; entry, err = doc.Next() {
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCorruptDoc, err)
		}
		if !wanted[entry.Name] || entry.Size <= 0 {
			continue
		}
		if entry.Size > int64(len(data)) {
			return nil, fmt.Errorf("%w: %s stream claims %d bytes in a %d byte file", ErrCorruptDoc, entry.Name, entry.Size, len(data))
		}
		buf := make([]byte, entry.Size)
		if _, err := io.ReadFull(entry, buf); err != nil {
			return nil, fmt.Errorf("%w: read %s: %v", ErrCorruptDoc, entry.Name, err)
		}
		out[entry.Name] = buf
	}
	return out, nil
}

type fib struct {
	table1  bool
	ccpText int
	fcClx   int
	lcbClx  int
}

func parseFIB(b []byte) (fib, error) {
	var f fib
	if len(b) < 34 || binary.LittleEndian.Uint16(b) != wordIdent {
		return f, ErrNotWordDocument
	}
	flags := binary.LittleEndian.Uint16(b[0x0A:])
	if flags&fibFlagEncrypted != 0 {
		return f, ErrEncryptedDoc
	}
	f.table1 = flags&fibFlagTable1 != 0

	pos := 32
	csw := int(binary.LittleEndian.Uint16(b[pos:]))
	pos += 2 + csw*2
	if pos+2 > len(b) {
		return f, ErrCorruptDoc
	}
	cslw := int(binary.LittleEndian.Uint16(b[pos:]))
	pos += 2
	if cslw < 4 || pos+cslw*4+2 > len(b) {
		return f, ErrCorruptDoc
	}
	f.ccpText = int(binary.LittleEndian.Uint32(b[pos+12:]))
	pos += cslw * 4
	cbRgFcLcb := int(binary.LittleEndian.Uint16(b[pos:]))
	pos += 2
	clx := pos + clxPairIndex*8
	if cbRgFcLcb <= clxPairIndex || clx+8 > len(b) {
		return f, ErrCorruptDoc
	}
	f.fcClx = int(binary.LittleEndian.Uint32(b[clx:]))
	f.lcbClx = int(binary.LittleEndian.Uint32(b[clx+4:]))
	return f, nil
}

// pieceText concatenates the main-document pieces listed in the Clx
// structure, stopping after ccpText characters.
func pieceText(word, table []byte, f fib) (string, error) {
	if f.lcbClx <= 0 || f.fcClx < 0 || f.fcClx+f.lcbClx > len(table) {
		return "", fmt.Errorf("%w: clx out of range", ErrCorruptDoc)
	}
	clx := table[f.fcClx : f.fcClx+f.lcbClx]

	i := 0
	for i < len(clx) && clx[i] == 0x01 {
		if i+3 > len(clx) {
			return "", ErrCorruptDoc
		}
		cb := int(int16(binary.LittleEndian.Uint16(clx[i+1:])))
		if cb < 0 {
			return "", ErrCorruptDoc
		}
		i += 3 + cb
	}
	if i+5 > len(clx) || clx[i] != 0x02 {
		return "", fmt.Errorf("%w: missing piece table", ErrCorruptDoc)
	}
	lcb := int(binary.LittleEndian.Uint32(clx[i+1:]))
	plc := clx[i+5:]
	if lcb < 4 || lcb > len(plc) || (lcb-4)%12 != 0 {
		return "", fmt.Errorf("%w: bad piece table size", ErrCorruptDoc)
	}
	plc = plc[:lcb]
	n := (lcb - 4) / 12
	cps := plc[:(n+1)*4]
	pcds := plc[(n+1)*4:]

	decoder := charmap.Windows1252.NewDecoder()
	var out strings.Builder
	remaining := f.ccpText
	for k := 0; k < n && remaining > 0; k++ {
		start := binary.LittleEndian.Uint32(cps[k*4:])
		stop := binary.LittleEndian.Uint32(cps[(k+1)*4:])
		if stop < start {
			return "", fmt.Errorf("%w: piece %d reversed", ErrCorruptDoc, k)
		}
		count := int(stop - start)
		if count > remaining {
			count = remaining
		}
		fcRaw := binary.LittleEndian.Uint32(pcds[k*8+2:])
		fc := int(fcRaw &^ fcCompressedBit)

		if fcRaw&fcCompressedBit != 0 {
			off := fc / 2
			if off+count > len(word) {
				return "", fmt.Errorf("%w: piece %d out of range", ErrCorruptDoc, k)
			}
			decoded, err := decoder.Bytes(word[off : off+count])
			if err != nil {
				return "", fmt.Errorf("%w: %v", ErrCorruptDoc, err)
			}
			out.Write(decoded)
		} else {
			if fc+count*2 > len(word) {
				return "", fmt.Errorf("%w: piece %d out of range", ErrCorruptDoc, k)
			}
			units := make([]uint16, count)
			for j := range units {
				units[j] = binary.LittleEndian.Uint16(word[fc+j*2:])
			}
			out.WriteString(string(utf16.Decode(units)))
		}
		remaining -= count
	}
	return cleanWordText(out.String()), nil
}

// cleanWordText maps Word control characters to plain whitespace and drops
// field instructions while keeping field results.
func cleanWordText(s string) string {
	var (
		out    strings.Builder
		fields []bool // true while inside a field's instruction part
	)
	for _, r := range s {
		switch r {
		case 0x13:
			fields = append(fields, true)
			continue
		case 0x14:
			if len(fields) > 0 {
				fields[len(fields)-1] = false
			}
			continue
		case 0x15:
			if len(fields) > 0 {
				fields = fields[:len(fields)-1]
			}
			continue
		}
		if inInstruction(fields) {
			continue
		}
		switch {
		case r == '\r' || r == 0x0B || r == 0x0C:
			out.WriteByte('\n')
		case r == 0x07:
			out.WriteByte('\t')
		case r == 0x1E:
			out.WriteByte('-')
		case r < 0x20 && r != '\t' && r != '\n':
		default:
			out.WriteRune(r)
		}
	}
	return out.String()
}

func inInstruction(fields []bool) bool {
	for _, f := range fields {
		if f {
			return true
		}
	}
	return false
}
