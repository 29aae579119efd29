package extractor

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"unicode/utf16"

	"github.com/richardlehane/mscfb"
	"golang.org/x/text/encoding/charmap"
)

// Word 97-2003 File Information Block offsets inside the WordDocument stream.
const (
	fibFlagsOffset   = 0x000A
	fibCcpTextOffset = 0x004C
	fibFcClxOffset   = 0x01A2
	fibLcbClxOffset  = 0x01A6

	fibFlagEncrypted  = 0x0100
	fibFlagWhichTable = 0x0200

	fcCompressed = 0x40000000
)

var zipMagic = []byte("PK\x03\x04")

// readDoc extracts the main document text of a legacy .doc file by walking
// the piece table in the CLX structure. Files that are really .docx archives
// with the wrong extension are delegated to readDocx.
func readDoc(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open doc: %w", err)
	}
	defer f.Close()

	head := make([]byte, len(zipMagic))
	if _, err := f.ReadAt(head, 0); err == nil && bytes.Equal(head, zipMagic) {
		return readDocx(path)
	}

	cfb, err := mscfb.New(f)
	if err != nil {
		return "", fmt.Errorf("open doc container: %w", err)
	}

	streams := make(map[string][]byte, 3)
	for entry, err := cfb.Next(); err == nil; entry, err = cfb.Next() {
		switch entry.Name {
		case "WordDocument", "0Table", "1Table":
			b, err := io.ReadAll(entry)
			if err != nil {
				return "", fmt.Errorf("read %s stream: %w", entry.Name, err)
			}
			streams[entry.Name] = b
		}
	}

	word := streams["WordDocument"]
	if len(word) < fibLcbClxOffset+4 {
		return "", errors.New("open doc: missing or truncated WordDocument stream")
	}

	flags := binary.LittleEndian.Uint16(word[fibFlagsOffset:])
	if flags&fibFlagEncrypted != 0 {
		return "", ErrEncrypted
	}
	tableName := "0Table"
	if flags&fibFlagWhichTable != 0 {
		tableName = "1Table"
	}
	table := streams[tableName]

	fcClx := binary.LittleEndian.Uint32(word[fibFcClxOffset:])
	lcbClx := binary.LittleEndian.Uint32(word[fibLcbClxOffset:])
	if uint64(fcClx)+uint64(lcbClx) > uint64(len(table)) || lcbClx == 0 {
		return "", fmt.Errorf("open doc: piece table out of range in %s", tableName)
	}

	text, err := pieceText(word, table[fcClx:fcClx+lcbClx])
	if err != nil {
		return "", err
	}

	// The main body is the first ccpText characters; footnotes, headers and
	// annotations follow it.
	ccpText := int(binary.LittleEndian.Uint32(word[fibCcpTextOffset:]))
	if runes := []rune(text); ccpText > 0 && ccpText < len(runes) {
		text = string(runes[:ccpText])
	}
	return cleanWordControls(text), nil
}

// pieceText concatenates every piece described by the CLX's PlcPcd.
func pieceText(word, clx []byte) (string, error) {
	pos := 0
	// Skip Prc entries (grpprl blocks) that precede the Pcdt.
	for pos < len(clx) && clx[pos] == 0x01 {
		if pos+3 > len(clx) {
			return "", errors.New("open doc: truncated clx")
		}
		pos += 3 + int(binary.LittleEndian.Uint16(clx[pos+1:]))
	}
	if pos+5 > len(clx) || clx[pos] != 0x02 {
		return "", errors.New("open doc: piece table not found")
	}

	lcb := int(binary.LittleEndian.Uint32(clx[pos+1:]))
	plc := clx[pos+5:]
	if lcb > len(plc) || lcb < 4 {
		return "", errors.New("open doc: truncated piece table")
	}
	plc = plc[:lcb]

	n := (lcb - 4) / 12
	pcds := plc[4*(n+1):]
	decoder := charmap.Windows1252.NewDecoder()

	var sb strings.Builder
	for i := 0; i < n; i++ {
		cpStart := binary.LittleEndian.Uint32(plc[4*i:])
		cpEnd := binary.LittleEndian.Uint32(plc[4*(i+1):])
		if cpEnd < cpStart {
			return "", errors.New("open doc: unordered piece table")
		}
		count := int(cpEnd - cpStart)
		fc := binary.LittleEndian.Uint32(pcds[8*i+2:])

		if fc&fcCompressed != 0 {
			off := int((fc &^ fcCompressed) / 2)
			if off+count > len(word) {
				return "", errors.New("open doc: piece out of range")
			}
			s, err := decoder.Bytes(word[off : off+count])
			if err != nil {
				return "", fmt.Errorf("decode doc piece: %w", err)
			}
			sb.Write(s)
			continue
		}

		off := int(fc)
		if off+2*count > len(word) {
			return "", errors.New("open doc: piece out of range")
		}
		units := make([]uint16, count)
		for j := range units {
			units[j] = binary.LittleEndian.Uint16(word[off+2*j:])
		}
		sb.WriteString(string(utf16.Decode(units)))
	}
	return sb.String(), nil
}

// cleanWordControls maps Word's in-band control characters to plain text.
// Field instructions (between 0x13 and 0x14) are dropped; field results are kept.
func cleanWordControls(s string) string {
	var sb strings.Builder
	sb.Grow(len(s))
	depth := 0
	inInstr := false

	for _, r := range s {
		switch r {
		case 0x13:
			depth++
			inInstr = true
			continue
		case 0x14:
			inInstr = false
			continue
		case 0x15:
			if depth > 0 {
				depth--
			}
			inInstr = false
			continue
		}
		if inInstr {
			continue
		}

		switch {
		case r == '\r', r == 0x0B, r == 0x0C:
			sb.WriteByte('\n')
		case r == 0x07:
			sb.WriteByte('\t')
		case r == '\t' || r == '\n':
			sb.WriteRune(r)
		case r < 0x20:
			// other control marks (pictures, footnote refs)
		default:
			sb.WriteRune(r)
		}
	}
	return sb.String()
}
