package extractor

import (
	"bytes"
	"errors"
	"os"
	"unicode/utf8"

	"docbreak/internal/pointermap"

	"github.com/rotisserie/eris"
	"golang.org/x/text/encoding/charmap"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

type textDecoder struct {
	name   string
	decode func([]byte) (string, error)
}

// Tried in order. ISO-8859-1 accepts any byte sequence, so the later entries
// only matter if the earlier ones are ever made stricter.
var txtDecoders = []textDecoder{
	{"utf-8", decodeUTF8},
	{"latin-1", decodeCharmap(charmap.ISO8859_1)},
	{"cp1252", decodeCharmap(charmap.Windows1252)},
	{"iso-8859-1", decodeCharmap(charmap.ISO8859_1)},
}

func decodeUTF8(b []byte) (string, error) {
	b = bytes.TrimPrefix(b, utf8BOM)
	if !utf8.Valid(b) {
		return "", errors.New("invalid utf-8")
	}
	return string(b), nil
}

func decodeCharmap(cm *charmap.Charmap) func([]byte) (string, error) {
	return func(b []byte) (string, error) {
		out, err := cm.NewDecoder().Bytes(b)
		if err != nil {
			return "", err
		}
		return string(out), nil
	}
}

// decodeText returns the text and the name of the encoding that accepted it.
func decodeText(b []byte) (string, string, error) {
	for _, d := range txtDecoders {
		if s, err := d.decode(b); err == nil {
			return s, d.name, nil
		}
	}
	return "", "", errors.New("no decoder accepted the file")
}

func (e *Extractor) extractTXT(path string) (*Document, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "read %s", path)
	}
	text, _, err := decodeText(raw)
	if err != nil {
		return nil, eris.Wrapf(ErrExtractionFailed, "decode: %v", err)
	}
	text, pm := lineMap(pointermap.KindTXT, splitLines(text))
	return &Document{Text: text, PointerMap: pm}, nil
}
