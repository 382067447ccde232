package extractor

import (
	"encoding/xml"
	"strings"

	"docbreak/internal/pointermap"

	"github.com/nguyenthenguyen/docx"
	"github.com/rotisserie/eris"
)

// WordprocessingML, matched by local name so prefixed and default
// namespaces both decode.
type wDocument struct {
	Body wBody `xml:"body"`
}

type wBody struct {
	Paragraphs []wParagraph
	Tables     []wTable
}

// UnmarshalXML walks the body in document order. Content controls and custom
// XML wrappers are transparent, so paragraphs in templated documents count.
func (b *wBody) UnmarshalXML(d *xml.Decoder, start xml.StartElement) error {
	depth := 1
	for depth > 0 {
		tok, err := d.Token()
		if err != nil {
			return err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "p":
				var p wParagraph
				if err := d.DecodeElement(&p, &t); err != nil {
					return err
				}
				b.Paragraphs = append(b.Paragraphs, p)
			case "tbl":
				var tbl wTable
				if err := d.DecodeElement(&tbl, &t); err != nil {
					return err
				}
				b.Tables = append(b.Tables, tbl)
			case "sdt", "sdtContent", "customXml":
				depth++
			default:
				if err := d.Skip(); err != nil {
					return err
				}
			}
		case xml.EndElement:
			depth--
		}
	}
	return nil
}

type wTable struct {
	Rows []wRow `xml:"tr"`
}

type wRow struct {
	Cells []wCell `xml:"tc"`
}

type wCell struct {
	Paragraphs []wParagraph `xml:"p"`
}

func (c wCell) text() string {
	parts := make([]string, len(c.Paragraphs))
	for i, p := range c.Paragraphs {
		parts[i] = p.Text
	}
	return strings.TrimSpace(strings.Join(parts, "\n"))
}

type wParagraph struct {
	Text string
}

// UnmarshalXML collects the run text of a paragraph, including runs nested in
// hyperlinks and tracked insertions. Tabs and breaks become \t and \n.
func (p *wParagraph) UnmarshalXML(d *xml.Decoder, start xml.StartElement) error {
	var sb strings.Builder
	depth := 1
	for depth > 0 {
		tok, err := d.Token()
		if err != nil {
			return err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "pPr", "rPr":
				// Property blocks hold tab stops, not text.
				if err := d.Skip(); err != nil {
					return err
				}
				continue
			case "t":
				var s string
				if err := d.DecodeElement(&s, &t); err != nil {
					return err
				}
				sb.WriteString(s)
				continue
			case "tab":
				sb.WriteByte('\t')
			case "br", "cr":
				sb.WriteByte('\n')
			}
			depth++
		case xml.EndElement:
			depth--
		}
	}
	p.Text = sb.String()
	return nil
}

func (e *Extractor) extractDOCX(path string) (*Document, error) {
	r, err := docx.ReadDocxFile(path)
	if err != nil {
		return nil, eris.Wrapf(ErrExtractionFailed, "read docx: %v", err)
	}
	defer r.Close()

	var doc wDocument
	if err := xml.Unmarshal([]byte(r.Editable().GetContent()), &doc); err != nil {
		return nil, eris.Wrapf(ErrExtractionFailed, "parse document.xml: %v", err)
	}

	paras := make([]string, 0, len(doc.Body.Paragraphs))
	for _, p := range doc.Body.Paragraphs {
		paras = append(paras, p.Text)
	}
	var cells []string
	for _, tbl := range doc.Body.Tables {
		for _, row := range tbl.Rows {
			for _, c := range row.Cells {
				cells = append(cells, c.text())
			}
		}
	}

	text, pm := docxMap(paras, cells)
	return &Document{Text: text, PointerMap: pm}, nil
}

// docxMap numbers the non-blank body paragraphs from 1 and continues the
// numbering through table cells in row-major order.
func docxMap(paras, cells []string) (string, *pointermap.PointerMap) {
	var tb textBuilder
	pm := &pointermap.PointerMap{Type: pointermap.KindDOCX, Paragraphs: []pointermap.Span{}}
	n := 0
	for _, seg := range append(append([]string{}, paras...), cells...) {
		if strings.TrimSpace(seg) == "" {
			continue
		}
		n++
		start, end := tb.add(strings.ToValidUTF8(seg, "�"))
		pm.Paragraphs = append(pm.Paragraphs, pointermap.Span{Index: n, CharStart: start, CharEnd: end})
	}
	return tb.String(), pm
}
