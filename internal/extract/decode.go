package extract

import (
	"encoding/xml"
	"fmt"
	"io"
	"strings"

	"golang.org/x/net/html/charset"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// node is one XML element. Text holds the character data before the first child element.
type node struct {
	tag      string
	text     string
	children []node
}

// newDecoder returns an xml.Decoder over r that understands BOM-marked UTF-16 and UTF-8 input
// as well as any charset named in the XML declaration.
func newDecoder(r io.Reader) *xml.Decoder {
	// BOMOverride transcodes UTF-16 (LE/BE) to UTF-8 and strips a UTF-8 BOM.
	// Without a BOM bytes pass through untouched so declared charsets still apply.
	bomAware := transform.NewReader(r, unicode.BOMOverride(transform.Nop))

	d := xml.NewDecoder(bomAware)
	d.CharsetReader = func(label string, input io.Reader) (io.Reader, error) {
		if strings.HasPrefix(strings.ToLower(label), "utf-16") {
			// Already transcoded by BOMOverride.
			return input, nil
		}
		cr, err := charset.NewReaderLabel(label, input)
		if err != nil {
			return nil, fmt.Errorf("charset %q: %w", label, err)
		}
		return cr, nil
	}
	return d
}

// readNode consumes tokens up to and including the end of start.
func readNode(d *xml.Decoder, start xml.StartElement) (node, error) {
	n := node{tag: start.Name.Local}
	var text strings.Builder
	sawChild := false

	for {
		tok, err := d.Token()
		if err != nil {
			if err == io.EOF {
				return node{}, fmt.Errorf("element <%s>: %w", n.tag, io.ErrUnexpectedEOF)
			}
			return node{}, err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			child, err := readNode(d, t)
			if err != nil {
				return node{}, err
			}
			n.children = append(n.children, child)
			sawChild = true
		case xml.CharData:
			if !sawChild {
				text.Write(t)
			}
		case xml.EndElement:
			n.text = text.String()
			return n, nil
		}
	}
}

// combinedText renders "tag: text" for n and every descendant with non-blank text, depth-first.
func combinedText(n node) string {
	var parts []string
	var walk func(node)
	walk = func(x node) {
		if t := strings.TrimSpace(x.text); t != "" {
			parts = append(parts, x.tag+": "+t)
		}
		for _, c := range x.children {
			walk(c)
		}
	}
	walk(n)
	return strings.Join(parts, " ")
}
