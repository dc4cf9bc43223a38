package webforms

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode/utf16"

	"cei-crawler/pkg/htmlutil"

	"github.com/PuerkitoBio/goquery"
)

// ErrMalformedDelta is returned for async postback bodies that do not follow
// the `length|type|id|content|` record framing.
var ErrMalformedDelta = errors.New("malformed async postback response")

// Page is a decoded portal response.
type Page struct {
	Doc *goquery.Document
	// Hidden holds hidden field records of an async postback response, it is
	// empty for full page loads.
	Hidden map[string]string
	// Redirect is set when an async postback asks the browser to navigate.
	Redirect string
}

// HiddenField reads a hidden input by id, falling back to the async postback
// hidden field records.
func (p *Page) HiddenField(name string) (string, error) {
	input := htmlutil.FindById(p.Doc, name)
	if value, ok := input.Attr("value"); ok {
		return value, nil
	}
	if value, ok := p.Hidden[name]; ok {
		return value, nil
	}
	return "", missing(name)
}

// ParsePage decodes either a full HTML document or an async postback delta
// response, in which case the markup of every updated panel is joined into
// one document.
func ParsePage(body []byte) (*Page, error) {
	if !isDelta(body) {
		doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		return &Page{Doc: doc, Hidden: map[string]string{}}, nil
	}

	records, err := parseDelta(string(body))
	if err != nil {
		return nil, err
	}

	page := &Page{Hidden: map[string]string{}}
	var markup strings.Builder
	for _, r := range records {
		switch r.kind {
		case "updatePanel":
			markup.WriteString(fmt.Sprintf(`<div id="%s">`, r.id))
			markup.WriteString(r.content)
			markup.WriteString("</div>")
		case "hiddenField":
			page.Hidden[r.id] = r.content
		case "pageRedirect":
			page.Redirect = r.content
		}
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup.String()))
	if err != nil {
		return nil, err
	}
	page.Doc = doc
	return page, nil
}

// a delta body starts with the decimal length of its first record.
func isDelta(body []byte) bool {
	trimmed := bytes.TrimLeft(body, " \r\n\t")
	i := 0
	for i < len(trimmed) && trimmed[i] >= '0' && trimmed[i] <= '9' {
		i++
	}
	return i > 0 && i < len(trimmed) && trimmed[i] == '|'
}

type deltaRecord struct {
	kind    string
	id      string
	content string
}

// parseDelta splits an async postback body into its records. Lengths count
// UTF-16 code units, like the browser script that normally consumes them.
func parseDelta(body string) ([]deltaRecord, error) {
	units := utf16.Encode([]rune(strings.TrimLeft(body, " \r\n\t")))

	readUntilPipe := func(pos int) (string, int, error) {
		for i := pos; i < len(units); i++ {
			if units[i] == '|' {
				return string(utf16.Decode(units[pos:i])), i + 1, nil
			}
		}
		return "", 0, fmt.Errorf("%w: unterminated field at %d", ErrMalformedDelta, pos)
	}

	var records []deltaRecord
	pos := 0
	for pos < len(units) {
		lengthStr, next, err := readUntilPipe(pos)
		if err != nil {
			return nil, err
		}
		length, err := strconv.Atoi(lengthStr)
		if err != nil || length < 0 {
			return nil, fmt.Errorf("%w: bad length %q", ErrMalformedDelta, lengthStr)
		}
		kind, next, err := readUntilPipe(next)
		if err != nil {
			return nil, err
		}
		id, next, err := readUntilPipe(next)
		if err != nil {
			return nil, err
		}
		if length > len(units)-next-1 || units[next+length] != '|' {
			return nil, fmt.Errorf("%w: content of %s %q overruns body", ErrMalformedDelta, kind, id)
		}
		records = append(records, deltaRecord{
			kind:    kind,
			id:      id,
			content: string(utf16.Decode(units[next : next+length])),
		})
		pos = next + length + 1
	}
	return records, nil
}
