// Package htmlutil is the small "document query" layer the portal parsers are
// written against: lookups by element id, table rows and cells, and scans over
// sibling markers.
package htmlutil

import (
	"bytes"
	"fmt"
	"regexp"
	"slices"
	"strings"
	"unicode"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

func GetText(node *html.Node) string {
	var buffer bytes.Buffer
	getTextRecursive(node, &buffer)
	return buffer.String()
}

func getTextRecursive(node *html.Node, buffer *bytes.Buffer) {
	if node == nil {
		return
	}
	if node.Type == html.TextNode {
		buffer.WriteString(node.Data)
		return
	}
	child := node.FirstChild
	for child != nil {
		getTextRecursive(child, buffer)
		child = child.NextSibling
	}
}

var innerWhitespace = regexp.MustCompile(`\s+`)

func removeNonPrintable(s string) string {
	newStr := strings.Builder{}
	for _, c := range s {
		if unicode.IsPrint(c) || unicode.IsSpace(c) {
			newStr.WriteRune(c)
		}
	}
	return newStr.String()
}

// NormalizeSpace collapses every run of whitespace into a single space and
// trims both ends.
func NormalizeSpace(s string) string {
	s = innerWhitespace.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// Text is the trimmed, printable text content of a selection.
func Text(sel *goquery.Selection) string {
	var out strings.Builder
	for _, n := range sel.Nodes {
		out.WriteString(GetText(n))
	}
	return strings.TrimSpace(removeNonPrintable(out.String()))
}

// FindById looks an element up by its exact id. The portal ids contain
// characters that are awkward in `#id` selectors, so an attribute selector
// is used instead.
func FindById(doc *goquery.Document, id string) *goquery.Selection {
	return doc.Find(fmt.Sprintf(`[id="%s"]`, id)).First()
}

// ValueOrText reads the `value` attribute of an input, or the text of any
// other element (labels and spans carry the same data in other sections).
func ValueOrText(sel *goquery.Selection) string {
	if value, ok := sel.Attr("value"); ok {
		return strings.TrimSpace(value)
	}
	return Text(sel)
}

// TableRows returns the body rows of a table that contain at least one data
// cell, header-only rows are skipped.
func TableRows(table *goquery.Selection) []*goquery.Selection {
	var rows []*goquery.Selection
	table.Find("tbody tr").Each(func(_ int, tr *goquery.Selection) {
		if tr.ChildrenFiltered("td").Length() == 0 {
			return
		}
		rows = append(rows, tr)
	})
	return rows
}

// Cells returns the text of every direct `td` child of a row.
func Cells(row *goquery.Selection) []string {
	tds := row.ChildrenFiltered("td")
	cells := make([]string, 0, tds.Length())
	tds.Each(func(_ int, td *goquery.Selection) {
		cells = append(cells, Text(td))
	})
	return cells
}

// sortSiblings orders siblings of a common parent by their position.
func sortSiblings(sels []*goquery.Selection) []*goquery.Selection {
	slices.SortFunc(sels, func(a, b *goquery.Selection) int {
		return a.Index() - b.Index()
	})
	return sels
}

func split(sel *goquery.Selection) []*goquery.Selection {
	out := make([]*goquery.Selection, 0, sel.Length())
	for i := range sel.Nodes {
		out = append(out, sel.Eq(i))
	}
	return out
}

// PrecedingUntil scans backward from `from` over its preceding siblings,
// stopping before the first one matching `stop`, and returns the ones that
// match `filter` in document order.
func PrecedingUntil(from *goquery.Selection, stop, filter string) []*goquery.Selection {
	return sortSiblings(split(from.PrevUntil(stop).Filter(filter)))
}

// Following returns every following sibling of `from` matching `filter`, in
// document order.
func Following(from *goquery.Selection, filter string) []*goquery.Selection {
	return sortSiblings(split(from.NextAllFiltered(filter)))
}
