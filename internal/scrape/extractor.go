package scrape

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// minCells is the smallest cell count a data row can have. Shorter rows
// are sub-headers or decoration and are dropped without comment.
const minCells = 13

// dataRowStyle matches the inline background marker the source puts on
// data rows but not on header rows.
var dataRowStyle = regexp.MustCompile(`background:#[a-f0-9]+`)

// ExtractRows parses an HTML document and returns the raw inner HTML of
// every cell, row by row, in document order. It has no knowledge of what
// the columns mean. A document that fails to parse yields no rows.
func ExtractRows(html string) [][]string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil
	}

	var rows [][]string
	doc.Find("tr").Each(func(_ int, tr *goquery.Selection) {
		style, _ := tr.Attr("style")
		if !dataRowStyle.MatchString(style) {
			return
		}

		var cells []string
		tr.Find("td").Each(func(_ int, td *goquery.Selection) {
			h, err := td.Html()
			if err != nil {
				h = ""
			}
			cells = append(cells, h)
		})

		if len(cells) < minCells {
			return
		}
		rows = append(rows, cells)
	})

	return rows
}

// AnchorText returns the decoded text of the first anchor in a cell,
// ignoring the decorative markup around it. Empty when the cell has no
// anchor.
func AnchorText(cellHTML string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(cellHTML))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(doc.Find("a").First().Text())
}

var whitespaceRun = regexp.MustCompile(`\s+`)

// CleanText strips tags, decodes HTML entities and collapses whitespace.
// goquery decodes entities (&amp;, &nbsp;, ...) as part of parsing.
func CleanText(cellHTML string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(cellHTML))
	if err != nil {
		return ""
	}
	text := doc.Text()
	text = strings.ReplaceAll(text, "\u00a0", " ")
	text = whitespaceRun.ReplaceAllString(text, " ")
	return strings.TrimSpace(text)
}
