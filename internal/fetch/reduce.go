package fetch

import (
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// maxHeadings bounds how many headings a Page records.
const maxHeadings = 12

// boilerplate holds elements whose text never belongs in research notes.
var boilerplate = map[atom.Atom]bool{
	atom.Script:   true,
	atom.Style:    true,
	atom.Noscript: true,
	atom.Iframe:   true,
	atom.Svg:      true,
	atom.Head:     true,
	atom.Nav:      true,
	atom.Header:   true,
	atom.Footer:   true,
	atom.Form:     true,
}

var headingAtoms = map[atom.Atom]bool{
	atom.H1: true,
	atom.H2: true,
	atom.H3: true,
}

// reduceHTML parses markup and returns the page title, its top
// headings, and the readable body text. Unparseable markup degrades
// to a tokenizer-based tag strip.
func reduceHTML(raw string) (title string, headings []string, text string) {
	doc, err := html.Parse(strings.NewReader(raw))
	if err != nil {
		return "", nil, stripMarkup(raw)
	}

	var body strings.Builder
	walk(doc, &body, &title, &headings)
	return title, headings, tidy(body.String())
}

func walk(n *html.Node, body *strings.Builder, title *string, headings *[]string) {
	if n.Type == html.ElementNode {
		if boilerplate[n.DataAtom] {
			if n.DataAtom == atom.Head && *title == "" {
				*title = titleIn(n)
			}
			return
		}
		if headingAtoms[n.DataAtom] && len(*headings) < maxHeadings {
			if h := strings.TrimSpace(innerText(n)); h != "" {
				*headings = append(*headings, h)
			}
		}
		if blockLevel(n.DataAtom) && body.Len() > 0 {
			body.WriteString("\n\n")
		}
	}

	if n.Type == html.TextNode {
		if t := strings.TrimSpace(n.Data); t != "" {
			body.WriteString(t)
			body.WriteString(" ")
		}
	}

	for c := n.FirstChild; c != nil; c = c.NextSibling {
		walk(c, body, title, headings)
	}

	if n.Type == html.ElementNode && (n.DataAtom == atom.Br || n.DataAtom == atom.Li) {
		body.WriteString("\n")
	}
}

// titleIn finds the <title> text under a head node.
func titleIn(head *html.Node) string {
	for c := head.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode && c.DataAtom == atom.Title {
			return strings.TrimSpace(innerText(c))
		}
	}
	return ""
}

func innerText(n *html.Node) string {
	if n.Type == html.TextNode {
		return n.Data
	}
	var b strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		b.WriteString(innerText(c))
	}
	return b.String()
}

func blockLevel(a atom.Atom) bool {
	switch a {
	case atom.P, atom.Div, atom.Section, atom.Article, atom.Main,
		atom.H1, atom.H2, atom.H3, atom.H4, atom.H5, atom.H6,
		atom.Blockquote, atom.Pre, atom.Ul, atom.Ol, atom.Table,
		atom.Tr, atom.Dl, atom.Figure, atom.Hr:
		return true
	}
	return false
}

// tidy collapses intra-line whitespace and blank-line runs.
func tidy(s string) string {
	lines := strings.Split(s, "\n")
	out := make([]string, 0, len(lines))
	blank := false
	for _, line := range lines {
		line = strings.Join(strings.Fields(line), " ")
		if line == "" {
			if blank {
				continue
			}
			blank = true
		} else {
			blank = false
		}
		out = append(out, line)
	}
	return strings.TrimSpace(strings.Join(out, "\n"))
}

// stripMarkup drops tags with the tokenizer when full parsing fails.
func stripMarkup(s string) string {
	tok := html.NewTokenizer(strings.NewReader(s))
	var b strings.Builder
	for {
		switch tok.Next() {
		case html.ErrorToken:
			return tidy(b.String())
		case html.TextToken:
			b.WriteString(tok.Token().Data)
			b.WriteString(" ")
		}
	}
}
