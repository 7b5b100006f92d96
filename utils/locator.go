package utils

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/antchfx/htmlquery"
	"golang.org/x/net/html"
)

// Locator finds a single element in a parsed document and returns its trimmed text.
type Locator interface {
	Locate(doc *html.Node) (string, bool)
	String() string
}

// CSS locates the first element matching a CSS selector.
type CSS string

func (c CSS) Locate(doc *html.Node) (string, bool) {
	// goquery returns an empty selection for selectors it cannot compile
	sel := goquery.NewDocumentFromNode(doc).Find(string(c)).First()
	if sel.Length() == 0 {
		return "", false
	}
	return nonEmpty(sel.Text())
}

func (c CSS) String() string { return "css:" + string(c) }

// XPath locates the first node matching an XPath expression.
type XPath string

func (x XPath) Locate(doc *html.Node) (string, bool) {
	node, err := htmlquery.Query(doc, string(x))
	if err != nil || node == nil {
		return "", false
	}
	return nonEmpty(htmlquery.InnerText(node))
}

func (x XPath) String() string { return "xpath:" + string(x) }

func nonEmpty(text string) (string, bool) {
	text = strings.TrimSpace(text)
	return text, text != ""
}

// ParseLocator treats expressions starting with "/" as XPath and everything else as CSS.
func ParseLocator(expr string) Locator {
	if strings.HasPrefix(expr, "/") {
		return XPath(expr)
	}
	return CSS(expr)
}

// LocatorChain is an ordered list of strategies for the same field.
type LocatorChain []Locator

// NewLocatorChain builds a chain from raw selector expressions.
func NewLocatorChain(exprs ...string) LocatorChain {
	chain := make(LocatorChain, 0, len(exprs))
	for _, e := range exprs {
		chain = append(chain, ParseLocator(e))
	}
	return chain
}

// First returns the text of the first locator that yields a non-empty match,
// or nil when none does.
func (lc LocatorChain) First(doc *html.Node) *string {
	for _, l := range lc {
		if text, ok := l.Locate(doc); ok {
			return &text
		}
	}
	return nil
}
