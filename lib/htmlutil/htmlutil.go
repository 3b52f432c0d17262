package htmlutil

import (
	"bytes"
	"regexp"
	"strings"
	"unicode"

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

var innerWhitespace = regexp.MustCompile(`\s\s+`)

// CleanText collapses runs of whitespace and strips non printable
// characters, which price labels on product pages are full of
// (non-breaking spaces between the amount and the currency sign).
func CleanText(s string) string {
	out := strings.Builder{}
	for _, r := range s {
		if unicode.IsPrint(r) && r != ' ' {
			out.WriteRune(r)
		} else {
			out.WriteRune(' ')
		}
	}
	return strings.TrimSpace(innerWhitespace.ReplaceAllString(out.String(), " "))
}
