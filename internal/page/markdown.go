package page

import (
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

var markdown = goldmark.New()

func parseBody(body string) (ast.Node, []byte) {
	source := []byte(body)
	return markdown.Parser().Parse(text.NewReader(source)), source
}

// Title returns the text of the first level-one heading, or of the first
// heading when there is none.
func Title(body string) string {
	doc, source := parseBody(body)

	var first, top *ast.Heading
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		heading, ok := n.(*ast.Heading)
		if !ok {
			return ast.WalkContinue, nil
		}
		if first == nil {
			first = heading
		}
		if heading.Level == 1 {
			top = heading
			return ast.WalkStop, nil
		}
		return ast.WalkSkipChildren, nil
	})

	switch {
	case top != nil:
		return nodeText(top, source)
	case first != nil:
		return nodeText(first, source)
	default:
		return ""
	}
}

// ImageTargets returns the targets of every ![alt](target) image in body, in
// order of appearance and without duplicates. Blank targets are ignored.
func ImageTargets(body string) []string {
	doc, _ := parseBody(body)

	var targets []string
	seen := make(map[string]bool)
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		img, ok := n.(*ast.Image)
		if !ok {
			return ast.WalkContinue, nil
		}
		target := strings.TrimSpace(string(img.Destination))
		if target != "" && !seen[target] {
			seen[target] = true
			targets = append(targets, target)
		}
		return ast.WalkSkipChildren, nil
	})

	return targets
}

func nodeText(n ast.Node, source []byte) string {
	var builder strings.Builder
	_ = ast.Walk(n, func(child ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch v := child.(type) {
		case *ast.Text:
			builder.Write(v.Segment.Value(source))
			if v.SoftLineBreak() {
				builder.WriteByte(' ')
			}
		case *ast.String:
			builder.Write(v.Value)
		}
		return ast.WalkContinue, nil
	})
	return strings.TrimSpace(builder.String())
}
