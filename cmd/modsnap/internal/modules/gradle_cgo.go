//go:build cgo

package modules

import (
	"context"
	"fmt"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/groovy"
	"github.com/smacker/go-tree-sitter/kotlin"
)

// tokenize parses a Groovy or Kotlin build script and flattens its syntax
// tree into leaf tokens. Comments are dropped and string literals become
// single tokens.
func tokenize(ctx context.Context, src []byte, kotlinScript bool) ([]token, error) {
	lang := groovy.GetLanguage()
	if kotlinScript {
		lang = kotlin.GetLanguage()
	}

	parser := sitter.NewParser()
	defer parser.Close()
	parser.SetLanguage(lang)

	tree, err := parser.ParseCtx(ctx, nil, src)
	if err != nil {
		return nil, fmt.Errorf("failed to parse build script: %w", err)
	}
	defer tree.Close()

	var toks []token
	collect(tree.RootNode(), src, &toks)
	return toks, nil
}

func collect(n *sitter.Node, src []byte, out *[]token) {
	if n == nil {
		return
	}
	typ := n.Type()
	switch {
	case strings.Contains(typ, "comment"):
		return
	case n.IsNamed() && strings.Contains(typ, "string"):
		*out = append(*out, token{kind: tokString, text: unquote(n.Content(src))})
		return
	case n.ChildCount() == 0:
		if text := strings.TrimSpace(n.Content(src)); text != "" {
			*out = append(*out, classify(text))
		}
		return
	}
	for i := 0; i < int(n.ChildCount()); i++ {
		collect(n.Child(i), src, out)
	}
}
