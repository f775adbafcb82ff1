package advisor

import (
	"strings"

	"github.com/alecthomas/participle/v2/lexer"
)

// queryLexer tokenizes query text just enough for pattern rules: idents,
// literals, pipes, and paren nesting. It is not a grammar; rules never
// see more structure than this.
var queryLexer = lexer.MustSimple([]lexer.SimpleRule{
	{Name: "Comment", Pattern: `//[^\n]*`},
	{Name: "String", Pattern: `'[^']*'|"[^"]*"`},
	{Name: "Number", Pattern: `\d+(?:\.\d+)?`},
	{Name: "Ident", Pattern: `[\w$][\w$-]*`},
	{Name: "Pipe", Pattern: `\|`},
	{Name: "LParen", Pattern: `\(`},
	{Name: "RParen", Pattern: `\)`},
	{Name: "Punct", Pattern: `[^\s\w|()]+`},
	{Name: "Whitespace", Pattern: `\s+`},
})

var (
	symbols       = queryLexer.Symbols()
	symComment    = symbols["Comment"]
	symIdent      = symbols["Ident"]
	symPipe       = symbols["Pipe"]
	symLParen     = symbols["LParen"]
	symRParen     = symbols["RParen"]
	symWhitespace = symbols["Whitespace"]
)

type token struct {
	typ  lexer.TokenType
	text string
}

// scan lexes the query, dropping whitespace and comments.
func scan(query string) ([]token, error) {
	lx, err := queryLexer.Lex("", strings.NewReader(query))
	if err != nil {
		return nil, err
	}
	var tokens []token
	for {
		tok, err := lx.Next()
		if err != nil {
			return nil, err
		}
		if tok.EOF() {
			return tokens, nil
		}
		if tok.Type == symWhitespace || tok.Type == symComment {
			continue
		}
		tokens = append(tokens, token{typ: tok.Type, text: tok.Value})
	}
}

// stage is one pipeline segment between top-level pipes. Pipes inside
// parens belong to a subquery and stay within their stage.
type stage struct {
	tokens []token
}

func splitStages(tokens []token) []stage {
	var stages []stage
	var cur []token
	depth := 0
	for _, tok := range tokens {
		switch tok.typ {
		case symLParen:
			depth++
		case symRParen:
			if depth > 0 {
				depth--
			}
		case symPipe:
			if depth == 0 {
				stages = append(stages, stage{tokens: cur})
				cur = nil
				continue
			}
		}
		cur = append(cur, tok)
	}
	if len(cur) > 0 {
		stages = append(stages, stage{tokens: cur})
	}
	return stages
}

// operator is the stage's leading identifier, lowercased. For the first
// stage of a query this is usually the source table.
func (s stage) operator() string {
	for _, tok := range s.tokens {
		if tok.typ == symIdent {
			return strings.ToLower(tok.text)
		}
	}
	return ""
}

func (s stage) hasIdent(names ...string) bool {
	for _, tok := range s.tokens {
		if tok.typ != symIdent {
			continue
		}
		text := strings.ToLower(tok.text)
		for _, n := range names {
			if text == n {
				return true
			}
		}
	}
	return false
}

func (s stage) hasText(text string) bool {
	for _, tok := range s.tokens {
		if tok.text == text {
			return true
		}
	}
	return false
}

// parenSources returns idents that open a parenthesized subexpression,
// the position a table reference takes in join and union operands.
func (s stage) parenSources() []string {
	var out []string
	for i := 0; i+1 < len(s.tokens); i++ {
		if s.tokens[i].typ == symLParen && s.tokens[i+1].typ == symIdent {
			out = append(out, strings.ToLower(s.tokens[i+1].text))
		}
	}
	return out
}

// unionSources returns bare table references of a union stage, skipping
// parameter names and values.
func (s stage) unionSources() []string {
	var out []string
	seenOp := false
	for i, tok := range s.tokens {
		if tok.typ != symIdent {
			continue
		}
		text := strings.ToLower(tok.text)
		if !seenOp {
			if text == "union" {
				seenOp = true
			}
			continue
		}
		switch text {
		case "kind", "withsource", "isfuzzy":
			continue
		}
		if i > 0 && s.tokens[i-1].text == "=" {
			continue
		}
		out = append(out, text)
	}
	return out
}
