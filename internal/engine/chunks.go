package engine

import (
	"go/ast"
	"go/parser"
	"go/scanner"
	"go/token"
	"strings"
)

// ChunkKind classifies a top-level template chunk.
type ChunkKind int

const (
	// ChunkStatements is a run of top-level statements.
	ChunkStatements ChunkKind = iota
	// ChunkDeclarations is a run of import, type, const, var or func declarations.
	ChunkDeclarations
)

func (k ChunkKind) String() string {
	if k == ChunkDeclarations {
		return "declarations"
	}
	return "statements"
}

// Chunk is a contiguous piece of template source the interpreter evaluates
// in one step.
type Chunk struct {
	Kind ChunkKind
	// Line is the 1-based line of the chunk's first token.
	Line int
	// Text is the chunk source exactly as written.
	Text string

	hasImport bool
	hasOther  bool
}

// Source returns the chunk padded with leading newlines so interpreter
// diagnostics report the line numbers of the original template.
func (c Chunk) Source() string {
	if c.Line <= 1 {
		return c.Text + "\n"
	}
	return strings.Repeat("\n", c.Line-1) + c.Text + "\n"
}

// SplitChunks splits a template into declaration and statement chunks.
//
// The interpreter evaluates a piece of source either as file-level
// declarations or as the body of a function, never both, so a template that
// mixes the two is cut at every switch between them. Consecutive pieces of
// the same kind share a chunk. An import that follows another declaration
// starts a new chunk, since imports must lead a file.
//
// Source the scanner rejects is returned as a single statement chunk; the
// interpreter then reports the syntax error with its own position.
func SplitChunks(source string) []Chunk {
	toks, ok := scanTokens(source)
	if !ok {
		if strings.TrimSpace(source) == "" {
			return nil
		}
		return []Chunk{{Kind: ChunkStatements, Line: 1, Text: source}}
	}

	starts := statementStarts(toks)

	var chunks []Chunk
	for n, i := range starts {
		end := len(source)
		if n+1 < len(starts) {
			end = toks[starts[n+1]].offset
		}

		kind, isImport := classify(toks, i)
		text := source[toks[i].offset:end]

		if len(chunks) > 0 {
			last := &chunks[len(chunks)-1]
			if last.Kind == kind && !(isImport && last.hasOther) {
				last.Text += text
				last.hasImport = last.hasImport || isImport
				last.hasOther = last.hasOther || (kind == ChunkDeclarations && !isImport)
				continue
			}
		}

		chunks = append(chunks, Chunk{
			Kind:      kind,
			Line:      toks[i].line,
			Text:      text,
			hasImport: isImport,
			hasOther:  kind == ChunkDeclarations && !isImport,
		})
	}

	for i := range chunks {
		chunks[i].Text = strings.TrimRight(chunks[i].Text, " \t\r\n")
	}
	return chunks
}

type scannedToken struct {
	tok    token.Token
	offset int
	line   int
}

// scanTokens returns every token of source except EOF, with automatically
// inserted semicolons included.
func scanTokens(source string) ([]scannedToken, bool) {
	fset := token.NewFileSet()
	file := fset.AddFile("template.go", fset.Base(), len(source))

	var errs scanner.ErrorList
	var s scanner.Scanner
	s.Init(file, []byte(source), errs.Add, 0)

	var toks []scannedToken
	for {
		pos, tok, _ := s.Scan()
		if tok == token.EOF {
			break
		}
		toks = append(toks, scannedToken{
			tok:    tok,
			offset: file.Offset(pos),
			line:   file.Line(pos),
		})
	}
	if errs.Len() > 0 {
		return nil, false
	}
	return toks, true
}

// statementStarts returns the indexes of tokens that begin a top-level
// statement or declaration.
func statementStarts(toks []scannedToken) []int {
	var starts []int
	depth := 0
	boundary := true
	for i, t := range toks {
		if depth == 0 && boundary && t.tok != token.SEMICOLON {
			starts = append(starts, i)
		}
		boundary = false

		switch t.tok {
		case token.LPAREN, token.LBRACE, token.LBRACK:
			depth++
		case token.RPAREN, token.RBRACE, token.RBRACK:
			if depth > 0 {
				depth--
			}
		case token.SEMICOLON:
			boundary = depth == 0
		}
	}
	return starts
}

// classify reports the kind of the piece starting at toks[i] and whether it
// is an import.
func classify(toks []scannedToken, i int) (ChunkKind, bool) {
	switch toks[i].tok {
	case token.IMPORT:
		return ChunkDeclarations, true
	case token.TYPE, token.CONST, token.VAR:
		return ChunkDeclarations, false
	case token.FUNC:
		if isFuncDecl(toks, i) {
			return ChunkDeclarations, false
		}
	}
	return ChunkStatements, false
}

// isFuncDecl distinguishes `func name(...)` and `func (recv) name(...)` from
// a function literal such as `func() { ... }()`.
func isFuncDecl(toks []scannedToken, i int) bool {
	next := i + 1
	if next >= len(toks) {
		return false
	}
	switch toks[next].tok {
	case token.IDENT:
		return true
	case token.LPAREN:
		closing := matchParen(toks, next)
		if closing < 0 || closing+2 >= len(toks) {
			return false
		}
		name, open := toks[closing+1].tok, toks[closing+2].tok
		return name == token.IDENT && (open == token.LPAREN || open == token.LBRACK)
	}
	return false
}

// matchParen returns the index of the RPAREN closing toks[open], or -1.
func matchParen(toks []scannedToken, open int) int {
	depth := 0
	for j := open; j < len(toks); j++ {
		switch toks[j].tok {
		case token.LPAREN:
			depth++
		case token.RPAREN:
			depth--
			if depth == 0 {
				return j
			}
		}
	}
	return -1
}

// LowerChunks rewrites package-level variable declarations that have
// initializers into assignment statements.
//
// The interpreter cannot initialize a package-level variable from a global
// declared by an earlier evaluation step, so `var x = expr` is evaluated as
// the statement `x := expr` and `var x T = expr` as the declaration `var x T`
// followed by `x = expr`. Every other declaration of a chunk stays in one
// declaration chunk, evaluated before the lowered statements, so functions
// and types may still refer to each other in any order.
func LowerChunks(chunks []Chunk) []Chunk {
	var out []Chunk
	for _, c := range chunks {
		if c.Kind != ChunkDeclarations {
			out = append(out, c)
			continue
		}
		out = append(out, lowerDeclarations(c)...)
	}
	return out
}

const lowerHeader = "package p;"

func lowerDeclarations(c Chunk) []Chunk {
	src := lowerHeader + c.Source()
	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, "template.go", src, parser.SkipObjectResolution)
	if err != nil {
		return []Chunk{c}
	}
	offset := func(p token.Pos) int { return fset.Position(p).Offset }

	decl := []byte(src)
	blank := func(from, to token.Pos) {
		for i := offset(from); i < offset(to); i++ {
			if decl[i] != '\n' {
				decl[i] = ' '
			}
		}
	}

	var stmts []Chunk
	for _, d := range file.Decls {
		gen, ok := d.(*ast.GenDecl)
		if !ok || gen.Tok != token.VAR {
			continue
		}

		for _, spec := range gen.Specs {
			vs := spec.(*ast.ValueSpec)
			if len(vs.Values) == 0 {
				continue
			}

			names := make([]string, len(vs.Names))
			assign := " = "
			for i, n := range vs.Names {
				names[i] = n.Name
				if n.Name != "_" && vs.Type == nil {
					assign = " := "
				}
			}
			values := src[offset(vs.Values[0].Pos()):offset(vs.Values[len(vs.Values)-1].End())]
			stmts = append(stmts, Chunk{
				Kind: ChunkStatements,
				Line: fset.Position(vs.Pos()).Line,
				Text: strings.Join(names, ", ") + assign + values,
			})

			switch {
			case vs.Type != nil:
				blank(vs.Type.End(), vs.End())
			case gen.Lparen.IsValid():
				blank(vs.Pos(), vs.End())
			default:
				blank(gen.Pos(), gen.End())
			}
		}
	}
	if len(stmts) == 0 {
		return []Chunk{c}
	}

	rest := string(decl[len(lowerHeader):])
	if toks, ok := scanTokens(rest); ok && len(toks) == 0 {
		return stmts
	}
	c.Text = strings.TrimSpace(rest)
	c.Line = leadingLine(rest)
	return append([]Chunk{c}, stmts...)
}

// leadingLine returns the 1-based line of the first non-blank character of s.
func leadingLine(s string) int {
	return strings.Count(s[:len(s)-len(strings.TrimLeft(s, " \t\r\n"))], "\n") + 1
}
