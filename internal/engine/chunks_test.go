package engine

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func kinds(chunks []Chunk) []ChunkKind {
	out := make([]ChunkKind, len(chunks))
	for i, c := range chunks {
		out[i] = c.Kind
	}
	return out
}

func TestSplitChunks_Empty(t *testing.T) {
	assert.Empty(t, SplitChunks(""))
	assert.Empty(t, SplitChunks("  \n\t\n"))
	assert.Empty(t, SplitChunks("// only a comment\n"))
}

func TestSplitChunks_StatementsOnly(t *testing.T) {
	src := "x := 1\nif x > 0 {\n\taction = \"charge\"\n}\n"

	chunks := SplitChunks(src)

	require.Len(t, chunks, 1)
	assert.Equal(t, ChunkStatements, chunks[0].Kind)
	assert.Equal(t, 1, chunks[0].Line)
	assert.Equal(t, strings.TrimSpace(src), chunks[0].Text)
}

func TestSplitChunks_MixedKinds(t *testing.T) {
	src := `import "math"

func spread() float64 { return math.Abs(buy_price - sell_price) }

if battery_soc < 20 {
	action = decisions.Reason("charge", "low")
}

type plan struct{ n int }

var p = plan{n: 1}
action = "hold"
`

	chunks := SplitChunks(src)

	require.Len(t, chunks, 4)
	assert.Equal(t, []ChunkKind{ChunkDeclarations, ChunkStatements, ChunkDeclarations, ChunkStatements}, kinds(chunks))
	assert.Equal(t, 1, chunks[0].Line)
	assert.Equal(t, 5, chunks[1].Line)
	assert.Equal(t, 9, chunks[2].Line)
	assert.Equal(t, 12, chunks[3].Line)
	assert.Contains(t, chunks[0].Text, "func spread()")
	assert.Contains(t, chunks[2].Text, "var p = plan{n: 1}")
}

func TestSplitChunks_ImportAfterDeclarationStartsChunk(t *testing.T) {
	src := "func a() {}\nimport \"strings\"\nfunc b() {}\n"

	chunks := SplitChunks(src)

	require.Len(t, chunks, 2)
	assert.Equal(t, "func a() {}", chunks[0].Text)
	assert.Equal(t, "import \"strings\"\nfunc b() {}", chunks[1].Text)
	assert.Equal(t, 2, chunks[1].Line)
}

func TestSplitChunks_ConsecutiveImportsShareChunk(t *testing.T) {
	src := "import \"math\"\nimport (\n\t\"strings\"\n)\nfunc f() {}\n"

	chunks := SplitChunks(src)

	require.Len(t, chunks, 1)
	assert.Equal(t, ChunkDeclarations, chunks[0].Kind)
}

func TestSplitChunks_FuncLiteralIsStatement(t *testing.T) {
	tests := []string{
		"func() { action = \"hold\" }()",
		"func(x float64) { battery_soc = x }(10)",
		"func(x float64) float64 { return x }(1)",
	}

	for _, src := range tests {
		t.Run(src, func(t *testing.T) {
			chunks := SplitChunks(src)
			require.Len(t, chunks, 1)
			assert.Equal(t, ChunkStatements, chunks[0].Kind)
		})
	}
}

func TestSplitChunks_MethodIsDeclaration(t *testing.T) {
	src := "type band float64\n\nfunc (b band) high() bool { return b > 30 }\n"

	chunks := SplitChunks(src)

	require.Len(t, chunks, 1)
	assert.Equal(t, ChunkDeclarations, chunks[0].Kind)
}

func TestSplitChunks_NestedBracesStayInStatement(t *testing.T) {
	src := "for _, p := range buy_forecast {\n\tif p < 5 {\n\t\tvar n = 1\n\t\t_ = n\n\t}\n}\n"

	chunks := SplitChunks(src)

	require.Len(t, chunks, 1, "a var inside a block is not a top-level declaration")
	assert.Equal(t, ChunkStatements, chunks[0].Kind)
}

func TestSplitChunks_ScanErrorFallsBack(t *testing.T) {
	src := "action = \"unterminated\n"

	chunks := SplitChunks(src)

	require.Len(t, chunks, 1)
	assert.Equal(t, ChunkStatements, chunks[0].Kind)
	assert.Equal(t, src, chunks[0].Text)
}

func TestChunk_SourcePreservesLines(t *testing.T) {
	c := Chunk{Kind: ChunkStatements, Line: 4, Text: "x := 1"}

	assert.Equal(t, "\n\n\nx := 1\n", c.Source())
	assert.Equal(t, "y := 2\n", Chunk{Line: 1, Text: "y := 2"}.Source())
}

func TestChunkKind_String(t *testing.T) {
	assert.Equal(t, "statements", ChunkStatements.String())
	assert.Equal(t, "declarations", ChunkDeclarations.String())
}

func TestLowerChunks_VarBecomesDefine(t *testing.T) {
	src := "import \"math\"\n\nvar hour = interval_time.Hour()\n\nfunc abs(x float64) float64 { return math.Abs(x) }\n"

	chunks := LowerChunks(SplitChunks(src))

	require.Len(t, chunks, 2)
	assert.Equal(t, ChunkDeclarations, chunks[0].Kind)
	assert.Equal(t, 1, chunks[0].Line)
	assert.Contains(t, chunks[0].Text, "func abs(")
	assert.NotContains(t, chunks[0].Text, "hour")

	assert.Equal(t, Chunk{Kind: ChunkStatements, Line: 3, Text: "hour := interval_time.Hour()"}, chunks[1])
}

func TestLowerChunks_TypedVarKeepsDeclaration(t *testing.T) {
	chunks := LowerChunks(SplitChunks("var limit float64 = buy_price * 2\n"))

	require.Len(t, chunks, 2)
	assert.Equal(t, ChunkDeclarations, chunks[0].Kind)
	assert.Equal(t, "var limit float64", chunks[0].Text)
	assert.Equal(t, "limit = buy_price * 2", chunks[1].Text)
}

func TestLowerChunks_Group(t *testing.T) {
	src := "\n\nvar (\n\ta, b = 1, 2\n\tc []float64\n\t_ = a\n)\n"

	chunks := LowerChunks(SplitChunks(src))

	require.Len(t, chunks, 3)
	assert.Equal(t, 3, chunks[0].Line)
	assert.Contains(t, chunks[0].Text, "c []float64")
	assert.NotContains(t, chunks[0].Text, "a, b")
	assert.Equal(t, Chunk{Kind: ChunkStatements, Line: 4, Text: "a, b := 1, 2"}, chunks[1])
	assert.Equal(t, Chunk{Kind: ChunkStatements, Line: 6, Text: "_ = a"}, chunks[2])
}

func TestLowerChunks_LeavesOtherChunks(t *testing.T) {
	src := "const limit = 5\n\nvar spare []float64\n\naction = \"hold\"\n"

	chunks := SplitChunks(src)

	assert.Equal(t, chunks, LowerChunks(chunks))
}

func TestLowerChunks_ParseErrorLeftForInterpreter(t *testing.T) {
	chunks := SplitChunks("var x = = 1\n")

	assert.Equal(t, chunks, LowerChunks(chunks))
}
