package render

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRender_SubstitutesAllKeys(t *testing.T) {
	got := Render("[A]さん、[B]へ", map[string]string{"A": "田中", "B": "渋谷"})
	assert.Equal(t, "田中さん、渋谷へ", got)
}

func TestRender_LeavesUnboundPlaceholders(t *testing.T) {
	assert.Equal(t, "x[C]", Render("[A][C]", map[string]string{"A": "x"}))
}

func TestRender_ReplacesEveryOccurrence(t *testing.T) {
	got := Render("[P] provides the service. Contact [P].", map[string]string{"P": "Acme"})
	assert.Equal(t, "Acme provides the service. Contact Acme.", got)
}

func TestRender_KeysAreLiteral(t *testing.T) {
	values := map[string]string{
		"a.b":    "dot",
		"x*":     "star",
		"(c)":    "paren",
		"$1":     "dollar",
		"^[q]?$": "meta",
	}
	got := Render("[a.b] [axb] [x*] [(c)] [$1]", values)
	assert.Equal(t, "dot [axb] star paren dollar", got)
}

func TestRender_OverlappingKeys(t *testing.T) {
	values := map[string]string{"A": "1", "AB": "2", "A]x[B": "3"}
	for i := 0; i < 20; i++ {
		assert.Equal(t, "1 2 3", Render("[A] [AB] [A]x[B]", values))
	}
}

func TestRender_ValuesAreNotReexpanded(t *testing.T) {
	got := Render("[A]", map[string]string{"A": "[B]", "B": "no"})
	assert.Equal(t, "[B]", got)
}

func TestRender_EmptyInputs(t *testing.T) {
	assert.Equal(t, "", Render("", map[string]string{"A": "x"}))
	assert.Equal(t, "[A]", Render("[A]", nil))
	assert.Equal(t, "[A]", Render("[A]", map[string]string{}))
}

func TestPlaceholders(t *testing.T) {
	assert.Equal(t, []string{"PROVIDER", "DATE"}, Placeholders("[PROVIDER] on [DATE] by [PROVIDER]"))
	assert.Empty(t, Placeholders("no tokens [] here"))
}

func TestUnbound(t *testing.T) {
	got := Unbound("[A] [B] [C]", map[string]string{"B": "x"})
	assert.Equal(t, []string{"A", "C"}, got)
}
