package identity

import (
	"fmt"
	"io/fs"
	"strings"
	"testing"
	"unicode"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clinicops/identity/internal/platform/db"
)

// spaceClass renders the runes unicode.IsSpace accepts as a bracket
// expression, collapsing consecutive runs.
func spaceClass() string {
	var b strings.Builder
	b.WriteByte('[')
	for r := rune(0); r <= unicode.MaxRune; r++ {
		if !unicode.IsSpace(r) {
			continue
		}
		end := r
		for end+1 <= unicode.MaxRune && unicode.IsSpace(end+1) {
			end++
		}
		fmt.Fprintf(&b, `\u%04x`, r)
		if end > r {
			fmt.Fprintf(&b, `-\u%04x`, end)
		}
		r = end
	}
	b.WriteByte(']')
	return b.String()
}

func TestPGSpaceClass_MatchesUnicodeIsSpace(t *testing.T) {
	assert.Equal(t, spaceClass(), pgSpaceClass)
}

func TestPGEmailExpr_MatchesIndex(t *testing.T) {
	files, err := db.Migrations()
	require.NoError(t, err)
	sql, err := fs.ReadFile(files, "003_patients_email_key.sql")
	require.NoError(t, err)
	assert.Contains(t, string(sql), "ON patients ("+pgEmailExpr+")")
}

func TestPGNameExpr_TrimsAndCollapses(t *testing.T) {
	expr := fmt.Sprintf(pgNameExpr, "name")
	assert.True(t, strings.HasPrefix(expr, "lower(regexp_replace(regexp_replace(name, '^"+pgSpaceClass+"+|"))
	assert.Contains(t, expr, "'"+pgSpaceClass+"+', ' ', 'g')")
	assert.NotContains(t, expr, "btrim")
}
