package legality

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func legalFields() map[string]any {
	return map[string]any{
		"species":     int64(25),
		"heldItem":    int64(0),
		"level":       int64(30),
		"shiny":       false,
		"ribbons":     int64(0),
		"nickname":    "Sparky",
		"trainerName": "Ash",
	}
}

func TestCheck_Builtin(t *testing.T) {
	rs, err := Compile()
	require.NoError(t, err)
	assert.Equal(t, len(Builtin), rs.Len())

	assert.NoError(t, rs.Check(legalFields()))

	tests := []struct {
		name  string
		key   string
		value any
	}{
		{"species zero", "species", int64(0)},
		{"species too high", "species", int64(5000)},
		{"level zero", "level", int64(0)},
		{"level too high", "level", int64(101)},
		{"long nickname", "nickname", "ABCDEFGHIJKLM"},
		{"bad item", "heldItem", int64(4000)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := legalFields()
			f[tt.key] = tt.value
			err := rs.Check(f)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrIllegal))

			var ve *ViolationError
			require.True(t, errors.As(err, &ve))
			assert.NotEmpty(t, ve.Expr)
		})
	}
}

func TestCheck_ExtraRules(t *testing.T) {
	rs, err := Compile("!shiny", "level <= 50")
	require.NoError(t, err)

	assert.NoError(t, rs.Check(legalFields()))

	f := legalFields()
	f["shiny"] = true
	var ve *ViolationError
	require.ErrorAs(t, rs.Check(f), &ve)
	assert.Equal(t, "!shiny", ve.Expr)

	f = legalFields()
	f["level"] = int64(70)
	require.ErrorAs(t, rs.Check(f), &ve)
	assert.Equal(t, "level <= 50", ve.Expr)
}

func TestCompile_SyntaxError(t *testing.T) {
	_, err := Compile("level >= ")
	assert.Error(t, err)
}

func TestCheck_NonBooleanAndThrow(t *testing.T) {
	rs, err := Compile("level + 1")
	require.NoError(t, err)
	err = rs.Check(legalFields())
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrIllegal))
	assert.Contains(t, err.Error(), "want bool")

	rs, err = Compile("missingField > 1")
	require.NoError(t, err)
	err = rs.Check(legalFields())
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrIllegal))
}

func TestCheck_RunawayExpressionInterrupted(t *testing.T) {
	rs, err := Compile("(function(){ while(true){} })()")
	require.NoError(t, err)
	err = rs.Check(legalFields())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "budget")
}

// lateTimer never stops in time: its callback runs after Stop returns.
type lateTimer struct {
	f func()
}

func (l lateTimer) Stop() bool {
	go func() {
		time.Sleep(5 * time.Millisecond)
		l.f()
	}()
	return false
}

func TestCheck_LateInterruptDoesNotLeakIntoNextRule(t *testing.T) {
	orig := afterFunc
	afterFunc = func(_ time.Duration, f func()) stopper { return lateTimer{f: f} }
	t.Cleanup(func() { afterFunc = orig })

	rs, err := Compile("shiny === false", "ribbons === 0")
	require.NoError(t, err)
	require.Greater(t, rs.Len(), 2)

	assert.NoError(t, rs.Check(legalFields()))
}
