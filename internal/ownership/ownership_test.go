package ownership_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/gitbutlerapp/butler/internal/ownership"
)

func TestParseRoundTrip(t *testing.T) {
	t.Run("hunked claim survives parse and render", func(t *testing.T) {
		claim, err := ownership.Parse("path:10-20,30-40")
		require.NoError(t, err)
		require.Equal(t, "path", claim.FilePath)
		require.Len(t, claim.Hunks, 2)
		require.Equal(t, "path:10-20,30-40", claim.String())
	})

	t.Run("whole file claim has no hunks", func(t *testing.T) {
		claim, err := ownership.Parse("src/main.go")
		require.NoError(t, err)
		require.Empty(t, claim.Hunks)
		require.Equal(t, "src/main.go", claim.String())
	})

	t.Run("single line hunk", func(t *testing.T) {
		claim, err := ownership.Parse("f:15")
		require.NoError(t, err)
		require.Equal(t, uint32(15), claim.Hunks[0].Start)
		require.Equal(t, uint32(15), claim.Hunks[0].End)
		require.Equal(t, "f:15", claim.String())
	})

	t.Run("rejects malformed input", func(t *testing.T) {
		_, err := ownership.Parse("")
		require.Error(t, err)
		_, err = ownership.Parse(":10-20")
		require.Error(t, err)
		_, err = ownership.Parse("f:20-10")
		require.Error(t, err)
		_, err = ownership.Parse("f:abc")
		require.Error(t, err)
	})
}

func mustParse(t *testing.T, s string) *ownership.Claim {
	t.Helper()
	claim, err := ownership.Parse(s)
	require.NoError(t, err)
	return claim
}

func TestMinus(t *testing.T) {
	t.Run("subtracting a part splits the claim", func(t *testing.T) {
		claim := mustParse(t, "path:10-20,30-40")
		taken, remaining := claim.Minus(mustParse(t, "path:10-20"))
		require.NotNil(t, taken)
		require.Equal(t, "path:10-20", taken.String())
		require.NotNil(t, remaining)
		require.Equal(t, "path:30-40", remaining.String())
	})

	t.Run("subtracting itself takes everything", func(t *testing.T) {
		claim := mustParse(t, "path:10-20,30-40")
		taken, remaining := claim.Minus(mustParse(t, "path:10-20,30-40"))
		require.NotNil(t, taken)
		require.Equal(t, claim.String(), taken.String())
		require.Nil(t, remaining)
	})

	t.Run("different file takes nothing", func(t *testing.T) {
		claim := mustParse(t, "path:10-20")
		taken, remaining := claim.Minus(mustParse(t, "other:10-20"))
		require.Nil(t, taken)
		require.Equal(t, claim, remaining)
	})

	t.Run("whole file subtraction takes the entire claim", func(t *testing.T) {
		claim := mustParse(t, "path:10-20,30-40")
		taken, remaining := claim.Minus(mustParse(t, "path"))
		require.Equal(t, claim, taken)
		require.Nil(t, remaining)
	})
}

func TestPlusMinusAlgebra(t *testing.T) {
	t.Run("plus then minus returns the added claim", func(t *testing.T) {
		a := mustParse(t, "f:1-5,20-25")
		b := mustParse(t, "f:10-15")

		sum := a.Plus(b)
		taken, remaining := sum.Minus(b)
		require.Equal(t, "f:10-15", taken.String())
		require.Equal(t, a.String(), remaining.String())
	})

	t.Run("plus deduplicates shared hunks", func(t *testing.T) {
		a := mustParse(t, "f:1-5,10-15")
		b := mustParse(t, "f:10-15")

		sum := a.Plus(b)
		require.Equal(t, "f:1-5,10-15", sum.String())

		taken, remaining := sum.Minus(b)
		require.Equal(t, "f:10-15", taken.String())
		require.Equal(t, "f:1-5", remaining.String())
	})

	t.Run("plus ignores claims of other files", func(t *testing.T) {
		a := mustParse(t, "f:1-5")
		sum := a.Plus(mustParse(t, "g:1-5"))
		require.Equal(t, a, sum)
	})
}

func TestOwnershipTake(t *testing.T) {
	own, err := ownership.ParseOwnership("a:1-5,10-15\nb:3-4")
	require.NoError(t, err)

	taken := own.Take(mustParse(t, "a:1-5"))
	require.NotNil(t, taken)
	require.Equal(t, "a:1-5", taken.String())
	require.Equal(t, "a:10-15\nb:3-4", own.String())

	taken = own.Take(mustParse(t, "b:3-4"))
	require.Equal(t, "b:3-4", taken.String())
	require.Equal(t, "a:10-15", own.String())
}
