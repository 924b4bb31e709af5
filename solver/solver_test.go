package solver

import (
	"testing"

	"github.com/notargets/StressRefine/assembly"
	"github.com/notargets/StressRefine/errors"
	"github.com/notargets/StressRefine/solution"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func system(t *testing.T, K [][]float64, f []float64) *assembly.System {
	t.Helper()
	st := solution.NewStore()
	st.Allocate(len(f))
	st.Copy(f)
	sys := assembly.NewSystem(len(f), st)
	for i, row := range K {
		for j, v := range row {
			sys.Add(i, j, v)
		}
	}
	return sys
}

func TestSolveSPD(t *testing.T) {
	K := [][]float64{
		{4, -1, 0},
		{-1, 4, -1},
		{0, -1, 4},
	}
	f := []float64{1, 2, 3}
	for _, kind := range []Kind{Cholesky, LU} {
		t.Run(kind.String(), func(t *testing.T) {
			sys := system(t, K, f)
			require.NoError(t, New(Options{Kind: kind}, nil).Solve(sys))
			u := sys.RHS.Vector()
			// the solver leaves K alone, so K u must reproduce f
			r := sys.MulVec(u)
			for i := range f {
				assert.InDelta(t, f[i], r[i], 1.e-13)
			}
		})
	}
}

func TestIndefiniteNeedsLU(t *testing.T) {
	K := [][]float64{{1, 2}, {2, 1}}
	f := []float64{3, 3}

	err := New(Options{Kind: Cholesky}, nil).Solve(system(t, K, f))
	assert.True(t, errors.IsNumerical(err))
	assert.True(t, errors.Is(err, errors.ErrSingularSystem))

	sys := system(t, K, f)
	require.NoError(t, New(Options{Kind: LU}, nil).Solve(sys))
	assert.InDeltaSlice(t, []float64{1, 1}, sys.RHS.Vector(), 1.e-14)
}

func TestSingular(t *testing.T) {
	K := [][]float64{{1, 1}, {1, 1}}
	for _, kind := range []Kind{Cholesky, LU} {
		err := New(Options{Kind: kind}, nil).Solve(system(t, K, []float64{1, 0}))
		assert.True(t, errors.Is(err, errors.ErrSingularSystem), kind.String())
	}
}

func TestConditionLimit(t *testing.T) {
	K := [][]float64{{1, 0}, {0, 1.e-4}}
	f := []float64{1, 1}
	for _, kind := range []Kind{Cholesky, LU} {
		err := New(Options{Kind: kind, ConditionLimit: 10}, nil).Solve(system(t, K, f))
		assert.True(t, errors.Is(err, errors.ErrSingularSystem), kind.String())

		sys := system(t, K, f)
		require.NoError(t, New(Options{Kind: kind}, nil).Solve(sys))
		assert.InDeltaSlice(t, []float64{1, 1.e4}, sys.RHS.Vector(), 1.e-9)
	}
}

func TestMaxEquations(t *testing.T) {
	K := [][]float64{{2, 0, 0}, {0, 2, 0}, {0, 0, 2}}
	f := []float64{2, 4, 6}
	for _, kind := range []Kind{Cholesky, LU} {
		sys := system(t, K, f)
		err := New(Options{Kind: kind, MaxEquations: 2}, nil).Solve(sys)
		require.Error(t, err, kind.String())
		assert.True(t, errors.Is(err, errors.ErrSystemTooLarge), kind.String())
		assert.True(t, errors.IsResource(err), kind.String())
		// the right-hand side is left as it was
		assert.Equal(t, f, sys.RHS.Vector(), kind.String())

		require.NoError(t, New(Options{Kind: kind, MaxEquations: 3}, nil).Solve(sys))
		assert.InDeltaSlice(t, []float64{1, 2, 3}, sys.RHS.Vector(), 1.e-14)
	}
}

func TestParseKind(t *testing.T) {
	k, err := ParseKind("lu")
	require.NoError(t, err)
	assert.Equal(t, LU, k)
	k, err = ParseKind("")
	require.NoError(t, err)
	assert.Equal(t, Cholesky, k)
	_, err = ParseKind("pardiso")
	assert.True(t, errors.IsConfiguration(err))
}
