package keel

import (
	"errors"
	"fmt"
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestError_MatchesSentinelByCode(t *testing.T) {
	err := errNotFound("node", reflect.TypeOf((*(*vault))(nil)).Elem())

	assert.ErrorIs(t, err, ErrNotFound)
	assert.NotErrorIs(t, err, ErrAmbiguous)
	assert.NotErrorIs(t, err, ErrClosedRegistry)
}

func TestError_UnwrapsCause(t *testing.T) {
	cause := errors.New("connection refused")
	err := errCreationFailed("dialProvider.CreateConn()", cause)

	assert.ErrorIs(t, err, ErrCreationFailed)
	assert.ErrorIs(t, err, cause)

	var e *Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, CodeCreationFailed, e.Code)
	assert.Equal(t, cause, e.Cause)
}

func TestError_MessageIncludesCause(t *testing.T) {
	err := errCreationFailed("p.CreateThing()", errors.New("boom"))

	assert.Contains(t, err.Error(), "p.CreateThing()")
	assert.Contains(t, err.Error(), "boom")
}

func TestError_DiagnosticMessages(t *testing.T) {
	vaultType := reflect.TypeOf((*(*vault))(nil)).Elem()

	tests := []struct {
		name     string
		err      error
		sentinel error
		want     []string
	}{
		{
			name:     "not found",
			err:      errNotFound("build services", vaultType),
			sentinel: ErrNotFound,
			want:     []string{"*keel.vault", "build services"},
		},
		{
			name:     "factory not found",
			err:      errFactoryNotFound("build services", vaultType),
			sentinel: ErrNotFound,
			want:     []string{"no factory", "*keel.vault", "build services"},
		},
		{
			name: "ambiguous",
			err: errAmbiguous("node", vaultType, []string{
				"instance of *keel.vault", "p.CreateVault()",
			}),
			sentinel: ErrAmbiguous,
			want:     []string{"multiple", "instance of *keel.vault", "p.CreateVault()"},
		},
		{
			name:     "missing dependency",
			err:      errMissingDependency(vaultType, "p.CreateVault()", reflect.TypeOf((*(*ledger))(nil)).Elem()),
			sentinel: ErrMissingDependency,
			want: []string{
				"cannot create service of type *keel.vault",
				"p.CreateVault() requires a *keel.ledger",
				"not available",
			},
		},
		{
			name:     "cycle",
			err:      errCycle("p.CreateVault()"),
			sentinel: ErrCycle,
			want:     []string{"cycle", "p.CreateVault()"},
		},
		{
			name:     "closed",
			err:      errClosed("node"),
			sentinel: ErrClosedRegistry,
			want:     []string{"closed", "node"},
		},
		{
			name:     "decorator without parent",
			err:      errDecoratorWithoutParent("d.DecorateVault()"),
			sentinel: ErrDecoratorWithoutParent,
			want:     []string{"d.DecorateVault()", "parent"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, tt.err, tt.sentinel)

			for _, fragment := range tt.want {
				assert.Contains(t, tt.err.Error(), fragment)
			}
		})
	}
}

func TestError_WorksWithFmtErrorf(t *testing.T) {
	inner := errNotFound("node", reflect.TypeOf((*(*vault))(nil)).Elem())
	wrapped := fmt.Errorf("resolving pipeline: %w", inner)

	assert.ErrorIs(t, wrapped, ErrNotFound)

	var e *Error
	require.ErrorAs(t, wrapped, &e)
	assert.Equal(t, CodeNotFound, e.Code)
}

func TestTypeName(t *testing.T) {
	assert.Equal(t, "*keel.vault", typeName(reflect.TypeOf((*(*vault))(nil)).Elem()))
	assert.Equal(t, "keel.store", typeName(reflect.TypeOf((*(store))(nil)).Elem()))
	assert.Equal(t, "<nil>", typeName(nil))
}
