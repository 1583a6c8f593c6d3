package keel

import (
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

type recordingInterceptor struct {
	before  []reflect.Type
	after   []reflect.Type
	lastErr error
	elapsed time.Duration
	abort   error
}

func (i *recordingInterceptor) BeforeResolve(registry string, t reflect.Type) error {
	i.before = append(i.before, t)

	return i.abort
}

func (i *recordingInterceptor) AfterResolve(registry string, t reflect.Type, value any, elapsed time.Duration, err error) {
	i.after = append(i.after, t)
	i.lastErr = err
	i.elapsed = elapsed
}

func TestInterceptor_ObservesEveryLookup(t *testing.T) {
	ic := &recordingInterceptor{}
	r := New("node", WithInterceptors(ic))
	require.NoError(t, r.Add(&vault{}))

	_, err := Get[*vault](r)
	require.NoError(t, err)

	vaultType := reflect.TypeOf((*(*vault))(nil)).Elem()
	assert.Equal(t, []reflect.Type{vaultType}, ic.before)
	assert.Equal(t, []reflect.Type{vaultType}, ic.after)
	assert.NoError(t, ic.lastErr)
}

func TestInterceptor_SeesFailures(t *testing.T) {
	ic := &recordingInterceptor{}
	r := New("node", WithInterceptors(ic))

	_, err := Get[*vault](r)
	require.ErrorIs(t, err, ErrNotFound)

	require.Len(t, ic.after, 1)
	assert.ErrorIs(t, ic.lastErr, ErrNotFound)
}

func TestInterceptor_BeforeCanAbort(t *testing.T) {
	denied := errors.New("denied")
	ic := &recordingInterceptor{abort: denied}
	r := New("node", WithInterceptors(ic))
	require.NoError(t, r.Add(&vault{}))

	_, err := Get[*vault](r)
	assert.ErrorIs(t, err, denied)

	// The lookup never ran, so AfterResolve never fired.
	assert.Empty(t, ic.after)
}

func TestInterceptor_SkippedOnClosedRegistry(t *testing.T) {
	ic := &recordingInterceptor{}
	r := New("node", WithInterceptors(ic))
	require.NoError(t, r.Add(&vault{}))
	require.NoError(t, r.Close())

	_, err := Get[*vault](r)
	require.ErrorIs(t, err, ErrClosedRegistry)

	assert.Empty(t, ic.before)
	assert.Empty(t, ic.after)
}

func TestInterceptorFuncs(t *testing.T) {
	var beforeCalls, afterCalls int

	ic := InterceptorFuncs{
		OnBefore: func(registry string, _ reflect.Type) error {
			beforeCalls++

			assert.Equal(t, "node", registry)

			return nil
		},
		OnAfter: func(string, reflect.Type, any, time.Duration, error) {
			afterCalls++
		},
	}

	r := New("node", WithInterceptors(ic))
	require.NoError(t, r.Add(&vault{}))

	_, err := Get[*vault](r)
	require.NoError(t, err)
	assert.Equal(t, 1, beforeCalls)
	assert.Equal(t, 1, afterCalls)
}

func TestInterceptorFuncs_NilCallbacksAreOptional(t *testing.T) {
	r := New("node", WithInterceptors(InterceptorFuncs{}))
	require.NoError(t, r.Add(&vault{}))

	_, err := Get[*vault](r)
	assert.NoError(t, err)
}

func TestLogging_EmitsResolutionEvents(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	r := New("node", WithLogger(zap.New(core)))
	require.NoError(t, r.Add(&vault{}))

	_, err := Get[*vault](r)
	require.NoError(t, err)

	_, err = Get[*ledger](r)
	require.ErrorIs(t, err, ErrNotFound)

	assert.Equal(t, 1, logs.FilterMessage("service added").Len())
	assert.Equal(t, 1, logs.FilterMessage("service resolved").Len())
	assert.Equal(t, 1, logs.FilterMessage("resolution failed").Len())
}
