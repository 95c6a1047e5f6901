package registry

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/pztrick/television/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func echoHandler(_ context.Context, _ domain.Session, args Args) (any, error) {
	return len(args), nil
}

func otherHandler(_ context.Context, _ domain.Session, _ Args) (any, error) {
	return "other", nil
}

func TestRegister_ResolveReturnsSameListener(t *testing.T) {
	r := New()
	require.NoError(t, r.Listen("chat.send", echoHandler))
	r.Seal()

	first, err := r.Resolve("chat.send")
	require.NoError(t, err)

	for i := 0; i < 10; i++ {
		l, err := r.Resolve("chat.send")
		require.NoError(t, err)
		assert.Same(t, first, l)
	}
}

func TestRegister_Duplicate(t *testing.T) {
	r := New()
	require.NoError(t, r.Listen("chat.send", echoHandler))

	err := r.Listen("chat.send", otherHandler)
	require.ErrorIs(t, err, domain.ErrDuplicateChannel)

	r.Seal()
	err = r.Listen("chat.send", echoHandler)
	require.ErrorIs(t, err, domain.ErrDuplicateChannel)
}

func TestRegister_InternalOverwriteDuringBootstrap(t *testing.T) {
	r := New()
	require.NoError(t, r.Register(Listener{Channel: "core.task.list", Handler: echoHandler, Internal: true}))
	require.NoError(t, r.Listen("ping", echoHandler))
	require.NoError(t, r.Register(Listener{Channel: "core.task.list", Handler: otherHandler, Internal: true}))

	l, err := r.Resolve("core.task.list")
	require.NoError(t, err)
	got, err := l.Handler(context.Background(), nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "other", got)

	// Overwrite keeps the original position.
	entries := r.List()
	require.Len(t, entries, 2)
	assert.Equal(t, domain.Channel("core.task.list"), entries[0].Channel)
	assert.Equal(t, domain.Channel("ping"), entries[1].Channel)
}

func TestRegister_InternalOverExternalFails(t *testing.T) {
	r := New()
	require.NoError(t, r.Listen("core.task.list", echoHandler))

	err := r.Register(Listener{Channel: "core.task.list", Handler: otherHandler, Internal: true})
	require.ErrorIs(t, err, domain.ErrDuplicateChannel)
}

func TestRegister_InternalOverwriteAfterSealFails(t *testing.T) {
	r := New()
	require.NoError(t, r.Register(Listener{Channel: "core.task.list", Handler: echoHandler, Internal: true}))
	r.Seal()

	err := r.Register(Listener{Channel: "core.task.list", Handler: echoHandler, Internal: true})
	require.ErrorIs(t, err, domain.ErrDuplicateChannel)
}

func TestRegister_NewChannelAfterSeal(t *testing.T) {
	r := New()
	r.Seal()

	err := r.Listen("late", echoHandler)
	require.ErrorIs(t, err, domain.ErrRegistrySealed)
	assert.Equal(t, 0, r.Len())
}

func TestRegister_Invalid(t *testing.T) {
	r := New()
	assert.Error(t, r.Listen("", echoHandler))
	assert.Error(t, r.Listen("nil.handler", nil))
}

func TestResolve_NotFound(t *testing.T) {
	r := New()
	_, err := r.Resolve("missing.one")

	var notFound *domain.ListenerNotFoundError
	require.ErrorAs(t, err, &notFound)
	assert.Equal(t, "Listener not defined for channel 'missing.one'", err.Error())
}

func TestList_OrderAndOrigin(t *testing.T) {
	r := New()
	require.NoError(t, r.Listen("b", echoHandler))
	require.NoError(t, r.Listen("a", otherHandler))
	require.NoError(t, r.Register(Listener{Channel: "c", Handler: echoHandler, Origin: "custom"}))

	entries := r.List()
	require.Len(t, entries, 3)
	assert.Equal(t, domain.Channel("b"), entries[0].Channel)
	assert.Contains(t, entries[0].Description, "registry.echoHandler")
	assert.Equal(t, domain.Channel("a"), entries[1].Channel)
	assert.Equal(t, "custom", entries[2].Description)
}

func TestArgs_Decode(t *testing.T) {
	args := Args{json.RawMessage(`"hello"`), json.RawMessage(`{"n":3}`)}

	s, err := args.String(0)
	require.NoError(t, err)
	assert.Equal(t, "hello", s)

	var v struct{ N int }
	require.NoError(t, args.Decode(1, &v))
	assert.Equal(t, 3, v.N)

	assert.Error(t, args.Decode(2, &v))
	_, err = args.String(1)
	assert.Error(t, err)
}
