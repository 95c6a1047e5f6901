package binding

import (
	"context"
	"testing"

	"github.com/pztrick/television/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_CRUD(t *testing.T) {
	ctx := context.Background()
	store, err := NewMemoryStore[task]()
	require.NoError(t, err)

	a, err := store.Create(ctx, task{ID: 77, Title: "a"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), a.ID, "create assigns the pk")

	b, err := store.Create(ctx, task{Title: "b"})
	require.NoError(t, err)
	assert.Equal(t, int64(2), b.ID)

	list, err := store.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "b", list[0].Title, "newest first")

	a.Title = "a2"
	updated, err := store.Update(ctx, 1, a)
	require.NoError(t, err)
	assert.Equal(t, "a2", updated.Title)

	require.NoError(t, store.Delete(ctx, 2))
	_, err = store.Get(ctx, 2)
	assert.ErrorIs(t, err, domain.ErrEntityNotFound)
	assert.ErrorIs(t, store.Delete(ctx, 2), domain.ErrEntityNotFound)
	_, err = store.Update(ctx, 2, b)
	assert.ErrorIs(t, err, domain.ErrEntityNotFound)
}

func TestNewMemoryStore_RejectsModelsWithoutPK(t *testing.T) {
	type noPK struct{ Name string }
	_, err := NewMemoryStore[noPK]()
	assert.ErrorContains(t, err, "no primary key")

	type stringPK struct {
		ID string
	}
	_, err = NewMemoryStore[stringPK]()
	assert.ErrorContains(t, err, "must be an integer")
}

func TestPK(t *testing.T) {
	type tagged struct {
		Key  int32 `tv:"pk"`
		Name string
	}
	pk, err := PK(tagged{Key: 12})
	require.NoError(t, err)
	assert.Equal(t, int64(12), pk)
}

func TestParseFields(t *testing.T) {
	assert.Equal(t, All(), ParseFields(nil, false))
	assert.Equal(t, NoFields(), ParseFields([]string{"a"}, true))
	assert.Equal(t, Only("a", "b"), ParseFields([]string{"a", "b"}, false))
	assert.Equal(t, All(), ParseFields([]string{AllFields}, false))
}

func TestCamel(t *testing.T) {
	assert.Equal(t, "DisplayName", camel("display_name"))
	assert.Equal(t, "OwnerID", camel("owner_id"))
	assert.Equal(t, "Title", camel("Title"))
}
