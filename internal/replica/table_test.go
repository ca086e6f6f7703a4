package replica

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type counter struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

func TestTable_Mutate(t *testing.T) {
	ctx := context.Background()
	tbl := NewTable[counter](NewMemoryStore(), ChannelPoll)

	ok, err := tbl.Mutate(ctx, "c", func(v *counter, exists bool) bool {
		return exists
	})
	require.NoError(t, err)
	assert.False(t, ok)

	_, found, err := tbl.Get(ctx, "c")
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, tbl.Put(ctx, "c", counter{Name: "a"}))
	for i := 0; i < 3; i++ {
		ok, err = tbl.Mutate(ctx, "c", func(v *counter, exists bool) bool {
			v.Count++
			return true
		})
		require.NoError(t, err)
		assert.True(t, ok)
	}

	v, found, err := tbl.Get(ctx, "c")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, counter{Name: "a", Count: 3}, v)
}

func TestTable_FindAndOnChange(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	tbl := NewTable[counter](store, ChannelSurvey)

	var seen []string
	var deleted int
	tbl.OnChange(func(id string, v *counter) {
		if v == nil {
			deleted++
			return
		}
		seen = append(seen, v.Name)
	})

	require.NoError(t, tbl.Put(ctx, "2", counter{Name: "two"}))
	require.NoError(t, tbl.Put(ctx, "1", counter{Name: "one"}))
	require.NoError(t, store.Put(ctx, ChannelSurvey, "junk", []byte(`not json`)))

	rows, err := tbl.All(ctx)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "1", rows[0].ID)

	row, ok, err := tbl.Find(ctx, func(c counter) bool { return c.Name == "two" })
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "2", row.ID)

	require.NoError(t, tbl.Clear(ctx))
	assert.Equal(t, []string{"two", "one"}, seen)
	// junk notified as nil once on write and once on delete
	assert.Equal(t, 4, deleted)
}
