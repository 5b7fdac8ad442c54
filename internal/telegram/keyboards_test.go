package telegram

import (
	"testing"

	"github.com/sifan077/PowerStash/internal/app/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTTLKeyboardRoundTrip(t *testing.T) {
	kb := ttlKeyboard(42)
	require.Len(t, kb, 2)

	var minutes []int
	for _, row := range kb {
		for _, b := range row {
			m, id, ok := parseTTLData(b.Data)
			require.True(t, ok, b.Data)
			assert.Equal(t, 42, id)
			minutes = append(minutes, m)
		}
	}
	assert.Equal(t, []int{10, 60, 1440, 10080, 0}, minutes)
}

func TestParseTTLDataRejectsJunk(t *testing.T) {
	for _, data := range []string{"", "ttl:", "ttl:10", "ttl:x:1", "ttl:-5:1", "ttl:10:0", "post:1"} {
		_, _, ok := parseTTLData(data)
		assert.False(t, ok, data)
	}
}

func TestSearchResultsKeyboard(t *testing.T) {
	kb := searchResultsKeyboard([]model.SearchPost{
		{ID: 3, Title: "Avengers"},
		{ID: 9, Title: "A very long title that keeps going well past the width a button can show"},
	})
	require.Len(t, kb, 2)
	assert.Equal(t, "post:3", kb[0][0].Data)

	id, ok := parsePostData(kb[1][0].Data)
	require.True(t, ok)
	assert.Equal(t, uint64(9), id)
	assert.Len(t, []rune(kb[1][0].Text), 48)

	_, ok = parsePostData("post:zero")
	assert.False(t, ok)
}
