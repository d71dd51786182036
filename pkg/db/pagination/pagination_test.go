package pagination

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildPageInfoTrimsAndEncodesCursor(t *testing.T) {
	rows := []uint64{1, 2, 3, 4}

	page, info := BuildPageInfo(rows, 3, func(id uint64) uint64 { return id })
	assert.Equal(t, []uint64{1, 2, 3}, page)
	require.True(t, info.HasMore)

	after, err := Pagination{PageToken: info.NextPageToken}.AfterID()
	require.NoError(t, err)
	assert.Equal(t, uint64(3), after)
}

func TestBuildPageInfoLastPage(t *testing.T) {
	page, info := BuildPageInfo([]uint64{7}, 3, func(id uint64) uint64 { return id })
	assert.Equal(t, []uint64{7}, page)
	assert.False(t, info.HasMore)
	assert.Empty(t, info.NextPageToken)
}

func TestLimitBounds(t *testing.T) {
	assert.Equal(t, DefaultPageSize, Pagination{}.Limit())
	assert.Equal(t, MaxPageSize, Pagination{PageSize: 1000}.Limit())
	assert.Equal(t, 10, Pagination{PageSize: 10}.Limit())
}

func TestAfterIDRejectsGarbage(t *testing.T) {
	_, err := Pagination{PageToken: "%%%"}.AfterID()
	assert.ErrorIs(t, err, ErrInvalidPageToken)
}
