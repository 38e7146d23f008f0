package bridge

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBuildCandidatePageNone(t *testing.T) {
	_, ok := BuildCandidatePage(&fakeEngine{perPage: 10})
	assert.False(t, ok)
}

func TestBuildCandidatePage(t *testing.T) {
	f := &fakeEngine{
		cands:      []string{"一", "二", "三", "四", "五"},
		perPage:    3,
		totalPages: 2,
		curPage:    1,
	}
	page, ok := BuildCandidatePage(f)
	assert.True(t, ok)
	assert.Equal(t, []string{"四", "五"}, page.Items)
	assert.Equal(t, 3, page.PerPage)
	assert.Equal(t, 2, page.TotalPages)
	assert.Equal(t, 1, page.CurrentPage)
}

func TestBuildCandidatePageStopsAtPageSize(t *testing.T) {
	f := &fakeEngine{cands: []string{"a", "b", "c", "d"}, perPage: 2, totalPages: 2}
	page, ok := BuildCandidatePage(f)
	assert.True(t, ok)
	assert.Equal(t, []string{"a", "b"}, page.Items)
}

func TestBuildCandidatePageEmpty(t *testing.T) {
	f := &fakeEngine{cands: []string{"a"}, perPage: 2, totalPages: 1, curPage: 3}
	page, ok := BuildCandidatePage(f)
	assert.True(t, ok)
	assert.NotNil(t, page.Items)
	assert.Empty(t, page.Items)
}
