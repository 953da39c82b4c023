package sorted_test

import (
	"testing"

	"code.halcyonprotocol.io/halcyon/core/sorted"
	"code.halcyonprotocol.io/halcyon/core/types"
	"code.halcyonprotocol.io/halcyon/libs/num"
	"code.halcyonprotocol.io/halcyon/logging"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ratioMap is a RatioSource for tests, ratios are set directly.
type ratioMap map[string]*num.Uint

func (r ratioMap) NICR(party string) (*num.Uint, error) {
	nicr, ok := r[party]
	if !ok {
		return nil, types.ErrNotFound
	}
	return nicr.Clone(), nil
}

type tstList struct {
	list   *sorted.List
	ratios ratioMap
}

func getTestList(t *testing.T) *tstList {
	t.Helper()
	ratios := ratioMap{}
	return &tstList{
		list:   sorted.New(logging.NewTestLogger(), sorted.NewDefaultConfig(), ratios),
		ratios: ratios,
	}
}

func (tl *tstList) insert(t *testing.T, id string, nicr uint64, prevHint, nextHint string) {
	t.Helper()
	tl.ratios[id] = num.NewUint(nicr)
	require.NoError(t, tl.list.Insert(id, num.NewUint(nicr), prevHint, nextHint))
}

// walk returns the ids from head to tail.
func (tl *tstList) walk() []string {
	var out []string
	id, ok := tl.list.First()
	for ok {
		out = append(out, id)
		id, ok = tl.list.Next(id)
	}
	return out
}

func TestSortedList(t *testing.T) {
	t.Run("Insert keeps descending ratio order", testInsertKeepsOrder)
	t.Run("Insert with stale hints still lands correctly", testInsertStaleHints)
	t.Run("Insert rejects duplicates, zero ratios and overflow", testInsertRejections)
	t.Run("Remove relinks neighbours", testRemoveRelinks)
	t.Run("Reinsert moves an entry to its new slot", testReinsertMoves)
	t.Run("CheckPosition validates neighbour pairs", testCheckPosition)
}

func testInsertKeepsOrder(t *testing.T) {
	tl := getTestList(t)

	tl.insert(t, "carol", 300, "", "")
	tl.insert(t, "alice", 500, "", "")
	tl.insert(t, "bob", 400, "", "")
	tl.insert(t, "dave", 200, "", "")
	tl.insert(t, "erin", 450, "", "")

	assert.Equal(t, []string{"alice", "erin", "bob", "carol", "dave"}, tl.walk())

	first, ok := tl.list.First()
	require.True(t, ok)
	assert.Equal(t, "alice", first)
	last, ok := tl.list.Last()
	require.True(t, ok)
	assert.Equal(t, "dave", last)
	assert.EqualValues(t, 5, tl.list.Len())
}

func testInsertStaleHints(t *testing.T) {
	tl := getTestList(t)
	tl.insert(t, "alice", 500, "", "")
	tl.insert(t, "bob", 400, "", "")
	tl.insert(t, "carol", 300, "", "")

	// hints point at the wrong end of the list
	tl.insert(t, "dave", 450, "carol", "")
	assert.Equal(t, []string{"alice", "dave", "bob", "carol"}, tl.walk())

	// hints reference an id that was removed
	require.NoError(t, tl.list.Remove("dave"))
	delete(tl.ratios, "dave")
	tl.insert(t, "erin", 350, "dave", "dave")
	assert.Equal(t, []string{"alice", "bob", "erin", "carol"}, tl.walk())
}

func testInsertRejections(t *testing.T) {
	tl := getTestList(t)
	tl.insert(t, "alice", 500, "", "")

	tl.ratios["alice"] = num.NewUint(500)
	err := tl.list.Insert("alice", num.NewUint(500), "", "")
	assert.ErrorIs(t, err, types.ErrAlreadyExists)

	err = tl.list.Insert("bob", num.UintZero(), "", "")
	assert.ErrorIs(t, err, types.ErrInvalidRatio)

	cfg := sorted.NewDefaultConfig()
	cfg.MaxSize = 1
	small := sorted.New(logging.NewTestLogger(), cfg, tl.ratios)
	require.NoError(t, small.Insert("alice", num.NewUint(500), "", ""))
	err = small.Insert("bob", num.NewUint(400), "", "")
	assert.ErrorIs(t, err, types.ErrListFull)
}

func testRemoveRelinks(t *testing.T) {
	tl := getTestList(t)
	tl.insert(t, "alice", 500, "", "")
	tl.insert(t, "bob", 400, "", "")
	tl.insert(t, "carol", 300, "", "")

	require.NoError(t, tl.list.Remove("bob"))
	assert.Equal(t, []string{"alice", "carol"}, tl.walk())
	next, ok := tl.list.Next("alice")
	require.True(t, ok)
	assert.Equal(t, "carol", next)
	prev, ok := tl.list.Prev("carol")
	require.True(t, ok)
	assert.Equal(t, "alice", prev)

	assert.ErrorIs(t, tl.list.Remove("bob"), types.ErrNotFound)

	require.NoError(t, tl.list.Remove("alice"))
	require.NoError(t, tl.list.Remove("carol"))
	_, ok = tl.list.First()
	assert.False(t, ok)
	_, ok = tl.list.Last()
	assert.False(t, ok)
}

func testReinsertMoves(t *testing.T) {
	tl := getTestList(t)
	tl.insert(t, "alice", 500, "", "")
	tl.insert(t, "bob", 400, "", "")
	tl.insert(t, "carol", 300, "", "")

	// bob's ratio collapses below carol's
	tl.ratios["bob"] = num.NewUint(250)
	require.NoError(t, tl.list.Reinsert("bob", num.NewUint(250), "", ""))
	assert.Equal(t, []string{"alice", "carol", "bob"}, tl.walk())

	assert.ErrorIs(t, tl.list.Reinsert("dave", num.NewUint(100), "", ""), types.ErrNotFound)
	assert.ErrorIs(t, tl.list.Reinsert("bob", num.UintZero(), "", ""), types.ErrInvalidRatio)
}

func testCheckPosition(t *testing.T) {
	tl := getTestList(t)
	assert.True(t, tl.list.CheckPosition(num.NewUint(100), "", ""))

	tl.insert(t, "alice", 500, "", "")
	tl.insert(t, "carol", 300, "", "")

	assert.False(t, tl.list.CheckPosition(num.NewUint(100), "", ""))
	assert.True(t, tl.list.CheckPosition(num.NewUint(400), "alice", "carol"))
	assert.True(t, tl.list.CheckPosition(num.NewUint(600), "", "alice"))
	assert.True(t, tl.list.CheckPosition(num.NewUint(200), "carol", ""))
	// not adjacent in that order
	assert.False(t, tl.list.CheckPosition(num.NewUint(400), "carol", "alice"))
	// ratio out of range for the pair
	assert.False(t, tl.list.CheckPosition(num.NewUint(600), "alice", "carol"))
}
