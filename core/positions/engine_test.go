package positions_test

import (
	"context"
	"testing"

	bmocks "code.halcyonprotocol.io/halcyon/core/broker/mocks"
	"code.halcyonprotocol.io/halcyon/core/positions"
	"code.halcyonprotocol.io/halcyon/core/types"
	"code.halcyonprotocol.io/halcyon/libs/num"
	"code.halcyonprotocol.io/halcyon/logging"

	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type tstEngine struct {
	*positions.Engine
	ctrl *gomock.Controller
}

func getTestEngine(t *testing.T) *tstEngine {
	t.Helper()
	ctrl := gomock.NewController(t)
	broker := bmocks.NewMockInterface(ctrl)
	broker.EXPECT().Send(gomock.Any()).AnyTimes()

	return &tstEngine{
		Engine: positions.New(logging.NewTestLogger(), positions.NewDefaultConfig(), broker),
		ctrl:   ctrl,
	}
}

// open is a helper funding a fresh position in one go.
func (e *tstEngine) open(t *testing.T, party string, collateral, debt uint64) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, e.Create(ctx, party))
	require.NoError(t, e.IncreaseCollateral(ctx, party, num.NewUint(collateral)))
	require.NoError(t, e.IncreaseDebt(ctx, party, num.NewUint(debt)))
	e.IncreaseTotalCollateral(num.NewUint(collateral))
	e.IncreaseTotalDebt(num.NewUint(debt))
}

func TestPositionLedger(t *testing.T) {
	t.Run("Create and remove positions", testCreateRemove)
	t.Run("Adjustments validate balances before mutating", testAdjustments)
	t.Run("Nominal ratio reflects current amounts", testNominalRatio)
	t.Run("Protocol totals are checked on decrease", testTotals)
}

func testCreateRemove(t *testing.T) {
	e := getTestEngine(t)
	defer e.ctrl.Finish()
	ctx := context.Background()

	require.NoError(t, e.Create(ctx, "alice"))
	assert.ErrorIs(t, e.Create(ctx, "alice"), types.ErrAlreadyExists)
	assert.True(t, e.Has("alice"))
	assert.Equal(t, 1, e.Len())

	e.open(t, "bob", 100, 50)
	assert.Equal(t, []string{"alice", "bob"}, e.Parties())

	require.NoError(t, e.Remove(ctx, "alice", "closed"))
	assert.False(t, e.Has("alice"))
	assert.ErrorIs(t, e.Remove(ctx, "alice", "closed"), types.ErrNotFound)
	// bob's stake is all that is left
	assert.True(t, e.TotalStakes().EQ(num.NewUint(100)))
}

func testAdjustments(t *testing.T) {
	e := getTestEngine(t)
	defer e.ctrl.Finish()
	ctx := context.Background()

	assert.ErrorIs(t, e.IncreaseCollateral(ctx, "ghost", num.NewUint(1)), types.ErrNotFound)
	assert.ErrorIs(t, e.DecreaseDebt(ctx, "ghost", num.NewUint(1)), types.ErrNotFound)

	e.open(t, "alice", 1000, 400)

	require.NoError(t, e.DecreaseCollateral(ctx, "alice", num.NewUint(300)))
	require.NoError(t, e.DecreaseDebt(ctx, "alice", num.NewUint(100)))

	coll, debt, err := e.GetAmounts("alice")
	require.NoError(t, err)
	assert.True(t, coll.EQ(num.NewUint(700)))
	assert.True(t, debt.EQ(num.NewUint(300)))

	// over-withdrawals fail without touching the position
	assert.ErrorIs(t, e.DecreaseCollateral(ctx, "alice", num.NewUint(701)), types.ErrInsufficientBalance)
	assert.ErrorIs(t, e.DecreaseDebt(ctx, "alice", num.NewUint(301)), types.ErrInsufficientBalance)
	coll, debt, err = e.GetAmounts("alice")
	require.NoError(t, err)
	assert.True(t, coll.EQ(num.NewUint(700)))
	assert.True(t, debt.EQ(num.NewUint(300)))

	// stake tracks collateral
	assert.True(t, e.TotalStakes().EQ(num.NewUint(700)))
}

func testNominalRatio(t *testing.T) {
	e := getTestEngine(t)
	defer e.ctrl.Finish()

	e.open(t, "alice", 200, 100)
	nicr, err := e.NICR("alice")
	require.NoError(t, err)
	// 200 * 1e9 / 100
	assert.True(t, nicr.EQ(num.NewUint(2_000_000_000)))

	e.open(t, "bob", 200, 0)
	nicr, err = e.NICR("bob")
	require.NoError(t, err)
	assert.True(t, nicr.EQ(num.MaxUint()))

	_, err = e.NICR("ghost")
	assert.ErrorIs(t, err, types.ErrNotFound)
}

func testTotals(t *testing.T) {
	e := getTestEngine(t)
	defer e.ctrl.Finish()

	e.IncreaseTotalCollateral(num.NewUint(1000))
	e.IncreaseTotalDebt(num.NewUint(400))
	require.NoError(t, e.DecreaseTotalCollateral(num.NewUint(250)))
	require.NoError(t, e.DecreaseTotalDebt(num.NewUint(400)))

	assert.True(t, e.TotalCollateral().EQ(num.NewUint(750)))
	assert.True(t, e.TotalDebt().IsZero())

	assert.ErrorIs(t, e.DecreaseTotalCollateral(num.NewUint(751)), types.ErrInsufficientBalance)
	assert.ErrorIs(t, e.DecreaseTotalDebt(num.NewUint(1)), types.ErrInsufficientBalance)
}

func TestRedistribution(t *testing.T) {
	t.Run("Remainders are shared pro-rata by stake", testRedistributeProRata)
	t.Run("Rounding dust is carried, never lost", testRedistributeDustCarry)
	t.Run("Redistribution requires a surviving stake", testRedistributeNoStake)
}

func testRedistributeProRata(t *testing.T) {
	e := getTestEngine(t)
	defer e.ctrl.Finish()
	ctx := context.Background()

	e.open(t, "alice", 100, 10)
	e.open(t, "bob", 300, 10)

	require.NoError(t, e.Redistribute(ctx, num.NewUint(40), num.NewUint(20)))

	collA, debtA := e.PendingRewards("alice")
	collB, debtB := e.PendingRewards("bob")
	assert.True(t, collA.EQ(num.NewUint(10)))
	assert.True(t, debtA.EQ(num.NewUint(5)))
	assert.True(t, collB.EQ(num.NewUint(30)))
	assert.True(t, debtB.EQ(num.NewUint(15)))

	// current amounts include the pending rewards, recorded ones do not
	coll, debt, err := e.CurrentAmounts("alice")
	require.NoError(t, err)
	assert.True(t, coll.EQ(num.NewUint(110)))
	assert.True(t, debt.EQ(num.NewUint(15)))
	coll, debt, err = e.GetAmounts("alice")
	require.NoError(t, err)
	assert.True(t, coll.EQ(num.NewUint(100)))
	assert.True(t, debt.EQ(num.NewUint(10)))

	// applying folds them in and refreshes the stake
	require.NoError(t, e.ApplyPendingRewards(ctx, "alice"))
	coll, _, err = e.GetAmounts("alice")
	require.NoError(t, err)
	assert.True(t, coll.EQ(num.NewUint(110)))
	collA, debtA = e.PendingRewards("alice")
	assert.True(t, collA.IsZero())
	assert.True(t, debtA.IsZero())
}

func testRedistributeDustCarry(t *testing.T) {
	e := getTestEngine(t)
	defer e.ctrl.Finish()
	ctx := context.Background()

	e.open(t, "alice", 1, 1)
	e.open(t, "bob", 2, 1)

	// one unit over three of stake does not divide, the remainder must
	// carry across rounds so three rounds distribute exactly three units
	for i := 0; i < 3; i++ {
		require.NoError(t, e.Redistribute(ctx, num.NewUint(1), num.UintZero()))
	}

	collA, _ := e.PendingRewards("alice")
	collB, _ := e.PendingRewards("bob")
	assert.True(t, collA.EQ(num.NewUint(1)))
	assert.True(t, collB.EQ(num.NewUint(2)))
}

func testRedistributeNoStake(t *testing.T) {
	e := getTestEngine(t)
	defer e.ctrl.Finish()
	ctx := context.Background()

	err := e.Redistribute(ctx, num.NewUint(1), num.NewUint(1))
	assert.ErrorIs(t, err, positions.ErrNoStakeToRedistribute)
}
