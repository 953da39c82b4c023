package liquidation_test

import (
	"context"
	"testing"

	bmocks "code.halcyonprotocol.io/halcyon/core/broker/mocks"
	"code.halcyonprotocol.io/halcyon/core/liquidation"
	"code.halcyonprotocol.io/halcyon/core/positions"
	"code.halcyonprotocol.io/halcyon/core/sorted"
	"code.halcyonprotocol.io/halcyon/core/stability"
	"code.halcyonprotocol.io/halcyon/core/types"
	"code.halcyonprotocol.io/halcyon/libs/num"
	"code.halcyonprotocol.io/halcyon/logging"

	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// burnRecorder stands in for the stable ledger, it only counts what the
// engine asks it to burn.
type burnRecorder struct {
	burned *num.Uint
}

func (b *burnRecorder) BurnFromPool(amount *num.Uint) error {
	b.burned.AddSum(amount)
	return nil
}

type tstEngine struct {
	engine    *liquidation.Engine
	positions *positions.Engine
	index     *sorted.List
	pool      *stability.Engine
	burner    *burnRecorder
	ctrl      *gomock.Controller
}

func getTestEngine(t *testing.T) *tstEngine {
	t.Helper()
	ctrl := gomock.NewController(t)
	broker := bmocks.NewMockInterface(ctrl)
	broker.EXPECT().Send(gomock.Any()).AnyTimes()
	log := logging.NewTestLogger()

	pos := positions.New(log, positions.NewDefaultConfig(), broker)
	index := sorted.New(log, sorted.NewDefaultConfig(), pos)
	pool := stability.New(log, stability.NewDefaultConfig(), broker)
	burner := &burnRecorder{burned: num.UintZero()}

	engine := liquidation.New(
		log, liquidation.NewDefaultConfig(), pos, index, pool, burner, broker,
		num.MustDecimalFromString("1.1"),
	)
	return &tstEngine{
		engine:    engine,
		positions: pos,
		index:     index,
		pool:      pool,
		burner:    burner,
		ctrl:      ctrl,
	}
}

func (e *tstEngine) open(t *testing.T, party string, collateral, debt uint64) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, e.positions.Create(ctx, party))
	require.NoError(t, e.positions.IncreaseCollateral(ctx, party, num.NewUint(collateral)))
	require.NoError(t, e.positions.IncreaseDebt(ctx, party, num.NewUint(debt)))
	e.positions.IncreaseTotalCollateral(num.NewUint(collateral))
	e.positions.IncreaseTotalDebt(num.NewUint(debt))
	nicr, err := e.positions.NICR(party)
	require.NoError(t, err)
	require.NoError(t, e.index.Insert(party, nicr, "", ""))
}

func TestLiquidation(t *testing.T) {
	t.Run("Pool fully offsets an undercollateralised position", testFullOffset)
	t.Run("Remainder beyond the pool is redistributed", testPartialOffsetRedistributes)
	t.Run("Healthy book has nothing to liquidate", testNothingToLiquidate)
	t.Run("Last position is skipped without a redistribution target", testSkipLastPosition)
	t.Run("One batch liquidates several positions against one pool read", testBatchSharesPool)
}

// amounts carry 9 decimals, prices quote the collateral unit at the
// same scale
const (
	unit = 1_000_000_000
)

func testFullOffset(t *testing.T) {
	e := getTestEngine(t)
	defer e.ctrl.Finish()
	ctx := context.Background()

	e.open(t, "alice", 3*unit, 4500*unit)
	e.open(t, "bob", 15*unit, 20000*unit)
	_, err := e.pool.Deposit(ctx, "bob", num.NewUint(10000*unit))
	require.NoError(t, err)

	// at 1500 per unit alice sits at 1.0, bob at 1.125
	totals, err := e.engine.Liquidate(ctx, num.NewUint(1500*unit))
	require.NoError(t, err)

	assert.EqualValues(t, 1, totals.PositionsLiquidated)
	assert.True(t, totals.TotalCollateral.EQ(num.NewUint(3*unit)))
	assert.True(t, totals.TotalDebt.EQ(num.NewUint(4500*unit)))
	assert.True(t, totals.DebtToOffset.EQ(num.NewUint(4500*unit)))
	assert.True(t, totals.CollateralToOffset.EQ(num.NewUint(3*unit)))
	assert.True(t, totals.DebtToRedistribute.IsZero())
	assert.True(t, totals.CollateralToRedistribute.IsZero())

	assert.False(t, e.positions.Has("alice"))
	assert.False(t, e.index.Contains("alice"))
	assert.True(t, e.pool.GetTotalStakeAmount().EQ(num.NewUint(5500*unit)))
	assert.True(t, e.burner.burned.EQ(num.NewUint(4500*unit)))

	// only bob is left in the protocol totals
	assert.True(t, e.positions.TotalCollateral().EQ(num.NewUint(15*unit)))
	assert.True(t, e.positions.TotalDebt().EQ(num.NewUint(20000*unit)))
}

func testPartialOffsetRedistributes(t *testing.T) {
	e := getTestEngine(t)
	defer e.ctrl.Finish()
	ctx := context.Background()

	e.open(t, "alice", 3*unit, 4500*unit)
	e.open(t, "bob", 15*unit, 20000*unit)
	_, err := e.pool.Deposit(ctx, "bob", num.NewUint(2000*unit))
	require.NoError(t, err)

	totals, err := e.engine.Liquidate(ctx, num.NewUint(1500*unit))
	require.NoError(t, err)

	// 2000/4500 of the collateral goes to the pool, floored
	collToPool := num.MulDiv(num.NewUint(3*unit), num.NewUint(2000*unit), num.NewUint(4500*unit))
	assert.True(t, totals.DebtToOffset.EQ(num.NewUint(2000*unit)))
	assert.True(t, totals.CollateralToOffset.EQ(collToPool))
	assert.True(t, totals.DebtToRedistribute.EQ(num.NewUint(2500*unit)))
	assert.True(t, totals.CollateralToRedistribute.EQ(num.UintZero().Sub(num.NewUint(3*unit), collToPool)))

	// the remainder shows up as bob's pending rewards and stays in the
	// protocol totals
	coll, debt, err := e.positions.CurrentAmounts("bob")
	require.NoError(t, err)
	assert.True(t, coll.EQ(num.Sum(num.NewUint(15*unit), totals.CollateralToRedistribute)))
	assert.True(t, debt.EQ(num.NewUint(22500*unit)))
	assert.True(t, e.positions.TotalDebt().EQ(num.NewUint(22500*unit)))
}

func testNothingToLiquidate(t *testing.T) {
	e := getTestEngine(t)
	defer e.ctrl.Finish()
	ctx := context.Background()

	e.open(t, "alice", 3*unit, 4500*unit)

	// at 1800 per unit alice sits at 1.2
	_, err := e.engine.Liquidate(ctx, num.NewUint(1800*unit))
	assert.ErrorIs(t, err, types.ErrNothingToLiquidate)
	assert.True(t, e.positions.Has("alice"))
}

func testSkipLastPosition(t *testing.T) {
	e := getTestEngine(t)
	defer e.ctrl.Finish()
	ctx := context.Background()

	// one underwater position, empty pool: nothing can absorb the
	// remainder, the position must survive
	e.open(t, "alice", 3*unit, 4500*unit)

	_, err := e.engine.Liquidate(ctx, num.NewUint(1500*unit))
	assert.ErrorIs(t, err, types.ErrNothingToLiquidate)
	assert.True(t, e.positions.Has("alice"))
	assert.True(t, e.index.Contains("alice"))
}

func testBatchSharesPool(t *testing.T) {
	e := getTestEngine(t)
	defer e.ctrl.Finish()
	ctx := context.Background()

	e.open(t, "alice", 3*unit, 4500*unit)
	e.open(t, "bob", 2*unit, 3000*unit)
	e.open(t, "carol", 15*unit, 20000*unit)
	// enough for alice and bob together, read once for the batch
	_, err := e.pool.Deposit(ctx, "carol", num.NewUint(7500*unit))
	require.NoError(t, err)

	totals, err := e.engine.Liquidate(ctx, num.NewUint(1500*unit))
	require.NoError(t, err)

	assert.EqualValues(t, 2, totals.PositionsLiquidated)
	assert.True(t, totals.DebtToOffset.EQ(num.NewUint(7500*unit)))
	assert.True(t, totals.DebtToRedistribute.IsZero())
	assert.True(t, e.pool.GetTotalStakeAmount().IsZero())
	assert.True(t, e.burner.burned.EQ(num.NewUint(7500*unit)))
	assert.True(t, e.positions.Len() == 1)
	assert.True(t, e.positions.Has("carol"))
}