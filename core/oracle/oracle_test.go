package oracle_test

import (
	"testing"
	"time"

	"code.halcyonprotocol.io/halcyon/core/oracle"
	"code.halcyonprotocol.io/halcyon/libs/num"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize(t *testing.T) {
	// already at the protocol scale
	p := oracle.Price{Value: num.NewUint(1_500_000_000_000), Decimals: 9, Timestamp: time.Now()}
	assert.True(t, oracle.Normalize(p).EQ(num.NewUint(1_500_000_000_000)))

	// 18 decimal feed scales down, excess precision truncated
	p = oracle.Price{Value: num.MustUintFromString("1500000000123456789012"), Decimals: 18}
	assert.True(t, oracle.Normalize(p).EQ(num.NewUint(1_500_000_000_123)))

	// 6 decimal feed scales up
	p = oracle.Price{Value: num.NewUint(1_500_000_000), Decimals: 6}
	assert.True(t, oracle.Normalize(p).EQ(num.NewUint(1_500_000_000_000)))
}

func TestStaticSource(t *testing.T) {
	s := oracle.NewStaticSource()

	_, err := s.GetPrice("COLL/STABLE")
	assert.ErrorIs(t, err, oracle.ErrUnknownPair)

	s.SetPrice("COLL/STABLE", num.NewUint(1_800_000_000_000))
	p, err := s.GetPrice("COLL/STABLE")
	require.NoError(t, err)
	assert.True(t, p.Value.EQ(num.NewUint(1_800_000_000_000)))
	assert.EqualValues(t, 1, p.Round)

	// each update advances the round
	s.SetPrice("COLL/STABLE", num.NewUint(1_700_000_000_000))
	p, err = s.GetPrice("COLL/STABLE")
	require.NoError(t, err)
	assert.EqualValues(t, 2, p.Round)
}
