package protocol

import (
	"code.halcyonprotocol.io/halcyon/core/broker"
	"code.halcyonprotocol.io/halcyon/core/liquidation"
	"code.halcyonprotocol.io/halcyon/core/positions"
	"code.halcyonprotocol.io/halcyon/core/redemption"
	"code.halcyonprotocol.io/halcyon/core/sorted"
	"code.halcyonprotocol.io/halcyon/core/stability"
	"code.halcyonprotocol.io/halcyon/core/token"
	"code.halcyonprotocol.io/halcyon/libs/config/encoding"
	"code.halcyonprotocol.io/halcyon/logging"
)

const (
	namedLogger = "protocol"

	// DefaultPairID is the oracle pair priced when none is configured.
	DefaultPairID = "COLL/STABLE"
)

// Config is the top level configuration of the protocol engine and
// every engine it drives.
type Config struct {
	Level encoding.LogLevel `long:"log-level"`

	// PairID is the oracle pair quoting the collateral asset in stable
	// tokens.
	PairID string `long:"pair-id"`
	// MinimumCollateralRatio is the liquidation threshold, expressed as
	// a decimal string, e.g. "1.1" for 110%.
	MinimumCollateralRatio string `long:"minimum-collateral-ratio"`

	Broker      broker.Config      `group:"Broker"      namespace:"broker"`
	Positions   positions.Config   `group:"Positions"   namespace:"positions"`
	Sorted      sorted.Config      `group:"Sorted"      namespace:"sorted"`
	Stability   stability.Config   `group:"Stability"   namespace:"stability"`
	Liquidation liquidation.Config `group:"Liquidation" namespace:"liquidation"`
	Redemption  redemption.Config  `group:"Redemption"  namespace:"redemption"`
	Token       token.Config       `group:"Token"       namespace:"token"`
}

// NewDefaultConfig creates an instance of the package specific
// configuration, with default values for all the engines it drives.
func NewDefaultConfig() Config {
	return Config{
		Level:                  encoding.LogLevel{Level: logging.InfoLevel},
		PairID:                 DefaultPairID,
		MinimumCollateralRatio: "1.1",
		Broker:                 broker.NewDefaultConfig(),
		Positions:              positions.NewDefaultConfig(),
		Sorted:                 sorted.NewDefaultConfig(),
		Stability:              stability.NewDefaultConfig(),
		Liquidation:            liquidation.NewDefaultConfig(),
		Redemption:             redemption.NewDefaultConfig(),
		Token:                  token.NewDefaultConfig(),
	}
}
