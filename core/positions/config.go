package positions

import (
	"code.halcyonprotocol.io/halcyon/libs/config/encoding"
	"code.halcyonprotocol.io/halcyon/logging"
)

const (
	// namedLogger is the identifier for package and should ideally match the package name
	// this is simply emitted as a hierarchical label e.g. 'protocol.positions'.
	namedLogger = "positions"
)

// Config is the configuration of the positions ledger package.
type Config struct {
	Level encoding.LogLevel `long:"log-level"`
}

// NewDefaultConfig creates an instance of the package specific configuration.
func NewDefaultConfig() Config {
	return Config{
		Level: encoding.LogLevel{Level: logging.InfoLevel},
	}
}
