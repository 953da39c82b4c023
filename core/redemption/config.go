package redemption

import (
	"code.halcyonprotocol.io/halcyon/libs/config/encoding"
	"code.halcyonprotocol.io/halcyon/logging"
)

const (
	namedLogger = "redemption"
)

// Config is the configuration of the redemption package.
type Config struct {
	Level encoding.LogLevel `long:"log-level"`
}

// NewDefaultConfig creates an instance of the package specific configuration.
func NewDefaultConfig() Config {
	return Config{
		Level: encoding.LogLevel{Level: logging.InfoLevel},
	}
}
