package broker

import (
	"code.halcyonprotocol.io/halcyon/libs/config/encoding"
	"code.halcyonprotocol.io/halcyon/logging"
)

// Config is the configuration of the broker package.
type Config struct {
	Level encoding.LogLevel `long:"log-level"`
}

// NewDefaultConfig creates an instance of the package specific configuration.
func NewDefaultConfig() Config {
	return Config{
		Level: encoding.LogLevel{Level: logging.InfoLevel},
	}
}
