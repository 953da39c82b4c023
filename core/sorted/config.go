package sorted

import (
	"code.halcyonprotocol.io/halcyon/libs/config/encoding"
	"code.halcyonprotocol.io/halcyon/logging"
)

const (
	namedLogger = "sorted"

	defaultMaxSize = 1 << 20
)

// Config is the configuration of the sorted index package.
type Config struct {
	Level encoding.LogLevel `long:"log-level"`
	// MaxSize caps the number of indexed positions.
	MaxSize uint64 `long:"max-size"`
}

// NewDefaultConfig creates an instance of the package specific configuration.
func NewDefaultConfig() Config {
	return Config{
		Level:   encoding.LogLevel{Level: logging.InfoLevel},
		MaxSize: defaultMaxSize,
	}
}
