package logging

import (
	"math/big"
	"time"

	"go.uber.org/zap"
)

// Field alias so engines don't need to import zap directly.
type Field = zap.Field

func String(key, val string) Field {
	return zap.String(key, val)
}

func Bool(key string, val bool) Field {
	return zap.Bool(key, val)
}

func Int(key string, val int) Field {
	return zap.Int(key, val)
}

func Int64(key string, val int64) Field {
	return zap.Int64(key, val)
}

func Uint64(key string, val uint64) Field {
	return zap.Uint64(key, val)
}

func Duration(key string, val time.Duration) Field {
	return zap.Duration(key, val)
}

func Time(key string, val time.Time) Field {
	return zap.Time(key, val)
}

func BigInt(key string, val *big.Int) Field {
	return zap.String(key, val.String())
}

// BigUint logs any of our wide integer wrappers via their Stringer.
func BigUint(key string, val interface{ String() string }) Field {
	return zap.String(key, val.String())
}

func Error(val error) Field {
	return zap.Error(val)
}
