package oracle

import "errors"

// ErrUnknownPair signals a price request for a pair the source has no
// reading for.
var ErrUnknownPair = errors.New("unknown price pair")
