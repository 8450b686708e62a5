package engine

import "errors"

// ErrInvalidRequest marks requests that are malformed at the engine
// boundary, such as an empty uid. Adapters map it to a client error rather
// than a server failure.
var ErrInvalidRequest = errors.New("engine: invalid request")
