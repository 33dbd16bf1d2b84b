package streamidx

import "errors"

// ErrSerde wraps any codec failure encountered while persisting or
// loading a value through the durable store.
var ErrSerde = errors.New("streamidx: serialization failed")

// ErrInvalidOption is returned by constructors when supplied options are
// malformed.
var ErrInvalidOption = errors.New("streamidx: invalid option")
