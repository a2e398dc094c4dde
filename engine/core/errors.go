package core

import (
	"errors"
)

var (
	ErrInvalidConfig       = errors.New("invalid configuration")
	ErrNoBackend           = errors.New("no renderer backend available")
	ErrSchedulerClosed     = errors.New("frame scheduler closed")
	ErrStaleHandle         = errors.New("stale or invalid handle")
	ErrNotMaterialized     = errors.New("resource could not be materialized")
	ErrUnsupportedFormat   = errors.New("unsupported texture format")
	ErrOutOfRange          = errors.New("write out of range")
	ErrUnknownDeviceObject = errors.New("unknown device object")
	ErrShaderCompile       = errors.New("shader compilation failed")
)
