package imwgpu

import "errors"

// Configuration errors. A renderer is never created when one of these is
// returned from construction.
var (
	// ErrInvalidConfig is returned when a Config field is out of range.
	ErrInvalidConfig = errors.New("imwgpu: invalid config")

	// ErrUnsupportedFormat is returned when the output format cannot be
	// rendered to or blended by the device.
	ErrUnsupportedFormat = errors.New("imwgpu: unsupported output format")

	// ErrUnsupportedSampleCount is returned when multisampling is requested
	// but the output format does not support it.
	ErrUnsupportedSampleCount = errors.New("imwgpu: unsupported sample count")

	// ErrMissingShaderStage is returned when a shader override lacks a
	// vertex or fragment entry point.
	ErrMissingShaderStage = errors.New("imwgpu: missing shader stage")

	// ErrNilDevice is returned when no device or queue was supplied.
	ErrNilDevice = errors.New("imwgpu: nil device or queue")
)

// Runtime errors.
var (
	// ErrAllocation wraps a failed GPU buffer or texture allocation.
	ErrAllocation = errors.New("imwgpu: GPU allocation failed")

	// ErrTextureNotFound is returned for ids that were never issued, were
	// removed, or belong to an older generation of a reused slot.
	ErrTextureNotFound = errors.New("imwgpu: texture not found")

	// ErrIndexOverflow is returned when an index does not fit the configured
	// 16-bit index format.
	ErrIndexOverflow = errors.New("imwgpu: index exceeds 16-bit range")

	// ErrInvalidAtlas is returned when font atlas pixels do not match its size.
	ErrInvalidAtlas = errors.New("imwgpu: invalid font atlas")

	// ErrRendererDestroyed is returned by any call made after Destroy.
	ErrRendererDestroyed = errors.New("imwgpu: renderer destroyed")
)
