package gpu

import (
	"log/slog"

	"github.com/gogpu/imwgpu"
)

// slogger returns the logger configured with imwgpu.SetLogger.
// All logging in internal/gpu goes through this function.
func slogger() *slog.Logger { return imwgpu.Logger() }
