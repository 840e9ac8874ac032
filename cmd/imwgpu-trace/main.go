// Command imwgpu-trace replays a GUI frame described in TOML through the
// renderer on a headless device and prints the recorded render pass
// commands with the frame statistics.
//
// Usage:
//
//	imwgpu-trace -frame frame.toml [-config renderer.toml] [-frames 2] [-v]
package main

import (
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/charmbracelet/log"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/imwgpu"
	"github.com/gogpu/imwgpu/internal/gpu"
	"github.com/gogpu/imwgpu/renderer"
	"github.com/gogpu/wgpu/hal"
	"github.com/gogpu/wgpu/hal/noop"
)

func main() {
	var (
		framePath  = flag.String("frame", "", "frame description (TOML)")
		configPath = flag.String("config", "", "renderer config (TOML); defaults when empty")
		frames     = flag.Int("frames", 1, "number of times to replay the frame")
		verbose    = flag.Bool("v", false, "log debug messages")
	)
	flag.Parse()

	logger := log.NewWithOptions(os.Stderr, log.Options{
		ReportTimestamp: true,
		Prefix:          "imwgpu-trace",
		Level:           log.InfoLevel,
	})
	if *verbose {
		logger.SetLevel(log.DebugLevel)
	}
	imwgpu.SetLogger(slog.New(logger))

	if *framePath == "" {
		logger.Fatal("missing -frame")
	}
	if err := run(os.Stdout, *framePath, *configPath, *frames); err != nil {
		logger.Fatal("trace failed", "err", err)
	}
}

func run(w io.Writer, framePath, configPath string, frames int) error {
	frame, err := loadFrame(framePath)
	if err != nil {
		return err
	}
	cfg := imwgpu.DefaultConfig()
	if configPath != "" {
		if cfg, err = imwgpu.LoadConfig(configPath); err != nil {
			return err
		}
	}

	dev, cleanup, err := openNoopDevice()
	if err != nil {
		return err
	}
	defer cleanup()

	r, err := renderer.New(dev.device, dev.queue, dev.adapter.TextureFormatCapabilities(cfg.OutputFormat), cfg)
	if err != nil {
		return err
	}
	defer r.Destroy()

	return replay(w, r, frame, frames)
}

// replay registers the frame's textures and renders it frames times into
// a recording pass, printing each pass.
func replay(w io.Writer, r *renderer.Renderer, frame *frameFile, frames int) error {
	font, err := r.UploadFontAtlas(frame.fontAtlas())
	if err != nil {
		return err
	}
	ids := map[string]imwgpu.TextureID{fontTextureName: font}
	for _, spec := range frame.Textures {
		filter := gputypes.FilterModeLinear
		if spec.Nearest {
			filter = gputypes.FilterModeNearest
		}
		id, err := r.CreateTexture(renderer.TextureConfig{
			Label:  spec.Name,
			Width:  spec.Width,
			Height: spec.Height,
			Filter: filter,
		})
		if err != nil {
			return fmt.Errorf("texture %q: %w", spec.Name, err)
		}
		ids[spec.Name] = id
	}
	fmt.Fprintf(w, "textures: %s\n", r.TextureStats())

	data := frame.drawData(ids)
	pass := &gpu.TracePass{}
	for i := 0; i < frames; i++ {
		pass.Reset()
		if err := r.Render(pass, data); err != nil {
			return fmt.Errorf("frame %d: %w", i, err)
		}
		fmt.Fprintf(w, "frame %d:\n%s", i, pass)
		fmt.Fprintf(w, "stats: %+v\n", r.LastFrame())
	}
	return nil
}

type noopDevice struct {
	adapter hal.Adapter
	device  hal.Device
	queue   hal.Queue
}

func openNoopDevice() (noopDevice, func(), error) {
	instance, err := noop.API{}.CreateInstance(nil)
	if err != nil {
		return noopDevice{}, nil, fmt.Errorf("create instance: %w", err)
	}
	adapters := instance.EnumerateAdapters(nil)
	if len(adapters) == 0 {
		instance.Destroy()
		return noopDevice{}, nil, fmt.Errorf("no adapters")
	}
	open, err := adapters[0].Adapter.Open(0, gputypes.DefaultLimits())
	if err != nil {
		instance.Destroy()
		return noopDevice{}, nil, fmt.Errorf("open device: %w", err)
	}
	cleanup := func() {
		open.Device.Destroy()
		instance.Destroy()
	}
	return noopDevice{adapter: adapters[0].Adapter, device: open.Device, queue: open.Queue}, cleanup, nil
}
