// Package renderer draws immediate-mode GUI frames into a render pass the
// host has begun.
//
// A Renderer owns the GUI pipeline, the geometry buffers and the texture
// registry. The host owns the device, the queue, the render pass and
// submission; the renderer only records into the pass it is given.
//
// Renderer is not safe for concurrent use. Every method takes the same
// lock, so calls from several goroutines are serialized, but a frame's
// draw data must not be mutated while Render runs.
package renderer

import (
	"errors"
	"fmt"
	"sync"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/imwgpu"
	"github.com/gogpu/imwgpu/internal/gpu"
	"github.com/gogpu/wgpu/hal"
)

// Renderer records GUI draw data into host render passes.
type Renderer struct {
	mu sync.Mutex

	device hal.Device
	queue  hal.Queue
	cfg    imwgpu.Config

	pipeline   *gpu.Pipeline
	geometry   *gpu.GeometryBuffers
	textures   *gpu.TextureRegistry
	translator *gpu.Translator

	font      imwgpu.TextureID
	lastFrame imwgpu.FrameStats
	destroyed bool
}

// New creates a renderer on device and queue. caps are the device's
// capabilities for cfg.OutputFormat; the format must be renderable and
// blendable, and multisampled when cfg.SampleCount > 1.
func New(device hal.Device, queue hal.Queue, caps hal.TextureFormatCapabilities, cfg imwgpu.Config) (*Renderer, error) {
	if device == nil || queue == nil {
		return nil, imwgpu.ErrNilDevice
	}
	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := checkCapabilities(cfg.OutputFormat, cfg.SampleCount, caps); err != nil {
		return nil, err
	}

	r := &Renderer{device: device, queue: queue, cfg: cfg}
	if err := r.init(); err != nil {
		r.release()
		return nil, err
	}

	imwgpu.Logger().Info("imgui renderer created",
		"format", cfg.OutputFormat.String(),
		"samples", cfg.SampleCount,
		"color_mode", cfg.ColorMode.Resolve(cfg.OutputFormat).String(),
		"index_format", cfg.IndexFormat.String(),
	)
	return r, nil
}

func (r *Renderer) init() error {
	var err error
	r.pipeline, err = gpu.NewPipeline(r.device, gpu.SettingsFromConfig(r.cfg))
	if err != nil {
		return err
	}
	r.geometry, err = gpu.NewGeometryBuffers(r.device, r.queue, r.pipeline.UniformLayout(), gpu.GeometryConfig{
		Label:                 r.cfg.Label,
		IndexFormat:           r.cfg.IndexFormat,
		GrowthFactor:          r.cfg.GrowthFactor,
		InitialVertexCapacity: r.cfg.InitialVertexCapacity,
		InitialIndexCapacity:  r.cfg.InitialIndexCapacity,
	})
	if err != nil {
		return err
	}
	r.textures, err = gpu.NewTextureRegistry(r.device, r.pipeline.TextureLayout(), r.cfg.Label)
	if err != nil {
		return err
	}
	r.translator = gpu.NewTranslator(r.pipeline, r.geometry, r.textures, r.cfg.ScissorOrigin)
	return nil
}

// checkCapabilities verifies that format can be the GUI's colour target.
func checkCapabilities(format gputypes.TextureFormat, samples uint32, caps hal.TextureFormatCapabilities) error {
	if caps.Flags&hal.TextureFormatCapabilityRenderAttachment == 0 {
		return fmt.Errorf("%w: %s is not a render attachment", imwgpu.ErrUnsupportedFormat, format)
	}
	if caps.Flags&hal.TextureFormatCapabilityBlendable == 0 {
		return fmt.Errorf("%w: %s is not blendable", imwgpu.ErrUnsupportedFormat, format)
	}
	if samples > 1 && caps.Flags&hal.TextureFormatCapabilityMultisample == 0 {
		return fmt.Errorf("%w: %s does not support %dx multisampling", imwgpu.ErrUnsupportedSampleCount, format, samples)
	}
	return nil
}

// Config returns the configuration in effect, with defaults applied.
func (r *Renderer) Config() imwgpu.Config {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cfg
}

// Render uploads data's geometry and records its draw commands into pass.
// The pass must target a framebuffer of data's framebuffer size, in the
// configured output format and sample count.
//
// Render assumes the pass scissor still covers the whole framebuffer, which
// is the state of a newly begun pass, and only records a scissor when a
// command's clip rectangle differs from it. A host that set its own
// scissor earlier in the same pass must reset it to the full framebuffer
// before calling Render.
//
// Commands with an unknown texture or an empty clip rectangle are skipped;
// see LastFrame. An error means nothing was recorded.
func (r *Renderer) Render(pass hal.RenderPassEncoder, data *imwgpu.DrawData) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.destroyed {
		return imwgpu.ErrRendererDestroyed
	}
	if pass == nil {
		return errors.New("render: nil render pass")
	}
	stats, err := r.translator.Translate(pass, data)
	r.lastFrame = stats
	if err != nil {
		return fmt.Errorf("render: %w", err)
	}
	return nil
}

// LastFrame returns statistics for the most recent Render call.
func (r *Renderer) LastFrame() imwgpu.FrameStats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastFrame
}

// Rebuild recreates the pipeline for a new output format or sample count,
// for example after the host recreated its swapchain. caps are the
// capabilities of the new format. Registered textures and their ids stay
// valid. On error the previous pipeline is kept.
func (r *Renderer) Rebuild(format gputypes.TextureFormat, sampleCount uint32, caps hal.TextureFormatCapabilities) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.destroyed {
		return imwgpu.ErrRendererDestroyed
	}

	cfg := r.cfg
	cfg.OutputFormat = format
	cfg.SampleCount = sampleCount
	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := checkCapabilities(cfg.OutputFormat, cfg.SampleCount, caps); err != nil {
		return err
	}
	if err := r.pipeline.Rebuild(gpu.SettingsFromConfig(cfg)); err != nil {
		return fmt.Errorf("rebuild: %w", err)
	}
	r.cfg = cfg
	imwgpu.Logger().Info("imgui renderer rebuilt", "format", format.String(), "samples", cfg.SampleCount)
	return nil
}

// RenderPassDescriptor returns the descriptor a host should begin the GUI
// pass with: one colour attachment on view, resolved into resolve when
// multisampling, cleared to Config.ClearColor when set and loaded
// otherwise.
func (r *Renderer) RenderPassDescriptor(view, resolve hal.TextureView) *hal.RenderPassDescriptor {
	r.mu.Lock()
	defer r.mu.Unlock()

	att := hal.RenderPassColorAttachment{
		View:    view,
		LoadOp:  gputypes.LoadOpLoad,
		StoreOp: gputypes.StoreOpStore,
	}
	if r.cfg.SampleCount > 1 {
		att.ResolveTarget = resolve
	}
	if c := r.cfg.ClearColor; c != nil {
		att.LoadOp = gputypes.LoadOpClear
		att.ClearValue = *c
	}
	return &hal.RenderPassDescriptor{
		Label:            r.cfg.Label + "_pass",
		ColorAttachments: []hal.RenderPassColorAttachment{att},
	}
}

// Destroy releases every GPU object the renderer created, including owned
// textures. Borrowed textures are left to the host. Later calls return
// ErrRendererDestroyed. Safe to call more than once.
func (r *Renderer) Destroy() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.destroyed {
		return
	}
	r.release()
	r.destroyed = true
	r.font = 0
	imwgpu.Logger().Debug("imgui renderer destroyed")
}

// release destroys components in reverse creation order.
func (r *Renderer) release() {
	if r.textures != nil {
		r.textures.Destroy()
		r.textures = nil
	}
	if r.geometry != nil {
		r.geometry.Destroy()
		r.geometry = nil
	}
	if r.pipeline != nil {
		r.pipeline.Destroy()
		r.pipeline = nil
	}
	r.translator = nil
}
