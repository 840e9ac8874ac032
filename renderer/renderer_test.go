package renderer

import (
	"bytes"
	"image"
	"image/color"
	"log/slog"
	"testing"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/imwgpu"
	"github.com/gogpu/imwgpu/internal/gpu"
	"github.com/gogpu/wgpu/hal"
	"github.com/gogpu/wgpu/hal/noop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const allCaps = hal.TextureFormatCapabilityRenderAttachment |
	hal.TextureFormatCapabilityBlendable |
	hal.TextureFormatCapabilityMultisample

type testGPU struct {
	adapter hal.Adapter
	device  hal.Device
	queue   hal.Queue
}

func newTestGPU(t *testing.T) *testGPU {
	t.Helper()
	instance, err := noop.API{}.CreateInstance(nil)
	require.NoError(t, err)
	adapters := instance.EnumerateAdapters(nil)
	require.NotEmpty(t, adapters)
	open, err := adapters[0].Adapter.Open(0, gputypes.DefaultLimits())
	require.NoError(t, err)
	t.Cleanup(func() {
		open.Device.Destroy()
		instance.Destroy()
	})
	return &testGPU{adapter: adapters[0].Adapter, device: open.Device, queue: open.Queue}
}

func newTestRenderer(t *testing.T, cfg imwgpu.Config) (*Renderer, *testGPU) {
	t.Helper()
	g := newTestGPU(t)
	r, err := New(g.device, g.queue, hal.TextureFormatCapabilities{Flags: allCaps}, cfg)
	require.NoError(t, err)
	t.Cleanup(r.Destroy)
	return r, g
}

func fontAtlas() *imwgpu.FontAtlas {
	return &imwgpu.FontAtlas{Width: 8, Height: 4, Pixels: make([]byte, 32), Format: imwgpu.AtlasAlpha8}
}

func fullFrame(tex imwgpu.TextureID) *imwgpu.DrawData {
	return &imwgpu.DrawData{
		Lists: []*imwgpu.DrawList{{
			Vertices: make([]imwgpu.Vertex, 4),
			Indices:  []imwgpu.DrawIdx{0, 1, 2, 0, 2, 3},
			Commands: []imwgpu.DrawCmd{{ClipRect: [4]float32{0, 0, 640, 480}, TextureID: tex, ElemCount: 6}},
		}},
		DisplaySize:      [2]float32{640, 480},
		FramebufferScale: [2]float32{1, 1},
	}
}

func TestNewValidation(t *testing.T) {
	g := newTestGPU(t)
	full := hal.TextureFormatCapabilities{Flags: allCaps}

	tests := []struct {
		name string
		caps hal.TextureFormatCapabilities
		cfg  func(*imwgpu.Config)
		want error
	}{
		{"undefined format", full, func(c *imwgpu.Config) { c.OutputFormat = gputypes.TextureFormatUndefined }, imwgpu.ErrUnsupportedFormat},
		{"depth output", full, func(c *imwgpu.Config) { c.OutputFormat = gputypes.TextureFormatDepth32Float }, imwgpu.ErrUnsupportedFormat},
		{"not renderable", hal.TextureFormatCapabilities{Flags: hal.TextureFormatCapabilityBlendable}, nil, imwgpu.ErrUnsupportedFormat},
		{"not blendable", hal.TextureFormatCapabilities{Flags: hal.TextureFormatCapabilityRenderAttachment}, nil, imwgpu.ErrUnsupportedFormat},
		{"odd sample count", full, func(c *imwgpu.Config) { c.SampleCount = 3 }, imwgpu.ErrUnsupportedSampleCount},
		{"msaa unsupported", hal.TextureFormatCapabilities{
			Flags: hal.TextureFormatCapabilityRenderAttachment | hal.TextureFormatCapabilityBlendable,
		}, func(c *imwgpu.Config) { c.SampleCount = 4 }, imwgpu.ErrUnsupportedSampleCount},
		{"shader without fragment", full, func(c *imwgpu.Config) {
			c.Shader = &imwgpu.ShaderOverride{WGSL: "x", VertexEntry: "vs"}
		}, imwgpu.ErrMissingShaderStage},
		{"negative capacity", full, func(c *imwgpu.Config) { c.InitialVertexCapacity = -1 }, imwgpu.ErrInvalidConfig},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := imwgpu.DefaultConfig()
			if tt.cfg != nil {
				tt.cfg(&cfg)
			}
			r, err := New(g.device, g.queue, tt.caps, cfg)
			assert.ErrorIs(t, err, tt.want)
			assert.Nil(t, r)
		})
	}
}

func TestNewNilDevice(t *testing.T) {
	_, err := New(nil, nil, hal.TextureFormatCapabilities{Flags: allCaps}, imwgpu.DefaultConfig())
	assert.ErrorIs(t, err, imwgpu.ErrNilDevice)
}

func TestNewAppliesDefaults(t *testing.T) {
	r, _ := newTestRenderer(t, imwgpu.Config{OutputFormat: gputypes.TextureFormatRGBA8Unorm})
	cfg := r.Config()
	assert.Equal(t, uint32(1), cfg.SampleCount)
	assert.Equal(t, gputypes.IndexFormatUint16, cfg.IndexFormat)
	assert.Equal(t, "imgui", cfg.Label)
}

func TestNewLogsCreation(t *testing.T) {
	var buf bytes.Buffer
	imwgpu.SetLogger(slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo})))
	t.Cleanup(func() { imwgpu.SetLogger(nil) })

	newTestRenderer(t, imwgpu.DefaultConfig())
	assert.Contains(t, buf.String(), "imgui renderer created")
	assert.Contains(t, buf.String(), "color_mode=linear")
}

func TestUploadFontAtlas(t *testing.T) {
	r, _ := newTestRenderer(t, imwgpu.DefaultConfig())
	assert.False(t, r.FontTextureID().IsValid())

	id, err := r.UploadFontAtlas(fontAtlas())
	require.NoError(t, err)
	assert.True(t, id.IsValid())
	assert.Equal(t, id, r.FontTextureID())
	assert.Equal(t, 1, r.TextureStats().Owned)

	// Rebuilt atlas replaces the old one.
	id2, err := r.UploadFontAtlas(&imwgpu.FontAtlas{Width: 4, Height: 4, Pixels: make([]byte, 64)})
	require.NoError(t, err)
	assert.NotEqual(t, id, id2)
	assert.Equal(t, id2, r.FontTextureID())
	assert.Equal(t, 1, r.TextureStats().Owned)
	assert.ErrorIs(t, r.RemoveTexture(id), imwgpu.ErrTextureNotFound)
}

func TestUploadFontAtlasInvalid(t *testing.T) {
	r, _ := newTestRenderer(t, imwgpu.DefaultConfig())

	_, err := r.UploadFontAtlas(&imwgpu.FontAtlas{Width: 4, Height: 4, Pixels: make([]byte, 10)})
	assert.ErrorIs(t, err, imwgpu.ErrInvalidAtlas)
	_, err = r.UploadFontAtlas(nil)
	assert.ErrorIs(t, err, imwgpu.ErrInvalidAtlas)
	assert.False(t, r.FontTextureID().IsValid())
}

func TestRenderFontQuad(t *testing.T) {
	r, _ := newTestRenderer(t, imwgpu.DefaultConfig())
	font, err := r.UploadFontAtlas(fontAtlas())
	require.NoError(t, err)

	pass := &gpu.TracePass{}
	require.NoError(t, r.Render(pass, fullFrame(font)))

	binds := 0
	for _, op := range pass.Filter(gpu.OpSetBindGroup) {
		if op.Index == 1 {
			binds++
			assert.Equal(t, font, op.Texture)
		}
	}
	assert.Equal(t, 1, binds)
	draws := pass.Filter(gpu.OpDrawIndexed)
	require.Len(t, draws, 1)
	assert.Equal(t, uint32(6), draws[0].Count)
	assert.Zero(t, pass.Count(gpu.OpSetScissor))

	stats := r.LastFrame()
	assert.Equal(t, 1, stats.DrawCalls)
	assert.Equal(t, 4, stats.Vertices)
}

func TestRenderHostScissorReset(t *testing.T) {
	r, _ := newTestRenderer(t, imwgpu.DefaultConfig())
	font, err := r.UploadFontAtlas(fontAtlas())
	require.NoError(t, err)

	// The host draws with its own scissor, then resets it before the GUI.
	pass := &gpu.TracePass{}
	pass.SetScissorRect(0, 0, 10, 10)
	pass.SetScissorRect(0, 0, 640, 480)
	require.NoError(t, r.Render(pass, fullFrame(font)))

	scissors := pass.Filter(gpu.OpSetScissor)
	require.Len(t, scissors, 2, "full-framebuffer commands must not record a scissor")
	assert.Equal(t, "scissor 0 0 640 480", scissors[1].String())
	assert.Equal(t, gpu.OpDrawIndexed, pass.Ops[len(pass.Ops)-1].Kind)
}

func TestRenderEmptyFrame(t *testing.T) {
	r, _ := newTestRenderer(t, imwgpu.DefaultConfig())

	pass := &gpu.TracePass{}
	require.NoError(t, r.Render(pass, &imwgpu.DrawData{DisplaySize: [2]float32{640, 480}}))
	assert.Empty(t, pass.Ops)
	assert.Equal(t, imwgpu.FrameStats{}, r.LastFrame())
}

func TestRenderMissingTextureContinues(t *testing.T) {
	r, _ := newTestRenderer(t, imwgpu.DefaultConfig())
	font, err := r.UploadFontAtlas(fontAtlas())
	require.NoError(t, err)

	data := fullFrame(imwgpu.MakeTextureID(42, 1))
	data.Lists[0].Commands = append(data.Lists[0].Commands,
		imwgpu.DrawCmd{ClipRect: [4]float32{0, 0, 640, 480}, TextureID: font, ElemCount: 6})

	pass := &gpu.TracePass{}
	require.NoError(t, r.Render(pass, data))
	assert.Equal(t, 1, r.LastFrame().MissingTextures)
	assert.Equal(t, 1, pass.Count(gpu.OpDrawIndexed))
}

func TestRenderErrors(t *testing.T) {
	r, _ := newTestRenderer(t, imwgpu.DefaultConfig())
	font, err := r.UploadFontAtlas(fontAtlas())
	require.NoError(t, err)

	assert.Error(t, r.Render(nil, fullFrame(font)))

	data := fullFrame(font)
	data.Lists[0].Indices[0] = 1 << 20
	pass := &gpu.TracePass{}
	assert.ErrorIs(t, r.Render(pass, data), imwgpu.ErrIndexOverflow)
	assert.Empty(t, pass.Ops)
}

func TestRenderUint32Indices(t *testing.T) {
	cfg := imwgpu.DefaultConfig()
	cfg.IndexFormat = gputypes.IndexFormatUint32
	r, _ := newTestRenderer(t, cfg)
	font, err := r.UploadFontAtlas(fontAtlas())
	require.NoError(t, err)

	data := fullFrame(font)
	data.Lists[0].Vertices = make([]imwgpu.Vertex, 70001)
	data.Lists[0].Indices[0] = 70000
	pass := &gpu.TracePass{}
	require.NoError(t, r.Render(pass, data))
	ib := pass.Filter(gpu.OpSetIndexBuffer)
	require.Len(t, ib, 1)
	assert.Equal(t, gputypes.IndexFormatUint32, ib[0].IndexFormat)
}

func TestRegisterExternalTexture(t *testing.T) {
	r, g := newTestRenderer(t, imwgpu.DefaultConfig())

	tex, err := g.device.CreateTexture(&hal.TextureDescriptor{
		Label:         "viewport",
		Size:          hal.Extent3D{Width: 64, Height: 64, DepthOrArrayLayers: 1},
		MipLevelCount: 1,
		SampleCount:   1,
		Dimension:     gputypes.TextureDimension2D,
		Format:        gputypes.TextureFormatRGBA8Unorm,
		Usage:         gputypes.TextureUsageTextureBinding | gputypes.TextureUsageRenderAttachment,
	})
	require.NoError(t, err)
	view, err := g.device.CreateTextureView(tex, &hal.TextureViewDescriptor{})
	require.NoError(t, err)

	id, err := r.RegisterTexture(ExternalTexture{Texture: tex, View: view, Width: 64, Height: 64, Label: "viewport"})
	require.NoError(t, err)
	assert.Equal(t, 1, r.TextureStats().Borrowed)

	pass := &gpu.TracePass{}
	require.NoError(t, r.Render(pass, fullFrame(id)))
	assert.Equal(t, 1, r.LastFrame().DrawCalls)

	// A resized host target keeps its id.
	require.NoError(t, r.ReplaceTexture(id, ExternalTexture{Texture: tex, View: view, Width: 128, Height: 128}))
	require.NoError(t, r.Render(pass, fullFrame(id)))
	assert.Zero(t, r.LastFrame().MissingTextures)

	require.NoError(t, r.RemoveTexture(id))
	assert.Zero(t, r.TextureStats().Borrowed)
	require.NoError(t, r.Render(pass, fullFrame(id)))
	assert.Equal(t, 1, r.LastFrame().MissingTextures)
}

func TestRegisterTextureNilView(t *testing.T) {
	r, _ := newTestRenderer(t, imwgpu.DefaultConfig())
	_, err := r.RegisterTexture(ExternalTexture{Label: "broken"})
	assert.Error(t, err)
}

func TestCreateAndWriteTexture(t *testing.T) {
	r, g := newTestRenderer(t, imwgpu.DefaultConfig())

	id, err := r.CreateTexture(TextureConfig{Label: "canvas", Width: 16, Height: 8, Filter: gputypes.FilterModeNearest})
	require.NoError(t, err)
	assert.NoError(t, r.WriteTexture(id, make([]byte, 16*8*4), 16, 8))
	assert.NoError(t, r.WriteTexture(id, make([]byte, 4*4*4), 4, 4))
	assert.Error(t, r.WriteTexture(id, make([]byte, 32*8*4), 32, 8))
	assert.Error(t, r.WriteTexture(id, make([]byte, 3), 16, 8))

	_, err = r.CreateTexture(TextureConfig{Label: "empty"})
	assert.ErrorIs(t, err, imwgpu.ErrInvalidConfig)

	// Row size follows the texture format.
	hdr, err := r.CreateTexture(TextureConfig{Label: "hdr", Width: 4, Height: 2, Format: gputypes.TextureFormatRGBA16Float})
	require.NoError(t, err)
	assert.NoError(t, r.WriteTexture(hdr, make([]byte, 4*2*8), 4, 2))
	assert.Error(t, r.WriteTexture(hdr, make([]byte, 4*2*4), 4, 2))
	assert.Equal(t, uint64(16*8*4+4*2*8), r.TextureStats().OwnedBytes)

	depth, err := r.CreateTexture(TextureConfig{Label: "depth", Width: 2, Height: 2, Format: gputypes.TextureFormatDepth32Float})
	require.NoError(t, err)
	assert.ErrorIs(t, r.WriteTexture(depth, make([]byte, 16), 2, 2), imwgpu.ErrUnsupportedFormat)
	require.NoError(t, r.RemoveTexture(depth))

	// Host textures registered by view alone cannot be written.
	tex, err := g.device.CreateTexture(&hal.TextureDescriptor{
		Size:          hal.Extent3D{Width: 4, Height: 4, DepthOrArrayLayers: 1},
		MipLevelCount: 1,
		SampleCount:   1,
		Dimension:     gputypes.TextureDimension2D,
		Format:        gputypes.TextureFormatRGBA8Unorm,
		Usage:         gputypes.TextureUsageTextureBinding,
	})
	require.NoError(t, err)
	view, err := g.device.CreateTextureView(tex, &hal.TextureViewDescriptor{})
	require.NoError(t, err)
	ext, err := r.RegisterTexture(ExternalTexture{View: view, Width: 4, Height: 4})
	require.NoError(t, err)
	assert.Error(t, r.WriteTexture(ext, make([]byte, 64), 4, 4))

	assert.ErrorIs(t, r.WriteTexture(imwgpu.MakeTextureID(99, 1), nil, 0, 0), imwgpu.ErrTextureNotFound)
}

func TestRegisterImage(t *testing.T) {
	r, _ := newTestRenderer(t, imwgpu.DefaultConfig())

	img := image.NewRGBA(image.Rect(10, 10, 110, 60))
	id, err := r.RegisterImage(img, "photo", 0)
	require.NoError(t, err)
	assert.True(t, id.IsValid())
	assert.Equal(t, uint64(100*50*4), r.TextureStats().OwnedBytes)

	_, err = r.RegisterImage(img, "thumb", 32)
	require.NoError(t, err)
	assert.Equal(t, uint64(100*50*4+32*16*4), r.TextureStats().OwnedBytes)

	_, err = r.RegisterImage(image.NewRGBA(image.Rectangle{}), "empty", 0)
	assert.ErrorIs(t, err, imwgpu.ErrInvalidConfig)
}

func TestToNRGBA(t *testing.T) {
	src := image.NewRGBA(image.Rect(5, 5, 7, 6))
	src.Set(5, 5, color.RGBA{R: 255, A: 255})
	src.Set(6, 5, color.RGBA{G: 64, A: 128})

	dst := toNRGBA(src, 0)
	require.Equal(t, image.Rect(0, 0, 2, 1), dst.Bounds())
	assert.Equal(t, []byte{255, 0, 0, 255}, dst.Pix[0:4])
	// Straight alpha: premultiplied 64/128 becomes ~127.
	assert.InDelta(t, 127, int(dst.Pix[5]), 1)
	assert.Equal(t, byte(128), dst.Pix[7])
}

func TestFitWithin(t *testing.T) {
	tests := []struct {
		w, h, max    int
		wantW, wantH int
	}{
		{100, 50, 0, 100, 50},
		{100, 50, 200, 100, 50},
		{100, 50, 32, 32, 16},
		{50, 100, 32, 16, 32},
		{1000, 1, 10, 10, 1},
	}
	for _, tt := range tests {
		w, h := fitWithin(tt.w, tt.h, tt.max)
		assert.Equal(t, tt.wantW, w, "%dx%d in %d", tt.w, tt.h, tt.max)
		assert.Equal(t, tt.wantH, h, "%dx%d in %d", tt.w, tt.h, tt.max)
	}
}

func TestRebuild(t *testing.T) {
	r, g := newTestRenderer(t, imwgpu.DefaultConfig())
	font, err := r.UploadFontAtlas(fontAtlas())
	require.NoError(t, err)

	caps := g.adapter.TextureFormatCapabilities(gputypes.TextureFormatRGBA16Float)
	require.NoError(t, r.Rebuild(gputypes.TextureFormatRGBA16Float, 4, caps))
	assert.Equal(t, gputypes.TextureFormatRGBA16Float, r.Config().OutputFormat)
	assert.Equal(t, uint32(4), r.Config().SampleCount)

	// Textures survive the rebuild.
	pass := &gpu.TracePass{}
	require.NoError(t, r.Render(pass, fullFrame(font)))
	assert.Equal(t, 1, r.LastFrame().DrawCalls)

	err = r.Rebuild(gputypes.TextureFormatRGBA8Unorm, 8, hal.TextureFormatCapabilities{
		Flags: hal.TextureFormatCapabilityRenderAttachment | hal.TextureFormatCapabilityBlendable,
	})
	assert.ErrorIs(t, err, imwgpu.ErrUnsupportedSampleCount)
	assert.Equal(t, gputypes.TextureFormatRGBA16Float, r.Config().OutputFormat)
}

func TestRenderPassDescriptor(t *testing.T) {
	r, g := newTestRenderer(t, imwgpu.DefaultConfig())
	tex, err := g.device.CreateTexture(&hal.TextureDescriptor{
		Size:          hal.Extent3D{Width: 4, Height: 4, DepthOrArrayLayers: 1},
		MipLevelCount: 1,
		SampleCount:   1,
		Dimension:     gputypes.TextureDimension2D,
		Format:        gputypes.TextureFormatBGRA8UnormSrgb,
		Usage:         gputypes.TextureUsageRenderAttachment,
	})
	require.NoError(t, err)
	view, err := g.device.CreateTextureView(tex, &hal.TextureViewDescriptor{})
	require.NoError(t, err)

	desc := r.RenderPassDescriptor(view, view)
	require.Len(t, desc.ColorAttachments, 1)
	att := desc.ColorAttachments[0]
	assert.Equal(t, gputypes.LoadOpLoad, att.LoadOp)
	assert.Equal(t, gputypes.StoreOpStore, att.StoreOp)
	assert.Nil(t, att.ResolveTarget, "resolve target without multisampling")

	cfg := imwgpu.DefaultConfig()
	cfg.ClearColor = &gputypes.Color{R: 0.1, G: 0.2, B: 0.3, A: 1}
	cfg.SampleCount = 4
	cleared, _ := newTestRenderer(t, cfg)
	att = cleared.RenderPassDescriptor(view, view).ColorAttachments[0]
	assert.Equal(t, gputypes.LoadOpClear, att.LoadOp)
	assert.Equal(t, *cfg.ClearColor, att.ClearValue)
	assert.NotNil(t, att.ResolveTarget)
}

func TestDestroy(t *testing.T) {
	r, _ := newTestRenderer(t, imwgpu.DefaultConfig())
	font, err := r.UploadFontAtlas(fontAtlas())
	require.NoError(t, err)

	r.Destroy()
	r.Destroy()

	assert.ErrorIs(t, r.Render(&gpu.TracePass{}, fullFrame(font)), imwgpu.ErrRendererDestroyed)
	_, err = r.UploadFontAtlas(fontAtlas())
	assert.ErrorIs(t, err, imwgpu.ErrRendererDestroyed)
	_, err = r.CreateTexture(TextureConfig{Width: 1, Height: 1})
	assert.ErrorIs(t, err, imwgpu.ErrRendererDestroyed)
	assert.ErrorIs(t, r.RemoveTexture(font), imwgpu.ErrRendererDestroyed)
	assert.ErrorIs(t, r.Rebuild(gputypes.TextureFormatRGBA8Unorm, 1, hal.TextureFormatCapabilities{Flags: allCaps}),
		imwgpu.ErrRendererDestroyed)
	assert.False(t, r.FontTextureID().IsValid())
	assert.Equal(t, TextureStats{}, r.TextureStats())
}

type testProvider struct {
	g       *testGPU
	format  gputypes.TextureFormat
	adapter bool
}

func (p *testProvider) Device() gpucontext.Device { return p.g.device }
func (p *testProvider) Queue() gpucontext.Queue   { return p.g.queue }
func (p *testProvider) SurfaceFormat() gputypes.TextureFormat {
	return p.format
}
func (p *testProvider) Adapter() gpucontext.Adapter {
	if p.adapter {
		return p.g.adapter
	}
	return nil
}
func (p *testProvider) AdapterInfo() gpucontext.AdapterInfo {
	return gpucontext.AdapterInfo{Name: "noop", Type: gpucontext.AdapterTypeSoftware}
}
func (p *testProvider) HalDevice() any { return p.g.device }
func (p *testProvider) HalQueue() any  { return p.g.queue }

// plainProvider does not expose HAL objects.
type plainProvider struct{ testProvider }

func (plainProvider) HalDevice() {}

func TestNewFromProvider(t *testing.T) {
	for _, withAdapter := range []bool{true, false} {
		g := newTestGPU(t)
		p := &testProvider{g: g, format: gputypes.TextureFormatRGBA8UnormSrgb, adapter: withAdapter}

		r, err := NewFromProvider(p, imwgpu.Config{SampleCount: 4})
		require.NoError(t, err, "adapter=%v", withAdapter)
		assert.Equal(t, gputypes.TextureFormatRGBA8UnormSrgb, r.Config().OutputFormat)
		r.Destroy()
	}
}

func TestNewFromProviderWithoutHAL(t *testing.T) {
	g := newTestGPU(t)
	_, err := NewFromProvider(&plainProvider{testProvider{g: g, format: gputypes.TextureFormatBGRA8Unorm}}, imwgpu.DefaultConfig())
	assert.ErrorIs(t, err, imwgpu.ErrNilDevice)

	_, err = NewFromProvider(nil, imwgpu.DefaultConfig())
	assert.ErrorIs(t, err, imwgpu.ErrNilDevice)
}

func TestNewFromProviderHeadless(t *testing.T) {
	g := newTestGPU(t)
	p := &testProvider{g: g, format: gputypes.TextureFormatUndefined}
	_, err := NewFromProvider(p, imwgpu.Config{})
	assert.ErrorIs(t, err, imwgpu.ErrUnsupportedFormat)
}
