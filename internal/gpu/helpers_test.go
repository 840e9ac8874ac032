package gpu

import (
	"errors"
	"testing"
	"unsafe"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/imwgpu"
	"github.com/gogpu/wgpu/hal"
	"github.com/gogpu/wgpu/hal/noop"
)

// createNoopDevice creates a noop device and queue for tests.
func createNoopDevice(t *testing.T) (hal.Device, hal.Queue, func()) {
	t.Helper()
	api := noop.API{}
	instance, err := api.CreateInstance(nil)
	if err != nil {
		t.Fatalf("CreateInstance failed: %v", err)
	}
	adapters := instance.EnumerateAdapters(nil)
	openDev, err := adapters[0].Adapter.Open(0, gputypes.DefaultLimits())
	if err != nil {
		instance.Destroy()
		t.Fatalf("Open failed: %v", err)
	}
	cleanup := func() {
		openDev.Device.Destroy()
		instance.Destroy()
	}
	return openDev.Device, openDev.Queue, cleanup
}

var errInjected = errors.New("injected failure")

// Wrappers give resources a distinct identity. Noop resources are
// zero-size, so their pointers may compare equal.
type (
	fakeTexture struct {
		hal.Texture
		id int
	}
	fakeView struct {
		hal.TextureView
		id int
	}
	fakeSampler struct {
		hal.Sampler
		id int
	}
)

// countingDevice wraps a device, counts creations and destructions, keeps
// the last pipeline and shader descriptors, and can inject failures.
type countingDevice struct {
	hal.Device

	created   map[string]int
	destroyed map[string]int
	next      int

	lastPipeline *hal.RenderPipelineDescriptor
	lastShader   *hal.ShaderModuleDescriptor

	failBuffers   bool
	failPipelines bool
}

func newCountingDevice(inner hal.Device) *countingDevice {
	return &countingDevice{
		Device:    inner,
		created:   map[string]int{},
		destroyed: map[string]int{},
	}
}

func (d *countingDevice) CreateBuffer(desc *hal.BufferDescriptor) (hal.Buffer, error) {
	if d.failBuffers {
		return nil, errInjected
	}
	d.created["buffer"]++
	return d.Device.CreateBuffer(desc)
}

func (d *countingDevice) DestroyBuffer(b hal.Buffer) { d.destroyed["buffer"]++ }

func (d *countingDevice) CreateTexture(desc *hal.TextureDescriptor) (hal.Texture, error) {
	tex, err := d.Device.CreateTexture(desc)
	if err != nil {
		return nil, err
	}
	d.created["texture"]++
	d.next++
	return &fakeTexture{Texture: tex, id: d.next}, nil
}

func (d *countingDevice) DestroyTexture(hal.Texture) { d.destroyed["texture"]++ }

func (d *countingDevice) CreateTextureView(tex hal.Texture, desc *hal.TextureViewDescriptor) (hal.TextureView, error) {
	view, err := d.Device.CreateTextureView(tex, desc)
	if err != nil {
		return nil, err
	}
	d.created["view"]++
	d.next++
	return &fakeView{TextureView: view, id: d.next}, nil
}

func (d *countingDevice) DestroyTextureView(hal.TextureView) { d.destroyed["view"]++ }

func (d *countingDevice) CreateSampler(desc *hal.SamplerDescriptor) (hal.Sampler, error) {
	s, err := d.Device.CreateSampler(desc)
	if err != nil {
		return nil, err
	}
	d.created["sampler"]++
	d.next++
	return &fakeSampler{Sampler: s, id: d.next}, nil
}

func (d *countingDevice) DestroySampler(hal.Sampler) { d.destroyed["sampler"]++ }

func (d *countingDevice) CreateBindGroup(desc *hal.BindGroupDescriptor) (hal.BindGroup, error) {
	d.created["bind_group"]++
	return d.Device.CreateBindGroup(desc)
}

func (d *countingDevice) DestroyBindGroup(hal.BindGroup) { d.destroyed["bind_group"]++ }

func (d *countingDevice) CreateShaderModule(desc *hal.ShaderModuleDescriptor) (hal.ShaderModule, error) {
	d.lastShader = desc
	d.created["shader"]++
	return d.Device.CreateShaderModule(desc)
}

func (d *countingDevice) DestroyShaderModule(hal.ShaderModule) { d.destroyed["shader"]++ }

func (d *countingDevice) CreateRenderPipeline(desc *hal.RenderPipelineDescriptor) (hal.RenderPipeline, error) {
	if d.failPipelines {
		return nil, errInjected
	}
	d.lastPipeline = desc
	d.created["pipeline"]++
	return d.Device.CreateRenderPipeline(desc)
}

func (d *countingDevice) DestroyRenderPipeline(hal.RenderPipeline) { d.destroyed["pipeline"]++ }

// readBuffer copies the first n bytes of a noop buffer.
func readBuffer(t *testing.T, device hal.Device, buf hal.Buffer, n int) []byte {
	t.Helper()
	m, err := device.MapBuffer(buf, 0, uint64(n))
	if err != nil {
		t.Fatalf("MapBuffer: %v", err)
	}
	out := make([]byte, n)
	copy(out, unsafe.Slice((*byte)(m.Ptr), n))
	return out
}

// quad returns a list holding one textured quad (4 vertices, 6 indices)
// drawn with a single command.
func quad(tex imwgpu.TextureID, clip [4]float32) *imwgpu.DrawList {
	return &imwgpu.DrawList{
		Vertices: []imwgpu.Vertex{
			{Pos: [2]float32{clip[0], clip[1]}, Col: 0xFFFFFFFF},
			{Pos: [2]float32{clip[2], clip[1]}, UV: [2]float32{1, 0}, Col: 0xFFFFFFFF},
			{Pos: [2]float32{clip[2], clip[3]}, UV: [2]float32{1, 1}, Col: 0xFFFFFFFF},
			{Pos: [2]float32{clip[0], clip[3]}, UV: [2]float32{0, 1}, Col: 0xFFFFFFFF},
		},
		Indices: []imwgpu.DrawIdx{0, 1, 2, 0, 2, 3},
		Commands: []imwgpu.DrawCmd{
			{ClipRect: clip, TextureID: tex, ElemCount: 6},
		},
	}
}

// listOf returns a list with n vertices, m indices and no commands.
func listOf(n, m int) *imwgpu.DrawList {
	return &imwgpu.DrawList{
		Vertices: make([]imwgpu.Vertex, n),
		Indices:  make([]imwgpu.DrawIdx, m),
	}
}
