package gpu

import (
	"errors"
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/imwgpu"
	"github.com/gogpu/wgpu/hal"
)

// ErrNilPipeline is returned when operating on a destroyed pipeline.
var ErrNilPipeline = errors.New("gpu: imgui pipeline is nil")

// PipelineSettings is the part of imwgpu.Config that shapes the render
// pipeline. Changing any field requires Rebuild.
type PipelineSettings struct {
	Label           string
	Format          gputypes.TextureFormat
	SampleCount     uint32
	ColorMode       imwgpu.ColorMode
	DepthFormat     gputypes.TextureFormat
	Shader          *imwgpu.ShaderOverride
	PrecompileSPIRV bool
}

// SettingsFromConfig extracts pipeline settings from c.
func SettingsFromConfig(c imwgpu.Config) PipelineSettings {
	c = c.WithDefaults()
	return PipelineSettings{
		Label:           c.Label,
		Format:          c.OutputFormat,
		SampleCount:     c.SampleCount,
		ColorMode:       c.ColorMode,
		DepthFormat:     c.DepthFormat,
		Shader:          c.Shader,
		PrecompileSPIRV: c.PrecompileSPIRV,
	}
}

// Pipeline owns the GUI shader, its bind group layouts, and the render
// pipeline.
//
// The bind group layouts and pipeline layout never change after
// NewPipeline, so bind groups created against them stay valid across
// Rebuild. Only the shader module and the pipeline object are replaced.
type Pipeline struct {
	device   hal.Device
	settings PipelineSettings

	uniformLayout hal.BindGroupLayout
	textureLayout hal.BindGroupLayout
	pipeLayout    hal.PipelineLayout

	shader   hal.ShaderModule
	pipeline hal.RenderPipeline
}

// NewPipeline creates the layouts and builds the pipeline for s.
func NewPipeline(device hal.Device, s PipelineSettings) (*Pipeline, error) {
	if device == nil {
		return nil, imwgpu.ErrNilDevice
	}
	p := &Pipeline{device: device}
	if err := p.createLayouts(s.Label); err != nil {
		p.Destroy()
		return nil, err
	}
	if err := p.Rebuild(s); err != nil {
		p.Destroy()
		return nil, err
	}
	return p, nil
}

// createLayouts creates the two bind group layouts and the pipeline layout:
//
//	group 0: projection uniform (vertex)
//	group 1: texture + sampler (fragment)
func (p *Pipeline) createLayouts(label string) error {
	uniformLayout, err := p.device.CreateBindGroupLayout(&hal.BindGroupLayoutDescriptor{
		Label: label + "_uniform_layout",
		Entries: []gputypes.BindGroupLayoutEntry{
			{
				Binding:    0,
				Visibility: gputypes.ShaderStageVertex,
				Buffer:     &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeUniform},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("create uniform layout: %w", err)
	}
	p.uniformLayout = uniformLayout

	textureLayout, err := p.device.CreateBindGroupLayout(&hal.BindGroupLayoutDescriptor{
		Label: label + "_texture_layout",
		Entries: []gputypes.BindGroupLayoutEntry{
			{
				Binding:    0,
				Visibility: gputypes.ShaderStageFragment,
				Texture: &gputypes.TextureBindingLayout{
					SampleType:    gputypes.TextureSampleTypeFloat,
					ViewDimension: gputypes.TextureViewDimension2D,
				},
			},
			{
				Binding:    1,
				Visibility: gputypes.ShaderStageFragment,
				Sampler:    &gputypes.SamplerBindingLayout{Type: gputypes.SamplerBindingTypeFiltering},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("create texture layout: %w", err)
	}
	p.textureLayout = textureLayout

	pipeLayout, err := p.device.CreatePipelineLayout(&hal.PipelineLayoutDescriptor{
		Label:            label + "_pipe_layout",
		BindGroupLayouts: []hal.BindGroupLayout{p.uniformLayout, p.textureLayout},
	})
	if err != nil {
		return fmt.Errorf("create pipeline layout: %w", err)
	}
	p.pipeLayout = pipeLayout
	return nil
}

// Rebuild compiles the shader and creates a new render pipeline for s.
// The previous shader and pipeline are released only after the new ones
// were created, so a failed Rebuild leaves the pipeline usable.
func (p *Pipeline) Rebuild(s PipelineSettings) error {
	if p.pipeLayout == nil {
		return ErrNilPipeline
	}
	if s.SampleCount == 0 {
		s.SampleCount = 1
	}

	prog, err := resolveShader(s)
	if err != nil {
		return err
	}
	shader, err := p.device.CreateShaderModule(&hal.ShaderModuleDescriptor{
		Label:  s.Label + "_shader",
		Source: prog.source,
	})
	if err != nil {
		return fmt.Errorf("create imgui shader: %w", err)
	}

	blend := guiBlendState()
	desc := &hal.RenderPipelineDescriptor{
		Label:  s.Label + "_pipeline",
		Layout: p.pipeLayout,
		Vertex: hal.VertexState{
			Module:     shader,
			EntryPoint: prog.vertexEntry,
			Buffers:    vertexLayout(),
		},
		Fragment: &hal.FragmentState{
			Module:     shader,
			EntryPoint: prog.fragmentEntry,
			Targets: []gputypes.ColorTargetState{
				{
					Format:    s.Format,
					Blend:     &blend,
					WriteMask: gputypes.ColorWriteMaskAll,
				},
			},
		},
		Primitive: gputypes.PrimitiveState{
			Topology: gputypes.PrimitiveTopologyTriangleList,
			CullMode: gputypes.CullModeNone,
		},
		DepthStencil: depthStencilState(s.DepthFormat),
		Multisample: gputypes.MultisampleState{
			Count: s.SampleCount,
			Mask:  0xFFFFFFFF,
		},
	}
	pipeline, err := p.device.CreateRenderPipeline(desc)
	if err != nil {
		p.device.DestroyShaderModule(shader)
		return fmt.Errorf("create imgui pipeline: %w", err)
	}

	p.destroyPipeline()
	p.shader = shader
	p.pipeline = pipeline
	p.settings = s

	slogger().Debug("imgui pipeline built",
		"format", s.Format.String(),
		"samples", s.SampleCount,
		"vertex_entry", prog.vertexEntry,
		"fragment_entry", prog.fragmentEntry,
		"spirv", len(prog.source.SPIRV) > 0,
	)
	return nil
}

// Settings returns the settings of the current pipeline.
func (p *Pipeline) Settings() PipelineSettings { return p.settings }

// UniformLayout returns the group 0 layout.
func (p *Pipeline) UniformLayout() hal.BindGroupLayout { return p.uniformLayout }

// TextureLayout returns the group 1 layout.
func (p *Pipeline) TextureLayout() hal.BindGroupLayout { return p.textureLayout }

// Bind sets the pipeline on pass.
func (p *Pipeline) Bind(pass hal.RenderPassEncoder) {
	pass.SetPipeline(p.pipeline)
}

// Destroy releases all GPU objects in reverse creation order. Safe to call
// more than once.
func (p *Pipeline) Destroy() {
	if p.device == nil {
		return
	}
	p.destroyPipeline()
	if p.pipeLayout != nil {
		p.device.DestroyPipelineLayout(p.pipeLayout)
		p.pipeLayout = nil
	}
	if p.textureLayout != nil {
		p.device.DestroyBindGroupLayout(p.textureLayout)
		p.textureLayout = nil
	}
	if p.uniformLayout != nil {
		p.device.DestroyBindGroupLayout(p.uniformLayout)
		p.uniformLayout = nil
	}
}

func (p *Pipeline) destroyPipeline() {
	if p.pipeline != nil {
		p.device.DestroyRenderPipeline(p.pipeline)
		p.pipeline = nil
	}
	if p.shader != nil {
		p.device.DestroyShaderModule(p.shader)
		p.shader = nil
	}
}

// guiBlendState is straight alpha "over" for colour. Alpha accumulates
// coverage so the target ends up with the union of drawn shapes.
func guiBlendState() gputypes.BlendState {
	return gputypes.BlendState{
		Color: gputypes.BlendComponent{
			SrcFactor: gputypes.BlendFactorSrcAlpha,
			DstFactor: gputypes.BlendFactorOneMinusSrcAlpha,
			Operation: gputypes.BlendOperationAdd,
		},
		Alpha: gputypes.BlendComponent{
			SrcFactor: gputypes.BlendFactorOneMinusDstAlpha,
			DstFactor: gputypes.BlendFactorOne,
			Operation: gputypes.BlendOperationAdd,
		},
	}
}

// vertexLayout matches imwgpu.Vertex and VertexInput in imgui.wgsl:
//
//	pos   (vec2<f32>)  offset 0   location 0
//	uv    (vec2<f32>)  offset 8   location 1
//	color (unorm8x4)   offset 16  location 2
func vertexLayout() []gputypes.VertexBufferLayout {
	return []gputypes.VertexBufferLayout{
		{
			ArrayStride: imwgpu.VertexSize,
			StepMode:    gputypes.VertexStepModeVertex,
			Attributes: []gputypes.VertexAttribute{
				{Format: gputypes.VertexFormatFloat32x2, Offset: 0, ShaderLocation: 0},
				{Format: gputypes.VertexFormatFloat32x2, Offset: 8, ShaderLocation: 1},
				{Format: gputypes.VertexFormatUnorm8x4, Offset: 16, ShaderLocation: 2},
			},
		},
	}
}

// depthStencilState returns a state that neither tests nor writes, or nil
// when the pass has no depth attachment.
func depthStencilState(format gputypes.TextureFormat) *hal.DepthStencilState {
	if format == gputypes.TextureFormatUndefined {
		return nil
	}
	keep := hal.StencilFaceState{
		Compare:     gputypes.CompareFunctionAlways,
		FailOp:      hal.StencilOperationKeep,
		DepthFailOp: hal.StencilOperationKeep,
		PassOp:      hal.StencilOperationKeep,
	}
	return &hal.DepthStencilState{
		Format:            format,
		DepthWriteEnabled: false,
		DepthCompare:      gputypes.CompareFunctionAlways,
		StencilFront:      keep,
		StencilBack:       keep,
	}
}
