package gpu

import (
	_ "embed"
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/imwgpu"
	"github.com/gogpu/naga"
	"github.com/gogpu/wgpu/hal"
)

// Embedded GUI shader source.
//
//go:embed shaders/imgui.wgsl
var imguiShaderSource string

// Entry points in shaders/imgui.wgsl.
const (
	entryVertexLinear   = "vs_main"
	entryVertexRaw      = "vs_main_raw"
	entryFragment       = "fs_main"
	entryFragmentEncode = "fs_main_srgb"
)

// ShaderSource returns the embedded WGSL source.
func ShaderSource() string { return imguiShaderSource }

// EntryPoints returns the vertex and fragment entry points of the embedded
// shader for a colour mode and output format.
func EntryPoints(mode imwgpu.ColorMode, format gputypes.TextureFormat) (vertex, fragment string) {
	switch mode.Resolve(format) {
	case imwgpu.ColorLinear:
		return entryVertexLinear, entryFragment
	case imwgpu.ColorGammaEncode:
		return entryVertexLinear, entryFragmentEncode
	default:
		return entryVertexRaw, entryFragment
	}
}

// CompileSPIRV compiles WGSL source to SPIR-V words.
func CompileSPIRV(wgsl string) ([]uint32, error) {
	spirvBytes, err := naga.Compile(wgsl)
	if err != nil {
		return nil, fmt.Errorf("compile shader: %w", err)
	}
	if len(spirvBytes)%4 != 0 {
		return nil, fmt.Errorf("compile shader: SPIR-V size %d is not a multiple of 4", len(spirvBytes))
	}

	// SPIR-V is little-endian 32-bit words.
	words := make([]uint32, len(spirvBytes)/4)
	for i := range words {
		words[i] = uint32(spirvBytes[i*4]) |
			uint32(spirvBytes[i*4+1])<<8 |
			uint32(spirvBytes[i*4+2])<<16 |
			uint32(spirvBytes[i*4+3])<<24
	}
	return words, nil
}

// shaderProgram is a resolved shader source plus entry points.
type shaderProgram struct {
	source        hal.ShaderSource
	vertexEntry   string
	fragmentEntry string
}

// resolveShader picks the shader source for s: the override when present,
// otherwise the embedded WGSL, optionally precompiled to SPIR-V.
func resolveShader(s PipelineSettings) (shaderProgram, error) {
	if o := s.Shader; o != nil {
		p := shaderProgram{vertexEntry: o.VertexEntry, fragmentEntry: o.FragmentEntry}
		switch {
		case len(o.SPIRV) > 0:
			p.source.SPIRV = o.SPIRV
		case s.PrecompileSPIRV:
			words, err := CompileSPIRV(o.WGSL)
			if err != nil {
				return shaderProgram{}, err
			}
			p.source.SPIRV = words
		default:
			p.source.WGSL = o.WGSL
		}
		return p, nil
	}

	vs, fs := EntryPoints(s.ColorMode, s.Format)
	p := shaderProgram{vertexEntry: vs, fragmentEntry: fs}
	if s.PrecompileSPIRV {
		words, err := CompileSPIRV(imguiShaderSource)
		if err != nil {
			return shaderProgram{}, err
		}
		p.source.SPIRV = words
		return p, nil
	}
	p.source.WGSL = imguiShaderSource
	return p, nil
}
