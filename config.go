package imwgpu

import (
	"bytes"
	"fmt"
	"os"
	"strings"

	"github.com/gogpu/gputypes"
	"github.com/pelletier/go-toml/v2"
)

// ColorMode selects how vertex colours and the final pixel are treated.
type ColorMode uint8

const (
	// ColorAuto picks ColorLinear for sRGB output formats and ColorRaw
	// otherwise.
	ColorAuto ColorMode = iota
	// ColorRaw passes vertex colours through untouched.
	ColorRaw
	// ColorLinear decodes sRGB vertex colours to linear before
	// interpolation. Use with sRGB targets, which encode on write.
	ColorLinear
	// ColorGammaEncode decodes vertex colours like ColorLinear and
	// re-encodes the fragment output. Use with non-sRGB targets.
	ColorGammaEncode
)

var colorModeNames = map[ColorMode]string{
	ColorAuto:        "auto",
	ColorRaw:         "raw",
	ColorLinear:      "linear",
	ColorGammaEncode: "gamma-encode",
}

func (m ColorMode) String() string {
	if s, ok := colorModeNames[m]; ok {
		return s
	}
	return fmt.Sprintf("ColorMode(%d)", m)
}

// Resolve replaces ColorAuto with the concrete mode for format.
func (m ColorMode) Resolve(format gputypes.TextureFormat) ColorMode {
	if m != ColorAuto {
		return m
	}
	if format.IsSrgb() {
		return ColorLinear
	}
	return ColorRaw
}

// ShaderOverride replaces the built-in shader. Exactly one of WGSL or
// SPIRV is used; SPIRV wins when both are set.
type ShaderOverride struct {
	WGSL          string
	SPIRV         []uint32
	VertexEntry   string
	FragmentEntry string
}

// Config holds renderer settings. It is copied at construction; later
// changes to the caller's value have no effect.
type Config struct {
	// OutputFormat is the colour format of the render pass target.
	OutputFormat gputypes.TextureFormat

	// SampleCount is the multisample count of the target (1 = off).
	SampleCount uint32

	ColorMode ColorMode

	// Shader, when non-nil, replaces the embedded WGSL.
	Shader *ShaderOverride

	// PrecompileSPIRV compiles the WGSL shader to SPIR-V on the CPU before
	// handing it to the device.
	PrecompileSPIRV bool

	// DepthFormat adds a depth/stencil state that never tests or writes,
	// for passes that carry a depth attachment. Undefined means none.
	DepthFormat gputypes.TextureFormat

	// ClearColor is used by RenderPassDescriptor. Nil loads the existing
	// framebuffer contents.
	ClearColor *gputypes.Color

	// IndexFormat is the width indices are uploaded with.
	IndexFormat gputypes.IndexFormat

	// Initial buffer capacities in elements. Zero allocates on first use.
	InitialVertexCapacity int
	InitialIndexCapacity  int

	// GrowthFactor scales capacity on reallocation.
	GrowthFactor float64

	ScissorOrigin ScissorOrigin

	// Label prefixes GPU object labels.
	Label string
}

// DefaultConfig returns the settings used when the host has no opinion:
// an sRGB BGRA target, no multisampling, 16-bit indices.
func DefaultConfig() Config {
	return Config{
		OutputFormat: gputypes.TextureFormatBGRA8UnormSrgb,
		SampleCount:  1,
		ColorMode:    ColorAuto,
		IndexFormat:  gputypes.IndexFormatUint16,
		GrowthFactor: 2,
		Label:        "imgui",
	}
}

// WithDefaults fills zero fields with DefaultConfig values. OutputFormat
// is left alone so that Validate can reject a missing format.
func (c Config) WithDefaults() Config {
	d := DefaultConfig()
	if c.SampleCount == 0 {
		c.SampleCount = d.SampleCount
	}
	if c.IndexFormat == gputypes.IndexFormatUndefined {
		c.IndexFormat = d.IndexFormat
	}
	if c.GrowthFactor == 0 {
		c.GrowthFactor = d.GrowthFactor
	}
	if c.Label == "" {
		c.Label = d.Label
	}
	return c
}

// Validate reports the first problem with c after defaults are applied.
func (c Config) Validate() error {
	c = c.WithDefaults()
	if c.OutputFormat == gputypes.TextureFormatUndefined || c.OutputFormat.IsDepthStencil() {
		return fmt.Errorf("%w: output format %s", ErrUnsupportedFormat, c.OutputFormat)
	}
	if c.SampleCount > 32 || c.SampleCount&(c.SampleCount-1) != 0 {
		return fmt.Errorf("%w: %d is not a power of two", ErrUnsupportedSampleCount, c.SampleCount)
	}
	if _, ok := colorModeNames[c.ColorMode]; !ok {
		return fmt.Errorf("%w: color mode %d", ErrInvalidConfig, c.ColorMode)
	}
	if c.DepthFormat != gputypes.TextureFormatUndefined && !c.DepthFormat.IsDepthStencil() {
		return fmt.Errorf("%w: depth format %s", ErrInvalidConfig, c.DepthFormat)
	}
	if c.IndexFormat != gputypes.IndexFormatUint16 && c.IndexFormat != gputypes.IndexFormatUint32 {
		return fmt.Errorf("%w: index format %s", ErrInvalidConfig, c.IndexFormat)
	}
	if c.InitialVertexCapacity < 0 || c.InitialIndexCapacity < 0 {
		return fmt.Errorf("%w: negative initial capacity", ErrInvalidConfig)
	}
	if c.GrowthFactor < 1 {
		return fmt.Errorf("%w: growth factor %g < 1", ErrInvalidConfig, c.GrowthFactor)
	}
	if c.ScissorOrigin > ScissorBottomLeft {
		return fmt.Errorf("%w: scissor origin %d", ErrInvalidConfig, c.ScissorOrigin)
	}
	if s := c.Shader; s != nil {
		if s.WGSL == "" && len(s.SPIRV) == 0 {
			return fmt.Errorf("%w: shader override has no source", ErrMissingShaderStage)
		}
		if s.VertexEntry == "" {
			return fmt.Errorf("%w: vertex entry point", ErrMissingShaderStage)
		}
		if s.FragmentEntry == "" {
			return fmt.Errorf("%w: fragment entry point", ErrMissingShaderStage)
		}
	}
	return nil
}

var textureFormatNames = map[string]gputypes.TextureFormat{
	"rgba8unorm":           gputypes.TextureFormatRGBA8Unorm,
	"rgba8unorm-srgb":      gputypes.TextureFormatRGBA8UnormSrgb,
	"bgra8unorm":           gputypes.TextureFormatBGRA8Unorm,
	"bgra8unorm-srgb":      gputypes.TextureFormatBGRA8UnormSrgb,
	"rgba16float":          gputypes.TextureFormatRGBA16Float,
	"rgb10a2unorm":         gputypes.TextureFormatRGB10A2Unorm,
	"depth16unorm":         gputypes.TextureFormatDepth16Unorm,
	"depth24plus":          gputypes.TextureFormatDepth24Plus,
	"depth24plus-stencil8": gputypes.TextureFormatDepth24PlusStencil8,
	"depth32float":         gputypes.TextureFormatDepth32Float,
}

// ParseTextureFormat maps a WebGPU-style format name such as
// "bgra8unorm-srgb" to its gputypes value. Matching ignores case.
func ParseTextureFormat(name string) (gputypes.TextureFormat, error) {
	f, ok := textureFormatNames[strings.ToLower(name)]
	if !ok {
		return gputypes.TextureFormatUndefined, fmt.Errorf("%w: unknown texture format %q", ErrInvalidConfig, name)
	}
	return f, nil
}

// configFile is the TOML shape of Config. Pointer fields distinguish
// "absent" from zero.
type configFile struct {
	OutputFormat          string      `toml:"output_format"`
	SampleCount           *uint32     `toml:"sample_count"`
	ColorMode             string      `toml:"color_mode"`
	PrecompileSPIRV       bool        `toml:"precompile_spirv"`
	DepthFormat           string      `toml:"depth_format"`
	ClearColor            []float64   `toml:"clear_color"`
	IndexFormat           string      `toml:"index_format"`
	InitialVertexCapacity int         `toml:"initial_vertex_capacity"`
	InitialIndexCapacity  int         `toml:"initial_index_capacity"`
	GrowthFactor          float64     `toml:"growth_factor"`
	ScissorOrigin         string      `toml:"scissor_origin"`
	Label                 string      `toml:"label"`
	Shader                *shaderToml `toml:"shader"`
}

type shaderToml struct {
	WGSL          string `toml:"wgsl"`
	VertexEntry   string `toml:"vertex_entry"`
	FragmentEntry string `toml:"fragment_entry"`
}

// ParseConfig decodes TOML settings on top of DefaultConfig and validates
// the result. Unknown keys are rejected.
func ParseConfig(data []byte) (Config, error) {
	var f configFile
	dec := toml.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&f); err != nil {
		return Config{}, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	c := DefaultConfig()
	var err error
	if f.OutputFormat != "" {
		if c.OutputFormat, err = ParseTextureFormat(f.OutputFormat); err != nil {
			return Config{}, err
		}
	}
	if f.SampleCount != nil {
		c.SampleCount = *f.SampleCount
	}
	if f.ColorMode != "" {
		if c.ColorMode, err = parseColorMode(f.ColorMode); err != nil {
			return Config{}, err
		}
	}
	c.PrecompileSPIRV = f.PrecompileSPIRV
	if f.DepthFormat != "" {
		if c.DepthFormat, err = ParseTextureFormat(f.DepthFormat); err != nil {
			return Config{}, err
		}
	}
	if f.ClearColor != nil {
		if len(f.ClearColor) != 4 {
			return Config{}, fmt.Errorf("%w: clear_color needs 4 components, got %d", ErrInvalidConfig, len(f.ClearColor))
		}
		c.ClearColor = &gputypes.Color{R: f.ClearColor[0], G: f.ClearColor[1], B: f.ClearColor[2], A: f.ClearColor[3]}
	}
	switch strings.ToLower(f.IndexFormat) {
	case "":
	case "uint16":
		c.IndexFormat = gputypes.IndexFormatUint16
	case "uint32":
		c.IndexFormat = gputypes.IndexFormatUint32
	default:
		return Config{}, fmt.Errorf("%w: unknown index format %q", ErrInvalidConfig, f.IndexFormat)
	}
	c.InitialVertexCapacity = f.InitialVertexCapacity
	c.InitialIndexCapacity = f.InitialIndexCapacity
	if f.GrowthFactor != 0 {
		c.GrowthFactor = f.GrowthFactor
	}
	switch strings.ToLower(f.ScissorOrigin) {
	case "", "top-left":
		c.ScissorOrigin = ScissorTopLeft
	case "bottom-left":
		c.ScissorOrigin = ScissorBottomLeft
	default:
		return Config{}, fmt.Errorf("%w: unknown scissor origin %q", ErrInvalidConfig, f.ScissorOrigin)
	}
	if f.Label != "" {
		c.Label = f.Label
	}
	if f.Shader != nil {
		c.Shader = &ShaderOverride{
			WGSL:          f.Shader.WGSL,
			VertexEntry:   f.Shader.VertexEntry,
			FragmentEntry: f.Shader.FragmentEntry,
		}
	}

	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// LoadConfig reads and parses a TOML config file.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("imwgpu: read config: %w", err)
	}
	c, err := ParseConfig(data)
	if err != nil {
		return Config{}, fmt.Errorf("%s: %w", path, err)
	}
	return c, nil
}

func parseColorMode(s string) (ColorMode, error) {
	for m, name := range colorModeNames {
		if strings.EqualFold(name, s) {
			return m, nil
		}
	}
	return ColorAuto, fmt.Errorf("%w: unknown color mode %q", ErrInvalidConfig, s)
}
