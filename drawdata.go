package imwgpu

import "math"

// VertexSize is the size of one Vertex in the GPU vertex buffer.
const VertexSize = 20

// Vertex is one GUI vertex. The layout matches the vertex shader input:
// position at offset 0, uv at 8, packed colour at 16.
type Vertex struct {
	Pos [2]float32
	UV  [2]float32
	// Col holds RGBA8 with R in the low byte (see PackColor).
	Col uint32
}

// PackColor packs 8-bit channels into the Vertex.Col layout.
func PackColor(r, g, b, a uint8) uint32 {
	return uint32(a)<<24 | uint32(b)<<16 | uint32(g)<<8 | uint32(r)
}

// DrawIdx is an index into a draw list's vertices. Indices are stored as
// 32-bit values and narrowed at upload time when the renderer is configured
// for 16-bit indices.
type DrawIdx = uint32

// DrawCmdKind distinguishes geometry commands from state markers.
type DrawCmdKind uint8

const (
	// DrawCmdElements draws ElemCount indices with a texture and clip rect.
	DrawCmdElements DrawCmdKind = iota
	// DrawCmdResetRenderState asks the renderer to forget cached GPU state.
	// It carries no geometry.
	DrawCmdResetRenderState
)

func (k DrawCmdKind) String() string {
	switch k {
	case DrawCmdElements:
		return "Elements"
	case DrawCmdResetRenderState:
		return "ResetRenderState"
	default:
		return "Unknown"
	}
}

// DrawCmd is one command of a draw list.
type DrawCmd struct {
	Kind DrawCmdKind

	// ClipRect is (x1, y1, x2, y2) in display coordinates.
	ClipRect  [4]float32
	TextureID TextureID

	// ElemCount is the number of indices to draw.
	ElemCount uint32
	// IdxOffset and VtxOffset are relative to the owning list.
	IdxOffset uint32
	VtxOffset uint32
}

// DrawList is a batch of geometry produced by the GUI library for one
// window or layer. The renderer never modifies it.
type DrawList struct {
	Vertices []Vertex
	Indices  []DrawIdx
	Commands []DrawCmd
}

// DrawData is everything needed to render one frame.
type DrawData struct {
	Lists []*DrawList

	// DisplayPos is the top-left of the displayed area in display
	// coordinates. It is zero for single-viewport hosts.
	DisplayPos  [2]float32
	DisplaySize [2]float32
	// FramebufferScale maps display coordinates to framebuffer pixels.
	// A zero scale is treated as 1.
	FramebufferScale [2]float32
}

// TotalVertexCount returns the number of vertices across all lists.
func (d *DrawData) TotalVertexCount() int {
	n := 0
	for _, l := range d.Lists {
		if l != nil {
			n += len(l.Vertices)
		}
	}
	return n
}

// TotalIndexCount returns the number of indices across all lists.
func (d *DrawData) TotalIndexCount() int {
	n := 0
	for _, l := range d.Lists {
		if l != nil {
			n += len(l.Indices)
		}
	}
	return n
}

// Scale returns FramebufferScale with zero components replaced by 1.
func (d *DrawData) Scale() (sx, sy float32) {
	sx, sy = d.FramebufferScale[0], d.FramebufferScale[1]
	if sx == 0 {
		sx = 1
	}
	if sy == 0 {
		sy = 1
	}
	return sx, sy
}

// FramebufferSize returns the render target size in pixels.
func (d *DrawData) FramebufferSize() (w, h uint32) {
	sx, sy := d.Scale()
	fw := d.DisplaySize[0] * sx
	fh := d.DisplaySize[1] * sy
	if !(fw > 0) || !(fh > 0) || fw > math.MaxUint32 || fh > math.MaxUint32 {
		return 0, 0
	}
	return uint32(fw), uint32(fh)
}

// Valid reports whether the frame has a drawable area.
func (d *DrawData) Valid() bool {
	if d == nil {
		return false
	}
	w, h := d.FramebufferSize()
	return w > 0 && h > 0
}

// AtlasFormat is the pixel layout of a FontAtlas.
type AtlasFormat uint8

const (
	// AtlasRGBA32 stores 4 bytes per pixel.
	AtlasRGBA32 AtlasFormat = iota
	// AtlasAlpha8 stores coverage only; it is expanded to white RGBA.
	AtlasAlpha8
)

// BytesPerPixel returns the size of one atlas pixel.
func (f AtlasFormat) BytesPerPixel() int {
	if f == AtlasAlpha8 {
		return 1
	}
	return 4
}

// FontAtlas is the glyph texture built by the GUI library.
type FontAtlas struct {
	Width, Height int
	Pixels        []byte
	Format        AtlasFormat
}

// Validate checks that Pixels matches the atlas dimensions.
func (a *FontAtlas) Validate() error {
	if a == nil || a.Width <= 0 || a.Height <= 0 {
		return ErrInvalidAtlas
	}
	if len(a.Pixels) != a.Width*a.Height*a.Format.BytesPerPixel() {
		return ErrInvalidAtlas
	}
	return nil
}

// RGBA returns the atlas as tightly packed RGBA8 pixels.
func (a *FontAtlas) RGBA() []byte {
	if a.Format != AtlasAlpha8 {
		return a.Pixels
	}
	out := make([]byte, len(a.Pixels)*4)
	for i, c := range a.Pixels {
		out[i*4+0] = 0xFF
		out[i*4+1] = 0xFF
		out[i*4+2] = 0xFF
		out[i*4+3] = c
	}
	return out
}

// FrameStats summarises what one Render call recorded.
type FrameStats struct {
	Lists          int
	Vertices       int
	Indices        int
	DrawCalls      int
	ScissorChanges int
	TextureBinds   int
	// ClippedCommands counts commands skipped for an empty clip rectangle.
	ClippedCommands int
	// MissingTextures counts commands skipped for an unresolved texture.
	MissingTextures int
	// InvalidCommands counts commands skipped for indexing outside their
	// list.
	InvalidCommands int
	// Reallocated is set when vertex or index buffers grew this frame.
	Reallocated bool
}
