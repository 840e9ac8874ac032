package gpu

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/imwgpu"
	"github.com/gogpu/wgpu/hal"
)

// copyAlignment is the required alignment of buffer sizes and write lengths.
const copyAlignment = 4

// GeometryConfig configures GeometryBuffers.
type GeometryConfig struct {
	Label       string
	IndexFormat gputypes.IndexFormat
	// GrowthFactor scales the old capacity on reallocation. Values below
	// 1 are treated as 1.
	GrowthFactor float64
	// Initial capacities in elements. Zero defers allocation to the first
	// frame that needs it.
	InitialVertexCapacity int
	InitialIndexCapacity  int
}

// GeometryBuffers owns the vertex, index and projection uniform buffers.
//
// Vertex and index buffers are reallocated, never resized in place, when a
// frame needs more room than they hold, and they never shrink. After a
// reallocation the buffers must be bound again; Bind always binds the
// current ones.
type GeometryBuffers struct {
	device hal.Device
	queue  hal.Queue
	cfg    GeometryConfig

	vertexBuf hal.Buffer
	vertexCap int
	indexBuf  hal.Buffer
	indexCap  int

	uniformBuf   hal.Buffer
	uniformGroup hal.BindGroup

	// Reused per frame to avoid allocating upload slices.
	vtxScratch []byte
	idxScratch []byte

	reallocations int
}

// NewGeometryBuffers creates the projection uniform buffer and its bind
// group (against uniformLayout), plus vertex and index buffers when the
// config asks for an initial capacity.
func NewGeometryBuffers(device hal.Device, queue hal.Queue, uniformLayout hal.BindGroupLayout, cfg GeometryConfig) (*GeometryBuffers, error) {
	if device == nil || queue == nil {
		return nil, imwgpu.ErrNilDevice
	}
	if cfg.IndexFormat == gputypes.IndexFormatUndefined {
		cfg.IndexFormat = gputypes.IndexFormatUint16
	}
	if cfg.GrowthFactor < 1 {
		cfg.GrowthFactor = 1
	}
	g := &GeometryBuffers{device: device, queue: queue, cfg: cfg}

	uniformBuf, err := device.CreateBuffer(&hal.BufferDescriptor{
		Label: cfg.Label + "_uniform",
		Size:  imwgpu.ProjectionSize,
		Usage: gputypes.BufferUsageUniform | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: uniform buffer: %w", imwgpu.ErrAllocation, err)
	}
	g.uniformBuf = uniformBuf

	group, err := device.CreateBindGroup(&hal.BindGroupDescriptor{
		Label:  cfg.Label + "_uniform_bind",
		Layout: uniformLayout,
		Entries: []gputypes.BindGroupEntry{
			{Binding: 0, Resource: gputypes.BufferBinding{
				Buffer: uniformBuf.NativeHandle(), Offset: 0, Size: imwgpu.ProjectionSize,
			}},
		},
	})
	if err != nil {
		g.Destroy()
		return nil, fmt.Errorf("create uniform bind group: %w", err)
	}
	g.uniformGroup = group

	if cfg.InitialVertexCapacity > 0 || cfg.InitialIndexCapacity > 0 {
		if _, err := g.EnsureCapacity(cfg.InitialVertexCapacity, cfg.InitialIndexCapacity); err != nil {
			g.Destroy()
			return nil, err
		}
		// Initial allocation is not a reallocation.
		g.reallocations = 0
	}
	return g, nil
}

// EnsureCapacity grows the vertex and index buffers so they hold at least
// vertices and indices elements. It reports whether anything was
// reallocated. Buffers never shrink.
func (g *GeometryBuffers) EnsureCapacity(vertices, indices int) (bool, error) {
	grew := false
	if vertices > g.vertexCap {
		newCap := growCapacity(g.vertexCap, vertices, g.cfg.GrowthFactor)
		buf, err := g.createBuffer("_vertices", uint64(newCap)*imwgpu.VertexSize,
			gputypes.BufferUsageVertex|gputypes.BufferUsageCopyDst)
		if err != nil {
			return grew, err
		}
		if g.vertexBuf != nil {
			g.device.DestroyBuffer(g.vertexBuf)
		}
		slogger().Debug("vertex buffer grown", "from", g.vertexCap, "to", newCap)
		g.vertexBuf, g.vertexCap = buf, newCap
		g.reallocations++
		grew = true
	}
	if indices > g.indexCap {
		newCap := growCapacity(g.indexCap, indices, g.cfg.GrowthFactor)
		buf, err := g.createBuffer("_indices", uint64(newCap)*g.indexSize(),
			gputypes.BufferUsageIndex|gputypes.BufferUsageCopyDst)
		if err != nil {
			return grew, err
		}
		if g.indexBuf != nil {
			g.device.DestroyBuffer(g.indexBuf)
		}
		slogger().Debug("index buffer grown", "from", g.indexCap, "to", newCap, "format", g.cfg.IndexFormat.String())
		g.indexBuf, g.indexCap = buf, newCap
		g.reallocations++
		grew = true
	}
	return grew, nil
}

func (g *GeometryBuffers) createBuffer(suffix string, size uint64, usage gputypes.BufferUsage) (hal.Buffer, error) {
	size = alignUp(size, copyAlignment)
	buf, err := g.device.CreateBuffer(&hal.BufferDescriptor{
		Label: g.cfg.Label + suffix,
		Size:  size,
		Usage: usage,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %s buffer (%d bytes): %w", imwgpu.ErrAllocation, suffix[1:], size, err)
	}
	return buf, nil
}

// Upload concatenates the vertices and indices of all lists, in list order,
// grows the buffers if needed, and writes both starting at offset zero. It
// reports whether the buffers were reallocated.
//
// Indices stay relative to their list; the draw call's base vertex
// locates the list's vertices. With a 16-bit index format an index above
// 0xFFFF fails with ErrIndexOverflow before anything is written.
func (g *GeometryBuffers) Upload(lists []*imwgpu.DrawList) (bool, error) {
	vtx, idx, err := g.encode(lists)
	if err != nil {
		return false, err
	}
	nv := len(vtx) / imwgpu.VertexSize
	ni := len(idx) / int(g.indexSize())
	if nv == 0 && ni == 0 {
		return false, nil
	}

	grew, err := g.EnsureCapacity(nv, ni)
	if err != nil {
		return grew, err
	}
	if len(vtx) > 0 {
		if err := g.queue.WriteBuffer(g.vertexBuf, 0, padTo(vtx, copyAlignment)); err != nil {
			return grew, fmt.Errorf("write vertices: %w", err)
		}
	}
	if len(idx) > 0 {
		if err := g.queue.WriteBuffer(g.indexBuf, 0, padTo(idx, copyAlignment)); err != nil {
			return grew, fmt.Errorf("write indices: %w", err)
		}
	}
	g.vtxScratch, g.idxScratch = vtx[:0], idx[:0]
	return grew, nil
}

// encode serializes all lists into the scratch slices.
func (g *GeometryBuffers) encode(lists []*imwgpu.DrawList) (vtx, idx []byte, err error) {
	vtx, idx = g.vtxScratch[:0], g.idxScratch[:0]
	wide := g.cfg.IndexFormat == gputypes.IndexFormatUint32
	for li, l := range lists {
		if l == nil {
			continue
		}
		for _, v := range l.Vertices {
			vtx = binary.LittleEndian.AppendUint32(vtx, math.Float32bits(v.Pos[0]))
			vtx = binary.LittleEndian.AppendUint32(vtx, math.Float32bits(v.Pos[1]))
			vtx = binary.LittleEndian.AppendUint32(vtx, math.Float32bits(v.UV[0]))
			vtx = binary.LittleEndian.AppendUint32(vtx, math.Float32bits(v.UV[1]))
			vtx = binary.LittleEndian.AppendUint32(vtx, v.Col)
		}
		for i, ix := range l.Indices {
			if wide {
				idx = binary.LittleEndian.AppendUint32(idx, ix)
				continue
			}
			if ix > math.MaxUint16 {
				return nil, nil, fmt.Errorf("%w: list %d index %d = %d", imwgpu.ErrIndexOverflow, li, i, ix)
			}
			idx = binary.LittleEndian.AppendUint16(idx, uint16(ix))
		}
	}
	return vtx, idx, nil
}

// WriteProjection uploads a column-major 4x4 matrix to the uniform buffer.
func (g *GeometryBuffers) WriteProjection(m [16]float32) error {
	var data [imwgpu.ProjectionSize]byte
	for i, f := range m {
		binary.LittleEndian.PutUint32(data[i*4:], math.Float32bits(f))
	}
	if err := g.queue.WriteBuffer(g.uniformBuf, 0, data[:]); err != nil {
		return fmt.Errorf("write projection: %w", err)
	}
	return nil
}

// Bind sets the projection bind group (group 0) and the vertex and index
// buffers on pass.
func (g *GeometryBuffers) Bind(pass hal.RenderPassEncoder) {
	pass.SetBindGroup(0, g.uniformGroup, nil)
	pass.SetVertexBuffer(0, g.vertexBuf, 0)
	pass.SetIndexBuffer(g.indexBuf, g.cfg.IndexFormat, 0)
}

// VertexCapacity returns the vertex buffer capacity in vertices.
func (g *GeometryBuffers) VertexCapacity() int { return g.vertexCap }

// IndexCapacity returns the index buffer capacity in indices.
func (g *GeometryBuffers) IndexCapacity() int { return g.indexCap }

// Reallocations returns how many times a buffer has been reallocated.
func (g *GeometryBuffers) Reallocations() int { return g.reallocations }

// IndexFormat returns the format indices are uploaded with.
func (g *GeometryBuffers) IndexFormat() gputypes.IndexFormat { return g.cfg.IndexFormat }

// Destroy releases all buffers. Safe to call more than once.
func (g *GeometryBuffers) Destroy() {
	if g.device == nil {
		return
	}
	if g.uniformGroup != nil {
		g.device.DestroyBindGroup(g.uniformGroup)
		g.uniformGroup = nil
	}
	for _, buf := range []*hal.Buffer{&g.uniformBuf, &g.indexBuf, &g.vertexBuf} {
		if *buf != nil {
			g.device.DestroyBuffer(*buf)
			*buf = nil
		}
	}
	g.vertexCap, g.indexCap = 0, 0
}

func (g *GeometryBuffers) indexSize() uint64 {
	if g.cfg.IndexFormat == gputypes.IndexFormatUint32 {
		return 4
	}
	return 2
}

// growCapacity returns max(need, cur*factor).
func growCapacity(cur, need int, factor float64) int {
	n := int(math.Ceil(float64(cur) * factor))
	if n < need {
		n = need
	}
	return n
}

func alignUp(n, a uint64) uint64 {
	return (n + a - 1) &^ (a - 1)
}

// padTo extends b with zeros to a multiple of a. b's spare capacity is
// used when available.
func padTo(b []byte, a int) []byte {
	for len(b)%a != 0 {
		b = append(b, 0)
	}
	return b
}
