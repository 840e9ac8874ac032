package gpu

import (
	"math"

	"github.com/gogpu/imwgpu"
	"github.com/gogpu/wgpu/hal"
)

// TextureBindObserver is an optional interface for render pass encoders
// that annotate the command stream, such as TracePass or a frame debugger.
// Translate calls BoundTexture right after each group 1 SetBindGroup with
// the id of the texture that bind group belongs to.
type TextureBindObserver interface {
	BoundTexture(id imwgpu.TextureID)
}

// Translator records one frame of GUI draw lists into a render pass.
type Translator struct {
	pipeline *Pipeline
	geometry *GeometryBuffers
	textures *TextureRegistry
	origin   imwgpu.ScissorOrigin
}

// NewTranslator returns a translator drawing with the given components.
func NewTranslator(p *Pipeline, g *GeometryBuffers, t *TextureRegistry, origin imwgpu.ScissorOrigin) *Translator {
	return &Translator{pipeline: p, geometry: g, textures: t, origin: origin}
}

// passState tracks what is bound on the pass so redundant calls are
// skipped.
type passState struct {
	needSetup    bool
	scissor      [4]uint32
	scissorKnown bool
	texture      imwgpu.TextureID
}

// reset forgets everything bound; the next draw sets it all again.
func (s *passState) reset() {
	s.needSetup = true
	s.scissorKnown = false
	s.texture = 0
}

// Translate uploads the frame's geometry and projection and records its
// draw commands into pass, in input order.
//
// A frame with no drawable area or no geometry records nothing and writes
// nothing. Commands whose texture does not resolve are skipped and
// logged; commands whose clip rectangle is empty after clamping are
// skipped silently. Neither aborts the frame. Errors are returned only
// for upload failures, before any command is recorded.
//
// The pass is assumed to start with a scissor covering the framebuffer.
func (tr *Translator) Translate(pass hal.RenderPassEncoder, data *imwgpu.DrawData) (imwgpu.FrameStats, error) {
	var stats imwgpu.FrameStats
	if !data.Valid() {
		return stats, nil
	}
	nv, ni := data.TotalVertexCount(), data.TotalIndexCount()
	if nv == 0 || ni == 0 {
		return stats, nil
	}

	grew, err := tr.geometry.Upload(data.Lists)
	if err != nil {
		return stats, err
	}
	if err := tr.geometry.WriteProjection(imwgpu.Projection(data)); err != nil {
		return stats, err
	}
	stats.Reallocated = grew
	stats.Vertices = nv
	stats.Indices = ni

	fbw, fbh := data.FramebufferSize()
	st := passState{
		needSetup:    true,
		scissor:      [4]uint32{0, 0, fbw, fbh},
		scissorKnown: true,
	}
	observer, _ := pass.(TextureBindObserver)

	var vtxBase, idxBase uint64
	for li, list := range data.Lists {
		if list == nil {
			continue
		}
		stats.Lists++
		for ci := range list.Commands {
			cmd := &list.Commands[ci]
			if cmd.Kind == imwgpu.DrawCmdResetRenderState {
				st.reset()
				continue
			}
			if cmd.ElemCount == 0 {
				continue
			}
			if !commandInRange(cmd, list, vtxBase) {
				stats.InvalidCommands++
				slogger().Warn("draw command out of range, skipped",
					"list", li, "cmd", ci, "idx_offset", cmd.IdxOffset, "vtx_offset", cmd.VtxOffset,
					"count", cmd.ElemCount, "indices", len(list.Indices), "vertices", len(list.Vertices))
				continue
			}

			entry, err := tr.textures.Get(cmd.TextureID)
			if err != nil {
				stats.MissingTextures++
				slogger().Warn("draw command texture not found, skipped",
					"list", li, "cmd", ci, "texture", cmd.TextureID.String())
				continue
			}

			clip := imwgpu.ClipToFramebuffer(cmd.ClipRect, data, tr.origin)
			x, y, w, h := clip.Scissor()
			if clip.Empty() || w == 0 || h == 0 {
				stats.ClippedCommands++
				continue
			}

			if st.needSetup {
				tr.pipeline.Bind(pass)
				tr.geometry.Bind(pass)
				st.needSetup = false
			}
			if rect := [4]uint32{x, y, w, h}; !st.scissorKnown || rect != st.scissor {
				pass.SetScissorRect(x, y, w, h)
				st.scissor = rect
				st.scissorKnown = true
				stats.ScissorChanges++
			}
			if cmd.TextureID != st.texture {
				pass.SetBindGroup(1, entry.BindGroup, nil)
				if observer != nil {
					observer.BoundTexture(cmd.TextureID)
				}
				st.texture = cmd.TextureID
				stats.TextureBinds++
			}

			pass.DrawIndexed(cmd.ElemCount, 1,
				uint32(idxBase)+cmd.IdxOffset,        //nolint:gosec // bounded by commandInRange
				int32(vtxBase+uint64(cmd.VtxOffset)), //nolint:gosec // bounded by commandInRange
				0)
			stats.DrawCalls++
		}
		vtxBase += uint64(len(list.Vertices))
		idxBase += uint64(len(list.Indices))
	}
	return stats, nil
}

// commandInRange reports whether cmd stays inside its own list: the index
// range lies within the list's indices, every vertex it reads lies within
// the list's vertices, and its global base vertex fits a signed 32-bit
// value. cmd.ElemCount must be non-zero.
func commandInRange(cmd *imwgpu.DrawCmd, list *imwgpu.DrawList, vtxBase uint64) bool {
	end := uint64(cmd.IdxOffset) + uint64(cmd.ElemCount)
	if end > uint64(len(list.Indices)) {
		return false
	}
	nv := uint64(len(list.Vertices))
	if uint64(cmd.VtxOffset) >= nv {
		return false
	}
	for _, idx := range list.Indices[cmd.IdxOffset:end] {
		if uint64(cmd.VtxOffset)+uint64(idx) >= nv {
			return false
		}
	}
	return vtxBase+uint64(cmd.VtxOffset) <= math.MaxInt32
}
