package gpu

import (
	"fmt"
	"strings"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/imwgpu"
	"github.com/gogpu/wgpu/hal"
)

// OpKind identifies a recorded render pass call.
type OpKind uint8

const (
	OpSetPipeline OpKind = iota
	OpSetBindGroup
	OpSetVertexBuffer
	OpSetIndexBuffer
	OpSetViewport
	OpSetScissor
	OpSetBlendConstant
	OpSetStencilReference
	OpDraw
	OpDrawIndexed
	OpDrawIndirect
	OpDrawIndexedIndirect
	OpExecuteBundle
	OpEnd
)

var opNames = [...]string{
	OpSetPipeline:         "pipeline",
	OpSetBindGroup:        "bind",
	OpSetVertexBuffer:     "vertex_buffer",
	OpSetIndexBuffer:      "index_buffer",
	OpSetViewport:         "viewport",
	OpSetScissor:          "scissor",
	OpSetBlendConstant:    "blend_constant",
	OpSetStencilReference: "stencil_ref",
	OpDraw:                "draw",
	OpDrawIndexed:         "draw_indexed",
	OpDrawIndirect:        "draw_indirect",
	OpDrawIndexedIndirect: "draw_indexed_indirect",
	OpExecuteBundle:       "execute_bundle",
	OpEnd:                 "end",
}

func (k OpKind) String() string {
	if int(k) < len(opNames) {
		return opNames[k]
	}
	return fmt.Sprintf("OpKind(%d)", k)
}

// TraceOp is one recorded call. Only the fields relevant to Kind are set.
type TraceOp struct {
	Kind OpKind

	// Index is the bind group index or vertex buffer slot.
	Index uint32
	// Texture is set on group 1 binds made by a Translator.
	Texture imwgpu.TextureID

	// Rect is x, y, w, h of a scissor.
	Rect [4]uint32

	IndexFormat gputypes.IndexFormat

	// Count is the index or vertex count, First the first index or vertex.
	Count      uint32
	First      uint32
	BaseVertex int32
}

func (op TraceOp) String() string {
	switch op.Kind {
	case OpSetBindGroup:
		if op.Texture.IsValid() {
			return fmt.Sprintf("bind %d %s", op.Index, op.Texture)
		}
		return fmt.Sprintf("bind %d", op.Index)
	case OpSetVertexBuffer:
		return fmt.Sprintf("vertex_buffer %d", op.Index)
	case OpSetIndexBuffer:
		return "index_buffer " + op.IndexFormat.String()
	case OpSetScissor:
		return fmt.Sprintf("scissor %d %d %d %d", op.Rect[0], op.Rect[1], op.Rect[2], op.Rect[3])
	case OpDrawIndexed:
		return fmt.Sprintf("draw_indexed count=%d first=%d base=%d", op.Count, op.First, op.BaseVertex)
	case OpDraw:
		return fmt.Sprintf("draw count=%d first=%d", op.Count, op.First)
	default:
		return op.Kind.String()
	}
}

// TracePass is a hal.RenderPassEncoder that records every call. When Inner
// is set, calls are forwarded to it after recording.
type TracePass struct {
	Inner hal.RenderPassEncoder
	Ops   []TraceOp
}

// Reset clears recorded ops.
func (t *TracePass) Reset() { t.Ops = t.Ops[:0] }

// Count returns how many ops of kind k were recorded.
func (t *TracePass) Count(k OpKind) int {
	n := 0
	for _, op := range t.Ops {
		if op.Kind == k {
			n++
		}
	}
	return n
}

// Filter returns the ops of the given kinds in recording order.
func (t *TracePass) Filter(kinds ...OpKind) []TraceOp {
	var out []TraceOp
	for _, op := range t.Ops {
		for _, k := range kinds {
			if op.Kind == k {
				out = append(out, op)
				break
			}
		}
	}
	return out
}

// String renders one op per line.
func (t *TracePass) String() string {
	var b strings.Builder
	for _, op := range t.Ops {
		b.WriteString(op.String())
		b.WriteByte('\n')
	}
	return b.String()
}

// BoundTexture tags the last bind with the texture id and forwards it to
// Inner when Inner is a TextureBindObserver.
func (t *TracePass) BoundTexture(id imwgpu.TextureID) {
	for i := len(t.Ops) - 1; i >= 0; i-- {
		if t.Ops[i].Kind == OpSetBindGroup {
			t.Ops[i].Texture = id
			break
		}
	}
	if o, ok := t.Inner.(TextureBindObserver); ok {
		o.BoundTexture(id)
	}
}

func (t *TracePass) End() {
	t.Ops = append(t.Ops, TraceOp{Kind: OpEnd})
	if t.Inner != nil {
		t.Inner.End()
	}
}

func (t *TracePass) SetPipeline(pipeline hal.RenderPipeline) {
	t.Ops = append(t.Ops, TraceOp{Kind: OpSetPipeline})
	if t.Inner != nil {
		t.Inner.SetPipeline(pipeline)
	}
}

func (t *TracePass) SetBindGroup(index uint32, group hal.BindGroup, offsets []uint32) {
	t.Ops = append(t.Ops, TraceOp{Kind: OpSetBindGroup, Index: index})
	if t.Inner != nil {
		t.Inner.SetBindGroup(index, group, offsets)
	}
}

func (t *TracePass) SetVertexBuffer(slot uint32, buffer hal.Buffer, offset uint64) {
	t.Ops = append(t.Ops, TraceOp{Kind: OpSetVertexBuffer, Index: slot})
	if t.Inner != nil {
		t.Inner.SetVertexBuffer(slot, buffer, offset)
	}
}

func (t *TracePass) SetIndexBuffer(buffer hal.Buffer, format gputypes.IndexFormat, offset uint64) {
	t.Ops = append(t.Ops, TraceOp{Kind: OpSetIndexBuffer, IndexFormat: format})
	if t.Inner != nil {
		t.Inner.SetIndexBuffer(buffer, format, offset)
	}
}

func (t *TracePass) SetViewport(x, y, width, height, minDepth, maxDepth float32) {
	t.Ops = append(t.Ops, TraceOp{Kind: OpSetViewport})
	if t.Inner != nil {
		t.Inner.SetViewport(x, y, width, height, minDepth, maxDepth)
	}
}

func (t *TracePass) SetScissorRect(x, y, width, height uint32) {
	t.Ops = append(t.Ops, TraceOp{Kind: OpSetScissor, Rect: [4]uint32{x, y, width, height}})
	if t.Inner != nil {
		t.Inner.SetScissorRect(x, y, width, height)
	}
}

func (t *TracePass) SetBlendConstant(color *gputypes.Color) {
	t.Ops = append(t.Ops, TraceOp{Kind: OpSetBlendConstant})
	if t.Inner != nil {
		t.Inner.SetBlendConstant(color)
	}
}

func (t *TracePass) SetStencilReference(reference uint32) {
	t.Ops = append(t.Ops, TraceOp{Kind: OpSetStencilReference, Count: reference})
	if t.Inner != nil {
		t.Inner.SetStencilReference(reference)
	}
}

func (t *TracePass) Draw(vertexCount, instanceCount, firstVertex, firstInstance uint32) {
	t.Ops = append(t.Ops, TraceOp{Kind: OpDraw, Count: vertexCount, First: firstVertex})
	if t.Inner != nil {
		t.Inner.Draw(vertexCount, instanceCount, firstVertex, firstInstance)
	}
}

func (t *TracePass) DrawIndexed(indexCount, instanceCount, firstIndex uint32, baseVertex int32, firstInstance uint32) {
	t.Ops = append(t.Ops, TraceOp{Kind: OpDrawIndexed, Count: indexCount, First: firstIndex, BaseVertex: baseVertex})
	if t.Inner != nil {
		t.Inner.DrawIndexed(indexCount, instanceCount, firstIndex, baseVertex, firstInstance)
	}
}

func (t *TracePass) DrawIndirect(buffer hal.Buffer, offset uint64) {
	t.Ops = append(t.Ops, TraceOp{Kind: OpDrawIndirect})
	if t.Inner != nil {
		t.Inner.DrawIndirect(buffer, offset)
	}
}

func (t *TracePass) DrawIndexedIndirect(buffer hal.Buffer, offset uint64) {
	t.Ops = append(t.Ops, TraceOp{Kind: OpDrawIndexedIndirect})
	if t.Inner != nil {
		t.Inner.DrawIndexedIndirect(buffer, offset)
	}
}

func (t *TracePass) ExecuteBundle(bundle hal.RenderBundle) {
	t.Ops = append(t.Ops, TraceOp{Kind: OpExecuteBundle})
	if t.Inner != nil {
		t.Inner.ExecuteBundle(bundle)
	}
}

var _ hal.RenderPassEncoder = (*TracePass)(nil)
