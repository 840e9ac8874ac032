package imwgpu

import "math"

// Rect is an axis-aligned rectangle in framebuffer pixels.
type Rect struct {
	MinX, MinY, MaxX, MaxY float32
}

// FullRect returns the rectangle covering a w x h framebuffer.
func FullRect(w, h uint32) Rect {
	return Rect{MaxX: float32(w), MaxY: float32(h)}
}

// Clamp restricts r to [0, w] x [0, h]. Clamping an already clamped
// rectangle returns it unchanged.
func (r Rect) Clamp(w, h float32) Rect {
	return Rect{
		MinX: clampf(r.MinX, 0, w),
		MinY: clampf(r.MinY, 0, h),
		MaxX: clampf(r.MaxX, 0, w),
		MaxY: clampf(r.MaxY, 0, h),
	}
}

// Empty reports whether r has zero or negative width or height.
func (r Rect) Empty() bool {
	return !(r.MaxX > r.MinX) || !(r.MaxY > r.MinY)
}

// Scissor converts r to integer scissor coordinates, rounding each edge to
// the nearest pixel. A rectangle that rounds to nothing yields w == 0 or
// h == 0. r must already be clamped.
func (r Rect) Scissor() (x, y, w, h uint32) {
	x0, y0 := roundPixel(r.MinX), roundPixel(r.MinY)
	x1, y1 := roundPixel(r.MaxX), roundPixel(r.MaxY)
	if x1 > x0 {
		w = x1 - x0
	}
	if y1 > y0 {
		h = y1 - y0
	}
	return x0, y0, w, h
}

// ScissorOrigin is the corner the GPU's scissor coordinates start from.
type ScissorOrigin uint8

const (
	// ScissorTopLeft matches the GUI convention; no flip is applied.
	ScissorTopLeft ScissorOrigin = iota
	// ScissorBottomLeft flips clip rectangles vertically.
	ScissorBottomLeft
)

// ClipToFramebuffer maps a draw command clip rectangle (x1, y1, x2, y2 in
// display coordinates) to a clamped framebuffer rectangle. It subtracts
// DisplayPos, applies FramebufferScale, flips Y for ScissorBottomLeft,
// and clamps to the framebuffer.
func ClipToFramebuffer(clip [4]float32, d *DrawData, origin ScissorOrigin) Rect {
	sx, sy := d.Scale()
	fbw, fbh := d.FramebufferSize()
	r := Rect{
		MinX: (clip[0] - d.DisplayPos[0]) * sx,
		MinY: (clip[1] - d.DisplayPos[1]) * sy,
		MaxX: (clip[2] - d.DisplayPos[0]) * sx,
		MaxY: (clip[3] - d.DisplayPos[1]) * sy,
	}
	if origin == ScissorBottomLeft {
		h := float32(fbh)
		r.MinY, r.MaxY = h-r.MaxY, h-r.MinY
	}
	return r.Clamp(float32(fbw), float32(fbh))
}

func clampf(v, lo, hi float32) float32 {
	if !(v > lo) {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func roundPixel(v float32) uint32 {
	if !(v > 0) {
		return 0
	}
	return uint32(math.Round(float64(v)))
}
