package imwgpu

// ProjectionSize is the byte size of the projection uniform.
const ProjectionSize = 64

// Projection returns the column-major orthographic matrix mapping the
// displayed area to clip space: DisplayPos goes to (-1, 1) and
// DisplayPos+DisplaySize to (1, -1). Depth is passed through.
func Projection(d *DrawData) [16]float32 {
	l := d.DisplayPos[0]
	t := d.DisplayPos[1]
	w := d.DisplaySize[0]
	h := d.DisplaySize[1]
	if w == 0 || h == 0 {
		return [16]float32{0: 1, 5: 1, 10: 1, 15: 1}
	}
	return [16]float32{
		2 / w, 0, 0, 0,
		0, -2 / h, 0, 0,
		0, 0, 1, 0,
		-1 - 2*l/w, 1 + 2*t/h, 0, 1,
	}
}

// Transform applies the column-major matrix m to (x, y, 0, 1) and returns
// the resulting clip-space x and y.
func Transform(m [16]float32, x, y float32) (float32, float32) {
	return m[0]*x + m[4]*y + m[12], m[1]*x + m[5]*y + m[13]
}
