package main

import (
	"bytes"
	"fmt"
	"os"

	"github.com/gogpu/imwgpu"
	"github.com/pelletier/go-toml/v2"
)

// frameFile is the TOML description of one GUI frame.
//
//	display_size = [800, 600]
//	framebuffer_scale = [2, 2]
//
//	[[textures]]
//	name = "image"
//	width = 32
//	height = 32
//
//	[[lists]]
//	[[lists.items]]
//	rect = [10, 10, 200, 100]
//	clip = [0, 0, 400, 300]
//	texture = "font"
//	color = [255, 255, 255, 255]
//
//	[[lists.items]]
//	reset = true
//
// The texture "font" is the font atlas. Unknown texture names resolve to
// an id that was never issued.
type frameFile struct {
	DisplayPos       [2]float32    `toml:"display_pos"`
	DisplaySize      [2]float32    `toml:"display_size"`
	FramebufferScale [2]float32    `toml:"framebuffer_scale"`
	Font             *fontSpec     `toml:"font"`
	Textures         []textureSpec `toml:"textures"`
	Lists            []listSpec    `toml:"lists"`
}

type fontSpec struct {
	Width  int `toml:"width"`
	Height int `toml:"height"`
}

type textureSpec struct {
	Name    string `toml:"name"`
	Width   uint32 `toml:"width"`
	Height  uint32 `toml:"height"`
	Nearest bool   `toml:"nearest"`
}

type listSpec struct {
	Items []itemSpec `toml:"items"`
}

type itemSpec struct {
	Reset   bool        `toml:"reset"`
	Rect    [4]float32  `toml:"rect"`
	Clip    *[4]float32 `toml:"clip"`
	Texture string      `toml:"texture"`
	Color   []int       `toml:"color"`
}

const fontTextureName = "font"

// unknownTexture is never issued by a registry: slot indices are dense
// and start at zero.
var unknownTexture = imwgpu.MakeTextureID(1<<31, 1)

func loadFrame(path string) (*frameFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read frame: %w", err)
	}
	return parseFrame(data)
}

func parseFrame(data []byte) (*frameFile, error) {
	var f frameFile
	dec := toml.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("parse frame: %w", err)
	}
	if f.Font == nil {
		f.Font = &fontSpec{Width: 64, Height: 64}
	}
	for i, tex := range f.Textures {
		if tex.Name == "" || tex.Name == fontTextureName {
			return nil, fmt.Errorf("parse frame: texture %d: invalid name %q", i, tex.Name)
		}
	}
	for li, l := range f.Lists {
		for ii, it := range l.Items {
			if it.Color == nil {
				continue
			}
			if len(it.Color) != 4 {
				return nil, fmt.Errorf("parse frame: list %d item %d: color needs 4 components", li, ii)
			}
			for _, c := range it.Color {
				if c < 0 || c > 0xFF {
					return nil, fmt.Errorf("parse frame: list %d item %d: color component %d out of range", li, ii, c)
				}
			}
		}
	}
	return &f, nil
}

// fontAtlas returns an opaque alpha atlas of the configured size.
func (f *frameFile) fontAtlas() *imwgpu.FontAtlas {
	pixels := bytes.Repeat([]byte{0xFF}, f.Font.Width*f.Font.Height)
	return &imwgpu.FontAtlas{Width: f.Font.Width, Height: f.Font.Height, Pixels: pixels, Format: imwgpu.AtlasAlpha8}
}

// drawData builds the frame's draw lists. Every item becomes one quad
// and one draw command; ids maps texture names to registered ids.
func (f *frameFile) drawData(ids map[string]imwgpu.TextureID) *imwgpu.DrawData {
	d := &imwgpu.DrawData{
		DisplayPos:       f.DisplayPos,
		DisplaySize:      f.DisplaySize,
		FramebufferScale: f.FramebufferScale,
	}
	full := [4]float32{
		f.DisplayPos[0], f.DisplayPos[1],
		f.DisplayPos[0] + f.DisplaySize[0], f.DisplayPos[1] + f.DisplaySize[1],
	}
	for _, ls := range f.Lists {
		l := &imwgpu.DrawList{}
		for _, it := range ls.Items {
			if it.Reset {
				l.Commands = append(l.Commands, imwgpu.DrawCmd{Kind: imwgpu.DrawCmdResetRenderState})
				continue
			}
			tex, ok := ids[it.Texture]
			if !ok {
				tex = unknownTexture
			}
			clip := full
			if it.Clip != nil {
				clip = *it.Clip
			}
			addQuad(l, it.Rect, clip, tex, it.color())
		}
		d.Lists = append(d.Lists, l)
	}
	return d
}

func (it itemSpec) color() uint32 {
	if it.Color == nil {
		return imwgpu.PackColor(0xFF, 0xFF, 0xFF, 0xFF)
	}
	c := it.Color
	return imwgpu.PackColor(uint8(c[0]), uint8(c[1]), uint8(c[2]), uint8(c[3])) //nolint:gosec // range checked in parseFrame
}

// addQuad appends a textured rectangle and the command drawing it.
func addQuad(l *imwgpu.DrawList, r, clip [4]float32, tex imwgpu.TextureID, col uint32) {
	base := imwgpu.DrawIdx(len(l.Vertices)) //nolint:gosec // frame files are small
	idx := uint32(len(l.Indices))           //nolint:gosec // frame files are small
	l.Vertices = append(l.Vertices,
		imwgpu.Vertex{Pos: [2]float32{r[0], r[1]}, UV: [2]float32{0, 0}, Col: col},
		imwgpu.Vertex{Pos: [2]float32{r[2], r[1]}, UV: [2]float32{1, 0}, Col: col},
		imwgpu.Vertex{Pos: [2]float32{r[2], r[3]}, UV: [2]float32{1, 1}, Col: col},
		imwgpu.Vertex{Pos: [2]float32{r[0], r[3]}, UV: [2]float32{0, 1}, Col: col},
	)
	l.Indices = append(l.Indices, base, base+1, base+2, base, base+2, base+3)
	l.Commands = append(l.Commands, imwgpu.DrawCmd{
		ClipRect:  clip,
		TextureID: tex,
		ElemCount: 6,
		IdxOffset: idx,
	})
}
