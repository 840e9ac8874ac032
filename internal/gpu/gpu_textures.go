package gpu

import (
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/imwgpu"
	"github.com/gogpu/wgpu/hal"
)

// TextureSpec describes a renderer-owned texture.
type TextureSpec struct {
	Label         string
	Width, Height uint32
	// Format defaults to RGBA8Unorm.
	Format gputypes.TextureFormat
	// Usage is added to TextureBinding|CopyDst.
	Usage gputypes.TextureUsage
	// Filter selects the sampler. Linear uses the registry default; any
	// other value creates a dedicated sampler owned with the texture.
	Filter gputypes.FilterMode
}

// CreateTexture allocates a texture, its view, and when needed a sampler,
// all owned by the returned resource.
func CreateTexture(device hal.Device, spec TextureSpec) (TextureResource, error) {
	if spec.Width == 0 || spec.Height == 0 {
		return TextureResource{}, fmt.Errorf("%w: texture %q size %dx%d", imwgpu.ErrInvalidConfig, spec.Label, spec.Width, spec.Height)
	}
	if spec.Format == gputypes.TextureFormatUndefined {
		spec.Format = gputypes.TextureFormatRGBA8Unorm
	}

	tex, err := device.CreateTexture(&hal.TextureDescriptor{
		Label:         spec.Label,
		Size:          hal.Extent3D{Width: spec.Width, Height: spec.Height, DepthOrArrayLayers: 1},
		MipLevelCount: 1,
		SampleCount:   1,
		Dimension:     gputypes.TextureDimension2D,
		Format:        spec.Format,
		Usage:         gputypes.TextureUsageTextureBinding | gputypes.TextureUsageCopyDst | spec.Usage,
	})
	if err != nil {
		return TextureResource{}, fmt.Errorf("%w: texture %q: %w", imwgpu.ErrAllocation, spec.Label, err)
	}

	view, err := device.CreateTextureView(tex, &hal.TextureViewDescriptor{
		Label: spec.Label + "_view",
	})
	if err != nil {
		device.DestroyTexture(tex)
		return TextureResource{}, fmt.Errorf("create texture view %q: %w", spec.Label, err)
	}

	res := TextureResource{
		Texture:   tex,
		View:      view,
		Ownership: Owned,
		Width:     spec.Width,
		Height:    spec.Height,
		Format:    spec.Format,
		Label:     spec.Label,
	}

	if spec.Filter == gputypes.FilterModeNearest {
		sampler, err := device.CreateSampler(&hal.SamplerDescriptor{
			Label:        spec.Label + "_sampler",
			AddressModeU: gputypes.AddressModeClampToEdge,
			AddressModeV: gputypes.AddressModeClampToEdge,
			AddressModeW: gputypes.AddressModeClampToEdge,
			MagFilter:    gputypes.FilterModeNearest,
			MinFilter:    gputypes.FilterModeNearest,
			MipmapFilter: gputypes.FilterModeNearest,
		})
		if err != nil {
			device.DestroyTextureView(view)
			device.DestroyTexture(tex)
			return TextureResource{}, fmt.Errorf("create sampler %q: %w", spec.Label, err)
		}
		res.Sampler = sampler
	}
	return res, nil
}

// texelSizes lists the formats WriteTexture can upload, by bytes per texel.
var texelSizes = map[gputypes.TextureFormat]uint32{
	gputypes.TextureFormatR8Unorm:        1,
	gputypes.TextureFormatRG8Unorm:       2,
	gputypes.TextureFormatR16Float:       2,
	gputypes.TextureFormatRGBA8Unorm:     4,
	gputypes.TextureFormatRGBA8UnormSrgb: 4,
	gputypes.TextureFormatBGRA8Unorm:     4,
	gputypes.TextureFormatBGRA8UnormSrgb: 4,
	gputypes.TextureFormatRGB10A2Unorm:   4,
	gputypes.TextureFormatR32Float:       4,
	gputypes.TextureFormatRG16Float:      4,
	gputypes.TextureFormatRGBA16Float:    8,
	gputypes.TextureFormatRGBA32Float:    16,
}

// TexelSize returns the bytes per texel of an uncompressed colour format.
// ok is false for formats WriteTexture cannot upload.
func TexelSize(format gputypes.TextureFormat) (size uint32, ok bool) {
	size, ok = texelSizes[format]
	return size, ok
}

// WriteTexture uploads tightly packed pixels in format to the top-left
// width x height region of tex.
func WriteTexture(queue hal.Queue, tex hal.Texture, format gputypes.TextureFormat, pixels []byte, width, height uint32) error {
	if tex == nil {
		return fmt.Errorf("write texture: nil texture")
	}
	bpp, ok := TexelSize(format)
	if !ok {
		return fmt.Errorf("%w: write texture: cannot upload %s pixels", imwgpu.ErrUnsupportedFormat, format)
	}
	if want := int(width) * int(height) * int(bpp); len(pixels) != want {
		return fmt.Errorf("write texture: %d bytes for %dx%d %s, want %d", len(pixels), width, height, format, want)
	}
	err := queue.WriteTexture(
		&hal.ImageCopyTexture{
			Texture:  tex,
			MipLevel: 0,
			Aspect:   gputypes.TextureAspectAll,
		},
		pixels,
		&hal.ImageDataLayout{
			Offset:       0,
			BytesPerRow:  width * bpp,
			RowsPerImage: height,
		},
		&hal.Extent3D{Width: width, Height: height, DepthOrArrayLayers: 1},
	)
	if err != nil {
		return fmt.Errorf("write texture: %w", err)
	}
	return nil
}
