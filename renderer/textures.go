package renderer

import (
	"fmt"
	"image"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/imwgpu"
	"github.com/gogpu/imwgpu/internal/gpu"
	"github.com/gogpu/wgpu/hal"
	"golang.org/x/image/draw"
)

// TextureStats counts registered textures by ownership.
type TextureStats = gpu.RegistryStats

// ExternalTexture is a host-owned texture to draw from. The renderer never
// destroys any of its objects.
type ExternalTexture struct {
	// Texture is optional; WriteTexture needs it.
	Texture hal.Texture
	View    hal.TextureView
	// Sampler is optional. Nil uses the linear clamp-to-edge default.
	Sampler       hal.Sampler
	Width, Height uint32
	Format        gputypes.TextureFormat
	Label         string
}

// TextureConfig describes a renderer-owned texture.
type TextureConfig struct {
	Label         string
	Width, Height uint32
	// Format defaults to RGBA8Unorm. WriteTexture expects pixels in this
	// format.
	Format gputypes.TextureFormat
	// Usage is added to TextureBinding|CopyDst, e.g. RenderAttachment for
	// render-to-texture.
	Usage gputypes.TextureUsage
	// Filter selects nearest or linear sampling. Zero is linear.
	Filter gputypes.FilterMode
}

// UploadFontAtlas uploads the GUI library's glyph atlas as an owned
// texture and returns its id, which the GUI library stores and references
// from draw commands. Calling it again after the atlas was rebuilt
// replaces the previous atlas; its id becomes invalid.
func (r *Renderer) UploadFontAtlas(atlas *imwgpu.FontAtlas) (imwgpu.TextureID, error) {
	if err := atlas.Validate(); err != nil {
		return 0, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.destroyed {
		return 0, imwgpu.ErrRendererDestroyed
	}

	w, h := uint32(atlas.Width), uint32(atlas.Height) //nolint:gosec // validated positive
	id, err := r.createTexture(TextureConfig{
		Label:  r.cfg.Label + "_font_atlas",
		Width:  w,
		Height: h,
		Format: gputypes.TextureFormatRGBA8Unorm,
	}, atlas.RGBA())
	if err != nil {
		return 0, fmt.Errorf("upload font atlas: %w", err)
	}

	if r.font.IsValid() {
		if err := r.textures.Remove(r.font); err != nil {
			imwgpu.Logger().Warn("previous font atlas already removed", "id", r.font.String(), "err", err)
		}
	}
	r.font = id
	imwgpu.Logger().Debug("font atlas uploaded", "id", id.String(), "size", fmt.Sprintf("%dx%d", w, h))
	return id, nil
}

// FontTextureID returns the id of the current font atlas, or zero before
// the first UploadFontAtlas.
func (r *Renderer) FontTextureID() imwgpu.TextureID {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.font
}

// RegisterTexture registers a host-owned texture for drawing. The host
// must call RemoveTexture before destroying it.
func (r *Renderer) RegisterTexture(tex ExternalTexture) (imwgpu.TextureID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.destroyed {
		return 0, imwgpu.ErrRendererDestroyed
	}
	return r.textures.Insert(tex.resource())
}

func (tex ExternalTexture) resource() gpu.TextureResource {
	return gpu.TextureResource{
		Texture:   tex.Texture,
		View:      tex.View,
		Sampler:   tex.Sampler,
		Ownership: gpu.Borrowed,
		Width:     tex.Width,
		Height:    tex.Height,
		Format:    tex.Format,
		Label:     tex.Label,
	}
}

// CreateTexture allocates a renderer-owned texture. Its contents are
// undefined until WriteTexture.
func (r *Renderer) CreateTexture(cfg TextureConfig) (imwgpu.TextureID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.destroyed {
		return 0, imwgpu.ErrRendererDestroyed
	}
	return r.createTexture(cfg, nil)
}

// createTexture allocates, optionally fills, and registers an owned
// texture. Nothing is leaked on failure.
func (r *Renderer) createTexture(cfg TextureConfig, pixels []byte) (imwgpu.TextureID, error) {
	res, err := gpu.CreateTexture(r.device, gpu.TextureSpec{
		Label:  cfg.Label,
		Width:  cfg.Width,
		Height: cfg.Height,
		Format: cfg.Format,
		Usage:  cfg.Usage,
		Filter: cfg.Filter,
	})
	if err != nil {
		return 0, err
	}
	if pixels != nil {
		if err := gpu.WriteTexture(r.queue, res.Texture, res.Format, pixels, cfg.Width, cfg.Height); err != nil {
			destroyResource(r.device, res)
			return 0, err
		}
	}
	id, err := r.textures.Insert(res)
	if err != nil {
		destroyResource(r.device, res)
		return 0, err
	}
	return id, nil
}

func destroyResource(device hal.Device, res gpu.TextureResource) {
	if res.Sampler != nil {
		device.DestroySampler(res.Sampler)
	}
	device.DestroyTextureView(res.View)
	device.DestroyTexture(res.Texture)
}

// WriteTexture uploads tightly packed pixels to the top-left width x height
// region of a texture. pixels must be in the texture's format, e.g. 4 bytes
// per pixel for RGBA8Unorm and 8 for RGBA16Float. Host textures registered
// without a Texture or a known Format cannot be written.
func (r *Renderer) WriteTexture(id imwgpu.TextureID, pixels []byte, width, height uint32) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.destroyed {
		return imwgpu.ErrRendererDestroyed
	}
	entry, err := r.textures.Get(id)
	if err != nil {
		return err
	}
	if entry.Texture == nil {
		return fmt.Errorf("write texture %s: registered without a texture", id)
	}
	if width > entry.Width || height > entry.Height {
		return fmt.Errorf("write texture %s: %dx%d exceeds %dx%d", id, width, height, entry.Width, entry.Height)
	}
	return gpu.WriteTexture(r.queue, entry.Texture, entry.Format, pixels, width, height)
}

// ReplaceTexture points id at a different host-owned texture, for example
// after the host resized a render target. If the previous texture was
// renderer-owned it is destroyed.
func (r *Renderer) ReplaceTexture(id imwgpu.TextureID, tex ExternalTexture) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.destroyed {
		return imwgpu.ErrRendererDestroyed
	}
	return r.textures.Replace(id, tex.resource())
}

// RemoveTexture unregisters id. Owned textures are destroyed; borrowed
// ones may be destroyed by the host once this returns. Removing the font
// atlas leaves FontTextureID at zero.
func (r *Renderer) RemoveTexture(id imwgpu.TextureID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.destroyed {
		return imwgpu.ErrRendererDestroyed
	}
	if err := r.textures.Remove(id); err != nil {
		return err
	}
	if id == r.font {
		r.font = 0
	}
	return nil
}

// TextureStats returns the number of registered textures by ownership.
func (r *Renderer) TextureStats() TextureStats {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.destroyed {
		return TextureStats{}
	}
	return r.textures.Stats()
}

// RegisterImage uploads img as an owned texture. When maxDim is positive
// and img is larger in either dimension it is scaled down, keeping its
// aspect ratio, so that neither side exceeds maxDim.
func (r *Renderer) RegisterImage(img image.Image, label string, maxDim int) (imwgpu.TextureID, error) {
	if img == nil || img.Bounds().Empty() {
		return 0, fmt.Errorf("%w: empty image %q", imwgpu.ErrInvalidConfig, label)
	}
	rgba := toNRGBA(img, maxDim)
	size := rgba.Bounds().Size()

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.destroyed {
		return 0, imwgpu.ErrRendererDestroyed
	}

	format := gputypes.TextureFormatRGBA8Unorm
	if r.cfg.ColorMode.Resolve(r.cfg.OutputFormat) != imwgpu.ColorRaw {
		// Image pixels are sRGB encoded; decode them when sampling so
		// they blend with linear vertex colours.
		format = gputypes.TextureFormatRGBA8UnormSrgb
	}
	return r.createTexture(TextureConfig{
		Label:  label,
		Width:  uint32(size.X), //nolint:gosec // image bounds are positive
		Height: uint32(size.Y), //nolint:gosec // image bounds are positive
		Format: format,
	}, rgba.Pix)
}

// toNRGBA converts img to tightly packed non-premultiplied RGBA at the
// origin, scaling it to fit maxDim when needed.
func toNRGBA(img image.Image, maxDim int) *image.NRGBA {
	b := img.Bounds()
	w, h := fitWithin(b.Dx(), b.Dy(), maxDim)
	dst := image.NewNRGBA(image.Rect(0, 0, w, h))
	if w == b.Dx() && h == b.Dy() {
		draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Src)
		return dst
	}
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, b, draw.Src, nil)
	return dst
}

// fitWithin scales w x h down to fit a maxDim square, keeping the aspect
// ratio. Sizes never drop below 1.
func fitWithin(w, h, maxDim int) (int, int) {
	if maxDim <= 0 || (w <= maxDim && h <= maxDim) {
		return w, h
	}
	if w >= h {
		return maxDim, max(1, h*maxDim/w)
	}
	return max(1, w*maxDim/h), maxDim
}
