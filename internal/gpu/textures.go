package gpu

import (
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/imwgpu"
	"github.com/gogpu/wgpu/hal"
)

// Ownership says who releases a registered texture.
type Ownership uint8

const (
	// Owned textures are destroyed by the registry on Remove, Replace and
	// Destroy.
	Owned Ownership = iota
	// Borrowed textures belong to the host. The registry only releases the
	// bind group it created for them.
	Borrowed
)

func (o Ownership) String() string {
	if o == Borrowed {
		return "borrowed"
	}
	return "owned"
}

// TextureResource is what the registry binds for a TextureID.
type TextureResource struct {
	// Texture may be nil when the host only has a view.
	Texture hal.Texture
	View    hal.TextureView
	// Sampler may be nil to use the registry's default linear clamp sampler.
	Sampler   hal.Sampler
	Ownership Ownership

	Width, Height uint32
	Format        gputypes.TextureFormat
	Label         string
}

// TextureEntry is a resolved registry entry.
type TextureEntry struct {
	TextureResource
	BindGroup hal.BindGroup
}

type textureSlot struct {
	gen   uint32
	live  bool
	res   TextureResource
	group hal.BindGroup
}

// RegistryStats counts live registry entries.
type RegistryStats struct {
	Owned    int
	Borrowed int
	// OwnedBytes estimates memory held by owned textures. Formats without
	// a known texel size count 4 bytes per texel.
	OwnedBytes uint64
}

func (s RegistryStats) String() string {
	return fmt.Sprintf("Textures[%d owned (%d KB), %d borrowed]", s.Owned, s.OwnedBytes/1024, s.Borrowed)
}

// TextureRegistry maps TextureIDs to texture bind groups (group 1).
//
// Slots are reused after Remove with their generation incremented, so a
// stale id fails lookup with ErrTextureNotFound instead of resolving to
// the slot's new occupant.
type TextureRegistry struct {
	device  hal.Device
	layout  hal.BindGroupLayout
	label   string
	sampler hal.Sampler

	slots []textureSlot
	free  []uint32
	live  int
}

// NewTextureRegistry creates a registry whose bind groups use layout. It
// creates the default sampler.
func NewTextureRegistry(device hal.Device, layout hal.BindGroupLayout, label string) (*TextureRegistry, error) {
	if device == nil {
		return nil, imwgpu.ErrNilDevice
	}
	sampler, err := device.CreateSampler(&hal.SamplerDescriptor{
		Label:        label + "_sampler",
		AddressModeU: gputypes.AddressModeClampToEdge,
		AddressModeV: gputypes.AddressModeClampToEdge,
		AddressModeW: gputypes.AddressModeClampToEdge,
		MagFilter:    gputypes.FilterModeLinear,
		MinFilter:    gputypes.FilterModeLinear,
		MipmapFilter: gputypes.FilterModeLinear,
	})
	if err != nil {
		return nil, fmt.Errorf("create default sampler: %w", err)
	}
	return &TextureRegistry{device: device, layout: layout, label: label, sampler: sampler}, nil
}

// Insert creates a bind group for res and returns a fresh id.
func (r *TextureRegistry) Insert(res TextureResource) (imwgpu.TextureID, error) {
	group, err := r.createBindGroup(res)
	if err != nil {
		return 0, err
	}

	var index uint32
	if n := len(r.free); n > 0 {
		index = r.free[n-1]
		r.free = r.free[:n-1]
	} else {
		index = uint32(len(r.slots)) //nolint:gosec // slot count fits uint32
		r.slots = append(r.slots, textureSlot{})
	}
	slot := &r.slots[index]
	slot.gen++
	if slot.gen == 0 {
		slot.gen = 1
	}
	slot.live = true
	slot.res = res
	slot.group = group
	r.live++

	id := imwgpu.MakeTextureID(index, slot.gen)
	slogger().Debug("texture registered", "id", id.String(), "label", res.Label,
		"size", fmt.Sprintf("%dx%d", res.Width, res.Height), "ownership", res.Ownership.String())
	return id, nil
}

// Get resolves id.
func (r *TextureRegistry) Get(id imwgpu.TextureID) (TextureEntry, error) {
	slot, err := r.lookup(id)
	if err != nil {
		return TextureEntry{}, err
	}
	return TextureEntry{TextureResource: slot.res, BindGroup: slot.group}, nil
}

// Remove releases the entry for id and invalidates the id.
func (r *TextureRegistry) Remove(id imwgpu.TextureID) error {
	slot, err := r.lookup(id)
	if err != nil {
		return err
	}
	r.release(slot.res, slot.group, TextureResource{})
	slot.live = false
	slot.res = TextureResource{}
	slot.group = nil
	r.free = append(r.free, id.Index())
	r.live--
	slogger().Debug("texture removed", "id", id.String())
	return nil
}

// Replace binds res under an existing id. The previous resource is released
// according to its own ownership, except for objects res still uses. id
// stays valid.
func (r *TextureRegistry) Replace(id imwgpu.TextureID, res TextureResource) error {
	slot, err := r.lookup(id)
	if err != nil {
		return err
	}
	group, err := r.createBindGroup(res)
	if err != nil {
		return err
	}
	r.release(slot.res, slot.group, res)
	slot.res = res
	slot.group = group
	slogger().Debug("texture replaced", "id", id.String(), "label", res.Label,
		"size", fmt.Sprintf("%dx%d", res.Width, res.Height))
	return nil
}

// Len returns the number of live entries.
func (r *TextureRegistry) Len() int { return r.live }

// Stats returns counts of live entries by ownership.
func (r *TextureRegistry) Stats() RegistryStats {
	var s RegistryStats
	for i := range r.slots {
		slot := &r.slots[i]
		if !slot.live {
			continue
		}
		if slot.res.Ownership == Borrowed {
			s.Borrowed++
			continue
		}
		s.Owned++
		bpp, ok := TexelSize(slot.res.Format)
		if !ok {
			bpp = 4
		}
		s.OwnedBytes += uint64(slot.res.Width) * uint64(slot.res.Height) * uint64(bpp)
	}
	return s
}

// Destroy releases every entry and the default sampler. Owned textures are
// destroyed; borrowed ones are left to the host.
func (r *TextureRegistry) Destroy() {
	if r.device == nil {
		return
	}
	for i := range r.slots {
		slot := &r.slots[i]
		if slot.live {
			r.release(slot.res, slot.group, TextureResource{})
		}
	}
	r.slots = nil
	r.free = nil
	r.live = 0
	if r.sampler != nil {
		r.device.DestroySampler(r.sampler)
		r.sampler = nil
	}
}

func (r *TextureRegistry) lookup(id imwgpu.TextureID) (*textureSlot, error) {
	idx := id.Index()
	if !id.IsValid() || int(idx) >= len(r.slots) {
		return nil, fmt.Errorf("%w: %s", imwgpu.ErrTextureNotFound, id)
	}
	slot := &r.slots[idx]
	if !slot.live || slot.gen != id.Generation() {
		return nil, fmt.Errorf("%w: %s", imwgpu.ErrTextureNotFound, id)
	}
	return slot, nil
}

func (r *TextureRegistry) createBindGroup(res TextureResource) (hal.BindGroup, error) {
	if res.View == nil {
		return nil, fmt.Errorf("register texture %q: nil view", res.Label)
	}
	sampler := res.Sampler
	if sampler == nil {
		sampler = r.sampler
	}
	group, err := r.device.CreateBindGroup(&hal.BindGroupDescriptor{
		Label:  r.label + "_texture_bind",
		Layout: r.layout,
		Entries: []gputypes.BindGroupEntry{
			{Binding: 0, Resource: gputypes.TextureViewBinding{TextureView: res.View.NativeHandle()}},
			{Binding: 1, Resource: gputypes.SamplerBinding{Sampler: sampler.NativeHandle()}},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("create texture bind group %q: %w", res.Label, err)
	}
	return group, nil
}

// release drops the bind group, and for owned resources the sampler, view
// and texture. Objects shared with keep are left alone.
func (r *TextureRegistry) release(res TextureResource, group hal.BindGroup, keep TextureResource) {
	if group != nil {
		r.device.DestroyBindGroup(group)
	}
	if res.Ownership == Borrowed {
		return
	}
	if res.Sampler != nil && res.Sampler != r.sampler && res.Sampler != keep.Sampler {
		r.device.DestroySampler(res.Sampler)
	}
	if res.View != nil && res.View != keep.View {
		r.device.DestroyTextureView(res.View)
	}
	if res.Texture != nil && res.Texture != keep.Texture {
		r.device.DestroyTexture(res.Texture)
	}
}
