package imwgpu

import "fmt"

// TextureID is an opaque handle for a texture registered with a renderer.
//
// The low 32 bits hold a registry slot index, the high 32 bits a generation
// counter. A slot that is freed and reused gets a new generation, so an old
// id never resolves to the resource that replaced it. The zero value is
// never issued.
type TextureID uint64

// MakeTextureID packs a slot index and generation.
func MakeTextureID(index, generation uint32) TextureID {
	return TextureID(uint64(generation)<<32 | uint64(index))
}

// Index returns the registry slot index.
func (id TextureID) Index() uint32 { return uint32(id) }

// Generation returns the generation the id was issued with.
func (id TextureID) Generation() uint32 { return uint32(id >> 32) }

// IsValid reports whether id could have been issued by a registry.
// It does not report whether the id is still registered.
func (id TextureID) IsValid() bool { return id.Generation() != 0 }

func (id TextureID) String() string {
	if !id.IsValid() {
		return "tex#invalid"
	}
	return fmt.Sprintf("tex#%dv%d", id.Index(), id.Generation())
}
