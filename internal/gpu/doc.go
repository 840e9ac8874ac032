// Package gpu holds the HAL-facing parts of the imwgpu renderer.
//
// Components:
//
//   - GeometryBuffers: vertex, index and projection uniform buffers that
//     grow on demand and receive one upload per frame
//   - TextureRegistry: generation-tagged map from TextureID to a texture
//     bind group, tracking whether the renderer owns the texture
//   - Pipeline: WGSL shader, bind group layouts and the render pipeline
//   - Translator: walks DrawData and records scissor, bind and draw
//     commands into a caller-owned render pass
//   - TracePass: a RenderPassEncoder that records what it is given
//
// Bind group layout:
//
//	group 0, binding 0: projection matrix (uniform, vertex)
//	group 1, binding 0: texture_2d<f32> (fragment)
//	group 1, binding 1: filtering sampler (fragment)
//
// None of the types here are safe for concurrent use.
package gpu
