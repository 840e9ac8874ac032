// Package imwgpu renders the per-frame output of an immediate-mode GUI
// library through the wgpu HAL.
//
// # Overview
//
// A GUI library such as Dear ImGui produces, every frame, an ordered set of
// draw lists. Each list carries vertices, indices, and draw commands that
// reference a texture and a clip rectangle. imwgpu turns that into GPU work:
// buffer uploads, a render pipeline, bind groups, and scissor/draw commands
// recorded into a render pass that the host application began.
//
// This package holds the data model shared by the host and the renderer
// ([DrawData], [DrawList], [DrawCmd], [Vertex], [TextureID]), the renderer
// [Config], and the screen-space math ([Projection], [ClipToFramebuffer]).
// The renderer itself lives in the renderer sub-package.
//
// # Quick Start
//
//	r, err := renderer.New(device, queue, caps, imwgpu.DefaultConfig())
//	if err != nil {
//	    return err
//	}
//	defer r.Destroy()
//
//	fontID, err := r.UploadFontAtlas(atlas)
//
//	// every frame, inside a pass begun with r.RenderPassDescriptor(view, nil):
//	if err := r.Render(pass, drawData); err != nil {
//	    return err
//	}
//
// # Threading
//
// A renderer is not safe for concurrent use. The host serializes Render and
// texture registration calls. Device creation, command submission, and
// presentation stay with the host.
//
// # Logging
//
// imwgpu is silent by default. Call [SetLogger] to route diagnostics to a
// [log/slog] logger.
package imwgpu
