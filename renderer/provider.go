package renderer

import (
	"fmt"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/imwgpu"
	"github.com/gogpu/wgpu/hal"
)

// halProvider is implemented by device providers that expose their HAL
// objects.
type halProvider interface {
	HalDevice() any
	HalQueue() any
}

// halAdapterProvider is implemented by device providers that expose their
// HAL adapter.
type halAdapterProvider interface {
	HalAdapter() any
}

// NewFromProvider creates a renderer on a device shared by the host
// application. The provider must implement HalDevice() any and
// HalQueue() any returning hal.Device and hal.Queue.
//
// When cfg.OutputFormat is undefined the provider's surface format is
// used. Format capabilities are read from the provider's adapter when it
// exposes a hal.Adapter; otherwise the format is assumed to support
// rendering, blending and multisampling.
func NewFromProvider(provider gpucontext.DeviceProvider, cfg imwgpu.Config) (*Renderer, error) {
	if provider == nil {
		return nil, imwgpu.ErrNilDevice
	}
	hp, ok := provider.(halProvider)
	if !ok {
		return nil, fmt.Errorf("%w: provider does not expose HAL types", imwgpu.ErrNilDevice)
	}
	device, ok := hp.HalDevice().(hal.Device)
	if !ok || device == nil {
		return nil, fmt.Errorf("%w: provider HalDevice is not hal.Device", imwgpu.ErrNilDevice)
	}
	queue, ok := hp.HalQueue().(hal.Queue)
	if !ok || queue == nil {
		return nil, fmt.Errorf("%w: provider HalQueue is not hal.Queue", imwgpu.ErrNilDevice)
	}

	if cfg.OutputFormat == gputypes.TextureFormatUndefined {
		cfg.OutputFormat = provider.SurfaceFormat()
	}
	return New(device, queue, providerCapabilities(provider, cfg.OutputFormat), cfg)
}

func providerCapabilities(provider gpucontext.DeviceProvider, format gputypes.TextureFormat) hal.TextureFormatCapabilities {
	var adapter hal.Adapter
	if ap, ok := provider.(halAdapterProvider); ok {
		adapter, _ = ap.HalAdapter().(hal.Adapter)
	}
	if adapter == nil {
		adapter, _ = provider.Adapter().(hal.Adapter)
	}
	if adapter != nil {
		return adapter.TextureFormatCapabilities(format)
	}

	info := provider.AdapterInfo()
	imwgpu.Logger().Debug("format capabilities unknown, assuming render target support",
		"format", format.String(), "adapter", info.Name)
	return hal.TextureFormatCapabilities{
		Flags: hal.TextureFormatCapabilityRenderAttachment |
			hal.TextureFormatCapabilityBlendable |
			hal.TextureFormatCapabilityMultisample,
	}
}
