package native

import (
	"fmt"
	"sync"

	"github.com/gogpu/gpuframe/backend"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
)

// Image is a swapchain texture and its render target view.
type Image struct {
	index   int
	width   uint32
	height  uint32
	texture hal.Texture
	view    hal.TextureView
}

var _ backend.Image = (*Image)(nil)

func (im *Image) Index() int                   { return im.index }
func (im *Image) Size() (width, height uint32) { return im.width, im.height }

// Texture returns the hal texture, for readback.
func (im *Image) Texture() hal.Texture { return im.texture }

// swapchain is a headless ring of textures. Present rotates the ring in
// order; there is no display to wait on.
type swapchain struct {
	dev    *Device
	target backend.SurfaceTarget
	desc   backend.SwapchainDescriptor

	mu      sync.Mutex
	images  []*Image
	current int
}

func newSwapchain(d *Device, target backend.SurfaceTarget, q backend.Queue, desc *backend.SwapchainDescriptor) (*swapchain, error) {
	if desc == nil {
		return nil, fmt.Errorf("native: nil swapchain descriptor")
	}
	if q.Kind() != backend.QueueGraphics {
		return nil, fmt.Errorf("%w: present on %v queue", backend.ErrUnsupportedOperation, q.Kind())
	}
	if desc.AllowTearing {
		return nil, fmt.Errorf("%w: tearing", backend.ErrUnsupportedOperation)
	}
	if desc.BufferCount < 2 {
		return nil, fmt.Errorf("native: buffer count %d, need at least 2", desc.BufferCount)
	}
	s := &swapchain{dev: d, target: target, desc: *desc}
	if s.desc.Format == gputypes.TextureFormatUndefined {
		s.desc.Format = gputypes.TextureFormatBGRA8Unorm
	}
	images, err := s.createImages(desc.Width, desc.Height)
	if err != nil {
		return nil, err
	}
	s.images = images
	return s, nil
}

func (s *swapchain) createImages(width, height uint32) ([]*Image, error) {
	if width == 0 || height == 0 {
		return nil, fmt.Errorf("native: invalid swapchain size %dx%d", width, height)
	}
	images := make([]*Image, 0, s.desc.BufferCount)
	for i := range s.desc.BufferCount {
		label := fmt.Sprintf("gpuframe_backbuffer_%d", i)
		tex, err := s.dev.hal.CreateTexture(&hal.TextureDescriptor{
			Label: label,
			Size: hal.Extent3D{
				Width:              width,
				Height:             height,
				DepthOrArrayLayers: 1,
			},
			MipLevelCount: 1,
			SampleCount:   1,
			Dimension:     gputypes.TextureDimension2D,
			Format:        s.desc.Format,
			Usage:         gputypes.TextureUsageRenderAttachment | gputypes.TextureUsageCopySrc,
		})
		if err != nil {
			s.destroyImages(images)
			return nil, fmt.Errorf("native: create %s: %w", label, err)
		}
		view, err := s.dev.hal.CreateTextureView(tex, &hal.TextureViewDescriptor{Label: label + "_view"})
		if err != nil {
			s.dev.hal.DestroyTexture(tex)
			s.destroyImages(images)
			return nil, fmt.Errorf("native: create %s view: %w", label, err)
		}
		images = append(images, &Image{index: i, width: width, height: height, texture: tex, view: view})
	}
	return images, nil
}

func (s *swapchain) destroyImages(images []*Image) {
	for _, im := range images {
		s.dev.hal.DestroyTextureView(im.view)
		s.dev.hal.DestroyTexture(im.texture)
	}
}

func (s *swapchain) BufferCount() int { return s.desc.BufferCount }

func (s *swapchain) Image(i int) backend.Image {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i < 0 || i >= len(s.images) {
		return nil
	}
	return s.images[i]
}

func (s *swapchain) CurrentIndex() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

func (s *swapchain) Present(syncInterval int, allowTearing bool) error {
	if allowTearing {
		return fmt.Errorf("%w: tearing present", backend.ErrUnsupportedOperation)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.images == nil {
		return backend.ErrDestroyed
	}
	s.current = (s.current + 1) % len(s.images)
	return nil
}

func (s *swapchain) Resize(width, height uint32) error {
	if !s.dev.idle() {
		return backend.ErrImagesInUse
	}
	images, err := s.createImages(width, height)
	if err != nil {
		return err
	}
	s.mu.Lock()
	old := s.images
	s.images = images
	s.desc.Width, s.desc.Height = width, height
	s.current = 0
	s.mu.Unlock()
	s.destroyImages(old)
	return nil
}

func (s *swapchain) Format() gputypes.TextureFormat { return s.desc.Format }

func (s *swapchain) Destroy() {
	s.mu.Lock()
	old := s.images
	s.images = nil
	s.mu.Unlock()
	s.destroyImages(old)
}
