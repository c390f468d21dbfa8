package sim

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gogpu/gpuframe/backend"
	"github.com/gogpu/gputypes"
)

// Swapchain buffer count limits, matching flip-model presentation.
const (
	MinBufferCount = 2
	MaxBufferCount = 16
)

// Image is a presentable image backed by host memory.
type Image struct {
	index  int
	pixels *image.RGBA
	state  backend.ResourceState
	refs   atomic.Int32
}

var _ backend.Image = (*Image)(nil)

func newImage(index int, width, height uint32) *Image {
	return &Image{
		index:  index,
		pixels: image.NewRGBA(image.Rect(0, 0, int(width), int(height))),
		state:  backend.StatePresent,
	}
}

// Index returns the position of the image in the swapchain.
func (im *Image) Index() int { return im.index }

// Size returns the image dimensions.
func (im *Image) Size() (width, height uint32) {
	b := im.pixels.Bounds()
	return uint32(b.Dx()), uint32(b.Dy())
}

// RGBA returns the pixel storage. Only read it after the GPU work that
// writes the image has completed.
func (im *Image) RGBA() *image.RGBA { return im.pixels }

// State returns the state left by the last executed barrier.
func (im *Image) State() backend.ResourceState { return im.state }

func (im *Image) fill(c gputypes.Color) {
	rgba := color.RGBA{
		R: unorm8(float64(c.R)),
		G: unorm8(float64(c.G)),
		B: unorm8(float64(c.B)),
		A: unorm8(float64(c.A)),
	}
	draw.Draw(im.pixels, im.pixels.Bounds(), &image.Uniform{C: rgba}, image.Point{}, draw.Src)
}

func unorm8(v float64) uint8 {
	v = math.Max(0, math.Min(1, v))
	return uint8(math.Round(v * 255))
}

// PresentRecord describes one Present call.
type PresentRecord struct {
	Index        int
	SyncInterval int
	AllowTearing bool
}

type swapchain struct {
	dev  *Device
	desc backend.SwapchainDescriptor

	mu        sync.Mutex
	images    []*Image
	current   int
	presents  []PresentRecord
	destroyed bool
}

var _ backend.Swapchain = (*swapchain)(nil)

func newSwapchain(d *Device, q backend.Queue, desc *backend.SwapchainDescriptor) (*swapchain, error) {
	if desc == nil {
		return nil, fmt.Errorf("sim: nil swapchain descriptor")
	}
	if _, ok := q.(*queue); !ok {
		return nil, fmt.Errorf("sim: foreign queue %T", q)
	}
	if q.Kind() != backend.QueueGraphics {
		return nil, fmt.Errorf("%w: present on %v queue", backend.ErrUnsupportedOperation, q.Kind())
	}
	if desc.BufferCount < MinBufferCount || desc.BufferCount > MaxBufferCount {
		return nil, fmt.Errorf("sim: buffer count %d out of range [%d, %d]",
			desc.BufferCount, MinBufferCount, MaxBufferCount)
	}
	if desc.Width == 0 || desc.Height == 0 {
		return nil, fmt.Errorf("sim: invalid swapchain size %dx%d", desc.Width, desc.Height)
	}
	if desc.AllowTearing && !d.b.opts.tearing {
		return nil, fmt.Errorf("%w: tearing", backend.ErrUnsupportedOperation)
	}
	s := &swapchain{dev: d, desc: *desc}
	s.images = makeImages(desc.BufferCount, desc.Width, desc.Height)
	return s, nil
}

func makeImages(n int, width, height uint32) []*Image {
	images := make([]*Image, n)
	for i := range images {
		images[i] = newImage(i, width, height)
	}
	return images
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
	if s.dev.b.lost.Load() {
		return backend.ErrDeviceLost
	}
	if syncInterval < 0 || syncInterval > 4 {
		return fmt.Errorf("sim: sync interval %d out of range [0, 4]", syncInterval)
	}
	if allowTearing && (!s.desc.AllowTearing || syncInterval != 0) {
		return fmt.Errorf("%w: tearing present", backend.ErrUnsupportedOperation)
	}
	if syncInterval > 0 && s.dev.b.opts.refresh > 0 {
		time.Sleep(time.Duration(syncInterval) * s.dev.b.opts.refresh)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.destroyed {
		return backend.ErrDestroyed
	}
	s.presents = append(s.presents, PresentRecord{
		Index:        s.current,
		SyncInterval: syncInterval,
		AllowTearing: allowTearing,
	})
	n := len(s.images)
	next := s.dev.b.opts.nextIndex(s.current, n)
	s.current = ((next % n) + n) % n
	return nil
}

// Presents returns the history of Present calls.
func (s *swapchain) Presents() []PresentRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]PresentRecord(nil), s.presents...)
}

func (s *swapchain) Resize(width, height uint32) error {
	if width == 0 || height == 0 {
		return fmt.Errorf("sim: invalid swapchain size %dx%d", width, height)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, img := range s.images {
		if n := img.refs.Load(); n > 0 {
			return fmt.Errorf("%w: image %d referenced by %d pending list(s)", backend.ErrImagesInUse, img.index, n)
		}
	}
	s.images = makeImages(len(s.images), width, height)
	s.desc.Width, s.desc.Height = width, height
	s.current = 0
	return nil
}

func (s *swapchain) Format() gputypes.TextureFormat {
	if s.desc.Format == gputypes.TextureFormatUndefined {
		return gputypes.TextureFormatRGBA8Unorm
	}
	return s.desc.Format
}

func (s *swapchain) Destroy() {
	s.mu.Lock()
	s.destroyed = true
	s.mu.Unlock()
}

// Presents returns the present history of a swapchain created by this
// package, or nil for any other swapchain.
func Presents(sc backend.Swapchain) []PresentRecord {
	if s, ok := sc.(*swapchain); ok {
		return s.Presents()
	}
	return nil
}
