package gpuframe

import (
	"errors"
	"fmt"
	"sync"

	"github.com/gogpu/gpuframe/backend"
	"github.com/gogpu/gputypes"
)

// Surface is a ring of presentable images on a graphics queue.
type Surface struct {
	dev     *Device
	queue   *Queue
	target  backend.SurfaceTarget
	sc      backend.Swapchain
	tearing bool

	mu      sync.Mutex
	width   uint32
	height  uint32
	current int
	closed  bool
}

// CreateSurface creates a swapchain of bufferCount images presented through q.
// Zero sizes are clamped to 1. Tearing is enabled when the backend supports it.
func (d *Device) CreateSurface(target backend.SurfaceTarget, q *Queue, width, height uint32, bufferCount int) (*Surface, error) {
	if err := d.check(); err != nil {
		return nil, err
	}
	width, height = max(width, 1), max(height, 1)
	tearing := d.adapter.backend.SupportsTearing()
	sc, err := d.dev.CreateSwapchain(target, q.q, &backend.SwapchainDescriptor{
		Width:        width,
		Height:       height,
		BufferCount:  bufferCount,
		AllowTearing: tearing,
	})
	if err != nil {
		return nil, resourceError("swapchain", err)
	}
	d.retain()
	s := &Surface{
		dev:     d,
		queue:   q,
		target:  target,
		sc:      sc,
		tearing: tearing,
		width:   width,
		height:  height,
		current: sc.CurrentIndex(),
	}
	Logger().Info("gpuframe: surface created",
		"width", width, "height", height, "buffers", bufferCount, "tearing", tearing)
	return s, nil
}

// BufferCount returns the number of images N.
func (s *Surface) BufferCount() int { return s.sc.BufferCount() }

// CurrentIndex returns the image the next frame renders into, as last
// reported by the driver.
func (s *Surface) CurrentIndex() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// BackBuffer returns image i.
func (s *Surface) BackBuffer(i int) backend.Image { return s.sc.Image(i) }

// Size returns the image size.
func (s *Surface) Size() (width, height uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.width, s.height
}

// TearingSupported reports whether presents without vsync may tear.
func (s *Surface) TearingSupported() bool { return s.tearing }

// Format returns the image format.
func (s *Surface) Format() gputypes.TextureFormat { return s.sc.Format() }

// Target returns the window host drawable.
func (s *Surface) Target() backend.SurfaceTarget { return s.target }

// Present shows the current image. It is immediate, and may tear, only
// when vsync is off and tearing is supported; otherwise it waits for the
// next refresh. The current index is re-read from the driver afterwards.
func (s *Surface) Present(vsync bool) error {
	if err := s.dev.check(); err != nil {
		return err
	}
	syncInterval, allowTearing := 1, false
	if !vsync && s.tearing {
		syncInterval, allowTearing = 0, true
	}
	err := s.sc.Present(syncInterval, allowTearing)
	s.queue.markDirty()
	if err != nil {
		return s.dev.fail("present", err)
	}
	s.mu.Lock()
	s.current = s.sc.CurrentIndex()
	s.mu.Unlock()
	return nil
}

// Resize recreates every image at the new size. The queue must have been
// flushed: Resize fails with ErrSurfaceResize while submitted work or a
// present may still reference the images. Zero sizes are clamped to 1.
func (s *Surface) Resize(width, height uint32) error {
	if err := s.dev.check(); err != nil {
		return err
	}
	if !s.queue.Idle() {
		return fmt.Errorf("%w: flush the queue before resizing", ErrSurfaceResize)
	}
	width, height = max(width, 1), max(height, 1)
	if err := s.sc.Resize(width, height); err != nil {
		if errors.Is(err, backend.ErrImagesInUse) {
			return fmt.Errorf("%w: %w", ErrSurfaceResize, err)
		}
		return s.dev.fail("resize", err)
	}
	s.mu.Lock()
	s.width, s.height = width, height
	s.current = s.sc.CurrentIndex()
	s.mu.Unlock()
	Logger().Info("gpuframe: surface resized", "width", width, "height", height)
	return nil
}

// Destroy releases the images. Flush the queue first.
func (s *Surface) Destroy() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()
	s.sc.Destroy()
	s.dev.release()
}
