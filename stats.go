package gpuframe

import (
	"sync"
	"time"

	"github.com/loov/hrtime"
)

// statsWindow is how often the frame rate is recomputed and logged.
const statsWindow = time.Second

// FrameStats is a snapshot of scheduler timing.
type FrameStats struct {
	// Frames is the number of frames presented.
	Frames uint64

	// FPS is the frame rate over the last complete one-second window.
	FPS float64

	// LastFrame is the duration from BeginFrame to the end of Present for
	// the most recent frame.
	LastFrame time.Duration

	// Blocked is the total time BeginFrame spent waiting for a slot to
	// become reusable.
	Blocked time.Duration
}

// frameClock measures frames with the high resolution timer.
type frameClock struct {
	mu sync.Mutex

	frames  uint64
	fps     float64
	last    time.Duration
	blocked time.Duration

	begin        time.Duration
	windowStart  time.Duration
	windowFrames uint64
}

func newFrameClock() *frameClock {
	return &frameClock{windowStart: hrtime.Now()}
}

// beginFrame marks a BeginFrame call and returns its start.
func (c *frameClock) beginFrame() time.Duration {
	now := hrtime.Now()
	c.mu.Lock()
	c.begin = now
	c.mu.Unlock()
	return now
}

func (c *frameClock) addBlocked(start time.Duration) {
	d := hrtime.Since(start)
	c.mu.Lock()
	c.blocked += d
	c.mu.Unlock()
}

// endFrame records a presented frame.
func (c *frameClock) endFrame() {
	now := hrtime.Now()
	c.mu.Lock()
	c.frames++
	c.last = now - c.begin
	c.windowFrames++
	elapsed := now - c.windowStart
	var report bool
	if elapsed >= statsWindow {
		c.fps = float64(c.windowFrames) / elapsed.Seconds()
		c.windowFrames = 0
		c.windowStart = now
		report = true
	}
	fps, frames := c.fps, c.frames
	c.mu.Unlock()

	if report {
		Logger().Debug("gpuframe: frame rate", "fps", fps, "frames", frames)
	}
}

func (c *frameClock) snapshot() FrameStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return FrameStats{
		Frames:    c.frames,
		FPS:       c.fps,
		LastFrame: c.last,
		Blocked:   c.blocked,
	}
}
