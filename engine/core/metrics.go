package core

import "sync"

const AVG_COUNT uint8 = 30

// FrameMetrics keeps a rolling average of frame replay times. The consumer
// writes it once per frame while the producer may read it for diagnostics.
type FrameMetrics struct {
	mu                 sync.Mutex
	frameAVGCounter    uint8
	msTimes            [AVG_COUNT]float64
	msAVG              float64
	frames             int32
	accumulatedFrameMS float64
	fps                float64
	total              uint64
}

func NewFrameMetrics() *FrameMetrics {
	return &FrameMetrics{}
}

// Update records one frame that took frameElapsedTime seconds.
func (m *FrameMetrics) Update(frameElapsedTime float64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	frameMS := frameElapsedTime * 1000.0
	m.msTimes[m.frameAVGCounter] = frameMS
	if m.frameAVGCounter == AVG_COUNT-1 {
		sum := 0.0
		for i := uint8(0); i < AVG_COUNT; i++ {
			sum += m.msTimes[i]
		}
		m.msAVG = sum / float64(AVG_COUNT)
	}
	m.frameAVGCounter++
	m.frameAVGCounter %= AVG_COUNT

	m.accumulatedFrameMS += frameMS
	if m.accumulatedFrameMS > 1000 {
		m.fps = float64(m.frames)
		m.accumulatedFrameMS -= 1000
		m.frames = 0
	}

	m.frames++
	m.total++
}

func (m *FrameMetrics) FPS() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.fps
}

func (m *FrameMetrics) FrameTime() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.msAVG
}

// Frame returns the fps and the average frame time in milliseconds.
func (m *FrameMetrics) Frame() (float64, float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.fps, m.msAVG
}

// Total is the number of frames recorded since creation.
func (m *FrameMetrics) Total() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.total
}
