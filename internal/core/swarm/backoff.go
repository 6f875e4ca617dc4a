package swarm

import (
	"math/rand"
	"time"
)

// backoff 指数退避，带 ±10% 抖动
type backoff struct {
	base time.Duration
	max  time.Duration
}

func newBackoff(base, max time.Duration) *backoff {
	return &backoff{base: base, max: max}
}

// delay 第 attempt 次失败后的等待时长，attempt 从 0 开始
func (b *backoff) delay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	d := b.base
	for i := 0; i < attempt && d < b.max; i++ {
		d *= 2
	}
	if d > b.max {
		d = b.max
	}
	jitter := time.Duration(float64(d) * 0.1 * (2*rand.Float64() - 1))
	d += jitter
	if d <= 0 {
		d = b.base
	}
	return d
}
