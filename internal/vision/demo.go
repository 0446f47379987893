package vision

import (
	"context"
	"math/rand/v2"
	"time"
)

// DefaultDemoDelay simulates service latency.
const DefaultDemoDelay = 2 * time.Second

// DemoCaptions are the captions the demo provider picks from.
var DemoCaptions = []string{
	"Cảnh đẹp", "Con mèo", "Món ăn", "Hoa đẹp", "Thành phố",
	"Biển xanh", "Núi cao", "Ô tô", "Người đàn", "Trẻ em",
	"Cây xanh", "Nhà cửa", "Điện thoại", "Máy tính", "Sách vở",
	"Bầu trời", "Mặt trời", "Mặt trăng", "Ngôi sao", "Cầu vồng",
}

// DemoOption configures a DemoProvider.
type DemoOption func(*DemoProvider)

// WithDemoDelay sets the simulated latency.
func WithDemoDelay(d time.Duration) DemoOption {
	return func(p *DemoProvider) { p.delay = d }
}

// WithPicker replaces the random caption choice. pick receives the number of
// captions and returns an index.
func WithPicker(pick func(n int) int) DemoOption {
	return func(p *DemoProvider) { p.pick = pick }
}

// DemoProvider returns a random caption without contacting any service.
// It ignores the image.
type DemoProvider struct {
	delay time.Duration
	pick  func(n int) int
}

// NewDemoProvider creates a demo provider.
func NewDemoProvider(opts ...DemoOption) *DemoProvider {
	p := &DemoProvider{delay: DefaultDemoDelay, pick: rand.IntN}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Describe waits out the delay and returns a caption.
func (p *DemoProvider) Describe(ctx context.Context, _ []byte, _ string) (string, error) {
	if p.delay > 0 {
		t := time.NewTimer(p.delay)
		defer t.Stop()
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-t.C:
		}
	}
	return NormalizeCaption(DemoCaptions[p.pick(len(DemoCaptions))]), nil
}
