package api

import (
	"io"
	"os"
	"sync"
	"testing"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/char5742/keyball-axis-clamper/internal/config"
	"github.com/char5742/keyball-axis-clamper/internal/event"
	"github.com/char5742/keyball-axis-clamper/internal/features"
)

func init() {
	log.SetOutput(io.Discard)
}

// fakeMouse はチャネルから読み込むマウス
type fakeMouse struct {
	events  chan event.Event
	closed  chan struct{}
	once    sync.Once
	mu      sync.Mutex
	grabbed bool
}

func newFakeMouse() *fakeMouse {
	return &fakeMouse{events: make(chan event.Event, 64), closed: make(chan struct{})}
}

func (m *fakeMouse) ReadEvent() (event.Event, error) {
	select {
	case ev, ok := <-m.events:
		if !ok {
			return event.Event{}, io.EOF
		}
		return ev, nil
	case <-m.closed:
		return event.Event{}, os.ErrClosed
	}
}

func (m *fakeMouse) Grab() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.grabbed = true
	return nil
}

func (m *fakeMouse) Release() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.grabbed = false
	return nil
}

func (m *fakeMouse) Close() error {
	m.once.Do(func() { close(m.closed) })
	return nil
}

func (m *fakeMouse) isClosed() bool {
	select {
	case <-m.closed:
		return true
	default:
		return false
	}
}

// frame は1フレーム分のイベントを送る
func (m *fakeMouse) frame(evs ...event.Event) {
	for _, ev := range evs {
		m.events <- ev
	}
	m.events <- event.Report()
}

// fakeOutput は書き込まれたフレームを記録する
type fakeOutput struct {
	mu     sync.Mutex
	frames [][]event.Event
	closed bool
}

func (o *fakeOutput) WriteEvents(events []event.Event) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.frames = append(o.frames, append([]event.Event(nil), events...))
	return nil
}

func (o *fakeOutput) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.closed = true
	return nil
}

func (o *fakeOutput) snapshot() [][]event.Event {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([][]event.Event(nil), o.frames...)
}

func (o *fakeOutput) isClosed() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.closed
}

func waitUntil(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met within %v", timeout)
}

func testConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.Clamper.HistorySize = 4
	cfg.Clamper.DecayTTL = 10 * time.Second
	return cfg
}

// newFakeService はデバイス操作を差し替えたサービスを作る
func newFakeService(cfg *config.Config, mouse *fakeMouse, out *fakeOutput, devices []features.Device) *ClampService {
	s := NewClampService(cfg, nil, nil)
	s.scanDevices = func() ([]features.Device, error) { return devices, nil }
	s.openMouse = func(string) (features.Mouse, error) { return mouse, nil }
	s.createOutput = func(string, string) (features.VirtualMouse, error) { return out, nil }
	return s
}

func defaultDevices() []features.Device {
	return []features.Device{
		{Name: "usb-Keyboard-event-kbd", Path: "/dev/input/event1", Type: features.DeviceTypeKeyboard},
		{Name: "usb-Keyball-event-mouse", Path: "/dev/input/event2", Type: features.DeviceTypeMouse},
	}
}
