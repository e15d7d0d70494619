package features

import (
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	log "github.com/sirupsen/logrus"
)

func makeByID(t *testing.T, links map[string]string) string {
	t.Helper()
	root := t.TempDir()
	byID := filepath.Join(root, "by-id")
	if err := os.Mkdir(byID, 0755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	for name, target := range links {
		if err := os.Symlink(target, filepath.Join(byID, name)); err != nil {
			t.Fatalf("symlink: %v", err)
		}
	}
	return byID
}

func quietEntry() *log.Entry {
	logger := log.New()
	logger.SetOutput(io.Discard)
	return log.NewEntry(logger)
}

func TestScanDir(t *testing.T) {
	byID := makeByID(t, map[string]string{
		"usb-Keyball-event-mouse":    "../event7",
		"usb-Keyball-event-kbd":      "../event6",
		"usb-Keyball-mouse":          "../mouse2",
		"usb-Other-if01-event-mouse": "/dev/input/event9",
	})

	devices, err := scanDir(byID)
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(devices) != 3 {
		t.Fatalf("expected 3 devices, got %d: %+v", len(devices), devices)
	}

	byName := make(map[string]Device)
	for _, d := range devices {
		byName[d.Name] = d
	}

	mouse := byName["usb-Keyball-event-mouse"]
	if mouse.Type != DeviceTypeMouse {
		t.Errorf("expected mouse type, got %v", mouse.Type)
	}
	if want := filepath.Join(filepath.Dir(byID), "event7"); mouse.Path != want {
		t.Errorf("expected path %q, got %q", want, mouse.Path)
	}
	if kbd := byName["usb-Keyball-event-kbd"]; kbd.Type != DeviceTypeKeyboard {
		t.Errorf("expected keyboard type, got %v", kbd.Type)
	}
	if other := byName["usb-Other-if01-event-mouse"]; other.Path != "/dev/input/event9" {
		t.Errorf("expected absolute link target kept, got %q", other.Path)
	}

	if mice := Mice(devices); len(mice) != 2 {
		t.Errorf("expected 2 mice, got %d", len(mice))
	}
}

func TestScanDir_Missing(t *testing.T) {
	if _, err := scanDir(filepath.Join(t.TempDir(), "nope")); err == nil {
		t.Errorf("expected error for missing directory")
	}
}

func waitDeviceEvent(t *testing.T, ch <-chan DeviceEvent) DeviceEvent {
	t.Helper()
	select {
	case ev := <-ch:
		return ev
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for device event")
	}
	return DeviceEvent{}
}

func TestDeviceMonitor_UpdateDeviceList(t *testing.T) {
	dm := &DeviceMonitor{logger: quietEntry()}
	events := make(chan DeviceEvent, 8)
	dm.RegisterCallback(func(ev DeviceEvent) { events <- ev })

	dm.updateDeviceList([]Device{{Name: "a-event-mouse", Path: "/dev/input/event1", Type: DeviceTypeMouse}})
	if ev := waitDeviceEvent(t, events); ev.Type != DeviceAdded || ev.Path != "/dev/input/event1" {
		t.Errorf("expected added event, got %+v", ev)
	}

	dm.updateDeviceList([]Device{{Name: "b-event-mouse", Path: "/dev/input/event1", Type: DeviceTypeMouse}})
	if ev := waitDeviceEvent(t, events); ev.Type != DeviceChanged || ev.Device.Name != "b-event-mouse" {
		t.Errorf("expected changed event, got %+v", ev)
	}

	dm.updateDeviceList(nil)
	if ev := waitDeviceEvent(t, events); ev.Type != DeviceRemoved {
		t.Errorf("expected removed event, got %+v", ev)
	}
	if n := len(dm.GetConnectedDevices()); n != 0 {
		t.Errorf("expected no devices, got %d", n)
	}
}

func TestDeviceMonitor_DetectsHotplug(t *testing.T) {
	byID := makeByID(t, nil)
	dm, err := NewDeviceMonitor(byID)
	if err != nil {
		t.Fatalf("new monitor: %v", err)
	}
	dm.logger = quietEntry()
	dm.debounce = 20 * time.Millisecond

	events := make(chan DeviceEvent, 8)
	dm.RegisterCallback(func(ev DeviceEvent) { events <- ev })
	if err := dm.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer dm.Stop()

	if err := os.Symlink("../event3", filepath.Join(byID, "usb-Trackball-event-mouse")); err != nil {
		t.Fatalf("symlink: %v", err)
	}

	ev := waitDeviceEvent(t, events)
	if ev.Type != DeviceAdded || ev.Device.Name != "usb-Trackball-event-mouse" {
		t.Errorf("expected added trackball, got %+v", ev)
	}
	if got := dm.GetConnectedDevices(); len(got) != 1 {
		t.Errorf("expected 1 connected device, got %d", len(got))
	}
}
