package features

import (
	"fmt"
	"io"
	"os"
	"syscall"

	"github.com/char5742/keyball-axis-clamper/internal/device"
	"github.com/char5742/keyball-axis-clamper/internal/event"
	"github.com/char5742/keyball-axis-clamper/internal/utils"
)

// マウス入力を扱うインターフェース
type Mouse interface {
	// 次のイベントを読み込む（イベントが来るまでブロックする）
	ReadEvent() (event.Event, error)
	// マウス操作を専有する
	Grab() error
	// マウス操作の専有を解除する
	Release() error
	Close() error
}

type physicalMouse struct {
	file    *os.File
	buf     []byte
	grabbed bool
}

// 指定されたパスでマウスを開く
func OpenMouse(path string) (Mouse, error) {
	f, err := os.OpenFile(path, syscall.O_RDONLY, 0660)
	if err != nil {
		return nil, fmt.Errorf("failed to open device file: %w", err)
	}
	return &physicalMouse{file: f, buf: make([]byte, event.Size)}, nil
}

func (m *physicalMouse) ReadEvent() (event.Event, error) {
	if _, err := io.ReadFull(m.file, m.buf); err != nil {
		return event.Event{}, err
	}
	return event.Decode(m.buf)
}

func (m *physicalMouse) Grab() error {
	if m.grabbed {
		return nil
	}
	if err := utils.IOCtl(m.file, device.EVIOCGRAB, 1); err != nil {
		return fmt.Errorf("failed to grab device: %w", err)
	}
	m.grabbed = true
	return nil
}

func (m *physicalMouse) Release() error {
	if !m.grabbed {
		return nil
	}
	if err := utils.IOCtl(m.file, device.EVIOCGRAB, 0); err != nil {
		return fmt.Errorf("failed to release device: %w", err)
	}
	m.grabbed = false
	return nil
}

func (m *physicalMouse) Close() error {
	_ = m.Release()
	return m.file.Close()
}
