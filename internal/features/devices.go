package features

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	log "github.com/sirupsen/logrus"
)

// DefaultByIDDir は永続的なデバイス名が並ぶディレクトリ
const DefaultByIDDir = "/dev/input/by-id"

type Device struct {
	Name string     `json:"name"`
	Path string     `json:"path"`
	Type DeviceType `json:"type"`
}

// デバイスタイプを表す列挙型
type DeviceType int

const (
	DeviceTypeKeyboard DeviceType = iota
	DeviceTypeMouse
)

func (t DeviceType) String() string {
	if t == DeviceTypeMouse {
		return "mouse"
	}
	return "keyboard"
}

// MarshalText はJSON出力用に種別名を返す
func (t DeviceType) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// DeviceEventType はデバイスイベントの種類を表す
type DeviceEventType int

const (
	DeviceAdded DeviceEventType = iota
	DeviceRemoved
	DeviceChanged
)

func (t DeviceEventType) String() string {
	switch t {
	case DeviceAdded:
		return "added"
	case DeviceRemoved:
		return "removed"
	default:
		return "changed"
	}
}

// DeviceEvent はデバイスの変更イベントを表す
type DeviceEvent struct {
	Type   DeviceEventType
	Device *Device
	Path   string
}

// DeviceCallback はデバイスイベント発生時に呼び出されるコールバック関数の型
type DeviceCallback func(event DeviceEvent)

// ScanDevices は /dev/input/by-id から現在接続されているデバイスを検出する
func ScanDevices() ([]Device, error) {
	return scanDir(DefaultByIDDir)
}

// Mice はデバイス一覧からマウスだけを取り出す
func Mice(devices []Device) []Device {
	var mice []Device
	for _, d := range devices {
		if d.Type == DeviceTypeMouse {
			mice = append(mice, d)
		}
	}
	return mice
}

func scanDir(dir string) ([]Device, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var devices []Device
	for _, entry := range entries {
		// eventが含まれない場合はスキップ
		if !strings.Contains(entry.Name(), "event") {
			continue
		}
		fullPath := filepath.Join(dir, entry.Name())
		realPath, err := os.Readlink(fullPath)
		if err != nil {
			continue
		}

		// 絶対パスを構築
		absPath := realPath
		if !filepath.IsAbs(realPath) {
			absPath = filepath.Join(filepath.Dir(dir), filepath.Base(realPath))
		}

		if strings.Contains(entry.Name(), "kbd") {
			devices = append(devices, Device{Name: entry.Name(), Path: absPath, Type: DeviceTypeKeyboard})
		}
		if strings.Contains(entry.Name(), "mouse") {
			devices = append(devices, Device{Name: entry.Name(), Path: absPath, Type: DeviceTypeMouse})
		}
	}

	return devices, nil
}

// DeviceMonitor はデバイスの接続状態を監視する構造体
type DeviceMonitor struct {
	dir           string
	watcher       *fsnotify.Watcher
	callbacks     []DeviceCallback
	devices       map[string]*Device // パスをキーにしたデバイスマップ
	mutex         sync.RWMutex
	stopChan      chan struct{}
	pollInterval  time.Duration
	debounce      time.Duration
	pollingTicker *time.Ticker
	isRunning     bool
	logger        *log.Entry
}

// NewDeviceMonitor は新しいDeviceMonitorを作成する
func NewDeviceMonitor(dir string) (*DeviceMonitor, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	return &DeviceMonitor{
		dir:          dir,
		watcher:      watcher,
		devices:      make(map[string]*Device),
		stopChan:     make(chan struct{}),
		pollInterval: 2 * time.Second,
		debounce:     500 * time.Millisecond,
		logger:       log.WithField("component", "device_monitor"),
	}, nil
}

// Start はデバイスの監視を開始する
func (dm *DeviceMonitor) Start() error {
	if dm.isRunning {
		return nil // すでに実行中
	}

	dm.logger.Info("デバイスモニターを開始します")
	dm.isRunning = true

	// 監視対象のディレクトリを追加
	for _, dir := range []string{filepath.Dir(dm.dir), dm.dir} {
		if _, err := os.Stat(dir); os.IsNotExist(err) {
			continue
		}
		if err := dm.watcher.Add(dir); err != nil {
			dm.logger.WithError(err).WithField("dir", dir).Warn("ディレクトリの監視に失敗しました")
		}
	}

	// 初期デバイス一覧を取得
	dm.RescanDevices()

	go dm.watchEvents()

	dm.pollingTicker = time.NewTicker(dm.pollInterval)
	go dm.runPolling()

	return nil
}

// Stop はデバイスの監視を停止する
func (dm *DeviceMonitor) Stop() {
	if !dm.isRunning {
		return
	}

	dm.logger.Info("デバイスモニターを停止します")
	close(dm.stopChan)
	if dm.pollingTicker != nil {
		dm.pollingTicker.Stop()
	}
	dm.watcher.Close()
	dm.isRunning = false
}

// RegisterCallback はデバイスイベントのコールバック関数を登録する
func (dm *DeviceMonitor) RegisterCallback(callback DeviceCallback) {
	dm.mutex.Lock()
	defer dm.mutex.Unlock()

	dm.callbacks = append(dm.callbacks, callback)
}

// RescanDevices はデバイス一覧を強制的に再スキャンする
func (dm *DeviceMonitor) RescanDevices() {
	devices, err := scanDir(dm.dir)
	if err != nil {
		dm.logger.WithError(err).Warn("デバイスの再スキャンに失敗しました")
		return
	}

	dm.updateDeviceList(devices)
}

// runPolling はfsnotifyで拾えない変化に備えて定期的に再スキャンする
func (dm *DeviceMonitor) runPolling() {
	for {
		select {
		case <-dm.stopChan:
			return
		case <-dm.pollingTicker.C:
			dm.RescanDevices()
		}
	}
}

// updateDeviceList は現在のデバイス一覧を更新し、変更があれば通知する
func (dm *DeviceMonitor) updateDeviceList(newDevices []Device) {
	dm.mutex.Lock()
	defer dm.mutex.Unlock()

	if dm.devices == nil {
		dm.devices = make(map[string]*Device)
	}

	// 今回見つからなかったパスは削除扱い
	stale := make(map[string]bool, len(dm.devices))
	for path := range dm.devices {
		stale[path] = true
	}

	for i := range newDevices {
		device := &newDevices[i]
		path := device.Path

		old, exists := dm.devices[path]
		switch {
		case !exists:
			dm.devices[path] = device
			dm.logger.WithFields(log.Fields{"name": device.Name, "path": path}).Info("新しいデバイスを追加")
			dm.notifyCallbacks(DeviceEvent{Type: DeviceAdded, Device: device, Path: path})
		case old.Name != device.Name:
			dm.devices[path] = device
			dm.logger.WithFields(log.Fields{"old": old.Name, "new": device.Name, "path": path}).Info("デバイス情報が変更")
			dm.notifyCallbacks(DeviceEvent{Type: DeviceChanged, Device: device, Path: path})
		}
		delete(stale, path)
	}

	for path := range stale {
		device := dm.devices[path]
		delete(dm.devices, path)
		dm.logger.WithFields(log.Fields{"name": device.Name, "path": path}).Info("デバイスを削除")
		dm.notifyCallbacks(DeviceEvent{Type: DeviceRemoved, Device: device, Path: path})
	}
}

// notifyCallbacks は登録されているすべてのコールバックに通知する
// 呼び出し側がmutexを保持しているため、コールバックは別ゴルーチンで実行する
func (dm *DeviceMonitor) notifyCallbacks(event DeviceEvent) {
	for _, callback := range dm.callbacks {
		go callback(event)
	}
}

// watchEvents はfsnotifyのイベントを監視する
func (dm *DeviceMonitor) watchEvents() {
	// 短時間に連続するイベントはまとめて処理する
	eventTimer := time.NewTimer(dm.debounce)
	eventTimer.Stop()
	pendingRescan := false

	for {
		select {
		case <-dm.stopChan:
			return

		case <-eventTimer.C:
			if pendingRescan {
				pendingRescan = false
				dm.RescanDevices()
			}

		case ev, ok := <-dm.watcher.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			dm.logger.WithFields(log.Fields{"op": ev.Op.String(), "name": ev.Name}).Debug("ファイルシステムイベント")
			if !pendingRescan {
				pendingRescan = true
				eventTimer.Reset(dm.debounce)
			}

		case err, ok := <-dm.watcher.Errors:
			if !ok {
				return
			}
			dm.logger.WithError(err).Warn("ファイルシステム監視エラー")
		}
	}
}

// GetConnectedDevices は現在接続されているデバイスのスナップショットを返す
func (dm *DeviceMonitor) GetConnectedDevices() []Device {
	dm.mutex.RLock()
	defer dm.mutex.RUnlock()

	devices := make([]Device, 0, len(dm.devices))
	for _, device := range dm.devices {
		devices = append(devices, *device)
	}
	sort.Slice(devices, func(i, j int) bool { return devices[i].Name < devices[j].Name })

	return devices
}
