package api

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	log "github.com/sirupsen/logrus"

	"github.com/char5742/keyball-axis-clamper/internal/clamper"
	"github.com/char5742/keyball-axis-clamper/internal/config"
	"github.com/char5742/keyball-axis-clamper/internal/event"
	"github.com/char5742/keyball-axis-clamper/internal/features"
)

// ClampService は物理マウスのイベントをクランパーに通して仮想マウスへ中継する
type ClampService struct {
	cfg          *config.Config
	stopChan     chan struct{}
	done         chan struct{}
	running      bool
	statusMutex  sync.RWMutex
	activeMouse  *features.Device
	updateConfig chan struct{}
	clamper      atomic.Pointer[clamper.Clamper]
	onTransition func(clamper.Transition)
	logger       *log.Entry

	// 差し替え可能なデバイス操作
	scanDevices  func() ([]features.Device, error)
	openMouse    func(path string) (features.Mouse, error)
	createOutput func(path, name string) (features.VirtualMouse, error)
}

// ServiceStatus はサービスの状態
type ServiceStatus struct {
	Running bool             `json:"running"`
	Mouse   *features.Device `json:"mouse,omitempty"`
}

// NewClampService は新しい中継サービスを作成する
// monitorがnilでなければ、使用中のマウスが外されたときにサービスを停止する
func NewClampService(cfg *config.Config, monitor *features.DeviceMonitor, onTransition func(clamper.Transition)) *ClampService {
	s := &ClampService{
		cfg:          cfg,
		updateConfig: make(chan struct{}, 1),
		onTransition: onTransition,
		logger:       log.WithField("component", "clamp_service"),
		scanDevices:  features.ScanDevices,
		openMouse:    features.OpenMouse,
		createOutput: features.CreateVirtualMouse,
	}
	if monitor != nil {
		s.scanDevices = func() ([]features.Device, error) {
			return monitor.GetConnectedDevices(), nil
		}
		monitor.RegisterCallback(s.handleDeviceEvent)
	}
	return s
}

// Start は中継サービスを開始する
func (s *ClampService) Start() error {
	s.statusMutex.Lock()
	defer s.statusMutex.Unlock()

	if s.running {
		return fmt.Errorf("サービスは既に実行中です")
	}
	s.drainConfigUpdate()

	devices, err := s.scanDevices()
	if err != nil {
		return fmt.Errorf("デバイス一覧の取得に失敗しました: %w", err)
	}
	mouseDevice := selectMouse(devices, s.cfg.DevicePrefs.PreferredMouseDevice)
	if mouseDevice == nil {
		return fmt.Errorf("マウスデバイスが見つかりませんでした")
	}

	mouse, err := s.openMouse(mouseDevice.Path)
	if err != nil {
		return fmt.Errorf("マウスデバイスのオープンに失敗しました[path=%s]: %w", mouseDevice.Path, err)
	}

	out, err := s.createOutput(s.cfg.VirtualDevice.UinputPath, s.cfg.VirtualDevice.Name)
	if err != nil {
		mouse.Close()
		return fmt.Errorf("仮想マウスの作成に失敗しました: %w", err)
	}

	// 物理マウスのイベントが直接OSに届かないよう専有する
	if err := mouse.Grab(); err != nil {
		mouse.Close()
		out.Close()
		return err
	}

	s.clamper.Store(s.newClamper(s.cfg.Clamper))
	s.activeMouse = mouseDevice
	s.stopChan = make(chan struct{})
	s.done = make(chan struct{})
	s.running = true

	s.logger.WithFields(log.Fields{"mouse": mouseDevice.Name, "path": mouseDevice.Path}).Info("軸ロックの中継を開始しました")
	go s.runRelayLoop(mouse, out, s.stopChan, s.done)

	return nil
}

// Stop は中継サービスを停止し、ループの終了を待つ
func (s *ClampService) Stop() error {
	s.statusMutex.Lock()
	if !s.running {
		s.statusMutex.Unlock()
		return fmt.Errorf("サービスは実行されていません")
	}
	close(s.stopChan)
	s.running = false
	done := s.done
	s.statusMutex.Unlock()

	<-done
	return nil
}

// Run はサービスを開始し、ctxが終了するか中継が止まるまでブロックする
func (s *ClampService) Run(ctx context.Context) error {
	if err := s.Start(); err != nil {
		return err
	}
	s.statusMutex.RLock()
	done := s.done
	s.statusMutex.RUnlock()

	select {
	case <-ctx.Done():
		if s.IsRunning() {
			_ = s.Stop()
		}
		<-done
		return nil
	case <-done:
		return errRelayStopped
	}
}

// UpdateConfig は設定を更新する
// 実行中であればクランパーを新しい設定で作り直す
func (s *ClampService) UpdateConfig(cfg *config.Config) {
	s.statusMutex.Lock()
	s.cfg = cfg
	running := s.running
	s.statusMutex.Unlock()

	if !running {
		return
	}
	// 通知は1件あれば足りる。ループは受け取った時点の最新のs.cfgを使う
	select {
	case s.updateConfig <- struct{}{}:
	default:
	}
}

// IsRunning はサービスが実行中かどうかを返す
func (s *ClampService) IsRunning() bool {
	s.statusMutex.RLock()
	defer s.statusMutex.RUnlock()
	return s.running
}

// Status は実行状態と使用中のマウスを返す
func (s *ClampService) Status() ServiceStatus {
	s.statusMutex.RLock()
	defer s.statusMutex.RUnlock()
	if !s.running {
		return ServiceStatus{}
	}
	return ServiceStatus{Running: true, Mouse: s.activeMouse}
}

// Snapshot は現在のクランパーの状態を返す
func (s *ClampService) Snapshot() (clamper.Snapshot, bool) {
	c := s.clamper.Load()
	if c == nil {
		return clamper.Snapshot{}, false
	}
	return c.Snapshot(), true
}

// ResetClamper は履歴とロック状態を手動でリセットする
func (s *ClampService) ResetClamper() bool {
	c := s.clamper.Load()
	if c == nil {
		return false
	}
	c.Reset()
	return true
}

func (s *ClampService) newClamper(cfg clamper.Config) *clamper.Clamper {
	opts := []clamper.Option{clamper.WithLogger(s.logger)}
	if s.onTransition != nil {
		opts = append(opts, clamper.WithObserver(s.onTransition))
	}
	// 設定が不正でもパススルーのインスタンスが返るので中継は続ける
	c, err := clamper.New(cfg, opts...)
	if err != nil {
		s.logger.WithError(err).Warn("クランパーは無効化されています")
	}
	return c
}

func (s *ClampService) drainConfigUpdate() {
	select {
	case <-s.updateConfig:
	default:
	}
}

// handleDeviceEvent は使用中のマウスが外されたらサービスを止める
func (s *ClampService) handleDeviceEvent(ev features.DeviceEvent) {
	if ev.Type != features.DeviceRemoved {
		return
	}
	s.statusMutex.RLock()
	active := s.running && s.activeMouse != nil && s.activeMouse.Path == ev.Path
	s.statusMutex.RUnlock()

	if active {
		s.logger.WithField("path", ev.Path).Warn("使用中のマウスが切断されました。サービスを停止します")
		_ = s.Stop()
	}
}

// runRelayLoop は中継のメインループ
func (s *ClampService) runRelayLoop(mouse features.Mouse, out features.VirtualMouse, stop <-chan struct{}, done chan<- struct{}) {
	events := make(chan event.Event, 64)
	readErr := make(chan error, 1)
	readerDone := make(chan struct{})
	go readEvents(mouse, events, readErr, readerDone)

	r := newRelay(s.clamper.Load(), out)

	defer func() {
		close(readerDone)
		if c := s.clamper.Load(); c != nil {
			c.Close()
		}
		mouse.Close()
		out.Close()
		s.logger.Info("軸ロックの中継を停止しました")
		close(done)
	}()

	for {
		select {
		case <-stop:
			return

		case err := <-readErr:
			s.logger.WithError(err).Error("マウスからの読み込みに失敗しました")
			s.statusMutex.Lock()
			if s.running && s.stopChan == stop {
				s.running = false
			}
			s.statusMutex.Unlock()
			return

		case <-s.updateConfig:
			s.statusMutex.RLock()
			cfg := s.cfg
			s.statusMutex.RUnlock()
			next := s.newClamper(cfg.Clamper)
			if prev := s.clamper.Swap(next); prev != nil {
				prev.Close()
			}
			r.setClamper(next)
			s.logger.Info("クランパーの設定を更新しました")

		case ev := <-events:
			if err := r.handle(ev); err != nil {
				s.logger.WithError(err).Warn("仮想マウスへの書き込みに失敗しました")
			}
		}
	}
}

// readEvents はマウスからイベントを読み続け、チャネルへ送る
func readEvents(mouse features.Mouse, events chan<- event.Event, readErr chan<- error, done <-chan struct{}) {
	for {
		ev, err := mouse.ReadEvent()
		if err != nil {
			select {
			case readErr <- err:
			case <-done:
			}
			return
		}
		select {
		case events <- ev:
		case <-done:
			return
		}
	}
}

// selectMouse は優先マウス、なければ最初に見つかったマウスを返す
func selectMouse(devices []features.Device, preferred string) *features.Device {
	mice := features.Mice(devices)
	if len(mice) == 0 {
		return nil
	}
	if preferred != "" {
		for i := range mice {
			if mice[i].Name == preferred {
				return &mice[i]
			}
		}
	}
	return &mice[0]
}

// errRelayStopped は外部要因で中継ループが終了したことを示す
var errRelayStopped = errors.New("中継ループが停止しました")
