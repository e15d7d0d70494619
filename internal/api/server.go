package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/char5742/keyball-axis-clamper/internal/config"
	"github.com/char5742/keyball-axis-clamper/internal/features"
)

// Server はAPIサーバーを表す構造体
type Server struct {
	server      *http.Server
	addr        net.Addr
	serverMutex sync.Mutex
	cfg         *config.Config
	configPath  string
	mutex       sync.RWMutex
	port        int
	service     *ClampService
	hub         *Hub
	monitor     *features.DeviceMonitor
	logger      *log.Entry
}

// NewServer は新しいAPIサーバーを作成する
// monitorがnilの場合、デバイス一覧は毎回スキャンして取得する
func NewServer(cfg *config.Config, configPath string, service *ClampService, hub *Hub, monitor *features.DeviceMonitor) *Server {
	return &Server{
		cfg:        cfg,
		configPath: configPath,
		port:       cfg.API.Port,
		service:    service,
		hub:        hub,
		monitor:    monitor,
		logger:     log.WithField("component", "api"),
	}
}

// Handler はルーティング済みのハンドラを返す
func (s *Server) Handler() http.Handler {
	router := http.NewServeMux()
	s.setupRoutes(router)
	return router
}

// Start はAPIサーバーを開始し、停止されるまでブロックする
func (s *Server) Start() error {
	srv, ln, err := s.listen()
	if err != nil {
		return err
	}
	return serve(srv, ln)
}

// Run はAPIサーバーを開始し、ctxが終了したら停止する
// 待ち受けはRunが返るまでに必ず閉じられる
func (s *Server) Run(ctx context.Context) error {
	srv, ln, err := s.listen()
	if err != nil {
		return err
	}

	errCh := make(chan error, 1)
	go func() { errCh <- serve(srv, ln) }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		err := s.Stop(shutdownCtx)
		<-errCh
		return err
	}
}

// Stop はAPIサーバーを停止する
func (s *Server) Stop(ctx context.Context) error {
	s.serverMutex.Lock()
	srv := s.server
	s.serverMutex.Unlock()

	if srv == nil {
		return nil
	}
	s.logger.Info("APIサーバーを停止します...")
	return srv.Shutdown(ctx)
}

// Addr は待ち受け中のアドレスを返す。開始前はnil
func (s *Server) Addr() net.Addr {
	s.serverMutex.Lock()
	defer s.serverMutex.Unlock()
	return s.addr
}

// listen はポートを確保し、Stopから参照できるようhttp.Serverを登録する
func (s *Server) listen() (*http.Server, net.Listener, error) {
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", s.port))
	if err != nil {
		return nil, nil, fmt.Errorf("APIサーバーの待ち受けに失敗しました: %w", err)
	}
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	s.serverMutex.Lock()
	s.server = srv
	s.addr = ln.Addr()
	s.serverMutex.Unlock()

	s.logger.WithField("addr", ln.Addr().String()).Info("APIサーバーを開始します")
	return srv, ln, nil
}

// serve はShutdownによる終了をエラーとして扱わない
func serve(srv *http.Server, ln net.Listener) error {
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// GetConfig は現在の設定を返す
func (s *Server) GetConfig() *config.Config {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.cfg
}

// UpdateConfig は設定を更新し、実行中のサービスへ反映する
func (s *Server) UpdateConfig(cfg *config.Config) {
	s.mutex.Lock()
	s.cfg = cfg
	s.mutex.Unlock()

	if s.service != nil {
		s.service.UpdateConfig(cfg)
	}
}

func (s *Server) devices() ([]features.Device, error) {
	if s.monitor != nil {
		return s.monitor.GetConnectedDevices(), nil
	}
	return features.ScanDevices()
}

// writeJSON はJSONレスポンスを書き込む
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			log.WithError(err).Warn("JSONエンコードエラー")
		}
	}
}

// writeError はエラーレスポンスを書き込む
func writeError(w http.ResponseWriter, status int, message string) {
	response := map[string]string{"error": message}
	writeJSON(w, status, response)
}
