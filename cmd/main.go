package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/pkg/browser"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/char5742/keyball-axis-clamper/internal/api"
	"github.com/char5742/keyball-axis-clamper/internal/config"
	"github.com/char5742/keyball-axis-clamper/internal/features"
	"github.com/char5742/keyball-axis-clamper/internal/logging"
)

func main() {
	// コマンドライン引数の解析
	useAPI := flag.Bool("api", false, "APIサーバーモードで起動します")
	configPath := flag.String("config", "", "設定ファイルのパス (指定しない場合はデフォルトパスを使用)")
	port := flag.Int("port", 0, "APIサーバーのポート番号 (0の場合は設定ファイルの値)")
	openBrowser := flag.Bool("open", false, "起動後にブラウザでクランパーの状態を開きます (-api 指定時のみ)")
	logLevel := flag.String("log-level", "", "ログレベル (指定しない場合は設定ファイルの値)")
	flag.Parse()

	cfgPath := resolveConfigPath(*configPath)
	cfg := loadConfig(cfgPath)
	applyFlags(cfg, *port, *logLevel)
	setupLogging(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, cfgPath, *useAPI, *openBrowser, *port, *logLevel); err != nil {
		log.WithError(err).Error("終了します")
		os.Exit(1)
	}
	log.Info("シャットダウンしました")
}

func run(ctx context.Context, cfg *config.Config, cfgPath string, useAPI, openBrowser bool, port int, logLevel string) error {
	// デバイスの抜き差しを監視する。失敗しても起動時のスキャンで動作は続ける
	monitor, err := features.NewDeviceMonitor(features.DefaultByIDDir)
	if err != nil {
		log.WithError(err).Warn("デバイスモニターを作成できませんでした")
		monitor = nil
	} else {
		if err := monitor.Start(); err != nil {
			return fmt.Errorf("デバイスモニターの起動に失敗しました: %w", err)
		}
		defer monitor.Stop()
	}

	g, gctx := errgroup.WithContext(ctx)

	var hub *api.Hub
	var server *api.Server
	var service *api.ClampService

	if useAPI {
		hub = api.NewHub()
		service = api.NewClampService(cfg, monitor, hub.PublishTransition)
		server = api.NewServer(cfg, cfgPath, service, hub, monitor)

		log.WithField("port", cfg.API.Port).Info("APIサーバーモードで起動します")
		g.Go(func() error {
			hub.Run(gctx)
			return nil
		})
		g.Go(func() error { return server.Run(gctx) })
		g.Go(func() error {
			// マウスが無くてもAPIから後で起動できる
			if err := service.Start(); err != nil {
				log.WithError(err).Warn("中継サービスを起動できませんでした。/api/service/start で再試行できます")
			}
			<-gctx.Done()
			if service.IsRunning() {
				return service.Stop()
			}
			return nil
		})

		if openBrowser {
			url := fmt.Sprintf("http://localhost:%d/api/clamper", cfg.API.Port)
			if err := browser.OpenURL(url); err != nil {
				log.WithError(err).WithField("url", url).Warn("ブラウザを開けませんでした")
			}
		}
	} else {
		log.Info("CLIモードで起動します")
		service = api.NewClampService(cfg, monitor, nil)
		g.Go(func() error { return service.Run(gctx) })
	}

	if cfgPath != "" {
		g.Go(func() error {
			err := config.Watch(gctx, cfgPath, func(next *config.Config) {
				applyFlags(next, port, logLevel)
				setupLogging(next)
				if server != nil {
					server.UpdateConfig(next)
				} else {
					service.UpdateConfig(next)
				}
				log.WithField("path", cfgPath).Info("設定ファイルを再読み込みしました")
			})
			if err != nil {
				// 監視できなくても中継は続ける
				log.WithError(err).Warn("設定ファイルの監視を開始できませんでした")
			}
			return nil
		})
	}

	return g.Wait()
}

// resolveConfigPath は設定ファイルのパスを決定する
func resolveConfigPath(flagPath string) string {
	if flagPath != "" {
		return flagPath
	}
	configDir, err := config.GetDefaultConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(configDir, "config.toml")
}

func loadConfig(path string) *config.Config {
	if path == "" {
		return config.DefaultConfig()
	}
	cfg, err := config.LoadConfig(path)
	if err != nil {
		log.WithError(err).WithField("path", path).Warn("設定ファイルの読み込みに失敗しました。デフォルト設定を使用します")
		return config.DefaultConfig()
	}
	log.WithField("path", path).Info("設定ファイルを読み込みました")
	return cfg
}

// applyFlags はコマンドライン引数で設定を上書きする
func applyFlags(cfg *config.Config, port int, logLevel string) {
	if port > 0 {
		cfg.API.Port = port
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
}

func setupLogging(cfg *config.Config) {
	if err := logging.Setup(cfg.Logging.Level, cfg.Logging.Format, os.Stderr); err != nil {
		log.WithError(err).Warn("ログ設定が不正なため既定の設定を使用します")
	}
}
