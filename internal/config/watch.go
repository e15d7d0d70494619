package config

import (
	"context"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	log "github.com/sirupsen/logrus"
)

// reloadDebounce はエディタの連続書き込みをまとめる待ち時間
const reloadDebounce = 200 * time.Millisecond

// Watch は設定ファイルの変更を監視し、読み込みに成功するたびに onChange を呼ぶ
// 解析や検証に失敗した設定はログに出して無視する。ctxが終了するまでブロックする
func Watch(ctx context.Context, configPath string, onChange func(*Config)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	// アトミックな置き換え(rename)にも追従するためディレクトリを監視する
	if err := watcher.Add(filepath.Dir(configPath)); err != nil {
		return err
	}

	logger := log.WithField("path", configPath)
	target := filepath.Clean(configPath)
	timer := time.NewTimer(reloadDebounce)
	timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case <-timer.C:
			cfg, err := LoadConfig(configPath)
			if err != nil {
				logger.WithError(err).Warn("設定ファイルの再読み込みに失敗しました。現在の設定を維持します")
				continue
			}
			logger.Info("設定ファイルを再読み込みしました")
			onChange(cfg)

		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != target {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			timer.Reset(reloadDebounce)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.WithError(err).Warn("設定ファイル監視エラー")
		}
	}
}
