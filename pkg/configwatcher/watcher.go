package configwatcher

import (
	"context"
	"path/filepath"
	"retest_backend/internal/config"
	"retest_backend/pkg/logger"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

type ConfigReloader func(cfg *config.Config)

// WatchConfig 配置文件写入稳定 debounce 后重新加载并交给 reloader，阻塞直到 ctx 结束
func WatchConfig(ctx context.Context, configFile string, debounce time.Duration, reloader ConfigReloader) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	absPath, err := filepath.Abs(configFile)
	if err != nil {
		return err
	}

	// 监听目录而不是文件，编辑器保存时常常是 rename 替换
	if err := watcher.Add(filepath.Dir(absPath)); err != nil {
		return err
	}

	timer := time.NewTimer(debounce)
	if !timer.Stop() {
		<-timer.C
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != absPath {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
				// 防抖处理
				timer.Reset(debounce)
			}
		case <-timer.C:
			newCfg, err := config.LoadConfig(filepath.Dir(absPath))
			if err != nil {
				logger.Log.Error("Failed to reload config", zap.Error(err))
				continue
			}
			logger.Log.Info("Config reloaded", zap.String("file", absPath))
			reloader(newCfg)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Log.Error("Config watcher error", zap.Error(err))
		}
	}
}
