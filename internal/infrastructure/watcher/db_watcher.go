package watcher

import (
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/driftwatch/backend/internal/infrastructure/log"
)

// DefaultDebounceDelay 默认防抖延迟
// sqlite 写入会触发连串的 WRITE 事件，合并后再唤醒扫描
const DefaultDebounceDelay = 2 * time.Second

// DBWatcher 会话库文件监听器
// 监听外部会话 sqlite 文件（含 -wal/-shm 伴随文件）的写入，
// 防抖后触发批处理器的增量扫描
type DBWatcher struct {
	dbPath        string
	debounceDelay time.Duration
	onChange      func()
	watcher       *fsnotify.Watcher
	logger        *slog.Logger

	// 防抖相关
	debounceTimer *time.Timer
	debounceMu    sync.Mutex

	// 控制
	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewDBWatcher 创建会话库监听器
// onChange 在防抖窗口结束后被调用（单独的 goroutine）
func NewDBWatcher(dbPath string, debounceDelay time.Duration, onChange func()) (*DBWatcher, error) {
	if debounceDelay <= 0 {
		debounceDelay = DefaultDebounceDelay
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	return &DBWatcher{
		dbPath:        dbPath,
		debounceDelay: debounceDelay,
		onChange:      onChange,
		watcher:       watcher,
		logger:        log.NewModuleLogger("watcher", "db_watcher"),
		stopCh:        make(chan struct{}),
	}, nil
}

// Start 启动文件监听
// 监听会话库所在目录，按文件名前缀过滤事件
func (w *DBWatcher) Start() error {
	dir := filepath.Dir(w.dbPath)
	if err := w.watcher.Add(dir); err != nil {
		return err
	}

	w.wg.Add(1)
	go w.watchLoop()

	w.logger.Info("Conversation database watcher started",
		"path", w.dbPath,
		"debounce", w.debounceDelay,
	)

	return nil
}

// Stop 停止文件监听
func (w *DBWatcher) Stop() {
	close(w.stopCh)
	w.watcher.Close()
	w.wg.Wait()

	w.debounceMu.Lock()
	if w.debounceTimer != nil {
		w.debounceTimer.Stop()
	}
	w.debounceMu.Unlock()

	w.logger.Info("Conversation database watcher stopped")
}

// watchLoop 事件监听循环
func (w *DBWatcher) watchLoop() {
	defer w.wg.Done()

	for {
		select {
		case <-w.stopCh:
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleFsEvent(event)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error("Watcher error", "error", err)
		}
	}
}

// handleFsEvent 处理文件系统事件（带防抖）
func (w *DBWatcher) handleFsEvent(event fsnotify.Event) {
	if !w.isDatabaseFile(event.Name) {
		return
	}
	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
		return
	}

	w.debounceMu.Lock()
	defer w.debounceMu.Unlock()

	if w.debounceTimer != nil {
		w.debounceTimer.Stop()
	}

	w.debounceTimer = time.AfterFunc(w.debounceDelay, func() {
		w.logger.Debug("Conversation database changed, triggering scan")
		w.onChange()
	})
}

// isDatabaseFile 是否为会话库文件或其 -wal/-shm 伴随文件
func (w *DBWatcher) isDatabaseFile(path string) bool {
	return strings.HasPrefix(filepath.Base(path), filepath.Base(w.dbPath))
}
