//go:build integration
// +build integration

// TestDaemon 管理独立 driftwatch-backend 进程的启动与关闭
package framework

import (
	"fmt"
	"net"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"time"
)

// TestDaemon 测试守护进程
// 每个实例持有隔离的数据目录：分析库、会话源库与生成的配置文件都在其中
type TestDaemon struct {
	Name     string // 角色名称（如 "primary"）
	HTTPPort int    // HTTP 端口（MCP SSE 共用）
	DataDir  string // 数据目录（隔离）

	cmd     *exec.Cmd
	baseURL string
}

// DaemonConfig 守护进程配置选项
type DaemonConfig struct {
	// WatchEnabled 启用会话源库文件变更监听
	WatchEnabled bool

	// PollInterval 后台 worker 轮询间隔，零值用 500ms
	PollInterval time.Duration
}

// NewTestDaemon 创建测试守护进程
func NewTestDaemon(binaryPath, name string, cfg DaemonConfig) (*TestDaemon, error) {
	httpPort, err := getFreePort()
	if err != nil {
		return nil, fmt.Errorf("failed to allocate HTTP port: %w", err)
	}

	// 创建隔离的数据目录
	dataDir, err := os.MkdirTemp("", fmt.Sprintf("driftwatch-test-%s-", name))
	if err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	d := &TestDaemon{
		Name:     name,
		HTTPPort: httpPort,
		DataDir:  dataDir,
		baseURL:  fmt.Sprintf("http://localhost:%d", httpPort),
	}

	// 会话源库必须在守护进程启动前带好表结构
	if err := CreateSourceDB(d.SourceDBPath()); err != nil {
		return nil, fmt.Errorf("failed to create source database: %w", err)
	}

	if err := d.writeConfig(cfg); err != nil {
		return nil, fmt.Errorf("failed to write config: %w", err)
	}

	d.cmd = buildDaemonCmd(binaryPath, d.configPath())
	return d, nil
}

// NewTestDaemonWithDataDir 复用已有数据目录创建守护进程（用于重启场景）
func NewTestDaemonWithDataDir(binaryPath, name, dataDir string, httpPort int) (*TestDaemon, error) {
	d := &TestDaemon{
		Name:     name,
		HTTPPort: httpPort,
		DataDir:  dataDir,
		baseURL:  fmt.Sprintf("http://localhost:%d", httpPort),
	}

	d.cmd = buildDaemonCmd(binaryPath, d.configPath())
	return d, nil
}

// buildDaemonCmd 构建守护进程命令，配置经 DRIFTWATCH_CONFIG 注入
func buildDaemonCmd(binaryPath, configPath string) *exec.Cmd {
	cmd := exec.Command(binaryPath)
	cmd.Env = append(os.Environ(),
		fmt.Sprintf("DRIFTWATCH_CONFIG=%s", configPath),
		"GIN_MODE=test",
	)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	return cmd
}

// writeConfig 生成守护进程配置文件
// poll_interval 以纳秒整数写入
func (d *TestDaemon) writeConfig(cfg DaemonConfig) error {
	pollInterval := cfg.PollInterval
	if pollInterval <= 0 {
		pollInterval = 500 * time.Millisecond
	}

	content := fmt.Sprintf(`server:
  http_port: ":%d"
database:
  path: %q
source:
  conversation_db_path: %q
  watch_enabled: %v
batch:
  poll_interval: %d
  batch_size: 5
`,
		d.HTTPPort,
		filepath.Join(d.DataDir, "driftwatch.db"),
		d.SourceDBPath(),
		cfg.WatchEnabled,
		pollInterval.Nanoseconds(),
	)

	return os.WriteFile(d.configPath(), []byte(content), 0644)
}

// configPath 配置文件路径
func (d *TestDaemon) configPath() string {
	return filepath.Join(d.DataDir, "config.yaml")
}

// SourceDBPath 会话源库路径
func (d *TestDaemon) SourceDBPath() string {
	return filepath.Join(d.DataDir, "conversations.db")
}

// Start 启动守护进程并等待就绪
func (d *TestDaemon) Start() error {
	if err := d.cmd.Start(); err != nil {
		return fmt.Errorf("failed to start daemon %s: %w", d.Name, err)
	}

	// 等待 health 端点就绪
	return d.waitForReady(30 * time.Second)
}

// Stop 停止守护进程并清理数据目录
func (d *TestDaemon) Stop() error {
	return d.StopWithCleanup(true)
}

// StopWithCleanup 停止守护进程，可选择是否清理数据目录
func (d *TestDaemon) StopWithCleanup(cleanup bool) error {
	if d.cmd.Process != nil {
		// 发送关闭信号
		_ = d.cmd.Process.Signal(os.Interrupt)

		// 等待进程退出（最多 5 秒）
		done := make(chan error, 1)
		go func() {
			done <- d.cmd.Wait()
		}()

		select {
		case <-done:
			// 正常退出
		case <-time.After(5 * time.Second):
			// 强制杀进程
			_ = d.cmd.Process.Kill()
			<-done
		}
	}

	// 可选清理数据目录
	if cleanup {
		return os.RemoveAll(d.DataDir)
	}
	return nil
}

// BaseURL 返回 HTTP 基础 URL
func (d *TestDaemon) BaseURL() string {
	return d.baseURL
}

// waitForReady 等待守护进程 health 端点就绪
func (d *TestDaemon) waitForReady(timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	client := &http.Client{Timeout: 2 * time.Second}

	for time.Now().Before(deadline) {
		resp, err := client.Get(d.baseURL + "/health")
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return nil
			}
		}
		time.Sleep(200 * time.Millisecond)
	}

	return fmt.Errorf("daemon %s failed to become ready within %v", d.Name, timeout)
}

// getFreePort 获取一个空闲的 TCP 端口
func getFreePort() (int, error) {
	listener, err := net.Listen("tcp", ":0")
	if err != nil {
		return 0, err
	}
	defer listener.Close()
	return listener.Addr().(*net.TCPAddr).Port, nil
}
