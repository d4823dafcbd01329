//go:build integration
// +build integration

package integration

import (
	"fmt"
	"testing"
	"time"

	"github.com/driftwatch/backend/test/integration/framework"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBackfillFlow(t *testing.T) {
	framework.RequireDaemonBinary(t)

	daemon, err := framework.NewTestDaemon(framework.BinaryPath, "backfill", framework.DaemonConfig{})
	require.NoError(t, err)
	require.NoError(t, daemon.Start())
	defer daemon.Stop()

	for i := 1; i <= 3; i++ {
		require.NoError(t, framework.SeedConversation(
			daemon.SourceDBPath(),
			fmt.Sprintf("conv-%d", i),
			framework.ConversationTexts(8, fmt.Sprintf("topic%d", i))))
	}

	client := framework.NewClient(daemon.BaseURL())

	result, err := client.Backfill(0, true)
	require.NoError(t, err)
	assert.Equal(t, 3, result.Processed)
	assert.Zero(t, result.Skipped)
	assert.Zero(t, result.Errors)

	// 再跑一遍：已有报告的会话全部跳过
	result, err = client.Backfill(0, true)
	require.NoError(t, err)
	assert.Zero(t, result.Processed)
	assert.Equal(t, 3, result.Skipped)

	for i := 1; i <= 3; i++ {
		report, err := client.GetReport(fmt.Sprintf("conv-%d", i))
		require.NoError(t, err)
		assert.NotNil(t, report)
	}
}

func TestQueueFlow(t *testing.T) {
	framework.RequireDaemonBinary(t)

	daemon, err := framework.NewTestDaemon(framework.BinaryPath, "queue", framework.DaemonConfig{})
	require.NoError(t, err)
	require.NoError(t, daemon.Start())
	defer daemon.Stop()

	require.NoError(t, framework.SeedConversation(
		daemon.SourceDBPath(), "conv-queued", framework.ConversationTexts(8, "grafana")))

	client := framework.NewClient(daemon.BaseURL())

	stats, err := client.QueueStats()
	require.NoError(t, err)
	assert.True(t, stats.WorkerRunning)

	require.NoError(t, client.Enqueue("conv-queued", 5))

	// 后台 worker 在下一轮轮询消化队列
	require.Eventually(t, func() bool {
		stats, err := client.QueueStats()
		return err == nil && stats.Stats.CompletedCount == 1
	}, 15*time.Second, 200*time.Millisecond)

	report, err := client.GetReport("conv-queued")
	require.NoError(t, err)
	assert.NotNil(t, report)
}

func TestResetFailedEmptyQueue(t *testing.T) {
	framework.RequireDaemonBinary(t)

	daemon, err := framework.NewTestDaemon(framework.BinaryPath, "reset-failed", framework.DaemonConfig{})
	require.NoError(t, err)
	require.NoError(t, daemon.Start())
	defer daemon.Stop()

	client := framework.NewClient(daemon.BaseURL())

	count, err := client.ResetFailed()
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestWatcherTriggersAnalysis(t *testing.T) {
	framework.RequireDaemonBinary(t)

	// 轮询间隔拉长到 1 小时，确认分析由文件变更监听驱动
	daemon, err := framework.NewTestDaemon(framework.BinaryPath, "watch", framework.DaemonConfig{
		WatchEnabled: true,
		PollInterval: time.Hour,
	})
	require.NoError(t, err)
	require.NoError(t, daemon.Start())
	defer daemon.Stop()

	client := framework.NewClient(daemon.BaseURL())

	// 守护进程启动后写入新会话，触发 fsnotify → 防抖 → 增量扫描
	require.NoError(t, framework.SeedConversation(
		daemon.SourceDBPath(), "conv-watched", framework.ConversationTexts(8, "prometheus")))

	require.Eventually(t, func() bool {
		report, err := client.GetReport("conv-watched")
		return err == nil && report != nil
	}, 30*time.Second, 500*time.Millisecond)
}
