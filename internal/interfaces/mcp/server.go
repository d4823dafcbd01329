package mcp

import (
	"net/http"

	appDiv "github.com/driftwatch/backend/internal/application/divergence"
	domainDiv "github.com/driftwatch/backend/internal/domain/divergence"
	"github.com/driftwatch/backend/internal/infrastructure/log"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// MCPServer MCP 服务器
type MCPServer struct {
	server  *mcp.Server
	handler http.Handler

	analysisService *appDiv.AnalysisService
	linker          *appDiv.Linker
	queueRepo       domainDiv.QueueRepository
	processor       *appDiv.BatchProcessor
}

// NewServer 创建 MCP 服务器
func NewServer(
	analysisService *appDiv.AnalysisService,
	linker *appDiv.Linker,
	queueRepo domainDiv.QueueRepository,
	processor *appDiv.BatchProcessor,
) *MCPServer {
	// 创建 MCP 服务器实例
	server := mcp.NewServer(
		&mcp.Implementation{
			Name:    "driftwatch-backend",
			Version: "0.1.0",
		},
		nil, // 使用默认能力
	)

	// 创建服务器实例（用于闭包捕获依赖）
	mcpServer := &MCPServer{
		server:          server,
		analysisService: analysisService,
		linker:          linker,
		queueRepo:       queueRepo,
		processor:       processor,
	}

	// 注册工具：analyze_conversation
	mcp.AddTool(server, &mcp.Tool{
		Name: "analyze_conversation",
		Description: `Run topic-divergence analysis on a conversation and return its divergence report and segments.
Parameters:
- conversation_id (string, required): ID of the conversation in the conversation source database.

Returns: overall divergence score, per-dimension component scores, segment list with topic labels, and suggested split points. Returns found=false when the conversation has no messages.`,
	}, mcpServer.analyzeConversationTool)

	// 注册工具：get_divergence_report
	mcp.AddTool(server, &mcp.Tool{
		Name:        "get_divergence_report",
		Description: "Query the stored divergence report for a conversation without re-running analysis. Parameters: conversation_id (string, required). Returns: report object (if found) and found flag.",
	}, mcpServer.getDivergenceReportTool)

	// 注册工具：get_segments
	mcp.AddTool(server, &mcp.Tool{
		Name:        "get_segments",
		Description: "List the topic segments of an analyzed conversation in message order. Parameters: conversation_id (string, required). Returns: segments with start/end indexes, topic labels, summaries, and per-segment divergence scores.",
	}, mcpServer.getSegmentsTool)

	// 注册工具：find_similar_segments
	mcp.AddTool(server, &mcp.Tool{
		Name: "find_similar_segments",
		Description: `Find segments across all conversations that are semantically similar to the given segment.
Parameters:
- segment_id (string, required): Source segment ID
- limit (int, optional): Maximum number of results, default 10
- min_similarity (float, optional): Minimum cosine similarity in [0,1], default 0.3
- exclude_same_conversation (bool, optional): Skip segments from the source conversation, default true

Returns: list of similar segments with cosine similarity scores, ordered by similarity descending.`,
	}, mcpServer.findSimilarSegmentsTool)

	// 注册工具：enqueue_analysis
	mcp.AddTool(server, &mcp.Tool{
		Name:        "enqueue_analysis",
		Description: "Queue a conversation for background divergence analysis instead of analyzing it synchronously. Parameters: conversation_id (string, required); priority (int, optional, higher runs first, default 0). Returns: success status and queue position info.",
	}, mcpServer.enqueueAnalysisTool)

	// 注册工具：get_queue_stats
	mcp.AddTool(server, &mcp.Tool{
		Name:        "get_queue_stats",
		Description: "Get analysis queue statistics: pending, processing, completed, and failed counts, plus whether the background worker is running. No parameters required.",
	}, mcpServer.getQueueStatsTool)

	// 创建 SSE Handler
	handler := mcp.NewSSEHandler(
		func(r *http.Request) *mcp.Server {
			// 每个请求返回同一个服务器实例
			return server
		},
		nil, // SSEOptions，使用默认值
	)

	mcpServer.handler = handler
	return mcpServer
}

// GetHandler 获取 HTTP Handler（用于集成到 HTTP 服务器）
func (s *MCPServer) GetHandler() http.Handler {
	return s.handler
}

// Start 启动服务器（HTTP/SSE 模式）
// 注意：MCP 服务器通过 HTTP Handler 提供服务，不需要单独启动
func (s *MCPServer) Start() error {
	log.NewModuleLogger("mcp", "server").Info("MCP server ready (HTTP/SSE mode)")
	return nil
}

// Stop 停止服务器
func (s *MCPServer) Stop() error {
	// HTTP/SSE 模式下，由 HTTP 服务器统一管理生命周期
	return nil
}
