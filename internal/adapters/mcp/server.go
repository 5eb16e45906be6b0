// Package mcpadapter exposes the answer pipeline as an MCP tool.
package mcpadapter

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kirillkom/grounded-qa/internal/core/domain"
	"github.com/kirillkom/grounded-qa/internal/core/ports"
)

const (
	ServerName = "grounded-qa"
	Version    = "1.0.0"
	ToolAsk    = "ask"
)

type Server struct {
	query       ports.QueryService
	defaultTopK int
	logger      *slog.Logger
}

func New(query ports.QueryService, defaultTopK int, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{query: query, defaultTopK: defaultTopK, logger: logger}
}

// MCPServer builds an MCP server with the ask tool registered.
func (s *Server) MCPServer() *server.MCPServer {
	mcpServer := server.NewMCPServer(
		ServerName,
		Version,
		server.WithToolCapabilities(false),
		server.WithInstructions("Answers questions strictly from the indexed document corpus. Answers that cannot be grounded are refused."),
	)
	mcpServer.AddTool(askTool(), s.HandleAsk)
	return mcpServer
}

// ServeStdio blocks serving MCP over stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.MCPServer())
}

func askTool() mcp.Tool {
	return mcp.NewTool(ToolAsk,
		mcp.WithDescription("Answer a question using only evidence retrieved from the document corpus. Returns the answer, its confidence and citations."),
		mcp.WithString("question",
			mcp.Required(),
			mcp.Description("Natural language question"),
		),
		mcp.WithNumber("top_k",
			mcp.Description("Number of evidence passages to retrieve"),
			mcp.Min(1),
			mcp.Max(100),
		),
		mcp.WithString("domain",
			mcp.Description("Knowledge domain profile, for example medical or billing"),
		),
		mcp.WithObject("filters",
			mcp.Description("Exact-match metadata filters, string values only"),
		),
	)
}

type askResponse struct {
	Answer             string            `json:"answer"`
	Confidence         string            `json:"confidence"`
	Citations          []domain.Citation `json:"citations"`
	IsRefusal          bool              `json:"is_refusal"`
	NeedsClarification bool              `json:"needs_clarification"`
}

func (s *Server) HandleAsk(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	question, err := request.RequireString("question")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	filters, err := parseFilters(request.GetArguments()["filters"])
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	topK := request.GetInt("top_k", s.defaultTopK)

	requestID := uuid.NewString()
	outcome := s.query.Run(ctx, domain.QueryRequest{
		RequestID: requestID,
		Text:      question,
		TopK:      topK,
		Filters:   filters,
		Domain:    strings.TrimSpace(request.GetString("domain", "")),
	})
	if outcome.Kind == domain.OutcomeFailed {
		s.logger.Error("mcp_ask_failed", "request_id", requestID, "error", outcome.Err)
		if domain.IsKind(outcome.Err, domain.ErrRetrievalUnavailable) {
			return mcp.NewToolResultError("document search is temporarily unavailable, please try again"), nil
		}
		return mcp.NewToolResultError("the question could not be answered"), nil
	}

	res := outcome.Result
	payload, err := json.Marshal(askResponse{
		Answer:             res.Answer,
		Confidence:         res.Confidence.String(),
		Citations:          res.Citations,
		IsRefusal:          res.IsRefusal,
		NeedsClarification: res.NeedsClarification,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal ask response: %w", err)
	}
	return mcp.NewToolResultText(string(payload)), nil
}

func parseFilters(raw any) (domain.SearchFilter, error) {
	if raw == nil {
		return nil, nil
	}
	obj, ok := raw.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("filters must be an object")
	}
	filters := make(domain.SearchFilter, len(obj))
	for key, value := range obj {
		str, ok := value.(string)
		if !ok {
			return nil, fmt.Errorf("filter %q must be a string", key)
		}
		filters[key] = str
	}
	return filters, nil
}
