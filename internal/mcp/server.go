package mcp

import (
	"context"
	"log/slog"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/rpggio/tallyroom/internal/domain/activity"
	"github.com/rpggio/tallyroom/internal/domain/counter"
)

// CounterService defines room operations needed by MCP.
type CounterService interface {
	Get(ctx context.Context, roomKey string) (*counter.RoomState, error)
	ButtonState(ctx context.Context, roomKey string) (counter.ButtonState, error)
	Increment(ctx context.Context, roomKey, actor string) (*counter.RoomState, error)
	DeleteEntry(ctx context.Context, roomKey, entryID string) (*counter.RoomState, error)
}

// ActivityService defines activity operations needed by MCP.
type ActivityService interface {
	GetRecentActivity(ctx context.Context, roomKey string, opts activity.ListActivityOptions) ([]activity.ActivityEntry, error)
}

// Config contains server configuration.
type Config struct {
	Counter  CounterService
	Activity ActivityService
	// DefaultRoom is used by tool calls that omit access_code.
	DefaultRoom string
	Logger      *slog.Logger
}

// NewServer creates and configures an MCP server with all tools and middleware.
func NewServer(cfg Config) *sdkmcp.Server {
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.DiscardHandler)
	}
	server := sdkmcp.NewServer(&sdkmcp.Implementation{
		Name:    "tallyroom",
		Version: "0.1.0",
	}, &sdkmcp.ServerOptions{
		Instructions: serverInstructions,
		Logger:       cfg.Logger,
	})

	registerDocResources(server)

	server.AddReceivingMiddleware(trafficLoggingMiddleware(cfg.Logger, "inbound"))
	server.AddSendingMiddleware(trafficLoggingMiddleware(cfg.Logger, "outbound"))

	registerTools(server, cfg)

	return server
}
