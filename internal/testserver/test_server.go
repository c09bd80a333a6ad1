package testserver

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/rpggio/tallyroom/internal/domain/activity"
	"github.com/rpggio/tallyroom/internal/domain/counter"
	"github.com/rpggio/tallyroom/internal/filestore"
	"github.com/rpggio/tallyroom/internal/mcp"
	"github.com/rpggio/tallyroom/internal/metrics"
	"github.com/rpggio/tallyroom/internal/sqlite"
	"github.com/rpggio/tallyroom/internal/transport"
	"github.com/stretchr/testify/require"
)

// DefaultRoom is the room requests without an access code land in.
const DefaultRoom = "lobby"

// Clock is a manually advanced time source.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type TestServer struct {
	Server   *httptest.Server
	DB       *sqlite.DB
	Store    *filestore.Store
	Metrics  *metrics.Metrics
	Counter  *counter.Service
	Activity *activity.Service
	Clock    *Clock
	DataDir  string
}

// New starts the full HTTP stack on a temporary data dir and an in-memory
// journal. Options are applied to the counter service after the defaults.
func New(t *testing.T, opts ...counter.Option) *TestServer {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := sqlite.New(dsn)
	require.NoError(t, err)
	require.NoError(t, db.RunMigrations())

	dataDir := t.TempDir()
	store, err := filestore.New(dataDir, nil)
	require.NoError(t, err)

	clock := &Clock{now: time.UnixMilli(1_700_000_000_000)}
	registry := metrics.New()
	activitySvc := activity.NewService(sqlite.NewActivityRepository(db), nil)
	counterSvc := counter.NewService(store, append([]counter.Option{
		counter.WithClock(clock.Now),
		counter.WithJournal(activitySvc),
		counter.WithObserver(registry),
	}, opts...)...)

	mcpServer := mcp.NewServer(mcp.Config{
		Counter:     counterSvc,
		Activity:    activitySvc,
		DefaultRoom: DefaultRoom,
	})
	mcpHandler := sdkmcp.NewStreamableHTTPHandler(
		func(*http.Request) *sdkmcp.Server { return mcpServer },
		nil,
	)

	server := httptest.NewServer(transport.NewServer(transport.Config{
		Counter:     counterSvc,
		Activity:    activitySvc,
		DefaultRoom: DefaultRoom,
		Metrics:     registry.Handler(),
		MCP:         mcpHandler,
	}))

	t.Cleanup(func() {
		server.Close()
		_ = db.Close()
	})

	return &TestServer{
		Server:   server,
		DB:       db,
		Store:    store,
		Metrics:  registry,
		Counter:  counterSvc,
		Activity: activitySvc,
		Clock:    clock,
		DataDir:  dataDir,
	}
}

// URL returns the absolute URL for path.
func (ts *TestServer) URL(path string) string {
	return ts.Server.URL + path
}
