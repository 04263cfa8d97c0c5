package scanner

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/a11yscan/scanq"
)

var testImpl = &mcp.Implementation{Name: "a11yscan-test", Version: "0.1.0"}

// mcpSession registers the scanner tools and returns a connected client
// session driving them over an in-memory transport.
func mcpSession(t *testing.T, env *testEnv) *mcp.ClientSession {
	t.Helper()

	srv := mcp.NewServer(testImpl, nil)
	env.o.RegisterMCP(srv)

	serverT, clientT := mcp.NewInMemoryTransports()
	ctx := context.Background()

	go func() {
		_ = srv.Run(ctx, serverT)
	}()

	client := mcp.NewClient(testImpl, nil)
	session, err := client.Connect(ctx, clientT, nil)
	if err != nil {
		t.Fatalf("client connect: %v", err)
	}
	t.Cleanup(func() { session.Close() })
	return session
}

// callTool invokes a tool and returns the JSON text from the first TextContent.
func callTool(t *testing.T, session *mcp.ClientSession, name string, args any) string {
	t.Helper()
	result, err := session.CallTool(context.Background(), &mcp.CallToolParams{
		Name:      name,
		Arguments: args,
	})
	if err != nil {
		t.Fatalf("CallTool(%s): %v", name, err)
	}
	var text string
	for _, c := range result.Content {
		if tc, ok := c.(*mcp.TextContent); ok {
			text = tc.Text
			break
		}
	}
	if result.IsError {
		t.Fatalf("CallTool(%s) tool error: %s", name, text)
	}
	if text != "" {
		return text
	}
	t.Fatalf("CallTool(%s): no text content", name)
	return ""
}

func TestMCPScanTools(t *testing.T) {
	fetcher := &fakeFetcher{pages: map[string]string{
		rootURL: pageHTML("Home"),
	}}
	env := newTestEnv(t, fetcher, nil)
	env.run(t, scanq.Request{ScanID: "s1", URL: rootURL, MaxDepth: 1, MaxPages: 5, MaxDuration: time.Minute})

	session := mcpSession(t, env)

	var status struct {
		Status   string `json:"status"`
		Progress int    `json:"progress"`
	}
	out := callTool(t, session, "a11y_scan_status", map[string]any{"scan_id": "s1"})
	if err := json.Unmarshal([]byte(out), &status); err != nil {
		t.Fatal(err)
	}
	if status.Status != "completed" || status.Progress != 100 {
		t.Errorf("status = %+v, want completed/100", status)
	}

	var fs []struct {
		RuleID   string `json:"rule_id"`
		Severity int    `json:"severity"`
	}
	out = callTool(t, session, "a11y_findings_list", map[string]any{"scan_id": "s1"})
	if err := json.Unmarshal([]byte(out), &fs); err != nil {
		t.Fatal(err)
	}
	if len(fs) == 0 {
		t.Fatal("no findings over MCP")
	}

	var score struct {
		Overall int    `json:"overall"`
		Trend   string `json:"trend"`
	}
	out = callTool(t, session, "a11y_score_get", map[string]any{"scan_id": "s1"})
	if err := json.Unmarshal([]byte(out), &score); err != nil {
		t.Fatal(err)
	}
	if score.Trend != "stable" {
		t.Errorf("trend = %q, want stable for a first scan", score.Trend)
	}

	var report struct {
		QuickWins []json.RawMessage `json:"quick_wins"`
		TopIssues []json.RawMessage `json:"top_issues"`
	}
	out = callTool(t, session, "a11y_report_get", map[string]any{"scan_id": "s1"})
	if err := json.Unmarshal([]byte(out), &report); err != nil {
		t.Fatal(err)
	}
	if len(report.TopIssues) == 0 {
		t.Error("report has no top issues despite findings")
	}
}

func TestMCPScanStartEnqueues(t *testing.T) {
	env := newTestEnv(t, &fakeFetcher{}, nil)
	session := mcpSession(t, env)

	out := callTool(t, session, "a11y_scan_start", map[string]any{"url": rootURL})
	var resp struct {
		ScanID string `json:"scan_id"`
	}
	if err := json.Unmarshal([]byte(out), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.ScanID == "" {
		t.Fatal("empty scan id")
	}

	n, err := env.queue.Len(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("queue length = %d, want 1", n)
	}
}

func TestMCPUnknownScan(t *testing.T) {
	env := newTestEnv(t, &fakeFetcher{}, nil)
	session := mcpSession(t, env)

	result, err := session.CallTool(context.Background(), &mcp.CallToolParams{
		Name:      "a11y_score_get",
		Arguments: map[string]any{"scan_id": "nope"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if !result.IsError {
		t.Error("unknown scan should surface a tool error")
	}
}
