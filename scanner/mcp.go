package scanner

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// RegisterMCP registers the scanner tools on an MCP server so an LLM can
// launch scans and read results.
func (o *Orchestrator) RegisterMCP(srv *mcp.Server) {
	o.registerScanStartTool(srv)
	o.registerScanStatusTool(srv)
	o.registerFindingsListTool(srv)
	o.registerScoreGetTool(srv)
	o.registerReportGetTool(srv)
}

// inputSchema builds a JSON Schema object with type "object".
func inputSchema(properties map[string]any, required []string) map[string]any {
	s := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		s["required"] = required
	}
	return s
}

// addTool wires decode → endpoint → JSON text content with uniform error
// handling for every scanner tool.
func addTool[Req any](srv *mcp.Server, tool *mcp.Tool, endpoint func(context.Context, *Req) (any, error)) {
	srv.AddTool(tool, func(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var r Req
		if err := json.Unmarshal(req.Params.Arguments, &r); err != nil {
			var res mcp.CallToolResult
			res.SetError(fmt.Errorf("invalid arguments: %w", err))
			return &res, nil
		}

		resp, err := endpoint(ctx, &r)
		if err != nil {
			var res mcp.CallToolResult
			res.SetError(errors.New(err.Error()))
			return &res, nil
		}

		data, err := json.Marshal(resp)
		if err != nil {
			var res mcp.CallToolResult
			res.SetError(fmt.Errorf("marshal: %w", err))
			return &res, nil
		}
		return &mcp.CallToolResult{
			Content: []mcp.Content{&mcp.TextContent{Text: string(data)}},
		}, nil
	})
}

// --- a11y_scan_start ---

type scanStartRequest struct {
	URL      string `json:"url"`
	MaxDepth int    `json:"max_depth,omitempty"`
	MaxPages int    `json:"max_pages,omitempty"`
}

func (o *Orchestrator) registerScanStartTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "a11y_scan_start",
		Description: "Start an accessibility scan of a website. Returns the scan id; poll a11y_scan_status for progress.",
		InputSchema: inputSchema(map[string]any{
			"url":       map[string]any{"type": "string", "description": "Entry URL to scan (http/https)"},
			"max_depth": map[string]any{"type": "integer", "description": "Crawl depth limit (default: configured)"},
			"max_pages": map[string]any{"type": "integer", "description": "Page budget (default: configured)"},
		}, []string{"url"}),
	}

	addTool(srv, tool, func(ctx context.Context, r *scanStartRequest) (any, error) {
		id, err := o.StartScan(ctx, r.URL, r.MaxDepth, r.MaxPages)
		if err != nil {
			return nil, err
		}
		return map[string]string{"scan_id": id}, nil
	})
}

// --- a11y_scan_status ---

type scanStatusRequest struct {
	ScanID string `json:"scan_id"`
}

func (o *Orchestrator) registerScanStatusTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "a11y_scan_status",
		Description: "Get the current status and progress of a scan.",
		InputSchema: inputSchema(map[string]any{
			"scan_id": map[string]any{"type": "string", "description": "Scan id from a11y_scan_start"},
		}, []string{"scan_id"}),
	}

	addTool(srv, tool, func(ctx context.Context, r *scanStatusRequest) (any, error) {
		// Prefer the live state; fall back to the durable record for scans
		// already evicted from the broadcaster.
		if st, ok := o.bcast.Current(r.ScanID); ok {
			return st, nil
		}
		sc, err := o.store.GetScan(ctx, r.ScanID)
		if err != nil {
			return nil, err
		}
		if sc == nil {
			return nil, fmt.Errorf("scan %s not found", r.ScanID)
		}
		return sc, nil
	})
}

// --- a11y_findings_list ---

type findingsListRequest struct {
	ScanID string `json:"scan_id"`
}

func (o *Orchestrator) registerFindingsListTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "a11y_findings_list",
		Description: "List the accessibility findings of a scan, most severe first.",
		InputSchema: inputSchema(map[string]any{
			"scan_id": map[string]any{"type": "string", "description": "Scan id"},
		}, []string{"scan_id"}),
	}

	addTool(srv, tool, func(ctx context.Context, r *findingsListRequest) (any, error) {
		sc, err := o.store.GetScan(ctx, r.ScanID)
		if err != nil {
			return nil, err
		}
		if sc == nil {
			return nil, fmt.Errorf("scan %s not found", r.ScanID)
		}
		return o.store.ListFindings(ctx, r.ScanID)
	})
}

// --- a11y_score_get ---

type scoreGetRequest struct {
	ScanID string `json:"scan_id"`
}

func (o *Orchestrator) registerScoreGetTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "a11y_score_get",
		Description: "Get the POUR category scores, compliance flags, and trend for a completed scan.",
		InputSchema: inputSchema(map[string]any{
			"scan_id": map[string]any{"type": "string", "description": "Scan id"},
		}, []string{"scan_id"}),
	}

	addTool(srv, tool, func(ctx context.Context, r *scoreGetRequest) (any, error) {
		score, err := o.store.GetScore(ctx, r.ScanID)
		if err != nil {
			return nil, err
		}
		if score == nil {
			return nil, fmt.Errorf("no score for scan %s (not completed yet?)", r.ScanID)
		}
		return score, nil
	})
}

// --- a11y_report_get ---

type reportGetRequest struct {
	ScanID string `json:"scan_id"`
}

func (o *Orchestrator) registerReportGetTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "a11y_report_get",
		Description: "Get the full report for a scan: score set, top-5 quick wins, top-10 issues by legal risk, and all findings.",
		InputSchema: inputSchema(map[string]any{
			"scan_id": map[string]any{"type": "string", "description": "Scan id"},
		}, []string{"scan_id"}),
	}

	addTool(srv, tool, func(ctx context.Context, r *reportGetRequest) (any, error) {
		return o.BuildReport(ctx, r.ScanID)
	})
}
