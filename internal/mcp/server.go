// Package mcp exposes the auditor over the Model Context Protocol: agents
// can run audits, resolve collected opinions and browse the run archive.
package mcp

import (
	"context"
	"errors"
	"fmt"
	"sync"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"

	"auditor/internal/audit"
	"auditor/internal/config"
	"auditor/internal/logging"
	"auditor/internal/store"
	"auditor/internal/wiring"
)

// DefaultListLimit caps list_runs when the caller gives no limit.
const DefaultListLimit = 20

// Server wraps the MCP SDK server.
type Server struct {
	MCPServer *sdkmcp.Server

	cfg  config.Config
	deps wiring.Deps

	// audits run one at a time; each clones and scans a repository.
	mu sync.Mutex
}

// NewServer creates an MCP server with the audit tools. deps.Store may be
// nil, in which case list_runs and get_run report that no archive exists.
func NewServer(cfg config.Config, deps wiring.Deps) *Server {
	s := &Server{cfg: cfg, deps: deps}
	if s.deps.Logger == nil {
		s.deps.Logger = logging.New("mcp")
	}
	s.MCPServer = sdkmcp.NewServer(
		&sdkmcp.Implementation{Name: "auditor", Version: "dev"},
		nil,
	)
	s.registerTools()
	return s
}

func (s *Server) registerTools() {
	sdkmcp.AddTool(s.MCPServer, &sdkmcp.Tool{
		Name:        "run_audit",
		Description: "Audit a repository and its architecture report. Returns the overall score, the content digest and the written report paths, or the halt reason.",
	}, s.handleRunAudit)

	sdkmcp.AddTool(s.MCPServer, &sdkmcp.Tool{
		Name:        "resolve_opinions",
		Description: "Resolve judge opinions and evidence into per-criterion verdicts with the deterministic rule pipeline. No repository is cloned.",
	}, s.handleResolveOpinions)

	sdkmcp.AddTool(s.MCPServer, &sdkmcp.Tool{
		Name:        "list_runs",
		Description: "List archived audit runs, newest first.",
	}, s.handleListRuns)

	sdkmcp.AddTool(s.MCPServer, &sdkmcp.Tool{
		Name:        "get_run",
		Description: "Get one archived run with its per-criterion verdicts.",
	}, s.handleGetRun)
}

// --- Tool input/output types ---

type runAuditInput struct {
	Target  string `json:"target" jsonschema:"https URL of the repository, or a local directory when allowed"`
	DocPath string `json:"doc_path" jsonschema:"path to the architecture report (pdf, md, html or txt)"`
}

type runAuditOutput struct {
	RunID        string   `json:"run_id"`
	Status       string   `json:"status"`
	OverallScore float64  `json:"overall_score,omitempty"`
	Digest       string   `json:"digest,omitempty"`
	Reason       string   `json:"reason,omitempty"`
	Reports      []string `json:"reports,omitempty"`
	Archived     bool     `json:"archived"`
}

type resolveInput struct {
	Target     string            `json:"target" jsonschema:"audited target, used in the executive summary"`
	Dimensions []audit.Dimension `json:"dimensions,omitempty" jsonschema:"rubric dimensions; the configured rubric is used when empty"`
	Opinions   []audit.Opinion   `json:"opinions" jsonschema:"judge opinions to resolve"`
	Evidence   audit.EvidenceMap `json:"evidence,omitempty" jsonschema:"evidence keyed by dimension id"`
}

type resolveOutput struct {
	Report  audit.FinalReport `json:"report"`
	Omitted []string          `json:"omitted,omitempty"`
}

type listRunsInput struct {
	Target string `json:"target,omitempty" jsonschema:"only runs for this target"`
	Status string `json:"status,omitempty" jsonschema:"completed or halted"`
	Limit  int    `json:"limit,omitempty" jsonschema:"maximum number of runs (default 20)"`
}

type runSummary struct {
	ID           string  `json:"id"`
	Target       string  `json:"target"`
	Status       string  `json:"status"`
	OverallScore float64 `json:"overall_score"`
	Digest       string  `json:"digest,omitempty"`
	Reason       string  `json:"reason,omitempty"`
	StartedAt    string  `json:"started_at"`
}

type listRunsOutput struct {
	Runs  []runSummary `json:"runs"`
	Total int          `json:"total"`
}

type getRunInput struct {
	RunID string `json:"run_id" jsonschema:"run id from run_audit or list_runs"`
}

type verdictOutput struct {
	DimensionID   string `json:"dimension_id"`
	DimensionName string `json:"dimension_name"`
	FinalScore    int    `json:"final_score"`
	Dissent       string `json:"dissent,omitempty"`
	Remediation   string `json:"remediation"`
}

type getRunOutput struct {
	Run      runSummary      `json:"run"`
	Verdicts []verdictOutput `json:"verdicts"`
}

// --- Tool handlers ---

func (s *Server) handleRunAudit(ctx context.Context, _ *sdkmcp.CallToolRequest, input runAuditInput) (*sdkmcp.CallToolResult, runAuditOutput, error) {
	if input.Target == "" {
		return nil, runAuditOutput{}, errors.New("target is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	outcome, err := wiring.Audit(ctx, s.cfg, s.deps, input.Target, input.DocPath)
	if err != nil {
		return nil, runAuditOutput{}, fmt.Errorf("run_audit: %w", err)
	}
	res := outcome.Result
	out := runAuditOutput{RunID: res.RunID, Archived: outcome.Archived}
	if !outcome.Completed() {
		out.Status = string(store.StatusHalted)
		out.Reason = res.Reason
		return nil, out, nil
	}
	out.Status = string(store.StatusCompleted)
	out.OverallScore = res.Report.OverallScore
	out.Digest = outcome.Artifact.Digest
	for _, e := range outcome.Emitted {
		if e.Err == nil && e.Location != "" {
			out.Reports = append(out.Reports, e.Location)
		}
	}
	return nil, out, nil
}

func (s *Server) handleResolveOpinions(_ context.Context, _ *sdkmcp.CallToolRequest, input resolveInput) (*sdkmcp.CallToolResult, resolveOutput, error) {
	res, err := wiring.Resolve(s.cfg, wiring.ResolveRequest{
		Target:     input.Target,
		Dimensions: input.Dimensions,
		Opinions:   input.Opinions,
		Evidence:   input.Evidence,
	})
	if err != nil {
		return nil, resolveOutput{}, fmt.Errorf("resolve_opinions: %w", err)
	}
	return nil, resolveOutput{Report: res.Report, Omitted: res.Omitted}, nil
}

func (s *Server) handleListRuns(ctx context.Context, _ *sdkmcp.CallToolRequest, input listRunsInput) (*sdkmcp.CallToolResult, listRunsOutput, error) {
	if s.deps.Store == nil {
		return nil, listRunsOutput{}, errors.New("no run archive configured")
	}
	limit := input.Limit
	if limit <= 0 {
		limit = DefaultListLimit
	}
	runs, err := s.deps.Store.ListRuns(ctx, store.Filter{
		Target: input.Target,
		Status: store.Status(input.Status),
		Limit:  limit,
	})
	if err != nil {
		return nil, listRunsOutput{}, fmt.Errorf("list_runs: %w", err)
	}
	out := listRunsOutput{Runs: make([]runSummary, 0, len(runs)), Total: len(runs)}
	for _, r := range runs {
		out.Runs = append(out.Runs, summarize(r))
	}
	return nil, out, nil
}

func (s *Server) handleGetRun(ctx context.Context, _ *sdkmcp.CallToolRequest, input getRunInput) (*sdkmcp.CallToolResult, getRunOutput, error) {
	if s.deps.Store == nil {
		return nil, getRunOutput{}, errors.New("no run archive configured")
	}
	run, err := s.deps.Store.GetRun(ctx, input.RunID)
	if err != nil {
		return nil, getRunOutput{}, fmt.Errorf("get_run: %w", err)
	}
	out := getRunOutput{Run: summarize(*run), Verdicts: make([]verdictOutput, 0, len(run.Verdicts))}
	for _, v := range run.Verdicts {
		out.Verdicts = append(out.Verdicts, verdictOutput{
			DimensionID:   v.DimensionID,
			DimensionName: v.DimensionName,
			FinalScore:    v.FinalScore,
			Dissent:       v.Dissent,
			Remediation:   v.Remediation,
		})
	}
	return nil, out, nil
}

func summarize(r store.Run) runSummary {
	return runSummary{
		ID:           r.ID,
		Target:       r.Target,
		Status:       string(r.Status),
		OverallScore: r.OverallScore,
		Digest:       r.Digest,
		Reason:       r.Reason,
		StartedAt:    r.StartedAt.UTC().Format("2006-01-02T15:04:05Z"),
	}
}

// Serve runs the server over stdio until ctx is cancelled or the client
// disconnects.
func (s *Server) Serve(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	WatchParent(ctx, cancel)
	return s.MCPServer.Run(ctx, &sdkmcp.StdioTransport{})
}
