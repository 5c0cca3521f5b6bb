// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes the questline scanner and exporter via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/questline/internal/apperr"
	"github.com/starford/questline/internal/archive"
	"github.com/starford/questline/internal/issue"
	"github.com/starford/questline/internal/models"
	"github.com/starford/questline/internal/plugin"
)

const structureURI = "questline://structure"

var errNoArchive = errors.New("export history is disabled")

// Server wraps the MCP server with questline tools.
type Server struct {
	mcp     *server.MCPServer
	session *plugin.Session
	archive *archive.Archiver
}

// New creates a new MCP server with all questline tools registered. arch may
// be nil, in which case the export history tools report an error.
func New(session *plugin.Session, arch *archive.Archiver) *Server {
	s := &Server{session: session, archive: arch}

	s.mcp = server.NewMCPServer(
		"Questline",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("scan_questline",
		mcp.WithDescription("Scan the selected questline frame and return quests, geometry and issues. "+
			"Preview images are omitted unless include_images is set."),
		mcp.WithBoolean("include_images", mcp.Description("Include PNG data URLs for every quest state")),
	), s.scanQuestline)

	s.mcp.AddTool(mcp.NewTool("inspect_questline",
		mcp.WithDescription("Report how each direct child of the selected questline would be read by a scan, "+
			"without rendering or switching states."),
	), s.inspectQuestline)

	s.mcp.AddTool(mcp.NewTool("export_questline",
		mcp.WithDescription("Scan and export the selected questline. On success the bundle is archived "+
			"and the positions manifest is returned."),
	), s.exportQuestline)

	s.mcp.AddTool(mcp.NewTool("list_exports",
		mcp.WithDescription("List archived export bundles, newest first."),
		mcp.WithString("questline_id", mcp.Description("Optional questline id filter")),
		mcp.WithNumber("limit", mcp.Description("Maximum number of records (default 50)")),
	), s.listExports)

	s.mcp.AddTool(mcp.NewTool("read_export",
		mcp.WithDescription("Read one archived export record including quest geometry."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Export id as returned by list_exports")),
	), s.readExport)

	s.mcp.AddTool(mcp.NewTool("import_bundle",
		mcp.WithDescription("Verify a questline zip bundle and add it to the export archive. "+
			"Accepts a base64 data URI or an http(s) URL."),
		mcp.WithString("url", mcp.Required(), mcp.Description("data:application/zip;base64,... or https://...")),
	), s.importBundle)

	s.mcp.AddTool(mcp.NewTool("explain_issue",
		mcp.WithDescription("Return the remediation steps for an issue code."),
		mcp.WithString("code", mcp.Required(), mcp.Description("Issue code, e.g. DUPLICATE_QUEST_KEY")),
		mcp.WithString("message", mcp.Description("Raw issue message, appended for UNKNOWN and VALIDATION_FAILED")),
	), s.explainIssue)

	s.mcp.AddTool(mcp.NewTool("get_questline_contract",
		mcp.WithDescription("Returns the questline structure contract. "+
			"Read it before restructuring a frame to fix scan issues."),
	), s.getQuestlineContract)

	// Resource: structure contract.
	s.mcp.AddResource(
		mcp.NewResource(structureURI, "Questline Structure Contract",
			mcp.WithResourceDescription("How a questline frame, its background and quests must be laid out."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readStructureResource,
	)

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

func jsonResult(v any) *mcp.CallToolResult {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(err.Error())
	}
	return mcp.NewToolResultText(string(out))
}

func (s *Server) scanQuestline(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	res, err := s.session.Scan(ctx)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if !req.GetBool("include_images", false) {
		res = res.WithoutImages()
	}
	return jsonResult(res), nil
}

func (s *Server) inspectQuestline(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	rep, err := s.session.Inspect(ctx)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(rep), nil
}

type exportSummary struct {
	Manifest *models.QuestlineExport `json:"json"`
	Issues   []issue.Issue           `json:"issues"`
	Fixes    []string                `json:"fixes,omitempty"`
}

func (s *Server) exportQuestline(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	res, err := s.session.Export(ctx, nil)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	sum := exportSummary{Manifest: res.Manifest, Issues: res.Issues}
	if sum.Issues == nil {
		sum.Issues = []issue.Issue{}
	}
	for _, i := range res.Issues {
		sum.Fixes = append(sum.Fixes, issue.Describe(i))
	}
	out := jsonResult(sum)
	out.IsError = res.Manifest == nil
	return out, nil
}

func (s *Server) listExports(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if s.archive == nil {
		return mcp.NewToolResultError(errNoArchive.Error()), nil
	}
	recs, total, err := s.archive.List(req.GetString("questline_id", ""), req.GetInt("limit", 0), 0)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if len(recs) == 0 {
		return mcp.NewToolResultText("no exports found"), nil
	}
	lines := make([]string, 0, len(recs)+1)
	for _, r := range recs {
		lines = append(lines, fmt.Sprintf("%s %s %d quests %s",
			r.ID, r.QuestlineID, r.QuestCount, r.CreatedAt.Format(time.RFC3339)))
	}
	if total > len(recs) {
		lines = append(lines, fmt.Sprintf("(%d of %d)", len(recs), total))
	}
	return mcp.NewToolResultText(strings.Join(lines, "\n")), nil
}

func (s *Server) readExport(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if s.archive == nil {
		return mcp.NewToolResultError(errNoArchive.Error()), nil
	}
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	rec, err := s.archive.Get(id)
	if errors.Is(err, apperr.ErrNotFound) {
		return mcp.NewToolResultError(fmt.Sprintf("not found: %s", id)), nil
	}
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(rec), nil
}

func (s *Server) explainIssue(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	code, err := req.RequireString("code")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	c := issue.Code(strings.ToUpper(strings.TrimSpace(code)))
	if !issue.Known(c) {
		var known []string
		for _, k := range issue.Codes() {
			known = append(known, string(k))
		}
		return mcp.NewToolResultError(fmt.Sprintf("unknown issue code %q (known: %s)", code, strings.Join(known, ", "))), nil
	}
	return mcp.NewToolResultText(issue.Describe(issue.Issue{
		Code:    c,
		Message: req.GetString("message", ""),
	})), nil
}

func (s *Server) getQuestlineContract(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(StructureContract), nil
}

func (s *Server) readStructureResource(context.Context, mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      structureURI,
			MIMEType: "text/markdown",
			Text:     StructureContract,
		},
	}, nil
}
