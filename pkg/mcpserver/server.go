// Package mcpserver is the MCP mode adapter's transport: a JSON-RPC 2.0
// server framed over standard input/output (§6), exposing huskycat_fix,
// huskycat_suggest_fixes, and huskycat_apply_suggestion. Modeled on the
// teacher's pkg/cli/mcp_server.go createMCPServer/mcp.AddTool pattern.
package mcpserver

import (
	"context"
	"fmt"
	"reflect"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/tinyland-inc/huskycat/pkg/logger"
	"github.com/tinyland-inc/huskycat/pkg/model"
	"github.com/tinyland-inc/huskycat/pkg/registry"
)

var mcpLog = logger.New("mcpserver")

// generateOutputSchema builds a JSON schema for T's shape from its Go
// struct tags, so MCP clients know what each tool's structured output
// looks like without us hand-maintaining a parallel schema document.
func generateOutputSchema[T any]() *jsonschema.Schema {
	var zero T
	schema, err := jsonschema.ForType(reflect.TypeOf(zero), &jsonschema.ForOptions{})
	if err != nil {
		mcpLog.Printf("failed to generate output schema for %T: %v", zero, err)
		return nil
	}
	return schema
}

// Version is set by the caller (e.g. from build info) before Run.
var Version = "dev"

// Server wraps a Validator Registry and exposes it over MCP. Per §4.4's
// fix-policy table, MCP never auto-mutates files on a blanket check; only
// the explicit huskycat_apply_suggestion tool writes, because it names one
// specific (file, tool) pair the caller has already decided to apply.
type Server struct {
	registry *registry.Registry
}

// New constructs a Server over reg.
func New(reg *registry.Registry) *Server {
	return &Server{registry: reg}
}

type fixArgs struct {
	Files []string `json:"files" jsonschema:"Files to validate"`
}

type suggestArgs struct {
	Files []string `json:"files" jsonschema:"Files to check for suggested fixes"`
}

type applyArgs struct {
	File string `json:"file" jsonschema:"File to apply the fix to"`
	Tool string `json:"tool" jsonschema:"Name of the tool whose fix should be applied"`
}

// Suggestion is one (file, tool) finding, annotated with whether an
// automatic fix exists and at what confidence level.
type Suggestion struct {
	model.ValidationResult
	FixAvailable  bool   `json:"fix_available"`
	FixConfidence string `json:"fix_confidence,omitempty"`
}

type resultsPayload struct {
	Results []model.ValidationResult `json:"results"`
}

type suggestionsPayload struct {
	Suggestions []Suggestion `json:"suggestions"`
}

// NewMCPServer builds the mcp.Server with all three tools registered.
func (s *Server) NewMCPServer() *mcp.Server {
	server := mcp.NewServer(&mcp.Implementation{
		Name:    "huskycat",
		Version: Version,
	}, nil)

	mcp.AddTool(server, &mcp.Tool{
		Name:         "huskycat_fix",
		Description:  "Check files against the configured validators and report results. Never mutates files; MCP mode never auto-applies fixes.",
		OutputSchema: generateOutputSchema[resultsPayload](),
	}, func(ctx context.Context, req *mcp.CallToolRequest, args fixArgs) (*mcp.CallToolResult, *resultsPayload, error) {
		results, err := s.check(ctx, args.Files)
		if err != nil {
			return errorResult(err), nil, nil
		}
		return textResult(fmt.Sprintf("checked %d file(s)", len(args.Files))), &resultsPayload{Results: results}, nil
	})

	mcp.AddTool(server, &mcp.Tool{
		Name:         "huskycat_suggest_fixes",
		Description:  "Check files and report which findings have an automatic fix available, without applying any of them.",
		OutputSchema: generateOutputSchema[suggestionsPayload](),
	}, func(ctx context.Context, req *mcp.CallToolRequest, args suggestArgs) (*mcp.CallToolResult, *suggestionsPayload, error) {
		results, err := s.check(ctx, args.Files)
		if err != nil {
			return errorResult(err), nil, nil
		}

		byName := make(map[string]registry.Descriptor)
		for _, d := range s.registry.Descriptors() {
			byName[d.Name] = d
		}

		suggestions := make([]Suggestion, 0, len(results))
		for _, r := range results {
			d := byName[r.Tool]
			suggestions = append(suggestions, Suggestion{
				ValidationResult: r,
				FixAvailable:     d.FixArgv != nil && !r.Success,
				FixConfidence:    d.FixConfidence.String(),
			})
		}
		return textResult(fmt.Sprintf("%d suggestion(s)", len(suggestions))), &suggestionsPayload{Suggestions: suggestions}, nil
	})

	mcp.AddTool(server, &mcp.Tool{
		Name:         "huskycat_apply_suggestion",
		Description:  "Apply one tool's fix to one file. This is the only huskycat MCP operation that writes to disk.",
		OutputSchema: generateOutputSchema[resultsPayload](),
	}, func(ctx context.Context, req *mcp.CallToolRequest, args applyArgs) (*mcp.CallToolResult, *resultsPayload, error) {
		result, err := s.apply(ctx, args.File, args.Tool)
		if err != nil {
			return errorResult(err), nil, nil
		}
		return textResult(fmt.Sprintf("applied %s to %s", args.Tool, args.File)), &resultsPayload{Results: []model.ValidationResult{result}}, nil
	})

	return server
}

func (s *Server) check(ctx context.Context, files []string) ([]model.ValidationResult, error) {
	var results []model.ValidationResult
	for _, file := range files {
		for _, d := range s.registry.ForFile(file) {
			results = append(results, s.registry.Check(ctx, d, file, nil))
		}
	}
	model.SortResults(results)
	return results, nil
}

func (s *Server) apply(ctx context.Context, file, tool string) (model.ValidationResult, error) {
	for _, d := range s.registry.ForFile(file) {
		if d.Name == tool {
			return s.registry.Fix(ctx, d, file, nil), nil
		}
	}
	return model.ValidationResult{}, fmt.Errorf("tool %q does not apply to file %q", tool, file)
}

// Run serves the MCP protocol over stdio until ctx is canceled or the
// transport closes (§6).
func (s *Server) Run(ctx context.Context) error {
	return s.NewMCPServer().Run(ctx, &mcp.StdioTransport{})
}

func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{Content: []mcp.Content{&mcp.TextContent{Text: text}}}
}

func errorResult(err error) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		IsError: true,
		Content: []mcp.Content{&mcp.TextContent{Text: err.Error()}},
	}
}
