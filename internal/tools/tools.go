// Package tools registers the TOC Online tool modules on an MCP server.
// Each module is a thin pass-through layer: it maps tool arguments to API
// query parameters or JSON:API payloads, dispatches through the shared
// client, and unwraps JSON:API responses into flat {id, ...attributes}
// objects. Policy (read-only mode, write quotas, retries) lives in the
// client, not here.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// Dispatcher is the API surface the tool layer needs. Implemented by
// tocclient.Client.
type Dispatcher interface {
	Get(ctx context.Context, path string, query url.Values) (json.RawMessage, error)
	Post(ctx context.Context, path string, body any) (json.RawMessage, error)
	Patch(ctx context.Context, path string, body any) (json.RawMessage, error)
	Delete(ctx context.Context, path string, body any) (json.RawMessage, error)
}

// handlers carries the shared dependencies into every tool handler.
type handlers struct {
	client Dispatcher
	logger *slog.Logger
}

// moduleRegistry maps module short-names to their registration functions.
var moduleRegistry = map[string]func(*server.MCPServer, *handlers){
	"customers":       registerCustomers,
	"suppliers":       registerSuppliers,
	"products":        registerProducts,
	"sales_documents": registerSalesDocuments,
	"auxiliary":       registerAuxiliary,
}

// ModuleNames returns the valid module short-names, sorted.
func ModuleNames() []string {
	names := make([]string, 0, len(moduleRegistry))
	for name := range moduleRegistry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Register adds the requested tool modules to the MCP server. An empty
// request registers all modules; unknown names are rejected with the list
// of valid ones.
func Register(srv *server.MCPServer, client Dispatcher, logger *slog.Logger, requested []string) error {
	if logger == nil {
		logger = slog.Default()
	}

	modules := requested
	if len(modules) == 0 {
		modules = ModuleNames()
	}

	var unknown []string
	for _, name := range modules {
		if _, ok := moduleRegistry[name]; !ok {
			unknown = append(unknown, name)
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return fmt.Errorf("unknown tool module(s): %s (valid: %s)",
			strings.Join(unknown, ", "), strings.Join(ModuleNames(), ", "))
	}

	h := &handlers{client: client, logger: logger}
	for _, name := range modules {
		moduleRegistry[name](srv, h)
		logger.Debug("registered tool module", "module", name)
	}

	return nil
}

// resourceIDRE matches TOC Online resource IDs, which are always positive
// integers. Anything else is rejected before it can reach a URL path.
var resourceIDRE = regexp.MustCompile(`^\d{1,20}$`)

func validateResourceID(value, name string) error {
	if !resourceIDRE.MatchString(value) {
		return fmt.Errorf("invalid %s: expected a numeric ID, got %q", name, value)
	}
	return nil
}

// jsonAPIDocument is the envelope every TOC Online response uses.
type jsonAPIDocument struct {
	Data json.RawMessage `json:"data"`
	Meta map[string]any  `json:"meta"`
}

// flatten merges a JSON:API resource object into {id, ...attributes}.
func flatten(item map[string]any) map[string]any {
	out := map[string]any{"id": item["id"]}
	if attrs, ok := item["attributes"].(map[string]any); ok {
		for k, v := range attrs {
			out[k] = v
		}
	}
	return out
}

// unwrapList converts a JSON:API list response into {"data": [...], "meta": {...}}.
// A single-object data member is promoted to a one-element list.
func unwrapList(raw json.RawMessage) (map[string]any, error) {
	var doc jsonAPIDocument
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("decoding API response: %w", err)
	}

	var items []map[string]any
	if err := json.Unmarshal(doc.Data, &items); err != nil {
		var single map[string]any
		if err := json.Unmarshal(doc.Data, &single); err != nil {
			return nil, fmt.Errorf("decoding API response data: %w", err)
		}
		items = []map[string]any{single}
	}

	flattened := make([]map[string]any, 0, len(items))
	for _, item := range items {
		flattened = append(flattened, flatten(item))
	}

	meta := doc.Meta
	if meta == nil {
		meta = map[string]any{}
	}
	return map[string]any{"data": flattened, "meta": meta}, nil
}

// unwrapItem converts a JSON:API single-resource response into {id, ...attributes}.
func unwrapItem(raw json.RawMessage) (map[string]any, error) {
	var doc jsonAPIDocument
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("decoding API response: %w", err)
	}

	var item map[string]any
	if len(doc.Data) > 0 && string(doc.Data) != "null" {
		if err := json.Unmarshal(doc.Data, &item); err != nil {
			return nil, fmt.Errorf("decoding API response data: %w", err)
		}
	}
	return flatten(item), nil
}

// unwrapMeta returns the response meta object, used by delete-style tools
// whose payload carries no resource.
func unwrapMeta(raw json.RawMessage) (map[string]any, error) {
	var doc jsonAPIDocument
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("decoding API response: %w", err)
	}
	if doc.Meta == nil {
		return map[string]any{"result": "deleted"}, nil
	}
	return doc.Meta, nil
}

// jsonResult marshals v as the text content of a successful tool result.
func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encoding tool result: %w", err)
	}
	return mcp.NewToolResultText(string(data)), nil
}

// toolError logs the failure and reports it to the model as a tool error,
// not a protocol error, so the conversation can continue.
func (h *handlers) toolError(ctx context.Context, tool string, err error) *mcp.CallToolResult {
	h.logger.ErrorContext(ctx, "tool call failed", "tool", tool, "error", err)
	return mcp.NewToolResultError(err.Error())
}

// setFilter adds a query parameter when the value is non-empty.
func setFilter(query url.Values, key, value string) {
	if value != "" {
		query.Set(key, value)
	}
}

// addPagination maps the page/per_page arguments to JSON:API page params.
func addPagination(req mcp.CallToolRequest, query url.Values) {
	if page := req.GetInt("page", 0); page > 0 {
		query.Set("page[number]", strconv.Itoa(page))
	}
	if perPage := req.GetInt("per_page", 0); perPage > 0 {
		query.Set("page[size]", strconv.Itoa(perPage))
	}
}

// paginationOpts is appended to every list tool's options.
func paginationOpts() []mcp.ToolOption {
	return []mcp.ToolOption{
		mcp.WithNumber("page",
			mcp.Description("Page number (1-based). Omit for the first page."),
		),
		mcp.WithNumber("per_page",
			mcp.Description("Items per page (API default when omitted; typically 25 max)."),
		),
	}
}

// attributesArg extracts the required attributes object from a write tool call.
func attributesArg(req mcp.CallToolRequest) (map[string]any, error) {
	raw, ok := req.GetArguments()["attributes"]
	if !ok {
		return nil, fmt.Errorf("attributes argument is required")
	}
	attrs, ok := raw.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("attributes must be a JSON object")
	}
	return attrs, nil
}

// resourcePayload assembles a JSON:API write body. id is omitted when empty.
func resourcePayload(resourceType, id string, attrs map[string]any) map[string]any {
	data := map[string]any{
		"type":       resourceType,
		"attributes": attrs,
	}
	if id != "" {
		data["id"] = id
	}
	return map[string]any{"data": data}
}
