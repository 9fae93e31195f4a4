package tools

import (
	"context"
	"net/url"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// registerSuppliers adds the supplier CRUD tools, mirroring the customer
// module against /api/suppliers.
func registerSuppliers(srv *server.MCPServer, h *handlers) {
	listOpts := append([]mcp.ToolOption{
		mcp.WithDescription("Return suppliers for the current company. Optionally filter by business_name (partial match) or tax_registration_number (exact NIF). Each item contains the supplier id and its attributes."),
		mcp.WithString("business_name",
			mcp.Description("Filter by supplier name (partial match). Maps to filter[business_name]."),
		),
		mcp.WithString("tax_registration_number",
			mcp.Description("Filter by NIF / tax number (exact match). Maps to filter[tax_registration_number]."),
		),
	}, paginationOpts()...)
	srv.AddTool(mcp.NewTool("list_suppliers", listOpts...), h.listSuppliers)

	srv.AddTool(mcp.NewTool("get_supplier",
		mcp.WithDescription("Return a single supplier by ID."),
		mcp.WithString("supplier_id", mcp.Required(),
			mcp.Description("The TOC Online supplier ID."),
		),
	), h.getSupplier)

	srv.AddTool(mcp.NewTool("create_supplier",
		mcp.WithDescription("Create a new supplier. Returns the newly created supplier record including its assigned ID."),
		mcp.WithObject("attributes", mcp.Required(),
			mcp.Description("Supplier data to create. Required: business_name, tax_registration_number. Optional: contact_name, email, phone_number, mobile_number, website, observations, internal_observations, country_iso_alpha_2."),
		),
	), h.createSupplier)

	srv.AddTool(mcp.NewTool("update_supplier",
		mcp.WithDescription("Update an existing supplier's attributes. Only supply the fields you want to change."),
		mcp.WithString("supplier_id", mcp.Required(),
			mcp.Description("The TOC Online supplier ID to update."),
		),
		mcp.WithObject("attributes", mcp.Required(),
			mcp.Description("Fields to update (only provided fields are changed)."),
		),
	), h.updateSupplier)

	srv.AddTool(mcp.NewTool("delete_supplier",
		mcp.WithDescription("Delete a supplier by ID. Returns a confirmation meta object on success."),
		mcp.WithString("supplier_id", mcp.Required(),
			mcp.Description("The TOC Online supplier ID to delete."),
		),
	), h.deleteSupplier)
}

func (h *handlers) listSuppliers(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query := url.Values{}
	setFilter(query, "filter[business_name]", req.GetString("business_name", ""))
	setFilter(query, "filter[tax_registration_number]", req.GetString("tax_registration_number", ""))
	addPagination(req, query)

	raw, err := h.client.Get(ctx, "/api/suppliers", query)
	if err != nil {
		return h.toolError(ctx, "list_suppliers", err), nil
	}

	result, err := unwrapList(raw)
	if err != nil {
		return h.toolError(ctx, "list_suppliers", err), nil
	}
	return jsonResult(result)
}

func (h *handlers) getSupplier(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	supplierID, err := req.RequireString("supplier_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if err := validateResourceID(supplierID, "supplier_id"); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	raw, err := h.client.Get(ctx, "/api/suppliers/"+supplierID, nil)
	if err != nil {
		return h.toolError(ctx, "get_supplier", err), nil
	}

	item, err := unwrapItem(raw)
	if err != nil {
		return h.toolError(ctx, "get_supplier", err), nil
	}
	return jsonResult(item)
}

func (h *handlers) createSupplier(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	attrs, err := attributesArg(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	raw, err := h.client.Post(ctx, "/api/suppliers", resourcePayload("suppliers", "", attrs))
	if err != nil {
		return h.toolError(ctx, "create_supplier", err), nil
	}

	item, err := unwrapItem(raw)
	if err != nil {
		return h.toolError(ctx, "create_supplier", err), nil
	}
	h.logger.InfoContext(ctx, "supplier created", "id", item["id"])
	return jsonResult(item)
}

func (h *handlers) updateSupplier(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	supplierID, err := req.RequireString("supplier_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if err := validateResourceID(supplierID, "supplier_id"); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	attrs, err := attributesArg(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	raw, err := h.client.Patch(ctx, "/api/suppliers", resourcePayload("suppliers", supplierID, attrs))
	if err != nil {
		return h.toolError(ctx, "update_supplier", err), nil
	}

	item, err := unwrapItem(raw)
	if err != nil {
		return h.toolError(ctx, "update_supplier", err), nil
	}
	h.logger.InfoContext(ctx, "supplier updated", "id", supplierID)
	return jsonResult(item)
}

func (h *handlers) deleteSupplier(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	supplierID, err := req.RequireString("supplier_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if err := validateResourceID(supplierID, "supplier_id"); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	raw, err := h.client.Delete(ctx, "/api/suppliers/"+supplierID, nil)
	if err != nil {
		return h.toolError(ctx, "delete_supplier", err), nil
	}

	meta, err := unwrapMeta(raw)
	if err != nil {
		return h.toolError(ctx, "delete_supplier", err), nil
	}
	h.logger.InfoContext(ctx, "supplier deleted", "id", supplierID)
	return jsonResult(meta)
}
