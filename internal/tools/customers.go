package tools

import (
	"context"
	"net/url"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// registerCustomers adds the customer CRUD tools.
//
// Endpoints covered:
//
//	GET    /api/customers        -> list_customers
//	GET    /api/customers/{id}   -> get_customer
//	POST   /api/customers        -> create_customer
//	PATCH  /api/customers        -> update_customer
//	DELETE /api/customers/{id}   -> delete_customer
func registerCustomers(srv *server.MCPServer, h *handlers) {
	listOpts := append([]mcp.ToolOption{
		mcp.WithDescription("Return customers for the current company. Optionally filter by business_name (partial match) or tax_registration_number (exact NIF) before paginating. Each item contains the customer id and its attributes (name, NIF, email, etc.)."),
		mcp.WithString("business_name",
			mcp.Description("Filter by customer name (partial match). Maps to filter[business_name]."),
		),
		mcp.WithString("tax_registration_number",
			mcp.Description("Filter by NIF / tax number (exact match). Maps to filter[tax_registration_number]."),
		),
	}, paginationOpts()...)
	srv.AddTool(mcp.NewTool("list_customers", listOpts...), h.listCustomers)

	srv.AddTool(mcp.NewTool("get_customer",
		mcp.WithDescription("Return a single customer by ID, including their addresses and email addresses."),
		mcp.WithString("customer_id", mcp.Required(),
			mcp.Description("The TOC Online customer ID."),
		),
	), h.getCustomer)

	srv.AddTool(mcp.NewTool("create_customer",
		mcp.WithDescription("Create a new customer. Returns the newly created customer record including its assigned ID. Fails with a 400 error if the NIF is invalid, or a 403 error if a customer with the same NIF already exists."),
		mcp.WithObject("attributes", mcp.Required(),
			mcp.Description("Customer data to create. Required: business_name, tax_registration_number. Optional: contact_name, email, phone_number, mobile_number, website, observations, internal_observations, country_iso_alpha_2, tax_country_region, is_tax_exempt, not_final_customer, cashed_vat."),
		),
	), h.createCustomer)

	srv.AddTool(mcp.NewTool("update_customer",
		mcp.WithDescription("Update an existing customer's attributes. Only supply the fields you want to change; omitted fields remain unchanged."),
		mcp.WithString("customer_id", mcp.Required(),
			mcp.Description("The TOC Online customer ID to update."),
		),
		mcp.WithObject("attributes", mcp.Required(),
			mcp.Description("Fields to update (only provided fields are changed)."),
		),
	), h.updateCustomer)

	srv.AddTool(mcp.NewTool("delete_customer",
		mcp.WithDescription("Delete a customer by ID. Returns a confirmation meta object on success. Fails if the customer has associated documents or cannot be deleted."),
		mcp.WithString("customer_id", mcp.Required(),
			mcp.Description("The TOC Online customer ID to delete."),
		),
	), h.deleteCustomer)
}

func (h *handlers) listCustomers(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query := url.Values{}
	setFilter(query, "filter[business_name]", req.GetString("business_name", ""))
	setFilter(query, "filter[tax_registration_number]", req.GetString("tax_registration_number", ""))
	addPagination(req, query)

	raw, err := h.client.Get(ctx, "/api/customers", query)
	if err != nil {
		return h.toolError(ctx, "list_customers", err), nil
	}

	result, err := unwrapList(raw)
	if err != nil {
		return h.toolError(ctx, "list_customers", err), nil
	}
	return jsonResult(result)
}

func (h *handlers) getCustomer(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	customerID, err := req.RequireString("customer_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if err := validateResourceID(customerID, "customer_id"); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	raw, err := h.client.Get(ctx, "/api/customers/"+customerID, nil)
	if err != nil {
		return h.toolError(ctx, "get_customer", err), nil
	}

	item, err := unwrapItem(raw)
	if err != nil {
		return h.toolError(ctx, "get_customer", err), nil
	}
	return jsonResult(item)
}

func (h *handlers) createCustomer(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	attrs, err := attributesArg(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	raw, err := h.client.Post(ctx, "/api/customers", resourcePayload("customers", "", attrs))
	if err != nil {
		return h.toolError(ctx, "create_customer", err), nil
	}

	item, err := unwrapItem(raw)
	if err != nil {
		return h.toolError(ctx, "create_customer", err), nil
	}
	h.logger.InfoContext(ctx, "customer created", "id", item["id"])
	return jsonResult(item)
}

func (h *handlers) updateCustomer(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	customerID, err := req.RequireString("customer_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if err := validateResourceID(customerID, "customer_id"); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	attrs, err := attributesArg(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	// The PATCH endpoint takes the id inside the payload, not the path.
	raw, err := h.client.Patch(ctx, "/api/customers", resourcePayload("customers", customerID, attrs))
	if err != nil {
		return h.toolError(ctx, "update_customer", err), nil
	}

	item, err := unwrapItem(raw)
	if err != nil {
		return h.toolError(ctx, "update_customer", err), nil
	}
	h.logger.InfoContext(ctx, "customer updated", "id", customerID)
	return jsonResult(item)
}

func (h *handlers) deleteCustomer(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	customerID, err := req.RequireString("customer_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if err := validateResourceID(customerID, "customer_id"); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	raw, err := h.client.Delete(ctx, "/api/customers/"+customerID, nil)
	if err != nil {
		return h.toolError(ctx, "delete_customer", err), nil
	}

	meta, err := unwrapMeta(raw)
	if err != nil {
		return h.toolError(ctx, "delete_customer", err), nil
	}
	h.logger.InfoContext(ctx, "customer deleted", "id", customerID)
	return jsonResult(meta)
}
