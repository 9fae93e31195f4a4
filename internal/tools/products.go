package tools

import (
	"context"
	"net/url"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// registerProducts adds the product catalogue tools.
//
// Endpoints covered:
//
//	GET    /api/products        -> list_products
//	POST   /api/products        -> create_product
//	PATCH  /api/products        -> update_product (id embedded in payload)
//	DELETE /api/products/{id}   -> delete_product
func registerProducts(srv *server.MCPServer, h *handlers) {
	listOpts := append([]mcp.ToolOption{
		mcp.WithDescription("Return products for the current company. Optionally filter by item_code (exact match) or item_description (partial match). Each item contains the product id, code, description, price, and tax settings."),
		mcp.WithString("item_code",
			mcp.Description("Filter by product code (exact match). Maps to filter[item_code]."),
		),
		mcp.WithString("item_description",
			mcp.Description("Filter by product description (partial match). Maps to filter[item_description]."),
		),
	}, paginationOpts()...)
	srv.AddTool(mcp.NewTool("list_products", listOpts...), h.listProducts)

	srv.AddTool(mcp.NewTool("create_product",
		mcp.WithDescription("Create a new product. Returns the created product record including its assigned ID. Use list_taxes and list_units_of_measure for the referenced IDs."),
		mcp.WithObject("attributes", mcp.Required(),
			mcp.Description("Product data. Required: item_code, item_description. Optional: sales_price, sales_price_includes_vat, tax_id, unit_of_measure_id, item_family_id, ean_barcode, observations."),
		),
	), h.createProduct)

	srv.AddTool(mcp.NewTool("update_product",
		mcp.WithDescription("Update an existing product's attributes. Only supply the fields you want to change."),
		mcp.WithString("product_id", mcp.Required(),
			mcp.Description("The TOC Online product ID to update."),
		),
		mcp.WithObject("attributes", mcp.Required(),
			mcp.Description("Fields to update (only provided fields are changed)."),
		),
	), h.updateProduct)

	srv.AddTool(mcp.NewTool("delete_product",
		mcp.WithDescription("Delete a product by ID. Returns a confirmation meta object on success. Fails if the product appears on documents."),
		mcp.WithString("product_id", mcp.Required(),
			mcp.Description("The TOC Online product ID to delete."),
		),
	), h.deleteProduct)
}

func (h *handlers) listProducts(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query := url.Values{}
	setFilter(query, "filter[item_code]", req.GetString("item_code", ""))
	setFilter(query, "filter[item_description]", req.GetString("item_description", ""))
	addPagination(req, query)

	raw, err := h.client.Get(ctx, "/api/products", query)
	if err != nil {
		return h.toolError(ctx, "list_products", err), nil
	}

	result, err := unwrapList(raw)
	if err != nil {
		return h.toolError(ctx, "list_products", err), nil
	}
	return jsonResult(result)
}

func (h *handlers) createProduct(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	attrs, err := attributesArg(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	raw, err := h.client.Post(ctx, "/api/products", resourcePayload("products", "", attrs))
	if err != nil {
		return h.toolError(ctx, "create_product", err), nil
	}

	item, err := unwrapItem(raw)
	if err != nil {
		return h.toolError(ctx, "create_product", err), nil
	}
	h.logger.InfoContext(ctx, "product created", "id", item["id"])
	return jsonResult(item)
}

func (h *handlers) updateProduct(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	productID, err := req.RequireString("product_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if err := validateResourceID(productID, "product_id"); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	attrs, err := attributesArg(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	raw, err := h.client.Patch(ctx, "/api/products", resourcePayload("products", productID, attrs))
	if err != nil {
		return h.toolError(ctx, "update_product", err), nil
	}

	item, err := unwrapItem(raw)
	if err != nil {
		return h.toolError(ctx, "update_product", err), nil
	}
	h.logger.InfoContext(ctx, "product updated", "id", productID)
	return jsonResult(item)
}

func (h *handlers) deleteProduct(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	productID, err := req.RequireString("product_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if err := validateResourceID(productID, "product_id"); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	raw, err := h.client.Delete(ctx, "/api/products/"+productID, nil)
	if err != nil {
		return h.toolError(ctx, "delete_product", err), nil
	}

	meta, err := unwrapMeta(raw)
	if err != nil {
		return h.toolError(ctx, "delete_product", err), nil
	}
	h.logger.InfoContext(ctx, "product deleted", "id", productID)
	return jsonResult(meta)
}
