package tools

import (
	"context"
	"fmt"
	"net/url"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// registerSalesDocuments adds the sales document tools.
//
// Endpoints covered:
//
//	GET    /api/v1/commercial_sales_documents/      -> list_sales_documents
//	GET    /api/v1/commercial_sales_documents/{id}  -> get_sales_document
//	POST   /api/v1/commercial_sales_documents       -> create_sales_document (atomic with lines)
//	PATCH  /api/commercial_sales_documents          -> finalize_sales_document (status -> 1)
//	DELETE /api/commercial_sales_documents/{id}     -> delete_sales_document
//	GET    /api/url_for_print/{id}                  -> get_sales_document_pdf_url
//	PATCH  /api/email/document                      -> send_sales_document_email
//
// Document types: FT (Fatura), FS (Fatura Simplificada), FR (Fatura-Recibo),
// NC (Nota de Crédito), ND (Nota de Débito), GT (Guia de Transporte),
// OR (Orçamento).
func registerSalesDocuments(srv *server.MCPServer, h *handlers) {
	listOpts := append([]mcp.ToolOption{
		mcp.WithDescription("Return sales documents for the current company. Pass status='1' to list finalized documents or status='0' for drafts. Use date_from / date_to to restrict by document date, and customer_id to filter by customer."),
		mcp.WithString("status",
			mcp.Description("Filter by document status: '1' = finalized, '0' = draft. Omit for all."),
		),
		mcp.WithString("customer_id",
			mcp.Description("Filter by customer ID (numeric string). Maps to filter[customer_id]."),
		),
		mcp.WithString("date_from",
			mcp.Description("Return documents on or after this date (YYYY-MM-DD). Maps to filter[date_from]."),
		),
		mcp.WithString("date_to",
			mcp.Description("Return documents on or before this date (YYYY-MM-DD). Maps to filter[date_to]."),
		),
	}, paginationOpts()...)
	srv.AddTool(mcp.NewTool("list_sales_documents", listOpts...), h.listSalesDocuments)

	srv.AddTool(mcp.NewTool("get_sales_document",
		mcp.WithDescription("Return a single sales document by ID, including all attributes and line references."),
		mcp.WithString("document_id", mcp.Required(),
			mcp.Description("The TOC Online sales document ID."),
		),
	), h.getSalesDocument)

	srv.AddTool(mcp.NewTool("create_sales_document",
		mcp.WithDescription("Create a new sales document (header + lines) in a single atomic call. Set finalize=1 in the attributes to finalize immediately, or 0 to keep a draft and call finalize_sales_document later. Returns the created document with its ID."),
		mcp.WithObject("attributes", mcp.Required(),
			mcp.Description("Document header and lines. Required: document_type (e.g. 'FT', 'FS', 'FR', 'NC'), date (YYYY-MM-DD), and customer_id or customer_tax_registration_number ('999999990' for final consumer). lines is an array of {item_id, item_type, quantity, unit_price, tax_id, ...}."),
		),
	), h.createSalesDocument)

	srv.AddTool(mcp.NewTool("finalize_sales_document",
		mcp.WithDescription("Finalize a draft sales document (set status to 1). Once finalized, document content is locked and it can be sent or communicated to AT."),
		mcp.WithString("document_id", mcp.Required(),
			mcp.Description("The TOC Online sales document ID to finalize."),
		),
	), h.finalizeSalesDocument)

	srv.AddTool(mcp.NewTool("delete_sales_document",
		mcp.WithDescription("Delete a draft sales document by ID. Only draft (non-finalized) documents can be deleted."),
		mcp.WithString("document_id", mcp.Required(),
			mcp.Description("The TOC Online sales document ID to delete."),
		),
	), h.deleteSalesDocument)

	srv.AddTool(mcp.NewTool("get_sales_document_pdf_url",
		mcp.WithDescription("Get a signed URL to download the PDF of a finalized sales document."),
		mcp.WithString("document_id", mcp.Required(),
			mcp.Description("The TOC Online sales document ID."),
		),
	), h.getSalesDocumentPDFURL)

	srv.AddTool(mcp.NewTool("send_sales_document_email",
		mcp.WithDescription("Send a finalized sales document by email. Returns the API response (usually an empty meta object on success)."),
		mcp.WithString("document_id", mcp.Required(),
			mcp.Description("The TOC Online sales document ID to email."),
		),
		mcp.WithString("to_email", mcp.Required(),
			mcp.Description("Recipient email address."),
		),
		mcp.WithString("from_email", mcp.Required(),
			mcp.Description("Sender email address."),
		),
		mcp.WithString("from_name", mcp.Required(),
			mcp.Description("Sender display name."),
		),
		mcp.WithString("subject", mcp.Required(),
			mcp.Description("Email subject line."),
		),
	), h.sendSalesDocumentEmail)
}

func (h *handlers) listSalesDocuments(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query := url.Values{}
	setFilter(query, "filter[status]", req.GetString("status", ""))
	setFilter(query, "filter[customer_id]", req.GetString("customer_id", ""))
	setFilter(query, "filter[date_from]", req.GetString("date_from", ""))
	setFilter(query, "filter[date_to]", req.GetString("date_to", ""))
	addPagination(req, query)

	raw, err := h.client.Get(ctx, "/api/v1/commercial_sales_documents/", query)
	if err != nil {
		return h.toolError(ctx, "list_sales_documents", err), nil
	}

	result, err := unwrapList(raw)
	if err != nil {
		return h.toolError(ctx, "list_sales_documents", err), nil
	}
	return jsonResult(result)
}

func (h *handlers) getSalesDocument(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	documentID, err := req.RequireString("document_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if err := validateResourceID(documentID, "document_id"); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	raw, err := h.client.Get(ctx, "/api/v1/commercial_sales_documents/"+documentID, nil)
	if err != nil {
		return h.toolError(ctx, "get_sales_document", err), nil
	}

	item, err := unwrapItem(raw)
	if err != nil {
		return h.toolError(ctx, "get_sales_document", err), nil
	}
	return jsonResult(item)
}

func (h *handlers) createSalesDocument(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	attrs, err := attributesArg(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	// The v1 atomic endpoint takes the document attributes as a flat body,
	// not wrapped in a JSON:API envelope.
	raw, err := h.client.Post(ctx, "/api/v1/commercial_sales_documents", attrs)
	if err != nil {
		return h.toolError(ctx, "create_sales_document", err), nil
	}

	item, err := unwrapItem(raw)
	if err != nil {
		return h.toolError(ctx, "create_sales_document", err), nil
	}
	h.logger.InfoContext(ctx, "sales document created", "id", item["id"])
	return jsonResult(item)
}

func (h *handlers) finalizeSalesDocument(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	documentID, err := req.RequireString("document_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if err := validateResourceID(documentID, "document_id"); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	payload := resourcePayload("commercial_sales_documents", documentID, map[string]any{"status": 1})
	raw, err := h.client.Patch(ctx, "/api/commercial_sales_documents", payload)
	if err != nil {
		return h.toolError(ctx, "finalize_sales_document", err), nil
	}

	item, err := unwrapItem(raw)
	if err != nil {
		return h.toolError(ctx, "finalize_sales_document", err), nil
	}
	h.logger.InfoContext(ctx, "sales document finalized", "id", documentID)
	return jsonResult(item)
}

func (h *handlers) deleteSalesDocument(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	documentID, err := req.RequireString("document_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if err := validateResourceID(documentID, "document_id"); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	raw, err := h.client.Delete(ctx, "/api/commercial_sales_documents/"+documentID, nil)
	if err != nil {
		return h.toolError(ctx, "delete_sales_document", err), nil
	}

	meta, err := unwrapMeta(raw)
	if err != nil {
		return h.toolError(ctx, "delete_sales_document", err), nil
	}
	h.logger.InfoContext(ctx, "sales document deleted", "id", documentID)
	return jsonResult(meta)
}

func (h *handlers) getSalesDocumentPDFURL(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	documentID, err := req.RequireString("document_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if err := validateResourceID(documentID, "document_id"); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	query := url.Values{"filter[type]": {"Document"}}
	raw, err := h.client.Get(ctx, "/api/url_for_print/"+documentID, query)
	if err != nil {
		return h.toolError(ctx, "get_sales_document_pdf_url", err), nil
	}

	item, err := unwrapItem(raw)
	if err != nil {
		return h.toolError(ctx, "get_sales_document_pdf_url", err), nil
	}

	// The response nests the URL parts under a url attribute. Assemble a
	// convenience full_url when all parts are present.
	if urlObj, ok := item["url"].(map[string]any); ok {
		if host, ok := urlObj["host"].(string); ok && host != "" {
			scheme, _ := urlObj["scheme"].(string)
			if scheme == "" {
				scheme = "https"
			}
			path, _ := urlObj["path"].(string)
			port, ok := urlObj["port"].(float64)
			if !ok {
				port = 443
			}
			item["full_url"] = fmt.Sprintf("%s://%s:%d%s", scheme, host, int(port), path)
		}
	}
	return jsonResult(item)
}

func (h *handlers) sendSalesDocumentEmail(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	documentID, err := req.RequireString("document_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if err := validateResourceID(documentID, "document_id"); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	attrs := map[string]any{"type": "Document"}
	for _, key := range []string{"to_email", "from_email", "from_name", "subject"} {
		value, err := req.RequireString(key)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		attrs[key] = value
	}

	payload := resourcePayload("email/document", documentID, attrs)
	raw, err := h.client.Patch(ctx, "/api/email/document", payload)
	if err != nil {
		return h.toolError(ctx, "send_sales_document_email", err), nil
	}

	meta, err := unwrapMeta(raw)
	if err != nil {
		return h.toolError(ctx, "send_sales_document_email", err), nil
	}
	h.logger.InfoContext(ctx, "sales document emailed", "id", documentID, "to", attrs["to_email"])
	return jsonResult(meta)
}
