package tools

import (
	"context"
	"net/url"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// auxiliary tools are read-only lookup lists of reference data used when
// constructing other resources. They all share the same list shape, so the
// module is table-driven: one entry per endpoint with its filters.

type filterSpec struct {
	arg         string
	param       string
	description string
}

type lookupEndpoint struct {
	tool        string
	path        string
	description string
	filters     []filterSpec
	paginated   bool
}

var lookupEndpoints = []lookupEndpoint{
	{
		tool:        "list_taxes",
		path:        "/api/taxes",
		description: "Return available VAT tax rates for the company's fiscal region. Each item contains the tax id, code, percentage, region, and description. Use the returned id as tax_id when creating document lines.",
		filters: []filterSpec{
			{"region", "filter[tax_country_region]", "Optional tax country region filter. E.g. 'PT' for mainland Portugal, 'PT-AC' for Azores, 'PT-MA' for Madeira."},
			{"code", "filter[tax_code]", "Optional tax code filter. E.g. 'NOR', 'INT', 'RED', 'ISE'."},
			{"tax_percentage", "filter[tax_percentage]", "Filter by tax percentage value (e.g. '23', '6')."},
		},
		paginated: true,
	},
	{
		tool:        "list_countries",
		path:        "/api/countries",
		description: "Return all countries available in TOC Online. Each item contains the country id, ISO alpha-2 code, and name. Use the returned id as country_id in address and document attributes.",
		filters: []filterSpec{
			{"iso_alpha_2", "filter[iso_alpha_2]", "Filter by ISO alpha-2 country code (e.g. 'PT', 'ES', 'US')."},
		},
		paginated: true,
	},
	{
		tool:        "list_currencies",
		path:        "/api/currencies",
		description: "Return all currencies supported by TOC Online. Each item contains the currency id, ISO code (e.g. 'EUR', 'USD'), and name. Use the returned id as currency_id in document attributes.",
		paginated:   true,
	},
	{
		tool:        "list_units_of_measure",
		path:        "/api/units_of_measure",
		description: "Return all units of measure defined in TOC Online. Each item contains the unit id, abbreviation (e.g. 'UN', 'KG', 'HR'), and name. Use the returned id as unit_of_measure_id in document line attributes.",
		filters: []filterSpec{
			{"unit_of_measure", "filter[unit_of_measure]", "Filter by unit name (e.g. 'horas', 'quilogramas', 'unidade')."},
		},
		paginated: true,
	},
	{
		tool:        "list_item_families",
		path:        "/api/item_families",
		description: "Return all product/service families (categories) defined in TOC Online. Use the returned id as item_family_id when creating products or services.",
		paginated:   true,
	},
	{
		tool:        "list_document_series",
		path:        "/api/commercial_document_series",
		description: "Return all commercial document series available for the company. Each item contains the series id, name, document type, next sequence number, and fiscal year. Use the returned id as document_series_id when creating documents.",
		filters: []filterSpec{
			{"document_type", "filter[document_type]", "Optional document type filter (e.g. 'FT', 'FS', 'FF', 'RG')."},
			{"prefix", "filter[prefix]", "Filter by series prefix (e.g. 'A', 'B')."},
		},
		paginated: true,
	},
	{
		tool:        "list_bank_accounts",
		path:        "/api/bank_accounts",
		description: "Return all bank accounts configured for the company. Each item contains the account id, IBAN, bank name, and currency. Use the returned id as bank_account_id in payment attributes.",
		paginated:   true,
	},
	{
		tool:        "list_cash_accounts",
		path:        "/api/cash_accounts",
		description: "Return all cash accounts (caixas) configured for the company. Use the returned id as cash_account_id in receipt and payment attributes.",
		paginated:   true,
	},
	{
		tool:        "list_tax_descriptors",
		path:        "/api/tax_descriptors",
		description: "Return all tax descriptors (exemption reasons) in TOC Online. Use the returned id as tax_descriptor_id on document lines where the item is VAT-exempt.",
		paginated:   true,
	},
	{
		tool:        "list_oss_countries",
		path:        "/api/oss_countries",
		description: "Return all EU OSS (One Stop Shop) countries supported by TOC Online, with ISO codes and tax_country_region codes.",
	},
	{
		tool:        "list_oss_taxes",
		path:        "/api/oss_taxes",
		description: "Return OSS (One Stop Shop) VAT rates for all EU countries, with nor/int/red VAT bands per country.",
	},
}

func registerAuxiliary(srv *server.MCPServer, h *handlers) {
	for _, endpoint := range lookupEndpoints {
		opts := []mcp.ToolOption{mcp.WithDescription(endpoint.description)}
		for _, filter := range endpoint.filters {
			opts = append(opts, mcp.WithString(filter.arg, mcp.Description(filter.description)))
		}
		if endpoint.paginated {
			opts = append(opts, paginationOpts()...)
		}
		srv.AddTool(mcp.NewTool(endpoint.tool, opts...), h.lookupHandler(endpoint))
	}
}

func (h *handlers) lookupHandler(endpoint lookupEndpoint) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		query := url.Values{}
		for _, filter := range endpoint.filters {
			setFilter(query, filter.param, req.GetString(filter.arg, ""))
		}
		if endpoint.paginated {
			addPagination(req, query)
		}

		raw, err := h.client.Get(ctx, endpoint.path, query)
		if err != nil {
			return h.toolError(ctx, endpoint.tool, err), nil
		}

		result, err := unwrapList(raw)
		if err != nil {
			return h.toolError(ctx, endpoint.tool, err), nil
		}
		return jsonResult(result)
	}
}
