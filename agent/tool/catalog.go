package tool

import (
	"fmt"
	"math"
	"strings"

	"github.com/cloudwego/eino/schema"
	contractx "github.com/tanpawarit/Difflin-Workflow-Engine/agent/contract"
)

const (
	ToolCheckStock              = "check_stock"
	ToolGetItemPrice            = "get_item_price"
	ToolCreateTransaction       = "create_transaction"
	ToolGetAllInventory         = "get_all_inventory"
	ToolGetSupplierDeliveryDate = "get_supplier_delivery_date"
	ToolSearchQuoteHistory      = "search_quote_history"
	ToolGetCashBalance          = "get_cash_balance"
	ToolGenerateFinancialReport = "generate_financial_report"
)

// idempotentTools may be retried after a transient failure. Everything
// else is invoked at most once per proposal; create_transaction retries
// happen at the coordinator's commit step, never here.
var idempotentTools = map[string]bool{
	ToolCheckStock:              true,
	ToolGetItemPrice:            true,
	ToolGetAllInventory:         true,
	ToolGetSupplierDeliveryDate: true,
	ToolSearchQuoteHistory:      true,
	ToolGetCashBalance:          true,
	ToolGenerateFinancialReport: true,
}

// allowedTools is the capability table: which tools each handler
// variant may invoke. Mirrors the declared tool sets of the five
// business domains.
var allowedTools = map[contractx.HandlerName][]string{
	contractx.HandlerInventory: {
		ToolCheckStock,
		ToolCreateTransaction,
		ToolGetAllInventory,
		ToolGetSupplierDeliveryDate,
	},
	contractx.HandlerQuoting: {
		ToolGetItemPrice,
		ToolCheckStock,
		ToolSearchQuoteHistory,
		ToolGetCashBalance,
	},
	contractx.HandlerSales: {
		ToolCheckStock,
		ToolCreateTransaction,
		ToolGetItemPrice,
		ToolGenerateFinancialReport,
	},
	contractx.HandlerFinance: {
		ToolGetCashBalance,
		ToolGenerateFinancialReport,
		ToolCreateTransaction,
	},
	contractx.HandlerCustomerService: {
		ToolCheckStock,
		ToolGetItemPrice,
		ToolSearchQuoteHistory,
	},
}

func infos() map[string]*schema.ToolInfo {
	return map[string]*schema.ToolInfo{
		ToolCheckStock: {
			Name: ToolCheckStock,
			Desc: "Check the current stock level for a given SKU.",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
				"sku": {Type: schema.String, Desc: "Item SKU", Required: true},
			}),
		},
		ToolGetItemPrice: {
			Name: ToolGetItemPrice,
			Desc: "Get the unit price in cents for a given SKU.",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
				"sku": {Type: schema.String, Desc: "Item SKU", Required: true},
			}),
		},
		ToolCreateTransaction: {
			Name: ToolCreateTransaction,
			Desc: "Commit inventory and cash deltas as one atomic transaction.",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
				"request_id":       {Type: schema.String, Desc: "Originating request id", Required: true},
				"sku":              {Type: schema.String, Desc: "Item SKU", Required: true},
				"quantity_delta":   {Type: schema.Integer, Desc: "Inventory delta in units", Required: true},
				"cash_delta_cents": {Type: schema.Integer, Desc: "Cash delta in cents", Required: true},
				"memo":             {Type: schema.String, Desc: "Ledger memo"},
			}),
		},
		ToolGetAllInventory: {
			Name:        ToolGetAllInventory,
			Desc:        "Get a complete snapshot of all inventory items.",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{}),
		},
		ToolGetSupplierDeliveryDate: {
			Name: ToolGetSupplierDeliveryDate,
			Desc: "Estimate the supplier delivery date for a restock order.",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
				"sku":      {Type: schema.String, Desc: "Item SKU", Required: true},
				"quantity": {Type: schema.Integer, Desc: "Order quantity", Required: true},
			}),
		},
		ToolSearchQuoteHistory: {
			Name: ToolSearchQuoteHistory,
			Desc: "Search historical quotes by customer id or SKU terms.",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
				"terms": {
					Type:     schema.Array,
					Desc:     "Search terms",
					Required: true,
					ElemInfo: &schema.ParameterInfo{Type: schema.String},
				},
				"limit": {Type: schema.Integer, Desc: "Max results"},
			}),
		},
		ToolGetCashBalance: {
			Name: ToolGetCashBalance,
			Desc: "Get the current cash balance in cents.",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
				"account": {Type: schema.String, Desc: "Cash account name"},
			}),
		},
		ToolGenerateFinancialReport: {
			Name: ToolGenerateFinancialReport,
			Desc: "Generate a financial report for a period.",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
				"period": {Type: schema.String, Desc: "Reporting period", Required: true},
			}),
		},
	}
}

// Catalog is the fixed tool schema registry.
type Catalog struct {
	infos map[string]*schema.ToolInfo
}

func NewCatalog() *Catalog {
	return &Catalog{infos: infos()}
}

func (c *Catalog) Info(tool string) (*schema.ToolInfo, bool) {
	info, ok := c.infos[tool]
	return info, ok
}

func (c *Catalog) Idempotent(tool string) bool {
	return idempotentTools[tool]
}

// AllowedFor returns the declared tool set for a handler variant.
func AllowedFor(handler contractx.HandlerName) []string {
	return append([]string(nil), allowedTools[handler]...)
}

// ValidateArgs checks args against the tool's declared parameter
// schema: required params present, types as declared, no undeclared
// params.
func (c *Catalog) ValidateArgs(toolName string, args map[string]any) error {
	info, ok := c.infos[toolName]
	if !ok {
		return fmt.Errorf("%w: %s", contractx.ErrUnknownTool, toolName)
	}

	params, err := info.ParamsOneOf.ToOpenAPIV3()
	if err != nil {
		return fmt.Errorf("%w: tool %s schema: %v", contractx.ErrValidation, toolName, err)
	}
	if params == nil {
		if len(args) != 0 {
			return fmt.Errorf("%w: tool %s takes no arguments", contractx.ErrValidation, toolName)
		}
		return nil
	}

	for name := range args {
		if _, declared := params.Properties[name]; !declared {
			return fmt.Errorf("%w: tool %s: undeclared argument %q", contractx.ErrValidation, toolName, name)
		}
	}

	for _, required := range params.Required {
		if _, present := args[required]; !present {
			return fmt.Errorf("%w: tool %s: missing required argument %q", contractx.ErrValidation, toolName, required)
		}
	}

	for name, ref := range params.Properties {
		val, present := args[name]
		if !present || ref == nil || ref.Value == nil {
			continue
		}
		if err := checkArgType(toolName, name, ref.Value.Type, val); err != nil {
			return err
		}
	}
	return nil
}

func checkArgType(toolName, argName, wantType string, val any) error {
	switch wantType {
	case "string":
		if _, ok := val.(string); !ok {
			return fmt.Errorf("%w: tool %s: argument %q must be a string", contractx.ErrValidation, toolName, argName)
		}
	case "integer":
		if !isIntegral(val) {
			return fmt.Errorf("%w: tool %s: argument %q must be an integer", contractx.ErrValidation, toolName, argName)
		}
	case "boolean":
		if _, ok := val.(bool); !ok {
			return fmt.Errorf("%w: tool %s: argument %q must be a boolean", contractx.ErrValidation, toolName, argName)
		}
	case "array":
		switch val.(type) {
		case []any, []string:
		default:
			return fmt.Errorf("%w: tool %s: argument %q must be an array", contractx.ErrValidation, toolName, argName)
		}
	}
	return nil
}

func isIntegral(val any) bool {
	switch v := val.(type) {
	case int, int32, int64:
		return true
	case float64:
		return v == math.Trunc(v)
	default:
		return false
	}
}

// IntArg reads an integer argument that may arrive as any numeric Go
// type after JSON decoding.
func IntArg(args map[string]any, name string) (int64, bool) {
	switch v := args[name].(type) {
	case int:
		return int64(v), true
	case int32:
		return int64(v), true
	case int64:
		return v, true
	case float64:
		return int64(v), true
	default:
		return 0, false
	}
}

// StringArg reads a trimmed string argument.
func StringArg(args map[string]any, name string) (string, bool) {
	v, ok := args[name].(string)
	if !ok {
		return "", false
	}
	return strings.TrimSpace(v), true
}

// StringsArg reads a string-array argument in either decoded form.
func StringsArg(args map[string]any, name string) ([]string, bool) {
	switch v := args[name].(type) {
	case []string:
		return v, true
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil, false
			}
			out = append(out, s)
		}
		return out, true
	default:
		return nil, false
	}
}
