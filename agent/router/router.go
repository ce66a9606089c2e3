// Package router maps classified intents onto ordered handler chains.
// The table is static and fully validated at construction; routing a
// request never allocates or decides anything dynamic.
package router

import (
	"errors"
	"fmt"

	contractx "github.com/tanpawarit/Difflin-Workflow-Engine/agent/contract"
	toolx "github.com/tanpawarit/Difflin-Workflow-Engine/agent/tool"
)

// chainTable is the routing policy: which handlers run, in order, for
// each intent. Sales runs first in a sale so later steps observe the
// committed state.
var chainTable = map[contractx.Intent][]contractx.HandlerName{
	contractx.IntentQuote:           {contractx.HandlerQuoting, contractx.HandlerInventory},
	contractx.IntentSale:            {contractx.HandlerSales, contractx.HandlerInventory, contractx.HandlerFinance},
	contractx.IntentInventoryCheck:  {contractx.HandlerInventory},
	contractx.IntentFinanceInquiry:  {contractx.HandlerFinance},
	contractx.IntentCustomerInquiry: {contractx.HandlerCustomerService},
}

type Router struct {
	handlers map[contractx.HandlerName]contractx.Handler
}

// New validates the routing table against the registered handlers and
// the tool catalog: every intent resolves, every chain entry exists,
// and every declared tool is a catalog tool.
func New(catalog *toolx.Catalog, handlers ...contractx.Handler) (*Router, error) {
	if catalog == nil {
		return nil, errors.New("tool catalog is required")
	}

	byName := make(map[contractx.HandlerName]contractx.Handler, len(handlers))
	for _, h := range handlers {
		if h == nil {
			return nil, errors.New("nil handler registered")
		}
		if _, dup := byName[h.Name()]; dup {
			return nil, fmt.Errorf("duplicate handler %s", h.Name())
		}
		for _, name := range h.Tools() {
			if _, ok := catalog.Info(name); !ok {
				return nil, fmt.Errorf("handler %s declares unknown tool %s", h.Name(), name)
			}
		}
		byName[h.Name()] = h
	}

	for intent, chain := range chainTable {
		if len(chain) == 0 {
			return nil, fmt.Errorf("intent %s has an empty chain", intent)
		}
		for _, name := range chain {
			if _, ok := byName[name]; !ok {
				return nil, fmt.Errorf("intent %s routes to unregistered handler %s", intent, name)
			}
		}
	}

	return &Router{handlers: byName}, nil
}

// Route returns the ordered handler chain for an intent. The same
// intent always yields the same chain.
func (r *Router) Route(intent contractx.Intent) ([]contractx.Handler, error) {
	names, ok := chainTable[intent]
	if !ok {
		return nil, fmt.Errorf("%w: %s", contractx.ErrUnknownIntent, intent)
	}

	chain := make([]contractx.Handler, 0, len(names))
	for _, name := range names {
		chain = append(chain, r.handlers[name])
	}
	return chain, nil
}

// ChainNames returns just the handler names for an intent, for audit
// records.
func (r *Router) ChainNames(intent contractx.Intent) ([]contractx.HandlerName, error) {
	names, ok := chainTable[intent]
	if !ok {
		return nil, fmt.Errorf("%w: %s", contractx.ErrUnknownIntent, intent)
	}
	return append([]contractx.HandlerName(nil), names...), nil
}
