// Package orchestrator wires the workflow pipeline together: classify,
// route, rule check, run the handler chain, record history, answer.
package orchestrator

import (
	"context"
	"errors"
	"time"

	"github.com/cloudwego/eino/compose"
	"github.com/rs/zerolog/log"
	contractx "github.com/tanpawarit/Difflin-Workflow-Engine/agent/contract"
	metricsx "github.com/tanpawarit/Difflin-Workflow-Engine/agent/metrics"
	nodex "github.com/tanpawarit/Difflin-Workflow-Engine/agent/nodes"
	routerx "github.com/tanpawarit/Difflin-Workflow-Engine/agent/router"
	rulesx "github.com/tanpawarit/Difflin-Workflow-Engine/agent/rules"
)

type Engine struct {
	classifier contractx.Classifier
	router     *routerx.Router
	rules      *rulesx.Engine
	history    contractx.HistoryStore
	publisher  contractx.Publisher

	graphRunner compose.Runnable[nodex.GraphInput, nodex.GraphOutput]

	now func() time.Time
}

func New(
	classifier contractx.Classifier,
	router *routerx.Router,
	rules *rulesx.Engine,
	history contractx.HistoryStore,
	publisher contractx.Publisher,
) (*Engine, error) {
	if classifier == nil {
		return nil, errors.New("classifier is required")
	}
	if router == nil {
		return nil, errors.New("router is required")
	}
	if rules == nil {
		return nil, errors.New("rule engine is required")
	}
	if history == nil {
		return nil, errors.New("history store is required")
	}

	e := &Engine{
		classifier: classifier,
		router:     router,
		rules:      rules,
		history:    history,
		publisher:  publisher,
		now:        time.Now,
	}

	graphRunner, err := e.compileProcessGraph(context.Background())
	if err != nil {
		return nil, err
	}
	e.graphRunner = graphRunner

	return e, nil
}

// Process runs one request through the whole workflow and returns the
// sanitized customer-facing result.
func (e *Engine) Process(ctx context.Context, req contractx.Request) (contractx.CustomerResult, error) {
	out, err := e.graphRunner.Invoke(ctx, nodex.GraphInput{Request: req})
	if err != nil {
		return contractx.CustomerResult{}, err
	}

	result := out.Result
	metricsx.RequestsProcessed.WithLabelValues(string(result.Status)).Inc()
	log.Info().
		Str("request_id", result.RequestID).
		Str("status", string(result.Status)).
		Msg("request processed")
	return result, nil
}

// ReloadRules atomically swaps the active rule set. In-flight requests
// keep the snapshot they started with.
func (e *Engine) ReloadRules(rules ...rulesx.Rule) error {
	return e.rules.Reload(rules...)
}
