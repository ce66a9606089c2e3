package main

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	classifyx "github.com/tanpawarit/Difflin-Workflow-Engine/agent/classify"
	contractx "github.com/tanpawarit/Difflin-Workflow-Engine/agent/contract"
	handlersx "github.com/tanpawarit/Difflin-Workflow-Engine/agent/handlers"
	historyx "github.com/tanpawarit/Difflin-Workflow-Engine/agent/history"
	ledgerx "github.com/tanpawarit/Difflin-Workflow-Engine/agent/ledger"
	orchestratorx "github.com/tanpawarit/Difflin-Workflow-Engine/agent/orchestrator"
	routerx "github.com/tanpawarit/Difflin-Workflow-Engine/agent/router"
	rulesx "github.com/tanpawarit/Difflin-Workflow-Engine/agent/rules"
	toolx "github.com/tanpawarit/Difflin-Workflow-Engine/agent/tool"
	configx "github.com/tanpawarit/Difflin-Workflow-Engine/pkg/config"
	_ "github.com/tanpawarit/Difflin-Workflow-Engine/pkg/logger/autoload"
	openrouterx "github.com/tanpawarit/Difflin-Workflow-Engine/pkg/openrouter"
	qstashx "github.com/tanpawarit/Difflin-Workflow-Engine/pkg/qstash"
)

type AppConfig struct {
	ListenAddr     string `envconfig:"LISTEN_ADDR" split_words:"true" default:":8080"`
	StoreBackend   string `envconfig:"STORE_BACKEND" split_words:"true" default:"memory"`
	HistoryBackend string `envconfig:"HISTORY_BACKEND" split_words:"true" default:"memory"`
	Classifier     string `envconfig:"CLASSIFIER" split_words:"true" default:"stub"`
	AuditPublish   bool   `envconfig:"AUDIT_PUBLISH" split_words:"true" default:"false"`
}

type resourceStore interface {
	ledgerx.Store
	toolx.InventoryReader
	toolx.QuoteSearcher
}

func main() {
	ctx := context.Background()
	appCfg := configx.MustNew[AppConfig]("")

	store := newResourceStore(ctx, appCfg)

	coordinator, err := ledgerx.NewCoordinator(store)
	if err != nil {
		log.Fatal().Err(err).Msg("build coordinator")
	}

	catalog := toolx.NewCatalog()
	gateway, err := toolx.NewGateway(catalog, toolx.Backends(store, store, coordinator))
	if err != nil {
		log.Fatal().Err(err).Msg("build tool gateway")
	}

	router, err := routerx.New(catalog,
		handlersx.NewInventory(gateway),
		handlersx.NewQuoting(gateway),
		handlersx.NewSales(gateway),
		handlersx.NewFinance(gateway),
		handlersx.NewCustomerService(gateway),
	)
	if err != nil {
		log.Fatal().Err(err).Msg("build router")
	}

	rules, err := rulesx.NewEngine(rulesx.BuiltinRules()...)
	if err != nil {
		log.Fatal().Err(err).Msg("build rule engine")
	}

	engine, err := orchestratorx.New(
		newClassifier(ctx, appCfg),
		router,
		rules,
		newHistoryStore(appCfg),
		newPublisher(appCfg),
	)
	if err != nil {
		log.Fatal().Err(err).Msg("build workflow engine")
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("POST /requests", func(w http.ResponseWriter, r *http.Request) {
		var in struct {
			CustomerID string `json:"customer_id"`
			Text       string `json:"text"`
		}
		if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}

		result, err := engine.Process(r.Context(), contractx.Request{
			CustomerID: strings.TrimSpace(in.CustomerID),
			RawText:    in.Text,
		})
		if err != nil {
			http.Error(w, "request could not be processed", http.StatusUnprocessableEntity)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(result)
	})

	log.Info().Str("addr", appCfg.ListenAddr).Msg("workflow engine listening")
	if err := http.ListenAndServe(appCfg.ListenAddr, mux); err != nil {
		log.Fatal().Err(err).Msg("http server stopped")
	}
}

func newResourceStore(ctx context.Context, cfg *AppConfig) resourceStore {
	switch cfg.StoreBackend {
	case "postgres":
		pgCfg := configx.MustNew[ledgerx.PostgresConfig]("POSTGRES")
		db, err := ledgerx.NewDB(*pgCfg)
		if err != nil {
			log.Fatal().Err(err).Msg("connect postgres")
		}
		store, err := ledgerx.NewBunStore(db)
		if err != nil {
			log.Fatal().Err(err).Msg("build postgres store")
		}
		if err := store.CreateSchema(ctx); err != nil {
			log.Fatal().Err(err).Msg("create schema")
		}
		return store
	case "memory":
		store := ledgerx.NewMemoryStore()
		store.SeedInventory(
			contractx.InventoryItem{SKU: "A4-PAPER", QuantityOnHand: 100, ReorderThreshold: 20, UnitPriceCents: 500},
			contractx.InventoryItem{SKU: "STAPLER", QuantityOnHand: 40, ReorderThreshold: 10, UnitPriceCents: 1200},
			contractx.InventoryItem{SKU: "INK-CART", QuantityOnHand: 25, ReorderThreshold: 15, UnitPriceCents: 3500},
		)
		store.SeedCash(ledgerx.DefaultCashAccount, 5_000_000)
		return store
	default:
		log.Fatal().Str("backend", cfg.StoreBackend).Msg("unknown store backend")
		return nil
	}
}

func newClassifier(ctx context.Context, cfg *AppConfig) contractx.Classifier {
	switch cfg.Classifier {
	case "llm":
		openRouterCfg := configx.MustNew[openrouterx.Config]("OPENROUTER")
		if err := openrouterx.Preflight(ctx, *openRouterCfg); err != nil {
			log.Fatal().Err(err).Msg("openrouter preflight")
		}
		chatModel, err := openRouterCfg.New(ctx)
		if err != nil {
			log.Fatal().Err(err).Msg("build chat model")
		}
		classifier, err := classifyx.NewLLMClassifier(ctx, chatModel, "")
		if err != nil {
			log.Fatal().Err(err).Msg("build llm classifier")
		}
		return classifier
	case "stub":
		return classifyx.NewStub()
	default:
		log.Fatal().Str("classifier", cfg.Classifier).Msg("unknown classifier")
		return nil
	}
}

func newHistoryStore(cfg *AppConfig) contractx.HistoryStore {
	switch cfg.HistoryBackend {
	case "upstash":
		redisCfg := configx.MustNew[historyx.UpstashRedisConfig]("UPSTASH_REDIS")
		store, err := historyx.NewUpstashRedisStore(*redisCfg)
		if err != nil {
			log.Fatal().Err(err).Msg("build upstash history store")
		}
		return store
	case "memory":
		return historyx.NewMemoryStore()
	default:
		log.Fatal().Str("backend", cfg.HistoryBackend).Msg("unknown history backend")
		return nil
	}
}

func newPublisher(cfg *AppConfig) contractx.Publisher {
	if !cfg.AuditPublish {
		return nil
	}
	qstashCfg := configx.MustNew[qstashx.Config]("QSTASH")
	return qstashx.MustNew(*qstashCfg)
}
