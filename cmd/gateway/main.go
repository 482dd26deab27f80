package main

import (
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/nexusgate/oauth-llm-gateway/internal/adminstore"
	"github.com/nexusgate/oauth-llm-gateway/internal/applog"
	"github.com/nexusgate/oauth-llm-gateway/internal/config"
	"github.com/nexusgate/oauth-llm-gateway/internal/gatewayhttp"
	"github.com/nexusgate/oauth-llm-gateway/internal/identity"
	"github.com/nexusgate/oauth-llm-gateway/internal/keystore"
	"github.com/nexusgate/oauth-llm-gateway/internal/modelcatalog"
	"github.com/nexusgate/oauth-llm-gateway/internal/pool"
	"github.com/nexusgate/oauth-llm-gateway/internal/store"
	"github.com/nexusgate/oauth-llm-gateway/internal/upstream"
	"github.com/nexusgate/oauth-llm-gateway/internal/version"
)

func main() {
	dataDir := os.Getenv("GATEWAY_DATA_DIR")
	if dataDir == "" {
		dataDir = "./data"
	}
	configPath := os.Getenv("GATEWAY_CONFIG_PATH")
	if configPath == "" {
		configPath = filepath.Join(dataDir, "config.json")
	}
	catalogPath := os.Getenv("GATEWAY_MODEL_CATALOG_PATH")

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("❌ gateway: load config: %v", err)
	}

	accountsFS, err := store.New(filepath.Join(dataDir, "accounts.json"))
	if err != nil {
		log.Fatalf("❌ gateway: accounts store: %v", err)
	}
	apiKeysFS, err := store.New(filepath.Join(dataDir, "api_keys.json"))
	if err != nil {
		log.Fatalf("❌ gateway: api keys store: %v", err)
	}
	logsFS, err := store.New(filepath.Join(dataDir, "app_logs.json"))
	if err != nil {
		log.Fatalf("❌ gateway: logs store: %v", err)
	}

	endpoint := pool.DefaultEndpoint(cfg.OAuth.ClientID, cfg.OAuth.ClientSecret)
	credPool, err := pool.New(accountsFS, endpoint)
	if err != nil {
		log.Fatalf("❌ gateway: credential pool: %v", err)
	}

	keys, err := keystore.New(apiKeysFS)
	if err != nil {
		log.Fatalf("❌ gateway: key store: %v", err)
	}

	logs, err := applog.New(logsFS)
	if err != nil {
		log.Fatalf("❌ gateway: log buffer: %v", err)
	}

	catalog, err := modelcatalog.Load(catalogPath)
	if err != nil {
		log.Fatalf("❌ gateway: model catalog: %v", err)
	}

	upstreamClient := upstream.New(upstream.Config{
		BaseURLs:  []string{cfg.API.URL},
		UserAgent: cfg.API.UserAgent,
	})

	admin, err := adminstore.Open(filepath.Join(dataDir, "admin.sqlite"))
	if err != nil {
		log.Fatalf("❌ gateway: admin store: %v", err)
	}

	state := &gatewayhttp.State{
		Pool:        credPool,
		Keys:        keys,
		Identity:    identity.New(),
		Catalog:     catalog,
		Upstream:    upstreamClient,
		Logs:        logs,
		Config:      cfg,
		Admin:       admin,
		CountTokens: gatewayhttp.NewDefaultCountTokens(),
	}

	// Background flush tasks are started exactly once at boot.
	stopKeyFlush := keys.StartFlushLoop(60 * time.Second)
	defer stopKeyFlush()
	stopLogFlush := logs.StartFlushLoop(42 * time.Second)
	defer stopLogFlush()

	router := gatewayhttp.NewRouter(state)

	port := cfg.Server.Port
	if port == 0 {
		port = 8080
	}
	addr := cfg.Server.Host + ":" + strconv.Itoa(port)
	logs.Log("info", "gateway starting on "+addr)
	log.Printf("🚀 oauth-llm-gateway %s starting on http://%s", version.Version, addr)
	log.Printf("🔌 OpenAI API: http://%s/v1", addr)
	log.Printf("🔌 Anthropic API: http://%s/anthropic/v1", addr)
	log.Printf("🔑 credentials loaded: %d enabled", credPool.EnabledCount())

	if err := http.ListenAndServe(addr, router); err != nil {
		log.Fatalf("❌ gateway: server failed: %v", err)
	}
}
