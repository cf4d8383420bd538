package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/denizumutdereli/cognidb/pkg/api/apierr"
	"github.com/denizumutdereli/cognidb/pkg/attention"
	"github.com/denizumutdereli/cognidb/pkg/broker"
	"github.com/denizumutdereli/cognidb/pkg/cognitive"
	"github.com/denizumutdereli/cognidb/pkg/config"
	"github.com/denizumutdereli/cognidb/pkg/daemon"
	"github.com/denizumutdereli/cognidb/pkg/delivery"
	"github.com/denizumutdereli/cognidb/pkg/memstore"
	"github.com/denizumutdereli/cognidb/pkg/table"
	"github.com/denizumutdereli/cognidb/pkg/thoughtproc"
	"github.com/denizumutdereli/cognidb/pkg/vector"
	"github.com/denizumutdereli/cognidb/pkg/view"
)

func main() {
	var overrides config.CLIOverrides

	rootCmd := &cobra.Command{
		Use:   "cognidb",
		Short: "cognidb - columnar storage, vector search, and an actor-event fabric over a cognitive loop",
		Long:  "A persistent cognitive data platform: columnar table storage, vector similarity search, a thought/memory graph with attention routing, and an actor-based event broker with webhook delivery.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Flags(), &overrides)
		},
		SilenceUsage: true,
	}

	f := rootCmd.Flags()
	overrides.ConfigPath = f.StringP("config", "f", "", "Path to YAML config file (overrides COGNIDB_CONFIG env)")
	overrides.HTTPAddr = f.String("http-addr", "", "HTTP listen address")
	overrides.DataPath = f.String("data-path", "", "Data directory for tables, memories, and the vector index")
	overrides.Compression = f.String("compression", "", "Block compression codec: none|lz4|zstd|snappy")
	overrides.VectorEnabled = f.Bool("vector", false, "Enable the vector index layer")
	overrides.VectorDim = f.Int("vector-dim", 0, "Embedding dimensionality")
	overrides.AdminEnabled = f.Bool("admin", false, "Enable admin status endpoints")
	overrides.AdminUser = f.String("admin-user", "", "Admin username")
	overrides.AdminPassword = f.String("admin-password", "", "Admin password")
	overrides.AllowedOrigins = f.String("allowed-origins", "", "CORS allowed origins (comma-separated, \"*\" for all)")
	overrides.TLSCert = f.String("tls-cert", "", "Path to TLS certificate file")
	overrides.TLSKey = f.String("tls-key", "", "Path to TLS private key file")

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(flags *pflag.FlagSet, overrides *config.CLIOverrides) error {
	configPath := ""
	if overrides.ConfigPath != nil && *overrides.ConfigPath != "" {
		configPath = *overrides.ConfigPath
	} else {
		configPath = os.Getenv("COGNIDB_CONFIG")
	}

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	applyExplicitFlags(flags, cfg, overrides)

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	log.Printf("Data path: %s", cfg.Storage.DataPath)
	log.Printf("HTTP: %s", cfg.Server.HTTPAddr)

	if err := os.MkdirAll(cfg.Storage.DataPath, 0755); err != nil {
		return fmt.Errorf("failed to create data path: %w", err)
	}

	engine := table.New(cfg.Storage.BlockSize, cfg.Storage.CompressionKind())
	log.Println("Table engine initialized")

	var idx *vector.Flat
	if cfg.Vector.Enabled {
		idx = vector.NewFlat(cfg.Vector.Dim)
		log.Printf("Vector index initialized (kind=%s, dim=%d)", cfg.Vector.IndexKind, cfg.Vector.Dim)
	} else {
		log.Println("Vector layer disabled (enable with --vector or COGNIDB_VECTOR_ENABLED=true)")
	}

	store, err := memstore.NewStore(filepath.Join(cfg.Storage.DataPath, "memstore"), idx)
	if err != nil {
		return fmt.Errorf("failed to initialize memory store: %w", err)
	}
	log.Println("Memory store initialized")

	graph := cognitive.NewGraph(store)
	router := attention.New(graph)
	processor := thoughtproc.NewProcessor(graph, cfg.Cognitive.MaxParallelThoughts)
	scheduler := thoughtproc.NewScheduler()
	log.Println("Cognitive graph, attention router, and thought processor initialized")

	registry := broker.New()
	deliveryClient := delivery.NewClient()
	dispatcher := broker.NewDispatcher(registry, deliveryClient, cfg.Delivery.RequestTimeout)
	log.Println("Actor registry and dispatcher initialized")

	viewManager := view.NewManager(func(ctx context.Context, v *view.View, incremental bool) error {
		plan, ok := v.Plan.(table.ViewPlan)
		if !ok {
			return fmt.Errorf("view %q has no table.ViewPlan attached", v.Name)
		}
		return engine.MaterializeFull(ctx, plan)
	})
	viewManager.Start()
	log.Println("View manager started")

	// dispatchThought is left unwired (nil) here: this binary hosts the
	// engine for embedders, who schedule and interpret their own thought
	// content; nothing in the daemon process itself produces thoughts to
	// drain.
	daemons := daemon.NewDaemonManager(router, scheduler, processor, viewManager, nil)
	daemons.SetIntervals(cfg.Cognitive.AttentionTickInterval, 100*time.Millisecond, 1*time.Second)
	daemons.Start()
	log.Println("Background daemons started")

	ctx, cancel := context.WithCancel(context.Background())

	httpServer := newStatusServer(cfg, registry, dispatcher)
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("HTTP server error: %v", err)
		}
	}()

	log.Println("cognidb is ready!")
	log.Println("--------------------------------------------")

	waitForShutdown(ctx, cancel)

	log.Println("Initiating graceful shutdown...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("HTTP shutdown error: %v", err)
	}
	daemons.Stop()
	viewManager.Stop()

	log.Println("cognidb shutdown complete")
	return nil
}

// waitForShutdown blocks until SIGINT/SIGTERM, then cancels ctx.
func waitForShutdown(ctx context.Context, cancel context.CancelFunc) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-sigCh:
		log.Printf("Received signal: %v", sig)
	case <-ctx.Done():
	}
	cancel()
}

// newStatusServer builds the thin HTTP façade: health/status endpoints plus
// the broker's three external operations (register_actor, subscribe,
// publish_event). A full REST surface over tables and views is a
// client-library concern, not this binary's.
func newStatusServer(cfg *config.Config, registry *broker.Registry, dispatcher *broker.Dispatcher) *http.Server {
	mux := http.NewServeMux()

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			apierr.MethodNotAllowed(w)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	})

	mux.HandleFunc("/status", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			apierr.MethodNotAllowed(w)
			return
		}
		if !adminAuthorized(w, r, cfg) {
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"storage": map[string]any{
				"dataPath":    cfg.Storage.DataPath,
				"blockSize":   cfg.Storage.BlockSize,
				"compression": cfg.Storage.Compression,
			},
			"vector": map[string]any{
				"enabled": cfg.Vector.Enabled,
				"dim":     cfg.Vector.Dim,
				"kind":    cfg.Vector.IndexKind,
			},
		})
	})

	mux.HandleFunc("/v1/actors", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			apierr.MethodNotAllowed(w)
			return
		}
		if !adminAuthorized(w, r, cfg) {
			return
		}
		var req registerActorRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			apierr.InvalidJSON(w)
			return
		}
		actor, err := registry.RegisterActor(req.ID, req.Name, actorTypeFromString(req.Type), req.Token, req.CanSubscribeWildcard)
		if err != nil {
			apierr.FromError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"id": actor.ID, "name": actor.Name})
	})

	mux.HandleFunc("/v1/subscriptions", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			apierr.MethodNotAllowed(w)
			return
		}
		if !adminAuthorized(w, r, cfg) {
			return
		}
		var req subscribeRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			apierr.InvalidJSON(w)
			return
		}
		sub, err := registry.Subscribe(req.ActorID, req.Token, req.Topic)
		if err != nil {
			apierr.FromError(w, err)
			return
		}
		if req.WebhookURL != "" {
			var secret *string
			if req.WebhookSecret != "" {
				secret = &req.WebhookSecret
			}
			if err := dispatcher.SetDelivery(sub.ID, req.WebhookURL, secret, req.WebhookHeaders, nil); err != nil {
				apierr.FromError(w, err)
				return
			}
		}
		writeJSON(w, http.StatusCreated, map[string]any{"subscription_id": sub.ID, "topic": sub.Topic})
	})

	mux.HandleFunc("/v1/events", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			apierr.MethodNotAllowed(w)
			return
		}
		if !adminAuthorized(w, r, cfg) {
			return
		}
		var req publishRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			apierr.InvalidJSON(w)
			return
		}
		if err := dispatcher.Publish(r.Context(), req.SourceID, req.Token, req.EventName, req.Data); err != nil {
			apierr.FromError(w, err)
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]any{"accepted": true})
	})

	return &http.Server{
		Addr:         cfg.Server.HTTPAddr,
		Handler:      withCORS(mux, cfg.Security.AllowedOrigins),
		ReadTimeout:  cfg.Security.ReadTimeout,
		WriteTimeout: cfg.Security.WriteTimeout,
	}
}

type registerActorRequest struct {
	ID                   string `json:"id"`
	Name                 string `json:"name"`
	Type                 string `json:"type"`
	Token                string `json:"token"`
	CanSubscribeWildcard bool   `json:"can_subscribe_wildcard"`
}

type subscribeRequest struct {
	ActorID        string            `json:"actor_id"`
	Token          string            `json:"token"`
	Topic          string            `json:"topic"`
	WebhookURL     string            `json:"webhook_url,omitempty"`
	WebhookSecret  string            `json:"webhook_secret,omitempty"`
	WebhookHeaders map[string]string `json:"webhook_headers,omitempty"`
}

type publishRequest struct {
	SourceID  string          `json:"source_id"`
	Token     string          `json:"token"`
	EventName string          `json:"event_name"`
	Data      json.RawMessage `json:"data"`
}

func actorTypeFromString(s string) broker.ActorType {
	if s == "origin" {
		return broker.Origin
	}
	return broker.Source
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func adminAuthorized(w http.ResponseWriter, r *http.Request, cfg *config.Config) bool {
	if !cfg.Admin.Enabled {
		return true
	}
	user, pass, ok := r.BasicAuth()
	if !ok || user != cfg.Admin.User || pass != cfg.Admin.Password {
		w.Header().Set("WWW-Authenticate", `Basic realm="cognidb admin"`)
		apierr.Unauthorized(w, "admin credentials required")
		return false
	}
	return true
}

func withCORS(next http.Handler, allowedOrigins string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if allowedOrigins != "" {
			w.Header().Set("Access-Control-Allow-Origin", allowedOrigins)
		}
		next.ServeHTTP(w, r)
	})
}

// applyExplicitFlags applies only the CLI flags that were explicitly set
// by the user on the command line. Unset flags are ignored so they do not
// override values resolved from YAML or environment variables.
func applyExplicitFlags(flags *pflag.FlagSet, cfg *config.Config, o *config.CLIOverrides) {
	overrides := config.CLIOverrides{}

	if flags.Changed("http-addr") {
		overrides.HTTPAddr = o.HTTPAddr
	}
	if flags.Changed("data-path") {
		overrides.DataPath = o.DataPath
	}
	if flags.Changed("compression") {
		overrides.Compression = o.Compression
	}
	if flags.Changed("vector") {
		overrides.VectorEnabled = o.VectorEnabled
	}
	if flags.Changed("vector-dim") {
		overrides.VectorDim = o.VectorDim
	}
	if flags.Changed("admin") {
		overrides.AdminEnabled = o.AdminEnabled
	}
	if flags.Changed("admin-user") {
		overrides.AdminUser = o.AdminUser
	}
	if flags.Changed("admin-password") {
		overrides.AdminPassword = o.AdminPassword
	}
	if flags.Changed("allowed-origins") {
		overrides.AllowedOrigins = o.AllowedOrigins
	}
	if flags.Changed("tls-cert") {
		overrides.TLSCert = o.TLSCert
	}
	if flags.Changed("tls-key") {
		overrides.TLSKey = o.TLSKey
	}

	cfg.ApplyCLIOverrides(&overrides)
}
