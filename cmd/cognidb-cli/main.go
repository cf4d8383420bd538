package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/denizumutdereli/cognidb/pkg/connstring"
	"github.com/spf13/cobra"
)

// cli holds the shared state for all subcommands.
type cli struct {
	conn       *connstring.ConnInfo
	httpClient *http.Client
}

func main() {
	var connectStr string
	var interactive bool

	c := &cli{
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}

	rootCmd := &cobra.Command{
		Use:   "cognidb-cli",
		Short: "cognidb-cli — admin client for cognidb engines",
		Long:  "A command-line client for a running cognidb engine: health checks, status, and the actor/event broker surface.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if connectStr == "" {
				connectStr = os.Getenv("COGNIDB_URL")
			}
			if connectStr == "" {
				connectStr = "cognidb://localhost:6060"
			}
			info, err := connstring.Parse(connectStr)
			if err != nil {
				return fmt.Errorf("invalid connection string: %w", err)
			}
			c.conn = info
			return nil
		},
		// When called with no subcommand, drop into interactive shell.
		RunE: func(cmd *cobra.Command, args []string) error {
			runREPL(c)
			return nil
		},
	}

	rootCmd.PersistentFlags().StringVar(&connectStr, "connect", "", "Connection string (cognidb://[user:pass@]host[:port])")
	rootCmd.Flags().BoolVarP(&interactive, "interactive", "i", false, "Start interactive shell (default when no subcommand given)")

	// ── Health ──────────────────────────────────────────────
	rootCmd.AddCommand(&cobra.Command{
		Use:   "ping",
		Short: "Check daemon health",
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.getJSON("/healthz")
		},
	})

	// ── Status ──────────────────────────────────────────────
	rootCmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show storage/vector configuration (admin credentials required)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.adminGet("/status")
		},
	})

	// ── Actor registration ──────────────────────────────────
	registerActorCmd := &cobra.Command{
		Use:   "register-actor [id] [name]",
		Short: "Register a new actor with the broker",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			actorType, _ := cmd.Flags().GetString("type")
			token, _ := cmd.Flags().GetString("token")
			wildcard, _ := cmd.Flags().GetBool("can-subscribe-wildcard")

			payload := map[string]any{
				"id":                     args[0],
				"name":                   args[1],
				"type":                   actorType,
				"token":                  token,
				"can_subscribe_wildcard": wildcard,
			}
			body, err := json.Marshal(payload)
			if err != nil {
				return err
			}
			return c.adminPost("/v1/actors", string(body))
		},
	}
	registerActorCmd.Flags().String("type", "source", "Actor type: source|origin")
	registerActorCmd.Flags().String("token", "", "Bearer token this actor authenticates publish/subscribe calls with")
	registerActorCmd.Flags().Bool("can-subscribe-wildcard", false, "Allow this actor to subscribe to wildcard topics")
	rootCmd.AddCommand(registerActorCmd)

	// ── Subscriptions ────────────────────────────────────────
	subscribeCmd := &cobra.Command{
		Use:   "subscribe [actor-id] [token] [topic]",
		Short: "Subscribe an actor to a topic, optionally with webhook delivery",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			webhookURL, _ := cmd.Flags().GetString("webhook-url")
			webhookSecret, _ := cmd.Flags().GetString("webhook-secret")
			webhookHeaders, _ := cmd.Flags().GetStringToString("webhook-header")

			payload := map[string]any{
				"actor_id": args[0],
				"token":    args[1],
				"topic":    args[2],
			}
			if webhookURL != "" {
				payload["webhook_url"] = webhookURL
			}
			if webhookSecret != "" {
				payload["webhook_secret"] = webhookSecret
			}
			if len(webhookHeaders) > 0 {
				payload["webhook_headers"] = webhookHeaders
			}
			body, err := json.Marshal(payload)
			if err != nil {
				return err
			}
			return c.adminPost("/v1/subscriptions", string(body))
		},
	}
	subscribeCmd.Flags().String("webhook-url", "", "Deliver matching events to this URL")
	subscribeCmd.Flags().String("webhook-secret", "", "HMAC secret used to sign webhook deliveries")
	subscribeCmd.Flags().StringToString("webhook-header", nil, "Extra webhook headers, e.g. --webhook-header X-Team=infra")
	rootCmd.AddCommand(subscribeCmd)

	// ── Publish ──────────────────────────────────────────────
	publishCmd := &cobra.Command{
		Use:   "publish [source-id] [token] [event-name] [data-json]",
		Short: "Publish an event to the broker",
		Args:  cobra.ExactArgs(4),
		RunE: func(cmd *cobra.Command, args []string) error {
			payload := map[string]any{
				"source_id":  args[0],
				"token":      args[1],
				"event_name": args[2],
				"data":       json.RawMessage(args[3]),
			}
			body, err := json.Marshal(payload)
			if err != nil {
				return err
			}
			return c.adminPost("/v1/events", string(body))
		},
	}
	rootCmd.AddCommand(publishCmd)

	// --interactive flag explicitly requested
	rootCmd.PreRunE = func(cmd *cobra.Command, args []string) error {
		if interactive {
			runREPL(c)
			os.Exit(0)
		}
		return nil
	}

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// ── HTTP helpers ────────────────────────────────────────────

func (c *cli) doRequest(method, path, body string, admin bool) error {
	url := c.conn.BaseURL() + path

	var bodyReader io.Reader
	if body != "" {
		bodyReader = strings.NewReader(body)
	}

	req, err := http.NewRequest(method, url, bodyReader)
	if err != nil {
		return err
	}

	req.Header.Set("Content-Type", "application/json")

	if admin && c.conn.User != "" {
		req.SetBasicAuth(c.conn.User, c.conn.Password)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("connection failed: %w", err)
	}
	defer resp.Body.Close()

	data, _ := io.ReadAll(resp.Body)

	if resp.StatusCode >= 400 {
		fmt.Fprintf(os.Stderr, "Error %d: %s\n", resp.StatusCode, string(data))
		return fmt.Errorf("request failed with status %d", resp.StatusCode)
	}

	// Pretty-print JSON
	var prettyJSON map[string]any
	if err := json.Unmarshal(data, &prettyJSON); err == nil {
		out, _ := json.MarshalIndent(prettyJSON, "", "  ")
		fmt.Println(string(out))
	} else {
		fmt.Println(string(data))
	}

	return nil
}

func (c *cli) getJSON(path string) error {
	return c.doRequest("GET", path, "", false)
}

func (c *cli) adminGet(path string) error {
	return c.doRequest("GET", path, "", true)
}

func (c *cli) adminPost(path, body string) error {
	return c.doRequest("POST", path, body, true)
}

// silentGet and silentAdminGet perform a request without printing output —
// used for connection/auth verification in the REPL startup.
func (c *cli) silentGet(path string) error {
	return c.doSilentRequest("GET", path, "", false)
}

func (c *cli) silentAdminGet(path string) error {
	return c.doSilentRequest("GET", path, "", true)
}

func (c *cli) doSilentRequest(method, path, body string, admin bool) error {
	url := c.conn.BaseURL() + path
	req, err := http.NewRequest(method, url, strings.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if admin && c.conn.User != "" {
		req.SetBasicAuth(c.conn.User, c.conn.Password)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("connection failed: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	if resp.StatusCode >= 400 {
		return fmt.Errorf("HTTP %d", resp.StatusCode)
	}
	return nil
}
