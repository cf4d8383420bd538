package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

const replHelp = `
cognidb Interactive Shell — available commands:

  Health:
    ping                              Check daemon health
    status                            Storage/vector configuration (admin)

  Broker:
    register-actor <id> <name>        Register an actor
      register-actor <id> <name> --type origin --token <tok>
    subscribe <actor-id> <token> <topic>
      subscribe <actor-id> <token> <topic> --webhook-url <url> --webhook-secret <s>
    publish <source-id> <token> <event-name> <data-json>

  Shell:
    \help                             Show this help
    \status                           Show connection info
    \quit  (or exit, quit, Ctrl-D)    Exit
`

// runREPL starts the interactive shell. conn and httpClient are already
// initialised by the cobra PersistentPreRunE.
func runREPL(c *cli) {
	// Step 1: verify server is reachable (silent — no output).
	if err := c.silentGet("/healthz"); err != nil {
		fmt.Fprintf(os.Stderr, "error: cannot reach %s — %v\n", c.conn.BaseURL(), err)
		os.Exit(1)
	}

	// Step 2: if credentials provided, verify them (silent check).
	if c.conn.User != "" {
		if err := c.silentAdminGet("/status"); err != nil {
			fmt.Fprintf(os.Stderr, "error: authentication failed for user %q — check your credentials\n", c.conn.User)
			os.Exit(1)
		}
	}

	fmt.Printf("Connected to cognidb at %s\nType \\help for commands, \\quit to exit.\n\n", c.conn.BaseURL())

	scanner := bufio.NewScanner(os.Stdin)

	for {
		fmt.Print("cognidb> ")

		if !scanner.Scan() {
			fmt.Println()
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		if done := dispatchREPL(c, line); done {
			fmt.Println("Bye.")
			break
		}
	}
}

// dispatchREPL parses and executes one REPL line.
// Returns true when the user wants to quit.
func dispatchREPL(c *cli, line string) bool {
	parts := tokenize(line)
	if len(parts) == 0 {
		return false
	}
	cmd := strings.ToLower(parts[0])

	switch cmd {
	// ── Quit ────────────────────────────────────────────────
	case `\quit`, `\q`, "exit", "quit":
		return true

	// ── Help ────────────────────────────────────────────────
	case `\help`, `\h`, "help":
		fmt.Print(replHelp)

	// ── Status ──────────────────────────────────────────────
	case `\status`:
		fmt.Printf("server:  %s\n", c.conn.BaseURL())
		if c.conn.User != "" {
			fmt.Printf("user:    %s\n", c.conn.User)
		}

	case "ping":
		if err := c.getJSON("/healthz"); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
		}

	case "status":
		c.adminGet("/status") //nolint:errcheck

	case "register-actor":
		replRegisterActor(c, parts[1:])

	case "subscribe":
		replSubscribe(c, parts[1:])

	case "publish":
		replPublish(c, parts[1:])

	default:
		fmt.Fprintf(os.Stderr, "unknown command %q — type \\help for available commands\n", cmd)
	}

	return false
}

// ── REPL command helpers ─────────────────────────────────────

func replRegisterActor(c *cli, args []string) {
	if len(args) < 2 {
		fmt.Fprintln(os.Stderr, "usage: register-actor <id> <name> [--type source|origin] [--token <tok>] [--wildcard]")
		return
	}
	id, name := args[0], args[1]
	actorType := "source"
	token := ""
	wildcard := false

	for i := 2; i < len(args); i++ {
		switch args[i] {
		case "--type":
			if i+1 < len(args) {
				i++
				actorType = args[i]
			}
		case "--token":
			if i+1 < len(args) {
				i++
				token = args[i]
			}
		case "--wildcard":
			wildcard = true
		}
	}

	payload := map[string]any{
		"id":                     id,
		"name":                   name,
		"type":                   actorType,
		"token":                  token,
		"can_subscribe_wildcard": wildcard,
	}
	body, _ := json.Marshal(payload)
	c.adminPost("/v1/actors", string(body)) //nolint:errcheck
}

func replSubscribe(c *cli, args []string) {
	if len(args) < 3 {
		fmt.Fprintln(os.Stderr, "usage: subscribe <actor-id> <token> <topic> [--webhook-url <url>] [--webhook-secret <s>]")
		return
	}
	actorID, token, topic := args[0], args[1], args[2]
	webhookURL := ""
	webhookSecret := ""

	for i := 3; i < len(args); i++ {
		switch args[i] {
		case "--webhook-url":
			if i+1 < len(args) {
				i++
				webhookURL = args[i]
			}
		case "--webhook-secret":
			if i+1 < len(args) {
				i++
				webhookSecret = args[i]
			}
		}
	}

	payload := map[string]any{
		"actor_id": actorID,
		"token":    token,
		"topic":    topic,
	}
	if webhookURL != "" {
		payload["webhook_url"] = webhookURL
	}
	if webhookSecret != "" {
		payload["webhook_secret"] = webhookSecret
	}
	body, _ := json.Marshal(payload)
	c.adminPost("/v1/subscriptions", string(body)) //nolint:errcheck
}

func replPublish(c *cli, args []string) {
	if len(args) < 4 {
		fmt.Fprintln(os.Stderr, "usage: publish <source-id> <token> <event-name> <data-json>")
		return
	}
	payload := map[string]any{
		"source_id":  args[0],
		"token":      args[1],
		"event_name": args[2],
		"data":       json.RawMessage(args[3]),
	}
	body, _ := json.Marshal(payload)
	c.adminPost("/v1/events", string(body)) //nolint:errcheck
}

// tokenize splits a line into tokens respecting quoted strings.
func tokenize(line string) []string {
	var tokens []string
	var cur strings.Builder
	inQuote := false
	quoteChar := rune(0)

	for _, ch := range line {
		switch {
		case inQuote:
			if ch == quoteChar {
				inQuote = false
			} else {
				cur.WriteRune(ch)
			}
		case ch == '"' || ch == '\'':
			inQuote = true
			quoteChar = ch
		case ch == ' ' || ch == '\t':
			if cur.Len() > 0 {
				tokens = append(tokens, cur.String())
				cur.Reset()
			}
		default:
			cur.WriteRune(ch)
		}
	}
	if cur.Len() > 0 {
		tokens = append(tokens, cur.String())
	}
	return tokens
}
