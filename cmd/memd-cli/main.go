package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pior/memd"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML client config")
	nodes := flag.String("nodes", "127.0.0.1:11210", "comma separated node addresses, ignored with -config")
	metricsAddr := flag.String("metrics", "", "serve Prometheus metrics on this address")
	debug := flag.Bool("debug", false, "enable debug logging")
	flag.Parse()

	level := slog.LevelInfo
	if *debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	config, err := loadConfig(*configPath, *nodes)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	config.Logger = logger

	if *metricsAddr != "" {
		registry := prometheus.NewRegistry()
		config.Registerer = registry
		go func() {
			err := http.ListenAndServe(*metricsAddr, promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
			logger.Error("memd-cli: metrics server stopped", "error", err)
		}()
	}

	client, err := memd.NewClient(config)
	if err != nil {
		fmt.Printf("Failed to create client: %v\n", err)
		os.Exit(1)
	}
	defer client.Close()

	fmt.Println("memd CLI")
	fmt.Println("========")
	fmt.Println("Commands: get, set, add, replace, delete, incr, stats, ping, nodes, quit")
	fmt.Println()

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}

		parts := strings.Fields(scanner.Text())
		if len(parts) == 0 {
			continue
		}

		command := strings.ToLower(parts[0])
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)

		switch command {
		case "get":
			if len(parts) != 2 {
				fmt.Println("Usage: get <key>")
				break
			}
			handleGet(ctx, client, parts[1])

		case "set", "add", "replace":
			if len(parts) < 3 || len(parts) > 4 {
				fmt.Printf("Usage: %s <key> <value> [expiry_seconds]\n", command)
				break
			}
			var expiry uint64
			if len(parts) == 4 {
				if expiry, err = strconv.ParseUint(parts[3], 10, 32); err != nil {
					fmt.Printf("Invalid expiry: %v\n", err)
					break
				}
			}
			op := map[string]memd.StoreOp{"set": memd.StoreUpsert, "add": memd.StoreInsert, "replace": memd.StoreReplace}[command]
			handleStore(ctx, client, op, parts[1], parts[2], uint32(expiry))

		case "delete", "del":
			if len(parts) != 2 {
				fmt.Println("Usage: delete <key>")
				break
			}
			handleDelete(ctx, client, parts[1])

		case "incr":
			if len(parts) != 3 {
				fmt.Println("Usage: incr <key> <delta>")
				break
			}
			delta, err := strconv.ParseUint(parts[2], 10, 64)
			if err != nil {
				fmt.Printf("Invalid delta: %v\n", err)
				break
			}
			handleIncr(ctx, client, parts[1], delta)

		case "stats":
			group := ""
			if len(parts) > 1 {
				group = parts[1]
			}
			handleStats(ctx, client, group)

		case "ping":
			handlePing(ctx, client)

		case "nodes":
			handleNodes(client)

		case "help":
			fmt.Println("Commands:")
			fmt.Println("  get <key>                      - Get a document")
			fmt.Println("  set <key> <value> [expiry]     - Upsert a document")
			fmt.Println("  add <key> <value> [expiry]     - Insert a document")
			fmt.Println("  replace <key> <value> [expiry] - Replace a document")
			fmt.Println("  delete <key>                   - Remove a document")
			fmt.Println("  incr <key> <delta>             - Increment a counter")
			fmt.Println("  stats [group]                  - Show node statistics")
			fmt.Println("  ping                           - NOOP every node")
			fmt.Println("  nodes                          - Show pool and breaker state")
			fmt.Println("  quit                           - Exit the CLI")

		case "quit", "exit":
			cancel()
			fmt.Println("Goodbye!")
			return

		default:
			fmt.Printf("Unknown command: %s. Type 'help' for available commands.\n", command)
		}
		cancel()
	}

	if err := scanner.Err(); err != nil {
		fmt.Printf("Error reading input: %v\n", err)
	}
}

func loadConfig(path, nodes string) (*memd.Config, error) {
	if path != "" {
		return memd.LoadConfig(path)
	}
	config := memd.DefaultConfig()
	config.Nodes = strings.Split(nodes, ",")
	return config, nil
}

func printContext(ctx *memd.Context, duration time.Duration) {
	if ctx.Status.OK() {
		fmt.Printf("OK cas=%d endpoint=%s (took %v)\n", ctx.CAS, ctx.Endpoint, duration)
		return
	}
	fmt.Printf("Error: %v (status 0x%04x, took %v)\n", ctx.Status, uint16(ctx.StatusCode), duration)
	if ref, ok := ctx.ErrorRef(); ok {
		fmt.Printf("  ref: %s\n", ref)
	}
	if msg, ok := ctx.ErrorContext(); ok {
		fmt.Printf("  context: %s\n", msg)
	}
}

func handleGet(ctx context.Context, client *memd.Client, key string) {
	start := time.Now()
	res, err := client.Get(ctx, key)
	duration := time.Since(start)
	if err != nil {
		fmt.Printf("Error: %v (took %v)\n", err, duration)
		return
	}
	if errors.Is(res.Status, memd.ErrDocumentNotFound) {
		fmt.Printf("Key not found (took %v)\n", duration)
		return
	}
	printContext(res.Ctx(), duration)
	if res.Status.OK() {
		fmt.Printf("Value: %s\n", string(res.Value))
		fmt.Printf("Flags: 0x%08x Datatype: 0x%02x\n", res.ItemFlags, uint8(res.Datatype))
	}
}

func handleStore(ctx context.Context, client *memd.Client, op memd.StoreOp, key, value string, expiry uint32) {
	start := time.Now()
	res, err := client.Store(ctx, op, key, []byte(value), memd.StoreOptions{Expiry: expiry})
	duration := time.Since(start)
	if err != nil {
		fmt.Printf("Error: %v (took %v)\n", err, duration)
		return
	}
	printContext(res.Ctx(), duration)
	if tok, ok := res.MutationToken(); ok {
		fmt.Printf("Token: vb=%d uuid=%d seqno=%d\n", tok.VBucket, tok.UUID, tok.Seqno)
	}
}

func handleDelete(ctx context.Context, client *memd.Client, key string) {
	start := time.Now()
	res, err := client.Remove(ctx, key, 0)
	duration := time.Since(start)
	if err != nil {
		fmt.Printf("Error: %v (took %v)\n", err, duration)
		return
	}
	printContext(res.Ctx(), duration)
}

func handleIncr(ctx context.Context, client *memd.Client, key string, delta uint64) {
	start := time.Now()
	res, err := client.Increment(ctx, key, delta, 0, 0)
	duration := time.Since(start)
	if err != nil {
		fmt.Printf("Error: %v (took %v)\n", err, duration)
		return
	}
	printContext(res.Ctx(), duration)
	if res.Status.OK() {
		fmt.Printf("Value: %d\n", res.Value)
	}
}

func handleStats(ctx context.Context, client *memd.Client, group string) {
	entries, err := client.Stats(ctx, group)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	for _, e := range entries {
		fmt.Printf("%s %s = %s\n", e.Server, e.StatKey, e.StatValue)
	}
}

func handlePing(ctx context.Context, client *memd.Client) {
	for i, node := range client.Topology().Nodes() {
		start := time.Now()
		res, err := client.Noop(ctx, i)
		duration := time.Since(start)
		switch {
		case err != nil:
			fmt.Printf("%s: %v (took %v)\n", node, err, duration)
		default:
			fmt.Printf("%s: %v (took %v)\n", node, res.Status, duration)
		}
	}
}

func handleNodes(client *memd.Client) {
	for _, s := range client.NodeStats() {
		fmt.Printf("%s [%d] conns=%d idle=%d created=%d destroyed=%d breaker=%s failures=%d\n",
			s.Addr, s.Index,
			s.PoolStats.TotalConns, s.PoolStats.IdleConns,
			s.PoolStats.CreatedConns, s.PoolStats.DestroyedConns,
			s.CircuitBreakerState, s.CircuitBreakerCounts.TotalFailures)
	}
	d := client.Dispatcher().Stats()
	fmt.Printf("dispatch: dispatched=%d delivered=%d client_generated=%d protocol_errors=%d tokens=%d\n",
		d.Dispatched, d.Delivered, d.ClientGenerated, d.ProtocolErrors, d.TokensMerged)
}
