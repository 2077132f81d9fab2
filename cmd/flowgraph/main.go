// Command flowgraph compiles and runs declarative LLM workflows.
//
// Usage:
//
//	flowgraph run workflow.yaml --inputs '{"topic":"go"}'   # execute a workflow
//	flowgraph run workflow.yaml --config flowgraph.yaml     # with engine config
//	flowgraph check workflow.yaml                           # compile only
//	flowgraph version                                       # show version
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/flowgraph-io/flowgraph"
	"github.com/flowgraph-io/flowgraph/capability"
	"github.com/flowgraph-io/flowgraph/config"
	"github.com/flowgraph-io/flowgraph/graph"
	"github.com/flowgraph-io/flowgraph/providers/openai"
	"github.com/flowgraph-io/flowgraph/store"
	toolgen "github.com/flowgraph-io/flowgraph/tools/openapi"
)

// Set via ldflags.
var (
	version   = "dev"
	buildTime = "unknown"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}
	switch os.Args[1] {
	case "run":
		os.Exit(cmdRun(os.Args[2:]))
	case "check":
		os.Exit(cmdCheck(os.Args[2:]))
	case "version":
		fmt.Printf("flowgraph %s (built %s)\n", version, buildTime)
	default:
		usage()
		os.Exit(2)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: flowgraph <run|check|version> [flags] workflow.yaml")
}

func fail(err error) int {
	fmt.Fprintln(os.Stderr, "flowgraph:", err)
	return 1
}

func cmdRun(args []string) int {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	configPath := fs.String("config", "", "engine configuration YAML")
	inputsJSON := fs.String("inputs", "{}", "workflow inputs as a JSON object")
	toolsSource := fs.String("tools", "", "OpenAPI document (URL or file) to expose as tools")
	timeout := fs.Duration("timeout", 0, "synchronous wait bound (0 = config default)")
	_ = fs.Parse(args)

	if fs.NArg() != 1 {
		usage()
		return 2
	}
	specPath := fs.Arg(0)

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fail(err)
	}
	logger, err := cfg.BuildLogger()
	if err != nil {
		return fail(err)
	}
	defer func() { _ = logger.Sync() }()

	var inputs map[string]any
	if err := json.Unmarshal([]byte(*inputsJSON), &inputs); err != nil {
		return fail(fmt.Errorf("parse --inputs: %w", err))
	}

	var llm capability.LLM = openai.New(openai.Options{Logger: logger})
	if cfg.LLM.RateLimitRPS > 0 {
		llm = capability.NewRateLimitedLLM(llm, cfg.LLM.RateLimitRPS, cfg.LLM.RateBurst)
	}

	opts := []flowgraph.Option{
		flowgraph.WithLLM(llm),
		flowgraph.WithLogger(logger),
		flowgraph.WithConfig(cfg),
	}
	if *toolsSource != "" {
		registry, err := toolgen.NewGenerator(logger).Registry(context.Background(), *toolsSource, toolgen.Options{})
		if err != nil {
			return fail(err)
		}
		opts = append(opts, flowgraph.WithTools(registry))
	}
	if cfg.Store.Path != "" {
		db, err := store.Open(cfg.Store.Path)
		if err != nil {
			return fail(err)
		}
		defer func() { _ = db.Close() }()
		opts = append(opts, flowgraph.WithStore(db))
	}

	wf, err := flowgraph.Load(specPath, opts...)
	if err != nil {
		return fail(err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	res, h, err := wf.RunWithTimeout(ctx, inputs, *timeout)
	if err != nil {
		logger.Error("workflow failed", zap.Error(err))
		return 1
	}
	if res == nil {
		fmt.Printf("run %s still executing after %s; rerun with a longer --timeout\n", h.RunID(), *timeout)
		return 1
	}

	printResult(res)
	return 0
}

func cmdCheck(args []string) int {
	fs := flag.NewFlagSet("check", flag.ExitOnError)
	_ = fs.Parse(args)
	if fs.NArg() != 1 {
		usage()
		return 2
	}

	spec, err := graph.LoadSpec(fs.Arg(0))
	if err != nil {
		return fail(err)
	}
	g, err := graph.Compile(spec)
	if err != nil {
		var structErr *graph.StructureError
		if errors.As(err, &structErr) {
			fmt.Fprintf(os.Stderr, "%s: %d violation(s)\n", spec.Name, len(structErr.Violations))
			for _, v := range structErr.Violations {
				fmt.Fprintf(os.Stderr, "  - %s\n", v)
			}
			return 1
		}
		return fail(err)
	}

	fmt.Printf("%s: ok (%d nodes, entry %q)\n", g.Name, len(g.NodeIDs()), g.Entry())
	return 0
}

func printResult(res *flowgraph.Result) {
	state, _ := json.MarshalIndent(res.State, "", "  ")
	fmt.Printf("run %s completed\n\nfinal state:\n%s\n\ntrace:\n", res.RunID, state)

	for _, rec := range res.Records {
		line := fmt.Sprintf("  %-20s %10s  $%.6f", rec.NodeID, rec.Duration.Round(time.Millisecond), rec.Cost)
		if rec.Iteration > 0 {
			line += fmt.Sprintf("  iteration=%d", rec.Iteration)
		}
		if rec.Error != "" {
			line += "  error=" + rec.Error
		}
		fmt.Println(line)
	}

	fmt.Printf("\ntotal time: %s  total cost: $%.6f\n", res.Summary.TotalTime.Round(time.Millisecond), res.TotalCost)
	if len(res.Summary.Bottlenecks) > 0 {
		fmt.Printf("bottlenecks (> %.0f%% of total time): %v\n", res.Summary.Threshold*100, res.Summary.Bottlenecks)
	}

	providers := make([]string, 0, len(res.CostByProvider))
	for p := range res.CostByProvider {
		providers = append(providers, p)
	}
	sort.Strings(providers)
	for _, p := range providers {
		fmt.Printf("  %-12s $%.6f\n", p, res.CostByProvider[p])
	}
}
