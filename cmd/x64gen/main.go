package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rns-lang/x64codegen/abi"
	"github.com/rns-lang/x64codegen/api"
	"github.com/rns-lang/x64codegen/config"
	"github.com/rns-lang/x64codegen/scenarios"
	"github.com/rns-lang/x64codegen/trace"
)

// Version information - can be overridden at build time with:
// go build -ldflags "-X main.Version=v1.2.3"
var (
	Version = "dev"     // Version number (set by git tag at build time)
	Commit  = "unknown" // Git commit hash
	Date    = "unknown" // Build date
)

func main() {
	var (
		showVersion = flag.Bool("version", false, "Show version information")
		showHelp    = flag.Bool("help", false, "Show help information")
		configPath  = flag.String("config", "", "Path to a TOML config file (default: platform config dir)")
		abiFlag     = flag.String("abi", "", "Force the calling convention: ms-x64 or sysv-amd64 (default: from config, or host GOOS)")
		scenario    = flag.String("scenario", "", "Build and report one of the named end-to-end scenarios: "+scenarios.Names())

		enableTrace = flag.Bool("trace", false, "Record a build-event trace while assembling the scenario")
		traceFile   = flag.String("trace-file", "", "Trace output file (default: config trace.output_file)")
		traceFormat = flag.String("trace-format", "", "Trace format: json, csv, or text (default: config trace.format)")

		apiServer = flag.Bool("api-server", false, "Start the introspection HTTP+WebSocket server and block")
		apiPort   = flag.Int("port", 0, "API server port (default: config api.port)")
	)

	flag.Parse()

	if *showVersion {
		fmt.Printf("x64codegen %s\n", Version)
		if Commit != "unknown" {
			fmt.Printf("Commit: %s\n", Commit)
		}
		if Date != "unknown" {
			fmt.Printf("Built: %s\n", Date)
		}
		return
	}

	if *showHelp {
		flag.Usage()
		return
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "x64gen: %v\n", err)
		os.Exit(1)
	}
	if *abiFlag != "" {
		cfg.Abi.Convention = *abiFlag
	}

	if *apiServer {
		port := cfg.Api.Port
		if *apiPort != 0 {
			port = *apiPort
		}
		if err := runAPIServer(port); err != nil {
			fmt.Fprintf(os.Stderr, "x64gen: %v\n", err)
			os.Exit(1)
		}
		return
	}

	if *scenario == "" {
		flag.Usage()
		os.Exit(1)
	}

	policy, err := resolvePolicy(cfg.Abi.Convention)
	if err != nil {
		fmt.Fprintf(os.Stderr, "x64gen: %v\n", err)
		os.Exit(1)
	}

	var tr *trace.Trace
	if *enableTrace {
		tr = trace.New(os.Stdout)
	}

	result, err := scenarios.Run(*scenario, policy, tr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "x64gen: scenario %q: %v\n", *scenario, err)
		os.Exit(1)
	}
	fmt.Printf("scenario %q: offset=%d size=%d bytes entry=0x%x\n", *scenario, result.EntryOffset, result.ByteSize, result.Entry)

	if tr != nil {
		format := cfg.Trace.Format
		if *traceFormat != "" {
			format = *traceFormat
		}
		if err := tr.Flush(format); err != nil {
			fmt.Fprintf(os.Stderr, "x64gen: flushing trace: %v\n", err)
			os.Exit(1)
		}
		if err := writeTraceFile(tr, traceFilePath(cfg, *traceFile), format); err != nil {
			fmt.Fprintf(os.Stderr, "x64gen: writing trace file: %v\n", err)
			os.Exit(1)
		}
	}
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.Load()
	}
	return config.LoadFrom(path)
}

func resolvePolicy(convention string) (*abi.Policy, error) {
	switch convention {
	case "ms-x64":
		return abi.Microsoft(), nil
	case "sysv-amd64":
		return abi.SystemV(), nil
	default:
		return nil, fmt.Errorf("unknown calling convention %q (want ms-x64 or sysv-amd64)", convention)
	}
}

func traceFilePath(cfg *config.Config, flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	return cfg.Trace.OutputFile
}

func writeTraceFile(tr *trace.Trace, path, format string) error {
	if path == "" {
		return nil
	}
	f, err := os.Create(path) // #nosec G304 -- user-specified trace output path
	if err != nil {
		return err
	}
	defer f.Close()

	switch format {
	case "json":
		return tr.ExportJSON(f)
	case "csv":
		prev := tr.Writer
		tr.Writer = f
		err := tr.Flush("csv")
		tr.Writer = prev
		return err
	default:
		_, err := fmt.Fprint(f, tr.String())
		return err
	}
}

func runAPIServer(port int) error {
	server := api.NewServer(port)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
