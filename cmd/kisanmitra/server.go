package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/spf13/cobra"
	"golang.org/x/net/netutil"

	"github.com/kisanmitra/kisanmitra/internal/answer"
	"github.com/kisanmitra/kisanmitra/internal/api"
	"github.com/kisanmitra/kisanmitra/internal/asr"
	"github.com/kisanmitra/kisanmitra/internal/config"
	"github.com/kisanmitra/kisanmitra/internal/media"
	"github.com/kisanmitra/kisanmitra/internal/pipeline"
	"github.com/kisanmitra/kisanmitra/internal/reaper"
	"github.com/kisanmitra/kisanmitra/internal/storage"
	"github.com/kisanmitra/kisanmitra/internal/tts"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the kisanmitra server (foreground)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer()
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running kisanmitra server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return stopServer()
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show kisanmitra system status",
	RunE: func(cmd *cobra.Command, args []string) error {
		return showStatus()
	},
}

func pidFilePath(dataDir string) string {
	return filepath.Join(dataDir, "kisanmitra.pid")
}

func writePIDFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0o644)
}

func readPIDFile(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(strings.TrimSpace(string(data)))
}

func removePIDFile(path string) {
	os.Remove(path)
}

func parseDurationOr(value, name string, fallback time.Duration) time.Duration {
	if value == "" || value == "0" {
		return 0
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		slog.Warn("invalid duration, using default", "key", name, "value", value, "default", fallback)
		return fallback
	}
	return d
}

func runServer() error {
	fmt.Fprintf(os.Stderr, "kisanmitra version %s\n", version)

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	// Initialize structured logging.
	logLevel := slog.LevelInfo
	if strings.EqualFold(cfg.Log.Level, "debug") {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})))

	// Write PID file. Check if server is already running via health endpoint.
	pidPath := pidFilePath(cfg.Storage.DataDir)
	healthURL := fmt.Sprintf("http://127.0.0.1:%d/health", cfg.Server.Port)
	healthClient := &http.Client{Timeout: 2 * time.Second}
	if resp, err := healthClient.Get(healthURL); err == nil {
		resp.Body.Close()
		if pid, pidErr := readPIDFile(pidPath); pidErr == nil {
			printWarning("kisanmitra is already running (PID %d)", pid)
			return fmt.Errorf("server already running (PID %d)", pid)
		}
		printWarning("kisanmitra is already running on port %d", cfg.Server.Port)
		return fmt.Errorf("server already running on port %d", cfg.Server.Port)
	}
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("writing PID file: %w", err)
	}
	defer removePIDFile(pidPath)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Open storage.
	store, err := storage.Open(cfg.Storage.DataDir)
	if err != nil {
		return fmt.Errorf("opening storage: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "warning: closing storage: %v\n", err)
		}
	}()

	mediaStore, err := media.Open(cfg.Storage.DataDir)
	if err != nil {
		return fmt.Errorf("opening media store: %w", err)
	}

	// Build speech and answering capabilities.
	transcriber, err := asr.NewGoogleTranscriber(ctx)
	if err != nil {
		return fmt.Errorf("initializing speech recognition: %w", err)
	}
	defer transcriber.Close()

	synthesizer, err := tts.NewGoogleSynthesizer(ctx, mediaStore)
	if err != nil {
		return fmt.Errorf("initializing speech synthesis: %w", err)
	}
	defer synthesizer.Close()

	var answerer answer.Answerer
	switch cfg.Answer.Provider {
	case "openrouter":
		answerer = answer.NewOpenRouterAnswerer(cfg.Answer.OpenRouterAPIKey, cfg.Answer.Model)
	default:
		answerer = answer.NewOllamaAnswerer(cfg.Answer.OllamaBaseURL, cfg.Answer.Model)
	}
	slog.Info("answer provider ready", "provider", cfg.Answer.Provider, "model", cfg.Answer.Model)

	timeouts := pipeline.Timeouts{
		ASR:    parseDurationOr(cfg.Pipeline.ASRTimeout, "pipeline.asr_timeout", 30*time.Second),
		Answer: parseDurationOr(cfg.Pipeline.AnswerTimeout, "pipeline.answer_timeout", 90*time.Second),
		TTS:    parseDurationOr(cfg.Pipeline.TTSTimeout, "pipeline.tts_timeout", 30*time.Second),
	}
	orch := pipeline.New(transcriber, answerer, synthesizer, mediaStore, store, timeouts)

	handler := api.NewHandler(api.Deps{
		Orchestrator: orch,
		Store:        store,
		Media:        mediaStore,
		Token:        cfg.API.AdminToken,
		AskRPS:       cfg.API.AskRPS,
		AskBurst:     cfg.API.AskBurst,
	})

	// Start orphan artifact reaper.
	interval := parseDurationOr(cfg.Reaper.Interval, "reaper.interval", time.Hour)
	if interval > 0 {
		retention := parseDurationOr(cfg.Reaper.Retention, "reaper.retention", 24*time.Hour)
		if retention <= 0 {
			retention = 24 * time.Hour
		}
		refs := func() (map[string]bool, error) {
			return reaper.ReferencedPaths(func(limit, offset int) ([]reaper.Referenced, error) {
				interactions, err := store.ListInteractions(limit, offset)
				if err != nil {
					return nil, err
				}
				out := make([]reaper.Referenced, len(interactions))
				for i, ix := range interactions {
					out[i] = reaper.Referenced{AudioPath: ix.AudioPath, TTSPath: ix.TTSPath}
				}
				return out, nil
			})
		}
		rp := reaper.New(refs, []string{mediaStore.UploadsDir(), mediaStore.SynthDir()}, interval, retention)
		go rp.Run(ctx)
		slog.Info("artifact reaper started", "interval", interval, "retention", retention)
	}

	// Build and start MCP server (stdio transport in a goroutine).
	mcpSrv := api.NewMCPServer(api.MCPDeps{
		Orchestrator: orch,
		Store:        store,
	})
	stdioSrv := server.NewStdioServer(mcpSrv)
	go func() {
		if err := stdioSrv.Listen(ctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("MCP stdio server error", "error", err)
		}
	}()
	slog.Info("MCP server started (stdio transport)")

	addr := fmt.Sprintf("127.0.0.1:%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: handler,
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", addr, err)
	}
	if cfg.Server.MaxConns > 0 {
		ln = netutil.LimitListener(ln, cfg.Server.MaxConns)
	}

	// Start server in a goroutine.
	errCh := make(chan error, 1)
	go func() {
		fmt.Fprintf(os.Stderr, "kisanmitra listening on %s\n", addr)
		if err := srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	// Wait for signal or server error.
	select {
	case <-ctx.Done():
		fmt.Fprintln(os.Stderr, "shutting down...")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	// Graceful shutdown with timeout.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func stopServer() error {
	cfg, err := config.Load()
	if err != nil {
		printError("could not load config: %v", err)
		return err
	}

	pidPath := pidFilePath(cfg.Storage.DataDir)
	pid, err := readPIDFile(pidPath)
	if err != nil {
		printError("kisanmitra is not running (no PID file)")
		return fmt.Errorf("not running: %w", err)
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		printError("could not find process %d", pid)
		return err
	}

	if err := process.Signal(syscall.SIGTERM); err != nil {
		printError("could not stop kisanmitra (PID %d): %v", pid, err)
		removePIDFile(pidPath)
		return err
	}

	printSuccess("Sent stop signal to kisanmitra (PID %d)", pid)
	return nil
}

func showStatus() error {
	cfg, err := config.Load()
	if err != nil {
		// Still show partial status even if config fails.
		printError("config error: %v", err)
		return nil
	}

	// Check server health.
	serverURL := fmt.Sprintf("http://127.0.0.1:%d", cfg.Server.Port)
	client := &http.Client{Timeout: 2 * time.Second}

	resp, err := client.Get(serverURL + "/health")
	if err != nil {
		printStatus("Server", "stopped")
	} else {
		resp.Body.Close()
		if resp.StatusCode == 200 {
			printStatus("Server", "running on port %d", cfg.Server.Port)
		} else {
			printStatus("Server", "error (HTTP %d)", resp.StatusCode)
		}
	}

	printStatus("Answer provider", "%s (%s)", cfg.Answer.Provider, cfg.Answer.Model)
	if cfg.Answer.Provider == "ollama" {
		ollamaResp, err := client.Get(cfg.Answer.OllamaBaseURL + "/api/version")
		if err != nil {
			printStatus("Ollama", "not running")
		} else {
			ollamaResp.Body.Close()
			printStatus("Ollama", "running at %s", cfg.Answer.OllamaBaseURL)
		}
	}

	// Show interaction count if server is running.
	if resp != nil && resp.StatusCode == 200 {
		listResp, err := apiGet(client, serverURL+"/interactions?limit=100", cfg.API.AdminToken)
		if err == nil {
			var interactions []json.RawMessage
			if decodeJSON(listResp, &interactions) == nil {
				printStatus("Interactions", "%s", countLabel(len(interactions), 100))
			}
		}
	}

	// Host resource usage.
	if vm, err := mem.VirtualMemory(); err == nil {
		printStatus("Memory", "%.1f%% used (%.1f GB of %.1f GB)",
			vm.UsedPercent,
			float64(vm.Used)/1e9,
			float64(vm.Total)/1e9,
		)
	}
	if pct, err := cpu.Percent(500*time.Millisecond, false); err == nil && len(pct) > 0 {
		printStatus("CPU", "%.1f%%", pct[0])
	}

	printStatus("Data dir", "%s", cfg.Storage.DataDir)
	return nil
}

func countLabel(count, limit int) string {
	if count >= limit {
		return fmt.Sprintf("%d+", count)
	}
	return fmt.Sprintf("%d", count)
}

func apiGet(client *http.Client, url, token string) (*http.Response, error) {
	req, err := http.NewRequest("GET", url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	return client.Do(req)
}
