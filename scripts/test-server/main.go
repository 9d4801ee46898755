// Command test-server is a local stand-in for the price API that the
// example configs load. Latency and error rate are adjustable so
// thresholds can be seen failing.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/wesleyorama2/stampede/internal/logging"
)

type serverOptions struct {
	addr      string
	latency   time.Duration
	jitter    time.Duration
	errorRate float64
	logLevel  string
}

// prices are the quotes served for known coin ids.
var prices = map[string]float64{
	"bitcoin":  64000.5,
	"ethereum": 3100.25,
	"solana":   145.8,
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &serverOptions{}
	cmd := &cobra.Command{
		Use:           "test-server",
		Short:         "Serve a fake price API for local load tests",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := logging.New(logging.Config{Level: opts.logLevel, Writer: cmd.ErrOrStderr()})
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, opts, logger)
		},
	}
	cmd.Flags().StringVar(&opts.addr, "addr", ":8080", "listen address")
	cmd.Flags().DurationVar(&opts.latency, "latency", 0, "base response latency")
	cmd.Flags().DurationVar(&opts.jitter, "jitter", 0, "random latency added on top of --latency")
	cmd.Flags().Float64Var(&opts.errorRate, "error-rate", 0, "fraction of requests answered with 503")
	cmd.Flags().StringVar(&opts.logLevel, "log-level", "info", "debug, info, warn or error")
	return cmd
}

func serve(ctx context.Context, opts *serverOptions, logger *zap.Logger) error {
	if opts.errorRate < 0 || opts.errorRate > 1 {
		return fmt.Errorf("--error-rate must be between 0 and 1, got %g", opts.errorRate)
	}

	server := &http.Server{
		Addr:              opts.addr,
		Handler:           newHandler(opts, rand.New(rand.NewSource(time.Now().UnixNano())), logger),
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
		ReadHeaderTimeout: 2 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("test server listening", zap.String("addr", opts.addr))
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// lockedRand shares one source between handler goroutines.
type lockedRand struct {
	mu  sync.Mutex
	rng *rand.Rand
}

func (r *lockedRand) Float64() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rng.Float64()
}

func newHandler(opts *serverOptions, rng *rand.Rand, logger *zap.Logger) http.Handler {
	r := &lockedRand{rng: rng}
	mux := http.NewServeMux()

	mux.HandleFunc("/api/v3/simple/price", func(w http.ResponseWriter, req *http.Request) {
		delay := opts.latency
		if opts.jitter > 0 {
			delay += time.Duration(r.Float64() * float64(opts.jitter))
		}
		if delay > 0 {
			select {
			case <-time.After(delay):
			case <-req.Context().Done():
				return
			}
		}

		if opts.errorRate > 0 && r.Float64() < opts.errorRate {
			logger.Debug("injected failure", zap.String("query", req.URL.RawQuery))
			http.Error(w, "service unavailable", http.StatusServiceUnavailable)
			return
		}

		currencies := splitList(req.URL.Query().Get("vs_currencies"))
		if len(currencies) == 0 {
			http.Error(w, `{"error":"missing 'vs_currencies' parameter"}`, http.StatusBadRequest)
			return
		}

		body := make(map[string]map[string]float64)
		for _, id := range splitList(req.URL.Query().Get("ids")) {
			usd, ok := prices[id]
			if !ok {
				continue
			}
			quote := make(map[string]float64, len(currencies))
			for _, cur := range currencies {
				quote[cur] = usd
			}
			body[id] = quote
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(body); err != nil {
			logger.Warn("failed to write response", zap.Error(err))
		}
	})

	mux.HandleFunc("/health", func(w http.ResponseWriter, req *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, "healthy")
	})

	return mux
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, strings.ToLower(part))
		}
	}
	return out
}
