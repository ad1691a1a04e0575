package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"aigc-bridge/internal/adapter"
	"aigc-bridge/internal/config"
	"aigc-bridge/internal/handlers"
	"aigc-bridge/internal/httpserver"
	"aigc-bridge/internal/llm"
	"aigc-bridge/internal/metrics"
	"aigc-bridge/pkg/logging"
)

const usage = `usage: aigc-bridge <command> [flags]

commands:
  ask    send one question and print the reply
  serve  expose the model as POST /v1/chat/completions
`

func main() {
	if err := run(os.Args[1:], os.Stdin, os.Stdout); err != nil {
		log.Fatalf("aigc-bridge: %v", err)
	}
}

func run(args []string, in io.Reader, out io.Writer) error {
	// .env is optional; real environment variables win over it.
	_ = godotenv.Load()

	if len(args) == 0 {
		fmt.Fprint(out, usage)
		return errors.New("missing command")
	}

	switch args[0] {
	case "ask":
		return runAsk(args[1:], in, out)
	case "serve":
		return runServe(args[1:])
	case "-h", "--help", "help":
		fmt.Fprint(out, usage)
		return nil
	default:
		fmt.Fprint(out, usage)
		return fmt.Errorf("unknown command %q", args[0])
	}
}

func runAsk(args []string, in io.Reader, out io.Writer) error {
	fs := pflag.NewFlagSet("ask", pflag.ContinueOnError)
	configPath := fs.StringP("config", "c", "", "path to config.yaml")
	system := fs.StringP("system", "s", "", "optional system prompt")
	if err := fs.Parse(args); err != nil {
		return err
	}

	question := strings.TrimSpace(strings.Join(fs.Args(), " "))
	if question == "" {
		fmt.Fprint(out, "Ask a question: ")
		line, err := bufio.NewReader(in).ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return fmt.Errorf("read question: %w", err)
		}
		question = strings.TrimSpace(line)
	}
	if question == "" {
		return errors.New("empty question")
	}

	cfg, logger, err := setup(*configPath)
	if err != nil {
		return err
	}
	defer logger.Sync()

	model, err := buildModel(cfg, logger)
	if err != nil {
		return err
	}
	defer model.Close()

	var messages []adapter.Message
	if *system != "" {
		messages = append(messages, adapter.SystemMessage(*system))
	}
	messages = append(messages, adapter.HumanMessage(question))

	reply := model.Invoke(context.Background(), messages)
	fmt.Fprintln(out, reply.Content)
	return nil
}

func runServe(args []string) error {
	fs := pflag.NewFlagSet("serve", pflag.ContinueOnError)
	configPath := fs.StringP("config", "c", "", "path to config.yaml")
	port := fs.StringP("port", "p", "", "listen port (overrides server.port)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, logger, err := setup(*configPath)
	if err != nil {
		return err
	}
	defer logger.Sync()

	if *port != "" {
		cfg.Server.Port = *port
	}

	// ----- Metrics -----
	metrics.Register()

	// ----- Chat model -----
	model, err := buildModel(cfg, logger)
	if err != nil {
		return err
	}
	defer model.Close()

	// ----- Router + middleware -----
	r := chi.NewRouter()
	requestTimeout := time.Duration(cfg.Server.RequestTimeoutSeconds) * time.Second
	httpserver.SetupRouter(r, logger, handlers.NewChatHandler(model), requestTimeout)

	// ----- HTTP server -----
	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      requestTimeout + 5*time.Second,
		IdleTimeout:       60 * time.Second,
	}

	logger.Info("starting bridge",
		zap.String("addr", srv.Addr),
		zap.String("backend", cfg.Backend),
		zap.String("llm_type", model.LLMType()),
	)

	// Start server in background
	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	// ----- Graceful shutdown -----
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		logger.Error("server error", zap.Error(err))
		return err
	case <-stop:
		logger.Info("shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", zap.Error(err))
		return err
	}

	logger.Info("server shutdown complete")
	return nil
}

// setup loads configuration and builds the logger it describes.
func setup(configPath string) (*config.Configuration, *zap.Logger, error) {
	cfg, file, err := config.Load(configPath)
	if err != nil {
		return nil, nil, err
	}

	logger := logging.NewLoggerWithOptions(logging.Options{
		Env:   cfg.Logging.Env,
		Level: cfg.Logging.Level,
	})

	logger.Info("loaded config",
		zap.String("config_file", file),
		zap.String("backend", cfg.Backend),
		zap.String("api_url", cfg.API.URL),
		zap.String("model", cfg.API.Model),
		zap.Bool("insecure_skip_verify", cfg.API.InsecureSkipVerify),
	)
	return cfg, logger, nil
}

func buildModel(cfg *config.Configuration, logger *zap.Logger) (*adapter.ChatModel, error) {
	opts := []adapter.Option{adapter.WithReasoningFormat(cfg.ReasoningFormat())}

	switch llm.Backend(cfg.Backend) {
	case llm.BackendAPIKey:
		return adapter.NewAPIKey(cfg.APIKey, cfg.LLMConfig(), logger, opts...)
	default:
		return adapter.NewOAuth(cfg.Credentials(), cfg.LLMConfig(), logger, opts...)
	}
}
