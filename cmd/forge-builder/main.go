// ABOUTME: Entry point for forge-builder, the worker agent that builds project scaffolds
// ABOUTME: Connects to the hub, handles build/edit commands, replies with zipped artifacts

package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/fatih/color"

	"github.com/2389/forge-hub/internal/agentconn"
	"github.com/2389/forge-hub/internal/protocol"
)

var version = "dev"

func main() {
	configPath := flag.String("config", "builder.toml", "path to config file")
	flag.Parse()

	cfg, err := Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	logger := setupLogger(cfg.Logging.Level)

	cyan := color.New(color.FgCyan)
	cyan.Printf("forge-builder %s\n", version)
	green := color.New(color.FgGreen)
	green.Print("  ▶ ")
	fmt.Printf("Hub:   %s\n", cfg.Hub.URL)
	green.Print("  ▶ ")
	fmt.Printf("Agent: %s\n\n", cfg.Agent.Name)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	backoffs, err := cfg.Backoffs()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	w := &worker{logger: logger}
	client := agentconn.New(agentconn.Config{
		URL:         cfg.Hub.URL,
		Name:        cfg.Agent.Name,
		Role:        "worker",
		MinBackoff:  backoffs[0],
		MaxBackoff:  backoffs[1],
		MaxAttempts: cfg.Agent.MaxAttempts,
		Logger:      logger,
	}, w.handle)

	if err := client.Run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

type worker struct {
	logger *slog.Logger
}

// handle processes one inbound envelope. Build commands run in their own
// goroutine so a slow build never blocks the read loop.
func (w *worker) handle(ctx context.Context, client *agentconn.Client, env *protocol.Envelope) {
	switch env.Type {
	case protocol.TypeCommand:
		switch env.Command {
		case "build", "edit":
			go w.runBuild(ctx, client, env)
		default:
			w.logger.Warn("unsupported command", "command", env.Command)
			w.reply(ctx, client, env, func(resp *protocol.Envelope) {
				resp.Subtype = protocol.SubtypeError
				resp.Text = fmt.Sprintf("unsupported command %q", env.Command)
			})
		}
	case protocol.TypeMessage, protocol.TypeRegister:
		// Presence notices and hub chatter; nothing to do.
	default:
		w.logger.Debug("ignoring envelope", "type", env.Type)
	}
}

func (w *worker) runBuild(ctx context.Context, client *agentconn.Client, env *protocol.Envelope) {
	args := env.Args
	w.logger.Info("build requested",
		"command", env.Command,
		"task", env.TaskID,
		"name", args["name"],
		"type", args["type"],
	)

	content, err := buildArtifact(env.Command, args)
	if err != nil {
		w.logger.Error("build failed", "task", env.TaskID, "error", err)
		w.reply(ctx, client, env, func(resp *protocol.Envelope) {
			resp.Subtype = protocol.SubtypeError
			resp.Text = err.Error()
		})
		return
	}

	version, _ := strconv.Atoi(args["version"])
	if version < 1 {
		version = 1
	}
	fileName := fmt.Sprintf("%s-v%d.zip", args["name"], version)

	w.reply(ctx, client, env, func(resp *protocol.Envelope) {
		resp.Subtype = protocol.SubtypeSuccess
		resp.FileName = fileName
		resp.Content = content
		resp.Text = fmt.Sprintf("Built %s (%s).", args["name"], args["type"])
	})
	w.logger.Info("build complete", "task", env.TaskID, "file", fileName)
}

// reply sends a command response correlated to the request's task ID.
func (w *worker) reply(ctx context.Context, client *agentconn.Client, req *protocol.Envelope, fill func(*protocol.Envelope)) {
	resp := protocol.New(protocol.TypeCommandResponse)
	resp.TaskID = req.TaskID
	resp.Command = req.Command
	fill(resp)
	if err := client.Send(ctx, resp); err != nil {
		w.logger.Error("sending response failed", "task", req.TaskID, "error", err)
	}
}

func setupLogger(level string) *slog.Logger {
	var l slog.Level
	switch level {
	case "debug":
		l = slog.LevelDebug
	case "warn":
		l = slog.LevelWarn
	case "error":
		l = slog.LevelError
	default:
		l = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: l}))
}
