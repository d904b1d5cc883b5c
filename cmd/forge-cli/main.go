// ABOUTME: Interactive terminal client — connects as the UI agent and drives builds.
// ABOUTME: Usage: forge-cli [-url ws://localhost:8080/ws] [-name ui] [-out .]

package main

import (
	"bufio"
	"context"
	"encoding/base64"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fatih/color"

	"github.com/2389/forge-hub/internal/agentconn"
	"github.com/2389/forge-hub/internal/protocol"
)

func main() {
	url := flag.String("url", "ws://localhost:8080/ws", "hub WebSocket URL")
	name := flag.String("name", "ui", "agent name to register")
	outDir := flag.String("out", ".", "directory for downloaded artifacts")
	flag.Parse()

	if err := run(*url, *name, *outDir); err != nil {
		log.Fatal(err)
	}
}

func run(url, name, outDir string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	ui := &console{outDir: outDir}
	client := agentconn.New(agentconn.Config{
		URL:    url,
		Name:   name,
		Role:   "frontend",
		Logger: slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn})),
	}, ui.render)

	// Stdin loop runs beside the connection; each line becomes an envelope.
	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line == "" {
				continue
			}
			env := ui.envelopeFor(line)
			if env == nil {
				continue
			}
			if err := client.Send(ctx, env); err != nil {
				fmt.Fprintf(os.Stderr, "send failed: %v\n", err)
			}
		}
		cancel()
	}()

	fmt.Printf("connected prompt ready — say \"build\" to start, /help for commands\n")
	return client.Run(ctx)
}

// console renders hub envelopes and remembers which task is being asked about.
type console struct {
	outDir string

	mu         sync.Mutex
	lastTaskID string
}

// envelopeFor turns a line of input into the right envelope. Slash commands
// become command envelopes; everything else answers the open question, or is
// plain chat when no question is pending.
func (c *console) envelopeFor(line string) *protocol.Envelope {
	if strings.HasPrefix(line, "/") {
		fields := strings.Fields(strings.TrimPrefix(line, "/"))
		if len(fields) == 0 {
			return nil
		}
		env := protocol.New(protocol.TypeCommand)
		env.Command = fields[0]
		switch env.Command {
		case "help":
			fmt.Println("commands: /build /stop /redownload /setname NAME /tone TONE /reset")
			return nil
		case "setname":
			env.Args = map[string]string{"name": strings.Join(fields[1:], " ")}
		case "tone":
			env.Args = map[string]string{"tone": strings.Join(fields[1:], " ")}
		case "stop":
			env.TaskID = c.taskID()
		}
		return env
	}

	if id := c.taskID(); id != "" {
		env := protocol.New(protocol.TypeTaskResponse)
		env.TaskID = id
		env.Answer = line
		return env
	}

	env := protocol.New(protocol.TypeMessage)
	env.Text = line
	return env
}

func (c *console) taskID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastTaskID
}

func (c *console) setTaskID(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastTaskID = id
}

// render prints one hub envelope to the terminal.
func (c *console) render(_ context.Context, _ *agentconn.Client, env *protocol.Envelope) {
	switch env.Type {
	case protocol.TypeMessage:
		c.renderMessage(env)
	case protocol.TypeProgress:
		fmt.Printf("\r%s %d%%", color.HiBlackString("building"), env.Percent)
		if env.Percent >= 100 {
			fmt.Println()
		}
	case protocol.TypeRegister:
		if env.Text != "" {
			color.HiBlack("* %s is %s", env.Name, env.Text)
		}
	}
}

func (c *console) renderMessage(env *protocol.Envelope) {
	switch env.Subtype {
	case protocol.SubtypeQuestion:
		c.setTaskID(env.TaskID)
		color.Cyan("? %s", env.Text)
	case protocol.SubtypeError:
		color.Red("! %s", env.Text)
	case protocol.SubtypeSuccess:
		c.setTaskID("")
		color.Green("✓ %s", env.Text)
	case protocol.SubtypeDownload:
		if err := c.saveArtifact(env); err != nil {
			color.Red("! saving artifact: %v", err)
		}
	default:
		fmt.Println(env.Text)
	}
}

// saveArtifact decodes the base64 payload and writes it under the out dir.
func (c *console) saveArtifact(env *protocol.Envelope) error {
	raw, err := base64.StdEncoding.DecodeString(env.Content)
	if err != nil {
		return fmt.Errorf("decoding artifact: %w", err)
	}
	path := filepath.Join(c.outDir, filepath.Base(env.FileName))
	if err := os.WriteFile(path, raw, 0644); err != nil {
		return fmt.Errorf("writing artifact: %w", err)
	}
	color.Green("✓ saved %s (%d bytes)", path, len(raw))
	return nil
}
