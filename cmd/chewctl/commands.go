package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"sort"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"chewbridge/internal/config"
	"chewbridge/internal/health"
	"chewbridge/internal/ipc"
	"chewbridge/internal/logging"
	"chewbridge/internal/protocol"
)

// session is a connection whose bridge is ready for input.
type session interface {
	conn
	waitReady(ctx context.Context) error
}

func loadConfig(g *globals) (*config.Config, error) {
	path := g.configPath
	if path == "" {
		path = config.ConfigPath()
	}
	return config.Load(path)
}

func wsURL(cfg *config.Config) (string, error) {
	if cfg.Server.WebSocketAddr == "" {
		return "", errors.New("the WebSocket endpoint is disabled in the config; pass --url")
	}
	return "ws://" + cfg.Server.WebSocketAddr + cfg.Server.WebSocketPath, nil
}

// dial opens a session and waits until its engine accepts input.
func dial(ctx context.Context, g *globals) (conn, error) {
	var (
		s   session
		err error
	)
	if g.useWS || g.url != "" {
		url := g.url
		if url == "" {
			cfg, err := loadConfig(g)
			if err != nil {
				return nil, err
			}
			if url, err = wsURL(cfg); err != nil {
				return nil, err
			}
		}
		s, err = dialWebSocket(ctx, url)
	} else {
		path := g.socketPath
		if path == "" {
			cfg, err := loadConfig(g)
			if err != nil {
				return nil, err
			}
			path = cfg.Server.SocketPath
		}
		s, err = dialSocket(ctx, path)
	}
	if err != nil {
		if errors.Is(err, ipc.ErrDaemonNotRunning) {
			return nil, fmt.Errorf("%w (start it with: chewbridged)", err)
		}
		return nil, err
	}
	if err := s.waitReady(ctx); err != nil {
		s.Close()
		return nil, fmt.Errorf("wait for engine: %w", err)
	}
	return s, nil
}

// roundTrip sends msg and returns the reply. Every message a ready bridge
// receives is answered exactly once.
func roundTrip(ctx context.Context, c conn, msg string) (string, error) {
	if err := c.Send(msg); err != nil {
		return "", err
	}
	return c.Next(ctx)
}

func cmdSend(g *globals, msgs []string, out io.Writer) error {
	ctx, cancel := context.WithTimeout(context.Background(), g.timeout)
	defer cancel()
	c, err := dial(ctx, g)
	if err != nil {
		return err
	}
	defer c.Close()

	for _, msg := range msgs {
		reply, err := roundTrip(ctx, c, msg)
		if err != nil {
			return err
		}
		fmt.Fprintln(out, reply)
	}
	return nil
}

// cmdType sends each character of keys, then Enter, and prints what was
// committed.
func cmdType(g *globals, keys string, out io.Writer) error {
	ctx, cancel := context.WithTimeout(context.Background(), g.timeout)
	defer cancel()
	c, err := dial(ctx, g)
	if err != nil {
		return err
	}
	defer c.Close()

	var reply string
	for _, name := range append(keyNames(keys), "Enter") {
		if reply, err = roundTrip(ctx, c, protocol.KeyCommand(name)); err != nil {
			return err
		}
	}
	kind, payload := protocol.ParseOutbound(reply)
	if kind != protocol.KindContext {
		return fmt.Errorf("unexpected reply: %s", reply)
	}
	state, err := protocol.DecodeContext(payload)
	if err != nil {
		return err
	}
	if state.Commit != nil {
		fmt.Fprintln(out, *state.Commit)
	}
	return nil
}

func keyNames(keys string) []string {
	names := make([]string, 0, len(keys))
	for _, r := range keys {
		if r == ' ' {
			names = append(names, "Space")
			continue
		}
		names = append(names, string(r))
	}
	return names
}

func cmdInteractive(g *globals) error {
	ctx, cancel := context.WithTimeout(context.Background(), g.timeout)
	c, err := dial(ctx, g)
	cancel()
	if err != nil {
		return err
	}
	defer c.Close()

	final, err := tea.NewProgram(newModel(c), tea.WithAltScreen()).Run()
	if err != nil {
		return err
	}
	if m, ok := final.(model); ok && m.err != nil && !errors.Is(m.err, io.EOF) {
		return m.err
	}
	return nil
}

func cmdStatus(g *globals, out io.Writer) error {
	cfg, err := loadConfig(g)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), g.timeout)
	defer cancel()

	path := g.socketPath
	if path == "" {
		path = cfg.Server.SocketPath
	}
	var failed error
	if path != "" {
		if rtt, err := pingSocket(ctx, path); err != nil {
			fmt.Fprintf(out, "socket     %s: %v\n", path, err)
			failed = err
		} else {
			fmt.Fprintf(out, "socket     %s: ok (%s)\n", path, rtt.Round(time.Microsecond))
		}
	}

	if cfg.Server.WebSocketAddr != "" {
		report, err := fetchHealth(ctx, "http://"+cfg.Server.WebSocketAddr+"/health")
		if err != nil {
			fmt.Fprintf(out, "websocket  %s: %v\n", cfg.Server.WebSocketAddr, err)
			failed = errors.Join(failed, err)
		} else {
			fmt.Fprintf(out, "websocket  %s: %s (up %s)\n", cfg.Server.WebSocketAddr, report.Status, report.Uptime)
			printComponents(out, report.Components)
		}
	}
	return failed
}

func pingSocket(ctx context.Context, path string) (time.Duration, error) {
	c, err := ipc.Dial(ctx, path)
	if err != nil {
		return 0, err
	}
	defer c.Close()

	start := time.Now()
	if _, err := c.Ping(); err != nil {
		return 0, err
	}
	m, err := c.Receive(ctx)
	if err != nil {
		return 0, err
	}
	if m.Header.Type != ipc.MsgPong {
		return 0, fmt.Errorf("unexpected %s frame", m.Header.Type)
	}
	return time.Since(start), nil
}

func fetchHealth(ctx context.Context, url string) (*health.Report, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var report health.Report
	if err := json.NewDecoder(resp.Body).Decode(&report); err != nil {
		return nil, fmt.Errorf("decode health report (status %d): %w", resp.StatusCode, err)
	}
	return &report, nil
}

func printComponents(out io.Writer, components map[string]health.CheckResult) {
	names := make([]string, 0, len(components))
	for name := range components {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		r := components[name]
		line := fmt.Sprintf("  %-10s %s", name, r.Status)
		if r.Message != "" {
			line += "  " + r.Message
		}
		if r.Error != "" {
			line += "  (" + r.Error + ")"
		}
		fmt.Fprintln(out, line)
	}
}

// cmdValidate checks each non-empty line as an outbound message.
func cmdValidate(path string, out io.Writer) error {
	var in io.Reader = os.Stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()
		in = f
	}

	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64<<10), 1<<20)
	line, bad := 0, 0
	for scanner.Scan() {
		line++
		text := scanner.Text()
		if text == "" {
			continue
		}
		if err := protocol.ValidateMessage(text); err != nil {
			bad++
			fmt.Fprintf(out, "%d: %v\n", line, err)
		}
	}
	if err := scanner.Err(); err != nil {
		return err
	}
	if bad > 0 {
		return fmt.Errorf("%d of %d lines invalid", bad, line)
	}
	fmt.Fprintf(out, "%d lines ok\n", line)
	return nil
}

func cmdSchema(out io.Writer) error {
	_, err := out.Write(protocol.ContextSchema())
	return err
}

func cmdCrashes(out io.Writer) error {
	h := logging.NewCrashHandler(logging.CrashHandlerConfig{CrashDir: logging.DefaultCrashDir()})
	reports, err := h.Reports()
	if err != nil {
		return err
	}
	if len(reports) == 0 {
		fmt.Fprintln(out, "No crash reports.")
		return nil
	}
	for _, r := range reports {
		fmt.Fprintf(out, "%s  %-16s %-8s %s\n", r.Timestamp.Format(time.RFC3339), r.Component, r.Version, r.PanicValue)
	}
	return nil
}
