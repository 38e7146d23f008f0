// chewctl is the control CLI for chewbridged.
package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/pflag"

	"chewbridge/internal/config"
)

// Version is set at build time.
var Version = "dev"

type globals struct {
	configPath string
	socketPath string
	useWS      bool
	url        string
	timeout    time.Duration
}

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "chewctl: %v\n", err)
		os.Exit(1)
	}
}

func newFlagSet(g *globals) *pflag.FlagSet {
	fs := pflag.NewFlagSet("chewctl", pflag.ContinueOnError)
	fs.StringVarP(&g.configPath, "config", "c", "", "path to config file (default: "+config.ConfigPath()+")")
	fs.StringVar(&g.socketPath, "socket", "", "daemon socket (default: from config)")
	fs.BoolVar(&g.useWS, "ws", false, "connect over the WebSocket endpoint instead of the socket")
	fs.StringVar(&g.url, "url", "", "WebSocket URL (implies --ws; default: from config)")
	fs.DurationVar(&g.timeout, "timeout", 5*time.Second, "how long to wait for the daemon")
	fs.SetInterspersed(false)
	return fs
}

func run(args []string) error {
	var g globals
	fs := newFlagSet(&g)
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			usage(fs)
			return nil
		}
		return err
	}
	if fs.NArg() < 1 {
		usage(fs)
		return errors.New("missing command")
	}

	rest := fs.Args()[1:]
	switch cmd := fs.Arg(0); cmd {
	case "send":
		if len(rest) == 0 {
			return errors.New("usage: chewctl send <message>...")
		}
		return cmdSend(&g, rest, os.Stdout)
	case "type":
		if len(rest) != 1 {
			return errors.New("usage: chewctl type <keys>")
		}
		return cmdType(&g, rest[0], os.Stdout)
	case "interactive", "tui":
		return cmdInteractive(&g)
	case "status":
		return cmdStatus(&g, os.Stdout)
	case "validate":
		path := "-"
		if len(rest) > 0 {
			path = rest[0]
		}
		return cmdValidate(path, os.Stdout)
	case "schema":
		return cmdSchema(os.Stdout)
	case "crashes":
		return cmdCrashes(os.Stdout)
	case "phrases":
		return cmdPhrases(&g, rest, os.Stdout)
	case "version":
		fmt.Printf("chewctl %s\n", Version)
		return nil
	case "help":
		usage(fs)
		return nil
	default:
		usage(fs)
		return fmt.Errorf("unknown command: %s", cmd)
	}
}

func usage(fs *pflag.FlagSet) {
	fmt.Fprintln(os.Stderr, `chewctl - Control utility for chewbridged

Usage: chewctl [flags] <command> [args]

Commands:
  send <msg>...     Send raw messages (key:a, layout:KB_HSU) and print replies
  type <keys>       Send each character as a key: message, then Enter
  interactive       Compose interactively in the terminal
  status            Check that the daemon answers and show its health
  validate [file]   Check outbound messages, one per line, against the schema
  schema            Print the JSON schema of context payloads
  crashes           List stored crash reports
  phrases list      List learned phrases
  phrases stats     Summarize the learned phrase database
  phrases remove <phrase> <bopomofo>...
                    Forget a learned phrase
  version           Show the version
  help              Show this help message

Flags:`)
	fs.SetOutput(os.Stderr)
	fs.PrintDefaults()
}
