package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"chewbridge/internal/phonetic"
	"chewbridge/internal/store"
)

// openUserPhrases opens the daemon's existing user phrase database.
func openUserPhrases(g *globals) (*store.Store, error) {
	cfg, err := loadConfig(g)
	if err != nil {
		return nil, err
	}
	path := phonetic.UserPhrasePath(cfg.Storage.UserPhrasePath, cfg.Paths())
	if path == "" {
		return nil, errors.New("learning is disabled: no user data directory configured")
	}
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("user phrases: %w", err)
	}
	return store.OpenWithOptions(path, store.Options{BusyTimeout: cfg.BusyTimeout()})
}

func cmdPhrases(g *globals, args []string, out io.Writer) error {
	if len(args) == 0 {
		return errors.New("usage: chewctl phrases list|stats|remove <phrase> <bopomofo>...")
	}
	st, err := openUserPhrases(g)
	if err != nil {
		return err
	}
	defer st.Close()

	switch args[0] {
	case "list":
		return listPhrases(st, out)
	case "stats":
		return phraseStats(st, out)
	case "remove":
		if len(args) < 3 {
			return errors.New("usage: chewctl phrases remove <phrase> <bopomofo>...")
		}
		return removePhrase(st, args[1], strings.Join(args[2:], " "), out)
	default:
		return fmt.Errorf("unknown phrases command: %s", args[0])
	}
}

func listPhrases(st *store.Store, out io.Writer) error {
	phrases, err := st.All()
	if err != nil {
		return err
	}
	if len(phrases) == 0 {
		fmt.Fprintln(out, "No learned phrases.")
		return nil
	}
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "PHRASE\tBOPOMOFO\tUSED\tLAST")
	for _, p := range phrases {
		fmt.Fprintf(w, "%s\t%s\t%d\t%d\n", p.Phrase, phonetic.FormatPhones(p.Phones), p.UserFreq, p.Time)
	}
	return w.Flush()
}

func removePhrase(st *store.Store, phrase, reading string, out io.Writer) error {
	phones, err := phonetic.ParsePhones(reading)
	if err != nil {
		return err
	}
	removed, err := st.Remove(phones, phrase)
	if err != nil {
		return err
	}
	if !removed {
		return fmt.Errorf("%s (%s): %w", phrase, reading, store.ErrNotFound)
	}
	fmt.Fprintf(out, "removed %s (%s)\n", phrase, phonetic.FormatPhones(phones))
	return nil
}

func phraseStats(st *store.Store, out io.Writer) error {
	stats, err := st.Stats()
	if err != nil {
		return err
	}
	status, err := store.GetMigrationStatus(st.DB())
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "database   %s\n", st.Path())
	fmt.Fprintf(out, "schema     v%d/%d\n", status.CurrentVersion, status.LatestVersion)
	fmt.Fprintf(out, "phrases    %d\n", stats.Phrases)
	fmt.Fprintf(out, "max used   %d\n", stats.MaxUserFreq)
	fmt.Fprintf(out, "lifetime   %d\n", stats.Lifetime)
	return nil
}
