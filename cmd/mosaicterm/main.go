// Copyright © 2026 MosaicTerm contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
//
// File: cmd/mosaicterm/main.go
// Summary: MosaicTerm entry point: block-structured shell session.
// Usage: Run `mosaicterm` for the viewer, `mosaicterm -plain` for a plain
//        streaming mode, `-snippet bash` to print shell integration.

package main

import (
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/term"

	"github.com/mosaicterm/mosaicterm/block"
	"github.com/mosaicterm/mosaicterm/blockfmt"
	"github.com/mosaicterm/mosaicterm/config"
	"github.com/mosaicterm/mosaicterm/exec"
	"github.com/mosaicterm/mosaicterm/history"
	"github.com/mosaicterm/mosaicterm/parser"
	"github.com/mosaicterm/mosaicterm/session"
	"github.com/mosaicterm/mosaicterm/shell"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	fs := flag.NewFlagSet("mosaicterm", flag.ContinueOnError)

	configPath := fs.String("config", "", "Config file path (default: user config dir)")
	shellPath := fs.String("shell", "", "Shell to launch (default: from config)")
	plain := fs.Bool("plain", false, "Stream blocks as plain text instead of the viewer")
	dbPath := fs.String("db", "", "History database path (default: next to the config file)")
	noHistory := fs.Bool("no-history", false, "Disable the history index")
	styleName := fs.String("style", "", "Chroma style for output highlighting")
	snippetShell := fs.String("snippet", "", "Print the integration snippet for a shell and exit")
	searchQuery := fs.String("search", "", "Search block history and exit")
	logPath := fs.String("log", "", "Log file (default: discarded while the viewer owns the terminal)")

	if err := fs.Parse(os.Args[1:]); err != nil {
		if err == flag.ErrHelp {
			return nil
		}
		return err
	}

	if *snippetShell != "" {
		snip, ok := shell.Snippet(*snippetShell)
		if !ok {
			return fmt.Errorf("no integration snippet for %q (supported: %s)",
				*snippetShell, strings.Join(shell.Supported(), ", "))
		}
		fmt.Print(snip)
		return nil
	}

	var cfg config.Config
	var err error
	if *configPath != "" {
		cfg, err = config.LoadFrom(*configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		log.Printf("Main: Falling back to default config: %v", err)
	}

	if *dbPath == "" {
		if p, perr := config.Path(); perr == nil {
			*dbPath = filepath.Join(filepath.Dir(p), "history.db")
		}
	}

	if *searchQuery != "" {
		return runSearch(*dbPath, *searchQuery)
	}

	setupLogging(*logPath, *plain)

	if *shellPath == "" {
		*shellPath = cfg.DefaultShell
	}

	cols, rows := 80, 24
	if w, h, serr := term.GetSize(int(os.Stdout.Fd())); serr == nil {
		cols, rows = w, h
	}

	pty, err := session.StartShell(*shellPath, cols, rows)
	if err != nil {
		return err
	}

	detector, err := block.NewPromptDetector(cfg.PromptPatterns)
	if err != nil {
		return err
	}
	wd, _ := os.Getwd()

	sess := session.New(pty,
		session.WithQueueCapacity(cfg.DeltaQueueCapacity),
		session.WithParserOptions(parser.WithPayloadCap(cfg.OscPayloadCap)),
		session.WithAssemblerOptions(
			block.WithPromptDetector(detector),
			block.WithWorkingDir(wd),
		),
		session.WithClassifier(exec.NewClassifier(cfg.DirectExecAllowlist, cfg.InteractiveDenylist)),
		session.WithExecutor(exec.NewExecutor(
			exec.WithWorkingDir(wd),
			exec.WithTimeout(time.Duration(cfg.DirectTimeoutMs)*time.Millisecond),
		)),
	)
	sess.Start()
	defer func() {
		sess.Close()
		sess.Wait()
	}()

	var store history.Store
	if !*noHistory && *dbPath != "" {
		store, err = history.NewStore(*dbPath)
		if err != nil {
			log.Printf("Main: History disabled: %v", err)
			store = nil
		} else {
			defer store.Close()
		}
	}

	highlighter := blockfmt.New(*styleName)

	if *plain {
		return runPlain(sess, store, highlighter)
	}
	return runViewer(sess, store, highlighter)
}

// setupLogging routes the standard logger. The viewer owns the terminal, so
// without an explicit file its logs are discarded.
func setupLogging(path string, plain bool) {
	if path != "" {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err == nil {
			log.SetOutput(f)
			return
		}
		fmt.Fprintf(os.Stderr, "Warning: cannot open log file: %v\n", err)
	}
	if !plain {
		log.SetOutput(io.Discard)
	}
}

func runSearch(dbPath, query string) error {
	if dbPath == "" {
		return fmt.Errorf("no history database path")
	}
	store, err := history.NewStore(dbPath)
	if err != nil {
		return err
	}
	defer store.Close()

	matches, err := store.Search(query, 50)
	if err != nil {
		return err
	}
	for _, m := range matches {
		tag := " "
		if m.IsCommand {
			tag = "$"
		}
		fmt.Printf("%s %s %s\n", m.Timestamp.Format("2006-01-02 15:04:05"), tag, m.Content)
	}
	return nil
}

// runPlain streams deltas as annotated text. Stdin goes raw so the child
// shell sees every keystroke.
func runPlain(sess *session.Session, store history.Store, highlighter *blockfmt.Highlighter) error {
	stdinFd := int(os.Stdin.Fd())
	if term.IsTerminal(stdinFd) {
		oldState, err := term.MakeRaw(stdinFd)
		if err != nil {
			return err
		}
		defer term.Restore(stdinFd, oldState)
	}

	go func() {
		buf := make([]byte, 1024)
		for {
			n, err := os.Stdin.Read(buf)
			if n > 0 {
				if _, werr := sess.Write(buf[:n]); werr != nil {
					return
				}
			}
			if err != nil {
				return
			}
		}
	}()

	for d := range sess.Deltas() {
		switch d.Kind {
		case block.DeltaBlockOpened:
			fmt.Printf("\r\n▶ %s\r\n", d.Command)
		case block.DeltaLineAppended:
			fmt.Printf("  %s\r\n", d.Line.Text())
		case block.DeltaBlockClosed:
			if highlighter != nil && d.Block != nil {
				highlighter.Highlight(d.Block)
			}
			glyph := "✓"
			if d.Status != block.StatusCompleted {
				glyph = "✗"
			}
			if d.ExitCode != nil {
				fmt.Printf("%s exit %d\r\n", glyph, *d.ExitCode)
			} else {
				fmt.Printf("%s %s\r\n", glyph, d.Status)
			}
		}
		if store != nil {
			if err := store.Apply(d); err != nil {
				log.Printf("Main: History write: %v", err)
			}
		}
	}
	return sess.Err()
}
