// Copyright © 2026 MosaicTerm contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
//
// File: session/pty.go
// Summary: PTY abstraction and the creack/pty backed shell implementation.

package session

import (
	"fmt"
	"os"
	osexec "os/exec"
	"syscall"

	"github.com/creack/pty"
)

// Pty is the duplex byte stream the orchestrator drives. Reads never return
// more than len(p); short writes are possible.
type Pty interface {
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
	Resize(cols, rows int) error
	Close() error
}

// shellPty runs a shell child behind a real pseudo-terminal.
type shellPty struct {
	f   *os.File
	cmd *osexec.Cmd
}

// StartShell launches the shell on a new PTY sized cols×rows.
func StartShell(shell string, cols, rows int) (Pty, error) {
	cmd := osexec.Command(shell)
	cmd.Env = append(os.Environ(),
		"TERM=xterm-256color",
	)

	f, err := pty.StartWithSize(cmd, &pty.Winsize{
		Rows: uint16(rows),
		Cols: uint16(cols),
	})
	if err != nil {
		return nil, fmt.Errorf("session: start pty: %w", err)
	}
	return &shellPty{f: f, cmd: cmd}, nil
}

func (p *shellPty) Read(b []byte) (int, error)  { return p.f.Read(b) }
func (p *shellPty) Write(b []byte) (int, error) { return p.f.Write(b) }

func (p *shellPty) Resize(cols, rows int) error {
	return pty.Setsize(p.f, &pty.Winsize{
		Rows: uint16(rows),
		Cols: uint16(cols),
	})
}

func (p *shellPty) Close() error {
	err := p.f.Close()
	if p.cmd != nil && p.cmd.Process != nil {
		p.cmd.Process.Signal(syscall.SIGTERM)
	}
	return err
}
