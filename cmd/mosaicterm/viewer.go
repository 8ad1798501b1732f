// Copyright © 2026 MosaicTerm contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
//
// File: cmd/mosaicterm/viewer.go
// Summary: tcell block viewer: scrollback of command blocks, live tail.

package main

import (
	"fmt"
	"log"
	"sync"

	"github.com/gdamore/tcell/v2"
	"github.com/mattn/go-runewidth"

	"github.com/mosaicterm/mosaicterm/block"
	"github.com/mosaicterm/mosaicterm/blockfmt"
	"github.com/mosaicterm/mosaicterm/history"
	"github.com/mosaicterm/mosaicterm/parser"
	"github.com/mosaicterm/mosaicterm/render"
	"github.com/mosaicterm/mosaicterm/session"
)

// maxViewerBlocks bounds how many finished blocks stay in viewer memory.
const maxViewerBlocks = 200

// blockView is the viewer's own copy of a block. The assembler keeps mutating
// its open block, so the viewer builds state from delta values instead of
// sharing the live struct.
type blockView struct {
	command string
	lines   []block.OutputLine
	status  block.Status
	exit    *int
	closed  bool
}

type viewer struct {
	screen      tcell.Screen
	theme       *render.Theme
	sess        *session.Session
	store       history.Store
	highlighter *blockfmt.Highlighter

	mu     sync.Mutex
	blocks []*blockView
	done   bool
}

func runViewer(sess *session.Session, store history.Store, highlighter *blockfmt.Highlighter) error {
	screen, err := tcell.NewScreen()
	if err != nil {
		return err
	}
	if err := screen.Init(); err != nil {
		return err
	}
	defer screen.Fini()

	v := &viewer{
		screen:      screen,
		theme:       render.NewTheme(),
		sess:        sess,
		store:       store,
		highlighter: highlighter,
	}

	cols, rows := screen.Size()
	sess.Resize(cols, rows)

	go v.consume()
	return v.eventLoop()
}

// consume applies the delta stream to the viewer model and wakes the event
// loop after each change.
func (v *viewer) consume() {
	for d := range v.sess.Deltas() {
		v.apply(d)
		if v.store != nil {
			if err := v.store.Apply(d); err != nil {
				log.Printf("Viewer: History write: %v", err)
			}
		}
		v.screen.PostEvent(tcell.NewEventInterrupt(nil))
	}
	v.mu.Lock()
	v.done = true
	v.mu.Unlock()
	v.screen.PostEvent(tcell.NewEventInterrupt(nil))
}

func (v *viewer) apply(d block.Delta) {
	v.mu.Lock()
	defer v.mu.Unlock()

	switch d.Kind {
	case block.DeltaBlockOpened:
		v.blocks = append(v.blocks, &blockView{command: d.Command, status: block.StatusRunning})
		if len(v.blocks) > maxViewerBlocks {
			v.blocks = v.blocks[len(v.blocks)-maxViewerBlocks:]
		}
	case block.DeltaLineAppended:
		if bv := v.last(); bv != nil && !bv.closed {
			bv.lines = append(bv.lines, d.Line)
		}
	case block.DeltaBlockClosed:
		bv := v.last()
		if bv == nil || bv.closed {
			return
		}
		bv.closed = true
		bv.status = d.Status
		bv.exit = d.ExitCode
		// The block is frozen now, so highlighted segments are safe to take.
		if v.highlighter != nil && d.Block != nil {
			v.highlighter.Highlight(d.Block)
			bv.lines = append(bv.lines[:0], d.Block.Lines...)
		}
	}
}

func (v *viewer) last() *blockView {
	if len(v.blocks) == 0 {
		return nil
	}
	return v.blocks[len(v.blocks)-1]
}

func (v *viewer) eventLoop() error {
	for {
		ev := v.screen.PollEvent()
		switch ev := ev.(type) {
		case *tcell.EventKey:
			if ev.Key() == tcell.KeyCtrlQ {
				return nil
			}
			v.forwardKey(ev)
		case *tcell.EventResize:
			cols, rows := v.screen.Size()
			v.sess.Resize(cols, rows)
			v.screen.Sync()
			v.draw()
		case *tcell.EventInterrupt:
			v.mu.Lock()
			done := v.done
			v.mu.Unlock()
			if done {
				return v.sess.Err()
			}
			v.draw()
		case nil:
			return nil
		}
	}
}

// forwardKey translates a tcell key event into the bytes the shell expects.
func (v *viewer) forwardKey(ev *tcell.EventKey) {
	var keyBytes []byte

	switch key := ev.Key(); key {
	case tcell.KeyUp:
		keyBytes = []byte("\x1b[A")
	case tcell.KeyDown:
		keyBytes = []byte("\x1b[B")
	case tcell.KeyRight:
		keyBytes = []byte("\x1b[C")
	case tcell.KeyLeft:
		keyBytes = []byte("\x1b[D")
	case tcell.KeyEnter:
		keyBytes = []byte("\r")
	case tcell.KeyBackspace, tcell.KeyBackspace2:
		keyBytes = []byte{0x7f}
	case tcell.KeyTab:
		keyBytes = []byte("\t")
	case tcell.KeyEscape:
		keyBytes = []byte("\x1b")
	case tcell.KeyRune:
		keyBytes = []byte(string(ev.Rune()))
	default:
		// Control keys map straight onto their C0 bytes.
		if key < 0x20 {
			keyBytes = []byte{byte(key)}
		}
	}

	if keyBytes != nil {
		v.sess.Write(keyBytes)
	}
}

// draw renders the block tail bottom-anchored.
func (v *viewer) draw() {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.screen.Clear()
	cols, rows := v.screen.Size()

	type drawLine struct {
		segs []parser.Segment
	}
	var out []drawLine

	headerStyle := parser.TextStyle{Attr: parser.AttrBold}
	for _, bv := range v.blocks {
		out = append(out, drawLine{segs: []parser.Segment{
			{Text: "▶ " + bv.command, Style: headerStyle},
		}})
		for _, line := range bv.lines {
			out = append(out, drawLine{segs: line.Segments})
		}
		if bv.closed {
			out = append(out, drawLine{segs: []parser.Segment{v.footerSegment(bv)}})
		}
	}

	if len(out) > rows {
		out = out[len(out)-rows:]
	}
	for y, dl := range out {
		v.drawSegments(0, y, cols, dl.segs)
	}
	v.screen.Show()
}

func (v *viewer) footerSegment(bv *blockView) parser.Segment {
	style := parser.TextStyle{FG: parser.NewIndexedColor(parser.ColorModeStandard, 2)}
	text := "✓ done"
	if bv.status != block.StatusCompleted {
		style.FG = parser.NewIndexedColor(parser.ColorModeStandard, 1)
		text = "✗ " + bv.status.String()
	}
	if bv.exit != nil {
		text = fmt.Sprintf("%s (exit %d)", text, *bv.exit)
	}
	return parser.Segment{Text: text, Style: style}
}

func (v *viewer) drawSegments(x, y, width int, segs []parser.Segment) {
	for _, seg := range render.TruncateLine(segs, width-x) {
		style := v.theme.Style(seg.Style)
		for _, r := range seg.Text {
			v.screen.SetContent(x, y, r, nil, style)
			x += runewidth.RuneWidth(r)
		}
	}
}
