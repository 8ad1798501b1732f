// Copyright © 2026 MosaicTerm contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
//
// File: shell/integration.go
// Summary: Per-shell snippets installing OSC 133 semantic prompt markers.
// Usage: The snippet for the user's shell is printed for them to source;
//        injection into the shell is outside this package.

package shell

import "path/filepath"

// Marker escape strings, exported for tests and documentation. A marks the
// prompt start, B the command-line start, C pre-exec, D post-exec with the
// exit status.
const (
	MarkerPromptStart     = "\x1b]133;A\x07"
	MarkerCommandStart    = "\x1b]133;B\x07"
	MarkerCommandExecuted = "\x1b]133;C\x07"
	MarkerCommandFinished = "\x1b]133;D;%s\x07"
)

const bashSnippet = `# mosaicterm shell integration for bash. Source from ~/.bashrc.
__mosaicterm_prompt() {
    local exit=$?
    printf '\033]133;D;%s\007' "$exit"
    printf '\033]133;A\007'
}
__mosaicterm_preexec() {
    [ -n "$COMP_LINE" ] && return
    [ "$BASH_COMMAND" = "__mosaicterm_prompt" ] && return
    printf '\033]133;C\007'
}
PROMPT_COMMAND="__mosaicterm_prompt${PROMPT_COMMAND:+;$PROMPT_COMMAND}"
PS1="${PS1}\[\033]133;B\007\]"
trap '__mosaicterm_preexec' DEBUG
`

const zshSnippet = `# mosaicterm shell integration for zsh. Source from ~/.zshrc.
__mosaicterm_precmd() {
    local exit=$?
    printf '\033]133;D;%s\007' "$exit"
    printf '\033]133;A\007'
}
__mosaicterm_preexec() {
    printf '\033]133;C\007'
}
precmd_functions+=(__mosaicterm_precmd)
preexec_functions+=(__mosaicterm_preexec)
PS1="${PS1}%{$(printf '\033]133;B\007')%}"
`

const fishSnippet = `# mosaicterm shell integration for fish. Source from config.fish.
function __mosaicterm_prompt --on-event fish_prompt
    printf '\033]133;D;%s\007' "$status"
    printf '\033]133;A\007'
end
function __mosaicterm_preexec --on-event fish_preexec
    printf '\033]133;B\007'
    printf '\033]133;C\007'
end
`

var snippets = map[string]string{
	"bash": bashSnippet,
	"zsh":  zshSnippet,
	"fish": fishSnippet,
}

// Snippet returns the integration snippet for a shell, accepting either a
// bare name or a full path like /bin/zsh.
func Snippet(shell string) (string, bool) {
	s, ok := snippets[filepath.Base(shell)]
	return s, ok
}

// Supported lists the shells with bundled snippets.
func Supported() []string {
	return []string{"bash", "fish", "zsh"}
}
