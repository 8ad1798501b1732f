package shell

import (
	"strings"
	"testing"
)

func TestSnippetByNameAndPath(t *testing.T) {
	for _, name := range Supported() {
		if _, ok := Snippet(name); !ok {
			t.Errorf("no snippet for %q", name)
		}
		if _, ok := Snippet("/usr/bin/" + name); !ok {
			t.Errorf("full path lookup failed for %q", name)
		}
	}
	if _, ok := Snippet("powershell"); ok {
		t.Error("unexpected snippet for unsupported shell")
	}
}

// Every snippet must emit the full A/C/D marker cycle; B is emitted from the
// prompt string (bash/zsh) or the preexec hook (fish).
func TestSnippetsEmitMarkers(t *testing.T) {
	for _, name := range Supported() {
		snip, _ := Snippet(name)
		for _, code := range []string{"133;A", "133;B", "133;C", "133;D"} {
			if !strings.Contains(snip, code) {
				t.Errorf("%s snippet missing OSC %s", name, code)
			}
		}
	}
}
