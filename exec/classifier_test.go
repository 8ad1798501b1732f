package exec

import (
	"strings"
	"testing"
)

func TestClassify(t *testing.T) {
	c := NewClassifier(nil, nil)
	tests := []struct {
		command string
		want    Decision
	}{
		{"echo hi", DecisionDirect},
		{"ls -la /tmp", DecisionDirect},
		{"pwd", DecisionDirect},
		{"cat notes.txt", DecisionDirect},
		{"sleep 60", DecisionPty},          // not in allow-list
		{"vim file.txt", DecisionPty},      // interactive program
		{"cat file | wc -l", DecisionPty},  // pipeline
		{"echo hi > out.txt", DecisionPty}, // redirection
		{"echo `date`", DecisionPty},       // command substitution
		{"echo $(date)", DecisionPty},
		{"ls & ls", DecisionPty},
		{"echo a \\| b", DecisionDirect}, // escaped pipe is literal
		{"echo 'a | b'", DecisionDirect}, // single-quoted pipe is literal
		{"", DecisionPty},
		{"   ", DecisionPty},
		{"head " + strings.Repeat("x", 3000), DecisionPty}, // over length cap
	}
	for _, tt := range tests {
		if got := c.Classify(tt.command); got != tt.want {
			t.Errorf("Classify(%q) = %v, want %v", tt.command, got, tt.want)
		}
	}
}

// TestClassifyDenylistToken: a denied program anywhere in the line forces PTY.
func TestClassifyDenylistToken(t *testing.T) {
	c := NewClassifier(nil, nil)
	if got := c.Classify("which vim"); got != DecisionPty {
		t.Errorf("Classify(which vim) = %v, want pty", got)
	}
}

// TestClassifyTotality: arbitrary garbage input always yields a decision.
func TestClassifyTotality(t *testing.T) {
	c := NewClassifier(nil, nil)
	inputs := []string{
		"\x00\x01\x02", strings.Repeat("💥", 500), "echo \xff\xfe",
		"'unterminated", "\"also unterminated", "\\",
	}
	for _, in := range inputs {
		d := c.Classify(in)
		if d != DecisionPty && d != DecisionDirect {
			t.Errorf("Classify(%q) = %v", in, d)
		}
	}
}

func TestClassifyCustomLists(t *testing.T) {
	c := NewClassifier([]string{"mytool"}, []string{"ls"})
	if got := c.Classify("mytool run"); got != DecisionDirect {
		t.Errorf("custom allow: got %v", got)
	}
	if got := c.Classify("echo hi"); got != DecisionPty {
		t.Errorf("default allow must be replaced: got %v", got)
	}
}
