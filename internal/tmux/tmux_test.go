package tmux

import (
	"reflect"
	"strings"
	"testing"
)

func TestCaptureCommand(t *testing.T) {
	tests := []struct {
		name      string
		ansi      bool
		joinLines bool
		want      string
	}{
		{
			name: "plain",
			want: "tmux display-message -p -t %3 '#{pane_current_command}\t#{pane_title}' && tmux capture-pane -p -t %3 -S -40",
		},
		{
			name: "ansi",
			ansi: true,
			want: "tmux display-message -p -t %3 '#{pane_current_command}\t#{pane_title}' && tmux capture-pane -p -e -t %3 -S -40",
		},
		{
			name:      "ansi and joined",
			ansi:      true,
			joinLines: true,
			want:      "tmux display-message -p -t %3 '#{pane_current_command}\t#{pane_title}' && tmux capture-pane -p -e -J -t %3 -S -40",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CaptureCommand("%3", 40, tt.ansi, tt.joinLines)
			if got != tt.want {
				t.Errorf("got  %q\nwant %q", got, tt.want)
			}
		})
	}
}

func TestAttachCommand(t *testing.T) {
	got := AttachCommand("main", 2, "%7")
	want := `tmux attach -t main \; select-window -t main:2 \; select-pane -t %7`
	if got != want {
		t.Errorf("got  %q\nwant %q", got, want)
	}
}

func TestWithPath(t *testing.T) {
	got := WithPath("tmux -V", []string{"/usr/local/bin", "/opt/homebrew/bin"})
	want := `export PATH="/usr/local/bin:/opt/homebrew/bin:$PATH"; tmux -V`
	if got != want {
		t.Errorf("got  %q\nwant %q", got, want)
	}

	if got := WithPath("tmux -V", nil); got != "tmux -V" {
		t.Errorf("empty extra should be a no-op, got %q", got)
	}
}

func TestParseCapture(t *testing.T) {
	output := "vim\tserver.go - nvim\n" +
		"func main() {\n" +
		"\tfmt.Println(\"hi\")\n" +
		"}"
	cap := ParseCapture(output)

	if cap.Command != "vim" {
		t.Errorf("command = %q, want vim", cap.Command)
	}
	if cap.Title != "server.go - nvim" {
		t.Errorf("title = %q", cap.Title)
	}
	if len(cap.Lines) != 3 {
		t.Fatalf("expected 3 body lines, got %d: %q", len(cap.Lines), cap.Lines)
	}
	if cap.Lines[0] != "func main() {" {
		t.Errorf("first line = %q", cap.Lines[0])
	}
}

func TestParseCaptureTrailingNewline(t *testing.T) {
	cap := ParseCapture("bash\tshell\n$ ls\n")
	if len(cap.Lines) != 1 || cap.Lines[0] != "$ ls" {
		t.Errorf("trailing newline should not add an empty line, got %q", cap.Lines)
	}
}

func TestParseCaptureEmpty(t *testing.T) {
	cap := ParseCapture("")
	if cap.Command != "" || cap.Title != "" || len(cap.Lines) != 0 {
		t.Errorf("empty output should parse to empty capture, got %+v", cap)
	}
}

func TestParseCaptureHeaderOnly(t *testing.T) {
	cap := ParseCapture("bash\t")
	if cap.Command != "bash" {
		t.Errorf("command = %q", cap.Command)
	}
	if len(cap.Lines) != 0 {
		t.Errorf("expected no body lines, got %q", cap.Lines)
	}
}

func TestParsePanes(t *testing.T) {
	output := strings.Join([]string{
		"main\t0\t%0\tvim\tserver.go",
		"main\t1\t%1\tbash\t",
		"logs\t0\t%4\ttail\tprod.log",
		"garbage line without tabs",
		"\t0\t%9\tx\ty", // empty session
		"main\tnotanumber\t%2\tbash\t",
	}, "\n")

	panes := ParsePanes(output)
	want := []Pane{
		{Session: "main", Window: 0, ID: "%0", Command: "vim", Title: "server.go"},
		{Session: "main", Window: 1, ID: "%1", Command: "bash"},
		{Session: "logs", Window: 0, ID: "%4", Command: "tail", Title: "prod.log"},
	}
	if !reflect.DeepEqual(panes, want) {
		t.Errorf("got  %+v\nwant %+v", panes, want)
	}
}

func TestParseWindows(t *testing.T) {
	output := "main\t0\teditor\nmain\t1\tshell\nlogs\t0\t\nbad\tnope\tname"
	windows := ParseWindows(output)
	want := []Window{
		{Session: "main", Index: 0, Name: "editor"},
		{Session: "main", Index: 1, Name: "shell"},
		{Session: "logs", Index: 0, Name: ""},
	}
	if !reflect.DeepEqual(windows, want) {
		t.Errorf("got  %+v\nwant %+v", windows, want)
	}
}
