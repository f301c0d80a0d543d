// Package tmux builds the tmux command strings fleetmux runs on targets
// and parses their output. All commands are plain shell one-liners so
// they work identically through the SSH transport and the local runner.
package tmux

import (
	"fmt"
	"strconv"
	"strings"
)

// Pane identifies a single tmux pane on a host, with the process info
// tmux reports for it.
type Pane struct {
	Session string
	Window  int
	ID      string
	Command string
	Title   string
}

// Window identifies a tmux window on a host.
type Window struct {
	Session string
	Index   int
	Name    string
}

// Capture holds one snapshot of a pane: the current foreground command,
// the pane title, and the visible scrollback lines.
type Capture struct {
	Command string
	Title   string
	Lines   []string
}

// ProbeCommand returns the cheap reachability check run against a target
// before it is considered usable.
func ProbeCommand() string {
	return "tmux -V"
}

// CaptureCommand builds the combined display-message + capture-pane
// command for one pane. The display-message header carries the current
// command and title on a single tab-separated line; capture-pane output
// follows. ansi preserves escape sequences, joinLines unwraps soft-wrapped
// lines, lines bounds how far back the capture reaches.
func CaptureCommand(paneID string, lines int, ansi, joinLines bool) string {
	var capture strings.Builder
	capture.WriteString("tmux capture-pane -p ")
	if ansi {
		capture.WriteString("-e ")
	}
	if joinLines {
		capture.WriteString("-J ")
	}
	fmt.Fprintf(&capture, "-t %s -S -%d", paneID, lines)

	return fmt.Sprintf("tmux display-message -p -t %s '#{pane_current_command}\t#{pane_title}' && %s",
		paneID, capture.String())
}

// ListPanesCommand returns the command that lists every pane across all
// sessions on a target, tab-delimited.
func ListPanesCommand() string {
	return `tmux list-panes -a -F "#{session_name}	#{window_index}	#{pane_id}	#{pane_current_command}	#{pane_title}"`
}

// ListWindowsCommand returns the command that lists every window across
// all sessions on a target, tab-delimited.
func ListWindowsCommand() string {
	return `tmux list-windows -a -F "#{session_name}	#{window_index}	#{window_name}"`
}

// AttachCommand builds the interactive attach used for take-control:
// attach to the session, then focus the tracked window and pane.
func AttachCommand(session string, window int, paneID string) string {
	return fmt.Sprintf("tmux attach -t %s \\; select-window -t %s:%d \\; select-pane -t %s",
		session, session, window, paneID)
}

// WithPath prefixes a command with extra PATH directories. Remote
// non-login shells often miss /usr/local/bin and /opt/homebrew/bin, so
// tmux would not be found without this.
func WithPath(command string, extra []string) string {
	if len(extra) == 0 {
		return command
	}
	return fmt.Sprintf(`export PATH="%s:$PATH"; %s`, strings.Join(extra, ":"), command)
}

// ParseCapture splits capture output into the header fields and the
// scrollback body. The first line is the display-message header; an
// empty output yields an empty capture.
func ParseCapture(output string) Capture {
	lines := strings.Split(strings.TrimSuffix(output, "\n"), "\n")
	header := lines[0]
	command, title, _ := strings.Cut(header, "\t")

	var body []string
	if len(lines) > 1 {
		body = lines[1:]
	}
	return Capture{Command: command, Title: title, Lines: body}
}

// ParsePanes parses list-panes output. Malformed lines are skipped.
func ParsePanes(output string) []Pane {
	var panes []Pane
	for _, line := range strings.Split(output, "\n") {
		parts := strings.Split(line, "\t")
		if len(parts) < 3 || parts[0] == "" || parts[2] == "" {
			continue
		}
		window, err := strconv.Atoi(parts[1])
		if err != nil {
			continue
		}
		pane := Pane{
			Session: parts[0],
			Window:  window,
			ID:      parts[2],
		}
		if len(parts) > 3 {
			pane.Command = parts[3]
		}
		if len(parts) > 4 {
			pane.Title = parts[4]
		}
		panes = append(panes, pane)
	}
	return panes
}

// ParseWindows parses list-windows output. Malformed lines are skipped.
func ParseWindows(output string) []Window {
	var windows []Window
	for _, line := range strings.Split(output, "\n") {
		parts := strings.Split(line, "\t")
		if len(parts) < 2 || parts[0] == "" {
			continue
		}
		index, err := strconv.Atoi(parts[1])
		if err != nil {
			continue
		}
		win := Window{Session: parts[0], Index: index}
		if len(parts) > 2 {
			win.Name = parts[2]
		}
		windows = append(windows, win)
	}
	return windows
}
