// Package command defines the closed set of multiplexer commands, parses
// them from tmux-style command lines, and holds key bindings.
//
// A Command is a Kind plus a typed argument value. Parsing happens once,
// when a line is read or a key is bound; the server only ever switches on
// Kind and type-asserts the matching Args struct.
package command

import (
	"strings"
	"syscall"

	"github.com/dshills/muxstorm/internal/arrange"
	"github.com/dshills/muxstorm/internal/keys"
)

// Kind enumerates every command.
type Kind int

const (
	KindNone Kind = iota
	SplitWindow
	NewWindow
	KillPane
	KillWindow
	KillServer
	RenameWindow
	RenamePane
	SelectPane
	LastPane
	SelectWindow
	NextWindow
	PreviousWindow
	LastWindow
	ResizePane
	SelectLayout
	NextLayout
	PreviousLayout
	RotateWindow
	SendSignal
	SendKeys
	SendPrefix
	SetOption
	ShowOptions
	BindKey
	UnbindKey
	DetachClient
	SuspendClient
	ClockMode
	DisplayMessage
	ListPanes
	ListWindows
	ListKeys
	ListCommands
	CommandPrompt
	kindCount
)

// Command is a parsed command line.
type Command struct {
	Kind Kind
	// Args is a pointer to the Kind's argument struct, or nil for kinds
	// that take none.
	Args any
	// Line is the text the command was parsed from.
	Line string
}

// Name returns the command's canonical name.
func (c Command) Name() string {
	return c.Kind.String()
}

func (c Command) String() string {
	if c.Line != "" {
		return c.Line
	}
	return c.Kind.String()
}

// SplitWindowArgs are the arguments of split-window. Horizontal (-h)
// places the new pane beside the active one; the default stacks it
// below.
type SplitWindowArgs struct {
	Horizontal bool
	Detached   bool
	Command    []string
}

// NewWindowArgs are the arguments of new-window.
type NewWindowArgs struct {
	Name     string
	Detached bool
	Command  []string
}

// RenameArgs are the arguments of rename-window and rename-pane.
type RenameArgs struct {
	Name string
}

// PaneTarget says which pane select-pane moves to.
type PaneTarget int

const (
	// TargetDirection moves focus in Direction.
	TargetDirection PaneTarget = iota
	// TargetLast selects the previously active pane.
	TargetLast
	// TargetNext selects the next pane in tree order.
	TargetNext
	// TargetPrevious selects the previous pane in tree order.
	TargetPrevious
	// TargetPane selects the pane with ID Pane.
	TargetPane
)

// SelectPaneArgs are the arguments of select-pane.
type SelectPaneArgs struct {
	Target    PaneTarget
	Direction arrange.Direction
	Pane      uint32
}

// SelectWindowArgs are the arguments of select-window.
type SelectWindowArgs struct {
	Index int
}

// ResizePaneArgs are the arguments of resize-pane. Zoom toggles zoom and
// ignores the rest.
type ResizePaneArgs struct {
	Zoom      bool
	Direction arrange.Direction
	Amount    int
}

// SelectLayoutArgs are the arguments of select-layout. Without a name the
// window's current layout is applied again.
type SelectLayoutArgs struct {
	Layout  arrange.LayoutName
	Reapply bool
}

// RotateWindowArgs are the arguments of rotate-window.
type RotateWindowArgs struct {
	Reverse bool
}

// SendSignalArgs are the arguments of send-signal.
type SendSignalArgs struct {
	Signal syscall.Signal
}

// SendKeysArgs are the arguments of send-keys. Each key is encoded for
// the target pane when the command runs.
type SendKeysArgs struct {
	Keys []keys.Event
}

// SetOptionArgs are the arguments of set-option. Unset restores the
// default.
type SetOptionArgs struct {
	Name  string
	Value string
	Unset bool
}

// ShowOptionsArgs are the arguments of show-options. An empty name shows
// every option.
type ShowOptionsArgs struct {
	Name string
}

// BindKeyArgs are the arguments of bind-key. Root bindings fire without
// the prefix.
type BindKeyArgs struct {
	Key     keys.Event
	Root    bool
	Command Command
}

// UnbindKeyArgs are the arguments of unbind-key.
type UnbindKeyArgs struct {
	Key  keys.Event
	Root bool
}

// DetachClientArgs are the arguments of detach-client. All detaches every
// other client instead.
type DetachClientArgs struct {
	All bool
}

// DisplayMessageArgs are the arguments of display-message.
type DisplayMessageArgs struct {
	Text string
}

// CommandPromptArgs are the arguments of command-prompt. The text typed
// at the prompt replaces %% in Template, or is run as the command when
// Template is empty.
type CommandPromptArgs struct {
	Prompt   string
	Template string
}

// joinArgs joins positional arguments back into one string.
func joinArgs(args []string) string {
	return strings.Join(args, " ")
}
