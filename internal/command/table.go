package command

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/google/shlex"
	"github.com/spf13/pflag"

	"github.com/dshills/muxstorm/internal/arrange"
	"github.com/dshills/muxstorm/internal/keys"
	"github.com/dshills/muxstorm/internal/muxerr"
	"github.com/dshills/muxstorm/internal/process"
)

// Executor runs parsed commands. The server implements it.
type Executor interface {
	Execute(ctx context.Context, cmd Command) error
}

// parseFunc builds the argument struct for one command from its
// arguments, name excluded.
type parseFunc func(t *Table, args []string) (any, error)

type entry struct {
	kind  Kind
	name  string
	alias string
	usage string
	help  string
	parse parseFunc
}

// Table maps command names and aliases to their parsers.
type Table struct {
	byName map[string]*entry
}

// NewTable returns the table of every command.
func NewTable() *Table {
	t := &Table{byName: make(map[string]*entry)}
	for i := range entries {
		e := &entries[i]
		t.byName[e.name] = e
		if e.alias != "" {
			t.byName[e.alias] = e
		}
	}
	return t
}

var kindNames [kindCount]string

func init() {
	for _, e := range entries {
		kindNames[e.kind] = e.name
	}
}

// String returns the canonical command name.
func (k Kind) String() string {
	if k > KindNone && k < kindCount {
		return kindNames[k]
	}
	return "none"
}

// HasHandler reports whether name is a command or alias.
func (t *Table) HasHandler(name string) bool {
	_, ok := t.byName[name]
	return ok
}

// Names returns the canonical command names, sorted.
func (t *Table) Names() []string {
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.name)
	}
	sort.Strings(names)
	return names
}

// HelpText returns the usage line and description for name.
func (t *Table) HelpText(name string) (string, bool) {
	e, ok := t.byName[name]
	if !ok {
		return "", false
	}
	usage := e.name
	if e.alias != "" {
		usage += " (" + e.alias + ")"
	}
	if e.usage != "" {
		usage += " " + e.usage
	}
	return usage + ": " + e.help, true
}

// Parse lexes a command line with shell quoting rules and parses it.
func (t *Table) Parse(line string) (Command, error) {
	argv, err := shlex.Split(line)
	if err != nil {
		return Command{}, muxerr.NewCommandError("", "%v", err)
	}
	cmd, err := t.ParseArgs(argv)
	if err != nil {
		return Command{}, err
	}
	cmd.Line = strings.TrimSpace(line)
	return cmd, nil
}

// ParseArgs parses an already split command line.
func (t *Table) ParseArgs(argv []string) (Command, error) {
	if len(argv) == 0 {
		return Command{}, muxerr.NewCommandError("", "empty command")
	}
	e, ok := t.byName[argv[0]]
	if !ok {
		return Command{}, muxerr.NewCommandError(argv[0], "unknown command")
	}
	args, err := e.parse(t, argv[1:])
	if err != nil {
		var ce *muxerr.CommandError
		if errors.As(err, &ce) {
			return Command{}, err
		}
		return Command{}, muxerr.NewCommandError(e.name, "%v (usage: %s %s)", err, e.name, e.usage)
	}
	return Command{Kind: e.kind, Args: args, Line: quoteArgs(argv)}, nil
}

// Invoke parses name and args and hands the command to ex.
func (t *Table) Invoke(ctx context.Context, name string, args []string, ex Executor) error {
	cmd, err := t.ParseArgs(append([]string{name}, args...))
	if err != nil {
		return err
	}
	return ex.Execute(ctx, cmd)
}

// quoteArgs rebuilds a command line that shlex splits back into argv.
func quoteArgs(argv []string) string {
	parts := make([]string, len(argv))
	for i, a := range argv {
		if a == "" || strings.ContainsAny(a, " \t\"'\\#") {
			a = strconv.Quote(a)
		}
		parts[i] = a
	}
	return strings.Join(parts, " ")
}

func flagSet(name string) *pflag.FlagSet {
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.Usage = func() {}
	fs.SetInterspersed(false)
	return fs
}

// argv returns the positional arguments, nil when there are none.
func argv(fs *pflag.FlagSet) []string {
	if fs.NArg() == 0 {
		return nil
	}
	return fs.Args()
}

func noArgs(_ *Table, args []string) (any, error) {
	if len(args) > 0 {
		return nil, fmt.Errorf("unexpected argument %q", args[0])
	}
	return nil, nil
}

var entries = []entry{
	{kind: SplitWindow, name: "split-window", alias: "splitw", usage: "[-dhv] [command ...]", help: "split the active pane", parse: parseSplitWindow},
	{kind: NewWindow, name: "new-window", alias: "neww", usage: "[-d] [-n name] [command ...]", help: "create a window", parse: parseNewWindow},
	{kind: KillPane, name: "kill-pane", alias: "killp", help: "hang up the active pane", parse: noArgs},
	{kind: KillWindow, name: "kill-window", alias: "killw", help: "hang up every pane in the active window", parse: noArgs},
	{kind: KillServer, name: "kill-server", help: "stop the server", parse: noArgs},
	{kind: RenameWindow, name: "rename-window", alias: "renamew", usage: "name", help: "name the active window", parse: parseRename},
	{kind: RenamePane, name: "rename-pane", usage: "name", help: "name the active pane", parse: parseRename},
	{kind: SelectPane, name: "select-pane", alias: "selectp", usage: "[-DLRUl] [-t target]", help: "change the active pane", parse: parseSelectPane},
	{kind: LastPane, name: "last-pane", alias: "lastp", help: "select the previously active pane", parse: noArgs},
	{kind: SelectWindow, name: "select-window", alias: "selectw", usage: "-t index", help: "select a window by index", parse: parseSelectWindow},
	{kind: NextWindow, name: "next-window", alias: "next", help: "select the next window", parse: noArgs},
	{kind: PreviousWindow, name: "previous-window", alias: "prev", help: "select the previous window", parse: noArgs},
	{kind: LastWindow, name: "last-window", alias: "last", help: "select the previously active window", parse: noArgs},
	{kind: ResizePane, name: "resize-pane", alias: "resizep", usage: "[-DLRUZ] [amount]", help: "resize or zoom the active pane", parse: parseResizePane},
	{kind: SelectLayout, name: "select-layout", alias: "selectl", usage: "[layout]", help: "arrange the window's panes", parse: parseSelectLayout},
	{kind: NextLayout, name: "next-layout", alias: "nextl", help: "apply the next layout", parse: noArgs},
	{kind: PreviousLayout, name: "previous-layout", alias: "prevl", help: "apply the previous layout", parse: noArgs},
	{kind: RotateWindow, name: "rotate-window", alias: "rotatew", usage: "[-DU]", help: "rotate the window's panes", parse: parseRotateWindow},
	{kind: SendSignal, name: "send-signal", usage: "signal", help: "signal the active pane's process group", parse: parseSendSignal},
	{kind: SendKeys, name: "send-keys", alias: "send", usage: "[-l] key ...", help: "type keys into the active pane", parse: parseSendKeys},
	{kind: SendPrefix, name: "send-prefix", help: "send the prefix key to the active pane", parse: noArgs},
	{kind: SetOption, name: "set-option", alias: "set", usage: "[-gu] option [value]", help: "change an option", parse: parseSetOption},
	{kind: ShowOptions, name: "show-options", alias: "show", usage: "[-g] [option]", help: "show option values", parse: parseShowOptions},
	{kind: BindKey, name: "bind-key", alias: "bind", usage: "[-n] key command [arguments]", help: "bind a key to a command", parse: parseBindKey},
	{kind: UnbindKey, name: "unbind-key", alias: "unbind", usage: "[-n] key", help: "remove a key binding", parse: parseUnbindKey},
	{kind: DetachClient, name: "detach-client", alias: "detach", usage: "[-a]", help: "detach this client", parse: parseDetachClient},
	{kind: SuspendClient, name: "suspend-client", alias: "suspendc", help: "suspend this client", parse: noArgs},
	{kind: ClockMode, name: "clock-mode", help: "show a clock in the active pane", parse: noArgs},
	{kind: DisplayMessage, name: "display-message", alias: "display", usage: "[message]", help: "show a message in the status line", parse: parseDisplayMessage},
	{kind: ListPanes, name: "list-panes", alias: "lsp", help: "list the panes of the active window", parse: noArgs},
	{kind: ListWindows, name: "list-windows", alias: "lsw", help: "list windows", parse: noArgs},
	{kind: ListKeys, name: "list-keys", alias: "lsk", help: "list key bindings", parse: noArgs},
	{kind: ListCommands, name: "list-commands", alias: "lscm", help: "list commands", parse: noArgs},
	{kind: CommandPrompt, name: "command-prompt", usage: "[-p prompt] [template]", help: "read a command in the status line", parse: parseCommandPrompt},
}

func parseSplitWindow(_ *Table, args []string) (any, error) {
	fs := flagSet("split-window")
	h := fs.BoolP("horizontal", "h", false, "")
	v := fs.BoolP("vertical", "v", false, "")
	d := fs.BoolP("detached", "d", false, "")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if *h && *v {
		return nil, fmt.Errorf("-h and -v are exclusive")
	}
	return &SplitWindowArgs{Horizontal: *h, Detached: *d, Command: argv(fs)}, nil
}

func parseNewWindow(_ *Table, args []string) (any, error) {
	fs := flagSet("new-window")
	n := fs.StringP("name", "n", "", "")
	d := fs.BoolP("detached", "d", false, "")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	return &NewWindowArgs{Name: *n, Detached: *d, Command: argv(fs)}, nil
}

func parseRename(_ *Table, args []string) (any, error) {
	if len(args) == 0 {
		return nil, fmt.Errorf("missing name")
	}
	return &RenameArgs{Name: joinArgs(args)}, nil
}

func parseSelectPane(_ *Table, args []string) (any, error) {
	fs := flagSet("select-pane")
	dirs := map[arrange.Direction]*bool{
		arrange.Left:  fs.BoolP("left", "L", false, ""),
		arrange.Right: fs.BoolP("right", "R", false, ""),
		arrange.Up:    fs.BoolP("up", "U", false, ""),
		arrange.Down:  fs.BoolP("down", "D", false, ""),
	}
	last := fs.BoolP("last", "l", false, "")
	target := fs.StringP("target", "t", "", "")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if fs.NArg() > 0 {
		return nil, fmt.Errorf("unexpected argument %q", fs.Arg(0))
	}

	var out []*SelectPaneArgs
	for d, set := range dirs {
		if *set {
			out = append(out, &SelectPaneArgs{Target: TargetDirection, Direction: d})
		}
	}
	if *last {
		out = append(out, &SelectPaneArgs{Target: TargetLast})
	}
	if *target != "" {
		sp, err := parsePaneTarget(*target)
		if err != nil {
			return nil, err
		}
		out = append(out, sp)
	}
	switch len(out) {
	case 0:
		return nil, fmt.Errorf("no pane given")
	case 1:
		return out[0], nil
	}
	return nil, fmt.Errorf("only one of -L -R -U -D -l -t may be given")
}

// parsePaneTarget accepts ":.+", ":.-", "+", "-", "%N" and "N".
func parsePaneTarget(s string) (*SelectPaneArgs, error) {
	t := strings.TrimPrefix(strings.TrimPrefix(s, ":"), ".")
	switch t {
	case "+":
		return &SelectPaneArgs{Target: TargetNext}, nil
	case "-":
		return &SelectPaneArgs{Target: TargetPrevious}, nil
	case "!":
		return &SelectPaneArgs{Target: TargetLast}, nil
	}
	n, err := strconv.ParseUint(strings.TrimPrefix(t, "%"), 10, 32)
	if err != nil || n == 0 {
		return nil, fmt.Errorf("bad pane target %q", s)
	}
	return &SelectPaneArgs{Target: TargetPane, Pane: uint32(n)}, nil
}

func parseSelectWindow(_ *Table, args []string) (any, error) {
	fs := flagSet("select-window")
	target := fs.StringP("target", "t", "", "")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if *target == "" {
		return nil, fmt.Errorf("missing -t index")
	}
	n, err := strconv.Atoi(strings.TrimPrefix(*target, ":"))
	if err != nil {
		return nil, fmt.Errorf("bad window index %q", *target)
	}
	return &SelectWindowArgs{Index: n}, nil
}

func parseResizePane(_ *Table, args []string) (any, error) {
	fs := flagSet("resize-pane")
	dirs := map[arrange.Direction]*bool{
		arrange.Left:  fs.BoolP("left", "L", false, ""),
		arrange.Right: fs.BoolP("right", "R", false, ""),
		arrange.Up:    fs.BoolP("up", "U", false, ""),
		arrange.Down:  fs.BoolP("down", "D", false, ""),
	}
	zoom := fs.BoolP("zoom", "Z", false, "")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if *zoom {
		return &ResizePaneArgs{Zoom: true}, nil
	}

	ra := &ResizePaneArgs{Direction: arrange.Down, Amount: 1}
	n := 0
	for d, set := range dirs {
		if *set {
			ra.Direction = d
			n++
		}
	}
	if n > 1 {
		return nil, fmt.Errorf("only one direction may be given")
	}
	switch fs.NArg() {
	case 0:
	case 1:
		amount, err := strconv.Atoi(fs.Arg(0))
		if err != nil || amount <= 0 {
			return nil, fmt.Errorf("bad amount %q", fs.Arg(0))
		}
		ra.Amount = amount
	default:
		return nil, fmt.Errorf("unexpected argument %q", fs.Arg(1))
	}
	return ra, nil
}

func parseSelectLayout(_ *Table, args []string) (any, error) {
	switch len(args) {
	case 0:
		return &SelectLayoutArgs{Reapply: true}, nil
	case 1:
		l, err := arrange.ParseLayout(args[0])
		if err != nil {
			return nil, err
		}
		return &SelectLayoutArgs{Layout: l}, nil
	}
	return nil, fmt.Errorf("unexpected argument %q", args[1])
}

func parseRotateWindow(_ *Table, args []string) (any, error) {
	fs := flagSet("rotate-window")
	down := fs.BoolP("down", "D", false, "")
	fs.BoolP("up", "U", false, "")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	return &RotateWindowArgs{Reverse: *down}, nil
}

func parseSendSignal(_ *Table, args []string) (any, error) {
	if len(args) != 1 {
		return nil, fmt.Errorf("want exactly one signal")
	}
	sig, err := process.ParseSignal(args[0])
	if err != nil {
		return nil, err
	}
	return &SendSignalArgs{Signal: sig}, nil
}

// parseSendKeys turns each argument into key events. Arguments that are
// not key names, and every argument under -l, are sent as literal text.
func parseSendKeys(_ *Table, args []string) (any, error) {
	fs := flagSet("send-keys")
	literal := fs.BoolP("literal", "l", false, "")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if fs.NArg() == 0 {
		return nil, fmt.Errorf("no keys given")
	}
	var events []keys.Event
	for _, a := range fs.Args() {
		if !*literal {
			if ev, err := keys.Parse(a); err == nil {
				events = append(events, ev)
				continue
			}
		}
		for _, r := range a {
			events = append(events, keys.NewRune(r, keys.ModNone))
		}
	}
	return &SendKeysArgs{Keys: events}, nil
}

func parseSetOption(_ *Table, args []string) (any, error) {
	fs := flagSet("set-option")
	fs.BoolP("global", "g", false, "")
	unset := fs.BoolP("unset", "u", false, "")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if fs.NArg() == 0 {
		return nil, fmt.Errorf("missing option name")
	}
	so := &SetOptionArgs{Name: fs.Arg(0), Unset: *unset}
	if fs.NArg() > 1 {
		if *unset {
			return nil, fmt.Errorf("-u takes no value")
		}
		so.Value = joinArgs(fs.Args()[1:])
	}
	return so, nil
}

func parseShowOptions(_ *Table, args []string) (any, error) {
	fs := flagSet("show-options")
	fs.BoolP("global", "g", false, "")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if fs.NArg() > 1 {
		return nil, fmt.Errorf("unexpected argument %q", fs.Arg(1))
	}
	return &ShowOptionsArgs{Name: fs.Arg(0)}, nil
}

func parseBindKey(t *Table, args []string) (any, error) {
	fs := flagSet("bind-key")
	root := fs.BoolP("root", "n", false, "")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if fs.NArg() < 2 {
		return nil, fmt.Errorf("want a key and a command")
	}
	key, err := keys.Parse(fs.Arg(0))
	if err != nil {
		return nil, err
	}
	cmd, err := t.ParseArgs(fs.Args()[1:])
	if err != nil {
		return nil, err
	}
	return &BindKeyArgs{Key: key, Root: *root, Command: cmd}, nil
}

func parseUnbindKey(_ *Table, args []string) (any, error) {
	fs := flagSet("unbind-key")
	root := fs.BoolP("root", "n", false, "")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if fs.NArg() != 1 {
		return nil, fmt.Errorf("want exactly one key")
	}
	key, err := keys.Parse(fs.Arg(0))
	if err != nil {
		return nil, err
	}
	return &UnbindKeyArgs{Key: key, Root: *root}, nil
}

func parseDetachClient(_ *Table, args []string) (any, error) {
	fs := flagSet("detach-client")
	all := fs.BoolP("all", "a", false, "")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if fs.NArg() > 0 {
		return nil, fmt.Errorf("unexpected argument %q", fs.Arg(0))
	}
	return &DetachClientArgs{All: *all}, nil
}

func parseDisplayMessage(_ *Table, args []string) (any, error) {
	text := joinArgs(args)
	if text == "" {
		text = "#S:#I.#P #T"
	}
	return &DisplayMessageArgs{Text: text}, nil
}

func parseCommandPrompt(_ *Table, args []string) (any, error) {
	fs := flagSet("command-prompt")
	prompt := fs.StringP("prompt", "p", ":", "")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	return &CommandPromptArgs{Prompt: *prompt, Template: joinArgs(fs.Args())}, nil
}
