package command

import (
	"fmt"
	"sort"

	"github.com/dshills/muxstorm/internal/keys"
)

// KeyTable names a set of bindings.
type KeyTable string

const (
	// PrefixTable holds bindings that fire after the prefix key.
	PrefixTable KeyTable = "prefix"
	// RootTable holds bindings that fire without the prefix.
	RootTable KeyTable = "root"
)

// Binding is one key bound to a command.
type Binding struct {
	Table   KeyTable
	Key     keys.Event
	Command Command
}

func (b Binding) String() string {
	flag := ""
	if b.Table == RootTable {
		flag = "-n "
	}
	return fmt.Sprintf("bind-key %s%-10s %s", flag, b.Key.String(), b.Command.String())
}

// Bindings maps keys to commands in the prefix and root tables. Keys are
// stored by their canonical name, so any spelling keys.Parse accepts
// finds the same binding.
type Bindings struct {
	tables map[KeyTable]map[string]Binding
}

// NewBindings returns empty bindings.
func NewBindings() *Bindings {
	return &Bindings{tables: map[KeyTable]map[string]Binding{
		PrefixTable: {},
		RootTable:   {},
	}}
}

// Bind adds or replaces a binding.
func (b *Bindings) Bind(table KeyTable, key keys.Event, cmd Command) {
	key.Raw = nil
	b.tables[table][key.String()] = Binding{Table: table, Key: key, Command: cmd}
}

// Unbind removes a binding and reports whether it existed.
func (b *Bindings) Unbind(table KeyTable, key keys.Event) bool {
	name := key.String()
	if _, ok := b.tables[table][name]; !ok {
		return false
	}
	delete(b.tables[table], name)
	return true
}

// Lookup finds the command bound to key.
func (b *Bindings) Lookup(table KeyTable, key keys.Event) (Command, bool) {
	bd, ok := b.tables[table][key.String()]
	return bd.Command, ok
}

// List returns every binding, root table first, sorted by key name.
func (b *Bindings) List() []Binding {
	var out []Binding
	for _, table := range []KeyTable{RootTable, PrefixTable} {
		names := make([]string, 0, len(b.tables[table]))
		for name := range b.tables[table] {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			out = append(out, b.tables[table][name])
		}
	}
	return out
}

// defaultBindings are the prefix table bindings of a fresh server.
var defaultBindings = [][2]string{
	{`"`, "split-window"},
	{"%", "split-window -h"},
	{"c", "new-window"},
	{"n", "next-window"},
	{"p", "previous-window"},
	{"l", "last-window"},
	{"o", "select-pane -t :.+"},
	{";", "last-pane"},
	{"x", "kill-pane"},
	{"&", "kill-window"},
	{"d", "detach-client"},
	{"z", "resize-pane -Z"},
	{"Space", "next-layout"},
	{"C-o", "rotate-window"},
	{"M-o", "rotate-window -D"},
	{"Up", "select-pane -U"},
	{"Down", "select-pane -D"},
	{"Left", "select-pane -L"},
	{"Right", "select-pane -R"},
	{"C-Up", "resize-pane -U"},
	{"C-Down", "resize-pane -D"},
	{"C-Left", "resize-pane -L"},
	{"C-Right", "resize-pane -R"},
	{"M-Up", "resize-pane -U 5"},
	{"M-Down", "resize-pane -D 5"},
	{"M-Left", "resize-pane -L 5"},
	{"M-Right", "resize-pane -R 5"},
	{"M-1", "select-layout even-horizontal"},
	{"M-2", "select-layout even-vertical"},
	{"M-3", "select-layout main-horizontal"},
	{"M-4", "select-layout main-vertical"},
	{"M-5", "select-layout tiled"},
	{"t", "clock-mode"},
	{":", "command-prompt"},
	{",", `command-prompt -p "(rename-window) " "rename-window %%"`},
	{"C-z", "suspend-client"},
	{"?", "list-keys"},
	{"i", "display-message"},
	{"C-b", "send-prefix"},
}

// DefaultBindings returns the standard prefix bindings, plus 0 to 9 for
// selecting windows.
func DefaultBindings(t *Table) *Bindings {
	b := NewBindings()
	for _, kv := range defaultBindings {
		cmd, err := t.Parse(kv[1])
		if err != nil {
			panic(fmt.Sprintf("default binding %s: %v", kv[0], err))
		}
		b.Bind(PrefixTable, keys.MustParse(kv[0]), cmd)
	}
	for i := 0; i <= 9; i++ {
		cmd, _ := t.Parse(fmt.Sprintf("select-window -t :%d", i))
		b.Bind(PrefixTable, keys.NewRune(rune('0'+i), keys.ModNone), cmd)
	}
	return b
}
