package config

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/dshills/muxstorm/internal/keys"
	"github.com/dshills/muxstorm/internal/logging"
	"github.com/dshills/muxstorm/internal/muxerr"
)

// StatusPosition places the status line.
type StatusPosition string

const (
	StatusTop    StatusPosition = "top"
	StatusBottom StatusPosition = "bottom"
)

// Options are the session options. The zero value is not useful; start
// from Default.
type Options struct {
	BaseIndex                 int
	Bell                      bool
	HistoryLimit              int
	Mouse                     bool
	Prefix                    keys.Event
	RemainOnExit              bool
	Status                    bool
	StatusPosition            StatusPosition
	StatusLeft                string
	StatusRight               string
	StatusLeftLength          int
	StatusRightLength         int
	StatusStyle               string
	WindowStatusFormat        string
	WindowStatusCurrentFormat string
	PaneBorderStyle           string
	PaneActiveBorderStyle     string
	DefaultTerminal           string
	DefaultShell              string
	DisplayTime               time.Duration
	ExitEmpty                 bool
	RenderInterval            time.Duration
	WorkerPoolSize            int
	LogLevel                  logging.Level
}

// option binds a name to a typed field of Options.
type option struct {
	name string
	def  string
	help string
	get  func(*Options) string
	set  func(*Options, string) error
}

// options is the option table in display order.
var options = []option{
	intOption("base-index", "0", 0, "number of the first window", func(o *Options) *int { return &o.BaseIndex }),
	boolOption("bell", "on", "pass pane bells through to clients", func(o *Options) *bool { return &o.Bell }),
	intOption("history-limit", "2000", 1, "scrollback lines kept per pane", func(o *Options) *int { return &o.HistoryLimit }),
	boolOption("mouse", "off", "select panes with the mouse", func(o *Options) *bool { return &o.Mouse }),
	{
		name: "prefix", def: "C-b", help: "prefix key",
		get: func(o *Options) string { return o.Prefix.String() },
		set: func(o *Options, v string) error {
			ev, err := keys.Parse(v)
			if err != nil {
				return err
			}
			o.Prefix = ev
			return nil
		},
	},
	boolOption("remain-on-exit", "off", "keep panes whose process exited", func(o *Options) *bool { return &o.RemainOnExit }),
	boolOption("status", "on", "show the status line", func(o *Options) *bool { return &o.Status }),
	{
		name: "status-position", def: "bottom", help: "top or bottom",
		get: func(o *Options) string { return string(o.StatusPosition) },
		set: func(o *Options, v string) error {
			switch p := StatusPosition(strings.ToLower(strings.TrimSpace(v))); p {
			case StatusTop, StatusBottom:
				o.StatusPosition = p
				return nil
			}
			return fmt.Errorf("must be top or bottom")
		},
	},
	stringOption("status-left", "[#S] ", "left status format", nil, func(o *Options) *string { return &o.StatusLeft }),
	stringOption("status-right", "%H:%M %d-%b-%y", "right status format", nil, func(o *Options) *string { return &o.StatusRight }),
	intOption("status-left-length", "20", 0, "maximum width of status-left", func(o *Options) *int { return &o.StatusLeftLength }),
	intOption("status-right-length", "40", 0, "maximum width of status-right", func(o *Options) *int { return &o.StatusRightLength }),
	stringOption("status-style", "bg=green,fg=black", "status line style", checkStyle, func(o *Options) *string { return &o.StatusStyle }),
	stringOption("window-status-format", "#I:#W#F", "window list entry format", nil, func(o *Options) *string { return &o.WindowStatusFormat }),
	stringOption("window-status-current-format", "#I:#W#F", "current window list entry format", nil, func(o *Options) *string { return &o.WindowStatusCurrentFormat }),
	stringOption("pane-border-style", "fg=default", "pane border style", checkStyle, func(o *Options) *string { return &o.PaneBorderStyle }),
	stringOption("pane-active-border-style", "fg=green", "active pane border style", checkStyle, func(o *Options) *string { return &o.PaneActiveBorderStyle }),
	stringOption("default-terminal", "screen-256color", "TERM for new panes", checkNonEmpty, func(o *Options) *string { return &o.DefaultTerminal }),
	stringOption("default-shell", defaultShell(), "command for new panes", checkNonEmpty, func(o *Options) *string { return &o.DefaultShell }),
	durationOption("display-time", "1500", time.Millisecond, "how long status messages show", func(o *Options) *time.Duration { return &o.DisplayTime }),
	boolOption("exit-empty", "on", "exit when the last pane closes", func(o *Options) *bool { return &o.ExitEmpty }),
	durationOption("render-interval", "16ms", time.Millisecond, "minimum time between redraws", func(o *Options) *time.Duration { return &o.RenderInterval }),
	intOption("worker-pool-size", "4", 1, "concurrent process reaps", func(o *Options) *int { return &o.WorkerPoolSize }),
	{
		name: "log-level", def: "info", help: "debug, info, warn or error",
		get: func(o *Options) string { return o.LogLevel.String() },
		set: func(o *Options, v string) error {
			switch strings.ToLower(strings.TrimSpace(v)) {
			case "debug", "info", "warn", "warning", "error":
				o.LogLevel = logging.ParseLevel(v)
				return nil
			}
			return fmt.Errorf("unknown level %q", v)
		},
	},
}

func defaultShell() string {
	if sh := os.Getenv("SHELL"); sh != "" {
		return sh
	}
	return "/bin/sh"
}

func lookup(name string) (*option, bool) {
	for i := range options {
		if options[i].name == name {
			return &options[i], true
		}
	}
	return nil, false
}

// Default returns the default options.
func Default() *Options {
	o := &Options{}
	for _, opt := range options {
		if err := opt.set(o, opt.def); err != nil {
			panic(fmt.Sprintf("bad default for %s: %v", opt.name, err))
		}
	}
	return o
}

// Clone returns a copy of o.
func (o *Options) Clone() *Options {
	c := *o
	return &c
}

// Set validates value and assigns it to the named option. An empty value
// toggles an on/off option; string values are kept verbatim. Failures are
// CommandErrors and leave o unchanged.
func (o *Options) Set(name, value string) error {
	opt, ok := lookup(name)
	if !ok {
		return muxerr.NewCommandError("set-option", "unknown option: %s", name)
	}
	if err := opt.set(o, value); err != nil {
		return muxerr.NewCommandError("set-option", "%s: %v", name, err)
	}
	return nil
}

// Get returns the value of the named option as set-option would take it.
func (o *Options) Get(name string) (string, error) {
	opt, ok := lookup(name)
	if !ok {
		return "", muxerr.NewCommandError("show-options", "unknown option: %s", name)
	}
	return opt.get(o), nil
}

// Names returns every option name in table order.
func Names() []string {
	names := make([]string, len(options))
	for i, opt := range options {
		names[i] = opt.name
	}
	return names
}

// Help returns the description of the named option.
func Help(name string) (string, bool) {
	opt, ok := lookup(name)
	if !ok {
		return "", false
	}
	return opt.help, true
}

// Lines returns "name value" for every option, quoting values that
// contain spaces.
func (o *Options) Lines() []string {
	lines := make([]string, len(options))
	for i, opt := range options {
		v := opt.get(o)
		if v == "" || strings.ContainsAny(v, " \t\"#") {
			v = strconv.Quote(v)
		}
		lines[i] = opt.name + " " + v
	}
	return lines
}

// Diff returns the names of options whose values differ between o and
// other, sorted.
func (o *Options) Diff(other *Options) []string {
	var names []string
	for _, opt := range options {
		if opt.get(o) != opt.get(other) {
			names = append(names, opt.name)
		}
	}
	sort.Strings(names)
	return names
}

func boolOption(name, def, help string, field func(*Options) *bool) option {
	return option{
		name: name, def: def, help: help,
		get: func(o *Options) string {
			if *field(o) {
				return "on"
			}
			return "off"
		},
		set: func(o *Options, v string) error {
			p := field(o)
			switch strings.ToLower(strings.TrimSpace(v)) {
			case "":
				*p = !*p
			case "on", "true", "yes", "1":
				*p = true
			case "off", "false", "no", "0":
				*p = false
			default:
				return fmt.Errorf("must be on or off")
			}
			return nil
		},
	}
}

func intOption(name, def string, min int, help string, field func(*Options) *int) option {
	return option{
		name: name, def: def, help: help,
		get: func(o *Options) string { return strconv.Itoa(*field(o)) },
		set: func(o *Options, v string) error {
			n, err := strconv.Atoi(strings.TrimSpace(v))
			if err != nil {
				return fmt.Errorf("not a number: %q", v)
			}
			if n < min {
				return fmt.Errorf("must be at least %d", min)
			}
			*field(o) = n
			return nil
		},
	}
}

// durationOption accepts a Go duration or a bare number of units.
func durationOption(name, def string, unit time.Duration, help string, field func(*Options) *time.Duration) option {
	return option{
		name: name, def: def, help: help,
		get: func(o *Options) string {
			d := *field(o)
			if unit == time.Millisecond && d%time.Millisecond == 0 {
				return strconv.FormatInt(d.Milliseconds(), 10)
			}
			return d.String()
		},
		set: func(o *Options, v string) error {
			v = strings.TrimSpace(v)
			var d time.Duration
			if n, err := strconv.Atoi(v); err == nil {
				d = time.Duration(n) * unit
			} else if d, err = time.ParseDuration(v); err != nil {
				return fmt.Errorf("not a duration: %q", v)
			}
			if d < 0 {
				return fmt.Errorf("must not be negative")
			}
			*field(o) = d
			return nil
		},
	}
}

func stringOption(name, def, help string, check func(string) error, field func(*Options) *string) option {
	return option{
		name: name, def: def, help: help,
		get: func(o *Options) string { return *field(o) },
		set: func(o *Options, v string) error {
			if check != nil {
				if err := check(v); err != nil {
					return err
				}
			}
			*field(o) = v
			return nil
		},
	}
}

func checkNonEmpty(v string) error {
	if v == "" {
		return fmt.Errorf("must not be empty")
	}
	return nil
}

func checkStyle(v string) error {
	_, err := ParseStyle(v)
	return err
}
