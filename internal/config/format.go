package config

import (
	"strconv"
	"strings"
	"time"
)

// FormatContext supplies the values # sequences expand to.
type FormatContext struct {
	Session     string
	WindowIndex int
	WindowName  string
	WindowFlags string
	PaneIndex   int
	PaneTitle   string
	Host        string
	Now         time.Time
}

// strftime maps the supported % sequences to Go layouts.
var strftime = map[byte]string{
	'H': "15",
	'M': "04",
	'S': "05",
	'd': "02",
	'b': "Jan",
	'm': "01",
	'y': "06",
	'Y': "2006",
	'a': "Mon",
	'p': "PM",
}

// Expand replaces # and % sequences in format.
//
//	#S session name      #I window index    #W window name
//	#F window flags      #P pane index      #T pane title
//	#H host name         ## literal #
//	%H %M %S %d %b %m %y %Y %a %p as in strftime, %% literal %
//
// Unknown sequences are left as they are.
func Expand(format string, fc FormatContext) string {
	if !strings.ContainsAny(format, "#%") {
		return format
	}
	now := fc.Now
	if now.IsZero() {
		now = time.Now()
	}

	var b strings.Builder
	for i := 0; i < len(format); i++ {
		c := format[i]
		if (c != '#' && c != '%') || i+1 == len(format) {
			b.WriteByte(c)
			continue
		}
		next := format[i+1]
		i++
		if c == '%' {
			switch layout, ok := strftime[next]; {
			case next == '%':
				b.WriteByte('%')
			case ok:
				b.WriteString(now.Format(layout))
			default:
				b.WriteByte('%')
				b.WriteByte(next)
			}
			continue
		}
		switch next {
		case 'S':
			b.WriteString(fc.Session)
		case 'I':
			b.WriteString(strconv.Itoa(fc.WindowIndex))
		case 'W':
			b.WriteString(fc.WindowName)
		case 'F':
			b.WriteString(fc.WindowFlags)
		case 'P':
			b.WriteString(strconv.Itoa(fc.PaneIndex))
		case 'T':
			b.WriteString(fc.PaneTitle)
		case 'H':
			b.WriteString(fc.Host)
		case '#':
			b.WriteByte('#')
		default:
			b.WriteByte('#')
			b.WriteByte(next)
		}
	}
	return b.String()
}
