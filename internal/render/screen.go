package render

import (
	"fmt"

	"github.com/gdamore/tcell/v2"
	"github.com/gdamore/tcell/v2/terminfo"
)

// FallbackTerm is used when a client's TERM has no terminfo entry.
const FallbackTerm = "xterm-256color"

func init() {
	// The server's own locale says nothing about its clients.
	tcell.SetEncodingFallback(tcell.EncodingFallbackUTF8)
}

// LookupTerminfo finds the entry for term, falling back to FallbackTerm.
func LookupTerminfo(term string) (*terminfo.Terminfo, error) {
	if term != "" {
		if ti, err := tcell.LookupTerminfo(term); err == nil {
			return ti, nil
		}
	}
	ti, err := tcell.LookupTerminfo(FallbackTerm)
	if err != nil {
		return nil, fmt.Errorf("terminfo %s: %w", FallbackTerm, err)
	}
	return ti, nil
}

// NewScreen creates and initializes a tcell screen drawing through tty
// for a terminal of type term. mouse enables mouse reporting on the
// client's terminal.
func NewScreen(tty *Tty, term string, mouse bool) (tcell.Screen, error) {
	ti, err := LookupTerminfo(term)
	if err != nil {
		return nil, err
	}
	s, err := tcell.NewTerminfoScreenFromTtyTerminfo(tty, ti)
	if err != nil {
		return nil, fmt.Errorf("create screen: %w", err)
	}
	if err := s.Init(); err != nil {
		return nil, fmt.Errorf("init screen: %w", err)
	}
	s.EnablePaste()
	SetMouse(s, mouse)
	return s, nil
}

// SetMouse switches mouse reporting on the client's terminal.
func SetMouse(s tcell.Screen, on bool) {
	if on {
		s.EnableMouse(tcell.MouseButtonEvents | tcell.MouseDragEvents)
	} else {
		s.DisableMouse()
	}
}
