//go:build linux

package main

import (
	"fmt"
	"io"
	"unicode/utf8"

	"golang.org/x/sys/unix"
)

func (e *lineEditor) isTerminal() bool {
	_, err := unix.IoctlGetTermios(int(e.in.Fd()), unix.TCGETS)
	return err == nil
}

// ReadLine prints prompt and returns the edited line. Ctrl-C and Ctrl-D on
// an empty line end input with io.EOF.
func (e *lineEditor) ReadLine(prompt string) (string, error) {
	if !e.isTerminal() {
		return e.readPlain()
	}

	fd := int(e.in.Fd())
	saved, err := unix.IoctlGetTermios(fd, unix.TCGETS)
	if err != nil {
		return "", err
	}
	raw := *saved
	raw.Lflag &^= unix.ICANON | unix.ECHO
	raw.Cc[unix.VMIN] = 1
	raw.Cc[unix.VTIME] = 0
	if err := unix.IoctlSetTermios(fd, unix.TCSETS, &raw); err != nil {
		return "", err
	}
	defer func() { _ = unix.IoctlSetTermios(fd, unix.TCSETS, saved) }()

	b := newEditBuffer(e.history)
	redraw := func() {
		fmt.Fprintf(e.out, "\r%s%s\x1b[K", prompt, b.String())
		if b.cursor < len(b.line) {
			fmt.Fprintf(e.out, "\r%s%s", prompt, string(b.line[:b.cursor]))
		}
	}
	fmt.Fprint(e.out, prompt)

	const (
		stateText = iota
		stateEsc
		stateCSI
	)
	state := stateText
	var seq []byte
	var partial []byte
	var buf [32]byte
	for {
		n, err := e.in.Read(buf[:])
		if err != nil {
			return "", err
		}
		for _, c := range buf[:n] {
			switch state {
			case stateEsc:
				state = stateText
				switch c {
				case '[':
					state = stateCSI
					seq = seq[:0]
				case 'b', 'B':
					b.wordLeft()
				case 'f', 'F':
					b.wordRight()
				case 127:
					b.deleteWordBack()
				}
				redraw()
				continue
			case stateCSI:
				seq = append(seq, c)
				if (c >= 'A' && c <= 'Z') || (c >= 'a' && c <= 'z') || c == '~' {
					b.csi(string(seq))
					state = stateText
					redraw()
				}
				continue
			}

			if c >= utf8.RuneSelf {
				partial = append(partial, c)
				if utf8.FullRune(partial) {
					r, _ := utf8.DecodeRune(partial)
					b.insert(r)
					partial = partial[:0]
					redraw()
				}
				continue
			}

			switch c {
			case 27:
				state = stateEsc
			case '\r', '\n':
				fmt.Fprint(e.out, "\r\n")
				line := b.String()
				e.remember(line)
				return line, nil
			case 3:
				fmt.Fprint(e.out, "^C\r\n")
				return "", io.EOF
			case 4:
				if len(b.line) == 0 {
					fmt.Fprint(e.out, "\r\n")
					return "", io.EOF
				}
				b.deleteForward()
				redraw()
			case 127, 8:
				b.backspace()
				redraw()
			case 1:
				b.home()
				redraw()
			case 5:
				b.end()
				redraw()
			case 21:
				b.set("")
				redraw()
			case 23:
				b.deleteWordBack()
				redraw()
			default:
				if c >= 32 {
					b.insert(rune(c))
					redraw()
				}
			}
		}
	}
}
