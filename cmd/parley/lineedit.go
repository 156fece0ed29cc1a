package main

import (
	"bufio"
	"errors"
	"io"
	"os"
	"strings"
	"unicode"
)

// lineEditor reads user input. On a terminal it edits in raw mode with
// history; otherwise it reads plain lines.
type lineEditor struct {
	in      *os.File
	out     io.Writer
	plain   *bufio.Reader
	history []string
}

func newLineEditor(in *os.File, out io.Writer) *lineEditor {
	return &lineEditor{in: in, out: out, plain: bufio.NewReader(in)}
}

func (e *lineEditor) readPlain() (string, error) {
	s, err := e.plain.ReadString('\n')
	if errors.Is(err, io.EOF) && s == "" {
		return "", io.EOF
	}
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	return strings.TrimRight(s, "\r\n"), nil
}

func (e *lineEditor) remember(line string) {
	if strings.TrimSpace(line) == "" {
		return
	}
	if n := len(e.history); n > 0 && e.history[n-1] == line {
		return
	}
	e.history = append(e.history, line)
}

// editBuffer is the terminal-independent part of the editor: a rune
// buffer, a cursor and a position in the history.
type editBuffer struct {
	line    []rune
	cursor  int
	history []string
	histPos int
	draft   string
	browsed bool
}

func newEditBuffer(history []string) *editBuffer {
	return &editBuffer{history: history, histPos: len(history)}
}

func (b *editBuffer) String() string { return string(b.line) }

func (b *editBuffer) insert(r rune) {
	b.line = append(b.line, 0)
	copy(b.line[b.cursor+1:], b.line[b.cursor:])
	b.line[b.cursor] = r
	b.cursor++
}

func (b *editBuffer) backspace() {
	if b.cursor == 0 {
		return
	}
	b.line = append(b.line[:b.cursor-1], b.line[b.cursor:]...)
	b.cursor--
}

func (b *editBuffer) deleteForward() {
	if b.cursor >= len(b.line) {
		return
	}
	b.line = append(b.line[:b.cursor], b.line[b.cursor+1:]...)
}

func (b *editBuffer) left() {
	if b.cursor > 0 {
		b.cursor--
	}
}

func (b *editBuffer) right() {
	if b.cursor < len(b.line) {
		b.cursor++
	}
}

func (b *editBuffer) home() { b.cursor = 0 }
func (b *editBuffer) end()  { b.cursor = len(b.line) }

func (b *editBuffer) wordStart() int {
	i := b.cursor
	for i > 0 && unicode.IsSpace(b.line[i-1]) {
		i--
	}
	for i > 0 && !unicode.IsSpace(b.line[i-1]) {
		i--
	}
	return i
}

func (b *editBuffer) wordEnd() int {
	i := b.cursor
	for i < len(b.line) && unicode.IsSpace(b.line[i]) {
		i++
	}
	for i < len(b.line) && !unicode.IsSpace(b.line[i]) {
		i++
	}
	return i
}

func (b *editBuffer) wordLeft()  { b.cursor = b.wordStart() }
func (b *editBuffer) wordRight() { b.cursor = b.wordEnd() }

func (b *editBuffer) deleteWordBack() {
	start := b.wordStart()
	b.line = append(b.line[:start], b.line[b.cursor:]...)
	b.cursor = start
}

func (b *editBuffer) deleteWordForward() {
	end := b.wordEnd()
	b.line = append(b.line[:b.cursor], b.line[end:]...)
}

func (b *editBuffer) set(s string) {
	b.line = append(b.line[:0], []rune(s)...)
	b.cursor = len(b.line)
}

// prev recalls the previous history entry, saving the draft on first use.
func (b *editBuffer) prev() {
	if b.histPos == 0 {
		return
	}
	if !b.browsed {
		b.draft = b.String()
		b.browsed = true
	}
	b.histPos--
	b.set(b.history[b.histPos])
}

// next walks forward and restores the draft past the newest entry.
func (b *editBuffer) next() {
	if !b.browsed {
		return
	}
	if b.histPos < len(b.history)-1 {
		b.histPos++
		b.set(b.history[b.histPos])
		return
	}
	b.histPos = len(b.history)
	b.browsed = false
	b.set(b.draft)
}

// csi applies an ANSI control sequence body (the bytes after ESC '[').
func (b *editBuffer) csi(seq string) {
	switch seq {
	case "A":
		b.prev()
	case "B":
		b.next()
	case "C":
		b.right()
	case "D":
		b.left()
	case "H", "1~":
		b.home()
	case "F", "4~":
		b.end()
	case "3~":
		b.deleteForward()
	case "1;5D", "5D":
		b.wordLeft()
	case "1;5C", "5C":
		b.wordRight()
	case "3;5~":
		b.deleteWordForward()
	}
}
