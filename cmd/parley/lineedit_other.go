//go:build !linux

package main

import "fmt"

// ReadLine prints prompt and reads a plain line; raw-mode editing is only
// implemented on linux.
func (e *lineEditor) ReadLine(prompt string) (string, error) {
	fmt.Fprint(e.out, prompt)
	line, err := e.readPlain()
	if err == nil {
		e.remember(line)
	}
	return line, err
}
