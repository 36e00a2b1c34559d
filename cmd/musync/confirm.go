package main

import (
	"errors"
	"fmt"
	"io"

	"github.com/eiannone/keyboard"
)

var errInterrupted = errors.New("interrupted")

// keyConfirmer asks on the terminal before each copy; only 'y' accepts.
type keyConfirmer struct {
	out io.Writer
}

func newKeyConfirmer(out io.Writer) *keyConfirmer {
	return &keyConfirmer{out: out}
}

func (k *keyConfirmer) Confirm(from, to string) (bool, error) {
	fmt.Fprintf(k.out, "copy %s -> %s? [y/N] ", from, to)

	char, key, err := keyboard.GetSingleKey()
	if err != nil {
		return false, fmt.Errorf("read key: %w", err)
	}
	if key == keyboard.KeyCtrlC || key == keyboard.KeyEsc {
		fmt.Fprintln(k.out)
		return false, errInterrupted
	}

	fmt.Fprintln(k.out, string(char))
	return char == 'y' || char == 'Y', nil
}
