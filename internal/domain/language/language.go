// Package language enumerates the response languages the persona speaks.
package language

import (
	"fmt"
	"strings"
)

// Code is a supported response language.
type Code string

const (
	// Russian is the default response language.
	Russian Code = "ru"
	// Kazakh is answered in Cyrillic script.
	Kazakh Code = "kk"
)

// Default is used when a client does not pick a language.
const Default = Russian

// Parse validates a language code.
func Parse(s string) (Code, error) {
	switch c := Code(strings.ToLower(strings.TrimSpace(s))); c {
	case Russian, Kazakh:
		return c, nil
	case "":
		return Default, nil
	default:
		return "", fmt.Errorf("unsupported language %q", s)
	}
}

// OrDefault returns c when supported, Default otherwise.
func (c Code) OrDefault() Code {
	if c == Russian || c == Kazakh {
		return c
	}
	return Default
}

// String implements fmt.Stringer.
func (c Code) String() string { return string(c) }
