package main

import (
	"fmt"
	"io"

	"github.com/dustin/go-humanize"
	"gopkg.in/yaml.v3"
)

// Report formats.
const (
	outputText = "text"
	outputYAML = "yaml"
)

func checkOutputFormat() error {
	switch outputFormat {
	case outputText, outputYAML:
		return nil
	default:
		return fmt.Errorf("unknown output format %q (want %s or %s)", outputFormat, outputText, outputYAML)
	}
}

// render writes v as YAML when requested, otherwise via text.
func render(w io.Writer, v any, text func(w io.Writer)) error {
	if outputFormat == outputYAML {
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	}
	text(w)
	return nil
}

func size(n int64) string {
	if n < 0 {
		n = 0
	}
	return humanize.IBytes(uint64(n))
}
