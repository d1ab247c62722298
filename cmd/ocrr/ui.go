package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/fatih/color"
)

func success(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	if noColor {
		fmt.Printf("✓ %s\n", msg)
		return
	}
	color.New(color.FgGreen).Printf("✓ %s\n", msg)
}

func warning(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	if noColor {
		fmt.Printf("! %s\n", msg)
		return
	}
	color.New(color.FgYellow).Printf("! %s\n", msg)
}

func failure(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	if noColor {
		fmt.Fprintf(os.Stderr, "error: %s\n", msg)
		return
	}
	color.New(color.FgRed).Fprintf(os.Stderr, "error: %s\n", msg)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
