package commands

import (
	"fmt"
	"io"

	"github.com/fatih/color"
)

var (
	green  = color.New(color.FgGreen)
	yellow = color.New(color.FgYellow, color.Bold)
)

func success(w io.Writer, format string, args ...any) {
	green.Fprintf(w, "✔ "+format+"\n", args...)
}

func info(w io.Writer, format string, args ...any) {
	fmt.Fprintf(w, "  → "+format+"\n", args...)
}

func warning(w io.Writer, format string, args ...any) {
	yellow.Fprintf(w, "  ⚠ "+format+"\n", args...)
}
