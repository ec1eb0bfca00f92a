package cli

import (
	"fmt"
	"io"
)

// printf prints a message with a newline at the end.
func printf(w io.Writer, format string, a ...interface{}) {
	fmt.Fprintf(w, format+"\n", a...) //nolint:errcheck
}

// infof prints a message prefixed with "Info: ".
func infof(w io.Writer, format string, a ...interface{}) {
	fmt.Fprintf(w, "Info: "+format+"\n", a...) //nolint:errcheck
}

// warningf prints a message prefixed with "Warning: ".
func warningf(w io.Writer, format string, a ...interface{}) {
	fmt.Fprintf(w, "Warning: "+format+"\n", a...) //nolint:errcheck
}
