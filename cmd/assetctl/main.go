// Command assetctl inspects and warms a local asset cache.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	asseterrors "github.com/jmgilman/go/assets/errors"
)

func main() {
	cfg, err := loadConfig()
	if err != nil {
		printError(os.Stderr, err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cmd := newRootCommand(cfg)
	if err := cmd.ExecuteContext(ctx); err != nil {
		printError(cmd.ErrOrStderr(), err)
		stop()
		os.Exit(1)
	}
}

// printError writes err as a single JSON object.
func printError(w io.Writer, err error) {
	data, jerr := json.Marshal(asseterrors.ToJSON(err))
	if jerr != nil {
		fmt.Fprintln(w, err)
		return
	}
	fmt.Fprintln(w, string(data))
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
