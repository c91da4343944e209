package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/douit-app/douit/internal/core"
)

// printJSON writes v to stdout as indented JSON.
func printJSON(v interface{}) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		exitError("failed to encode output: %v", err)
	}
}

// failOn exits with a message matching the error kind.
func failOn(what string, err error) {
	switch core.KindOf(err) {
	case core.KindNotFound:
		exitError("%s: not found", what)
	default:
		exitError("%s: %v", what, err)
	}
}

// parseValues turns NAME=value pairs into a parameter map.
func parseValues(pairs []string) (map[string]string, error) {
	values := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		name, value, ok := strings.Cut(pair, "=")
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid parameter value %q: want NAME=value", pair)
		}
		values[name] = value
	}
	return values, nil
}

func formatTime(t time.Time) string {
	return t.Local().Format("2006-01-02 15:04:05")
}
