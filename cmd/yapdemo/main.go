// Command yapdemo is a small CLI wrapping the yap embedded key/value
// store: put, get, remove, enumerate, tag, stats, checkpoint, and
// flush against a single SQLite-backed database file.
package main

import (
	"os"
	"runtime/debug"

	"github.com/dotcommander/yap/internal/commands"
)

// version is set via ldflags (-X main.version=v1.0.0) or detected
// automatically from Go module info embedded by go install.
var version = "dev"

func main() {
	if version == "dev" {
		if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" && info.Main.Version != "(devel)" {
			version = info.Main.Version
		}
	}
	if err := commands.Execute(version); err != nil {
		os.Exit(1)
	}
}
