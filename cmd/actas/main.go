package main

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"actas-cli/internal/cli"
	"actas-cli/internal/model"
)

// rewriteDirectRefArgs turns `actas <ref>` into `actas show <ref>`. Cobra
// treats the first positional token as a subcommand, so argv is rewritten
// before parsing; persistent flags may come first.
func rewriteDirectRefArgs(argv []string) []string {
	if len(argv) < 2 {
		return argv
	}
	valueFlags := map[string]bool{
		"--dir":       true,
		"--scope":     true,
		"--remote":    true,
		"--format":    true,
		"--log-level": true,
	}

	insertShow := func(at int) []string {
		out := make([]string, 0, len(argv)+1)
		out = append(out, argv[:at]...)
		out = append(out, "show")
		return append(out, argv[at:]...)
	}

	for i := 1; i < len(argv); i++ {
		a := strings.TrimSpace(argv[i])
		switch {
		case a == "":
			continue
		case a == "--":
			if i+1 < len(argv) && model.IsRef(argv[i+1]) {
				return insertShow(i + 1)
			}
			return argv
		case strings.HasPrefix(a, "-"):
			if !strings.Contains(a, "=") && valueFlags[a] {
				i++
			}
			continue
		case model.IsRef(a):
			return insertShow(i)
		default:
			return argv
		}
	}
	return argv
}

func main() {
	os.Args = rewriteDirectRefArgs(os.Args)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	cmd := cli.NewRootCmd()
	err := cmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}
