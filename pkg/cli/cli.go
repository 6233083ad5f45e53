// Package cli is a small flag-based subcommand dispatcher over
// ports.PollPort and ports.ManagementPort — intentionally not a CLI
// framework, matching the teacher's own choice not to carry one.
package cli

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"

	"github.com/jordigilh/rounds/pkg/ports"
)

// Run dispatches args[0] to the matching subcommand and returns a
// process exit code. Output is JSON by default; pass --format text on
// a subcommand for a human-readable rendering instead.
func Run(ctx context.Context, args []string, stdout, stderr io.Writer, poll ports.PollPort, management ports.ManagementPort) int {
	if len(args) == 0 {
		fmt.Fprintln(stderr, usage())
		return 2
	}

	cmd := args[0]
	rest := args[1:]

	var (
		result interface{}
		err    error
		format string
	)

	switch cmd {
	case "poll":
		fs := newFlagSet(cmd, &format)
		if err = fs.Parse(rest); err != nil {
			return exitOnParseError(stderr, err)
		}
		result, err = poll.ExecutePollCycle(ctx)

	case "investigate":
		fs := newFlagSet(cmd, &format)
		if err = fs.Parse(rest); err != nil {
			return exitOnParseError(stderr, err)
		}
		result, err = poll.ExecuteInvestigationCycle(ctx)

	case "mute":
		var id, reason string
		fs := newFlagSet(cmd, &format)
		fs.StringVar(&id, "signature-id", "", "signature ID to mute")
		fs.StringVar(&reason, "reason", "", "reason for muting")
		if err = fs.Parse(rest); err != nil {
			return exitOnParseError(stderr, err)
		}
		if id == "" {
			fmt.Fprintln(stderr, "mute: --signature-id is required")
			return 2
		}
		err = management.Mute(ctx, id, reason)
		result = statusResult(id, "muted")

	case "resolve":
		var id, fixDesc string
		fs := newFlagSet(cmd, &format)
		fs.StringVar(&id, "signature-id", "", "signature ID to resolve")
		fs.StringVar(&fixDesc, "fix", "", "description of the applied fix")
		if err = fs.Parse(rest); err != nil {
			return exitOnParseError(stderr, err)
		}
		if id == "" {
			fmt.Fprintln(stderr, "resolve: --signature-id is required")
			return 2
		}
		err = management.Resolve(ctx, id, fixDesc)
		result = statusResult(id, "resolved")

	case "retriage":
		var id string
		fs := newFlagSet(cmd, &format)
		fs.StringVar(&id, "signature-id", "", "signature ID to retriage")
		if err = fs.Parse(rest); err != nil {
			return exitOnParseError(stderr, err)
		}
		if id == "" {
			fmt.Fprintln(stderr, "retriage: --signature-id is required")
			return 2
		}
		err = management.Retriage(ctx, id)
		result = statusResult(id, "retriaged")

	case "reinvestigate":
		var id string
		fs := newFlagSet(cmd, &format)
		fs.StringVar(&id, "signature-id", "", "signature ID to reinvestigate")
		if err = fs.Parse(rest); err != nil {
			return exitOnParseError(stderr, err)
		}
		if id == "" {
			fmt.Fprintln(stderr, "reinvestigate: --signature-id is required")
			return 2
		}
		result, err = management.Reinvestigate(ctx, id)

	case "details":
		var id string
		fs := newFlagSet(cmd, &format)
		fs.StringVar(&id, "signature-id", "", "signature ID to inspect")
		if err = fs.Parse(rest); err != nil {
			return exitOnParseError(stderr, err)
		}
		if id == "" {
			fmt.Fprintln(stderr, "details: --signature-id is required")
			return 2
		}
		result, err = management.GetSignatureDetails(ctx, id)

	case "list":
		var status string
		fs := newFlagSet(cmd, &format)
		fs.StringVar(&status, "status", "", "filter by status (empty lists all)")
		if err = fs.Parse(rest); err != nil {
			return exitOnParseError(stderr, err)
		}
		result, err = management.ListSignatures(ctx, status)

	case "-h", "--help", "help":
		fmt.Fprintln(stdout, usage())
		return 0

	default:
		fmt.Fprintf(stderr, "unknown subcommand %q\n\n%s\n", cmd, usage())
		return 2
	}

	if err != nil {
		fmt.Fprintf(stderr, "%s: %v\n", cmd, err)
		return 1
	}

	if writeErr := render(stdout, format, result); writeErr != nil {
		fmt.Fprintf(stderr, "%s: failed to render result: %v\n", cmd, writeErr)
		return 1
	}
	return 0
}

func newFlagSet(name string, format *string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.StringVar(format, "format", "json", "output format: json or text")
	return fs
}

func exitOnParseError(stderr io.Writer, err error) int {
	fmt.Fprintln(stderr, err)
	return 2
}

func statusResult(signatureID, status string) map[string]string {
	return map[string]string{"signature_id": signatureID, "status": status}
}

func render(w io.Writer, format string, v interface{}) error {
	switch format {
	case "text":
		fmt.Fprintf(w, "%+v\n", v)
		return nil
	default:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
}

func usage() string {
	return `usage: rounds <command> [flags]

commands:
  poll                                run one poll cycle
  investigate                         drain the investigation queue
  mute            --signature-id --reason
  resolve         --signature-id --fix
  retriage        --signature-id
  reinvestigate   --signature-id
  details         --signature-id
  list            [--status]

every command accepts --format json|text (default json)`
}
