// Command raizctl is the operational CLI: it prints or archives daily
// reports and lists the lots held in the configured store.
package main

import (
	"bytes"
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"raizcore/internal/blob"
	"raizcore/internal/core"
	"raizcore/internal/report"
)

var exitFunc = os.Exit

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, "raizctl:", err)
		exitFunc(1)
	}
}

func run(args []string, stdout io.Writer) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: raizctl <lots|report> [flags]")
	}
	switch args[0] {
	case "lots":
		return runLots(args[1:], stdout)
	case "report":
		return runReport(args[1:], stdout)
	default:
		return fmt.Errorf("unknown command %q (expected lots or report)", args[0])
	}
}

func openService() (*core.Service, error) {
	store, err := core.OpenPersistentStore(core.NewDefaultRulesEngine())
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	return core.NewService(store), nil
}

func closeService(s *core.Service) {
	type closer interface{ Close() error }
	if c, ok := s.Store().(closer); ok {
		_ = c.Close()
	}
}

func runLots(args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("raizctl lots", flag.ContinueOnError)
	state := fs.String("state", "active", "which lots to list: active, closed, or all")
	subsystem := fs.String("subsystem", "", "only lots currently in this sub-system")
	if err := fs.Parse(args); err != nil {
		return err
	}

	service, err := openService()
	if err != nil {
		return err
	}
	defer closeService(service)

	var lots []core.Lot
	switch *state {
	case "active":
		lots = service.ActiveLots()
	case "closed":
		lots = service.ClosedLots()
	case "all":
		lots = service.Lots()
	default:
		return fmt.Errorf("unknown state %q", *state)
	}
	if *subsystem != "" {
		filtered := lots[:0]
		for _, lot := range lots {
			if string(lot.Subsystem) == *subsystem {
				filtered = append(filtered, lot)
			}
		}
		lots = filtered
	}

	now := time.Now().UTC()
	w := tabwriter.NewWriter(stdout, 2, 4, 2, ' ', 0)
	fmt.Fprintln(w, "CODIGO\tVARIEDAD\tSISTEMA\tESTADO\tPLANTAS\tDIAS")
	for _, lot := range lots {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d/%d\t%d\n",
			lot.Code, lot.Variety, lot.Subsystem, lot.State,
			lot.CurrentCount, lot.InitialCount, lot.AgeDays(now))
	}
	return w.Flush()
}

func runReport(args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("raizctl report", flag.ContinueOnError)
	dateFlag := fs.String("date", "", "report date as YYYY-MM-DD (default today)")
	formatFlag := fs.String("format", "text", "output format: text, json, csv, or xlsx")
	operator := fs.String("operator", "sistema", "operator name stamped on the report")
	notes := fs.String("notes", "", "additional notes appended to the report")
	archive := fs.Bool("archive", false, "also store the rendering in the configured blob store")
	if err := fs.Parse(args); err != nil {
		return err
	}

	date := time.Now().UTC()
	if *dateFlag != "" {
		parsed, err := time.Parse("2006-01-02", *dateFlag)
		if err != nil {
			return fmt.Errorf("date %q is not in YYYY-MM-DD form", *dateFlag)
		}
		date = parsed
	}
	format, err := report.ParseFormat(*formatFlag)
	if err != nil {
		return err
	}

	service, err := openService()
	if err != nil {
		return err
	}
	defer closeService(service)

	rep := report.NewAssembler(service, nil).Assemble(date, *operator, *notes)
	payload, contentType, err := report.Render(rep, format)
	if err != nil {
		return err
	}
	if _, err := io.Copy(stdout, bytes.NewReader(payload)); err != nil {
		return err
	}

	if *archive {
		ctx := context.Background()
		blobs, err := blob.Open(ctx)
		if err != nil {
			return fmt.Errorf("open blob store: %w", err)
		}
		name := strings.TrimSuffix(rep.Filename(), ".txt") + "." + string(format)
		if format == report.FormatText {
			name = rep.Filename()
		}
		key := fmt.Sprintf("reports/%s/%s", rep.Date.Format("2006-01-02"), name)
		if _, err := blobs.Put(ctx, key, bytes.NewReader(payload), blob.PutOptions{ContentType: contentType}); err != nil {
			return fmt.Errorf("archive report: %w", err)
		}
		fmt.Fprintf(os.Stderr, "archived %s\n", key)
	}
	return nil
}
