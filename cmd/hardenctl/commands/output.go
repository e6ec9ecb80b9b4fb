package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/hardenctl/hardenctl/pkg/engine"
)

// printReport renders a run report as a table, or as JSON with --json.
func printReport(w io.Writer, catalogName string, report *engine.RunReport) {
	if jsonOutput {
		printJSON(w, report)
		return
	}

	run := report.Run
	if catalogName != "" {
		fmt.Fprintf(w, "catalog %s, run %s (%s)\n\n", catalogName, run.ID, run.Flags.Mode)
	} else {
		fmt.Fprintf(w, "run %s (%s)\n\n", run.ID, run.Flags.Mode)
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "UNIT\tOBSERVED\tACTION\tDETAIL")
	for i := range run.Outcomes {
		o := &run.Outcomes[i]
		detail := o.Reason
		if o.Error != nil {
			detail = o.Error.Message
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", o.UnitID, o.Observed.Code, actionLabel(o), detail)
	}
	tw.Flush()

	s := run.Summary()
	fmt.Fprintf(w, "\n%d units: %d applied, %d skipped, %d conflicts, %d failed",
		s.Total, s.Applied, s.Skipped, s.Conflicts, s.Failed)
	if s.Fatal > 0 {
		fmt.Fprintf(w, ", %d fatal", s.Fatal)
	}
	fmt.Fprintf(w, " (status: %s)\n", run.Status)

	if report.Delta != nil {
		d := report.Delta
		fmt.Fprintf(w, "baseline delta: disk %+d KiB, packages %+d, active services %+d\n",
			d.FreeDiskDeltaKB, d.PackageDelta, d.ServiceDelta)
	}
}

func actionLabel(o *engine.Outcome) string {
	if o.Action == engine.ActionApply && !o.Applied {
		return "apply (failed)"
	}
	return string(o.Action)
}

func printJSON(w io.Writer, v interface{}) {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fmt.Fprintf(w, "failed to encode output: %v\n", err)
	}
}
