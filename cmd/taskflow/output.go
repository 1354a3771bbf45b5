package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/kbukum/taskflow/dag"
	"github.com/kbukum/taskflow/runstore"
)

func writeJSON(w io.Writer, v any) error {
	body, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode output: %w", err)
	}
	_, err = fmt.Fprintln(w, string(body))
	return err
}

// eventLine renders a node or stage event, or "" for other kinds.
func eventLine(ev dag.Event) string {
	switch ev.Kind {
	case dag.EventNodeStarted:
		return fmt.Sprintf("  started   %s (%s)", ev.NodeID, ev.NodeKind)
	case dag.EventNodeCompleted:
		line := fmt.Sprintf("  %-9s %s in %s", ev.Status, ev.NodeID, time.Duration(ev.DurationMs)*time.Millisecond)
		if ev.Error != "" {
			line += ": " + ev.Error
		}
		return line
	case dag.EventStage:
		return fmt.Sprintf("run %s %s", ev.RunID, ev.Stage)
	}
	return ""
}

// progressPrinter writes one line per node or stage event.
func progressPrinter(w io.Writer) func(dag.Event) {
	return func(ev dag.Event) {
		if line := eventLine(ev); line != "" {
			fmt.Fprintln(w, line)
		}
	}
}

// renderSummary prints a run summary as a node table followed by the
// exit node outputs.
func renderSummary(w io.Writer, sum *dag.Summary, exits []string) {
	fmt.Fprintf(w, "Run %s: %s (%s, %s)\n\n", sum.RunID, sum.Result(), sum.Stage, sum.Duration.Round(time.Millisecond))
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NODE\tSTATUS\tDURATION\tERROR")
	for _, r := range sum.Nodes {
		status := string(r.Status)
		if r.Copied {
			status += " (copied)"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", r.ID, status, r.Duration().Round(time.Millisecond), r.Error)
	}
	_ = tw.Flush()
	if sum.Error != "" {
		fmt.Fprintf(w, "\nError: %s\n", sum.Error)
	}
	for _, id := range exits {
		out, ok := sum.Outputs[id]
		if !ok {
			continue
		}
		body, err := json.MarshalIndent(out, "", "  ")
		if err != nil {
			continue
		}
		fmt.Fprintf(w, "\nOutput of %s:\n%s\n", id, body)
	}
}

func renderRunList(w io.Writer, infos []runstore.Info) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tPARENT\tSTAGE\tRESULT\tNODES\tCREATED")
	for _, info := range infos {
		parent := info.ParentID
		if parent == "" {
			parent = "-"
		}
		created := "-"
		if !info.CreatedAt.IsZero() {
			created = info.CreatedAt.Local().Format(time.DateTime)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%s\n", info.ID, parent, info.Stage, info.Result, info.Nodes, created)
	}
	_ = tw.Flush()
}

func joinOrDash(ids []string) string {
	if len(ids) == 0 {
		return "-"
	}
	return strings.Join(ids, ", ")
}
