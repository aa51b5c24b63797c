package recorder

import (
	"fmt"
	"strings"

	"github.com/JPaulGrayson/QuackQuack/internal/sdk/types"
)

const (
	errorContentTruncate = 80
	issueTruncate        = 60
	logLineTruncate      = 100
)

// synthesizeContext implements spec §4.H "Context synthesis": walk entries
// newest->oldest, adopt the first context snapshot encountered as latest,
// count errors, and build the summary fields.
func synthesizeContext(entries []types.JournalEntry) types.ContextSummary {
	if len(entries) == 0 {
		return types.ContextSummary{SummaryText: "No context available", ImmediateGoal: "Continue work"}
	}

	var latestSnapshot *types.ContextSnapshot
	var errors []types.JournalEntry
	for i := len(entries) - 1; i >= 0; i-- {
		e := entries[i]
		if latestSnapshot == nil && e.Context != nil {
			latestSnapshot = e.Context
		}
		if e.Type == types.JournalError {
			errors = append(errors, e)
		}
	}

	summary := types.ContextSummary{
		SummaryText:   "No context available",
		ImmediateGoal: "Continue work",
	}

	if latestSnapshot != nil {
		if latestSnapshot.CurrentTask != "" {
			summary.SummaryText = "Working on: " + latestSnapshot.CurrentTask
		}
		if latestSnapshot.BlockingIssue != "" {
			summary.ImmediateGoal = latestSnapshot.BlockingIssue
		}
		summary.KeyDecisions = latestSnapshot.RecentDecisions
	}

	if len(errors) > 0 {
		latest := errors[0]
		summary.ImmediateGoal = "Fix error: " + truncate(latest.Content, errorContentTruncate)
	}

	head := errors
	if len(head) > 2 {
		head = head[:2]
	}
	for _, e := range head {
		summary.UnresolvedIssues = append(summary.UnresolvedIssues, truncate(e.Content, issueTruncate))
	}

	return summary
}

// resumptionPrompt renders the deterministic textual template spec §4.H
// describes: fixed protocol instructions, the summary fields, an optional
// UNRESOLVED ISSUES list, and a RECENT LOGS block of up to the last 10
// entries in chronological order.
func resumptionPrompt(summary types.ContextSummary, recent []types.JournalEntry) string {
	var b strings.Builder

	b.WriteString("You are resuming a prior session. Read the context below, then acknowledge ")
	b.WriteString("that you have read it and state your next concrete step before taking any action.\n\n")

	b.WriteString(summary.SummaryText)
	b.WriteString("\n")
	fmt.Fprintf(&b, "Immediate goal: %s\n", summary.ImmediateGoal)

	if len(summary.UnresolvedIssues) > 0 {
		b.WriteString("\nUNRESOLVED ISSUES\n")
		for _, issue := range summary.UnresolvedIssues {
			b.WriteString("- " + issue + "\n")
		}
	}

	if len(recent) > 0 {
		b.WriteString("\nRECENT LOGS\n")
		for _, e := range recent {
			fmt.Fprintf(&b, "- [%s] %s: %s\n", e.Timestamp.Format("15:04"), e.Type, truncate(e.Content, logLineTruncate))
		}
	}

	b.WriteString("\nAcknowledge this context and state your next step.\n")
	return b.String()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
