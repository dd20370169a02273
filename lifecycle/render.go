// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package lifecycle

import (
	"fmt"
	"strings"

	"github.com/dustin/go-humanize/english"

	"github.com/danielhkuo/pollmirror/models"
)

const timeLayout = "Mon Jan 2 15:04 MST"

// RenderMessage produces the mirrored message body for a poll. The
// output is deterministic for a given ledger state: the reconciliation
// engine re-renders and compares byte-for-byte, so nothing here may
// depend on the wall clock.
func RenderMessage(poll *models.Poll, votes []models.Vote) string {
	var b strings.Builder
	fmt.Fprintf(&b, "**%s**\n", poll.Question)

	switch poll.Status {
	case models.StatusScheduled:
		fmt.Fprintf(&b, "Voting opens %s\n", poll.OpenTime.UTC().Format(timeLayout))
	case models.StatusActive:
		fmt.Fprintf(&b, "Voting closes %s\n", poll.CloseTime.UTC().Format(timeLayout))
	case models.StatusClosed:
		b.WriteString("Voting has closed. Final results:\n")
	}

	counts := models.Tally(poll, votes)
	showCounts := poll.Status == models.StatusClosed || (poll.Status == models.StatusActive && !poll.Anonymous)

	for i, opt := range poll.Options {
		fmt.Fprintf(&b, "%s %s", poll.OptionMarkers[i], opt)
		if showCounts {
			fmt.Fprintf(&b, " — %s", english.Plural(counts[i], "vote", ""))
		}
		b.WriteString("\n")
	}

	if poll.Status == models.StatusActive && poll.Anonymous {
		b.WriteString("Results are hidden until the poll closes.\n")
	}
	if poll.Status == models.StatusActive {
		if poll.MultipleChoice {
			b.WriteString("Vote by reacting; you may pick several options.\n")
		} else {
			b.WriteString("Vote by reacting; your latest pick counts.\n")
		}
	}

	return b.String()
}

// RenderResults produces the standalone result-notification message
// posted when a poll closes.
func RenderResults(poll *models.Poll, votes []models.Vote) string {
	counts := models.Tally(poll, votes)

	best := 0
	for i, n := range counts {
		if n > counts[best] {
			best = i
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Poll closed: **%s**\n", poll.Question)
	for i, opt := range poll.Options {
		marker := " "
		if i == best && counts[best] > 0 {
			marker = "🏆"
		}
		fmt.Fprintf(&b, "%s %s: %s\n", marker, opt, english.Plural(counts[i], "vote", ""))
	}
	if counts[best] == 0 {
		b.WriteString("No votes were cast.\n")
	}
	return b.String()
}
