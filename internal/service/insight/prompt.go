package insight

import (
	"fmt"
	"strings"

	"interruptd/internal/ledger"
)

// PatternData is what the analysis prompt is built from.
type PatternData struct {
	Name        string
	Year        int
	ElapsedDays int
	Entries     []ledger.DeviationDay
}

// WeekData is what the weekly summary prompt is built from.
type WeekData struct {
	Start, End string
	Patterns   []PatternWeek
	Entries    []ledger.DeviationDay
}

// CoachData is one line of the coach prompt.
type CoachData struct {
	Name         string
	Deviations   int
	CurrentCycle int
	LongestCycle int
}

func weekdayList(counts ledger.WeekdayCounts) string {
	parts := make([]string, 0, len(counts))
	for i, n := range counts {
		parts = append(parts, fmt.Sprintf("%s: %d", ledger.WeekdayName(i), n))
	}
	return strings.Join(parts, ", ")
}

func monthList(counts ledger.MonthCounts) string {
	var parts []string
	for i, n := range counts {
		if n > 0 {
			parts = append(parts, fmt.Sprintf("%s: %d", ledger.MonthName(i), n))
		}
	}
	if len(parts) == 0 {
		return "none"
	}
	return strings.Join(parts, ", ")
}

func reasonList(rows []ledger.ReasonCount) string {
	if len(rows) == 0 {
		return "none"
	}
	parts := make([]string, 0, len(rows))
	for _, r := range rows {
		parts = append(parts, fmt.Sprintf("%q (%d)", r.Reason, r.Count))
	}
	return strings.Join(parts, ", ")
}

// AnalysisPrompt asks for a short observational breakdown of one pattern.
func AnalysisPrompt(d PatternData) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are analyzing behavioral patterns for a user tracking when they deviate from their default behavior: %q.\n\n", d.Name)
	b.WriteString("Data:\n")
	fmt.Fprintf(&b, "- Total days elapsed in %d: %d\n", d.Year, d.ElapsedDays)
	fmt.Fprintf(&b, "- Days deviated from the norm: %d\n", len(d.Entries))
	fmt.Fprintf(&b, "- Deviation days by day of week: %s\n", weekdayList(ledger.ByDayOfWeek(d.Entries)))
	fmt.Fprintf(&b, "- Deviation days by month: %s\n", monthList(ledger.ByMonth(d.Entries)))
	fmt.Fprintf(&b, "- Top reasons given: %s\n\n", reasonList(ledger.ByReason(d.Entries, 5)))
	b.WriteString("Provide a brief, scannable analysis in 4-6 bullet points. ")
	b.WriteString("Each bullet starts with a category emoji (📅 temporal, 🔄 patterns, 💭 reasons, 📊 statistics) ")
	b.WriteString("and is one neutral, observational sentence of at most 15 words. ")
	b.WriteString("Focus on what the pattern reveals, not on what the user should do.")
	return b.String()
}

// WeeklyPrompt asks for a few observations about one calendar week.
func WeeklyPrompt(d WeekData) string {
	lines := make([]string, 0, len(d.Patterns))
	for _, p := range d.Patterns {
		lines = append(lines, fmt.Sprintf("%s: %d times", p.Name, p.Count))
	}

	var b strings.Builder
	fmt.Fprintf(&b, "You are summarizing a user's weekly pattern data for %s to %s.\n\n", d.Start, d.End)
	b.WriteString("Data:\n")
	fmt.Fprintf(&b, "- Deviations tracked: %s\n", strings.Join(lines, ", "))
	fmt.Fprintf(&b, "- Total deviations this week: %d\n", len(d.Entries))
	fmt.Fprintf(&b, "- By day of week: %s\n", weekdayList(ledger.ByDayOfWeek(d.Entries)))
	fmt.Fprintf(&b, "- Top reasons: %s\n\n", reasonList(ledger.ByReason(d.Entries, 3)))
	b.WriteString("Write 3-4 bullet point observations about this week. ")
	b.WriteString("Each bullet starts with an emoji (📅 📊 💭 🔄 ⚡) and is one concise observational sentence of at most 12 words.")
	return b.String()
}

// CoachPrompt asks for a short reflection over all active patterns.
func CoachPrompt(rows []CoachData) string {
	lines := make([]string, 0, len(rows))
	for _, r := range rows {
		lines = append(lines, fmt.Sprintf("%s: %d deviations, current cycle %d, longest cycle %d",
			r.Name, r.Deviations, r.CurrentCycle, r.LongestCycle))
	}

	var b strings.Builder
	b.WriteString("You are a neutral, observational coach for an app that helps users notice when they interrupt their automatic default behaviors.\n\n")
	fmt.Fprintf(&b, "User's patterns: %s\n\n", strings.Join(lines, "; "))
	b.WriteString("Provide a brief reflection (2-3 sentences) grounded in the cue-behavior-reward loop. ")
	b.WriteString("Ask a curious question about which cues might be at play. ")
	b.WriteString("Use neutral language focused on awareness, not willpower or prescriptive advice.")
	return b.String()
}

func busiestWeekday(counts ledger.WeekdayCounts) int {
	best := 0
	for i, n := range counts {
		if n > counts[best] {
			best = i
		}
	}
	return best
}

// AnalysisFallback is served when no provider is available.
func AnalysisFallback(d PatternData) string {
	if len(d.Entries) == 0 {
		return fmt.Sprintf("📊 No deviations logged for %q in %d days tracked so far.", d.Name, d.ElapsedDays)
	}

	lines := []string{
		fmt.Sprintf("📊 %d deviation days out of %d days tracked.", len(d.Entries), d.ElapsedDays),
		fmt.Sprintf("📅 Most deviations fall on %s.", ledger.WeekdayName(busiestWeekday(ledger.ByDayOfWeek(d.Entries)))),
	}
	if top := ledger.ByReason(d.Entries, 1); len(top) == 1 && top[0].Reason != ledger.NoReasonLabel {
		lines = append(lines, fmt.Sprintf("💭 Most common reason: %s (%d).", top[0].Reason, top[0].Count))
	}
	return strings.Join(lines, "\n")
}

// WeeklyFallback is served when no provider is available.
func WeeklyFallback(d WeekData) string {
	if len(d.Entries) == 0 {
		return fmt.Sprintf("📊 No deviations logged between %s and %s.", d.Start, d.End)
	}
	lines := []string{
		fmt.Sprintf("📊 %d deviations logged between %s and %s.", len(d.Entries), d.Start, d.End),
		fmt.Sprintf("📅 The busiest day was %s.", ledger.WeekdayName(busiestWeekday(ledger.ByDayOfWeek(d.Entries)))),
	}
	return strings.Join(lines, "\n")
}

// CoachFallback is served when no provider is available.
func CoachFallback(rows []CoachData) string {
	total := 0
	for _, r := range rows {
		total += r.Deviations
	}
	return fmt.Sprintf("You have noticed %d deviations across %d patterns. Each one is a moment where a cue did not run on autopilot. What was present in those moments?",
		total, len(rows))
}
