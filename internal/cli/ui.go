package cli

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"

	"github.com/convoy-dev/convoy/pkg/executor"
	"github.com/convoy-dev/convoy/pkg/planner"
)

// =============================================================================
// Color Palette
// =============================================================================

var (
	colorCyan   = lipgloss.Color("36")  // Teal - primary actions
	colorGreen  = lipgloss.Color("35")  // Green - success
	colorYellow = lipgloss.Color("220") // Amber - warnings
	colorRed    = lipgloss.Color("167") // Soft red - errors
	colorWhite  = lipgloss.Color("255") // Bright white - values
	colorGray   = lipgloss.Color("245") // Gray - secondary text
	colorDim    = lipgloss.Color("240") // Dim gray - muted text
)

// =============================================================================
// Styles
// =============================================================================

var (
	// StyleTitle for main headings.
	StyleTitle = lipgloss.NewStyle().Bold(true).Foreground(colorCyan)

	// StyleDim for secondary/muted text.
	StyleDim = lipgloss.NewStyle().Foreground(colorDim)

	// StyleValue for data values.
	StyleValue = lipgloss.NewStyle().Foreground(colorWhite)

	// StyleSuccess for success messages.
	StyleSuccess = lipgloss.NewStyle().Foreground(colorGreen)

	// StyleWarning for warning messages.
	StyleWarning = lipgloss.NewStyle().Foreground(colorYellow)
)

var (
	styleIconSuccess = lipgloss.NewStyle().Foreground(colorGreen)
	styleIconError   = lipgloss.NewStyle().Foreground(colorRed)
	styleIconWarning = lipgloss.NewStyle().Foreground(colorYellow)
	styleIconInfo    = lipgloss.NewStyle().Foreground(colorGray)

	styleRelease = lipgloss.NewStyle().Foreground(colorGreen)
	styleHold    = lipgloss.NewStyle().Foreground(colorGray)
)

// =============================================================================
// Icons
// =============================================================================

const (
	iconSuccess = "✓"
	iconError   = "✗"
	iconWarning = "!"
	iconInfo    = "›"
	iconArrow   = "→"
)

// =============================================================================
// Status Output
// =============================================================================

// printSuccess prints a success message.
func printSuccess(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	fmt.Println(styleIconSuccess.Render(iconSuccess) + " " + msg)
}

// printError prints an error message.
func printError(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	fmt.Println(styleIconError.Render(iconError) + " " + msg)
}

// printWarning prints a warning message.
func printWarning(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	fmt.Println(styleIconWarning.Render(iconWarning) + " " + StyleWarning.Render(msg))
}

// printInfo prints an info/status message.
func printInfo(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	fmt.Println(styleIconInfo.Render(iconInfo) + " " + msg)
}

// printDetail prints a detail line (indented).
func printDetail(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	fmt.Println("  " + StyleDim.Render(msg))
}

// printFile prints a file output line.
func printFile(path string) {
	fmt.Println("  " + StyleDim.Render(iconArrow) + " " + StyleValue.Render(path))
}

// printNewline prints an empty line.
func printNewline() {
	fmt.Println()
}

// =============================================================================
// Plan Display
// =============================================================================

// printPlan renders a publish plan, one step per line in publish order.
// Release steps show the version transition; held-back steps are dimmed.
func printPlan(plan *planner.Plan) {
	fmt.Println(StyleTitle.Render("Publish plan"))
	for i, step := range plan.Steps {
		pos := StyleDim.Render(fmt.Sprintf("%2d.", i+1))
		if step.NewRelease {
			transition := step.TargetVersion
			if step.PublishedVersion != "" {
				transition = step.PublishedVersion + " " + iconArrow + " " + step.TargetVersion
			}
			line := fmt.Sprintf("%s %s %s %s",
				pos,
				styleRelease.Render(step.ID),
				StyleValue.Render(transition),
				StyleDim.Render("("+step.Classification+")"))
			fmt.Println(line)
			continue
		}
		fmt.Println(fmt.Sprintf("%s %s %s %s",
			pos,
			styleHold.Render(step.ID),
			StyleDim.Render(step.TargetVersion),
			StyleDim.Render("("+step.Classification+")")))
	}

	releases := len(plan.Releases())
	printNewline()
	if releases == 0 {
		printInfo("Nothing to publish: every package is up to date")
	} else {
		printInfo("%d of %d packages need a release", releases, len(plan.Steps))
	}
}

// =============================================================================
// Report Display
// =============================================================================

// printReport renders the outcome of a publish run.
func printReport(report *executor.Report) {
	fmt.Println(StyleTitle.Render("Publish report"))
	printDetail("run %s", report.RunID)

	for i, res := range report.Results {
		pos := StyleDim.Render(fmt.Sprintf("%2d.", i+1))
		var line string
		switch res.Outcome {
		case executor.OutcomePublished:
			line = fmt.Sprintf("%s %s %s %s", pos,
				styleIconSuccess.Render(iconSuccess),
				StyleValue.Render(res.ID),
				StyleSuccess.Render(res.TargetVersion))
		case executor.OutcomeSkipped:
			line = fmt.Sprintf("%s %s %s", pos,
				styleHold.Render(res.ID),
				StyleDim.Render("up to date"))
		case executor.OutcomeFailed:
			line = fmt.Sprintf("%s %s %s %s", pos,
				styleIconError.Render(iconError),
				StyleValue.Render(res.ID),
				StyleDim.Render(res.Reason))
		case executor.OutcomeNotAttempted:
			line = fmt.Sprintf("%s %s %s", pos,
				styleHold.Render(res.ID),
				StyleDim.Render("not attempted"))
		}
		fmt.Println(line)
	}

	published, skipped, failed, notAttempted := report.Counts()
	printNewline()
	if report.Failed() {
		printError("%d published, %d failed, %d not attempted", published, failed, notAttempted)
	} else {
		printSuccess("%d published, %d already up to date", published, skipped)
	}
}
