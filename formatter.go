package gemini

import (
	"fmt"
	"os"
	"slices"
	"time"

	"github.com/acarl005/stripansi"
	"github.com/ethereum/go-ethereum/log"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/krzysztoffpl/gemini/types"
)

// ResultFormatter is responsible for formatting and displaying run results.
type ResultFormatter interface {
	FormatResults(result *RunResult) error
}

// ConsoleResultFormatter implements the ResultFormatter interface.
type ConsoleResultFormatter struct {
	logger log.Logger
}

// NewConsoleResultFormatter creates a new ConsoleResultFormatter.
func NewConsoleResultFormatter(logger log.Logger) *ConsoleResultFormatter {
	return &ConsoleResultFormatter{
		logger: logger,
	}
}

// FormatResults formats and displays the run results.
func (f *ConsoleResultFormatter) FormatResults(result *RunResult) error {
	f.logger.Info("Printing results...")
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetTitle(fmt.Sprintf("Visual Regression Results (%s)", formatDuration(result.Duration)))

	t.AppendHeader(table.Row{
		"Browser", "Passed", "Failed", "Updated", "Errored", "Skipped", "Retries", "Status",
	})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Name: "Browser", WidthMax: 40, WidthMaxEnforcer: text.WrapSoft},
		{Name: "Passed", Align: text.AlignRight},
		{Name: "Failed", Align: text.AlignRight},
		{Name: "Updated", Align: text.AlignRight},
		{Name: "Errored", Align: text.AlignRight},
		{Name: "Skipped", Align: text.AlignRight},
		{Name: "Retries", Align: text.AlignRight},
	})

	browsers := make([]string, 0, len(result.Summary.PerBrowser))
	for id := range result.Summary.PerBrowser {
		browsers = append(browsers, id)
	}
	slices.Sort(browsers)

	for _, id := range browsers {
		b := result.Summary.PerBrowser[id]
		t.AppendRow(table.Row{
			id,
			b.Passed,
			b.Failed,
			b.Updated,
			b.Errored,
			b.Skipped,
			b.Retries,
			getResultString(browserStatus(b)),
		})
	}
	t.AppendSeparator()

	// Update the table style setting based on result status
	if result.Status() == types.TestStatusPass {
		t.SetStyle(table.StyleColoredBlackOnGreenWhite)
	} else if result.Status() == types.TestStatusSkip {
		t.SetStyle(table.StyleColoredBlackOnYellowWhite)
	} else {
		t.SetStyle(table.StyleColoredBlackOnRedWhite)
	}

	t.AppendFooter(table.Row{
		"TOTAL",
		result.Summary.Passed,
		result.Summary.Failed,
		result.Summary.Updated,
		result.Summary.Errored,
		result.Summary.Skipped,
		result.Summary.Retries,
		getResultString(result.Status()),
	})

	t.Render()

	if len(result.Failures) > 0 {
		ft := table.NewWriter()
		ft.SetOutputMirror(os.Stdout)
		ft.SetTitle("Failures")
		ft.AppendHeader(table.Row{"Suite", "State", "Browser", "Detail"})
		ft.SetColumnConfigs([]table.ColumnConfig{
			{Name: "Suite", WidthMax: 30, WidthMaxEnforcer: text.WrapSoft},
			{Name: "State", WidthMax: 30, WidthMaxEnforcer: text.WrapSoft},
			{Name: "Detail", WidthMax: 80, WidthMaxEnforcer: text.WrapSoft},
		})
		for _, failure := range result.Failures {
			detail := failure.Message
			if detail == "" {
				detail = "screenshot differs from reference"
			}
			// Browser errors may carry terminal escape codes
			ft.AppendRow(table.Row{
				failure.Suite,
				failure.State,
				failure.BrowserID,
				stripansi.Strip(detail),
			})
		}
		ft.SetStyle(table.StyleColoredBlackOnRedWhite)
		ft.Render()
	}

	fmt.Println(result.String())

	return nil
}

// browserStatus collapses a per-browser summary into a single status.
func browserStatus(b types.BrowserSummary) types.TestStatus {
	switch {
	case b.Failed > 0 || b.Errored > 0:
		return types.TestStatusFail
	case b.Passed == 0 && b.Updated == 0 && b.Skipped > 0:
		return types.TestStatusSkip
	default:
		return types.TestStatusPass
	}
}

// Helper function to format duration to seconds with 1 decimal place
func formatDuration(d time.Duration) string {
	return fmt.Sprintf("%.1fs", d.Seconds())
}
