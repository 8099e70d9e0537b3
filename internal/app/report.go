package app

import (
	"fmt"
	"strings"
	"time"

	"github.com/fatih/color"

	"github.com/vk/hiermerge/internal/builder"
)

type palette struct {
	hit, miss, fail, dim *color.Color
}

func (a *App) palette() palette {
	p := palette{
		hit:  color.New(color.FgGreen),
		miss: color.New(color.FgYellow),
		fail: color.New(color.FgRed, color.Bold),
		dim:  color.New(color.Faint),
	}
	if a.config.NoColor {
		for _, c := range []*color.Color{p.hit, p.miss, p.fail, p.dim} {
			c.DisableColor()
		}
	}
	return p
}

func (a *App) printReport(report *builder.Report, artifact string, elapsed time.Duration, runErr error) {
	p := a.palette()
	for _, e := range report.Entries() {
		label := e.Key.String()
		if e.Instance != "" {
			label = fmt.Sprintf("%s (%s)", label, e.Instance)
		}
		switch e.Action {
		case builder.Reused:
			fmt.Fprintf(a.outW, "  %s %s %s\n", p.hit.Sprint("reused"), label, p.dim.Sprint(e.Elapsed.Round(time.Millisecond)))
		case builder.Built:
			fmt.Fprintf(a.outW, "  %s  %s %s %s\n", p.miss.Sprint("built"), label, p.dim.Sprint(e.Elapsed.Round(time.Millisecond)), p.dim.Sprintf("[%s]", e.Reason))
		}
	}
	if runErr != nil {
		fmt.Fprintf(a.outW, "%s %v\n", p.fail.Sprint("failed:"), runErr)
		return
	}
	fmt.Fprintf(a.outW, "%s %s in %s (%d built, %d reused)\n", p.hit.Sprint("done:"), artifact,
		elapsed.Round(time.Millisecond), report.Count(builder.Built), report.Count(builder.Reused))
}

func (a *App) printPlan(entries []PlanEntry) {
	p := a.palette()
	for _, e := range entries {
		indent := strings.Repeat("  ", e.Depth)
		label := e.Key.String()
		if e.Instance != "" {
			label = fmt.Sprintf("%s (%s)", label, e.Instance)
		}
		if e.Outcome.Hit {
			fmt.Fprintf(a.outW, "%s%s %s\n", indent, p.hit.Sprint("hit "), label)
		} else {
			fmt.Fprintf(a.outW, "%s%s %s %s\n", indent, p.miss.Sprint("miss"), label, p.dim.Sprintf("[%s]", e.Outcome.Reason))
		}
	}
}
