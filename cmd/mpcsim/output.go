package main

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/san-kum/mpcsim/internal/analysis"
	"github.com/san-kum/mpcsim/internal/automation"
	"github.com/san-kum/mpcsim/internal/experiment"
	"github.com/san-kum/mpcsim/internal/mpc"
	"github.com/san-kum/mpcsim/internal/optim"
	"github.com/san-kum/mpcsim/internal/sim"
)

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("86"))
	labelStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("242")).Width(18)
	valueStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("255"))
	okStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("82"))
	failStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("196"))
	boxStyle   = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("238")).Padding(0, 1)
)

// errFailedRun is returned after the failure has already been printed.
var errFailedRun = errors.New("run failed")

func field(label, value string) string {
	return labelStyle.Render(label) + valueStyle.Render(value)
}

func vec(v []float64) string {
	parts := make([]string, len(v))
	for i, x := range v {
		parts[i] = fmt.Sprintf("%.4f", x)
	}
	return "[" + strings.Join(parts, " ") + "]"
}

func metricLines(m map[string]float64) []string {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	lines := make([]string, len(names))
	for i, name := range names {
		lines[i] = field(name, fmt.Sprintf("%.6f", m[name]))
	}
	return lines
}

// describeFailure names the step and, for solver failures, the status.
func describeFailure(err error) string {
	var stepErr *sim.StepError
	var failure *mpc.OptimizationFailure
	switch {
	case errors.As(err, &stepErr) && errors.As(err, &failure):
		return fmt.Sprintf("step %d: solver status %s", stepErr.Step, failure.Status)
	case errors.As(err, &stepErr):
		return fmt.Sprintf("step %d: %v", stepErr.Step, stepErr.Err)
	default:
		return err.Error()
	}
}

func printTrajectory(tr *sim.Trajectory, err error, elapsed time.Duration) {
	lines := []string{}
	if err != nil {
		lines = append(lines, failStyle.Render("failed")+" at "+describeFailure(err))
	} else {
		lines = append(lines, okStyle.Render("completed")+fmt.Sprintf(" in %v", elapsed.Round(time.Microsecond)))
	}
	if tr != nil {
		lines = append(lines,
			field("steps", fmt.Sprintf("%d", tr.Steps())),
			field("final state", vec(tr.Final())),
		)
		if len(tr.Inputs) > 0 {
			lines = append(lines, field("last input", vec(tr.Inputs[len(tr.Inputs)-1])))
		}
		lines = append(lines, metricLines(tr.Metrics)...)
	}
	fmt.Println(boxStyle.Render(strings.Join(lines, "\n")))
}

func printSolution(sol *mpc.Solution) {
	lines := []string{
		field("status", okStyle.Render(sol.Status.String())),
		field("u*[0]", vec(sol.U0)),
		field("cost", fmt.Sprintf("%.6f", sol.Cost)),
		titleStyle.Render("predicted states"),
	}
	for k, x := range sol.States {
		lines = append(lines, field(fmt.Sprintf("x[%d]", k), vec(x)))
	}
	fmt.Println(boxStyle.Render(strings.Join(lines, "\n")))
}

type compareRow struct {
	name string
	tr   *sim.Trajectory
	err  error
}

func printComparison(rows []compareRow) {
	header := fmt.Sprintf("%-10s %-10s %14s %14s %14s", "controller", "status", "tracking_err", "effort", "violations")
	lines := []string{titleStyle.Render(header)}
	for _, r := range rows {
		status := okStyle.Render(fmt.Sprintf("%-10s", "ok"))
		if r.err != nil {
			status = failStyle.Render(fmt.Sprintf("%-10s", "failed"))
		}
		var m map[string]float64
		if r.tr != nil {
			m = r.tr.Metrics
		}
		lines = append(lines, fmt.Sprintf("%-10s %s %14.6f %14.6f %14.6f",
			r.name, status, m["tracking_error"], m["control_effort"], m["bound_violation"]))
		if r.err != nil {
			lines = append(lines, "  "+describeFailure(r.err))
		}
	}
	fmt.Println(boxStyle.Render(strings.Join(lines, "\n")))
}

func printTuning(res *optim.Result, metric string) {
	names := make([]string, 0, len(res.Params))
	for name := range res.Params {
		names = append(names, name)
	}
	sort.Strings(names)

	lines := []string{titleStyle.Render("best parameters")}
	for _, name := range names {
		lines = append(lines, field(name, fmt.Sprintf("%g", res.Params[name])))
	}
	lines = append(lines,
		field(metric, fmt.Sprintf("%.6f", res.Value)),
		field("evaluated", fmt.Sprintf("%d (%d failed)", res.Evaluated, res.Failed)),
	)
	fmt.Println(boxStyle.Render(strings.Join(lines, "\n")))
}

func printSweep(x0s []sim.State, results []*sim.Trajectory, err error, elapsed time.Duration) {
	lines := []string{titleStyle.Render(fmt.Sprintf("%d runs in %v", len(x0s), elapsed.Round(time.Millisecond)))}
	for i, x0 := range x0s {
		tr := results[i]
		switch {
		case tr == nil:
			lines = append(lines, vec(x0)+"  "+labelStyle.Render("not run"))
		default:
			lines = append(lines, vec(x0)+"  "+valueStyle.Render(fmt.Sprintf("%d steps, final %s", tr.Steps(), vec(tr.Final()))))
		}
	}
	if err != nil {
		lines = append(lines, failStyle.Render("failed")+" at "+describeFailure(err))
	}
	fmt.Println(boxStyle.Render(strings.Join(lines, "\n")))
}

func printProperties(model string, p experiment.Properties) {
	controllable := okStyle.Render("yes")
	if !p.Controllable() {
		controllable = failStyle.Render("no")
	}
	lines := []string{
		titleStyle.Render(model),
		field("states/inputs", fmt.Sprintf("%d/%d", p.States, p.Inputs)),
		field("open-loop radius", fmt.Sprintf("%.6f", p.OpenLoopRadius)),
		field("controllable", fmt.Sprintf("%s (rank %d)", controllable, p.ControllabilityRank)),
		field("LQR radius", fmt.Sprintf("%.6f", p.LQRRadius)),
	}
	fmt.Println(boxStyle.Render(strings.Join(lines, "\n")))
}

func printResponses(rs []analysis.Response, band float64) {
	header := fmt.Sprintf("%-6s %10s %12s %14s", "state", "settled", "overshoot", "final_error")
	lines := []string{titleStyle.Render(fmt.Sprintf("step response (band %g)", band)), header}
	for i, r := range rs {
		settled := "never"
		if r.SettlingStep >= 0 {
			settled = fmt.Sprintf("%d", r.SettlingStep)
		}
		lines = append(lines, fmt.Sprintf("x[%d]   %10s %11.2f%% %14.6f", i, settled, 100*r.Overshoot, r.FinalError))
	}
	fmt.Println(boxStyle.Render(strings.Join(lines, "\n")))
}

func printScenario(sc *automation.Scenario, outcomes []automation.Outcome) {
	lines := []string{titleStyle.Render(sc.Name)}
	if sc.Description != "" {
		lines = append(lines, labelStyle.UnsetWidth().Render(sc.Description))
	}
	for _, o := range outcomes {
		mark := okStyle.Render("pass")
		if !o.Passed {
			mark = failStyle.Render("FAIL")
		}
		line := mark + " " + o.Name
		if o.Reason != "" {
			line += "  " + labelStyle.UnsetWidth().Render(o.Reason)
		}
		lines = append(lines, line)
	}
	if skipped := len(sc.Steps) - len(outcomes); skipped > 0 {
		lines = append(lines, fmt.Sprintf("%d steps not run", skipped))
	}
	fmt.Println(boxStyle.Render(strings.Join(lines, "\n")))
}

func printMonteCarlo(results []automation.MonteCarloResult, elapsed time.Duration) {
	completed, failed := automation.MonteCarloStats(results)
	infeasible := 0
	worst := 0.0
	for _, r := range results {
		if r.Infeasible {
			infeasible++
		}
		if r.Completed && r.FinalError > worst {
			worst = r.FinalError
		}
	}
	lines := []string{
		titleStyle.Render(fmt.Sprintf("%d trials in %v", len(results), elapsed.Round(time.Millisecond))),
		field("completed", okStyle.Render(fmt.Sprintf("%d", completed))),
		field("failed", fmt.Sprintf("%d (%d infeasible)", failed, infeasible)),
		field("worst final err", fmt.Sprintf("%.6f", worst)),
	}
	for _, r := range results {
		if !r.Completed {
			lines = append(lines, failStyle.Render("failed")+fmt.Sprintf(" trial %d from %s at step %d", r.Trial, vec(r.X0), r.FailStep))
		}
	}
	fmt.Println(boxStyle.Render(strings.Join(lines, "\n")))
}
