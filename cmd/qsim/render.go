package main

import (
	"fmt"
	"math"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Lipgloss styles used by the text report.
var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#ff9e64"))

	stepStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#7aa2f7")).
			Padding(0, 1)

	densityStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#9ece6a")).
			Padding(0, 1)

	basisStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#7dcfff"))

	barStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#73daca"))

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#565f89"))
)

// barWidth is the width of a full probability bar in characters.
const barWidth = 20

// Report is the result of a run, shared by the text and JSON outputs.
type Report struct {
	Device    string        `json:"device"`
	Adapter   string        `json:"adapter,omitempty"`
	Qubits    int           `json:"qubits"`
	Steps     []StepReport  `json:"steps"`
	Densities []QubitReport `json:"densities,omitempty"`
	Readbacks uint64        `json:"readbacks"`
}

// StepReport holds the amplitudes after one operation.
type StepReport struct {
	Label      string       `json:"label"`
	Amplitudes [][2]float32 `json:"amplitudes"`
}

// QubitReport holds one qubit's reduced state.
type QubitReport struct {
	Qubit       int        `json:"qubit"`
	Probability float64    `json:"probability"`
	Bloch       [3]float64 `json:"bloch"`
}

func basisLabel(k, qubits int) string {
	if qubits == 0 {
		return "|>"
	}
	return fmt.Sprintf("|%0*b>", qubits, k)
}

// renderStep formats the non-zero amplitudes of one step.
func renderStep(s StepReport, qubits int, eps float64) string {
	var b strings.Builder
	b.WriteString(titleStyle.Render(s.Label))
	shown := 0
	for k, a := range s.Amplitudes {
		re, im := float64(a[0]), float64(a[1])
		p := re*re + im*im
		if p <= eps {
			continue
		}
		shown++
		n := int(math.Round(math.Min(p, 1) * barWidth))
		fmt.Fprintf(&b, "\n%s % .4f%+.4fi %s%s",
			basisStyle.Render(basisLabel(k, qubits)), re, im,
			barStyle.Render(strings.Repeat("█", n)),
			dimStyle.Render(fmt.Sprintf(" %.3f", p)))
	}
	if shown == 0 {
		b.WriteString("\n" + dimStyle.Render("(zero state)"))
	}
	return stepStyle.Render(b.String())
}

func renderDensities(qs []QubitReport) string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("qubits"))
	for _, q := range qs {
		fmt.Fprintf(&b, "\n%s P(1)=%.4f bloch=(% .3f, % .3f, % .3f)",
			basisStyle.Render(fmt.Sprintf("q%d", q.Qubit)), q.Probability, q.Bloch[0], q.Bloch[1], q.Bloch[2])
	}
	return densityStyle.Render(b.String())
}

// RenderText formats a report for the terminal. With all set every step is
// shown, otherwise only the final state.
func RenderText(r *Report, all bool) string {
	steps := r.Steps
	if !all && len(steps) > 0 {
		steps = steps[len(steps)-1:]
	}
	blocks := make([]string, 0, len(steps)+2)
	header := fmt.Sprintf("%d qubits on %s", r.Qubits, r.Device)
	if r.Adapter != "" {
		header += " (" + r.Adapter + ")"
	}
	blocks = append(blocks, titleStyle.Render(header))
	for _, s := range steps {
		blocks = append(blocks, renderStep(s, r.Qubits, 1e-9))
	}
	if len(r.Densities) > 0 {
		blocks = append(blocks, renderDensities(r.Densities))
	}
	blocks = append(blocks, dimStyle.Render(fmt.Sprintf("%d device readback(s)", r.Readbacks)))
	return lipgloss.JoinVertical(lipgloss.Left, blocks...)
}
