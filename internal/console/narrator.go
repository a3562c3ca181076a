package console

import (
	"fmt"
	"insights-exporter/internal/entity"
	"io"
	"os"
	"strings"
	"sync"
	"time"
)

const rule = "─────────────────────────────────────────────────────"

// Narrator prints the user-facing progress of a run. Structured logs go to zap; these lines are
// for the person watching the terminal.
type Narrator struct {
	mu  sync.Mutex
	out io.Writer
}

func NewNarrator() *Narrator {
	return NewWriterNarrator(os.Stdout)
}

func NewWriterNarrator(out io.Writer) *Narrator {
	return &Narrator{out: out}
}

func (n *Narrator) Banner() {
	n.print(`
╔═══════════════════════════════════════════════════════════╗
║                                                           ║
║            📊  Insights Exporter  📤                      ║
║                                                           ║
║  Dashboard exports delivered to your automation webhook  ║
║                                                           ║
╚═══════════════════════════════════════════════════════════╝
`)
}

func (n *Narrator) Step(status entity.StepStatus, message string) {
	n.print(fmt.Sprintf("%s %s\n", statusIcon(status), message))
}

func (n *Narrator) Info(message string) {
	n.print(fmt.Sprintf("\n🔎 %s\n", message))
}

func (n *Narrator) Summary(report *entity.RunReport) {
	var b strings.Builder

	b.WriteString("\n" + rule + "\n")

	if report.Status == entity.RunStatusDelivered {
		fmt.Fprintf(&b, "✅ Run %s delivered (HTTP %d)\n", report.ID, report.DeliveryStatus)
	} else {
		fmt.Fprintf(&b, "❌ Run %s failed: %s\n", report.ID, report.Error)
	}

	fmt.Fprintf(&b, "Steps: %d ok, %d skipped, %d failed\n",
		report.Count(entity.StepStatusOK),
		report.Count(entity.StepStatusSkipped),
		report.Count(entity.StepStatusFailed))

	if report.Payload != nil {
		fmt.Fprintf(&b, "Reconciliations: %s\n", report.Payload.Reconciliations)
	}

	if report.ArtifactPath != "" {
		fmt.Fprintf(&b, "Page dump: %s\n", report.ArtifactPath)
	}

	if report.FinishedAt != nil {
		fmt.Fprintf(&b, "Took %s\n", report.FinishedAt.Sub(report.StartedAt).Round(time.Millisecond))
	}

	b.WriteString(rule + "\n")

	n.print(b.String())
}

func (n *Narrator) print(s string) {
	n.mu.Lock()
	defer n.mu.Unlock()

	_, _ = io.WriteString(n.out, s)
}

func statusIcon(status entity.StepStatus) string {
	switch status {
	case entity.StepStatusOK:
		return "✅"
	case entity.StepStatusSkipped:
		return "⚠️ "
	default:
		return "❌"
	}
}
