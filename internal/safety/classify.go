// Package safety gates every shell command the agent wants to run.
// Commands are classified before execution: safe ones run immediately
// inside the workspace, destructive ones wait for explicit approval,
// and commands that would hit paid APIs are flagged so spending is
// always a human decision. Every decision lands in the audit log.
package safety

import (
	"regexp"
	"strings"

	"github.com/emberhearth/ember/internal/events"
)

// Classification is the gate's verdict on a command.
type Classification string

const (
	ClassSafe          Classification = "safe"
	ClassNeedsApproval Classification = "needs_approval"
	ClassPaidAPI       Classification = "paid_api"
)

// destructivePatterns match commands that can damage the system or
// lose data. Matching any of these requires approval.
var destructivePatterns = []*regexp.Regexp{
	regexp.MustCompile(`\brm\s+(-[a-z]*[rf][a-z]*\s+)+`),
	regexp.MustCompile(`\bdd\s+.*\bof=`),
	regexp.MustCompile(`\bmkfs\b`),
	regexp.MustCompile(`\bfdisk\b|\bparted\b`),
	regexp.MustCompile(`\b(shutdown|reboot|poweroff|halt)\b`),
	regexp.MustCompile(`\bkill(all)?\s+`),
	regexp.MustCompile(`\bchmod\s+(-[a-zA-Z]+\s+)*[0-7]*7[0-7]*\s`),
	regexp.MustCompile(`\bchown\s+-R\b`),
	regexp.MustCompile(`>\s*/dev/(sd|nvme|hd|mmcblk)`),
	regexp.MustCompile(`\bgit\s+push\s+.*(--force|-f)\b`),
	regexp.MustCompile(`(?i)\b(drop|truncate)\s+(table|database)\b`),
	regexp.MustCompile(`(?i)\bdelete\s+from\b`),
	regexp.MustCompile(`\bsudo\b|\bdoas\b`),
	regexp.MustCompile(`\buserdel\b|\busermod\b|\bpasswd\b`),
	regexp.MustCompile(`\bsystemctl\s+(stop|disable|mask)\b`),
	regexp.MustCompile(`\bcrontab\s+-r\b`),
	regexp.MustCompile(`:\(\)\s*\{.*\|.*&.*\}`),
	regexp.MustCompile(`\bmv\s+[^|;]*\s+/dev/null\b`),
	regexp.MustCompile(`\bcurl\b.*\|\s*(ba)?sh\b|\bwget\b.*\|\s*(ba)?sh\b`),
}

// networkCommands are the commands that can reach an arbitrary host.
var networkCommands = regexp.MustCompile(`\b(curl|wget|http|https)\b`)

// Gate classifies and executes commands.
type Gate struct {
	paidHosts []string
	executor  *Executor
	audit     *Audit
	bus       *events.Bus
}

// NewGate creates a gate. paidHosts lists hostnames whose APIs cost
// money; commands reaching them are never run without approval.
func NewGate(paidHosts []string, executor *Executor, audit *Audit) *Gate {
	return &Gate{paidHosts: paidHosts, executor: executor, audit: audit}
}

// Classify returns the gate's verdict for a command. Paid API
// detection wins over the destructive check so spending is surfaced
// as its own category.
func (g *Gate) Classify(command string) Classification {
	lower := strings.ToLower(command)

	if networkCommands.MatchString(lower) {
		for _, host := range g.paidHosts {
			if host != "" && strings.Contains(lower, strings.ToLower(host)) {
				return ClassPaidAPI
			}
		}
	}

	for _, p := range destructivePatterns {
		if p.MatchString(command) {
			return ClassNeedsApproval
		}
	}
	return ClassSafe
}
