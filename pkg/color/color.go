// Package color assigns each agent a stable terminal color for CLI reports.
package color

import (
	"fmt"
	"hash/fnv"
	"io"

	"github.com/fatih/color"
)

var agentColors = []color.Attribute{
	color.FgHiRed,
	color.FgHiGreen,
	color.FgHiYellow,
	color.FgHiBlue,
	color.FgHiMagenta,
	color.FgHiCyan,
	color.FgRed,
	color.FgGreen,
	color.FgYellow,
	color.FgBlue,
	color.FgMagenta,
	color.FgCyan,
}

// AgentAttribute returns a consistent color for the given agent name.
func AgentAttribute(agent string) color.Attribute {
	h := fnv.New32a()
	h.Write([]byte(agent))
	return agentColors[h.Sum32()%uint32(len(agentColors))]
}

// AgentPrefix formats "[agent]" in the agent's color.
// fatih/color already honors NO_COLOR and non-terminal outputs.
func AgentPrefix(agent string) string {
	return color.New(AgentAttribute(agent)).Sprintf("[%s]", agent)
}

// Fprintln prints text with a colored agent prefix and newline.
func Fprintln(w io.Writer, agent, text string) {
	fmt.Fprintf(w, "%s %s\n", AgentPrefix(agent), text)
}

var (
	Success = color.New(color.FgGreen).SprintFunc()
	Failure = color.New(color.FgRed).SprintFunc()
	Notice  = color.New(color.FgYellow).SprintFunc()
)
