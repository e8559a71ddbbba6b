package reflectagent

import (
	"fmt"
	"sort"
	"strings"

	"github.com/hindsightdb/hindsight/internal/model"
)

const fixedRules = "Respond only from retrieved context. Cite the facts you rely on. Obey every directive above."

// buildSystemPrompt composes the agent's system message: bank identity,
// active directives in descending priority, disposition rendered as
// qualitative descriptors, then the fixed behavioral rules.
func buildSystemPrompt(bank *model.Bank, directives []model.Directive) string {
	var b strings.Builder

	name := bank.Name
	if name == "" {
		name = bank.BankID
	}
	fmt.Fprintf(&b, "You are the memory reflection agent for %q.\n", name)
	if bank.Mission != "" {
		fmt.Fprintf(&b, "Mission: %s\n", bank.Mission)
	}

	if len(directives) > 0 {
		sorted := append([]model.Directive{}, directives...)
		sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Priority > sorted[j].Priority })
		b.WriteString("\nDirectives (highest priority first):\n")
		for _, d := range sorted {
			fmt.Fprintf(&b, "- [%d] %s: %s\n", d.Priority, d.Name, d.Content)
		}
	}

	if desc := renderDisposition(bank.Disposition); desc != "" {
		fmt.Fprintf(&b, "\nDisposition: %s\n", desc)
	}

	fmt.Fprintf(&b, "\n%s\n", fixedRules)
	return b.String()
}

// renderDisposition turns trait values into qualitative descriptors,
// scaled by the bank's bias strength: a trait near 0 or 1 only reads as
// "low"/"high" once strength pushes the phrasing that far.
func renderDisposition(d model.Disposition) string {
	if len(d.Traits) == 0 {
		return ""
	}
	names := make([]string, 0, len(d.Traits))
	for name := range d.Traits {
		names = append(names, name)
	}
	sort.Strings(names)

	var parts []string
	for _, name := range names {
		v := d.Traits[name]
		parts = append(parts, fmt.Sprintf("%s %s", descriptorFor(v, d.Strength), name))
	}
	return strings.Join(parts, ", ")
}

func descriptorFor(value, strength float64) string {
	threshold := 0.5 - 0.3*strength
	switch {
	case value >= 1-threshold:
		return "high"
	case value <= threshold:
		return "low"
	default:
		return "moderate"
	}
}
