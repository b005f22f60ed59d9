package command

import "strings"

// Help returns a one-line-per-command summary derived from registration
// metadata.
func (r *Router) Help() string {
	var names []string
	for _, cmd := range r.Commands() {
		names = append(names, cmd.name)
	}
	return "Available commands: " + strings.Join(names, ", ")
}

// DetailedHelp returns usage and description for every command, one entry
// per line, admin commands marked.
func (r *Router) DetailedHelp() string {
	var b strings.Builder
	for _, cmd := range r.Commands() {
		b.WriteString(cmd.Usage())
		if cmd.adminOnly {
			b.WriteString(" (admin)")
		}
		if cmd.description != "" {
			b.WriteString(": ")
			b.WriteString(cmd.description)
		}
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}
