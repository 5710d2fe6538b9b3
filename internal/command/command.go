// Package command defines the fixed table of vagrant sub-commands boxhand
// knows how to dispatch, and composes final command lines from them.
package command

import "strings"

// Spec names one dispatchable action. Scoped actions run with a resolved
// project root as working directory; global ones run wherever the caller
// is. Interactive actions may prompt for a machine name before composing.
type Spec struct {
	Action      string
	Template    []string
	Scoped      bool
	Interactive bool
}

// table mirrors the vagrant sub-commands exposed to the user. Order is the
// order `boxhand help` lists them in.
var table = []Spec{
	{Action: "list-boxes", Template: []string{"box", "list"}},
	{Action: "update-box", Template: []string{"box", "update"}, Scoped: true},
	{Action: "up", Template: []string{"up"}, Scoped: true},
	{Action: "provision", Template: []string{"provision"}, Scoped: true},
	{Action: "destroy", Template: []string{"destroy"}, Scoped: true},
	{Action: "destroy-force", Template: []string{"destroy", "--force"}, Scoped: true},
	{Action: "reload", Template: []string{"reload"}, Scoped: true},
	{Action: "resume", Template: []string{"resume"}, Scoped: true},
	{Action: "ssh", Template: []string{"ssh"}, Scoped: true, Interactive: true},
	{Action: "ssh-command", Template: []string{"ssh", "-c"}, Scoped: true, Interactive: true},
	{Action: "status", Template: []string{"status"}, Scoped: true, Interactive: true},
	{Action: "global-status", Template: []string{"global-status"}},
	{Action: "suspend", Template: []string{"suspend"}, Scoped: true, Interactive: true},
	{Action: "halt", Template: []string{"halt"}, Scoped: true, Interactive: true},
	{Action: "sync", Template: []string{"rsync"}, Scoped: true},
	{Action: "init-project", Template: []string{"init"}},
}

// Lookup returns the Spec for an action name.
func Lookup(action string) (Spec, bool) {
	for _, spec := range table {
		if spec.Action == action {
			return spec, true
		}
	}
	return Spec{}, false
}

// All returns the action table in listing order.
func All() []Spec {
	out := make([]Spec, len(table))
	copy(out, table)
	return out
}

// Compose builds the final argv: tool binary, the spec's template, extra
// arguments carried verbatim (the remote command of ssh-command stays one
// token even when it contains spaces), whitespace-split user options, then
// the machine name. Empty parts contribute nothing: there is never a
// trailing empty token.
func Compose(tool string, spec Spec, extra []string, options, machine string) []string {
	argv := make([]string, 0, 1+len(spec.Template)+len(extra)+4)
	argv = append(argv, tool)
	argv = append(argv, spec.Template...)
	argv = append(argv, extra...)
	if options != "" {
		argv = append(argv, strings.Fields(options)...)
	}
	if machine != "" {
		argv = append(argv, machine)
	}
	return argv
}

// Line renders an argv as the single-space-joined string shown to the user
// and recorded in history.
func Line(argv []string) string {
	return strings.Join(argv, " ")
}
