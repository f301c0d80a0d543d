package setup

import (
	"strings"

	"charm.land/bubbles/v2/textinput"
	tea "charm.land/bubbletea/v2"

	"github.com/agent462/fleetmux/internal/config"
)

const (
	formFieldName = iota
	formFieldTargets
	formFieldStrategy
	formFieldColor
	formFieldCount
)

// hostForm is the add/edit host modal: a stack of text inputs.
type hostForm struct {
	inputs  [formFieldCount]textinput.Model
	focused int
	// editIndex is -1 when adding a new host.
	editIndex int
}

func newHostForm(width int, editIndex int, host config.Host) hostForm {
	f := hostForm{editIndex: editIndex}

	labels := [formFieldCount]string{"name: ", "targets: ", "strategy: ", "color: "}
	values := [formFieldCount]string{
		host.Name,
		strings.Join(host.Targets, ", "),
		host.Strategy,
		host.Color,
	}
	placeholders := [formFieldCount]string{
		"buildbox",
		"buildbox.local, buildbox.example.com",
		"auto",
		"",
	}

	for i := range f.inputs {
		ti := textinput.New()
		ti.Prompt = labels[i]
		ti.Placeholder = placeholders[i]
		ti.SetValue(values[i])
		ti.SetWidth(width - len(labels[i]) - 4)
		f.inputs[i] = ti
	}
	f.inputs[formFieldName].Focus()
	return f
}

func (f *hostForm) Update(msg tea.Msg) tea.Cmd {
	var cmd tea.Cmd
	f.inputs[f.focused], cmd = f.inputs[f.focused].Update(msg)
	return cmd
}

func (f *hostForm) Next() tea.Cmd {
	f.inputs[f.focused].Blur()
	f.focused = (f.focused + 1) % formFieldCount
	return f.inputs[f.focused].Focus()
}

func (f *hostForm) Prev() tea.Cmd {
	f.inputs[f.focused].Blur()
	f.focused = (f.focused + formFieldCount - 1) % formFieldCount
	return f.inputs[f.focused].Focus()
}

func (f *hostForm) OnLastField() bool {
	return f.focused == formFieldCount-1
}

// Host builds a config.Host from the form. Returns false when required
// fields are missing.
func (f *hostForm) Host() (config.Host, bool) {
	name := strings.TrimSpace(f.inputs[formFieldName].Value())
	var targets []string
	for _, t := range strings.Split(f.inputs[formFieldTargets].Value(), ",") {
		if t = strings.TrimSpace(t); t != "" {
			targets = append(targets, t)
		}
	}
	if name == "" || len(targets) == 0 {
		return config.Host{}, false
	}

	strategy := strings.TrimSpace(f.inputs[formFieldStrategy].Value())
	if strategy == "" {
		strategy = config.StrategyAuto
	}
	return config.Host{
		Name:     name,
		Targets:  targets,
		Strategy: strategy,
		Color:    strings.TrimSpace(f.inputs[formFieldColor].Value()),
	}, true
}

func (f *hostForm) View() string {
	var b strings.Builder
	if f.editIndex >= 0 {
		b.WriteString(formTitleStyle.Render("Edit host"))
	} else {
		b.WriteString(formTitleStyle.Render("Add host"))
	}
	b.WriteString("\n\n")
	for i := range f.inputs {
		b.WriteString(f.inputs[i].View())
		b.WriteString("\n")
	}
	b.WriteString("\n")
	b.WriteString(footerStyle.Render("enter: next/submit · tab: next field · esc: cancel"))
	return b.String()
}
