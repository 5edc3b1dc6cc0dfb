package comm

import (
	"fmt"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"
)

// modelState reads the nested state map out of a comm_open's data
// payload, returning an empty map rather than nil so callers can index
// it freely.
func modelState(data map[string]any) map[string]any {
	state, _ := data["state"].(map[string]any)
	if state == nil {
		state = map[string]any{}
	}
	return state
}

func stateString(state map[string]any, key string) string {
	v, _ := state[key].(string)
	return v
}

func stateFloat(state map[string]any, key string, fallback float64) float64 {
	switch n := state[key].(type) {
	case float64:
		return n
	case int:
		return float64(n)
	default:
		return fallback
	}
}

// ipywidgetFactory is the Factory registered for the "jupyter.widget"
// target_name. It dispatches on _model_name, the field every ipywidgets
// comm_open payload carries, falling back to unimplementedModel for any
// model this package has no concrete view for.
func ipywidgetFactory(targetName string, data map[string]any) Model {
	state := modelState(data)
	switch stateString(state, "_model_name") {
	case "BoxModel", "HBoxModel", "VBoxModel", "TabModel", "AccordionModel":
		return containerModel{}
	case "TextModel", "TextareaModel", "HTMLModel", "LabelModel", "CheckboxModel", "ToggleButtonModel":
		return simpleValueModel{}
	case "IntTextModel", "FloatTextModel", "IntSliderModel", "FloatSliderModel",
		"IntRangeSliderModel", "FloatRangeSliderModel", "BoundedIntTextModel",
		"BoundedFloatTextModel", "ProgressModel":
		return boundedNumericModel{}
	case "DropdownModel", "SelectModel", "RadioButtonsModel", "ToggleButtonsModel",
		"SelectionSliderModel", "SelectMultipleModel":
		return selectionModel{}
	case "OutputModel":
		return &outputModel{}
	default:
		return unimplementedModel{}
	}
}

// unimplementedModel is the inert fallback used for any comm_open whose
// target_name or _model_name this package does not model, per
// UnimplementedWidget: it renders a single line and ignores updates.
type unimplementedModel struct{}

func (unimplementedModel) Category() Category { return CategorySimpleValue }

func (unimplementedModel) CreateView(state map[string]any) View {
	return &staticView{lines: []string{"[Widget not implemented]"}}
}

// staticView renders fixed text and ignores further updates, the shape
// UnimplementedWidget.create_view and a few read-only widgets share.
type staticView struct {
	lines []string
}

func (v *staticView) Update(state map[string]any, changed []string) {}
func (v *staticView) Lines() []string                               { return v.lines }

// containerModel covers Box/HBox/VBox/Tab/Accordion: the view renders
// one line per child placeholder, since actual child comm resolution
// (IPY_MODEL_<id> references into the owning notebook's comm registry)
// is the caller's job via LayoutMixin.render_children's equivalent —
// this package only renders the container's own framing.
type containerModel struct{}

func (containerModel) Category() Category { return CategoryContainer }

func (containerModel) CreateView(state map[string]any) View {
	return &containerView{state: state}
}

type containerView struct {
	state map[string]any
}

func (v *containerView) Update(state map[string]any, changed []string) { v.state = state }

func (v *containerView) Lines() []string {
	children, _ := v.state["children"].([]any)
	if len(children) == 0 {
		return []string{"(empty container)"}
	}
	lines := make([]string, 0, len(children))
	for _, c := range children {
		ref, _ := c.(string)
		lines = append(lines, "- "+strings.TrimPrefix(ref, "IPY_MODEL_"))
	}
	return lines
}

// simpleValueModel covers Text/Textarea/Checkbox/ToggleButton/Label/HTML:
// any widget whose entire rendered state is its "value" and "description"
// keys.
type simpleValueModel struct{}

func (simpleValueModel) Category() Category { return CategorySimpleValue }

func (simpleValueModel) CreateView(state map[string]any) View {
	v := &simpleValueView{}
	v.Update(state, nil)
	return v
}

type simpleValueView struct {
	lines []string
}

func (v *simpleValueView) Update(state map[string]any, changed []string) {
	desc := stateString(state, "description")
	value := formatAny(state["value"])
	line := value
	if desc != "" {
		line = fmt.Sprintf("%s: %s", desc, value)
	}
	v.lines = []string{line}
}

func (v *simpleValueView) Lines() []string { return v.lines }

func formatAny(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case bool:
		if t {
			return "[x]"
		}
		return "[ ]"
	case string:
		return t
	default:
		return fmt.Sprintf("%v", t)
	}
}

// boundedNumericModel covers IntText/FloatText/sliders/progress: widgets
// with min/max/value driving a bar.
type boundedNumericModel struct{}

func (boundedNumericModel) Category() Category { return CategoryBoundedNumeric }

func (boundedNumericModel) CreateView(state map[string]any) View {
	v := &boundedNumericView{}
	v.Update(state, nil)
	return v
}

type boundedNumericView struct {
	lines []string
}

var sliderFilledStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("33"))

func (v *boundedNumericView) Update(state map[string]any, changed []string) {
	min := stateFloat(state, "min", 0)
	max := stateFloat(state, "max", 100)
	value := stateFloat(state, "value", min)
	desc := stateString(state, "description")

	const width = 20
	frac := 0.0
	if max > min {
		frac = (value - min) / (max - min)
	}
	if frac < 0 {
		frac = 0
	}
	if frac > 1 {
		frac = 1
	}
	filled := int(frac * width)
	bar := sliderFilledStyle.Render(strings.Repeat("█", filled)) + strings.Repeat("░", width-filled)

	line := fmt.Sprintf("%s %v", bar, value)
	if desc != "" {
		line = fmt.Sprintf("%s: %s", desc, line)
	}
	v.lines = []string{line}
}

func (v *boundedNumericView) Lines() []string { return v.lines }

// selectionModel covers Dropdown/Select/RadioButtons/ToggleButtons,
// SelectionSlider and SelectMultiple: an options list plus the selected
// index. No selection-range model is mapped to it.
type selectionModel struct{}

func (selectionModel) Category() Category { return CategorySelection }

func (selectionModel) CreateView(state map[string]any) View {
	v := &selectionView{}
	v.Update(state, nil)
	return v
}

type selectionView struct {
	lines []string
}

var selectedOptionStyle = lipgloss.NewStyle().Bold(true).Reverse(true)

func (v *selectionView) Update(state map[string]any, changed []string) {
	options, _ := state["_options_labels"].([]any)
	index := int(stateFloat(state, "index", -1))
	desc := stateString(state, "description")

	lines := make([]string, 0, len(options)+1)
	if desc != "" {
		lines = append(lines, desc)
	}
	for i, o := range options {
		label := fmt.Sprintf("%v", o)
		if i == index {
			label = selectedOptionStyle.Render(label)
		}
		lines = append(lines, label)
	}
	if len(lines) == 0 {
		lines = []string{""}
	}
	v.lines = lines
}

func (v *selectionView) Lines() []string { return v.lines }

// outputModel is the Output widget: a cell-output area that, while its
// "msg_id" state key names an in-flight request, hijacks that request's
// output callbacks so execute output produced by a function call lands
// in this widget's own area rather than the triggering cell's (grounded
// on ipywidgets.py's OutputModel.process_data msg_id swap).
type outputModel struct {
	mu        sync.Mutex
	restore   func()
	clearWait bool
}

func (m *outputModel) Category() Category { return CategoryOutput }

func (m *outputModel) CreateView(state map[string]any) View {
	v := &outputView{}
	v.Update(state, nil)
	return v
}

// HandleStateChange watches for a msg_id change and (un)hijacks the
// named request's callbacks accordingly.
func (m *outputModel) HandleStateChange(c *Comm, changes map[string]any) {
	raw, ok := changes["msg_id"]
	if !ok {
		return
	}

	m.mu.Lock()
	if m.restore != nil {
		m.restore()
		m.restore = nil
	}
	m.mu.Unlock()

	msgID, _ := raw.(string)
	if msgID == "" {
		return
	}
	hijacker := c.hijackerRef()
	if hijacker == nil {
		return
	}
	restore := hijacker.HijackOutput(msgID,
		func(data, metadata map[string]any) {
			m.addOutput(c, map[string]any{
				"output_type": "display_data",
				"data":        data,
				"metadata":    metadata,
			})
		},
		func(wait bool) { m.clearOutput(c, wait) },
	)
	m.mu.Lock()
	m.restore = restore
	m.mu.Unlock()
}

func (m *outputModel) addOutput(c *Comm, output map[string]any) {
	m.mu.Lock()
	wait := m.clearWait
	m.clearWait = false
	m.mu.Unlock()

	if wait {
		_ = c.SetState("outputs", []any{output})
		return
	}
	existing, _ := c.StateValue("outputs").([]any)
	_ = c.SetState("outputs", append(append([]any(nil), existing...), output))
}

func (m *outputModel) clearOutput(c *Comm, wait bool) {
	if wait {
		m.mu.Lock()
		m.clearWait = true
		m.mu.Unlock()
		return
	}
	m.mu.Lock()
	m.clearWait = false
	m.mu.Unlock()
	_ = c.SetState("outputs", []any{})
}

// outputView renders each output's mime summary as a line; real
// rendering to ANSI/graphics is handled by internal/render once an
// outputView's owner forwards its json-like entries to a Renderer
// (outside this package's scope, which only tracks the list).
type outputView struct {
	lines []string
}

func (v *outputView) Update(state map[string]any, changed []string) {
	outputs, _ := state["outputs"].([]any)
	if len(outputs) == 0 {
		v.lines = []string{""}
		return
	}
	lines := make([]string, 0, len(outputs))
	for _, o := range outputs {
		entry, _ := o.(map[string]any)
		kind := stateString(entry, "output_type")
		if kind == "" {
			kind = "output"
		}
		lines = append(lines, fmt.Sprintf("[%s]", kind))
	}
	v.lines = lines
}

func (v *outputView) Lines() []string { return v.lines }
