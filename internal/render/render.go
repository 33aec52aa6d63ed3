package render

import (
	"bytes"
	"fmt"
	"sort"
	"strings"
	"text/template"

	"go.uber.org/zap"

	"rocketwatch/internal/event"
)

// Accent colors.
const (
	ColorDefault = 0xf7a34b
	ColorGood    = 0x2ecc71
	ColorWarn    = 0xe67e22
	ColorBad     = 0xe74c3c
	ColorInfo    = 0x3498db
	ColorDAO     = 0x9b59b6
)

// FieldSpec is a field whose value is a template. Fields rendering to an
// empty string are omitted.
type FieldSpec struct {
	Name   string
	Value  string
	Inline bool
}

// Spec describes how one event name is rendered.
type Spec struct {
	Title       string
	Description string
	Color       int
	Fields      []FieldSpec
}

type compiled struct {
	spec        Spec
	title       *template.Template
	description *template.Template
	fields      []*template.Template
}

// Renderer turns event arguments into the message card.
type Renderer struct {
	specs    map[string]*compiled
	fallback *compiled
	logger   *zap.Logger
}

// New compiles specs. Event names without a spec use the generic layout.
func New(specs map[string]Spec, logger *zap.Logger) (*Renderer, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Renderer{specs: make(map[string]*compiled, len(specs)), logger: logger}
	for name, spec := range specs {
		c, err := compile(name, spec)
		if err != nil {
			return nil, err
		}
		r.specs[name] = c
	}
	fallback, err := compile("default", Spec{
		Title:       `{{ title .event_name }}`,
		Description: genericDescription,
		Color:       ColorDefault,
	})
	if err != nil {
		return nil, err
	}
	r.fallback = fallback
	return r, nil
}

const genericDescription = `{{ range $k, $v := .args }}**{{ $k }}**: {{ text $v }}
{{ end }}`

func compile(name string, spec Spec) (*compiled, error) {
	c := &compiled{spec: spec}
	var err error
	if c.title, err = parse(name+".title", spec.Title); err != nil {
		return nil, err
	}
	if c.description, err = parse(name+".description", spec.Description); err != nil {
		return nil, err
	}
	for i, f := range spec.Fields {
		t, err := parse(fmt.Sprintf("%s.field%d", name, i), f.Value)
		if err != nil {
			return nil, err
		}
		c.fields = append(c.fields, t)
	}
	return c, nil
}

func parse(name, text string) (*template.Template, error) {
	t, err := template.New(name).Funcs(funcMap()).Option("missingkey=zero").Parse(text)
	if err != nil {
		return nil, fmt.Errorf("parse template %s: %w", name, err)
	}
	return t, nil
}

// Has reports whether a dedicated spec exists for the event name.
func (r *Renderer) Has(name string) bool {
	_, ok := r.specs[name]
	return ok
}

// Render fills e.Body. Transaction fee and link fields are appended when
// the event carries them.
func (r *Renderer) Render(e *event.Event) error {
	c, ok := r.specs[e.Name]
	if !ok {
		c = r.fallback
	}
	data := templateData(e)

	title, err := execute(c.title, data)
	if err != nil {
		return err
	}
	description, err := execute(c.description, data)
	if err != nil {
		return err
	}
	body := event.Body{
		Title:       title,
		Description: strings.TrimSpace(description),
		Color:       c.spec.Color,
	}
	for i, f := range c.spec.Fields {
		value, err := execute(c.fields[i], data)
		if err != nil {
			return err
		}
		if value = strings.TrimSpace(value); value == "" || strings.Contains(value, "<no value>") {
			continue
		}
		body.Fields = append(body.Fields, event.Field{Name: f.Name, Value: value, Inline: f.Inline})
	}
	body.Fields = append(body.Fields, txFields(e)...)
	if e.BlockNumber > 0 {
		body.Footer = fmt.Sprintf("block %d", e.BlockNumber)
	}
	if body.Color == 0 {
		body.Color = ColorDefault
	}
	e.Body = body
	return nil
}

func templateData(e *event.Event) map[string]interface{} {
	data := make(map[string]interface{}, len(e.Args)+4)
	for k, v := range e.Args {
		data[k] = v
	}
	data["event_name"] = e.Name
	data["block_number"] = e.BlockNumber
	data["tx_hash"] = e.TxHash
	// Generic layout lists plain arguments only.
	args := make(map[string]interface{})
	keys := make([]string, 0, len(e.Args))
	for k := range e.Args {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if strings.HasSuffix(k, "_fancy") || strings.HasPrefix(k, "tx_") {
			continue
		}
		if fancy, ok := e.Args[k+"_fancy"]; ok {
			args[k] = fancy
			continue
		}
		args[k] = e.Args[k]
	}
	data["args"] = args
	return data
}

func txFields(e *event.Event) []event.Field {
	var out []event.Field
	if link := e.Args.Text("tx_link"); link != "" {
		out = append(out, event.Field{Name: "Transaction", Value: link, Inline: true})
	}
	if fee, ok := e.Args.Decimal("tx_fee"); ok {
		value := Amount(fee) + " ETH"
		if usd, ok := e.Args.Decimal("tx_fee_usd"); ok {
			value += " ($" + Amount(usd) + ")"
		}
		out = append(out, event.Field{Name: "Transaction Fee", Value: value, Inline: true})
	}
	return out
}

func execute(t *template.Template, data map[string]interface{}) (string, error) {
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render %s: %w", t.Name(), err)
	}
	return buf.String(), nil
}
