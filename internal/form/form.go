// Package form turns form descriptors reported by a page into auto-save
// snapshots. Sensitive and file fields never enter a snapshot.
package form

import (
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode/utf16"
)

// FieldInput is a single form control as reported by the page.
type FieldInput struct {
	Tag          string   `json:"tag"`
	Type         string   `json:"type,omitempty"`
	ID           string   `json:"id,omitempty"`
	Name         string   `json:"name,omitempty"`
	Autocomplete string   `json:"autocomplete,omitempty"`
	Label        string   `json:"label,omitempty"`
	Value        string   `json:"value,omitempty"`
	Values       []string `json:"values,omitempty"`
	Display      string   `json:"display,omitempty"`
	Checked      bool     `json:"checked,omitempty"`
	Multiple     bool     `json:"multiple,omitempty"`
}

// Descriptor describes one form on a page.
type Descriptor struct {
	PageURL   string       `json:"page_url" validate:"required,url"`
	ID        string       `json:"id,omitempty"`
	Name      string       `json:"name,omitempty"`
	Action    string       `json:"action,omitempty"`
	FormCount int          `json:"form_count,omitempty"`
	Index     int          `json:"index,omitempty"`
	Fields    []FieldInput `json:"fields"`
}

// Value is the stored value of one field.
type Value struct {
	Value         string   `json:"value,omitempty"`
	Values        []string `json:"values,omitempty"`
	Checked       *bool    `json:"checked,omitempty"`
	SelectedValue *string  `json:"selectedValue,omitempty"`
	DisplayValue  string   `json:"displayValue"`
}

// Field is a stored field entry.
type Field struct {
	Value    Value  `json:"value"`
	Type     string `json:"type"`
	ID       string `json:"id,omitempty"`
	Name     string `json:"name,omitempty"`
	Label    string `json:"label,omitempty"`
	Selector string `json:"selector"`
}

// Snapshot is the persisted state of one form.
type Snapshot struct {
	FormID    string           `json:"formId"`
	URL       string           `json:"url"`
	Timestamp int64            `json:"timestamp"`
	Fields    map[string]Field `json:"fields"`
}

// IsSensitive reports whether f must never be stored: passwords, card and
// SSN fields, cc-* autocomplete hints, and hidden inputs.
func IsSensitive(f FieldInput) bool {
	typ := strings.ToLower(f.Type)
	name := strings.ToLower(f.Name)
	id := strings.ToLower(f.ID)
	ac := strings.ToLower(f.Autocomplete)

	if typ == "password" || typ == "hidden" {
		return true
	}
	for _, s := range []string{"card", "cvv", "cvc", "ssn", "social"} {
		if strings.Contains(name, s) || strings.Contains(id, s) {
			return true
		}
	}
	return strings.Contains(ac, "cc-")
}

// Identifier derives a stable id for the form: its id, name, action path,
// "main-form" when it is the only form, a hash of its first five field
// names, and finally its position on the page.
func Identifier(d Descriptor) string {
	if d.ID != "" {
		return d.ID
	}
	if d.Name != "" {
		return d.Name
	}
	if d.Action != "" {
		if u, err := resolve(d.PageURL, d.Action); err == nil {
			return u.Path
		}
		return d.Action
	}
	if d.FormCount == 1 {
		return "main-form"
	}

	parts := make([]string, 0, 5)
	for _, f := range d.Fields {
		p := firstNonEmpty(f.Name, f.ID, f.Type)
		if p == "" {
			continue
		}
		parts = append(parts, p)
		if len(parts) == 5 {
			break
		}
	}
	if len(parts) > 0 {
		return "form-" + hashString(strings.Join(parts, "-"))
	}
	return "form-" + strconv.Itoa(d.Index)
}

// StorageKey returns origin+path+"#"+Identifier(d).
func StorageKey(d Descriptor) string {
	base := d.PageURL
	if u, err := url.Parse(d.PageURL); err == nil && u.Host != "" {
		base = u.Scheme + "://" + u.Host + u.Path
	}
	return base + "#" + Identifier(d)
}

// Collect builds the stored field map, skipping sensitive and file inputs.
// Radio buttons are grouped by name into a single "radio-group" entry.
func Collect(d Descriptor) map[string]Field {
	fields := make(map[string]Field)
	tagIndex := make(map[string]int)
	var groupOrder []string
	groups := make(map[string][]FieldInput)

	for _, f := range d.Fields {
		tag := strings.ToLower(f.Tag)
		if tag == "" {
			tag = "input"
		}
		idx := tagIndex[tag]
		tagIndex[tag]++

		typ := strings.ToLower(f.Type)
		if IsSensitive(f) || typ == "file" {
			continue
		}
		if typ == "radio" && f.Name != "" {
			if _, ok := groups[f.Name]; !ok {
				groupOrder = append(groupOrder, f.Name)
			}
			groups[f.Name] = append(groups[f.Name], f)
			continue
		}

		key := firstNonEmpty(f.ID, f.Name)
		if key == "" {
			key = fmt.Sprintf("%s-%s-%d", tag, firstNonEmpty(typ, "text"), idx)
		}
		fields[key] = Field{
			Value:    fieldValue(tag, typ, f),
			Type:     firstNonEmpty(typ, tag),
			ID:       f.ID,
			Name:     f.Name,
			Label:    f.Label,
			Selector: selector(tag, f),
		}
	}

	for _, name := range groupOrder {
		v := Value{DisplayValue: "None selected"}
		for _, r := range groups[name] {
			if r.Checked {
				selected := r.Value
				v.SelectedValue = &selected
				v.DisplayValue = firstNonEmpty(r.Label, r.Value)
				break
			}
		}
		fields[name] = Field{
			Value:    v,
			Type:     "radio-group",
			Name:     name,
			Label:    humanize(name),
			Selector: fmt.Sprintf("[name=%q]", name),
		}
	}
	return fields
}

// HasData reports whether any field carries user input.
func HasData(fields map[string]Field) bool {
	for _, f := range fields {
		v := f.Value
		switch {
		case f.Type == "radio-group":
			if v.SelectedValue != nil {
				return true
			}
		case v.Checked != nil:
			if *v.Checked {
				return true
			}
		case v.Values != nil:
			if len(v.Values) > 0 {
				return true
			}
		default:
			if strings.TrimSpace(v.Value) != "" {
				return true
			}
		}
	}
	return false
}

// Build produces the storage key and snapshot for d. ok is false when the
// form holds no user input, in which case any saved entry should be removed.
func Build(d Descriptor, now time.Time) (key string, snap Snapshot, ok bool) {
	key = StorageKey(d)
	fields := Collect(d)
	if !HasData(fields) {
		return key, Snapshot{}, false
	}
	return key, Snapshot{
		FormID:    Identifier(d),
		URL:       d.PageURL,
		Timestamp: now.UnixMilli(),
		Fields:    fields,
	}, true
}

func fieldValue(tag, typ string, f FieldInput) Value {
	switch {
	case typ == "checkbox":
		checked := f.Checked
		display := "✗ Unchecked"
		if checked {
			display = "✓ Checked"
		}
		return Value{Checked: &checked, DisplayValue: display}
	case typ == "radio":
		checked := f.Checked
		v := Value{Value: f.Value, Checked: &checked}
		if checked {
			v.DisplayValue = firstNonEmpty(f.Label, f.Value)
		}
		return v
	case tag == "select" && f.Multiple:
		values := f.Values
		if values == nil {
			values = []string{}
		}
		return Value{Values: values, DisplayValue: firstNonEmpty(f.Display, strings.Join(values, ", "))}
	case tag == "select":
		return Value{Value: f.Value, DisplayValue: firstNonEmpty(f.Display, f.Value)}
	case typ == "color":
		return Value{Value: f.Value, DisplayValue: strings.ToUpper(f.Value)}
	default:
		return Value{Value: f.Value, DisplayValue: f.Value}
	}
}

func selector(tag string, f FieldInput) string {
	if f.ID != "" {
		return "#" + f.ID
	}
	if f.Name != "" {
		return fmt.Sprintf("[name=%q]", f.Name)
	}
	if f.Type != "" {
		return fmt.Sprintf("%s[type=%q]", tag, f.Type)
	}
	return tag
}

var camelBoundary = regexp.MustCompile(`([a-z])([A-Z])`)

// humanize turns "contactMethod" or "contact_method" into "Contact method".
func humanize(name string) string {
	s := camelBoundary.ReplaceAllString(name, "$1 $2")
	s = strings.NewReplacer("_", " ", "-", " ").Replace(s)
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

// hashString is a 32-bit shift-subtract hash over UTF-16 code units,
// rendered in base 36. The output matches ids already stored by the
// browser extension.
func hashString(s string) string {
	var h int32
	for _, c := range utf16.Encode([]rune(s)) {
		h = (h << 5) - h + int32(c)
	}
	abs := int64(h)
	if abs < 0 {
		abs = -abs
	}
	return strconv.FormatInt(abs, 36)
}

func resolve(base, ref string) (*url.URL, error) {
	b, err := url.Parse(base)
	if err != nil {
		return nil, err
	}
	r, err := url.Parse(ref)
	if err != nil {
		return nil, err
	}
	return b.ResolveReference(r), nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
