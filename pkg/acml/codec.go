package acml

import (
	"fmt"

	"github.com/arrowhead-f/confsys/pkg/apes"
)

var kindsByName = map[string]apes.Kind{
	"Null":    apes.KindNull,
	"Boolean": apes.KindBoolean,
	"Number":  apes.KindNumber,
	"Text":    apes.KindText,
	"List":    apes.KindList,
	"Map":     apes.KindMap,
}

// DocumentFromValue reads a document from its value form:
// {"name": ..., "body": ..., "template": ...?}.
func DocumentFromValue(v apes.Value) (Document, error) {
	var doc Document
	name, ok := textKey(v, "name")
	if !ok || !ValidName(name) {
		return doc, fmt.Errorf("acml: document name missing or invalid")
	}
	doc.Name = name

	if template, ok := textKey(v, "template"); ok {
		if !ValidName(template) {
			return doc, fmt.Errorf("acml: template name %q invalid", template)
		}
		doc.Template = template
	}

	body, ok := v.Get("body")
	if !ok {
		return doc, fmt.Errorf("acml: document %q has no body", name)
	}
	doc.Body = body
	return doc, nil
}

// DocumentToValue renders a document back to its value form.
func DocumentToValue(doc Document) apes.Value {
	entries := []apes.Entry{
		{Key: "name", Value: apes.Text(doc.Name)},
	}
	if doc.Template != "" {
		entries = append(entries, apes.Entry{Key: "template", Value: apes.Text(doc.Template)})
	}
	entries = append(entries, apes.Entry{Key: "body", Value: doc.Body})
	return apes.Map(entries...)
}

// TemplateFromValue reads a template from {"name": ..., "body": <field>}.
func TemplateFromValue(v apes.Value) (Template, error) {
	var template Template
	name, ok := textKey(v, "name")
	if !ok || !ValidName(name) {
		return template, fmt.Errorf("acml: template name missing or invalid")
	}
	template.Name = name

	body, ok := v.Get("body")
	if !ok {
		return template, fmt.Errorf("acml: template %q has no body", name)
	}
	field, err := fieldFromValue(body)
	if err != nil {
		return template, fmt.Errorf("acml: template %q: %w", name, err)
	}
	template.Body = *field
	return template, nil
}

// fieldFromValue reads one field node:
//
//	{"type": "Map", "conditions": ["NotEmpty"], "name": ...?,
//	 "item": <field>?, "items": [<field>...]?,
//	 "entry": <field>?, "entries": {<key>: <field>...}?}
func fieldFromValue(v apes.Value) (*Field, error) {
	typeName, ok := textKey(v, "type")
	if !ok {
		return nil, fmt.Errorf("field has no type")
	}
	kind, ok := kindsByName[typeName]
	if !ok {
		return nil, fmt.Errorf("unknown field type %q", typeName)
	}

	field := &Field{Kind: kind}
	if name, ok := textKey(v, "name"); ok {
		field.Name = name
	}

	if conditions, ok := v.Get("conditions"); ok {
		items, ok := conditions.Items()
		if !ok {
			return nil, fmt.Errorf("conditions must be a list")
		}
		for _, item := range items {
			text, ok := item.Str()
			if !ok {
				return nil, fmt.Errorf("condition must be text")
			}
			condition, err := ParseCondition(text)
			if err != nil {
				return nil, err
			}
			field.Conditions = append(field.Conditions, condition)
		}
	}

	if item, ok := v.Get("item"); ok {
		child, err := fieldFromValue(item)
		if err != nil {
			return nil, err
		}
		field.Item = child
	}
	if items, ok := v.Get("items"); ok {
		list, ok := items.Items()
		if !ok {
			return nil, fmt.Errorf("items must be a list")
		}
		for _, item := range list {
			child, err := fieldFromValue(item)
			if err != nil {
				return nil, err
			}
			field.Items = append(field.Items, child)
		}
	}

	if entry, ok := v.Get("entry"); ok {
		child, err := fieldFromValue(entry)
		if err != nil {
			return nil, err
		}
		field.Entry = child
	}
	if entries, ok := v.Get("entries"); ok {
		mapEntries, ok := entries.Entries()
		if !ok {
			return nil, fmt.Errorf("entries must be a map")
		}
		field.Entries = make(map[string]*Field, len(mapEntries))
		for _, mapEntry := range mapEntries {
			child, err := fieldFromValue(mapEntry.Value)
			if err != nil {
				return nil, err
			}
			field.Entries[mapEntry.Key] = child
		}
	}

	return field, nil
}

// PatchFromValue reads a patch from {"name": ..., "path": ..., "data": ...?}.
// A missing data key replaces the target with null.
func PatchFromValue(v apes.Value) (Patch, error) {
	var patch Patch
	name, ok := textKey(v, "name")
	if !ok || !ValidName(name) {
		return patch, fmt.Errorf("acml: patch name missing or invalid")
	}
	patch.Name = name

	if path, ok := v.Get("path"); ok {
		text, ok := path.Str()
		if !ok {
			return patch, fmt.Errorf("acml: patch path must be text")
		}
		patch.Path = text
	}

	if data, ok := v.Get("data"); ok {
		patch.Data = data
	}
	return patch, nil
}

// ReportToValue renders a report for serialization.
func ReportToValue(report Report) apes.Value {
	violations := make([]apes.Value, 0, len(report.Violations))
	for _, violation := range report.Violations {
		entries := []apes.Entry{
			{Key: "condition", Value: apes.Text(violation.Condition)},
			{Key: "path", Value: apes.Text(violation.Path)},
		}
		if violation.Error != "" {
			entries = append(entries, apes.Entry{Key: "error", Value: apes.Text(violation.Error)})
		}
		violations = append(violations, apes.Map(entries...))
	}

	entries := []apes.Entry{
		{Key: "document", Value: apes.Text(report.DocumentName)},
	}
	if report.TemplateName != "" {
		entries = append(entries, apes.Entry{Key: "template", Value: apes.Text(report.TemplateName)})
	}
	entries = append(entries, apes.Entry{Key: "violations", Value: apes.List(violations...)})
	return apes.Map(entries...)
}

// ReportsToValue renders a report list.
func ReportsToValue(reports []Report) apes.Value {
	values := make([]apes.Value, 0, len(reports))
	for _, report := range reports {
		values = append(values, ReportToValue(report))
	}
	return apes.List(values...)
}

func textKey(v apes.Value, key string) (string, bool) {
	value, ok := v.Get(key)
	if !ok {
		return "", false
	}
	return value.Str()
}
