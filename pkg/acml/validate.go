package acml

import (
	"fmt"
	"strconv"

	"github.com/arrowhead-f/confsys/pkg/apes"
	"github.com/arrowhead-f/confsys/pkg/metrics"
)

// Validate checks one document against the template registry. A document
// declaring no template is trivially sound; a declared but unregistered
// template is itself a violation.
func Validate(doc Document, templates map[string]Template) Report {
	report := Report{DocumentName: doc.Name, TemplateName: doc.Template}
	if doc.Template == "" {
		return report
	}

	template, ok := templates[doc.Template]
	if !ok {
		report.Violations = append(report.Violations, Violation{
			Condition: "template != undefined",
			Path:      "",
		})
		metrics.DocumentsValidated.WithLabelValues("unsound").Inc()
		return report
	}

	report.Violations = validateField(&template.Body, doc.Body, apes.Null(), 0, "", nil)
	if report.Sound() {
		metrics.DocumentsValidated.WithLabelValues("sound").Inc()
	} else {
		metrics.DocumentsValidated.WithLabelValues("unsound").Inc()
	}
	return report
}

// ValidateAll validates a set of documents, one report per document.
func ValidateAll(docs []Document, templates map[string]Template) []Report {
	reports := make([]Report, 0, len(docs))
	for _, doc := range docs {
		reports = append(reports, Validate(doc, templates))
	}
	return reports
}

// validateField walks one field against one entity. Conditions run first,
// then the type constraint, then the composite children. indexOrKey and
// length describe the entity's position in its enclosing container.
func validateField(field *Field, entity, indexOrKey apes.Value, length int, path string, violations []Violation) []Violation {
	for _, condition := range field.Conditions {
		ok, err := condition.Evaluate(entity, indexOrKey, length)
		if err != nil {
			violations = append(violations, Violation{
				Condition: condition.Text,
				Path:      path,
				Error:     err.Error(),
			})
			continue
		}
		if !ok {
			violations = append(violations, Violation{Condition: condition.Text, Path: path})
		}
	}

	typeViolation := func() []Violation {
		return append(violations, Violation{
			Condition: "entity is " + field.Kind.String(),
			Path:      path,
		})
	}

	switch field.Kind {
	case apes.KindNull:
		if !entity.IsNull() {
			return typeViolation()
		}
	case apes.KindBoolean:
		if _, ok := entity.Bool(); !ok {
			return typeViolation()
		}
	case apes.KindNumber:
		if _, ok := entity.Float(); !ok {
			return typeViolation()
		}
	case apes.KindText:
		if _, ok := entity.Str(); !ok {
			return typeViolation()
		}
	case apes.KindList:
		items, ok := entity.Items()
		if !ok {
			return typeViolation()
		}
		for i, item := range items {
			itemPath := path + "[" + strconv.Itoa(i) + "]"
			index := apes.Number(float64(i))
			if field.Item != nil {
				violations = validateField(field.Item, item, index, len(items), itemPath, violations)
			}
			if i < len(field.Items) && field.Items[i] != nil {
				violations = validateField(field.Items[i], item, index, len(items), itemPath, violations)
			}
		}
	case apes.KindMap:
		entries, ok := entity.Entries()
		if !ok {
			return typeViolation()
		}
		for _, entry := range entries {
			entryPath := path + "." + entry.Key
			key := apes.Text(entry.Key)
			if field.Entry != nil {
				violations = validateField(field.Entry, entry.Value, key, len(entries), entryPath, violations)
			}
			if keyed, ok := field.Entries[entry.Key]; ok && keyed != nil {
				violations = validateField(keyed, entry.Value, key, len(entries), entryPath, violations)
			}
		}
	default:
		violations = append(violations, Violation{
			Condition: fmt.Sprintf("field kind %d is known", field.Kind),
			Path:      path,
		})
	}

	return violations
}
