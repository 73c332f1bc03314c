package acml

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/arrowhead-f/confsys/pkg/apes"
)

func numberField(conditions ...string) *Field {
	f := &Field{Kind: apes.KindNumber}
	for _, text := range conditions {
		f.Conditions = append(f.Conditions, MustCondition(text))
	}
	return f
}

func serviceTemplate() Template {
	return Template{
		Name: "service.config",
		Body: Field{
			Kind: apes.KindMap,
			Entries: map[string]*Field{
				"port":    numberField("Min(1)", "Max(65535)", "Integer"),
				"name":    {Kind: apes.KindText, Conditions: []Condition{MustCondition("NotEmpty")}},
				"tags":    {Kind: apes.KindList, Item: &Field{Kind: apes.KindText}},
				"enabled": {Kind: apes.KindBoolean},
			},
		},
	}
}

func registry(templates ...Template) map[string]Template {
	m := make(map[string]Template)
	for _, t := range templates {
		m[t.Name] = t
	}
	return m
}

// TestValidateSound tests that a structurally matching body with satisfied
// conditions yields zero violations
func TestValidateSound(t *testing.T) {
	doc := Document{
		Name:     "svc1",
		Template: "service.config",
		Body: apes.Map(
			apes.Entry{Key: "port", Value: apes.Number(8080)},
			apes.Entry{Key: "name", Value: apes.Text("svc1")},
			apes.Entry{Key: "tags", Value: apes.List(apes.Text("prod"), apes.Text("edge"))},
			apes.Entry{Key: "enabled", Value: apes.Boolean(true)},
		),
	}

	report := Validate(doc, registry(serviceTemplate()))
	require.True(t, report.Sound(), "violations: %v", report.Violations)
	require.Equal(t, "svc1", report.DocumentName)
	require.Equal(t, "service.config", report.TemplateName)
}

// TestValidateMissingTemplate tests the template-absent violation
func TestValidateMissingTemplate(t *testing.T) {
	doc := Document{Name: "svc1", Template: "nowhere", Body: apes.Null()}

	report := Validate(doc, registry())
	require.Len(t, report.Violations, 1)
	require.Equal(t, "template != undefined", report.Violations[0].Condition)
	require.Equal(t, "", report.Violations[0].Path)
}

// TestValidateNoTemplateIsSound tests that an unbound document is sound
func TestValidateNoTemplateIsSound(t *testing.T) {
	doc := Document{Name: "free", Body: apes.Text("anything")}
	require.True(t, Validate(doc, registry()).Sound())
}

// TestValidateTypeViolationPaths tests violation path construction
func TestValidateTypeViolationPaths(t *testing.T) {
	doc := Document{
		Name:     "svc1",
		Template: "service.config",
		Body: apes.Map(
			apes.Entry{Key: "port", Value: apes.Text("not a number")},
			apes.Entry{Key: "tags", Value: apes.List(apes.Text("ok"), apes.Number(3))},
		),
	}

	report := Validate(doc, registry(serviceTemplate()))
	require.False(t, report.Sound())

	byPath := map[string]string{}
	for _, violation := range report.Violations {
		byPath[violation.Path] = violation.Condition
	}
	require.Contains(t, byPath, ".port")
	require.Equal(t, "entity is Number", byPath[".port"])
	require.Contains(t, byPath, ".tags[1]")
	require.Equal(t, "entity is Text", byPath[".tags[1]"])
}

// TestValidateConditionViolation tests a failed condition
func TestValidateConditionViolation(t *testing.T) {
	doc := Document{
		Name:     "svc1",
		Template: "service.config",
		Body: apes.Map(
			apes.Entry{Key: "port", Value: apes.Number(0)},
		),
	}

	report := Validate(doc, registry(serviceTemplate()))
	require.False(t, report.Sound())
	require.Equal(t, "Min(1)", report.Violations[0].Condition)
	require.Equal(t, ".port", report.Violations[0].Path)
	require.Empty(t, report.Violations[0].Error)
}

// TestValidatePositionalItems tests positional list constraints and that a
// missing positional field is treated as absent
func TestValidatePositionalItems(t *testing.T) {
	template := Template{
		Name: "pair",
		Body: Field{
			Kind: apes.KindList,
			Items: []*Field{
				{Kind: apes.KindText},
				{Kind: apes.KindNumber},
			},
		},
	}

	sound := Document{
		Name: "p", Template: "pair",
		Body: apes.List(apes.Text("a"), apes.Number(1), apes.Boolean(true)),
	}
	require.True(t, Validate(sound, registry(template)).Sound(),
		"elements beyond the positional fields are unconstrained")

	unsound := Document{
		Name: "p", Template: "pair",
		Body: apes.List(apes.Number(1), apes.Number(2)),
	}
	report := Validate(unsound, registry(template))
	require.Len(t, report.Violations, 1)
	require.Equal(t, "[0]", report.Violations[0].Path)
}

// TestValidateMapRejectsList tests that a list never satisfies a Map field
func TestValidateMapRejectsList(t *testing.T) {
	template := Template{Name: "m", Body: Field{Kind: apes.KindMap}}
	doc := Document{Name: "d", Template: "m", Body: apes.List(apes.Number(1))}

	report := Validate(doc, registry(template))
	require.Len(t, report.Violations, 1)
	require.Equal(t, "entity is Map", report.Violations[0].Condition)
}

// TestConditionErrorCaptured tests that a faulting condition becomes a
// violation with the error attached
func TestConditionErrorCaptured(t *testing.T) {
	template := Template{
		Name: "m",
		Body: Field{
			Kind:       apes.KindText,
			Conditions: []Condition{MustCondition("Min(1)")}, // Min on text faults
		},
	}
	doc := Document{Name: "d", Template: "m", Body: apes.Text("x")}

	report := Validate(doc, registry(template))
	require.Len(t, report.Violations, 1)
	require.Equal(t, "Min(1)", report.Violations[0].Condition)
	require.NotEmpty(t, report.Violations[0].Error)
}

// TestConditionPanicCaptured tests panic isolation
func TestConditionPanicCaptured(t *testing.T) {
	c := Condition{
		Text: "Explodes",
		pred: func(_, _ apes.Value, _ int) (bool, error) { panic("boom") },
	}

	ok, err := c.Evaluate(apes.Null(), apes.Null(), 0)
	require.False(t, ok)
	require.ErrorContains(t, err, "boom")
}

// TestConditionTimeout tests the wall-clock limit
func TestConditionTimeout(t *testing.T) {
	c := Condition{
		Text: "Hangs",
		pred: func(_, _ apes.Value, _ int) (bool, error) {
			time.Sleep(time.Second)
			return true, nil
		},
	}

	start := time.Now()
	ok, err := c.Evaluate(apes.Null(), apes.Null(), 0)
	require.False(t, ok)
	require.ErrorContains(t, err, "timed out")
	require.Less(t, time.Since(start), 500*time.Millisecond)
}

// TestConditionContextArgs tests that index/key and length reach the
// predicate
func TestConditionContextArgs(t *testing.T) {
	template := Template{
		Name: "keys",
		Body: Field{
			Kind:  apes.KindMap,
			Entry: &Field{Kind: apes.KindText, Conditions: []Condition{MustCondition(`KeyMatches("^[a-z]+$")`)}},
		},
	}
	doc := Document{
		Name: "d", Template: "keys",
		Body: apes.Map(
			apes.Entry{Key: "good", Value: apes.Text("1")},
			apes.Entry{Key: "BAD", Value: apes.Text("2")},
		),
	}

	report := Validate(doc, registry(template))
	require.Len(t, report.Violations, 1)
	require.Equal(t, ".BAD", report.Violations[0].Path)
}

// TestParseCondition tests the condition text grammar
func TestParseCondition(t *testing.T) {
	tests := []struct {
		text    string
		wantErr bool
	}{
		{"NotEmpty", false},
		{"Min(0)", false},
		{"Max(65535)", false},
		{`OneOf("a","b","c")`, false},
		{`Matches("^v[0-9]+$")`, false},
		{"NoSuchPredicate", true},
		{"Min()", true},
		{"Min(1,2)", true},
		{`Matches(3)`, true},
		{"123bad", true},
	}

	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			_, err := ParseCondition(tt.text)
			if tt.wantErr {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

// TestPredicates tests the predeclared predicate behaviors
func TestPredicates(t *testing.T) {
	tests := []struct {
		condition string
		entity    apes.Value
		want      bool
	}{
		{"NotNull", apes.Null(), false},
		{"NotNull", apes.Number(0), true},
		{"NotEmpty", apes.Text(""), false},
		{"NotEmpty", apes.Text("x"), true},
		{"NotEmpty", apes.List(), false},
		{"NotEmpty", apes.List(apes.Null()), true},
		{"Min(5)", apes.Number(5), true},
		{"Min(5)", apes.Number(4.9), false},
		{"Max(5)", apes.Number(5), true},
		{"Max(5)", apes.Number(5.1), false},
		{"Integer", apes.Number(3), true},
		{"Integer", apes.Number(3.5), false},
		{"LengthMin(2)", apes.Text("ab"), true},
		{"LengthMin(2)", apes.List(apes.Null()), false},
		{"LengthMax(1)", apes.List(apes.Null()), true},
		{`OneOf("a","b")`, apes.Text("b"), true},
		{`OneOf("a","b")`, apes.Text("c"), false},
		{`OneOf(1,2)`, apes.Number(2), true},
		{`Matches("^v[0-9]+$")`, apes.Text("v12"), true},
		{`Matches("^v[0-9]+$")`, apes.Text("x12"), false},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("%s/%v", tt.condition, tt.entity.Kind()), func(t *testing.T) {
			c := MustCondition(tt.condition)
			got, err := c.Evaluate(tt.entity, apes.Null(), 0)
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}
