package acml

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/arrowhead-f/confsys/pkg/apes"
)

// ConditionTimeout bounds each condition evaluation.
const ConditionTimeout = 50 * time.Millisecond

// Predicate is a compiled condition: a function of the entity under test,
// its index or key within the enclosing container, and that container's
// length.
type Predicate func(entity, indexOrKey apes.Value, length int) (bool, error)

// Condition pairs a predicate with its source text, which is what
// violations report.
type Condition struct {
	Text string
	pred Predicate
}

// Evaluate runs the condition in a fresh goroutine with a wall-clock
// timeout. A panic inside the predicate is captured as the violation
// error, and one condition can never observe another's state.
func (c Condition) Evaluate(entity, indexOrKey apes.Value, length int) (bool, error) {
	type outcome struct {
		ok  bool
		err error
	}
	done := make(chan outcome, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- outcome{err: fmt.Errorf("condition panicked: %v", r)}
			}
		}()
		ok, err := c.pred(entity, indexOrKey, length)
		done <- outcome{ok: ok, err: err}
	}()

	select {
	case res := <-done:
		return res.ok, res.err
	case <-time.After(ConditionTimeout):
		return false, fmt.Errorf("condition timed out after %v", ConditionTimeout)
	}
}

// conditionPattern matches "Name" or "Name(arg, ...)".
var conditionPattern = regexp.MustCompile(`^([A-Za-z_][A-Za-z0-9_]*)\s*(?:\((.*)\))?$`)

// ParseCondition compiles a condition from its text form: the name of a
// predeclared predicate, optionally applied to JSON-scalar arguments, e.g.
// "NotEmpty", "Min(0)", or "OneOf("a","b")".
func ParseCondition(text string) (Condition, error) {
	m := conditionPattern.FindStringSubmatch(strings.TrimSpace(text))
	if m == nil {
		return Condition{}, fmt.Errorf("acml: malformed condition %q", text)
	}
	factory, ok := predicateFactories[m[1]]
	if !ok {
		return Condition{}, fmt.Errorf("acml: unknown predicate %q", m[1])
	}

	var args []apes.Value
	if m[2] != "" {
		for _, raw := range splitArgs(m[2]) {
			arg, err := apes.DecodeJSON([]byte(strings.TrimSpace(raw)))
			if err != nil {
				return Condition{}, fmt.Errorf("acml: bad argument in %q: %w", text, err)
			}
			args = append(args, arg)
		}
	}

	pred, err := factory(args)
	if err != nil {
		return Condition{}, fmt.Errorf("acml: %q: %w", text, err)
	}
	return Condition{Text: text, pred: pred}, nil
}

// MustCondition is ParseCondition for statically known texts.
func MustCondition(text string) Condition {
	c, err := ParseCondition(text)
	if err != nil {
		panic(err)
	}
	return c
}

// splitArgs splits on top-level commas, honoring string quoting.
func splitArgs(s string) []string {
	var args []string
	var start int
	inString := false
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '"':
			if !inString || i == 0 || s[i-1] != '\\' {
				inString = !inString
			}
		case ',':
			if !inString {
				args = append(args, s[start:i])
				start = i + 1
			}
		}
	}
	return append(args, s[start:])
}

type predicateFactory func(args []apes.Value) (Predicate, error)

// predicateFactories is the predeclared predicate set.
var predicateFactories = map[string]predicateFactory{
	"NotNull": nullary(func(entity, _ apes.Value, _ int) (bool, error) {
		return !entity.IsNull(), nil
	}),
	"NotEmpty": nullary(func(entity, _ apes.Value, _ int) (bool, error) {
		if s, ok := entity.Str(); ok {
			return s != "", nil
		}
		return entity.Len() > 0, nil
	}),
	"Min":       numberBound(func(v, bound float64) bool { return v >= bound }),
	"Max":       numberBound(func(v, bound float64) bool { return v <= bound }),
	"LengthMin": lengthBound(func(n, bound int) bool { return n >= bound }),
	"LengthMax": lengthBound(func(n, bound int) bool { return n <= bound }),
	"Integer": nullary(func(entity, _ apes.Value, _ int) (bool, error) {
		f, ok := entity.Float()
		if !ok {
			return false, fmt.Errorf("entity is not a number")
		}
		return f == float64(int64(f)), nil
	}),
	"OneOf": func(args []apes.Value) (Predicate, error) {
		if len(args) == 0 {
			return nil, fmt.Errorf("OneOf needs at least one option")
		}
		return func(entity, _ apes.Value, _ int) (bool, error) {
			for _, option := range args {
				if entity.Equal(option) {
					return true, nil
				}
			}
			return false, nil
		}, nil
	},
	"Matches": func(args []apes.Value) (Predicate, error) {
		pattern, err := oneText(args)
		if err != nil {
			return nil, err
		}
		re, err := regexp.Compile(pattern)
		if err != nil {
			return nil, err
		}
		return func(entity, _ apes.Value, _ int) (bool, error) {
			s, ok := entity.Str()
			if !ok {
				return false, fmt.Errorf("entity is not text")
			}
			return re.MatchString(s), nil
		}, nil
	},
	"KeyMatches": func(args []apes.Value) (Predicate, error) {
		pattern, err := oneText(args)
		if err != nil {
			return nil, err
		}
		re, err := regexp.Compile(pattern)
		if err != nil {
			return nil, err
		}
		return func(_, indexOrKey apes.Value, _ int) (bool, error) {
			key, ok := indexOrKey.Str()
			if !ok {
				return false, fmt.Errorf("entity has no key")
			}
			return re.MatchString(key), nil
		}, nil
	},
}

func nullary(pred Predicate) predicateFactory {
	return func(args []apes.Value) (Predicate, error) {
		if len(args) != 0 {
			return nil, fmt.Errorf("predicate takes no arguments")
		}
		return pred, nil
	}
}

func numberBound(cmp func(v, bound float64) bool) predicateFactory {
	return func(args []apes.Value) (Predicate, error) {
		bound, err := oneNumber(args)
		if err != nil {
			return nil, err
		}
		return func(entity, _ apes.Value, _ int) (bool, error) {
			f, ok := entity.Float()
			if !ok {
				return false, fmt.Errorf("entity is not a number")
			}
			return cmp(f, bound), nil
		}, nil
	}
}

func lengthBound(cmp func(n, bound int) bool) predicateFactory {
	return func(args []apes.Value) (Predicate, error) {
		bound, err := oneNumber(args)
		if err != nil {
			return nil, err
		}
		return func(entity, _ apes.Value, _ int) (bool, error) {
			if s, ok := entity.Str(); ok {
				return cmp(len(s), int(bound)), nil
			}
			return cmp(entity.Len(), int(bound)), nil
		}, nil
	}
}

func oneNumber(args []apes.Value) (float64, error) {
	if len(args) != 1 {
		return 0, fmt.Errorf("predicate takes exactly one argument")
	}
	f, ok := args[0].Float()
	if !ok {
		return 0, fmt.Errorf("argument must be a number")
	}
	return f, nil
}

func oneText(args []apes.Value) (string, error) {
	if len(args) != 1 {
		return "", fmt.Errorf("predicate takes exactly one argument")
	}
	s, ok := args[0].Str()
	if !ok {
		return "", fmt.Errorf("argument must be text")
	}
	return s, nil
}
