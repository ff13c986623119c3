package store

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/huandu/go-sqlbuilder"

	"github.com/nebukadhezer/pyblish-ftrack/internal/session"
)

// Query is a parsed query expression:
//
//	[select a, b from] Type [where path op value [and path op value ...]]
//
// op is one of is, is_not, is not, = or !=. Values are quoted strings,
// bare words or none.
type Query struct {
	Type       string
	Select     []string
	Conditions []Condition
}

// Condition compares an attribute path against a value.
type Condition struct {
	Path   []string
	Negate bool
	Value  *string // nil means none
}

func (c Condition) String() string {
	op := "is"
	if c.Negate {
		op = "is_not"
	}
	value := "none"
	if c.Value != nil {
		value = fmt.Sprintf("%q", *c.Value)
	}
	return fmt.Sprintf("%s %s %s", strings.Join(c.Path, "."), op, value)
}

func (q *Query) String() string {
	var b strings.Builder
	if len(q.Select) > 0 {
		fmt.Fprintf(&b, "select %s from ", strings.Join(q.Select, ", "))
	}
	b.WriteString(q.Type)
	for i, c := range q.Conditions {
		if i == 0 {
			b.WriteString(" where ")
		} else {
			b.WriteString(" and ")
		}
		b.WriteString(c.String())
	}
	return b.String()
}

type token struct {
	text   string
	quoted bool
}

func tokenize(expr string) ([]token, error) {
	var tokens []token
	runes := []rune(expr)
	for i := 0; i < len(runes); {
		r := runes[i]
		switch {
		case unicode.IsSpace(r):
			i++
		case r == ',':
			tokens = append(tokens, token{text: ","})
			i++
		case r == '=':
			tokens = append(tokens, token{text: "="})
			i++
		case r == '!' && i+1 < len(runes) && runes[i+1] == '=':
			tokens = append(tokens, token{text: "!="})
			i += 2
		case r == '"' || r == '\'':
			var b strings.Builder
			j := i + 1
			closed := false
			for j < len(runes) {
				if runes[j] == '\\' && j+1 < len(runes) {
					b.WriteRune(runes[j+1])
					j += 2
					continue
				}
				if runes[j] == r {
					closed = true
					break
				}
				b.WriteRune(runes[j])
				j++
			}
			if !closed {
				return nil, fmt.Errorf("unterminated string in %q: %w", expr, session.ErrInvalidQuery)
			}
			tokens = append(tokens, token{text: b.String(), quoted: true})
			i = j + 1
		default:
			j := i
			for j < len(runes) && !unicode.IsSpace(runes[j]) && !strings.ContainsRune(`,="'!`, runes[j]) {
				j++
			}
			if j == i {
				return nil, fmt.Errorf("unexpected %q in %q: %w", r, expr, session.ErrInvalidQuery)
			}
			tokens = append(tokens, token{text: string(runes[i:j])})
			i = j
		}
	}
	return tokens, nil
}

func isKeyword(t token, word string) bool {
	return !t.quoted && strings.EqualFold(t.text, word)
}

// ParseQuery parses a query expression.
func ParseQuery(expr string) (*Query, error) {
	tokens, err := tokenize(expr)
	if err != nil {
		return nil, err
	}
	invalid := func(format string, args ...any) error {
		return fmt.Errorf("%s in %q: %w", fmt.Sprintf(format, args...), expr, session.ErrInvalidQuery)
	}
	if len(tokens) == 0 {
		return nil, invalid("empty query")
	}

	q := &Query{}
	pos := 0
	if isKeyword(tokens[0], "select") {
		pos = 1
		for {
			if pos >= len(tokens) || tokens[pos].quoted {
				return nil, invalid("expected attribute after select")
			}
			q.Select = append(q.Select, tokens[pos].text)
			pos++
			if pos < len(tokens) && tokens[pos].text == "," {
				pos++
				continue
			}
			break
		}
		if pos >= len(tokens) || !isKeyword(tokens[pos], "from") {
			return nil, invalid("expected from")
		}
		pos++
	}

	if pos >= len(tokens) || tokens[pos].quoted {
		return nil, invalid("expected entity type")
	}
	q.Type = tokens[pos].text
	pos++

	if pos == len(tokens) {
		return q, nil
	}
	if !isKeyword(tokens[pos], "where") {
		return nil, invalid("unexpected %q", tokens[pos].text)
	}
	pos++

	for {
		if pos >= len(tokens) || tokens[pos].quoted {
			return nil, invalid("expected attribute")
		}
		cond := Condition{Path: strings.Split(tokens[pos].text, ".")}
		for _, part := range cond.Path {
			if part == "" {
				return nil, invalid("bad attribute path %q", tokens[pos].text)
			}
		}
		pos++

		if pos >= len(tokens) {
			return nil, invalid("expected operator")
		}
		switch op := tokens[pos]; {
		case isKeyword(op, "is") || op.text == "=":
			pos++
			if pos < len(tokens) && isKeyword(tokens[pos], "not") {
				cond.Negate = true
				pos++
			}
		case isKeyword(op, "is_not") || op.text == "!=":
			cond.Negate = true
			pos++
		default:
			return nil, invalid("unsupported operator %q", op.text)
		}

		if pos >= len(tokens) {
			return nil, invalid("expected value")
		}
		value := tokens[pos]
		pos++
		if !value.quoted && (strings.EqualFold(value.text, "none") || strings.EqualFold(value.text, "null")) {
			cond.Value = nil
		} else {
			v := value.text
			cond.Value = &v
		}
		q.Conditions = append(q.Conditions, cond)

		if pos == len(tokens) {
			return q, nil
		}
		if !isKeyword(tokens[pos], "and") {
			return nil, invalid("unexpected %q", tokens[pos].text)
		}
		pos++
	}
}

// jsonPath returns the SQLite JSON path of an attribute.
func jsonPath(parts ...string) string {
	return "$." + strings.Join(parts, ".")
}

// buildSelect translates q into SQL over the entities table.
func buildSelect(q *Query) (string, []any, error) {
	types, err := concreteTypes(q.Type)
	if err != nil {
		return "", nil, err
	}
	for _, attr := range q.Select {
		if attr == "id" {
			continue
		}
		if _, ok := attrKindFor(types, strings.Split(attr, ".")[0]); !ok && attr != "link" {
			return "", nil, fmt.Errorf("%s has no attribute %q: %w", q.Type, attr, session.ErrInvalidQuery)
		}
	}

	sb := sqlbuilder.SQLite.NewSelectBuilder()
	sb.Select("id", "type", "data")
	sb.From("entities")

	where := []string{}
	if len(types) == 1 {
		where = append(where, sb.Equal("type", types[0]))
	} else {
		where = append(where, sb.In("type", sqlbuilder.Flatten(types)...))
	}

	for _, cond := range q.Conditions {
		expr, err := conditionExpr(sb, types, q.Type, cond)
		if err != nil {
			return "", nil, err
		}
		where = append(where, expr)
	}

	sb.Where(where...)
	sb.OrderBy("rowid")

	query, args := sb.Build()
	return query, args, nil
}

// conditionExpr renders one condition. Paths are attr, ref.id or
// ref.attr; the last form looks the referenced entity up by attribute.
func conditionExpr(sb *sqlbuilder.SelectBuilder, types []string, typeName string, cond Condition) (string, error) {
	head := cond.Path[0]
	if len(cond.Path) > 2 {
		return "", fmt.Errorf("path %q is too deep: %w", strings.Join(cond.Path, "."), session.ErrInvalidQuery)
	}

	var left string
	switch {
	case head == "id" && len(cond.Path) == 1:
		left = "id"
	default:
		kind, ok := attrKindFor(types, head)
		if !ok {
			return "", fmt.Errorf("%s has no attribute %q: %w", typeName, head, session.ErrInvalidQuery)
		}
		switch {
		case kind != attrRef && len(cond.Path) > 1:
			return "", fmt.Errorf("%s.%s is not a reference: %w", typeName, head, session.ErrInvalidQuery)
		case kind == attrRef && (len(cond.Path) == 1 || cond.Path[1] == "id"):
			left = fmt.Sprintf("json_extract(data, %s)", sb.Var(jsonPath(head, "id")))
		case kind == attrRef:
			sub := cond.Path[1]
			if !anyTypeHas(sub) {
				return "", fmt.Errorf("no entity type has attribute %q: %w", sub, session.ErrInvalidQuery)
			}
			inner := sqlbuilder.SQLite.NewSelectBuilder()
			inner.Select("id").From("entities")
			if cond.Value == nil {
				inner.Where(fmt.Sprintf("json_extract(data, %s) IS NULL", inner.Var(jsonPath(sub))))
			} else {
				inner.Where(fmt.Sprintf("CAST(json_extract(data, %s) AS TEXT) = %s", inner.Var(jsonPath(sub)), inner.Var(*cond.Value)))
			}
			op := "IN"
			if cond.Negate {
				op = "NOT IN"
			}
			return fmt.Sprintf("json_extract(data, %s) %s (%s)", sb.Var(jsonPath(head, "id")), op, sb.Var(inner)), nil
		default:
			left = fmt.Sprintf("CAST(json_extract(data, %s) AS TEXT)", sb.Var(jsonPath(head)))
		}
	}

	if cond.Value == nil {
		if cond.Negate {
			return left + " IS NOT NULL", nil
		}
		return left + " IS NULL", nil
	}
	if cond.Negate {
		return fmt.Sprintf("%s IS NOT %s", left, sb.Var(*cond.Value)), nil
	}
	return fmt.Sprintf("%s = %s", left, sb.Var(*cond.Value)), nil
}

func anyTypeHas(attr string) bool {
	if attr == "id" {
		return true
	}
	for _, def := range entityTypes {
		if _, ok := def.attrs[attr]; ok {
			return true
		}
	}
	return false
}
