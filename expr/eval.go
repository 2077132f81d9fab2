package expr

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

// Evaluate evaluates a predicate expression against the scope and returns
// its boolean result.
//
// Grammar, in ascending precedence:
//
//	or    := and ("||" and)*
//	and   := cmp ("&&" cmp)*
//	cmp   := add (("=="|"!="|">"|"<"|">="|"<=") add)?
//	add   := mul (("+"|"-") mul)*
//	mul   := unary (("*"|"/") unary)*
//	unary := ("!"|"-") unary | primary
//
// Primaries are numbers, quoted strings, true/false, parenthesized
// expressions, and dot-path identifiers resolved through the scope.
// Unresolved identifiers fail with a ResolutionError.
func Evaluate(expression string, scope *Scope) (bool, error) {
	expression = strings.TrimSpace(expression)
	if expression == "" {
		return false, fmt.Errorf("empty predicate")
	}

	tokens, err := tokenize(expression)
	if err != nil {
		return false, err
	}

	p := &parser{tokens: tokens, scope: scope}
	val, err := p.parseOr()
	if err != nil {
		return false, err
	}
	if p.pos < len(p.tokens) {
		return false, fmt.Errorf("unexpected token %q", p.tokens[p.pos].value)
	}
	return truthy(val), nil
}

// CheckSyntax parses the expression without resolving identifiers. The
// graph compiler uses it to reject malformed predicates at compile time,
// when concrete state values do not exist yet.
func CheckSyntax(expression string) error {
	expression = strings.TrimSpace(expression)
	if expression == "" {
		return fmt.Errorf("empty predicate")
	}
	tokens, err := tokenize(expression)
	if err != nil {
		return err
	}
	p := &parser{tokens: tokens, syntaxOnly: true}
	if _, err := p.parseOr(); err != nil {
		return err
	}
	if p.pos < len(p.tokens) {
		return fmt.Errorf("unexpected token %q", p.tokens[p.pos].value)
	}
	return nil
}

type tokenKind int

const (
	tkNumber tokenKind = iota
	tkString
	tkIdent
	tkOp
	tkLParen
	tkRParen
)

type token struct {
	kind  tokenKind
	value string
}

func tokenize(input string) ([]token, error) {
	var tokens []token
	runes := []rune(input)
	i := 0

	for i < len(runes) {
		ch := runes[i]

		if unicode.IsSpace(ch) {
			i++
			continue
		}
		if ch == '(' {
			tokens = append(tokens, token{tkLParen, "("})
			i++
			continue
		}
		if ch == ')' {
			tokens = append(tokens, token{tkRParen, ")"})
			i++
			continue
		}
		if ch == '"' || ch == '\'' {
			lit, next, err := readString(runes, i)
			if err != nil {
				return nil, err
			}
			tokens = append(tokens, token{tkString, lit})
			i = next
			continue
		}
		if i+1 < len(runes) {
			switch two := string(runes[i : i+2]); two {
			case "==", "!=", ">=", "<=", "&&", "||":
				tokens = append(tokens, token{tkOp, two})
				i += 2
				continue
			}
		}
		switch ch {
		case '>', '<', '!', '+', '-', '*', '/':
			tokens = append(tokens, token{tkOp, string(ch)})
			i++
			continue
		}
		if isDigit(ch) {
			lit, next := readNumber(runes, i)
			tokens = append(tokens, token{tkNumber, lit})
			i = next
			continue
		}
		if isIdentStart(ch) {
			lit, next := readIdent(runes, i)
			tokens = append(tokens, token{tkIdent, lit})
			i = next
			continue
		}

		return nil, fmt.Errorf("unexpected character %q at position %d", string(ch), i)
	}
	return tokens, nil
}

func readString(runes []rune, start int) (string, int, error) {
	quote := runes[start]
	var sb strings.Builder
	i := start + 1
	for i < len(runes) {
		if runes[i] == '\\' && i+1 < len(runes) {
			sb.WriteRune(runes[i+1])
			i += 2
			continue
		}
		if runes[i] == quote {
			return sb.String(), i + 1, nil
		}
		sb.WriteRune(runes[i])
		i++
	}
	return "", 0, fmt.Errorf("unterminated string at position %d", start)
}

func readNumber(runes []rune, start int) (string, int) {
	i := start
	for i < len(runes) && isDigit(runes[i]) {
		i++
	}
	if i < len(runes) && runes[i] == '.' {
		i++
		for i < len(runes) && isDigit(runes[i]) {
			i++
		}
	}
	return string(runes[start:i]), i
}

func readIdent(runes []rune, start int) (string, int) {
	i := start
	for i < len(runes) && isIdentPart(runes[i]) {
		i++
	}
	return string(runes[start:i]), i
}

func isDigit(ch rune) bool      { return ch >= '0' && ch <= '9' }
func isIdentStart(ch rune) bool { return unicode.IsLetter(ch) || ch == '_' }
func isIdentPart(ch rune) bool {
	return unicode.IsLetter(ch) || unicode.IsDigit(ch) || ch == '_' || ch == '.'
}

type parser struct {
	tokens     []token
	pos        int
	scope      *Scope
	syntaxOnly bool
}

func (p *parser) peek() *token {
	if p.pos < len(p.tokens) {
		return &p.tokens[p.pos]
	}
	return nil
}

func (p *parser) peekOp(values ...string) string {
	t := p.peek()
	if t == nil || t.kind != tkOp {
		return ""
	}
	for _, v := range values {
		if t.value == v {
			return v
		}
	}
	return ""
}

func (p *parser) advance() token {
	t := p.tokens[p.pos]
	p.pos++
	return t
}

func (p *parser) parseOr() (any, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.peekOp("||") != "" {
		p.advance()
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = truthy(left) || truthy(right)
	}
	return left, nil
}

func (p *parser) parseAnd() (any, error) {
	left, err := p.parseComparison()
	if err != nil {
		return nil, err
	}
	for p.peekOp("&&") != "" {
		p.advance()
		right, err := p.parseComparison()
		if err != nil {
			return nil, err
		}
		left = truthy(left) && truthy(right)
	}
	return left, nil
}

func (p *parser) parseComparison() (any, error) {
	left, err := p.parseAdditive()
	if err != nil {
		return nil, err
	}
	if op := p.peekOp("==", "!=", ">", "<", ">=", "<="); op != "" {
		p.advance()
		right, err := p.parseAdditive()
		if err != nil {
			return nil, err
		}
		return compare(left, op, right), nil
	}
	return left, nil
}

func (p *parser) parseAdditive() (any, error) {
	left, err := p.parseMultiplicative()
	if err != nil {
		return nil, err
	}
	for {
		op := p.peekOp("+", "-")
		if op == "" {
			return left, nil
		}
		p.advance()
		right, err := p.parseMultiplicative()
		if err != nil {
			return nil, err
		}
		if p.syntaxOnly {
			left = float64(0)
			continue
		}
		left, err = arithmetic(left, op, right)
		if err != nil {
			return nil, err
		}
	}
}

func (p *parser) parseMultiplicative() (any, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for {
		op := p.peekOp("*", "/")
		if op == "" {
			return left, nil
		}
		p.advance()
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		if p.syntaxOnly {
			left = float64(0)
			continue
		}
		left, err = arithmetic(left, op, right)
		if err != nil {
			return nil, err
		}
	}
}

func (p *parser) parseUnary() (any, error) {
	switch p.peekOp("!", "-") {
	case "!":
		p.advance()
		val, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return !truthy(val), nil
	case "-":
		p.advance()
		val, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		if p.syntaxOnly {
			return float64(0), nil
		}
		f, ok := asFloat(val)
		if !ok {
			return nil, fmt.Errorf("cannot negate %T", val)
		}
		return -f, nil
	}
	return p.parsePrimary()
}

func (p *parser) parsePrimary() (any, error) {
	t := p.peek()
	if t == nil {
		return nil, fmt.Errorf("unexpected end of predicate")
	}

	switch t.kind {
	case tkNumber:
		p.advance()
		return strconv.ParseFloat(t.value, 64)

	case tkString:
		p.advance()
		return t.value, nil

	case tkIdent:
		p.advance()
		switch t.value {
		case "true":
			return true, nil
		case "false":
			return false, nil
		}
		if p.syntaxOnly {
			return nil, nil
		}
		v, ok := p.scope.Lookup(t.value)
		if !ok {
			return nil, p.scope.fail(t.value)
		}
		return v, nil

	case tkLParen:
		p.advance()
		val, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if p.peek() == nil || p.peek().kind != tkRParen {
			return nil, fmt.Errorf("expected closing parenthesis")
		}
		p.advance()
		return val, nil
	}
	return nil, fmt.Errorf("unexpected token %q", t.value)
}

// compare evaluates a comparison, numerically when both sides convert,
// falling back to lexicographic string comparison otherwise. nil orders
// below every non-nil value.
func compare(left any, op string, right any) bool {
	if left == nil && right == nil {
		return op == "==" || op == ">=" || op == "<="
	}
	if left == nil || right == nil {
		switch op {
		case "!=":
			return true
		case "==":
			return false
		}
		if left == nil {
			return op == "<" || op == "<="
		}
		return op == ">" || op == ">="
	}

	if lf, lok := asFloat(left); lok {
		if rf, rok := asFloat(right); rok {
			switch op {
			case "==":
				return lf == rf
			case "!=":
				return lf != rf
			case ">":
				return lf > rf
			case "<":
				return lf < rf
			case ">=":
				return lf >= rf
			case "<=":
				return lf <= rf
			}
		}
	}

	ls, rs := Stringify(left), Stringify(right)
	switch op {
	case "==":
		return ls == rs
	case "!=":
		return ls != rs
	case ">":
		return ls > rs
	case "<":
		return ls < rs
	case ">=":
		return ls >= rs
	case "<=":
		return ls <= rs
	}
	return false
}

func arithmetic(left any, op string, right any) (any, error) {
	lf, lok := asFloat(left)
	rf, rok := asFloat(right)
	if !lok || !rok {
		if op == "+" {
			// String concatenation is the one non-numeric case.
			ls, lIsStr := left.(string)
			rs, rIsStr := right.(string)
			if lIsStr && rIsStr {
				return ls + rs, nil
			}
		}
		return nil, fmt.Errorf("operator %q requires numeric operands, got %T and %T", op, left, right)
	}
	switch op {
	case "+":
		return lf + rf, nil
	case "-":
		return lf - rf, nil
	case "*":
		return lf * rf, nil
	case "/":
		if rf == 0 {
			return nil, fmt.Errorf("division by zero")
		}
		return lf / rf, nil
	}
	return nil, fmt.Errorf("unknown operator %q", op)
}

func truthy(v any) bool {
	switch val := v.(type) {
	case nil:
		return false
	case bool:
		return val
	case float64:
		return val != 0
	case int:
		return val != 0
	case int64:
		return val != 0
	case string:
		return val != "" && val != "false" && val != "0"
	default:
		return true
	}
}

func asFloat(v any) (float64, bool) {
	switch val := v.(type) {
	case float64:
		return val, true
	case float32:
		return float64(val), true
	case int:
		return float64(val), true
	case int64:
		return float64(val), true
	default:
		return 0, false
	}
}
