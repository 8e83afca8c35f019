package referral

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	apperrors "github.com/danz-app/danz/internal/platform/errors"
	"go.einride.tech/aip/filtering"
	"go.einride.tech/aip/ordering"
	expr "google.golang.org/genproto/googleapis/api/expr/v1alpha1"
)

// Column is one filterable and sortable column of a table.
type Column struct {
	Name string
	Type *expr.Type
}

// Table describes a read-only table: its path, selected columns and the
// columns filters and orderings may name.
type Table struct {
	Name    string
	Select  string
	Columns []Column
	// DefaultOrder applies when a request has no order_by.
	DefaultOrder string
}

func (t Table) declarations() (*filtering.Declarations, error) {
	opts := []filtering.DeclarationOption{filtering.DeclareStandardFunctions()}
	for _, col := range t.Columns {
		opts = append(opts, filtering.DeclareIdent(col.Name, col.Type))
	}
	return filtering.NewDeclarations(opts...)
}

func (t Table) hasColumn(name string) bool {
	for _, col := range t.Columns {
		if col.Name == name {
			return true
		}
	}
	return false
}

// Query is a list request against a table.
type Query struct {
	// Filter is an AIP-160 filter expression.
	Filter string
	// OrderBy is an AIP-132 ordering such as "created_at desc, id".
	OrderBy string
	Limit   int
	Offset  int
}

// Values renders q as PostgREST query parameters for t.
func (t Table) Values(q Query) (url.Values, error) {
	values := url.Values{}
	if t.Select != "" {
		values.Set("select", t.Select)
	}
	if err := t.addFilter(values, q.Filter); err != nil {
		return nil, err
	}
	order, err := t.order(q.OrderBy)
	if err != nil {
		return nil, err
	}
	if order != "" {
		values.Set("order", order)
	}
	if q.Limit > 0 {
		values.Set("limit", strconv.Itoa(q.Limit))
	}
	if q.Offset > 0 {
		values.Set("offset", strconv.Itoa(q.Offset))
	}
	return values, nil
}

// filterRequest adapts a raw filter string to filtering.Request.
type filterRequest string

func (f filterRequest) GetFilter() string { return string(f) }

func (t Table) addFilter(values url.Values, filter string) error {
	if strings.TrimSpace(filter) == "" {
		return nil
	}
	decls, err := t.declarations()
	if err != nil {
		return fmt.Errorf("create declarations: %w", err)
	}
	parsed, err := filtering.ParseFilter(filterRequest(filter), decls)
	if err != nil {
		return apperrors.Wrap(apperrors.CodeBadUserInput, "invalid filter", err)
	}
	// A top-level conjunction becomes one parameter per term, the form
	// PostgREST combines with AND.
	for _, term := range conjuncts(parsed.CheckedExpr.GetExpr()) {
		key, value, err := topLevel(term)
		if err != nil {
			return apperrors.Wrap(apperrors.CodeBadUserInput, "unsupported filter", err)
		}
		values.Add(key, value)
	}
	return nil
}

func (t Table) order(orderBy string) (string, error) {
	if strings.TrimSpace(orderBy) == "" {
		orderBy = t.DefaultOrder
	}
	if strings.TrimSpace(orderBy) == "" {
		return "", nil
	}
	var parsed ordering.OrderBy
	if err := parsed.UnmarshalString(orderBy); err != nil {
		return "", apperrors.Wrap(apperrors.CodeBadUserInput, "invalid order_by", err)
	}
	parts := make([]string, 0, len(parsed.Fields))
	for _, field := range parsed.Fields {
		if !t.hasColumn(field.Path) {
			return "", apperrors.New(apperrors.CodeBadUserInput, "cannot order by "+field.Path)
		}
		dir := "asc"
		if field.Desc {
			dir = "desc"
		}
		parts = append(parts, field.Path+"."+dir)
	}
	return strings.Join(parts, ","), nil
}

var operators = map[string]string{
	"_==_": "eq", "=": "eq",
	"_!=_": "neq", "!=": "neq",
	"_<_": "lt", "<": "lt",
	"_<=_": "lte", "<=": "lte",
	"_>_": "gt", ">": "gt",
	"_>=_": "gte", ">=": "gte",
}

func call(e *expr.Expr) (*expr.Expr_Call, bool) {
	kind, ok := e.GetExprKind().(*expr.Expr_CallExpr)
	if !ok {
		return nil, false
	}
	return kind.CallExpr, true
}

func isAnd(fn string) bool { return fn == "_&&_" || fn == "AND" }
func isOr(fn string) bool  { return fn == "_||_" || fn == "OR" }
func isNot(fn string) bool { return fn == "NOT" || fn == "_!_" || fn == "!_" }

func conjuncts(e *expr.Expr) []*expr.Expr {
	if c, ok := call(e); ok && isAnd(c.Function) && len(c.Args) >= 2 {
		var out []*expr.Expr
		for _, arg := range c.Args {
			out = append(out, conjuncts(arg)...)
		}
		return out
	}
	return []*expr.Expr{e}
}

func disjuncts(e *expr.Expr) []*expr.Expr {
	if c, ok := call(e); ok && isOr(c.Function) && len(c.Args) >= 2 {
		var out []*expr.Expr
		for _, arg := range c.Args {
			out = append(out, disjuncts(arg)...)
		}
		return out
	}
	return []*expr.Expr{e}
}

// topLevel renders one conjunct as a query parameter: "col=op.value" for
// comparisons, "or=(...)" for disjunctions.
func topLevel(e *expr.Expr) (string, string, error) {
	c, ok := call(e)
	if !ok {
		return "", "", fmt.Errorf("unsupported expression type: %T", e.GetExprKind())
	}
	switch {
	case isOr(c.Function):
		inner, err := joinTerms(disjuncts(e))
		if err != nil {
			return "", "", err
		}
		return "or", "(" + inner + ")", nil
	case isNot(c.Function):
		if len(c.Args) != 1 {
			return "", "", fmt.Errorf("NOT requires 1 argument")
		}
		col, op, value, err := comparison(c.Args[0])
		if err != nil {
			return "", "", err
		}
		return col, "not." + op + "." + value, nil
	default:
		col, op, value, err := comparison(e)
		if err != nil {
			return "", "", err
		}
		return col, op + "." + value, nil
	}
}

// term renders e in PostgREST's logical-tree syntax.
func term(e *expr.Expr) (string, error) {
	c, ok := call(e)
	if !ok {
		return "", fmt.Errorf("unsupported expression type: %T", e.GetExprKind())
	}
	switch {
	case isAnd(c.Function):
		inner, err := joinTerms(conjuncts(e))
		if err != nil {
			return "", err
		}
		return "and(" + inner + ")", nil
	case isOr(c.Function):
		inner, err := joinTerms(disjuncts(e))
		if err != nil {
			return "", err
		}
		return "or(" + inner + ")", nil
	case isNot(c.Function):
		if len(c.Args) != 1 {
			return "", fmt.Errorf("NOT requires 1 argument")
		}
		inner, err := term(c.Args[0])
		if err != nil {
			return "", err
		}
		return "not." + inner, nil
	default:
		col, op, value, err := comparison(e)
		if err != nil {
			return "", err
		}
		return col + "." + op + "." + quote(value), nil
	}
}

func joinTerms(exprs []*expr.Expr) (string, error) {
	parts := make([]string, 0, len(exprs))
	for _, e := range exprs {
		part, err := term(e)
		if err != nil {
			return "", err
		}
		parts = append(parts, part)
	}
	return strings.Join(parts, ","), nil
}

func comparison(e *expr.Expr) (column, op, value string, err error) {
	c, ok := call(e)
	if !ok {
		return "", "", "", fmt.Errorf("expected comparison, got %T", e.GetExprKind())
	}
	op, ok = operators[c.Function]
	if !ok {
		return "", "", "", fmt.Errorf("unsupported function: %s", c.Function)
	}
	if len(c.Args) != 2 {
		return "", "", "", fmt.Errorf("comparison requires 2 arguments")
	}
	ident, ok := c.Args[0].GetExprKind().(*expr.Expr_IdentExpr)
	if !ok {
		return "", "", "", fmt.Errorf("expected identifier, got %T", c.Args[0].GetExprKind())
	}
	value, err = literal(c.Args[1])
	if err != nil {
		return "", "", "", err
	}
	return ident.IdentExpr.GetName(), op, value, nil
}

func literal(e *expr.Expr) (string, error) {
	switch kind := e.GetExprKind().(type) {
	case *expr.Expr_ConstExpr:
		switch v := kind.ConstExpr.GetConstantKind().(type) {
		case *expr.Constant_StringValue:
			return v.StringValue, nil
		case *expr.Constant_Int64Value:
			return strconv.FormatInt(v.Int64Value, 10), nil
		case *expr.Constant_Uint64Value:
			return strconv.FormatUint(v.Uint64Value, 10), nil
		case *expr.Constant_DoubleValue:
			return strconv.FormatFloat(v.DoubleValue, 'f', -1, 64), nil
		case *expr.Constant_BoolValue:
			return strconv.FormatBool(v.BoolValue), nil
		default:
			return "", fmt.Errorf("unsupported constant type: %T", v)
		}
	case *expr.Expr_CallExpr:
		if kind.CallExpr.GetFunction() == "timestamp" && len(kind.CallExpr.GetArgs()) == 1 {
			return timestampLiteral(kind.CallExpr.GetArgs()[0])
		}
		return "", fmt.Errorf("unsupported function in value position: %s", kind.CallExpr.GetFunction())
	default:
		return "", fmt.Errorf("expected constant or timestamp, got %T", kind)
	}
}

func timestampLiteral(e *expr.Expr) (string, error) {
	c, ok := e.GetExprKind().(*expr.Expr_ConstExpr)
	if !ok {
		return "", fmt.Errorf("timestamp argument must be a constant string")
	}
	s, ok := c.ConstExpr.GetConstantKind().(*expr.Constant_StringValue)
	if !ok {
		return "", fmt.Errorf("timestamp argument must be a string")
	}
	t, err := time.Parse(time.RFC3339Nano, s.StringValue)
	if err != nil {
		return "", fmt.Errorf("invalid timestamp format: %s", s.StringValue)
	}
	return t.UTC().Format(time.RFC3339Nano), nil
}

// quote wraps values holding PostgREST's reserved characters in double
// quotes for use inside logical trees.
func quote(v string) string {
	if !strings.ContainsAny(v, `,.:()" `) {
		return v
	}
	return `"` + strings.ReplaceAll(v, `"`, `\"`) + `"`
}
