// Package query plans conference read queries.
//
// The store allows at most one field per query to carry an inequality
// (range) filter, and the sort order must start with that field. The
// planner rejects the first kind of mistake and silently repairs the
// second by moving the inequality field to the front of the sort order.
package query

import (
	"context"
	"fmt"
	"iter"
	"math"
	"slices"
	"strconv"
	"strings"

	"conference-central/apperrors"
	"conference-central/database"
	"conference-central/keys"
	"conference-central/logging"
	"conference-central/metrics"
	"conference-central/model"
)

// DefaultSort is used when a query names no sort field.
const DefaultSort = "name"

// Filter is one caller-supplied predicate.
type Filter struct {
	Field    string `json:"field" validate:"required"`
	Operator string `json:"operator" validate:"required"`
	Value    any    `json:"value"`
}

// Form is the body of a conference query request.
type Form struct {
	Filters []Filter `json:"filters" validate:"max=20,dive"`
	Sort    []string `json:"sort" validate:"max=5"`
}

// fieldAliases maps the upper-case names older clients send.
var fieldAliases = map[string]string{
	"CITY":           "city",
	"TOPIC":          "topics",
	"TOPICS":         "topics",
	"MONTH":          "month",
	"MAX_ATTENDEES":  "maxAttendees",
	"NAME":           "name",
	"SEATSAVAILABLE": "seatsAvailable",
}

// ParseOperator accepts symbolic (=, <, <=, >, >=) and named (EQ, EQUALS,
// LT, LTE, LE, GT, GTE, GE) operators, case-insensitively.
func ParseOperator(s string) (database.Operator, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "=", "==", "EQ", "EQUALS":
		return database.OpEqual, nil
	case "<", "LT", "LESS_THAN":
		return database.OpLess, nil
	case "<=", "LE", "LTE", "LESS_THAN_OR_EQUAL":
		return database.OpLessOrEqual, nil
	case ">", "GT", "GREATER_THAN":
		return database.OpGreater, nil
	case ">=", "GE", "GTE", "GREATER_THAN_OR_EQUAL":
		return database.OpGreaterOrEqual, nil
	default:
		return "", apperrors.Newf(apperrors.InvalidQuery, "unknown operator %q", s)
	}
}

func resolveField(name string) (database.FieldInfo, error) {
	if f, ok := database.ConferenceField(name); ok {
		return f, nil
	}
	if alias, ok := fieldAliases[strings.ToUpper(name)]; ok {
		if f, ok := database.ConferenceField(alias); ok {
			return f, nil
		}
	}
	return database.FieldInfo{}, apperrors.Newf(apperrors.InvalidQuery, "unknown field %q", name)
}

// coerce converts a decoded JSON value to the field's type.
func coerce(f database.FieldInfo, v any) (any, error) {
	if f.Type != database.IntField {
		s, ok := v.(string)
		if !ok {
			return nil, apperrors.Newf(apperrors.InvalidQuery, "field %s needs a string value", f.Name)
		}
		return s, nil
	}

	switch n := v.(type) {
	case int:
		return n, nil
	case int64:
		return int(n), nil
	case float64:
		if n != math.Trunc(n) || math.IsInf(n, 0) || math.IsNaN(n) {
			return nil, apperrors.Newf(apperrors.InvalidQuery, "field %s needs an integer, got %v", f.Name, n)
		}
		if n < math.MinInt64 || n >= math.MaxInt64 {
			return nil, apperrors.Newf(apperrors.InvalidQuery, "field %s value %v is out of range", f.Name, n)
		}
		return int(n), nil
	case string:
		i, err := strconv.Atoi(strings.TrimSpace(n))
		if err != nil {
			return nil, apperrors.Newf(apperrors.InvalidQuery, "field %s needs an integer, got %q", f.Name, n)
		}
		return i, nil
	default:
		return nil, apperrors.Newf(apperrors.InvalidQuery, "field %s needs an integer, got %T", f.Name, v)
	}
}

// Plan is a validated query ready to run.
type Plan struct {
	Query database.Query
	// Corrected is set when the requested sort order had to be changed to
	// start with the inequality field.
	Corrected bool
}

// Planner builds Plans and runs them against a store.
type Planner struct {
	store     database.EntityStore
	pageLimit int
}

func NewPlanner(store database.EntityStore, pageLimit int) *Planner {
	return &Planner{store: store, pageLimit: pageLimit}
}

// Plan validates filters and sort fields. Equality on topics matches any
// topic of a conference; topics cannot carry an inequality or be sorted on.
func (p *Planner) Plan(filters []Filter, sort ...string) (Plan, error) {
	var (
		conds      = make([]database.Condition, 0, len(filters))
		inequality string
	)
	for _, flt := range filters {
		f, err := resolveField(flt.Field)
		if err != nil {
			return Plan{}, err
		}
		op, err := ParseOperator(flt.Operator)
		if err != nil {
			return Plan{}, err
		}
		if op.IsOrdering() {
			if !f.Sortable {
				return Plan{}, apperrors.Newf(apperrors.InvalidQuery, "field %s only supports equality", f.Name)
			}
			if inequality != "" && inequality != f.Name {
				return Plan{}, apperrors.Newf(apperrors.InvalidQuery,
					"inequality filters are allowed on one field only, got %s and %s", inequality, f.Name)
			}
			inequality = f.Name
		}
		v, err := coerce(f, flt.Value)
		if err != nil {
			return Plan{}, err
		}
		conds = append(conds, database.Condition{Field: f.Name, Op: op, Value: v})
	}

	order := make([]string, 0, len(sort)+1)
	for _, s := range sort {
		f, err := resolveField(s)
		if err != nil {
			return Plan{}, err
		}
		if !f.Sortable {
			return Plan{}, apperrors.Newf(apperrors.InvalidQuery, "cannot sort by %s", f.Name)
		}
		if !slices.Contains(order, f.Name) {
			order = append(order, f.Name)
		}
	}
	if len(order) == 0 {
		order = append(order, DefaultSort)
	}

	corrected := false
	if inequality != "" && order[0] != inequality {
		rest := slices.DeleteFunc(order, func(s string) bool { return s == inequality })
		order = append([]string{inequality}, rest...)
		corrected = true
		metrics.QueryCorrections.Inc()
		logging.Debug().
			Str("inequality_field", inequality).
			Strs("sort", order).
			Msg("sort order corrected to start with the inequality field")
	}

	return Plan{
		Query: database.Query{
			Conditions: conds,
			Order:      order,
			Limit:      p.pageLimit,
		},
		Corrected: corrected,
	}, nil
}

// PlanOwnedBy lists the conferences owned by a profile, ordered by name.
func (p *Planner) PlanOwnedBy(owner keys.Key) (Plan, error) {
	if owner.Kind != keys.KindProfile || owner.IsZero() {
		return Plan{}, apperrors.Newf(apperrors.InvalidQuery, "ancestor must be a profile key, got %s", owner)
	}
	return Plan{
		Query: database.Query{
			Ancestor: &owner,
			Order:    []string{DefaultSort},
			Limit:    p.pageLimit,
		},
	}, nil
}

// Run returns the lazy result set of plan.
func (p *Planner) Run(plan Plan) *Results {
	return &Results{store: p.store, query: plan.Query}
}

// Results is a finite, ordered result set. Nothing is read until it is
// iterated, and every iteration re-runs the query.
type Results struct {
	store database.EntityStore
	query database.Query
}

func (r *Results) All(ctx context.Context) ([]model.Conference, error) {
	cs, err := r.store.Query(ctx, r.query)
	if err != nil {
		return nil, fmt.Errorf("query conferences: %w", err)
	}
	return cs, nil
}

// Iter yields each conference in order. On failure it yields a single
// error and stops.
func (r *Results) Iter(ctx context.Context) iter.Seq2[model.Conference, error] {
	return func(yield func(model.Conference, error) bool) {
		cs, err := r.All(ctx)
		if err != nil {
			yield(model.Conference{}, err)
			return
		}
		for _, c := range cs {
			if !yield(c, nil) {
				return
			}
		}
	}
}
