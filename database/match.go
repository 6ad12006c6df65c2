package database

import (
	"cmp"
	"fmt"
	"slices"

	"conference-central/model"
)

// filterAndSort evaluates q's conditions, order and limit in memory.
func filterAndSort(cs []model.Conference, q Query) ([]model.Conference, error) {
	for _, cond := range q.Conditions {
		if _, ok := conferenceFields[cond.Field]; !ok {
			return nil, fmt.Errorf("unknown conference field %q", cond.Field)
		}
	}
	for _, f := range q.Order {
		if info, ok := conferenceFields[f]; !ok || !info.Sortable {
			return nil, fmt.Errorf("cannot sort by %q", f)
		}
	}

	out := cs[:0]
	for _, c := range cs {
		ok, err := matchesAll(c, q.Conditions)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, c)
		}
	}

	slices.SortStableFunc(out, func(a, b model.Conference) int {
		for _, f := range q.Order {
			info := conferenceFields[f]
			if c := compareScalar(info.value(a), info.value(b)); c != 0 {
				return c
			}
		}
		return cmp.Compare(a.Key().StorageID(), b.Key().StorageID())
	})

	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

func matchesAll(c model.Conference, conds []Condition) (bool, error) {
	for _, cond := range conds {
		ok, err := matches(c, cond)
		if err != nil || !ok {
			return false, err
		}
	}
	return true, nil
}

func matches(c model.Conference, cond Condition) (bool, error) {
	info := conferenceFields[cond.Field]
	if info.Type == StringListField {
		want, ok := cond.Value.(string)
		if !ok {
			return false, fmt.Errorf("field %s needs a string value, got %T", cond.Field, cond.Value)
		}
		for _, v := range info.value(c).([]string) {
			if compareOp(compareScalar(v, want), cond.Op) {
				return true, nil
			}
		}
		return false, nil
	}

	got := info.value(c)
	switch got.(type) {
	case int:
		if _, ok := cond.Value.(int); !ok {
			return false, fmt.Errorf("field %s needs an int value, got %T", cond.Field, cond.Value)
		}
	case string:
		if _, ok := cond.Value.(string); !ok {
			return false, fmt.Errorf("field %s needs a string value, got %T", cond.Field, cond.Value)
		}
	}
	return compareOp(compareScalar(got, cond.Value), cond.Op), nil
}

func compareOp(c int, op Operator) bool {
	switch op {
	case OpEqual:
		return c == 0
	case OpLess:
		return c < 0
	case OpLessOrEqual:
		return c <= 0
	case OpGreater:
		return c > 0
	case OpGreaterOrEqual:
		return c >= 0
	default:
		return false
	}
}

// compareScalar orders two values of the same scalar type.
func compareScalar(a, b any) int {
	switch av := a.(type) {
	case int:
		return cmp.Compare(av, b.(int))
	case string:
		return cmp.Compare(av, b.(string))
	default:
		return 0
	}
}
