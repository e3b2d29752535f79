package kever

import (
	"encoding/json"
	"errors"
	"math/big"
	"strconv"
)

var (
	ErrBadThreshold = errors.New("kever: malformed signing threshold")
)

// Tholder is a signing-threshold holder: either a numeric M-of-N threshold
// or a weighted form -- one or more clauses of rational weights where every
// clause's selected weights must sum to at least one. Satisfy decides
// whether a signer-index set meets the threshold.
type Tholder struct {
	weighted bool
	num      uint64
	clauses  [][]*big.Rat
	size     int
	raw      any
}

// NewTholder parses a threshold field value: a hex string for the numeric
// form, or a list of fraction strings (optionally a list of such lists for
// multi-clause thresholds) for the weighted form.
func NewTholder(v any) (*Tholder, error) {
	switch tv := v.(type) {
	case nil:
		return nil, ErrBadThreshold
	case string:
		n, err := strconv.ParseUint(tv, 16, 64)
		if err != nil {
			return nil, ErrBadThreshold
		}
		return &Tholder{num: n, size: int(n), raw: v}, nil
	case int:
		if tv < 0 {
			return nil, ErrBadThreshold
		}
		return &Tholder{num: uint64(tv), size: tv, raw: v}, nil
	case uint64:
		return &Tholder{num: tv, size: int(tv), raw: v}, nil
	case []string:
		clause, err := parseClause(anyList(tv))
		if err != nil {
			return nil, err
		}
		return &Tholder{weighted: true, clauses: [][]*big.Rat{clause}, size: len(clause), raw: v}, nil
	case []any:
		return parseWeighted(tv)
	default:
		return nil, ErrBadThreshold
	}
}

func anyList(ss []string) []any {
	out := make([]any, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}

func parseWeighted(lst []any) (*Tholder, error) {
	if len(lst) == 0 {
		return nil, ErrBadThreshold
	}
	// a list of lists is the multi-clause form; a flat list is one clause
	if _, nested := lst[0].([]any); nested {
		clauses := make([][]*big.Rat, 0, len(lst))
		size := 0
		for _, e := range lst {
			inner, ok := e.([]any)
			if !ok {
				return nil, ErrBadThreshold
			}
			clause, err := parseClause(inner)
			if err != nil {
				return nil, err
			}
			clauses = append(clauses, clause)
			size += len(clause)
		}
		return &Tholder{weighted: true, clauses: clauses, size: size, raw: lst}, nil
	}
	clause, err := parseClause(lst)
	if err != nil {
		return nil, err
	}
	return &Tholder{weighted: true, clauses: [][]*big.Rat{clause}, size: len(clause), raw: lst}, nil
}

func parseClause(lst []any) ([]*big.Rat, error) {
	if len(lst) == 0 {
		return nil, ErrBadThreshold
	}
	clause := make([]*big.Rat, 0, len(lst))
	for _, e := range lst {
		s, ok := e.(string)
		if !ok {
			return nil, ErrBadThreshold
		}
		r, ok := new(big.Rat).SetString(s)
		if !ok || r.Sign() < 0 || r.Cmp(big.NewRat(1, 1)) > 0 {
			return nil, ErrBadThreshold
		}
		clause = append(clause, r)
	}
	return clause, nil
}

// Weighted reports whether the threshold is the weighted form.
func (t *Tholder) Weighted() bool { return t.weighted }

// Num returns the numeric threshold and whether the form is numeric.
func (t *Tholder) Num() (uint64, bool) { return t.num, !t.weighted }

// Size returns the number of key slots the threshold covers: the weight
// count for weighted thresholds, the threshold value itself for numeric
// ones (a key list must be at least this long).
func (t *Tholder) Size() int { return t.size }

// Satisfy decides whether the deduplicated signer-index set meets the
// threshold. A numeric threshold of zero is satisfiable by the empty set;
// that is the only way an empty exposure set passes a prior-next check
// (spec.md §9 open question 1).
func (t *Tholder) Satisfy(indices []int) bool {
	seen := map[int]bool{}
	for _, i := range indices {
		if i >= 0 {
			seen[i] = true
		}
	}
	if !t.weighted {
		return uint64(len(seen)) >= t.num
	}
	one := big.NewRat(1, 1)
	offset := 0
	for _, clause := range t.clauses {
		sum := new(big.Rat)
		for j, w := range clause {
			if seen[offset+j] {
				sum.Add(sum, w)
			}
		}
		if sum.Cmp(one) < 0 {
			return false
		}
		offset += len(clause)
	}
	return true
}

// Sith renders the threshold back to the field value it was parsed from.
func (t *Tholder) Sith() any { return t.raw }

// SithText renders a threshold field value as compact text for the
// persisted key-state record: hex for the numeric form, JSON for weighted.
func SithText(v any) string {
	switch tv := v.(type) {
	case string:
		return tv
	case nil:
		return ""
	default:
		b, err := json.Marshal(tv)
		if err != nil {
			return ""
		}
		return string(b)
	}
}
