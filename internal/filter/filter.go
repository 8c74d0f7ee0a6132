// Package filter provides named row predicates. Every exclusion applied to an
// input dataset goes through a Predicate so the number of rows it drops can be
// reported under its name.
package filter

import (
	"math"
	"strconv"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// Record is anything with named string fields.
type Record interface {
	Get(name string) (string, bool)
}

// Predicate keeps a record when Keep returns true.
type Predicate struct {
	Name string
	Keep func(Record) bool
}

// Map adapts a plain map to Record.
type Map map[string]string

// Get implements Record.
func (m Map) Get(name string) (string, bool) {
	v, ok := m[name]
	return v, ok
}

// Apply runs predicates in order and returns the name of the first one that
// rejects the record, or "" if all keep it.
func Apply(r Record, preds []Predicate) string {
	for _, p := range preds {
		if !p.Keep(r) {
			return p.Name
		}
	}
	return ""
}

// Counts tallies how many records each predicate removed.
type Counts map[string]int

// Total returns the number of records removed by all predicates.
func (c Counts) Total() int {
	n := 0
	for _, v := range c {
		n += v
	}
	return n
}

// ExcludeValues drops records whose column matches one of the given values
// after trimming, Unicode normalisation and case folding, so "Scoil Bríd"
// matches whether the fada is precomposed or not. Records without the column
// are kept.
func ExcludeValues(column string, values ...string) Predicate {
	set := make(map[string]bool, len(values))
	for _, v := range values {
		set[fold(v)] = true
	}
	return Predicate{
		Name: "exclude_" + slug(column),
		Keep: func(r Record) bool {
			v, ok := r.Get(column)
			if !ok {
				return true
			}
			return !set[fold(v)]
		},
	}
}

// NonNegative drops records whose column is a number below zero. Unparseable
// values are left to the loader's own validation.
func NonNegative(column string) Predicate {
	return Predicate{
		Name: "non_negative_" + slug(column),
		Keep: func(r Record) bool {
			f, ok := number(r, column)
			return !ok || f >= 0
		},
	}
}

// Positive drops records whose column is missing, unparseable, zero or negative.
func Positive(column string) Predicate {
	return Predicate{
		Name: "positive_" + slug(column),
		Keep: func(r Record) bool {
			f, ok := number(r, column)
			return ok && f > 0
		},
	}
}

// Required drops records with an empty or absent column.
func Required(column string) Predicate {
	return Predicate{
		Name: "required_" + slug(column),
		Keep: func(r Record) bool {
			v, ok := r.Get(column)
			return ok && strings.TrimSpace(v) != ""
		},
	}
}

// fold builds a fresh Caser per call; Casers are not safe for concurrent use.
func fold(s string) string {
	return cases.Fold().String(norm.NFC.String(strings.TrimSpace(s)))
}

func number(r Record, column string) (float64, bool) {
	v, ok := r.Get(column)
	if !ok {
		return 0, false
	}
	f, err := strconv.ParseFloat(strings.ReplaceAll(strings.TrimSpace(v), ",", ""), 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

func slug(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	var sb strings.Builder
	lastUnderscore := false
	for _, r := range s {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			sb.WriteRune(r)
			lastUnderscore = false
			continue
		}
		if !lastUnderscore && sb.Len() > 0 {
			sb.WriteByte('_')
			lastUnderscore = true
		}
	}
	return strings.TrimSuffix(sb.String(), "_")
}
