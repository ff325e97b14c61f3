package phase

import (
	"fmt"
	"sort"
	"strconv"
	"unicode"
)

// Formula maps element symbols to stoichiometric counts per formula unit.
// Elements not present are implicitly zero.
type Formula map[string]float64

// Elements returns the formula's element symbols in lexicographic order
func (f Formula) Elements() []string {
	els := make([]string, 0, len(f))
	for e := range f {
		els = append(els, e)
	}
	sort.Strings(els)
	return els
}

// Count returns the number of atoms of element e, zero if absent
func (f Formula) Count(e string) float64 {
	return f[e]
}

// Total is the number of atoms per formula unit
func (f Formula) Total() (n float64) {
	for _, c := range f {
		n += c
	}
	return
}

// String renders the formula in element order, omitting unit counts
func (f Formula) String() string {
	s := ""
	for _, e := range f.Elements() {
		c := f[e]
		if c == 1 {
			s += e
			continue
		}
		s += e + strconv.FormatFloat(c, 'g', -1, 64)
	}
	return s
}

// ParseFormula reads formulas such as "Mg2SiO4" or "Fe0.5Mg1.5SiO4".
// Repeated elements accumulate, so "MgSiO3Mg" yields Mg:2.
func ParseFormula(s string) (Formula, error) {
	if s == "" {
		return nil, fmt.Errorf("%w: empty formula", ErrFormula)
	}
	f := make(Formula)
	r := []rune(s)
	i := 0
	for i < len(r) {
		if !unicode.IsUpper(r[i]) {
			return nil, fmt.Errorf("%w: unexpected %q at offset %d in %q", ErrFormula, r[i], i, s)
		}
		start := i
		i++
		for i < len(r) && unicode.IsLower(r[i]) {
			i++
		}
		el := string(r[start:i])

		numStart := i
		for i < len(r) && (unicode.IsDigit(r[i]) || r[i] == '.') {
			i++
		}
		count := 1.0
		if i > numStart {
			v, err := strconv.ParseFloat(string(r[numStart:i]), 64)
			if err != nil {
				return nil, fmt.Errorf("%w: bad count for %s in %q", ErrFormula, el, s)
			}
			count = v
		}
		f[el] += count
	}
	return f, nil
}

// MustParseFormula is ParseFormula that panics on error, for static tables
func MustParseFormula(s string) Formula {
	f, err := ParseFormula(s)
	if err != nil {
		panic(err)
	}
	return f
}
