package builder

import (
	"errors"
	"fmt"
	"sort"

	"github.com/notargets/gibbsmin/phase"
	"gonum.org/v1/gonum/mat"
)

var (
	ErrNoPhases       = errors.New("builder: no phases")
	ErrEmptyFormula   = errors.New("builder: species contains no tracked element")
	ErrUnknownElement = errors.New("builder: element not present in any phase")
)

// Stoichiometry is the element x species description of a phase list.
// Rows follow Elements (sorted), columns follow species in phase order with
// solid solution endmembers expanded in place.
type Stoichiometry struct {
	Matrix   *mat.Dense
	Elements []string
	Formulas []phase.Formula
	Labels   []string

	// Offsets[i] is the first species column of phase i; a final entry holds
	// the species count so phase i spans [Offsets[i], Offsets[i+1]).
	Offsets []int
}

// Build assembles the stoichiometric matrix for phases
func Build(phases []phase.Phase) (*Stoichiometry, error) {
	if len(phases) == 0 {
		return nil, ErrNoPhases
	}

	var (
		elementSet = make(map[string]struct{})
		formulas   []phase.Formula
		labels     []string
		offsets    = make([]int, 0, len(phases)+1)
	)

	// Collect formulas in column order and the union of elements
	for i, p := range phases {
		if err := phase.Validate(p); err != nil {
			return nil, fmt.Errorf("phase %d: %w", i, err)
		}
		offsets = append(offsets, len(formulas))
		pl := p.Labels()
		for j, f := range p.Formulas() {
			formulas = append(formulas, f)
			labels = append(labels, pl[j])
			for e := range f {
				elementSet[e] = struct{}{}
			}
		}
	}
	offsets = append(offsets, len(formulas))

	elements := make([]string, 0, len(elementSet))
	for e := range elementSet {
		elements = append(elements, e)
	}
	sort.Strings(elements)
	if len(elements) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrEmptyFormula, labels[0])
	}

	// Populate rows (elements) by columns (species), missing entries are zero
	S := mat.NewDense(len(elements), len(formulas), nil)
	for j, f := range formulas {
		colSum := 0.0
		for i, e := range elements {
			c := f[e]
			if c < 0 {
				return nil, fmt.Errorf("%w: %s has negative count %g for %s",
					phase.ErrFormula, labels[j], c, e)
			}
			S.Set(i, j, c)
			colSum += c
		}
		if colSum <= 0 {
			return nil, fmt.Errorf("%w: %s", ErrEmptyFormula, labels[j])
		}
	}

	return &Stoichiometry{
		Matrix:   S,
		Elements: elements,
		Formulas: formulas,
		Labels:   labels,
		Offsets:  offsets,
	}, nil
}

// NumSpecies is the column count of the matrix
func (s *Stoichiometry) NumSpecies() int { return len(s.Formulas) }

// NumElements is the row count of the matrix
func (s *Stoichiometry) NumElements() int { return len(s.Elements) }

// ElementIndex returns the row of element e, or -1
func (s *Stoichiometry) ElementIndex(e string) int {
	i := sort.SearchStrings(s.Elements, e)
	if i < len(s.Elements) && s.Elements[i] == e {
		return i
	}
	return -1
}

// BulkVector maps a composition onto the element rows. Elements absent from
// the composition are zero; elements no phase contains are an error.
func (s *Stoichiometry) BulkVector(composition map[string]float64) (*mat.VecDense, error) {
	b := mat.NewVecDense(len(s.Elements), nil)
	for e, v := range composition {
		i := s.ElementIndex(e)
		if i < 0 {
			return nil, fmt.Errorf("%w: %s", ErrUnknownElement, e)
		}
		b.SetVec(i, v)
	}
	return b, nil
}

// Composition returns the bulk element amounts S·x of a species vector
func (s *Stoichiometry) Composition(x mat.Vector) *mat.VecDense {
	b := mat.NewVecDense(len(s.Elements), nil)
	b.MulVec(s.Matrix, x)
	return b
}

// CompositionMap is Composition keyed by element
func (s *Stoichiometry) CompositionMap(x mat.Vector) map[string]float64 {
	b := s.Composition(x)
	m := make(map[string]float64, len(s.Elements))
	for i, e := range s.Elements {
		m[e] = b.AtVec(i)
	}
	return m
}
