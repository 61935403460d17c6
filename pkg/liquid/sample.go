package liquid

import (
	"fmt"
	"sort"
	"strings"
)

// MoleculeDesignID identifies a molecule design.
type MoleculeDesignID int

// Component is a molecule design dissolved in a sample.
type Component struct {
	MoleculeDesign MoleculeDesignID `json:"molecule_design_id" yaml:"molecule_design_id"`
	Concentration  float64          `json:"concentration" yaml:"concentration"`
}

// Sample is the liquid held by a container. Components with a zero
// concentration are never stored.
type Sample struct {
	Volume     float64                      `json:"volume"`
	Components map[MoleculeDesignID]float64 `json:"components,omitempty"`
}

// NewSample creates a sample with the given volume and components.
func NewSample(volume float64, components ...Component) *Sample {
	s := &Sample{Volume: volume, Components: make(map[MoleculeDesignID]float64)}
	for _, c := range components {
		s.SetConcentration(c.MoleculeDesign, c.Concentration)
	}
	return s
}

// Concentration returns the concentration of a molecule design, or zero.
func (s *Sample) Concentration(md MoleculeDesignID) float64 {
	if s == nil {
		return 0
	}
	return s.Components[md]
}

// SetConcentration sets the concentration of a component, removing it when
// the concentration is zero.
func (s *Sample) SetConcentration(md MoleculeDesignID, conc float64) {
	if s.Components == nil {
		s.Components = make(map[MoleculeDesignID]float64)
	}
	if IsZero(conc) {
		delete(s.Components, md)
		return
	}
	s.Components[md] = conc
}

// ComponentList returns the components sorted by molecule design.
func (s *Sample) ComponentList() []Component {
	if s == nil {
		return nil
	}
	out := make([]Component, 0, len(s.Components))
	for md, conc := range s.Components {
		out = append(out, Component{MoleculeDesign: md, Concentration: conc})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].MoleculeDesign < out[j].MoleculeDesign })
	return out
}

// IsEmpty reports whether the sample holds no liquid.
func (s *Sample) IsEmpty() bool {
	return s == nil || IsZero(s.Volume)
}

// Clone returns a deep copy of the sample.
func (s *Sample) Clone() *Sample {
	if s == nil {
		return nil
	}
	return NewSample(s.Volume, s.ComponentList()...)
}

// String renders the sample for logs.
func (s *Sample) String() string {
	if s == nil {
		return "<empty>"
	}
	parts := make([]string, 0, len(s.Components))
	for _, c := range s.ComponentList() {
		parts = append(parts, fmt.Sprintf("md%d@%.2fnM", c.MoleculeDesign, c.Concentration))
	}
	return fmt.Sprintf("%.1ful[%s]", s.Volume, strings.Join(parts, ","))
}

func copyComponents(in map[MoleculeDesignID]float64) map[MoleculeDesignID]float64 {
	out := make(map[MoleculeDesignID]float64, len(in))
	for md, conc := range in {
		out[md] = conc
	}
	return out
}
