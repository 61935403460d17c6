package geometry

import (
	"fmt"

	"github.com/helixyte/TheLMA-sub008/pkg/errdefs"
)

// Behaviour selects how positions are mapped between two rack sectors.
type Behaviour string

const (
	// OneToOne maps every position onto itself.
	OneToOne Behaviour = "one_to_one"

	// ManyToOne spreads a small rack into one sector of a larger rack.
	ManyToOne Behaviour = "many_to_one"

	// OneToMany collects one sector of a large rack into a smaller rack.
	OneToMany Behaviour = "one_to_many"

	// ManyToMany moves one sector to another sector of a same-sized rack.
	ManyToMany Behaviour = "many_to_many"
)

// Validate checks if the behaviour is known.
func (b Behaviour) Validate() error {
	switch b {
	case OneToOne, ManyToOne, OneToMany, ManyToMany:
		return nil
	default:
		return errdefs.NewInputError(errdefs.CodeInvalidInput,
			fmt.Sprintf("invalid translation behaviour: %s", b))
	}
}

// InferBehaviour determines the translation behaviour for a transfer between
// racks of the given shapes with the given number of sectors.
func InferBehaviour(source, target Shape, number int) (Behaviour, error) {
	sectors, err := NewSectors(number)
	if err != nil {
		return "", err
	}
	mismatch := func() (Behaviour, error) {
		return "", errdefs.NewGeometryError(errdefs.CodeShapeSectorMismatch,
			fmt.Sprintf("shapes %s -> %s are incompatible with %d sectors", source, target, number))
	}
	switch {
	case source == target:
		if number == 1 {
			return OneToOne, nil
		}
		if !sectors.FitsShape(source) {
			return mismatch()
		}
		return ManyToMany, nil
	case number == 1:
		return mismatch()
	case source.Size() < target.Size():
		if source.rows*sectors.rows != target.rows || source.cols*sectors.cols != target.cols {
			return mismatch()
		}
		return ManyToOne, nil
	default:
		if target.rows*sectors.rows != source.rows || target.cols*sectors.cols != source.cols {
			return mismatch()
		}
		return OneToMany, nil
	}
}

// Translator maps positions of a source rack sector onto a target rack sector.
type Translator struct {
	sectors      Sectors
	sourceSector int
	targetSector int
	behaviour    Behaviour
}

// NewTranslator creates a translator between the given sectors.
func NewTranslator(number, sourceSector, targetSector int, behaviour Behaviour) (*Translator, error) {
	if err := behaviour.Validate(); err != nil {
		return nil, err
	}
	sectors, err := NewSectors(number)
	if err != nil {
		return nil, err
	}
	if _, _, err := sectors.Modifiers(sourceSector); err != nil {
		return nil, err
	}
	if _, _, err := sectors.Modifiers(targetSector); err != nil {
		return nil, err
	}
	if behaviour == OneToOne && number != 1 {
		return nil, errdefs.NewGeometryError(errdefs.CodeShapeSectorMismatch,
			fmt.Sprintf("one-to-one translation requires a single sector, got %d", number))
	}
	return &Translator{
		sectors:      sectors,
		sourceSector: sourceSector,
		targetSector: targetSector,
		behaviour:    behaviour,
	}, nil
}

// NewTranslatorForShapes infers the behaviour from the rack shapes and
// creates the translator.
func NewTranslatorForShapes(source, target Shape, number, sourceSector, targetSector int) (*Translator, error) {
	behaviour, err := InferBehaviour(source, target, number)
	if err != nil {
		return nil, err
	}
	return NewTranslator(number, sourceSector, targetSector, behaviour)
}

// Behaviour returns the translation behaviour.
func (t *Translator) Behaviour() Behaviour { return t.behaviour }

// SourceSector returns the source sector index.
func (t *Translator) SourceSector() int { return t.sourceSector }

// TargetSector returns the target sector index.
func (t *Translator) TargetSector() int { return t.targetSector }

// Translate maps a source position to its target position. It fails with
// PositionOutOfSector if the source position is not part of the source
// sector.
func (t *Translator) Translate(p Position) (Position, error) {
	switch t.behaviour {
	case OneToOne:
		return p, nil
	case ManyToOne:
		return t.expand(p, t.targetSector), nil
	case OneToMany:
		return t.contract(p, t.sourceSector)
	case ManyToMany:
		inner, err := t.contract(p, t.sourceSector)
		if err != nil {
			return Position{}, err
		}
		return t.expand(inner, t.targetSector), nil
	default:
		return Position{}, t.behaviour.Validate()
	}
}

// expand applies the many-to-one mapping (r*R + rm, c*C + cm).
func (t *Translator) expand(p Position, sector int) Position {
	rm, cm, _ := t.sectors.Modifiers(sector)
	return Position{
		row: p.row*t.sectors.rows + rm,
		col: p.col*t.sectors.cols + cm,
	}
}

// contract applies the one-to-many mapping ((r - rm) / R, (c - cm) / C).
func (t *Translator) contract(p Position, sector int) (Position, error) {
	rm, cm, _ := t.sectors.Modifiers(sector)
	out, ok := contract(p, t.sectors, rm, cm)
	if !ok {
		return Position{}, errdefs.NewGeometryError(errdefs.CodePositionOutOfSector,
			fmt.Sprintf("position does not belong to sector %d of %d", sector, t.sectors.number)).
			WithPosition(p.Label())
	}
	return out, nil
}

func contract(p Position, sectors Sectors, rm, cm int) (Position, bool) {
	dr, dc := p.row-rm, p.col-cm
	if dr < 0 || dc < 0 || dr%sectors.rows != 0 || dc%sectors.cols != 0 {
		return Position{}, false
	}
	return Position{row: dr / sectors.rows, col: dc / sectors.cols}, true
}
