package worklist

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"

	"github.com/helixyte/TheLMA-sub008/pkg/geometry"
)

// transferDoc is the serialised form of a planned transfer.
type transferDoc struct {
	Type         Variant `json:"type"`
	Volume       float64 `json:"volume"`
	Source       string  `json:"source,omitempty"`
	Target       string  `json:"target,omitempty"`
	DiluentInfo  string  `json:"diluent_info,omitempty"`
	SourceSector *int    `json:"source_sector,omitempty"`
	TargetSector *int    `json:"target_sector,omitempty"`
	SectorNumber *int    `json:"sector_number,omitempty"`
}

type worklistDoc struct {
	Index          int           `json:"index"`
	Label          string        `json:"label"`
	Variant        Variant       `json:"variant"`
	PipettingSpecs string        `json:"pipetting_specs"`
	Transfers      []transferDoc `json:"transfers"`
}

type seriesDoc struct {
	Worklists []worklistDoc `json:"worklists"`
}

func encodeTransfer(t PlannedTransfer) transferDoc {
	switch tr := t.(type) {
	case Dilution:
		return transferDoc{Type: VariantDilution, Volume: tr.Volume, Target: tr.Target.Label(), DiluentInfo: tr.DiluentInfo}
	case ContainerTransfer:
		return transferDoc{Type: VariantContainerTransfer, Volume: tr.Volume, Source: tr.Source.Label(), Target: tr.Target.Label()}
	case RackSampleTransfer:
		src, trg, n := tr.SourceSector, tr.TargetSector, tr.SectorNumber
		return transferDoc{Type: VariantRackSampleTransfer, Volume: tr.Volume, SourceSector: &src, TargetSector: &trg, SectorNumber: &n}
	default:
		panic(fmt.Sprintf("unknown planned transfer %T", t))
	}
}

func decodeTransfer(d transferDoc) (PlannedTransfer, error) {
	variant, err := ParseVariant(string(d.Type))
	if err != nil {
		return nil, err
	}
	switch variant {
	case VariantDilution:
		target, err := geometry.ParseLabel(d.Target)
		if err != nil {
			return nil, err
		}
		return Dilution{Volume: d.Volume, Target: target, DiluentInfo: d.DiluentInfo}, nil
	case VariantContainerTransfer:
		source, err := geometry.ParseLabel(d.Source)
		if err != nil {
			return nil, err
		}
		target, err := geometry.ParseLabel(d.Target)
		if err != nil {
			return nil, err
		}
		return ContainerTransfer{Volume: d.Volume, Source: source, Target: target}, nil
	default:
		if d.SourceSector == nil || d.TargetSector == nil || d.SectorNumber == nil {
			return nil, fmt.Errorf("rack sample transfer requires source_sector, target_sector and sector_number")
		}
		return RackSampleTransfer{
			Volume: d.Volume, SourceSector: *d.SourceSector, TargetSector: *d.TargetSector, SectorNumber: *d.SectorNumber,
		}, nil
	}
}

// MarshalTransfer encodes a single planned transfer.
func MarshalTransfer(t PlannedTransfer) ([]byte, error) {
	return json.Marshal(encodeTransfer(t))
}

// UnmarshalTransfer decodes a transfer encoded by MarshalTransfer.
func UnmarshalTransfer(data []byte) (PlannedTransfer, error) {
	var d transferDoc
	if err := json.Unmarshal(data, &d); err != nil {
		return nil, err
	}
	return decodeTransfer(d)
}

// MarshalJSON implements json.Marshaler.
func (s *Series) MarshalJSON() ([]byte, error) {
	doc := seriesDoc{Worklists: make([]worklistDoc, 0, len(s.worklists))}
	for i, w := range s.worklists {
		wd := worklistDoc{
			Index:          i,
			Label:          w.Label,
			Variant:        w.Variant,
			PipettingSpecs: w.PipettingSpecs,
			Transfers:      make([]transferDoc, 0, len(w.Transfers)),
		}
		for _, t := range w.Transfers {
			wd.Transfers = append(wd.Transfers, encodeTransfer(t))
		}
		doc.Worklists = append(doc.Worklists, wd)
	}
	return json.Marshal(doc)
}

// UnmarshalJSON implements json.Unmarshaler. Worklist indices must be dense
// and start at zero.
func (s *Series) UnmarshalJSON(data []byte) error {
	var doc seriesDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("failed to unmarshal series: %w", err)
	}
	worklists := make([]*PlannedWorklist, len(doc.Worklists))
	for _, wd := range doc.Worklists {
		if wd.Index < 0 || wd.Index >= len(doc.Worklists) || worklists[wd.Index] != nil {
			return fmt.Errorf("invalid or duplicate worklist index %d", wd.Index)
		}
		variant, err := ParseVariant(string(wd.Variant))
		if err != nil {
			return err
		}
		w := NewPlannedWorklist(wd.Label, variant, wd.PipettingSpecs)
		for i, td := range wd.Transfers {
			t, err := decodeTransfer(td)
			if err != nil {
				return fmt.Errorf("worklist %d transfer %d: %w", wd.Index, i, err)
			}
			// Mismatched members are kept so execution can report them.
			w.Transfers = append(w.Transfers, t)
		}
		worklists[wd.Index] = w
	}
	s.worklists = worklists
	return nil
}

// StreamLineType tags a line of an encoded emission stream.
type StreamLineType string

const (
	// StreamLineHeader opens a stream and carries its metadata.
	StreamLineHeader StreamLineType = "HEADER"
	// StreamLineRecord carries one atomic transfer.
	StreamLineRecord StreamLineType = "RECORD"
	// StreamLineEnd closes a stream.
	StreamLineEnd StreamLineType = "END"
)

type streamLine struct {
	Type    StreamLineType  `json:"type"`
	Variant Variant         `json:"variant,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// StreamEncoder writes emission streams as JSON lines.
type StreamEncoder struct {
	w *bufio.Writer
}

// NewStreamEncoder creates a new stream encoder.
func NewStreamEncoder(w io.Writer) *StreamEncoder {
	return &StreamEncoder{w: bufio.NewWriter(w)}
}

func (e *StreamEncoder) writeLine(lineType StreamLineType, variant Variant, data interface{}) error {
	var dataBytes []byte
	var err error
	if data != nil {
		dataBytes, err = json.Marshal(data)
		if err != nil {
			return fmt.Errorf("failed to marshal data: %w", err)
		}
	}
	lineBytes, err := json.Marshal(streamLine{Type: lineType, Variant: variant, Data: dataBytes})
	if err != nil {
		return fmt.Errorf("failed to marshal line: %w", err)
	}
	if _, err := e.w.Write(lineBytes); err != nil {
		return fmt.Errorf("failed to write line: %w", err)
	}
	return e.w.WriteByte('\n')
}

// Encode writes one stream: a header, its records and an end marker.
func (e *StreamEncoder) Encode(s *Stream) error {
	if err := e.writeLine(StreamLineHeader, s.Variant, s); err != nil {
		return err
	}
	for _, r := range s.Records {
		if r.Variant() != s.Variant {
			return fmt.Errorf("record variant %s does not match stream variant %s", r.Variant(), s.Variant)
		}
		if err := e.writeLine(StreamLineRecord, r.Variant(), r); err != nil {
			return err
		}
	}
	if err := e.writeLine(StreamLineEnd, "", nil); err != nil {
		return err
	}
	if err := e.w.Flush(); err != nil {
		return fmt.Errorf("failed to flush: %w", err)
	}
	return nil
}

// StreamDecoder reads emission streams written by StreamEncoder.
type StreamDecoder struct {
	r *bufio.Scanner
}

// NewStreamDecoder creates a new stream decoder.
func NewStreamDecoder(r io.Reader) *StreamDecoder {
	scanner := bufio.NewScanner(r)
	const maxCapacity = 4 * 1024 * 1024
	scanner.Buffer(make([]byte, 64*1024), maxCapacity)
	return &StreamDecoder{r: scanner}
}

func (d *StreamDecoder) next() (*streamLine, error) {
	if !d.r.Scan() {
		if err := d.r.Err(); err != nil {
			return nil, fmt.Errorf("scan error: %w", err)
		}
		return nil, io.EOF
	}
	var line streamLine
	if err := json.Unmarshal(d.r.Bytes(), &line); err != nil {
		return nil, fmt.Errorf("failed to unmarshal line: %w", err)
	}
	return &line, nil
}

// Decode reads the next stream. It returns io.EOF when no stream is left.
func (d *StreamDecoder) Decode() (*Stream, error) {
	line, err := d.next()
	if err != nil {
		return nil, err
	}
	if line.Type != StreamLineHeader {
		return nil, fmt.Errorf("expected %s line, got %s", StreamLineHeader, line.Type)
	}
	var s Stream
	if err := json.Unmarshal(line.Data, &s); err != nil {
		return nil, fmt.Errorf("failed to unmarshal header: %w", err)
	}
	for {
		line, err := d.next()
		if err == io.EOF {
			return nil, fmt.Errorf("stream %d is not terminated", s.Index)
		}
		if err != nil {
			return nil, err
		}
		if line.Type == StreamLineEnd {
			return &s, nil
		}
		rec, err := decodeRecord(line)
		if err != nil {
			return nil, err
		}
		s.Records = append(s.Records, rec)
	}
}

func decodeRecord(line *streamLine) (Record, error) {
	switch line.Variant {
	case VariantDilution:
		var r DilutionRecord
		err := json.Unmarshal(line.Data, &r)
		return r, err
	case VariantContainerTransfer:
		var r ContainerTransferRecord
		err := json.Unmarshal(line.Data, &r)
		return r, err
	case VariantRackSampleTransfer:
		var r RackSampleTransferRecord
		err := json.Unmarshal(line.Data, &r)
		return r, err
	default:
		return nil, fmt.Errorf("unknown record variant %q", line.Variant)
	}
}
