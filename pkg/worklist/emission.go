package worklist

// Record is one atomic transfer of an emitted worklist stream.
type Record interface {
	Variant() Variant
}

// DilutionRecord dispenses diluent from a reservoir into one target well.
type DilutionRecord struct {
	TargetRackBarcode        string  `json:"target_rack_barcode"`
	TargetPosition           string  `json:"target_position"`
	VolumeUL                 float64 `json:"volume_ul"`
	DiluentTag               string  `json:"diluent_tag"`
	SourceReservoirSpecsName string  `json:"source_reservoir_specs_name"`
}

// ContainerTransferRecord moves liquid between two wells.
type ContainerTransferRecord struct {
	SourceRackBarcode string  `json:"source_rack_barcode"`
	SourcePosition    string  `json:"source_position"`
	TargetRackBarcode string  `json:"target_rack_barcode"`
	TargetPosition    string  `json:"target_position"`
	VolumeUL          float64 `json:"volume_ul"`
}

// RackSampleTransferRecord moves a whole sector in one cycle.
type RackSampleTransferRecord struct {
	SourceRackBarcode string  `json:"source_rack_barcode"`
	TargetRackBarcode string  `json:"target_rack_barcode"`
	SourceSectorIndex int     `json:"source_sector_index"`
	TargetSectorIndex int     `json:"target_sector_index"`
	SectorNumber      int     `json:"sector_number"`
	VolumeUL          float64 `json:"volume_ul"`
}

func (DilutionRecord) Variant() Variant           { return VariantDilution }
func (ContainerTransferRecord) Variant() Variant  { return VariantContainerTransfer }
func (RackSampleTransferRecord) Variant() Variant { return VariantRackSampleTransfer }

// Stream is the emitted form of one worklist of a series.
type Stream struct {
	// Index is the position of the worklist in its series.
	Index int `json:"index"`

	// Label is the worklist label.
	Label string `json:"label"`

	// Variant is the variant of every record.
	Variant Variant `json:"variant"`

	// PipettingSpecs names the instrument that runs the stream.
	PipettingSpecs string `json:"pipetting_specs"`

	// Records are the atomic transfers in execution order.
	Records []Record `json:"-"`
}

// TotalVolume sums the record volumes.
func (s *Stream) TotalVolume() float64 {
	var total float64
	for _, r := range s.Records {
		switch rec := r.(type) {
		case DilutionRecord:
			total += rec.VolumeUL
		case ContainerTransferRecord:
			total += rec.VolumeUL
		case RackSampleTransferRecord:
			total += rec.VolumeUL
		}
	}
	return total
}
