package types

// RangeSpec is one selected slice of the source timeline as supplied by the
// upstream range source, in seconds.
type RangeSpec struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

// RangesFile is the object form of the ranges input file. The file may also
// be a bare JSON array of RangeSpec.
type RangesFile struct {
	Ranges []RangeSpec `json:"ranges"`
}

// Trace records how the final output was assembled: which merged ranges were
// extracted, in which ordinal order, and under which run token. It is
// persisted next to the output so results stay traceable back to the
// requested ranges.
type Trace struct {
	Source   string         `json:"source"`
	Output   string         `json:"output"`
	Token    string         `json:"token"`
	Segments []TraceSegment `json:"segments"`
}

// TraceSegment is one extracted piece of the output, in concat order.
type TraceSegment struct {
	Ordinal  int     `json:"ordinal"`
	StartSec float64 `json:"start_sec"`
	EndSec   float64 `json:"end_sec"`
	File     string  `json:"file"`
}
