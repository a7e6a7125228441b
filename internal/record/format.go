package record

// Checker validates a record's fields against legality rules.
type Checker interface {
	Check(fields map[string]any) error
}

// Format adapts the record codec and a legality checker to the
// distribution pool.
type Format struct {
	checker Checker
}

// NewFormat creates a Format. A nil checker accepts every non-empty record.
func NewFormat(checker Checker) *Format {
	return &Format{checker: checker}
}

func (f *Format) Size() int {
	return Size
}

func (f *Format) Decode(data []byte) (*Record, error) {
	return Decode(data)
}

func (f *Format) IsEmpty(r *Record) bool {
	return r.IsEmpty()
}

// Validate runs the legality checker.
func (f *Format) Validate(r *Record) error {
	if f.checker == nil {
		return nil
	}
	return f.checker.Check(r.Fields())
}

// Eligible reports whether r may be dispensed anonymously.
func (f *Format) Eligible(r *Record) bool {
	return r.AnonymousAllowed()
}

// ClearTracker returns a copy of r with the transfer tracker zeroed.
func (f *Format) ClearTracker(r *Record) *Record {
	cp := *r
	cp.Tracker = 0
	return &cp
}
