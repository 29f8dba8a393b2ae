package stream

import "sort"

// Status is an ordered error severity. Protocol-specific codes are declared by each
// protocol package starting at Error+1 and must stay contiguous with Error.
type Status int

const (
	Ok Status = 0
	// Warning-band codes start here.
	Warning Status = 100
	// Error-band and protocol-specific codes start here; protocol packages define their
	// own named constants above this value (e.g. StatusParityError = Error + 1).
	Error Status = 200
)

// String renders the generic bands; protocol packages that define codes above Error should
// provide their own String()-returning lookup and are expected to not rely on this default
// for their own values.
func (s Status) String() string {
	switch {
	case s == Ok:
		return "Ok"
	case s < Error:
		return "Warning"
	default:
		return "Error"
	}
}

// Record is implemented by Segment and Event, the two stream-record variants.
type Record interface {
	Start() float64
	End() float64
	Kind() string
	Status() Status
	NestedStatus() Status
	Children() []Record
}

// Segment is a time-bounded record: a frame, a field, anything with a duration. Data carries
// the protocol-specific payload object; Subrecords form a tree whose spans lie within this
// segment's span.
type Segment struct {
	StartTime  float64
	EndTime    float64
	KindTag    string
	Data       any
	StatusCode Status
	Subrecords []Record
}

func (s *Segment) Start() float64    { return s.StartTime }
func (s *Segment) End() float64      { return s.EndTime }
func (s *Segment) Kind() string      { return s.KindTag }
func (s *Segment) Status() Status    { return s.StatusCode }
func (s *Segment) Children() []Record { return s.Subrecords }

// NestedStatus is the maximum of this record's own status and every descendant's.
func (s *Segment) NestedStatus() Status {
	worst := s.StatusCode
	for _, c := range s.Subrecords {
		if n := c.NestedStatus(); n > worst {
			worst = n
		}
	}
	return worst
}

// Event is a point-in-time record: a start/stop condition, a CS toggle.
type Event struct {
	Time       float64
	KindTag    string
	Data       any
	StatusCode Status
}

func (e *Event) Start() float64     { return e.Time }
func (e *Event) End() float64       { return e.Time }
func (e *Event) Kind() string       { return e.KindTag }
func (e *Event) Status() Status     { return e.StatusCode }
func (e *Event) NestedStatus() Status { return e.StatusCode }
func (e *Event) Children() []Record  { return nil }

// ValidateTree checks the structural invariants of a record and its descendants: children's
// spans lie within the parent's and children are in chronological order. NestedStatus is not
// checked: it is computed from the descendants on every call. It is a test helper, not part
// of the decode path.
func ValidateTree(r Record) error {
	return validate(r, r.Start(), r.End())
}

func validate(r Record, lo, hi float64) error {
	if r.Start() < lo || r.End() > hi {
		return &rangeError{r.Kind(), r.Start(), r.End(), lo, hi}
	}
	children := r.Children()
	for i := 1; i < len(children); i++ {
		if children[i].Start() < children[i-1].Start() {
			return &orderError{r.Kind()}
		}
	}
	sorted := sort.SliceIsSorted(children, func(i, j int) bool {
		return children[i].Start() < children[j].Start()
	})
	if !sorted {
		return &orderError{r.Kind()}
	}
	for _, c := range children {
		if err := validate(c, r.Start(), r.End()); err != nil {
			return err
		}
	}
	return nil
}

type rangeError struct {
	kind           string
	start, end     float64
	lo, hi         float64
}

func (e *rangeError) Error() string {
	return "record " + e.kind + " span outside parent bounds"
}

type orderError struct{ kind string }

func (e *orderError) Error() string {
	return "record " + e.kind + " children out of chronological order"
}
