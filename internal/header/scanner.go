package header

// blockState is the position of a line scan relative to the header block.
type blockState int

const (
	// stateBefore: no marker seen yet.
	stateBefore blockState = iota
	// stateInside: the opening marker was seen, the closing one not yet.
	stateInside
	// stateAfter: the block is closed. Further markers are ordinary lines.
	stateAfter
)

// Scanner tracks header block membership over a stream of lines.
//
// The only transition trigger is a marker line: the first one opens the
// block and the second closes it. A file whose opening marker is never
// closed stays inside the block until EOF, so every later line is treated
// as header.
type Scanner struct {
	marker Marker
	state  blockState
}

// NewScanner returns a Scanner positioned before the header block.
func NewScanner(m Marker) *Scanner {
	return &Scanner{marker: m}
}

// Inside reports whether the scan is currently inside the header block.
func (s *Scanner) Inside() bool {
	return s.state == stateInside
}

// Feed classifies line and then advances the state. It returns whether line
// belongs to the header block, judged by the state before the line was
// consumed: the opening marker line is outside, the closing one inside.
func (s *Scanner) Feed(line []byte) (inHeader bool) {
	inHeader = s.state == stateInside
	if s.state != stateAfter && s.marker.Matches(line) {
		s.state++
	}
	return inHeader
}
