package injector

import (
	"bytes"
	"io"
)

// SegmentKind tags one scanner output segment.
type SegmentKind int

const (
	// SegmentText is a run of document bytes between markers. A single
	// text region may be emitted as several segments as chunks arrive.
	SegmentText SegmentKind = iota
	// SegmentMarker is one complete marker. For the body-begin marker the
	// data runs through the element's closing '>', so insertions after it
	// land outside the tag.
	SegmentMarker
)

// Segment is one element of the scanner's forward-only output sequence.
// Data is only valid until the next call to Next.
type Segment struct {
	Kind   SegmentKind
	Marker Marker // set when Kind == SegmentMarker
	Data   []byte
}

// scanChunkSize is the read size per upstream pull.
const scanChunkSize = 32 * 1024

// maxTagScan bounds how far past the body-begin literal the scanner looks
// for the element's closing '>'. The literal is a tag prefix; the inserted
// fragment must land after the complete element, not inside the tag.
const maxTagScan = 512

// Scanner splits a document stream at the fixed marker boundaries. It is
// single-pass: markers are searched in document order, and whenever a later
// marker is found first, the earlier ones are treated as absent from that
// point on (first occurrence wins). A carry of at most the longest pending
// marker length minus one byte is held across reads, so markers split
// across arbitrary chunk boundaries are still found.
type Scanner struct {
	r      io.Reader
	window []byte // unconsumed bytes, head of stream first
	buf    []byte // read buffer
	next   Marker // first marker still being searched for
	found  [markerCount]bool
	eof    bool
}

// NewScanner returns a Scanner over r. The scanner does not close r.
func NewScanner(r io.Reader) *Scanner {
	return &Scanner{
		r:   r,
		buf: make([]byte, scanChunkSize),
	}
}

// Next returns the next segment, or io.EOF after the final one. Any read
// error from the source is returned as-is; the stream must then be
// considered truncated.
func (s *Scanner) Next() (Segment, error) {
	for {
		// All markers resolved: everything left is remainder text.
		if s.next >= markerCount {
			if len(s.window) > 0 {
				seg := Segment{Kind: SegmentText, Data: s.window}
				s.window = nil
				return seg, nil
			}
			if s.eof {
				return Segment{}, io.EOF
			}
			if err := s.fill(); err != nil {
				return Segment{}, err
			}
			continue
		}

		// Earliest occurrence of any pending marker wins; markers that
		// ordered before the winner are thereby treated as absent.
		best := -1
		var bestMarker Marker
		for m := s.next; m < markerCount; m++ {
			if i := bytes.Index(s.window, markerLiterals[m]); i >= 0 && (best < 0 || i < best) {
				best = i
				bestMarker = m
			}
		}

		if best > 0 {
			seg := Segment{Kind: SegmentText, Data: s.window[:best]}
			s.window = s.window[best:]
			return seg, nil
		}
		if best == 0 {
			n := len(markerLiterals[bestMarker])
			if bestMarker == MarkerBodyBegin {
				j := bytes.IndexByte(s.window[n:], '>')
				if j < 0 && !s.eof && len(s.window)-n < maxTagScan {
					if err := s.fill(); err != nil {
						return Segment{}, err
					}
					continue
				}
				// When the '>' lies beyond maxTagScan, or the document
				// truncates mid-tag, only the literal is consumed and the
				// insertion degrades to just after it. A begin element
				// that large is already malformed for our purposes.
				if j >= 0 && j < maxTagScan {
					n += j + 1
				}
			}
			data := s.window[:n]
			s.window = s.window[n:]
			s.found[bestMarker] = true
			s.next = bestMarker + 1
			return Segment{Kind: SegmentMarker, Marker: bestMarker, Data: data}, nil
		}

		if s.eof {
			if len(s.window) > 0 {
				seg := Segment{Kind: SegmentText, Data: s.window}
				s.window = nil
				return seg, nil
			}
			return Segment{}, io.EOF
		}

		// No match: flush all but the carry, then read more.
		carry := s.maxPendingLen() - 1
		if flush := len(s.window) - carry; flush > 0 {
			seg := Segment{Kind: SegmentText, Data: s.window[:flush]}
			s.window = s.window[flush:]
			return seg, nil
		}
		if err := s.fill(); err != nil {
			return Segment{}, err
		}
	}
}

// Missing lists the markers never seen. Only meaningful once Next has
// returned io.EOF.
func (s *Scanner) Missing() []Marker {
	var missing []Marker
	for m := Marker(0); m < markerCount; m++ {
		if !s.found[m] {
			missing = append(missing, m)
		}
	}
	return missing
}

// fill reads one chunk from the source into the window.
func (s *Scanner) fill() error {
	n, err := s.r.Read(s.buf)
	if n > 0 {
		// The window may still hold a carry; keep it contiguous.
		s.window = append(s.window[:len(s.window):len(s.window)], s.buf[:n]...)
	}
	if err == io.EOF {
		s.eof = true
		return nil
	}
	return err
}

func (s *Scanner) maxPendingLen() int {
	max := 0
	for m := s.next; m < markerCount; m++ {
		if l := len(markerLiterals[m]); l > max {
			max = l
		}
	}
	return max
}
