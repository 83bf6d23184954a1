package injector

import (
	"io"
)

// Fragments holds the host-supplied markup spliced into a document. The
// head pair wraps the closing head tag; the body pair wraps the original
// body content between the begin and end markers. Empty fragments make the
// transform the identity.
type Fragments struct {
	HeadPrefix string // inserted immediately before </head>
	HeadSuffix string // inserted immediately after </head>
	BodyPrefix string // inserted immediately after the body-begin marker
	BodySuffix string // inserted immediately before the body-end marker
}

// IsZero reports whether all fragments are empty.
func (f Fragments) IsZero() bool {
	return f.HeadPrefix == "" && f.HeadSuffix == "" && f.BodyPrefix == "" && f.BodySuffix == ""
}

// Result reports the outcome of one injection pass.
type Result struct {
	// Written is the number of bytes emitted to the destination.
	Written int64
	// Missing lists markers absent from the document. Injection for a
	// missing marker is skipped; the rest of the document passes through
	// unchanged. Callers should log this for diagnosis.
	Missing []Marker
}

// Inject streams src into dst, splicing fragments at the marker boundaries.
// Untouched document bytes, markers included, pass through byte-for-byte and
// in order. The first output byte is emitted before the document has been
// fully read; memory use is bounded by the scanner's carry plus the
// fragments.
//
// On error the destination may have received a prefix of the composed
// document; the caller decides whether headers were already sent and the
// connection must be torn down.
func Inject(dst io.Writer, src io.Reader, f Fragments) (Result, error) {
	sc := NewScanner(src)
	cw := &countingWriter{w: dst}

	for {
		seg, err := sc.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return Result{Written: cw.n}, err
		}

		switch seg.Kind {
		case SegmentText:
			if err := writeAll(cw, seg.Data); err != nil {
				return Result{Written: cw.n}, err
			}
		case SegmentMarker:
			if err := writeMarker(cw, seg, f); err != nil {
				return Result{Written: cw.n}, err
			}
		}
	}

	return Result{Written: cw.n, Missing: sc.Missing()}, nil
}

// writeMarker emits one marker segment with its fragments in splice order.
func writeMarker(w io.Writer, seg Segment, f Fragments) error {
	var before, after string
	switch seg.Marker {
	case MarkerHeadEnd:
		before, after = f.HeadPrefix, f.HeadSuffix
	case MarkerBodyBegin:
		after = f.BodyPrefix
	case MarkerBodyEnd:
		before = f.BodySuffix
	}

	if before != "" {
		if err := writeAll(w, []byte(before)); err != nil {
			return err
		}
	}
	if err := writeAll(w, seg.Data); err != nil {
		return err
	}
	if after != "" {
		return writeAll(w, []byte(after))
	}
	return nil
}

func writeAll(w io.Writer, p []byte) error {
	_, err := w.Write(p)
	return err
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}
