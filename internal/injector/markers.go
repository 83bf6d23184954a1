// Package injector locates the fixed customization markers in a Next.js
// document stream and splices host-supplied markup at their boundaries.
// The transform is streaming: memory use is bounded by a small carry buffer
// plus the fragments, regardless of document size.
package injector

// Marker identifies one of the fixed document markers, in document order.
// The literals are a contract with the Next.js document template: the
// template must emit them verbatim for injection to apply.
type Marker int

const (
	// MarkerHeadEnd is the closing head tag; the head fragments are
	// spliced around it.
	MarkerHeadEnd Marker = iota
	// MarkerBodyOpen is the body tag carrying the integration id as its
	// first attribute. It anchors the body section but nothing is
	// inserted at it.
	MarkerBodyOpen
	// MarkerBodyBegin is the empty element immediately after the body
	// tag; the body prefix fragment is spliced after it.
	MarkerBodyBegin
	// MarkerBodyEnd is the empty element immediately before the closing
	// body tag; the body suffix fragment is spliced before it.
	MarkerBodyEnd

	markerCount = 4
)

// markerLiterals holds the exact byte patterns searched for, indexed by Marker.
var markerLiterals = [markerCount][]byte{
	[]byte("</head>"),
	[]byte(`<body id="__django_nextjs_body"`),
	[]byte(`<div id="__django_nextjs_body_begin"`),
	[]byte(`<div id="__django_nextjs_body_end"`),
}

var markerNames = [markerCount]string{
	"head_end",
	"body_open",
	"body_begin",
	"body_end",
}

// Literal returns the exact byte pattern for the marker.
func (m Marker) Literal() []byte {
	return markerLiterals[m]
}

func (m Marker) String() string {
	if m < 0 || m >= markerCount {
		return "unknown"
	}
	return markerNames[m]
}
