// Package types provides type definitions for structured data used throughout the quick-resume system.
//
//nolint:revive // types is a standard Go package name pattern
package types

// BoldMarker delimits a bold span inside a bullet string, e.g. "Built **Go** services".
const BoldMarker = "**"

// StyledRun is one contiguous span of bullet text with a single style.
type StyledRun struct {
	Text string `json:"text"`
	Bold bool   `json:"bold"`
}

// StyledBullet is a bullet string parsed into runs, ready for template binding.
type StyledBullet struct {
	Runs []StyledRun `json:"runs"`
}

// PlainText concatenates the run texts in order.
func (b StyledBullet) PlainText() string {
	n := 0
	for _, r := range b.Runs {
		n += len(r.Text)
	}
	buf := make([]byte, 0, n)
	for _, r := range b.Runs {
		buf = append(buf, r.Text...)
	}
	return string(buf)
}
