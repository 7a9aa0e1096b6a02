package mdgraph

import (
	"fmt"

	"go.uber.org/multierr"

	"github.com/eivindml/marker-dispersion/lib/geo"
)

// InvalidInputError reports a label the engine refuses to resolve.
type InvalidInputError struct {
	ID     int
	Reason string
}

func (e *InvalidInputError) Error() string {
	return fmt.Sprintf("invalid label %d: %s", e.ID, e.Reason)
}

// Validate checks that IDs are unique and anchors are finite. Every problem is
// reported; use errors.As to get at an *InvalidInputError.
func Validate(labels []Label) error {
	var err error
	seen := make(map[int]struct{}, len(labels))
	reported := make(map[int]struct{})
	for _, l := range labels {
		if !geo.IsFinite(l.AnchorX) || !geo.IsFinite(l.AnchorY) {
			err = multierr.Append(err, &InvalidInputError{
				ID:     l.ID,
				Reason: fmt.Sprintf("anchor (%v, %v) is not finite", l.AnchorX, l.AnchorY),
			})
		}
		if _, ok := seen[l.ID]; ok {
			if _, ok := reported[l.ID]; !ok {
				err = multierr.Append(err, &InvalidInputError{
					ID:     l.ID,
					Reason: "duplicate id",
				})
				reported[l.ID] = struct{}{}
			}
			continue
		}
		seen[l.ID] = struct{}{}
	}
	return err
}

// Dedupe keeps the first label for each ID. World-wrapping maps report one
// feature once per visible world copy; callers dedupe before handing a
// snapshot to the engine.
func Dedupe(labels []Label) []Label {
	seen := make(map[int]struct{}, len(labels))
	out := make([]Label, 0, len(labels))
	for _, l := range labels {
		if _, ok := seen[l.ID]; ok {
			continue
		}
		seen[l.ID] = struct{}{}
		out = append(out, l)
	}
	return out
}
