// Package safety rejects targets that would tap the whole screen or a layout
// container, and checks that a winner is unique.
package safety

import (
	"fmt"

	"github.com/devicelab-dev/uiresolve/pkg/core"
	"github.com/devicelab-dev/uiresolve/pkg/hierarchy"
	"github.com/devicelab-dev/uiresolve/pkg/scoring"
)

// FullscreenRatio is the screen share above which a target is unsafe.
const FullscreenRatio = 0.95

// UniqueGap is the lead the top candidate needs over the runner-up.
const UniqueGap = 0.15

// ContainerClasses are layout classes that are never tap targets.
var ContainerClasses = []string{
	"FrameLayout",
	"LinearLayout",
	"RelativeLayout",
	"ScrollView",
	"HorizontalScrollView",
	"NestedScrollView",
	"ViewGroup",
	"DecorView",
	"ConstraintLayout",
	"CoordinatorLayout",
}

// IsFullscreen reports whether b covers more than FullscreenRatio of screen.
func IsFullscreen(b core.Bounds, screen core.Size) bool {
	return b.AreaRatio(screen) > FullscreenRatio
}

// IsContainerClass reports whether class is a generic layout container.
func IsContainerClass(class string) bool {
	short := hierarchy.ShortClass(class)
	for _, c := range ContainerClasses {
		if short == c {
			return true
		}
	}
	return false
}

// Validate checks a target. Full-screen targets are always rejected;
// container classes only when forbidContainers is set.
func Validate(b core.Bounds, class string, screen core.Size, forbidContainers bool) error {
	if IsFullscreen(b, screen) {
		return core.ErrUnsafeTarget.
			WithMessagef("UNSAFE_TARGET: %s covers %.0f%% of the screen", b, b.AreaRatio(screen)*100).
			WithDetails(map[string]interface{}{"bounds": b.String(), "areaRatio": b.AreaRatio(screen)})
	}
	if forbidContainers && IsContainerClass(class) {
		return core.ErrUnsafeTarget.
			WithMessagef("UNSAFE_TARGET: %s is a layout container", hierarchy.ShortClass(class)).
			WithDetails(map[string]interface{}{"class": class})
	}
	return nil
}

// ValidateBounds rejects negative, degenerate and off-screen rectangles.
func ValidateBounds(b core.Bounds, screen core.Size) error {
	var reason string
	switch {
	case b.Left < 0 || b.Top < 0 || b.Right < 0 || b.Bottom < 0:
		reason = "negative coordinate"
	case b.Width() <= 0 || b.Height() <= 0:
		reason = "degenerate rectangle"
	case !screen.IsZero() && (b.Left >= screen.Width || b.Top >= screen.Height):
		reason = "outside the screen"
	default:
		return nil
	}
	return core.ErrInvalidBounds.
		WithMessage(fmt.Sprintf("invalid bounds %s: %s", b, reason)).
		WithDetails(map[string]interface{}{"bounds": b.String()})
}

// Unique reports whether the best of cands (sorted, best first) stands out:
// either it is the only one at or above threshold, or it leads the next by
// UniqueGap.
func Unique(cands []scoring.Candidate, threshold float64) bool {
	switch len(cands) {
	case 0:
		return false
	case 1:
		return true
	}
	above := 0
	for _, c := range cands {
		if c.Confidence >= threshold {
			above++
		}
	}
	if above == 1 && cands[0].Confidence >= threshold {
		return true
	}
	return cands[0].Confidence-cands[1].Confidence >= UniqueGap-1e-9
}
