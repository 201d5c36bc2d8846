package core

import (
	"fmt"
	"math"
)

// Bounds is a screen rectangle in device pixels, edges inclusive of Left/Top
// and exclusive of Right/Bottom.
type Bounds struct {
	Left   int `json:"left"`
	Top    int `json:"top"`
	Right  int `json:"right"`
	Bottom int `json:"bottom"`
}

// Point is a screen coordinate.
type Point struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// Size is a screen or element size.
type Size struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Area returns width * height of the size.
func (s Size) Area() int {
	return s.Width * s.Height
}

// IsZero reports whether the size has no area.
func (s Size) IsZero() bool {
	return s.Width <= 0 || s.Height <= 0
}

// Width returns the horizontal extent.
func (b Bounds) Width() int {
	return b.Right - b.Left
}

// Height returns the vertical extent.
func (b Bounds) Height() int {
	return b.Bottom - b.Top
}

// Area returns the rectangle area, or 0 for degenerate rectangles.
func (b Bounds) Area() int {
	w, h := b.Width(), b.Height()
	if w <= 0 || h <= 0 {
		return 0
	}
	return w * h
}

// Size returns the rectangle size.
func (b Bounds) Size() Size {
	return Size{Width: b.Width(), Height: b.Height()}
}

// Center returns the center point. Integer division rounds toward Left/Top,
// so the result stays inside the rectangle.
func (b Bounds) Center() Point {
	return Point{X: b.Left + b.Width()/2, Y: b.Top + b.Height()/2}
}

// Contains reports whether the point lies inside the rectangle.
func (b Bounds) Contains(p Point) bool {
	return p.X >= b.Left && p.X < b.Right && p.Y >= b.Top && p.Y < b.Bottom
}

// ContainsBounds reports whether other lies entirely within b.
func (b Bounds) ContainsBounds(other Bounds) bool {
	return other.Left >= b.Left && other.Top >= b.Top &&
		other.Right <= b.Right && other.Bottom <= b.Bottom
}

// IsEmpty reports whether the rectangle is the zero value or degenerate.
func (b Bounds) IsEmpty() bool {
	return b.Width() <= 0 || b.Height() <= 0
}

// Intersection returns the overlapping area of two rectangles.
func (b Bounds) Intersection(other Bounds) int {
	left := max(b.Left, other.Left)
	top := max(b.Top, other.Top)
	right := min(b.Right, other.Right)
	bottom := min(b.Bottom, other.Bottom)
	if right <= left || bottom <= top {
		return 0
	}
	return (right - left) * (bottom - top)
}

// IoU returns intersection over union, 0 when either rectangle is empty.
func (b Bounds) IoU(other Bounds) float64 {
	inter := b.Intersection(other)
	union := b.Area() + other.Area() - inter
	if union <= 0 {
		return 0
	}
	return float64(inter) / float64(union)
}

// CenterDistance returns the euclidean distance between the two centers.
func (b Bounds) CenterDistance(other Bounds) float64 {
	c1, c2 := b.Center(), other.Center()
	dx := float64(c1.X - c2.X)
	dy := float64(c1.Y - c2.Y)
	return math.Sqrt(dx*dx + dy*dy)
}

// Diagonal returns the length of the rectangle diagonal.
func (b Bounds) Diagonal() float64 {
	w, h := float64(b.Width()), float64(b.Height())
	return math.Sqrt(w*w + h*h)
}

// AreaRatio returns the rectangle area relative to the screen area.
func (b Bounds) AreaRatio(screen Size) float64 {
	if screen.IsZero() {
		return 0
	}
	return float64(b.Area()) / float64(screen.Area())
}

// String renders the rectangle in UIAutomator form, e.g. "[0,0][1080,2400]".
func (b Bounds) String() string {
	return fmt.Sprintf("[%d,%d][%d,%d]", b.Left, b.Top, b.Right, b.Bottom)
}
