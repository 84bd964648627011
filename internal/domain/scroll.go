package domain

// ScrollBehavior tells the view how to move to the newest message.
type ScrollBehavior string

const (
	ScrollInstant ScrollBehavior = "instant"
	ScrollSmooth  ScrollBehavior = "smooth"
)

// ScrollCommand is an instruction for the view to scroll to the bottom.
// Seq increases monotonically within a session so a view applies each command once.
type ScrollCommand struct {
	Seq      uint64
	Behavior ScrollBehavior
}

// ScrollMetrics are the viewport measurements reported on a scroll event.
type ScrollMetrics struct {
	ScrollHeight float64
	ScrollTop    float64
	ClientHeight float64
}

// KeyEvent is a key press inside the composer input.
type KeyEvent struct {
	Key   string
	Shift bool
	Ctrl  bool
	Alt   bool
	Meta  bool
}

// HasModifier reports whether any modifier key was held.
func (k KeyEvent) HasModifier() bool {
	return k.Shift || k.Ctrl || k.Alt || k.Meta
}
