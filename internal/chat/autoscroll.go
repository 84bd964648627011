package chat

import "github.com/spec-kit/moving-chat/internal/domain"

// DefaultScrollThreshold is the distance in pixels from the bottom within which
// the viewport still counts as "at the bottom".
const DefaultScrollThreshold = 100

// AutoscrollController decides when the view should jump to the newest message
// without fighting a user who scrolled up to read history.
type AutoscrollController struct {
	threshold  float64
	autoScroll bool
	populated  bool
	seq        uint64
	last       *domain.ScrollCommand
}

// NewAutoscrollController builds a controller; a non-positive threshold falls back to the default.
func NewAutoscrollController(threshold float64) *AutoscrollController {
	if threshold <= 0 {
		threshold = DefaultScrollThreshold
	}
	return &AutoscrollController{threshold: threshold, autoScroll: true}
}

// AutoScroll reports the current flag.
func (a *AutoscrollController) AutoScroll() bool {
	return a.autoScroll
}

// ShowJumpToBottom reports whether the view should offer a "jump to bottom" affordance.
func (a *AutoscrollController) ShowJumpToBottom() bool {
	return !a.autoScroll
}

// LastCommand returns the most recent scroll command, if any.
func (a *AutoscrollController) LastCommand() (domain.ScrollCommand, bool) {
	if a.last == nil {
		return domain.ScrollCommand{}, false
	}
	return *a.last, true
}

// OnScroll recomputes the flag from viewport metrics.
func (a *AutoscrollController) OnScroll(m domain.ScrollMetrics) bool {
	a.autoScroll = m.ScrollHeight-m.ScrollTop-m.ClientHeight < a.threshold
	return a.autoScroll
}

// OnStoreChange reacts to a store mutation. The first population of the store
// always scrolls instantly; afterwards growth scrolls only while autoScroll holds.
func (a *AutoscrollController) OnStoreChange(change StoreChange) (domain.ScrollCommand, bool) {
	if !a.populated {
		if change.PrevSize == 0 && change.Size > 0 {
			a.populated = true
			return a.emit(domain.ScrollInstant), true
		}
		return domain.ScrollCommand{}, false
	}
	if change.Grew() && a.autoScroll {
		return a.emit(domain.ScrollSmooth), true
	}
	return domain.ScrollCommand{}, false
}

// OnLocalSend overrides any manual scroll-up after the user's own send.
func (a *AutoscrollController) OnLocalSend() domain.ScrollCommand {
	a.autoScroll = true
	return a.emit(domain.ScrollSmooth)
}

// JumpToBottom re-enables autoscroll and scrolls immediately.
func (a *AutoscrollController) JumpToBottom() domain.ScrollCommand {
	a.autoScroll = true
	return a.emit(domain.ScrollInstant)
}

// Reset returns the controller to its initial state, keeping the sequence counter
// so a view never sees a repeated Seq.
func (a *AutoscrollController) Reset() {
	a.autoScroll = true
	a.populated = false
	a.last = nil
}

func (a *AutoscrollController) emit(behavior domain.ScrollBehavior) domain.ScrollCommand {
	a.seq++
	cmd := domain.ScrollCommand{Seq: a.seq, Behavior: behavior}
	a.last = &cmd
	return cmd
}
