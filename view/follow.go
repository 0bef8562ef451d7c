package view

import "github.com/gosuda/drawchat/receipts"

// Follow decides between auto-scrolling and the new-message indicator.
// Appends while the reader sits near the bottom follow the conversation;
// appends while they read older rows raise the indicator instead.
type Follow struct {
	nearBottom bool
	indicator  bool
	prevLen    int
}

func NewFollow() *Follow {
	return &Follow{nearBottom: true}
}

// Scrolled records the viewport's distance from the bottom. Reaching the
// bottom clears the indicator.
func (f *Follow) Scrolled(distanceFromBottom float64) {
	f.nearBottom = distanceFromBottom <= receipts.BottomGapPx
	if f.nearBottom {
		f.indicator = false
	}
}

// Rows records the current row count. It reports whether the view should
// jump to the bottom.
func (f *Follow) Rows(n int) bool {
	appended := n > f.prevLen
	f.prevLen = n
	if !appended {
		return false
	}
	if f.nearBottom {
		f.indicator = false
		return true
	}
	f.indicator = true
	return false
}

// NearBottom reports the last recorded position.
func (f *Follow) NearBottom() bool { return f.nearBottom }

// Indicator reports whether unseen messages arrived below.
func (f *Follow) Indicator() bool { return f.indicator }

// Dismiss hides the indicator, as when the user jumps to the bottom.
func (f *Follow) Dismiss() {
	f.indicator = false
	f.nearBottom = true
}

// Prepended records rows added above the viewport, which never raise the
// indicator.
func (f *Follow) Prepended(n int) {
	f.prevLen = n
}

// Shrunk records rows removed by a delete so the next append is still seen
// as one.
func (f *Follow) Shrunk(n int) {
	if n < f.prevLen {
		f.prevLen = n
	}
}
