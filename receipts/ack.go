package receipts

// BottomGapPx is how close to the bottom of the scroll region the viewport
// must be for the client to acknowledge what it shows.
const BottomGapPx = 20

// AckPolicy decides when the local client emits read:ack. Within one
// session the acknowledged id only ever grows.
type AckPolicy struct {
	last int64
}

// Observe reports the id to acknowledge, if any, given how far the viewport
// is from the bottom and the highest message id it shows.
func (p *AckPolicy) Observe(distanceFromBottom float64, highestVisibleID int64) (int64, bool) {
	if distanceFromBottom > BottomGapPx || highestVisibleID <= 0 {
		return 0, false
	}
	if highestVisibleID <= p.last {
		return 0, false
	}
	p.last = highestVisibleID
	return highestVisibleID, true
}

// LastAcked is the highest id acknowledged so far.
func (p *AckPolicy) LastAcked() int64 {
	return p.last
}
