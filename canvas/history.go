package canvas

// History holds full-surface snapshots for local undo and redo. It is
// never synchronized with other participants.
type History struct {
	depth int
	undo  [][]byte
	redo  [][]byte
}

func NewHistory(depth int) *History {
	if depth <= 0 {
		depth = UndoDepth
	}
	return &History{depth: depth}
}

// Push records the state before a new stroke. Redo is cleared.
func (h *History) Push(snap []byte) {
	h.undo = pushBounded(h.undo, snap, h.depth)
	h.redo = nil
}

// Undo returns the state to restore, saving current for Redo.
func (h *History) Undo(current []byte) ([]byte, bool) {
	if len(h.undo) == 0 {
		return nil, false
	}
	last := h.undo[len(h.undo)-1]
	h.undo = h.undo[:len(h.undo)-1]
	h.redo = pushBounded(h.redo, current, h.depth)
	return last, true
}

// Redo returns the state to restore, saving current for Undo.
func (h *History) Redo(current []byte) ([]byte, bool) {
	if len(h.redo) == 0 {
		return nil, false
	}
	next := h.redo[len(h.redo)-1]
	h.redo = h.redo[:len(h.redo)-1]
	h.undo = pushBounded(h.undo, current, h.depth)
	return next, true
}

func (h *History) CanUndo() bool { return len(h.undo) > 0 }
func (h *History) CanRedo() bool { return len(h.redo) > 0 }

// Reset drops both stacks.
func (h *History) Reset() {
	h.undo = nil
	h.redo = nil
}

func pushBounded(stack [][]byte, snap []byte, depth int) [][]byte {
	stack = append(stack, snap)
	if over := len(stack) - depth; over > 0 {
		stack = append(stack[:0:0], stack[over:]...)
	}
	return stack
}
