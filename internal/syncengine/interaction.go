package syncengine

// InteractionKind names an input event observed by the capture-phase listener.
type InteractionKind string

// Interaction kinds that count as real user edits.
const (
	InteractionKeyDown     InteractionKind = "keydown"
	InteractionBeforeInput InteractionKind = "beforeinput"
	InteractionPaste       InteractionKind = "paste"
	InteractionCut         InteractionKind = "cut"
	InteractionDrop        InteractionKind = "drop"
	InteractionPointerDown InteractionKind = "pointerdown"
)

// InteractionKinds returns the event kinds the surface listens for.
func InteractionKinds() []InteractionKind {
	return []InteractionKind{
		InteractionKeyDown,
		InteractionBeforeInput,
		InteractionPaste,
		InteractionCut,
		InteractionDrop,
		InteractionPointerDown,
	}
}

// IsInteraction reports whether an event of kind inside or outside the editing
// region marks user interaction.
func IsInteraction(kind InteractionKind, inEditingRegion bool) bool {
	if !inEditingRegion {
		return false
	}
	for _, k := range InteractionKinds() {
		if k == kind {
			return true
		}
	}
	return false
}
