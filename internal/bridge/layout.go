package bridge

import "chewbridge/internal/engine"

// ApplyLayout resolves id, makes it the active layout and returns the
// identifier of the layout the engine reports afterwards. Unknown ids
// resolve to the engine's unknown code, which engines treat as their
// default layout.
func ApplyLayout(e engine.LayoutController, id string) string {
	e.SetLayout(e.LayoutCode(id))
	return e.LayoutString(e.Layout())
}
