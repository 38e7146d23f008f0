package bridge

import (
	"chewbridge/internal/engine"
	"chewbridge/internal/protocol"
)

// BuildContext reads the engine's composition state into a context payload.
// Fields are present only when the engine reports them, and the legacy
// aliases mirror their primary fields.
func BuildContext(e engine.Engine) *protocol.Context {
	c := &protocol.Context{}

	if page, ok := BuildCandidatePage(e); ok {
		items := page.Items
		c.Cand = &items
		c.CandChoicePerPage = ptr(page.PerPage)
		c.CandTotalPage = ptr(page.TotalPages)
		c.CandCurrentPage = ptr(page.CurrentPage)
	}

	if e.BufferCheck() {
		c.Buffer = ptr(e.BufferString())
	}

	symbols := e.Symbols()
	intervals := ValidIntervals(len(symbols), collectIntervals(e))
	if len(intervals) > 0 {
		wire := make([]protocol.Interval, len(intervals))
		for i, iv := range intervals {
			wire[i] = protocol.Interval{From: iv.From, To: iv.To}
		}
		c.Interval = &wire
	}
	if spans := MergeIntervals(symbols, intervals); len(spans) > 0 {
		c.Lcch = &spans
	}

	if e.BopomofoCheck() {
		c.Bopomofo = ptr(e.BopomofoString())
	}
	if e.AuxCheck() {
		c.Aux = ptr(e.AuxString())
	}
	if e.CommitCheck() {
		c.Commit = ptr(e.CommitString())
	}

	c.Cursor = min(max(e.Cursor(), 0), len(symbols))
	c.Ignore = e.KeystrokeIgnore()
	c.Absorb = e.KeystrokeAbsorb()

	setAliases(c)
	return c
}

// setAliases fills the legacy fields from their primaries. It runs after
// every primary field has been decided.
func setAliases(c *protocol.Context) {
	c.Keystroke = c.Bopomofo
	c.Mcch = c.Cand
	c.Cch = c.Commit
	c.EditPos = ptr(c.Cursor)
}

func ptr[T any](v T) *T {
	return &v
}
