package phonetic

import "slices"

type candidate struct {
	text     string
	from, to int
}

type candidateList struct {
	open  bool
	items []candidate
	page  int
}

func (c *candidateList) close() {
	c.open = false
	c.items = nil
	c.page = 0
}

func (c *candidateList) totalPages(perPage int) int {
	if !c.open || len(c.items) == 0 || perPage < 1 {
		return 0
	}
	return (len(c.items) + perPage - 1) / perPage
}

// turn moves delta pages, wrapping around at either end.
func (c *candidateList) turn(delta, perPage int) {
	total := c.totalPages(perPage)
	if total == 0 {
		return
	}
	c.page = ((c.page+delta)%total + total) % total
}

// candidateAnchor picks the buffer position candidates are built around
// and whether phrases end there (rearward) or start there.
func (e *Engine) candidateAnchor() (int, bool) {
	switch {
	case e.cursor >= len(e.symbols):
		return len(e.symbols), true
	case e.cursor == 0:
		return 0, false
	default:
		return e.cursor, e.rearward
	}
}

// collectCandidates lists phrases around the anchor, longest first. Within
// one length, learned phrases precede dictionary phrases.
func (e *Engine) collectCandidates() []candidate {
	anchor, rearward := e.candidateAnchor()
	n := len(e.symbols)

	var out []candidate
	seen := make(map[string]bool)
	for k := MaxPhraseLen; k >= 1; k-- {
		from, to := anchor, anchor+k
		if rearward {
			from, to = anchor-k, anchor
		}
		if from < 0 || to > n {
			continue
		}
		phones := e.phones(from, to)
		if slices.Contains(phones, 0) {
			continue
		}

		add := func(text string) {
			if !seen[text] {
				seen[text] = true
				out = append(out, candidate{text: text, from: from, to: to})
			}
		}
		for _, u := range e.user.lookup(phones) {
			add(u.Phrase)
		}
		for _, d := range e.dict.Lookup(phones) {
			add(d.Text)
		}
	}
	return out
}

func (e *Engine) openCandidates() bool {
	items := e.collectCandidates()
	if len(items) == 0 {
		return false
	}
	e.cand = candidateList{open: true, items: items}
	return true
}

// selectionIndex maps a selection key to a position on the current page.
func (e *Engine) selectionIndex(key rune) (int, bool) {
	keys := e.selectionKeys
	if len(keys) > e.perPage {
		keys = keys[:e.perPage]
	}
	i := slices.Index(keys, key)
	if i < 0 {
		return 0, false
	}
	idx := e.cand.page*e.perPage + i
	if idx >= len(e.cand.items) {
		return 0, false
	}
	return idx, true
}

// choose applies a candidate to the buffer and closes the list.
func (e *Engine) choose(idx int) {
	c := e.cand.items[idx]
	e.setText(c.from, c.text)
	e.pin(c.from, c.to)
	e.cand.close()
	e.segment()
}
