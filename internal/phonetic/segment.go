package phonetic

import (
	"sort"

	"chewbridge/internal/engine"
)

// bestPhrase returns the preferred text for phones: the most used learned
// phrase, else the most frequent dictionary phrase.
func (e *Engine) bestPhrase(phones []uint16) (string, bool) {
	if learned := e.user.lookup(phones); len(learned) > 0 {
		return learned[0].Phrase, true
	}
	if list := e.dict.Lookup(phones); len(list) > 0 {
		return list[0].Text, true
	}
	return "", false
}

func (e *Engine) phones(from, to int) []uint16 {
	out := make([]uint16, to-from)
	for i := from; i < to; i++ {
		out[i-from] = e.symbols[i].phone
	}
	return out
}

func (e *Engine) pinnedAt(i int) (engine.Interval, bool) {
	for _, iv := range e.pinned {
		if iv.From == i {
			return iv, true
		}
	}
	return engine.Interval{}, false
}

// freeRun counts the symbols from i that a dictionary phrase may cover: it
// stops at a literal, a break or the start of a pinned range.
func (e *Engine) freeRun(i int) int {
	n := 0
	for j := i; j < len(e.symbols); j++ {
		if e.symbols[j].phone == 0 {
			break
		}
		if j > i {
			if e.breaks[j] {
				break
			}
			if _, ok := e.pinnedAt(j); ok {
				break
			}
		}
		n++
	}
	return n
}

func (e *Engine) setText(from int, text string) {
	i := from
	for _, r := range text {
		e.symbols[i].text = string(r)
		i++
	}
}

// segment recomputes symbol texts and intervals: pinned ranges are kept,
// and the rest of the buffer is covered greedily by the longest phrases.
func (e *Engine) segment() {
	e.intervals = e.intervals[:0]
	for i := 0; i < len(e.symbols); {
		if iv, ok := e.pinnedAt(i); ok {
			if iv.Len() > 1 {
				e.intervals = append(e.intervals, iv)
			}
			i = iv.To
			continue
		}

		step := 1
		for k := min(e.freeRun(i), MaxPhraseLen); k >= 2; k-- {
			if text, ok := e.bestPhrase(e.phones(i, i+k)); ok {
				e.setText(i, text)
				e.intervals = append(e.intervals, engine.Interval{From: i, To: i + k})
				step = k
				break
			}
		}
		if step == 1 && e.symbols[i].phone != 0 {
			if text, ok := e.bestPhrase(e.phones(i, i+1)); ok {
				e.symbols[i].text = text
			}
		}
		i += step
	}
}

// insertSymbol puts s at the cursor and advances the cursor.
func (e *Engine) insertSymbol(s symbol) {
	at := e.cursor
	e.symbols = append(e.symbols, symbol{})
	copy(e.symbols[at+1:], e.symbols[at:])
	e.symbols[at] = s

	pinned := e.pinned[:0]
	for _, iv := range e.pinned {
		switch {
		case iv.To <= at:
		case iv.From >= at:
			iv.From++
			iv.To++
		default:
			continue // split by the insertion
		}
		pinned = append(pinned, iv)
	}
	e.pinned = pinned
	e.shiftBreaks(func(b int) int {
		if b > at {
			return b + 1
		}
		return b
	})
	e.cursor++
}

// removeSymbols deletes [from, to) and moves the cursor with the text.
func (e *Engine) removeSymbols(from, to int) {
	n := to - from
	e.symbols = append(e.symbols[:from], e.symbols[to:]...)

	pinned := e.pinned[:0]
	for _, iv := range e.pinned {
		switch {
		case iv.To <= from:
		case iv.From >= to:
			iv.From -= n
			iv.To -= n
		default:
			continue
		}
		pinned = append(pinned, iv)
	}
	e.pinned = pinned
	e.shiftBreaks(func(b int) int {
		switch {
		case b >= to:
			return b - n
		case b > from:
			return -1
		}
		return b
	})

	switch {
	case e.cursor >= to:
		e.cursor -= n
	case e.cursor > from:
		e.cursor = from
	}
}

func (e *Engine) shiftBreaks(f func(int) int) {
	next := make(map[int]bool, len(e.breaks))
	for b := range e.breaks {
		if nb := f(b); nb > 0 && nb < len(e.symbols) {
			next[nb] = true
		}
	}
	e.breaks = next
}

// pin marks [from, to) as chosen by the user, replacing overlapping pins.
func (e *Engine) pin(from, to int) {
	pinned := e.pinned[:0]
	for _, iv := range e.pinned {
		if iv.To <= from || iv.From >= to {
			pinned = append(pinned, iv)
		}
	}
	pinned = append(pinned, engine.Interval{From: from, To: to})
	sort.Slice(pinned, func(i, j int) bool { return pinned[i].From < pinned[j].From })
	e.pinned = pinned
}

// leadingSpan returns the end of the first phrase or symbol in the buffer.
func (e *Engine) leadingSpan() int {
	if len(e.intervals) > 0 && e.intervals[0].From == 0 {
		return e.intervals[0].To
	}
	return 1
}

// clear empties the buffer and its decorations.
func (e *Engine) clear() {
	e.symbols = e.symbols[:0]
	e.cursor = 0
	e.pinned = e.pinned[:0]
	e.breaks = make(map[int]bool)
	e.intervals = e.intervals[:0]
	e.cand.close()
}
