package phonetic

import (
	"strings"

	"golang.org/x/text/width"

	"chewbridge/internal/engine"
)

// Aux notices.
const (
	auxLearned   = "已加入："
	auxEnglish   = "English mode"
	auxChinese   = "Chinese mode"
	auxFullShape = "Full-shape mode"
	auxHalfShape = "Half-shape mode"
)

// begin resets the per-keystroke outputs.
func (e *Engine) begin() {
	e.commit = ""
	e.hasCommit = false
	e.aux = ""
	e.ignore = false
	e.absorb = false
}

func (e *Engine) emit(text string) {
	e.commit += text
	e.hasCommit = true
}

func (e *Engine) empty() bool {
	return len(e.symbols) == 0 && e.reading.Empty()
}

// Handle applies a named key.
func (e *Engine) Handle(op engine.Op) {
	e.begin()
	switch op {
	case engine.OpSpace:
		e.space()
	case engine.OpEnter:
		e.enter()
	case engine.OpBackspace:
		e.backspace()
	case engine.OpDelete:
		e.deleteForward()
	case engine.OpEsc:
		e.escape()
	case engine.OpLeft, engine.OpRight, engine.OpHome, engine.OpEnd:
		e.move(op)
	case engine.OpUp:
		e.up()
	case engine.OpDown:
		e.down()
	case engine.OpPageUp, engine.OpPageDown:
		e.page(op)
	case engine.OpTab:
		e.tab()
	case engine.OpCapsLock:
		e.toggleEnglish()
	case engine.OpShift:
		e.toggleShape()
	default:
		e.ignore = true
	}
}

// HandleDefault applies a printable character.
func (e *Engine) HandleDefault(ch rune) {
	e.begin()
	if ch < 0x20 || ch == 0x7f {
		e.ignore = true
		return
	}

	if e.cand.open {
		if idx, ok := e.selectionIndex(ch); ok {
			e.choose(idx)
			return
		}
		e.absorb = true
		return
	}

	if e.english {
		e.insertLiteral(ch)
		return
	}

	mapped, accepted := e.keyboard.Feed(&e.reading, ch)
	switch {
	case !mapped:
		if !e.reading.Empty() {
			e.absorb = true
			return
		}
		e.insertLiteral(ch)
	case !accepted:
		e.absorb = true
	case e.reading.Tone != 0:
		tone := e.reading.Tone
		e.reading.Tone = 0
		e.completeReading(tone)
	}
}

// completeReading turns the reading into a symbol. A syllable with no
// character in the dictionary is refused and the reading kept.
func (e *Engine) completeReading(tone uint8) {
	phone := e.keyboard.Complete(e.reading, tone).Encode()
	text, ok := e.bestPhrase([]uint16{phone})
	if !ok {
		e.absorb = true
		return
	}
	e.reading = Syllable{}
	e.insertSymbol(symbol{text: text, phone: phone})
	e.afterInsert()
}

func (e *Engine) insertLiteral(ch rune) {
	text := string(ch)
	if e.fullShape {
		text = width.Widen.String(text)
	}
	e.insertSymbol(symbol{text: text})
	e.afterInsert()
}

// afterInsert resegments and commits leading text past the length limit.
func (e *Engine) afterInsert() {
	e.segment()
	for len(e.symbols) > e.maxSymbolLen {
		end := e.leadingSpan()
		var b strings.Builder
		for _, s := range e.symbols[:end] {
			b.WriteString(s.text)
		}
		e.emit(b.String())
		e.removeSymbols(0, end)
		e.segment()
	}
}

func (e *Engine) space() {
	switch {
	case e.cand.open:
		e.cand.turn(1, e.perPage)
	case !e.reading.Empty():
		e.completeReading(1)
	case len(e.symbols) == 0:
		e.ignore = true
	case e.spaceAsSelection && !e.english:
		if !e.openCandidates() {
			e.absorb = true
		}
	default:
		e.insertLiteral(' ')
	}
}

func (e *Engine) enter() {
	switch {
	case e.cand.open, !e.reading.Empty():
		e.absorb = true
	case len(e.symbols) == 0:
		e.ignore = true
	default:
		e.learn()
		e.emit(e.BufferString())
		e.clear()
	}
}

// learn records the user's phrase choices before the buffer is committed.
func (e *Engine) learn() {
	if !e.user.enabled() {
		return
	}
	if err := e.user.tick(); err != nil {
		e.logger.Warn("advance lifetime", "error", err)
	}
	for _, iv := range e.pinned {
		if iv.Len() < 2 {
			continue
		}
		var b strings.Builder
		for _, s := range e.symbols[iv.From:iv.To] {
			b.WriteString(s.text)
		}
		text := b.String()
		added, err := e.user.learn(text, e.phones(iv.From, iv.To), e.dict)
		if err != nil {
			e.logger.Warn("learn phrase", "phrase", text, "error", err)
			continue
		}
		if added {
			e.aux = auxLearned + text
		}
	}
}

func (e *Engine) backspace() {
	switch {
	case e.cand.open:
		e.cand.close()
	case !e.reading.Empty():
		switch {
		case e.reading.Final != 0:
			e.reading.Final = 0
		case e.reading.Medial != 0:
			e.reading.Medial = 0
		default:
			e.reading.Initial = 0
		}
	case len(e.symbols) == 0:
		e.ignore = true
	case e.cursor == 0:
		e.absorb = true
	default:
		e.removeSymbols(e.cursor-1, e.cursor)
		e.segment()
	}
}

func (e *Engine) deleteForward() {
	switch {
	case e.cand.open, !e.reading.Empty():
		e.absorb = true
	case len(e.symbols) == 0:
		e.ignore = true
	case e.cursor >= len(e.symbols):
		e.absorb = true
	default:
		e.removeSymbols(e.cursor, e.cursor+1)
		e.segment()
	}
}

func (e *Engine) escape() {
	switch {
	case e.cand.open:
		e.cand.close()
	case !e.reading.Empty():
		e.reading = Syllable{}
	case len(e.symbols) == 0:
		e.ignore = true
	default:
		e.absorb = true
	}
}

func (e *Engine) move(op engine.Op) {
	if e.cand.open {
		switch op {
		case engine.OpLeft:
			e.cand.turn(-1, e.perPage)
		case engine.OpRight:
			e.cand.turn(1, e.perPage)
		default:
			e.absorb = true
		}
		return
	}
	if e.empty() {
		e.ignore = true
		return
	}
	if !e.reading.Empty() {
		e.absorb = true
		return
	}

	pos := e.cursor
	switch op {
	case engine.OpLeft:
		pos--
	case engine.OpRight:
		pos++
	case engine.OpHome:
		pos = 0
	case engine.OpEnd:
		pos = len(e.symbols)
	}
	pos = min(max(pos, 0), len(e.symbols))
	if pos == e.cursor {
		e.absorb = true
		return
	}
	e.cursor = pos
}

func (e *Engine) up() {
	switch {
	case e.cand.open:
		e.cand.close()
	case e.empty():
		e.ignore = true
	default:
		e.absorb = true
	}
}

func (e *Engine) down() {
	switch {
	case e.cand.open:
		e.cand.turn(1, e.perPage)
	case e.empty():
		e.ignore = true
	case !e.reading.Empty():
		e.absorb = true
	case !e.openCandidates():
		e.absorb = true
	}
}

func (e *Engine) page(op engine.Op) {
	switch {
	case e.cand.open && op == engine.OpPageUp:
		e.cand.turn(-1, e.perPage)
	case e.cand.open:
		e.cand.turn(1, e.perPage)
	case e.empty():
		e.ignore = true
	default:
		e.absorb = true
	}
}

// tab toggles a phrase break at the cursor, or before the last symbol
// when the cursor is at either end.
func (e *Engine) tab() {
	switch {
	case e.empty():
		e.ignore = true
		return
	case e.cand.open, !e.reading.Empty(), len(e.symbols) < 2:
		e.absorb = true
		return
	}

	at := e.cursor
	if at <= 0 || at >= len(e.symbols) {
		at = len(e.symbols) - 1
	}
	if e.breaks[at] {
		delete(e.breaks, at)
	} else {
		e.breaks[at] = true
		pinned := e.pinned[:0]
		for _, iv := range e.pinned {
			if iv.From < at && at < iv.To {
				continue
			}
			pinned = append(pinned, iv)
		}
		e.pinned = pinned
	}
	e.segment()
}

func (e *Engine) toggleEnglish() {
	e.english = !e.english
	e.reading = Syllable{}
	e.cand.close()
	if e.english {
		e.aux = auxEnglish
	} else {
		e.aux = auxChinese
	}
}

func (e *Engine) toggleShape() {
	e.fullShape = !e.fullShape
	if e.fullShape {
		e.aux = auxFullShape
	} else {
		e.aux = auxHalfShape
	}
}
