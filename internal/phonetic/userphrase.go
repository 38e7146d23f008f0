package phonetic

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"chewbridge/internal/store"
)

// userPhrases reads learned phrases from a store on demand, so edits made
// to the database by other tools are seen on the next lookup. With a nil
// store it is empty and learns nothing.
type userPhrases struct {
	store    *store.Store
	logger   *slog.Logger
	lifetime int64
}

func loadUserPhrases(st *store.Store, logger *slog.Logger) (*userPhrases, error) {
	u := &userPhrases{store: st, logger: logger}
	if st == nil {
		return u, nil
	}

	var err error
	if u.lifetime, err = st.Lifetime(); err != nil {
		return nil, fmt.Errorf("load user phrases: %w", err)
	}
	return u, nil
}

func (u *userPhrases) enabled() bool {
	return u.store != nil
}

// lookup returns learned phrases for phones, most used first. Phones the
// store cannot hold have none; a store error is logged and treated as none.
func (u *userPhrases) lookup(phones []uint16) []store.UserPhrase {
	if !u.enabled() || len(phones) == 0 || len(phones) > store.MaxPhrasePhones || slices.Contains(phones, 0) {
		return nil
	}
	list, err := u.store.Lookup(phones)
	if err != nil {
		u.logger.Warn("user phrase lookup failed", "phones", FormatPhones(phones), "error", err)
		return nil
	}
	return list
}

// tick advances the lifetime counter once per commit.
func (u *userPhrases) tick() error {
	if !u.enabled() {
		return nil
	}
	if err := u.store.AddLifetime(1); err != nil {
		return err
	}
	u.lifetime++
	return nil
}

// learn records one use of a phrase. It reports whether the phrase was new.
func (u *userPhrases) learn(text string, phones []uint16, dict *Dictionary) (bool, error) {
	if !u.enabled() {
		return false, nil
	}

	p, err := u.store.Get(phones, text)
	switch {
	case errors.Is(err, store.ErrNotFound):
		p = &store.UserPhrase{Phrase: text, Phones: append([]uint16(nil), phones...)}
		if p.MaxFreq, err = u.store.MaxUserFreq(phones); err != nil {
			return false, err
		}
		for _, d := range dict.Lookup(phones) {
			p.MaxFreq = max(p.MaxFreq, d.Freq)
			if d.Text == text {
				p.OrigFreq = d.Freq
			}
		}
	case err != nil:
		return false, err
	}

	added := p.UserFreq == 0
	p.UserFreq++
	p.Time = u.lifetime
	if err := u.store.Upsert(*p); err != nil {
		return false, err
	}
	return added, nil
}

func (u *userPhrases) close() error {
	if u.store == nil {
		return nil
	}
	err := u.store.Close()
	u.store = nil
	return err
}
