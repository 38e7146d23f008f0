package store

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	_ "github.com/mattn/go-sqlite3"
)

// ErrNotFound is returned when a phrase is not in the store.
var ErrNotFound = errors.New("store: phrase not found")

// ErrInvalidPhrase is returned for phrases the schema cannot hold.
var ErrInvalidPhrase = errors.New("store: invalid phrase")

// Options tune how the database is opened.
type Options struct {
	// BusyTimeout is how long a writer waits on a locked database.
	BusyTimeout time.Duration
}

// Store is the SQLite user phrase store.
type Store struct {
	db   *sql.DB
	path string
}

// Open opens or creates the database at path with default options.
func Open(path string) (*Store, error) {
	return OpenWithOptions(path, Options{BusyTimeout: 5 * time.Second})
}

// OpenWithOptions opens or creates the database at path and runs migrations.
func OpenWithOptions(path string, opts Options) (*Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	dsn := fmt.Sprintf("%s?_journal_mode=WAL&_busy_timeout=%d", path, opts.BusyTimeout.Milliseconds())
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// One engine writes at a time; a single connection keeps :memory: usable.
	db.SetMaxOpenConns(1)

	if err := MigrateDB(db); err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db, path: path}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Path returns the database path the store was opened with.
func (s *Store) Path() string {
	return s.path
}

// DB returns the underlying handle, for migrations and diagnostics.
func (s *Store) DB() *sql.DB {
	return s.db
}

const phoneColumns = "phone_0, phone_1, phone_2, phone_3, phone_4, phone_5, phone_6, phone_7, phone_8, phone_9, phone_10"

// phoneMatch is the WHERE clause fragment matching all eleven phone columns.
var phoneMatch = func() string {
	parts := make([]string, MaxPhrasePhones)
	for i := range parts {
		parts[i] = fmt.Sprintf("phone_%d = ?", i)
	}
	return strings.Join(parts, " AND ")
}()

// phoneArgs pads phones to the eleven schema columns.
func phoneArgs(phones []uint16) []any {
	args := make([]any, MaxPhrasePhones)
	for i := range args {
		if i < len(phones) {
			args[i] = int64(phones[i])
		} else {
			args[i] = int64(0)
		}
	}
	return args
}

func validPhones(phones []uint16) error {
	if len(phones) == 0 || len(phones) > MaxPhrasePhones {
		return fmt.Errorf("%w: %d phones", ErrInvalidPhrase, len(phones))
	}
	for _, p := range phones {
		if p == 0 {
			return fmt.Errorf("%w: zero phone", ErrInvalidPhrase)
		}
	}
	return nil
}

func validate(p UserPhrase) error {
	if err := validPhones(p.Phones); err != nil {
		return err
	}
	if n := utf8.RuneCountInString(p.Phrase); n != len(p.Phones) {
		return fmt.Errorf("%w: %q has %d characters for %d phones", ErrInvalidPhrase, p.Phrase, n, len(p.Phones))
	}
	return nil
}

// Upsert inserts a phrase or replaces the existing entry with the same
// phones and text.
func (s *Store) Upsert(p UserPhrase) error {
	if err := validate(p); err != nil {
		return err
	}

	args := []any{p.Time, p.OrigFreq, p.MaxFreq, p.UserFreq, len(p.Phones), p.Phrase}
	args = append(args, phoneArgs(p.Phones)...)
	_, err := s.db.Exec(`
		INSERT OR REPLACE INTO userphrase_v1 (
			time, orig_freq, max_freq, user_freq, length, phrase, `+phoneColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		args...,
	)
	if err != nil {
		return fmt.Errorf("upsert user phrase: %w", err)
	}
	return nil
}

// Lookup returns every phrase stored for phones, most used first.
func (s *Store) Lookup(phones []uint16) ([]UserPhrase, error) {
	if err := validPhones(phones); err != nil {
		return nil, err
	}

	args := append([]any{len(phones)}, phoneArgs(phones)...)
	rows, err := s.db.Query(`
		SELECT time, orig_freq, max_freq, user_freq, phrase
		FROM userphrase_v1 WHERE length = ? AND `+phoneMatch+`
		ORDER BY user_freq DESC, time DESC, phrase`,
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("lookup user phrases: %w", err)
	}
	defer rows.Close()

	var out []UserPhrase
	for rows.Next() {
		p := UserPhrase{Phones: append([]uint16(nil), phones...)}
		if err := rows.Scan(&p.Time, &p.OrigFreq, &p.MaxFreq, &p.UserFreq, &p.Phrase); err != nil {
			return nil, fmt.Errorf("scan user phrase: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// Get returns one phrase, or ErrNotFound.
func (s *Store) Get(phones []uint16, phrase string) (*UserPhrase, error) {
	if err := validPhones(phones); err != nil {
		return nil, err
	}

	args := append([]any{len(phones), phrase}, phoneArgs(phones)...)
	p := UserPhrase{Phrase: phrase, Phones: append([]uint16(nil), phones...)}
	err := s.db.QueryRow(`
		SELECT time, orig_freq, max_freq, user_freq
		FROM userphrase_v1 WHERE length = ? AND phrase = ? AND `+phoneMatch,
		args...,
	).Scan(&p.Time, &p.OrigFreq, &p.MaxFreq, &p.UserFreq)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get user phrase: %w", err)
	}
	return &p, nil
}

// Remove deletes a phrase. It reports whether a row was removed.
func (s *Store) Remove(phones []uint16, phrase string) (bool, error) {
	if err := validPhones(phones); err != nil {
		return false, err
	}

	args := append([]any{len(phones), phrase}, phoneArgs(phones)...)
	res, err := s.db.Exec(`
		DELETE FROM userphrase_v1 WHERE length = ? AND phrase = ? AND `+phoneMatch,
		args...,
	)
	if err != nil {
		return false, fmt.Errorf("remove user phrase: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n > 0, nil
}

// MaxUserFreq returns the highest user frequency stored for phones, or 0.
func (s *Store) MaxUserFreq(phones []uint16) (int, error) {
	if err := validPhones(phones); err != nil {
		return 0, err
	}

	args := append([]any{len(phones)}, phoneArgs(phones)...)
	var freq sql.NullInt64
	err := s.db.QueryRow(`
		SELECT MAX(user_freq) FROM userphrase_v1 WHERE length = ? AND `+phoneMatch,
		args...,
	).Scan(&freq)
	if err != nil {
		return 0, fmt.Errorf("max user freq: %w", err)
	}
	return int(freq.Int64), nil
}

// All returns every stored phrase ordered by length and text.
func (s *Store) All() ([]UserPhrase, error) {
	rows, err := s.db.Query(`
		SELECT time, orig_freq, max_freq, user_freq, length, phrase, ` + phoneColumns + `
		FROM userphrase_v1 ORDER BY length, phrase`)
	if err != nil {
		return nil, fmt.Errorf("list user phrases: %w", err)
	}
	defer rows.Close()

	var out []UserPhrase
	for rows.Next() {
		var (
			p      UserPhrase
			length int
			phones [MaxPhrasePhones]int64
		)
		dest := []any{&p.Time, &p.OrigFreq, &p.MaxFreq, &p.UserFreq, &length, &p.Phrase}
		for i := range phones {
			dest = append(dest, &phones[i])
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("scan user phrase: %w", err)
		}
		length = min(max(length, 0), MaxPhrasePhones)
		p.Phones = make([]uint16, length)
		for i := range p.Phones {
			p.Phones[i] = uint16(phones[i])
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

const lifetimeID = 0

// Lifetime returns the lifetime counter used to timestamp phrase usage.
func (s *Store) Lifetime() (int64, error) {
	var v int64
	if err := s.db.QueryRow("SELECT value FROM config_v1 WHERE id = ?", lifetimeID).Scan(&v); err != nil {
		return 0, fmt.Errorf("read lifetime: %w", err)
	}
	return v, nil
}

// AddLifetime advances the lifetime counter by delta.
func (s *Store) AddLifetime(delta int64) error {
	if _, err := s.db.Exec("INSERT OR IGNORE INTO config_v1 (id, value) VALUES (?, 0)", lifetimeID); err != nil {
		return fmt.Errorf("init lifetime: %w", err)
	}
	if _, err := s.db.Exec("UPDATE config_v1 SET value = value + ? WHERE id = ?", delta, lifetimeID); err != nil {
		return fmt.Errorf("update lifetime: %w", err)
	}
	return nil
}

// Stats summarizes the store.
func (s *Store) Stats() (*Stats, error) {
	var st Stats
	var maxFreq sql.NullInt64
	if err := s.db.QueryRow("SELECT COUNT(*), MAX(user_freq) FROM userphrase_v1").Scan(&st.Phrases, &maxFreq); err != nil {
		return nil, fmt.Errorf("count user phrases: %w", err)
	}
	st.MaxUserFreq = int(maxFreq.Int64)

	lifetime, err := s.Lifetime()
	if err != nil {
		return nil, err
	}
	st.Lifetime = lifetime
	return &st, nil
}
