// Package phonetic is a small bopomofo composition engine.
//
// It is not libchewing. It implements the engine capability set with a
// TOML phrase dictionary, greedy longest-match phrase segmentation and an
// optional SQLite store of learned phrases, which is enough to drive a
// bridge end to end.
//
// Keys are turned into bopomofo symbols through a keyboard table. A tone
// key (or Space, for the first tone) completes the reading; the syllable
// is inserted into the buffer at the cursor and the whole buffer is
// segmented again:
//
//	keys   h k 4 g 4
//	reading ㄘㄜˋ ㄕˋ
//	buffer  測 試        symbols, one per syllable
//	        └──┘         interval [0,2) from the phrase 測試
package phonetic
