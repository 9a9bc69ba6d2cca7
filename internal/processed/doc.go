// Package processed remembers which audio files have been imported so the
// watcher never hands the same file to beets twice.
//
// Three backends implement Record: an in-memory LRU (the default, lost on
// restart), a SQLite table for single-host persistence, and a Redis sorted
// set that several watcher instances can share. Every backend keys entries by
// Key(path) so NFC and NFD spellings of the same file collapse together.
package processed
