// Package watcher turns changes under the download directory into detector
// evaluations.
//
// Three event sources are supported: recursive fsnotify watches, a periodic
// size/mtime scan for filesystems that do not deliver notifications (network
// mounts, some FUSE backends), and auto, which tests the directory once and
// picks between them. Every source hands paths to a Sink; deciding whether a
// file is complete is the detector's job.
package watcher
