// Command dbvoir watches a Soulseek download directory, imports finished
// tracks into the beets library, and asks Jellyfin to rescan.
//
// `dbvoir run` starts the watcher in the foreground. The other subcommands
// talk to a running watcher through its HTTP API, or operate directly on the
// processed record and the beets library when no watcher is reachable.
package main
