// Package staging tidies the download directory after imports.
//
// beets moves files out of album folders but leaves the folders behind.
// PruneEmptyDirs removes those once they have been idle long enough that the
// download client is not about to write into them again.
package staging
