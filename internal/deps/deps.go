// Package deps reports on the external programs dbvoir shells out to.
package deps

// Status describes one external program and whether it can be executed.
// Command holds the resolved path when Available is true and the configured
// name otherwise.
type Status struct {
	Name        string
	Command     string
	Description string
	Optional    bool
	Available   bool
	Detail      string
}
