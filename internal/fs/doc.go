// Package fs abstracts the few filesystem calls the file store makes so
// tests can inject write, sync and close failures.
//
// Production code uses Default, which delegates to the os package. Tests
// wrap it in a FaultyFS:
//
//	ffs := fs.NewFaultyFS(nil)
//	ffs.AddRule("parts.log", fs.Fault{FailAfterBytes: 64})
package fs
