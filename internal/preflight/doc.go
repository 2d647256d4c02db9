// Package preflight checks that the host can build and keep an index:
// free disk for the data directory, write access to the project root,
// enough file descriptors for the watcher, a usable embedding backend and
// a trustworthy stored snapshot.
//
//	c := preflight.New(preflight.Options{Root: root, DataDir: dataDir})
//	results := c.RunAll(ctx)
//	if preflight.HasCriticalFailures(results) {
//	    // refuse to start
//	}
package preflight
