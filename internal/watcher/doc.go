// Package watcher keeps an index fresh as files change.
//
// HybridWatcher produces FileEvents with fsnotify, falling back to polling
// on filesystems where fsnotify cannot be used (network mounts, some
// container volumes). Events are filtered through gitignore.Rules and a
// .gitignore edit reloads the affected rules.
//
// Scheduler debounces those events and runs one rebuild per quiet period:
//
//	w, _ := watcher.NewHybridWatcher(watcher.Options{Rules: rules})
//	if err := w.Start(ctx, root); err != nil {
//	    return err
//	}
//	s := watcher.NewScheduler(watcher.SchedulerConfig{
//	    Window:  watcher.DefaultCodeDebounce,
//	    Reindex: func(ctx context.Context, _ []watcher.FileEvent) error {
//	        _, err := engine.Index(ctx, index.IndexOptions{})
//	        return err
//	    },
//	})
//	s.Start(ctx, w)
//	defer s.Stop()
package watcher
