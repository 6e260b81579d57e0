package monitor

import (
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"

	"github.com/benchtools/benchwatch/internal/statefile"
)

// newStateWatcher installs filesystem notifications on the state and
// results directories.
func newStateWatcher(paths statefile.Paths) (*fsnotify.Watcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := watcher.Add(paths.StateDir()); err != nil {
		watcher.Close()
		return nil, err
	}
	if err := watcher.Add(paths.ResultsDir()); err != nil {
		watcher.Close()
		return nil, err
	}
	return watcher, nil
}

// routeEvent maps a filesystem event to the state kind it affects.
// Atomic writes land as a rename onto the destination, which fsnotify
// reports as Create, so Create matters as much as Write here. Removals
// count too: a deleted result file must shrink the summary list. Temp
// files from in-flight writes are ignored.
func routeEvent(paths statefile.Paths, ev fsnotify.Event) (Kind, bool) {
	if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename|fsnotify.Remove) == 0 {
		return "", false
	}

	name := filepath.Base(ev.Name)
	switch name {
	case statefile.RunStateFile:
		return KindRunState, true
	case statefile.LauncherStateFile:
		return KindLauncherState, true
	case statefile.CheckpointFile:
		return KindCheckpoint, true
	}

	if filepath.Dir(ev.Name) == paths.ResultsDir() && strings.HasSuffix(name, ".json") {
		return KindResults, true
	}
	return "", false
}
