package cachestore

import "path/filepath"

// Paths is the filesystem layout for one (task_name, task_id) entry,
// mandated verbatim by §6.
type Paths struct {
	Dir        string // entries/<task_name>/<task_id>
	ValuePath  string // .../value.bin
	MetaPath   string // .../meta.json
	ScratchDir string // .../scratch/
	StdoutPath string // .../stdout.log
	StderrPath string // .../stderr.log
	// PendingPath holds the task metadata a subprocess dispatch needs to
	// reconstruct its task instance (§4.6) before the entry exists. It
	// lives outside the completeness index, so its presence never
	// affects Has/Load.
	PendingPath string // .../pending.json
}

func pathsFor(root, taskName, taskID string) Paths {
	dir := filepath.Join(root, "entries", taskName, taskID)
	return Paths{
		Dir:         dir,
		ValuePath:   filepath.Join(dir, "value.bin"),
		MetaPath:    filepath.Join(dir, "meta.json"),
		ScratchDir:  filepath.Join(dir, "scratch"),
		StdoutPath:  filepath.Join(dir, "stdout.log"),
		StderrPath:  filepath.Join(dir, "stderr.log"),
		PendingPath: filepath.Join(dir, "pending.json"),
	}
}
