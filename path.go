package gofat32

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/aligator/gofat32/checkpoint"
)

// Drives is the number of independent working directory contexts of a volume.
const Drives = 4

type workdir struct {
	path    string
	cluster uint32
}

// Drive is a working directory context of a volume.
// Relative paths passed to its methods start at its current directory.
type Drive struct {
	v  *Volume
	id int
}

// Drive returns the working directory context id (0 to Drives-1).
// Using a Drive with an invalid id fails with ErrInvalidDrive.
func (v *Volume) Drive(id int) *Drive {
	return &Drive{v: v, id: id}
}

func (d *Drive) workdir() (workdir, error) {
	if d.id < 0 || d.id >= Drives {
		return workdir{}, checkpoint.Wrap(fmt.Errorf("drive %d", d.id), ErrInvalidDrive)
	}
	d.v.drivesLock.Lock()
	defer d.v.drivesLock.Unlock()
	return d.v.drives[d.id], nil
}

func isSeparator(c byte) bool {
	return c == '/' || c == '\\'
}

// splitComponents splits a path at '/' and '\' and drops empty components.
func splitComponents(path string) []string {
	return strings.FieldsFunc(path, func(r rune) bool {
		return r == '/' || r == '\\'
	})
}

// splitPath splits a path into the directory and the last component.
// The directory keeps its trailing separator, so "/a" splits into "/" and "a".
func splitPath(path string) (string, string) {
	path = strings.TrimLeft(path, " ")
	i := strings.LastIndexAny(path, "/\\")
	return path[:i+1], path[i+1:]
}

// walk resolves a path to the first cluster of a directory.
// It also returns the components of the absolute path of that directory.
func (d *Drive) walk(path string, s *steps) (uint32, []string, error) {
	wd, err := d.workdir()
	if err != nil {
		return 0, nil, err
	}

	path = strings.TrimLeft(path, " ")
	cluster, names := wd.cluster, splitComponents(wd.path)
	if path != "" && isSeparator(path[0]) {
		cluster, names = rootCluster, nil
	}

	for _, component := range splitComponents(path) {
		if err := s.take(); err != nil {
			return 0, nil, err
		}

		switch component {
		case ".":
			continue
		case "..":
			if cluster == rootCluster {
				return 0, nil, checkpoint.Wrap(fmt.Errorf("path %q", path), ErrIllegalParentOfRoot)
			}
		}

		h, _, err := d.v.lookup(cluster, component, s)
		if err != nil {
			return 0, nil, err
		}
		if !h.IsDir() {
			return 0, nil, checkpoint.Wrap(fmt.Errorf("%q in %q", component, path), ErrNotDirectory)
		}

		// ".." of a directory directly below root points to cluster 0.
		cluster = h.Cluster()
		if cluster == 0 {
			cluster = rootCluster
		}

		if component == ".." {
			if len(names) > 0 {
				names = names[:len(names)-1]
			}
		} else {
			names = append(names, h.DisplayName())
		}
	}
	return cluster, names, nil
}

// find resolves a path to its directory entry.
func (d *Drive) find(path string) (EntryHeader, dirSlot, error) {
	dir, name := splitPath(path)
	if name == "" || name == "." || name == ".." {
		return EntryHeader{}, dirSlot{}, checkpoint.Wrap(fmt.Errorf("path %q", path), ErrIsDirectory)
	}

	s := d.v.newSteps()
	parent, _, err := d.walk(dir, s)
	if err != nil {
		return EntryHeader{}, dirSlot{}, err
	}
	return d.v.lookup(parent, name, s)
}

// ChangeDirectory changes the working directory of the drive and returns its first cluster.
func (d *Drive) ChangeDirectory(path string) (uint32, error) {
	cluster, names, err := d.walk(path, d.v.newSteps())
	if err != nil {
		return 0, err
	}

	d.v.drivesLock.Lock()
	d.v.drives[d.id] = workdir{path: "/" + strings.Join(names, "/"), cluster: cluster}
	d.v.drivesLock.Unlock()
	return cluster, nil
}

// Getwd returns the absolute path of the working directory.
func (d *Drive) Getwd() (string, error) {
	wd, err := d.workdir()
	return wd.path, err
}

// CreateFile creates an empty file. The parent directory must exist.
func (d *Drive) CreateFile(path string) error {
	return d.create(path, false)
}

// CreateDirectory creates a directory. The parent directory must exist.
func (d *Drive) CreateDirectory(path string) error {
	return d.create(path, true)
}

func (d *Drive) create(path string, isDir bool) error {
	dir, name := splitPath(path)
	if _, _, err := shortName(name); err != nil {
		return err
	}

	s := d.v.newSteps()
	parent, _, err := d.walk(dir, s)
	if err != nil {
		return err
	}
	return d.v.createEntry(parent, name, isDir, s)
}

// Stat returns the FileInfo of a file or directory.
func (d *Drive) Stat(path string) (os.FileInfo, error) {
	h, _, err := d.find(path)
	if err == nil {
		return h.FileInfo(), nil
	}
	if !errors.Is(err, ErrIsDirectory) {
		return nil, err
	}

	// The path ends at a directory without own entry here, e.g. "/" or "a/..".
	_, names, err := d.walk(path, d.v.newSteps())
	if err != nil {
		return nil, err
	}
	name := "/"
	if len(names) > 0 {
		name = names[len(names)-1]
	}
	return dirInfo{name: name}, nil
}

// ReadDir lists a directory without its "." and ".." entries.
func (d *Drive) ReadDir(path string) ([]os.FileInfo, error) {
	s := d.v.newSteps()
	cluster, _, err := d.walk(path, s)
	if err != nil {
		return nil, err
	}

	entries, err := d.v.readDir(cluster, s)
	if err != nil {
		return nil, err
	}

	infos := make([]os.FileInfo, len(entries))
	for i := range entries {
		infos[i] = entries[i].FileInfo()
	}
	return infos, nil
}

// Glob lists the entries of a directory whose names match pattern, see Match.
func (d *Drive) Glob(path, pattern string) ([]os.FileInfo, error) {
	infos, err := d.ReadDir(path)
	if err != nil {
		return nil, err
	}

	var matches []os.FileInfo
	for _, info := range infos {
		if Match(info.Name(), pattern) {
			matches = append(matches, info)
		}
	}
	return matches, nil
}

// Open opens a file for reading and appending.
func (d *Drive) Open(path string) (*File, error) {
	f := &File{}
	if err := d.OpenFile(f, path); err != nil {
		return nil, err
	}
	return f, nil
}

// Open opens a file relative to the working directory of drive 0.
func (v *Volume) Open(path string) (*File, error) {
	return v.Drive(0).Open(path)
}

// CreateFile creates a file relative to the working directory of drive 0.
func (v *Volume) CreateFile(path string) error {
	return v.Drive(0).CreateFile(path)
}

// CreateDirectory creates a directory relative to the working directory of drive 0.
func (v *Volume) CreateDirectory(path string) error {
	return v.Drive(0).CreateDirectory(path)
}

// ChangeDirectory changes the working directory of the given drive.
func (v *Volume) ChangeDirectory(drive int, path string) (uint32, error) {
	return v.Drive(drive).ChangeDirectory(path)
}
