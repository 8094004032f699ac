package core

import (
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
)

// MountRequest asks for HostDir to be visible inside the container under the
// mount named Name (for example "bam-dir"). The container mount point is
// "/" + Name.
type MountRequest struct {
	Name    string
	HostDir string
}

// Mount is one resolved host directory to container mount point binding.
type Mount struct {
	Name          string
	HostDir       string
	ContainerPath string
}

// Flag renders the mount as a docker -v value.
func (m Mount) Flag() string {
	return m.HostDir + ":" + m.ContainerPath
}

// Mapping is the host to container path translation for a single tool
// invocation. It is built per invocation and never persisted.
type Mapping struct {
	mounts []Mount
}

// Mounts returns the mapping's mounts sorted by name.
func (m Mapping) Mounts() []Mount {
	return append([]Mount(nil), m.mounts...)
}

// Resolve translates a host path into the container namespace using the
// mount with the longest host directory prefix.
func (m Mapping) Resolve(hostPath string) (string, bool) {
	clean, err := filepath.Abs(hostPath)
	if err != nil {
		return "", false
	}
	best := -1
	for i, mt := range m.mounts {
		if !withinDir(clean, mt.HostDir) {
			continue
		}
		if best < 0 || len(mt.HostDir) > len(m.mounts[best].HostDir) {
			best = i
		}
	}
	if best < 0 {
		return "", false
	}
	mt := m.mounts[best]
	rel, err := filepath.Rel(mt.HostDir, clean)
	if err != nil {
		return "", false
	}
	if rel == "." {
		return mt.ContainerPath, true
	}
	return path.Join(mt.ContainerPath, filepath.ToSlash(rel)), true
}

func withinDir(p, dir string) bool {
	if p == dir {
		return true
	}
	if dir == string(filepath.Separator) {
		return strings.HasPrefix(p, dir)
	}
	return strings.HasPrefix(p, dir+string(filepath.Separator))
}

// MapVolumes binds each distinct host directory to a container mount point.
//
// The result depends only on the set of requests, not their order:
//   - requests are processed sorted by name, then host dir
//   - a host dir requested under several names is mounted once, under the
//     lexically first name
//   - one name requested with two different host dirs is a *MountConflictError
//   - a host dir that does not exist or is not a directory is a *MountConflictError
func MapVolumes(requests []MountRequest) (Mapping, error) {
	sorted := make([]MountRequest, 0, len(requests))
	for _, r := range requests {
		if r.Name == "" || strings.ContainsAny(r.Name, "/:") {
			return Mapping{}, &MountConflictError{Name: r.Name, HostDir: r.HostDir, Msg: "invalid mount name"}
		}
		if r.HostDir == "" {
			return Mapping{}, &MountConflictError{Name: r.Name, Msg: "empty host directory"}
		}
		abs, err := filepath.Abs(r.HostDir)
		if err != nil {
			return Mapping{}, &MountConflictError{Name: r.Name, HostDir: r.HostDir, Msg: err.Error()}
		}
		sorted = append(sorted, MountRequest{Name: r.Name, HostDir: abs})
	}
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].Name != sorted[j].Name {
			return sorted[i].Name < sorted[j].Name
		}
		return sorted[i].HostDir < sorted[j].HostDir
	})

	byName := make(map[string]string, len(sorted))
	byDir := make(map[string]string, len(sorted))
	var mounts []Mount
	for _, r := range sorted {
		if prev, ok := byName[r.Name]; ok {
			if prev != r.HostDir {
				return Mapping{}, &MountConflictError{
					Name:    r.Name,
					HostDir: r.HostDir,
					Msg:     fmt.Sprintf("already bound to %s", prev),
				}
			}
			continue
		}
		byName[r.Name] = r.HostDir
		if _, ok := byDir[r.HostDir]; ok {
			continue
		}

		info, err := os.Stat(r.HostDir)
		if err != nil {
			return Mapping{}, &MountConflictError{Name: r.Name, HostDir: r.HostDir, Msg: "host directory does not exist"}
		}
		if !info.IsDir() {
			return Mapping{}, &MountConflictError{Name: r.Name, HostDir: r.HostDir, Msg: "host path is not a directory"}
		}
		byDir[r.HostDir] = r.Name
		mounts = append(mounts, Mount{Name: r.Name, HostDir: r.HostDir, ContainerPath: "/" + r.Name})
	}
	return Mapping{mounts: mounts}, nil
}
