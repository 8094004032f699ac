package core

import (
	"errors"
	"fmt"
	"path"
	"path/filepath"
	"strings"
)

// Image is a container image reference.
type Image struct {
	Name    string `yaml:"image"`
	Version string `yaml:"version"`
}

// Reference returns "name:version".
func (i Image) Reference() string {
	return i.Name + ":" + i.Version
}

// Invocation is the structured description of one containerized tool run:
// image, mounts, and the ordered argument list passed to the image. It is
// validated before it reaches a ToolRunner; nothing is built by string
// concatenation.
type Invocation struct {
	Image  Image
	Mounts []Mount
	Args   []string
}

// Validate checks that the invocation is complete and internally consistent.
func (inv Invocation) Validate() error {
	var errs []error
	if strings.TrimSpace(inv.Image.Name) == "" {
		errs = append(errs, errors.New("image name is empty"))
	}
	if strings.TrimSpace(inv.Image.Version) == "" {
		errs = append(errs, errors.New("image version is empty"))
	}
	if len(inv.Args) == 0 {
		errs = append(errs, errors.New("argument list is empty"))
	}
	for i, a := range inv.Args {
		if a == "" {
			errs = append(errs, fmt.Errorf("argument %d is empty", i))
		}
	}
	seen := make(map[string]string, len(inv.Mounts))
	for _, m := range inv.Mounts {
		if !path.IsAbs(m.ContainerPath) {
			errs = append(errs, fmt.Errorf("mount %s: container path %q is not absolute", m.Name, m.ContainerPath))
		}
		if prev, ok := seen[m.ContainerPath]; ok && prev != m.HostDir {
			errs = append(errs, fmt.Errorf("mount %s: container path %s bound twice", m.Name, m.ContainerPath))
		}
		seen[m.ContainerPath] = m.HostDir
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid invocation: %w", errors.Join(errs...))
	}
	return nil
}

// DockerArgs renders the invocation as the argument list of "docker".
func (inv Invocation) DockerArgs() []string {
	args := make([]string, 0, 3+2*len(inv.Mounts)+len(inv.Args))
	args = append(args, "run", "--rm")
	for _, m := range inv.Mounts {
		args = append(args, "-v", m.Flag())
	}
	args = append(args, inv.Image.Reference())
	args = append(args, inv.Args...)
	return args
}

// String renders the invocation as a docker command line for logs.
func (inv Invocation) String() string {
	return "docker " + strings.Join(inv.DockerArgs(), " ")
}

// HostPath maps a container path back to the host through the invocation's
// mounts.
func (inv Invocation) HostPath(containerPath string) (string, bool) {
	clean := path.Clean(containerPath)
	best := -1
	for i, m := range inv.Mounts {
		if clean != m.ContainerPath && !strings.HasPrefix(clean, m.ContainerPath+"/") {
			continue
		}
		if best < 0 || len(m.ContainerPath) > len(inv.Mounts[best].ContainerPath) {
			best = i
		}
	}
	if best < 0 {
		return "", false
	}
	m := inv.Mounts[best]
	rel := strings.TrimPrefix(strings.TrimPrefix(clean, m.ContainerPath), "/")
	return filepath.Join(m.HostDir, filepath.FromSlash(rel)), true
}
