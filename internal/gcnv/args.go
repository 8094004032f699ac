package gcnv

import "cnvflow/internal/core"

// argList builds a tool argument list from an ArgContext, keeping the first
// path translation error.
type argList struct {
	c    core.ArgContext
	args []string
	err  error
}

func gatkArgs(c core.ArgContext, tool string) *argList {
	return &argList{c: c, args: []string{"gatk", tool}}
}

func picardArgs(c core.ArgContext, s Settings, tool string) *argList {
	args := []string{"java"}
	args = append(args, s.JavaOptions...)
	args = append(args, "-jar", picardJar, tool)
	return &argList{c: c, args: args}
}

func (a *argList) lit(args ...string) *argList {
	a.args = append(a.args, args...)
	return a
}

// path appends flag and the container path of the first artifact of role.
func (a *argList) path(flag string, role core.Role) *argList {
	if a.err != nil {
		return a
	}
	p, err := a.c.Path(role)
	if err != nil {
		a.err = err
		return a
	}
	a.args = append(a.args, flag, p)
	return a
}

// each appends flag once per artifact of role.
func (a *argList) each(flag string, role core.Role) *argList {
	if a.err != nil {
		return a
	}
	paths, err := a.c.Paths(role)
	if err != nil {
		a.err = err
		return a
	}
	for _, p := range paths {
		a.args = append(a.args, flag, p)
	}
	return a
}

func (a *argList) output(flag string) *argList {
	if a.err != nil {
		return a
	}
	p, err := a.c.OutputPath()
	if err != nil {
		a.err = err
		return a
	}
	a.args = append(a.args, flag, p)
	return a
}

func (a *argList) build() ([]string, error) {
	if a.err != nil {
		return nil, a.err
	}
	return a.args, nil
}
