package gcnv

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Sample is one alignment and its index.
type Sample struct {
	Name string
	BAM  string
	BAI  string
}

// SampleError reports a BAM that cannot be used as a sample.
type SampleError struct {
	BAM    string
	Reason string
}

func (e *SampleError) Error() string {
	return fmt.Sprintf("sample %s: %s", e.BAM, e.Reason)
}

// SampleResolver expands BAM patterns into a deterministic sample list.
//
// Glob expansion is strictly sorted; directory listing order never affects
// the result. Every BAM needs a non-empty index next to it, either
// "<name>.bam.bai" or "<name>.bai", and sample names must be unique.
type SampleResolver struct {
	// BaseDir anchors relative patterns.
	BaseDir string
}

// NewSampleResolver creates a SampleResolver rooted at baseDir.
func NewSampleResolver(baseDir string) *SampleResolver {
	return &SampleResolver{BaseDir: baseDir}
}

// Resolve expands patterns and validates every matched BAM. A pattern that
// matches nothing is an error.
func (r *SampleResolver) Resolve(patterns []string) ([]Sample, error) {
	pathSet := make(map[string]struct{})
	for _, pattern := range patterns {
		expanded, err := r.expandPattern(pattern)
		if err != nil {
			return nil, fmt.Errorf("expanding pattern %q: %w", pattern, err)
		}
		if len(expanded) == 0 {
			return nil, fmt.Errorf("pattern %q matches no BAM files", pattern)
		}
		for _, p := range expanded {
			pathSet[p] = struct{}{}
		}
	}

	// Sort explicitly; never rely on directory order.
	paths := make([]string, 0, len(pathSet))
	for p := range pathSet {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	samples := make([]Sample, 0, len(paths))
	byName := make(map[string]string, len(paths))
	for _, bam := range paths {
		s, err := inspectBAM(bam)
		if err != nil {
			return nil, err
		}
		if prev, dup := byName[s.Name]; dup {
			return nil, &SampleError{BAM: bam, Reason: fmt.Sprintf("sample name %q already used by %s", s.Name, prev)}
		}
		byName[s.Name] = bam
		samples = append(samples, s)
	}
	return samples, nil
}

// expandPattern expands a single glob pattern into file paths. A pattern
// without glob characters is a literal path.
func (r *SampleResolver) expandPattern(pattern string) ([]string, error) {
	full := pattern
	if !filepath.IsAbs(pattern) {
		full = filepath.Join(r.BaseDir, pattern)
	}

	matches, err := filepath.Glob(full)
	if err != nil {
		return nil, fmt.Errorf("invalid glob pattern: %w", err)
	}
	if len(matches) == 0 && !containsGlobChar(pattern) {
		if _, err := os.Stat(full); err == nil {
			matches = []string{full}
		}
	}

	out := make([]string, 0, len(matches))
	for _, m := range matches {
		info, err := os.Stat(m)
		if err != nil {
			return nil, fmt.Errorf("stat %q: %w", m, err)
		}
		if info.IsDir() {
			continue
		}
		abs, err := filepath.Abs(m)
		if err != nil {
			return nil, err
		}
		out = append(out, abs)
	}
	return out, nil
}

func inspectBAM(bam string) (Sample, error) {
	if !strings.HasSuffix(bam, ".bam") {
		return Sample{}, &SampleError{BAM: bam, Reason: "not a .bam file"}
	}
	if !nonEmptyFile(bam) {
		return Sample{}, &SampleError{BAM: bam, Reason: "BAM is missing or empty"}
	}
	for _, bai := range []string{bam + ".bai", strings.TrimSuffix(bam, ".bam") + ".bai"} {
		if nonEmptyFile(bai) {
			return Sample{Name: SampleName(bam), BAM: bam, BAI: bai}, nil
		}
	}
	return Sample{}, &SampleError{BAM: bam, Reason: "no non-empty .bai index"}
}

func nonEmptyFile(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular() && info.Size() > 0
}

func containsGlobChar(pattern string) bool {
	return strings.ContainsAny(pattern, "*?[]")
}
