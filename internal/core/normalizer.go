package core

import (
	"bytes"
	"regexp"
)

type normPattern struct {
	regex       *regexp.Regexp
	replacement []byte
}

// stderrPatterns mask the parts of GATK and Picard log lines that differ
// between two runs of the same failing invocation.
var stderrPatterns = []normPattern{
	// ISO 8601: 2024-12-13T10:30:45Z, 2024-12-13T10:30:45.123+01:00
	{regexp.MustCompile(`\d{4}-\d{2}-\d{2}T\d{2}:\d{2}:\d{2}(\.\d+)?(Z|[+-]\d{2}:\d{2})?`), []byte("<TIMESTAMP>")},
	// java.util.logging style: 2024-12-13 10:30:45, 2024/12/13 10:30:45
	{regexp.MustCompile(`\d{4}[-/]\d{2}[-/]\d{2}\s+\d{2}:\d{2}:\d{2}(\.\d+)?`), []byte("<TIMESTAMP>")},
	// GATK line prefix: 10:30:45.123 INFO
	{regexp.MustCompile(`(?m)^\d{2}:\d{2}:\d{2}\.\d{3}\b`), []byte("<TIME>")},
	// picard.util.ProgressLogger and GATK "Elapsed time: 0.52 minutes"
	{regexp.MustCompile(`\b\d+(\.\d+)?[ \t]*(ms|s|seconds?|minutes?|hours?)\b`), []byte("<DURATION>")},
	// JVM thread dumps and native frames
	{regexp.MustCompile(`0x[0-9a-fA-F]{8,16}`), []byte("<ADDR>")},
}

// NormalizeStderr converts CRLF to LF and masks timestamps, durations, and
// addresses, so the recorded tail of a failing tool is stable across runs.
func NormalizeStderr(content []byte) []byte {
	result := bytes.ReplaceAll(content, []byte("\r\n"), []byte("\n"))
	for _, p := range stderrPatterns {
		result = p.regex.ReplaceAll(result, p.replacement)
	}
	return result
}
