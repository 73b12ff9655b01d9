// SPDX-License-Identifier: AGPL-3.0-or-later

// Package manifest parses the Rail-RNA sample manifest: an ordered list
// of sample lines, each naming one or two read files plus the sample
// label they belong to.
package manifest

import (
	"bufio"
	"fmt"
	"io"
	"regexp"
	"strings"

	"railrna/pkg/railurl"
)

// sampleLabelPattern enforces the Group-BioRep-TechRep shape: exactly two
// '-' separators, three non-empty components.
var sampleLabelPattern = regexp.MustCompile(`^[^-]+-[^-]+-[^-]+$`)

// SampleLabel is a validated "Group-BioRep-TechRep" label.
type SampleLabel struct {
	Group   string
	BioRep  string
	TechRep string
	Raw     string
}

// ParseSampleLabel validates and decomposes a raw label string.
func ParseSampleLabel(raw string) (SampleLabel, error) {
	if !sampleLabelPattern.MatchString(raw) {
		return SampleLabel{}, fmt.Errorf(
			"sample label %q does not match the required <Group>-<BioRep>-<TechRep> pattern", raw)
	}
	parts := strings.Split(raw, "-")
	return SampleLabel{Group: parts[0], BioRep: parts[1], TechRep: parts[2], Raw: raw}, nil
}

// Line is one sample line from a manifest: single-ended (URL1 only) or
// paired-end (URL1 and URL2 both set).
type Line struct {
	// LineNumber is the 1-based source line number, for diagnostics.
	LineNumber int

	URL1 railurl.URL
	Tag1 string // md5 checksum, or "0" if unknown

	// Paired is true when URL2/Tag2 are populated.
	Paired bool
	URL2   railurl.URL
	Tag2   string

	Label SampleLabel
}

// Manifest is the ordered sequence of sample lines read from one manifest file.
type Manifest struct {
	Lines []Line
}

// ParseError describes one malformed manifest line. Multiple ParseErrors
// are accumulated by Parse rather than aborting on the first one, so the
// config validator can report them all together.
type ParseError struct {
	LineNumber int
	Message    string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("manifest line %d: %s", e.LineNumber, e.Message)
}

// Parse reads a manifest from r. Blank lines and lines starting with '#'
// are ignored. Each remaining line must have 3 or 5 tab-separated fields.
// Parse returns every malformed line as a *ParseError in errs, continuing
// past bad lines so the caller sees the complete list.
func Parse(r io.Reader) (*Manifest, []error) {
	var (
		m    Manifest
		errs []error
	)

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	lineNo := 0
	for scanner.Scan() {
		lineNo++
		raw := scanner.Text()
		trimmed := strings.TrimSpace(raw)
		if trimmed == "" || strings.HasPrefix(trimmed, "#") {
			continue
		}

		line, err := parseLine(raw, lineNo)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		m.Lines = append(m.Lines, line)
	}
	if err := scanner.Err(); err != nil {
		errs = append(errs, fmt.Errorf("reading manifest: %w", err))
	}

	return &m, errs
}

func parseLine(raw string, lineNo int) (Line, error) {
	fields := strings.Split(raw, "\t")

	switch len(fields) {
	case 3:
		label, err := ParseSampleLabel(fields[2])
		if err != nil {
			return Line{}, &ParseError{LineNumber: lineNo, Message: err.Error()}
		}
		return Line{
			LineNumber: lineNo,
			URL1:       railurl.Classify(fields[0]),
			Tag1:       fields[1],
			Label:      label,
		}, nil
	case 5:
		label, err := ParseSampleLabel(fields[4])
		if err != nil {
			return Line{}, &ParseError{LineNumber: lineNo, Message: err.Error()}
		}
		return Line{
			LineNumber: lineNo,
			URL1:       railurl.Classify(fields[0]),
			Tag1:       fields[1],
			Paired:     true,
			URL2:       railurl.Classify(fields[2]),
			Tag2:       fields[3],
			Label:      label,
		}, nil
	default:
		return Line{}, &ParseError{
			LineNumber: lineNo,
			Message:    fmt.Sprintf("expected 3 or 5 tab-separated fields, found %d", len(fields)),
		}
	}
}
