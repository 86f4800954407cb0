package trace

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"os"
	"strings"
)

// Source tags where a trace line came from.
type Source int

const (
	// Reference lines come from the golden log.
	Reference Source = iota
	// Candidate lines come from the emulator under test.
	Candidate
)

// String returns "reference" or "candidate".
func (s Source) String() string {
	switch s {
	case Reference:
		return "reference"
	case Candidate:
		return "candidate"
	default:
		return fmt.Sprintf("source(%d)", int(s))
	}
}

// Line is one raw trace record.
type Line struct {
	Source Source
	Step   int // 1-based
	Text   string
}

// ReadError is returned when a trace file cannot be opened or read.
type ReadError struct {
	Path string
	Err  error
}

func (e *ReadError) Error() string {
	return fmt.Sprintf("read trace %s: %v", e.Path, e.Err)
}

func (e *ReadError) Unwrap() error {
	return e.Err
}

// Load reads a reference trace file.
//
// Lines are trimmed and empty lines are dropped. Line length is not limited
// and grammar is not checked here; a malformed line surfaces later as a
// mismatch.
func Load(path string) ([]Line, error) {
	return LoadAs(path, Reference)
}

// LoadAs reads a trace file and tags every line with src.
func LoadAs(path string, src Source) ([]Line, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &ReadError{Path: path, Err: err}
	}
	defer f.Close()

	var lines []Line
	r := bufio.NewReader(f)
	for {
		text, err := r.ReadString('\n')
		if text = strings.TrimSpace(text); text != "" {
			lines = append(lines, Line{Source: src, Step: len(lines) + 1, Text: text})
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, &ReadError{Path: path, Err: err}
		}
	}
	return lines, nil
}

// Capture splits raw process output into lines tagged with src.
//
// Leading and trailing whitespace of the whole output is removed first.
// Interior blank lines are kept: an emulator that prints an empty line in
// place of a record must fail the comparison, not shift it.
func Capture(src Source, output []byte) []Line {
	output = bytes.TrimSpace(output)
	if len(output) == 0 {
		return nil
	}
	raw := strings.Split(string(output), "\n")
	lines := make([]Line, len(raw))
	for i, text := range raw {
		lines[i] = Line{Source: src, Step: i + 1, Text: strings.TrimSpace(text)}
	}
	return lines
}
