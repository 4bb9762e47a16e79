package native

import (
	"fmt"
	"strings"

	"github.com/hwellmann/folkfriend/engine"
)

const (
	// MidiLow is the pitch encoded by the first contour character.
	MidiLow = 48

	contourAlphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ"

	abcHeader = "X:1\nT:Query\nM:4/4\nL:1/8\nK:C\n"
)

var pitchClasses = [12]string{"C", "^C", "D", "^D", "E", "F", "^F", "G", "^G", "A", "^A", "B"}

// MidiForChar returns the MIDI pitch encoded by a contour character.
func MidiForChar(c byte) (int, bool) {
	i := strings.IndexByte(contourAlphabet, c)
	if i < 0 {
		return 0, false
	}
	return MidiLow + i, true
}

// abcNote renders a MIDI pitch in ABC, with middle C (60) as "C".
func abcNote(midi int) string {
	name := pitchClasses[midi%12]
	octave := midi/12 - 5

	switch {
	case octave == 0:
		return name
	case octave > 0:
		note := strings.ToLower(name)
		return note + strings.Repeat("'", octave-1)
	default:
		return name + strings.Repeat(",", -octave)
	}
}

// ContourToABC renders a contour as an ABC tune. Runs of the same
// character become a single note whose length is the run length, in
// eighth notes. Bars are inserted every eight eighth notes.
func ContourToABC(contour string) (string, error) {
	var b strings.Builder
	b.WriteString(abcHeader)

	beats := 0
	for i := 0; i < len(contour); {
		midi, ok := MidiForChar(contour[i])
		if !ok {
			return "", fmt.Errorf("%w: unexpected character %q at %d", engine.ErrInvalidContour, contour[i], i)
		}

		run := 1
		for i+run < len(contour) && contour[i+run] == contour[i] {
			run++
		}
		i += run

		b.WriteString(abcNote(midi))
		if run > 1 {
			fmt.Fprintf(&b, "%d", run)
		}

		beats += run
		if beats >= 8 {
			b.WriteString(" |")
			beats %= 8
		}
		if i < len(contour) {
			b.WriteByte(' ')
		}
	}
	if beats > 0 {
		b.WriteString(" |")
	}
	b.WriteByte('\n')
	return b.String(), nil
}
