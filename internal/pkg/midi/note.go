package midi

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// DefaultMiddleC is the octave number of note 60 ("C4" convention).
const DefaultMiddleC = 4

var stringToNoteRegex = regexp.MustCompile(`^(?P<pitch>[a-gA-G]#?)(?P<octave>-?\d+)$`)

var valToPitch = map[uint8]string{
	0: "C", 1: "C#", 2: "D", 3: "D#",
	4: "E", 5: "F", 6: "F#", 7: "G",
	8: "G#", 9: "A", 10: "A#", 11: "B",
}

var pitchToVal = map[string]uint8{
	"C": 0, "C#": 1, "D": 2, "D#": 3,
	"E": 4, "F": 5, "F#": 6, "G": 7,
	"G#": 8, "A": 9, "A#": 10, "B": 11,
}

// NormalizeIdentifier brings identifier to the form used for routing lookups.
func NormalizeIdentifier(identifier string) string {
	return strings.ToUpper(strings.TrimSpace(identifier))
}

func NoteToPitch(note byte) string {
	return valToPitch[note%12]
}

func NoteToOctave(note byte, middleC int) int {
	return int(note/12) + middleC - 5
}

// NoteName returns pitch class and octave of given note, eg. "C#3".
func NoteName(note byte, middleC int) string {
	return fmt.Sprintf("%s%d", NoteToPitch(note), NoteToOctave(note, middleC))
}

func StringToNote(note string, middleC int) (byte, error) {
	match := stringToNoteRegex.FindStringSubmatch(strings.TrimSpace(note))
	if len(match) == 0 {
		return 0, fmt.Errorf("unsupported note format: \"%s\"", note)
	}

	pitch, ok := pitchToVal[strings.ToUpper(match[1])]
	if !ok {
		return 0, fmt.Errorf("unsupported pitch: \"%s\"", match[1])
	}
	octave, err := strconv.Atoi(match[2])
	if err != nil {
		return 0, fmt.Errorf("parsing octave failed: %w", err)
	}

	calculated := (octave-middleC+5)*12 + int(pitch)
	if calculated < 0 || calculated > 127 {
		return 0, fmt.Errorf("note outside of midi range 0-127: %d", calculated)
	}
	return byte(calculated), nil
}

func StringToNoteUnsafe(note string, middleC int) byte {
	n, err := StringToNote(note, middleC)
	if err != nil {
		panic(err)
	}
	return n
}
