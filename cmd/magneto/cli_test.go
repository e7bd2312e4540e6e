package main

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/gethiox/magneto/internal/pkg/logger"
	"github.com/logrusorgru/aurora"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRawStringLen(t *testing.T) {
	for i, tc := range []struct {
		input    string
		expected int
	}{
		{input: "", expected: 0},
		{input: "a", expected: 1},
		{input: "a\033", expected: 2},
		{input: "a\033[", expected: 3},
		{input: "a\033[2", expected: 4},
		{input: "a\033[2A", expected: 1},
		{input: "a\033[2Aa", expected: 2},
		{input: aurora.Red("tape").String(), expected: 4},
	} {
		t.Run(fmt.Sprintf("%d", i), func(t *testing.T) {
			l := rawStringLen(tc.input)
			assert.Equal(t, tc.expected, l)
		})
	}
}

func TestUnpack(t *testing.T) {
	ts := time.Date(2022, 1, 1, 12, 30, 15, 250_000_000, time.Local)
	data := fmt.Sprintf(
		`{"ts":%d,"caller":"recorder/recorder.go:112","msg":"Recording started","tape":0,"level":3}`,
		ts.UnixNano(),
	)

	entry, err := unpack([]byte(data))
	require.NoError(t, err)
	assert.Equal(t, "Recording started", entry.Msg)
	assert.Equal(t, logger.ActionLvl, entry.Level)
	require.NotNil(t, entry.Tape)
	assert.Equal(t, 0, *entry.Tape)
	assert.True(t, ts.Equal(time.Time(entry.Ts)))

	_, err = unpack([]byte("not a json"))
	assert.Error(t, err)
}

func TestPrepareString(t *testing.T) {
	au := aurora.NewAurora(false)
	ts := TimeNanosecond(time.Date(2022, 1, 1, 12, 30, 15, 250_000_000, time.Local))
	tape := 0

	entry := Entry{
		Ts:     ts,
		Caller: "recorder/recorder.go:112",
		Msg:    "Recording started",
		Level:  logger.ActionLvl,
		Tape:   &tape,
	}

	for _, tc := range []struct {
		name     string
		entry    Entry
		logLevel int
		expected string
	}{
		{
			name:     "filtered out",
			entry:    entry,
			logLevel: logger.InfoLvl,
			expected: "",
		},
		{
			name:     "tape field",
			entry:    entry,
			logLevel: logger.ActionLvl,
			expected: "[12:30:15.250] Recording started [tape=0]",
		},
		{
			name:     "caller in debug",
			entry:    entry,
			logLevel: logger.DebugLvl,
			expected: "[12:30:15.250] Recording started [tape=0] (recorder/recorder.go:112)",
		},
		{
			name: "event fields",
			entry: Entry{
				Ts:         ts,
				Msg:        "note-on C3 1.00",
				Level:      logger.EventsLvl,
				Identifier: "C3",
				Kind:       "note-on",
				Source:     "Keystation 49",
				Raw:        "90 30 7f",
			},
			logLevel: logger.EventsLvl,
			expected: "[12:30:15.250] note-on C3 1.00 [src=Keystation 49] [note-on] [C3] [raw=90 30 7f]",
		},
		{
			name:     "no fields",
			entry:    Entry{Ts: ts, Msg: "Magneto ready", Level: logger.InfoLvl},
			logLevel: logger.InfoLvl,
			expected: "[12:30:15.250] Magneto ready",
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, prepareString(tc.entry, au, -1, tc.logLevel))
		})
	}
}

func TestPrepareStringFitsWidth(t *testing.T) {
	au := aurora.NewAurora(false)
	tape := 3
	entry := Entry{
		Ts:    TimeNanosecond(time.Date(2022, 1, 1, 12, 30, 15, 0, time.Local)),
		Msg:   "Recording started",
		Level: logger.ActionLvl,
		Tape:  &tape,
	}

	s := prepareString(entry, au, 60, logger.ActionLvl)
	assert.Len(t, s, 60)
	assert.True(t, strings.HasPrefix(s, "[12:30:15.000] Recording started "))
	assert.True(t, strings.HasSuffix(s, " [tape=3]"))

	entry.Msg = strings.Repeat("x", 80)
	s = prepareString(entry, au, 60, logger.ActionLvl)
	assert.Equal(t, 60, rawStringLen(s))
	assert.Contains(t, s, "(...)")
}
