package ingest

import (
	"errors"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/encounters/internal/geo"
)

func TestParseLine(t *testing.T) {
	p, err := ParseLine("alice|1000|40.7128|-74.0060")
	require.NoError(t, err)
	assert.Equal(t, "alice", p.Username)
	assert.Equal(t, int64(1000), p.Timestamp)
	assert.Equal(t, geo.NewLocation(40.7128, -74.006), p.Loc)
}

func TestParseLineTrims(t *testing.T) {
	p, err := ParseLine("  bob | 42 | 1.5 | -2.5 \r")
	require.NoError(t, err)
	assert.Equal(t, "bob ", p.Username, "usernames keep inner spacing")
	assert.Equal(t, int64(42), p.Timestamp)
	assert.Equal(t, geo.NewLocation(1.5, -2.5), p.Loc)
}

func TestParseLineFieldCount(t *testing.T) {
	for _, line := range []string{"", "alice|1000|1", "alice|1000|1|2|3", "alice|1000|1|2|"} {
		_, err := ParseLine(line)
		assert.True(t, errors.Is(err, ErrMalformedLine), "line %q: %v", line, err)
	}
}

func TestParseLineBadNumbers(t *testing.T) {
	for _, line := range []string{"a|x|1|2", "a|1.5|1|2", "a|1|north|2", "a|1|2|east"} {
		_, err := ParseLine(line)
		require.Error(t, err, line)
		var numErr *strconv.NumError
		assert.True(t, errors.As(err, &numErr), "line %q: %v", line, err)
	}
}

func TestReaderYieldsPings(t *testing.T) {
	r := NewReader(strings.NewReader("alice|1000|40.7128|-74.0060\nbob|1000|40.71281|-74.00601\n"))
	var names []string
	for r.Next() {
		names = append(names, r.Ping().Username)
	}
	require.NoError(t, r.Err())
	assert.Equal(t, []string{"alice", "bob"}, names)
	assert.Equal(t, 2, r.Line())
}

func TestReaderStopsAtFirstBadLine(t *testing.T) {
	r := NewReader(strings.NewReader("alice|1|1|1\n\nbob|1|1|1\n"))
	n := 0
	for r.Next() {
		n++
	}
	assert.Equal(t, 1, n)

	err := r.Err()
	var lineErr *LineError
	require.True(t, errors.As(err, &lineErr))
	assert.Equal(t, 2, lineErr.Line)
	assert.ErrorIs(t, err, ErrMalformedLine)
	assert.False(t, r.Next(), "reader stays stopped after an error")
}
