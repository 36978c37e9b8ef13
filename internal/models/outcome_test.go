package models

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOutcomeConstructors(t *testing.T) {
	file := DrawingFile{Path: "/job/E101.pdf", Discipline: "Electrical"}

	ok := Success(file, map[string]any{"a": 1}, "/out/Electrical/E101_structured.json")
	assert.True(t, ok.Succeeded())
	assert.Equal(t, "Success", ok.Kind.String())

	pf := ParseFailure(file, "oops", "/out/Electrical/E101_raw_response.json", errors.New("invalid character 'o'"))
	assert.False(t, pf.Succeeded())
	assert.Equal(t, ErrResponseNotValidJSON, pf.ErrorKind)
	assert.Equal(t, "oops", pf.RawText)
	assert.Equal(t, "Failed to parse JSON: invalid character 'o'", pf.Reason)

	cf := CallFailure(file, ErrExtractionCallFailed, errors.New("max retries"))
	assert.Equal(t, OutcomeCallFailure, cf.Kind)
	assert.Equal(t, "max retries", cf.Reason)

	assert.Equal(t, "OutcomeKind(9)", OutcomeKind(9).String())
}

func TestRunTallyConcurrentRecord(t *testing.T) {
	var tally RunTally
	var wg sync.WaitGroup
	for i := range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			f := DrawingFile{Path: "/job/x.pdf"}
			if i%5 == 0 {
				tally.Record(CallFailure(f, ErrOutputWriteFailed, errors.New("disk full")))
				return
			}
			tally.Record(Success(f, nil, ""))
		}()
	}
	wg.Wait()

	assert.Equal(t, 40, tally.Successes())
	assert.Len(t, tally.Failures(), 10)
	assert.Equal(t, 50, tally.Total())
	assert.False(t, tally.RoomTemplatesCreated())
}

func TestRunTallyFailuresIsACopy(t *testing.T) {
	var tally RunTally
	tally.Record(CallFailure(DrawingFile{Path: "/a.pdf"}, ErrUnexpected, errors.New("x")))

	got := tally.Failures()
	got[0].File = "changed"

	assert.Equal(t, "/a.pdf", tally.Failures()[0].File)
}

func TestDrawingFileBasename(t *testing.T) {
	assert.Equal(t, "E101", DrawingFile{Path: "/job/Electrical/E101.pdf"}.Basename())
	assert.Equal(t, "A-101 FLOOR PLAN", DrawingFile{Path: "/job/A-101 FLOOR PLAN.PDF"}.Basename())

	f := DrawingFile{Path: "/job/E1.pdf"}
	g := f.WithDiscipline("Electrical")
	assert.Empty(t, f.Discipline)
	assert.Equal(t, "Electrical", g.Discipline)
}
