package logging

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/pkg/errors"
	"go.viam.com/test"
	"gonum.org/v1/gonum/mat"
)

type BasicStruct struct {
	X int
	y string
}

type namedKey uint64

func (k namedKey) String() string {
	return "q" + strconv.FormatUint(uint64(k), 10)
}

// assertLogMatches will fuzzy match log lines. Notably, this checks that the time parses, but ignores
// the exact time. And it expects a match on the filename, but the exact line number can be wrong.
func assertLogMatches(t *testing.T, actual *bytes.Buffer, expected string) {
	t.Helper()

	output, err := actual.ReadString('\n')
	test.That(t, err, test.ShouldBeNil)

	actualTrimmed := strings.TrimSuffix(output, "\n")
	actualParts := strings.Split(actualTrimmed, "\t")
	expectedParts := strings.Split(expected, "\t")
	// The time itself varies; it only has to parse in the console layout.
	_, err = time.Parse(DefaultTimeFormatStr, actualParts[0])
	test.That(t, err, test.ShouldBeNil)
	test.That(t, actualParts[1], test.ShouldEqual, expectedParts[1])

	actualFilename, actualLineNumber, found := strings.Cut(actualParts[2], ":")
	test.That(t, found, test.ShouldBeTrue)
	expectedFilename, _, found := strings.Cut(expectedParts[2], ":")
	test.That(t, found, test.ShouldBeTrue)
	test.That(t, actualFilename, test.ShouldEqual, expectedFilename)
	_, err = strconv.Atoi(actualLineNumber)
	test.That(t, err, test.ShouldBeNil)

	test.That(t, actualParts[3], test.ShouldEqual, expectedParts[3])

	test.That(t, len(actualParts), test.ShouldEqual, len(expectedParts))
	if len(actualParts) == 4 {
		return
	}

	expectedMap := make(map[string]any)
	err = json.Unmarshal([]byte(expectedParts[4]), &expectedMap)
	test.That(t, err, test.ShouldBeNil)

	actualMap := make(map[string]any)
	err = json.Unmarshal([]byte(actualParts[4]), &actualMap)
	test.That(t, err, test.ShouldBeNil)

	test.That(t, actualMap, test.ShouldResemble, expectedMap)
}

func TestConsoleOutputFormat(t *testing.T) {
	notStdout := &bytes.Buffer{}
	logger := &impl{"", NewAtomicLevelAt(DEBUG), false, []Appender{NewWriterAppender(notStdout)}}

	logger.Info("impl Info log")
	assertLogMatches(t, notStdout,
		`2023-10-30T09:12:09.459-0400	INFO	logging/impl_test.go:67	impl Info log`)

	logger.Infof("impl %s log", "infof")
	assertLogMatches(t, notStdout,
		`2023-10-30T09:45:20.764-0400	INFO	logging/impl_test.go:131	impl infof log`)

	logger.Debugw("projection failed", "poseKey", 3, "objectKey", 7)
	assertLogMatches(t, notStdout,
		`2023-10-30T13:19:45.806-0400	DEBUG	logging/impl_test.go:132	projection failed	{"poseKey":3,"objectKey":7}`)

	logger.Warnw("BasicStruct", "key", "val", "BasicStruct", BasicStruct{1, "alice"})
	assertLogMatches(t, notStdout,
		`2023-10-30T13:20:47.129-0400	WARN	logging/impl_test.go:125	BasicStruct	{"BasicStruct":{"X":1},"key":"val"}`)
}

func TestLevels(t *testing.T) {
	notStdout := &bytes.Buffer{}
	logger := &impl{"", NewAtomicLevelAt(WARN), false, []Appender{NewWriterAppender(notStdout)}}

	logger.Debug("dropped")
	logger.Info("dropped")
	test.That(t, notStdout.Len(), test.ShouldEqual, 0)

	logger.Error("kept")
	assertLogMatches(t, notStdout,
		`2023-10-30T09:12:09.459-0400	ERROR	logging/impl_test.go:90	kept`)

	logger.SetLevel(DEBUG)
	test.That(t, logger.GetLevel(), test.ShouldEqual, DEBUG)
	logger.Debug("now kept")
	assertLogMatches(t, notStdout,
		`2023-10-30T09:12:09.459-0400	DEBUG	logging/impl_test.go:96	now kept`)

	for _, name := range []string{"debug", "INFO", "Warning", "error"} {
		_, err := LevelFromString(name)
		test.That(t, err, test.ShouldBeNil)
	}
	_, err := LevelFromString("loud")
	test.That(t, err, test.ShouldNotBeNil)

	var lvl Level
	test.That(t, json.Unmarshal([]byte(`"warn"`), &lvl), test.ShouldBeNil)
	test.That(t, lvl, test.ShouldEqual, WARN)
	out, err := json.Marshal(ERROR)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, string(out), test.ShouldEqual, `"error"`)
}

func TestSubloggerAndObserver(t *testing.T) {
	logger, logs := NewObservedTestLogger(t)
	sub := logger.Sublogger("factor")
	sub.Infow("fallback", "residual", 1000.0)
	logger.Debug("root")

	test.That(t, logs.Len(), test.ShouldEqual, 2)
	test.That(t, logs.All()[0].LoggerName, test.ShouldEqual, "factor")
	test.That(t, logs.All()[0].ContextMap()["residual"], test.ShouldEqual, 1000.0)
	test.That(t, logs.FilterMessage("root").Len(), test.ShouldEqual, 1)
	test.That(t, logger.Sync(), test.ShouldBeNil)
}

func TestFields(t *testing.T) {
	logger, logs := NewObservedTestLogger(t)
	jac := mat.NewDense(2, 3, []float64{1, 2, 3, 4, 5, 6})
	logger.Debugw("evaluated", "jacobian", jac, "key", namedKey(7), "raw", 7, "err", errors.New("boom"), "dangling")

	test.That(t, logs.Len(), test.ShouldEqual, 1)
	fields := logs.All()[0].ContextMap()
	rendered, ok := fields["jacobian"].(string)
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, rendered, test.ShouldStartWith, "[")
	test.That(t, rendered, test.ShouldNotContainSubstring, "\n")
	test.That(t, rendered, test.ShouldContainSubstring, "6")
	test.That(t, fields["key"], test.ShouldEqual, "q7")
	test.That(t, fields["raw"], test.ShouldEqual, int64(7))
	test.That(t, fields["err"], test.ShouldEqual, "boom")
	test.That(t, fields["error"], test.ShouldContainSubstring, "unpaired log key")
}

func TestTimestampZones(t *testing.T) {
	for _, inUTC := range []bool{true, false} {
		notStdout := &bytes.Buffer{}
		logger := &impl{"", NewAtomicLevelAt(INFO), inUTC, []Appender{NewWriterAppender(notStdout)}}
		logger.Info("stamped")
		assertLogMatches(t, notStdout,
			`2023-10-30T13:19:45.806Z	INFO	logging/impl_test.go:1	stamped`)
	}
}
