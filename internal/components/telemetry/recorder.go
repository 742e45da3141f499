package telemetry

import (
	"strings"
	"sync"
)

type Level int

const (
	LevelBroken Level = iota
	LevelWarning
	LevelDebug
	LevelCount
)

type Report struct {
	Level  Level
	ID     string
	Params []any
	Count  int64
}

// Recorder is an API that keeps every report in memory so tests can assert
// on what a component logged.
type Recorder struct {
	mutex   sync.Mutex
	reports []Report
}

func NewRecorder() *Recorder {
	return &Recorder{}
}

func (r *Recorder) add(report Report) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.reports = append(r.reports, report)
}

func (r *Recorder) ReportBroken(id string, params ...any) {
	r.add(Report{Level: LevelBroken, ID: id, Params: params})
}

func (r *Recorder) ReportWarning(id string, params ...any) {
	r.add(Report{Level: LevelWarning, ID: id, Params: params})
}

func (r *Recorder) ReportDebug(msg string, params ...any) {
	r.add(Report{Level: LevelDebug, ID: msg, Params: params})
}

func (r *Recorder) ReportCount(id string, count int64) {
	r.add(Report{Level: LevelCount, ID: id, Count: count})
}

// Reports returns a copy of every report at the given level.
func (r *Recorder) Reports(level Level) []Report {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	var out []Report
	for _, report := range r.reports {
		if report.Level == level {
			out = append(out, report)
		}
	}
	return out
}

// Count returns the number of reports at the given level whose id ends with
// suffix, scoped namespaces are ignored this way.
func (r *Recorder) Count(level Level, suffix string) int {
	n := 0
	for _, report := range r.Reports(level) {
		if strings.HasSuffix(report.ID, suffix) {
			n++
		}
	}
	return n
}
