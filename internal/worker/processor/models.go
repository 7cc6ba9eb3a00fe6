package processor

import (
	"time"

	"rendernode/internal/contracts/job"
	"rendernode/internal/ports"
)

// Stage is a step of the job pipeline. Stages run strictly in declaration
// order; StageDone and StageFailed are terminal.
type Stage int

const (
	StageParse Stage = iota
	StageFetch
	StageRender
	StageUpload
	StageAnnounce
	StageAcknowledge
	StageDone
	StageFailed
)

var stageNames = [...]string{
	StageParse:       "parse",
	StageFetch:       "fetch",
	StageRender:      "render",
	StageUpload:      "upload",
	StageAnnounce:    "announce",
	StageAcknowledge: "acknowledge",
	StageDone:        "done",
	StageFailed:      "failed",
}

func (s Stage) String() string {
	if s < 0 || int(s) >= len(stageNames) {
		return "unknown"
	}
	return stageNames[s]
}

// Outcome is reported once per message when its pipeline terminates.
type Outcome struct {
	MessageID    string
	ReceiveCount int
	Job          *job.Message // nil when the body could not be parsed
	Stage        Stage        // StageDone, or the stage that failed
	Err          error
	StartedAt    time.Time
	EndedAt      time.Time
}

// Succeeded reports whether the message was rendered, uploaded and deleted.
func (o Outcome) Succeeded() bool {
	return o.Err == nil && o.Stage == StageDone
}

// jobRun is the per-message handler state. It is owned by one goroutine.
type jobRun struct {
	msg   ports.Message
	job   *job.Message
	scene []byte
	image []byte
	stage Stage

	hb        *Heartbeat
	startSent chan struct{} // closed once the "started" status send settles

	release  func()
	released bool

	startedAt time.Time
}

// freeSlot hands the capacity slot back to the pool. Only the first call
// has an effect.
func (r *jobRun) freeSlot() bool {
	if r.released {
		return false
	}
	r.released = true
	if r.release != nil {
		r.release()
	}
	return true
}
