// Package job defines the render job message exchanged through the queue:
// the request fields posted by producers and the lifecycle fields a node
// appends before re-sending it as a status update.
package job

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"rendernode/internal/pkg/errors"
)

type State string

const (
	StateReceived State = "received"
	StateStarted  State = "started"
	StateFinished State = "finished"
)

// Message is the job record. Field names match the JSON keys on the wire.
// Keys the node does not know about are carried through unchanged so every
// status update is a superset of the request.
type Message struct {
	SceneBucket    string
	SceneKey       string
	SceneIndex     *int
	OutputBucket   string
	OutputKey      string
	OutputQueueUrl string

	Hostname     string
	ReceivedTime *time.Time
	StartedTime  *time.Time
	FinishTime   *time.Time
	UploadedTime *time.Time
	State        State

	extra map[string]json.RawMessage
}

// wireMessage fixes the JSON shape of the known fields.
type wireMessage struct {
	SceneBucket    string     `json:"SceneBucket"`
	SceneKey       string     `json:"SceneKey"`
	SceneIndex     *int       `json:"SceneIndex,omitempty"`
	OutputBucket   string     `json:"OutputBucket"`
	OutputKey      string     `json:"OutputKey"`
	OutputQueueUrl string     `json:"OutputQueueUrl"`
	Hostname       string     `json:"Hostname,omitempty"`
	ReceivedTime   *time.Time `json:"ReceivedTime,omitempty"`
	StartedTime    *time.Time `json:"StartedTime,omitempty"`
	FinishTime     *time.Time `json:"FinishTime,omitempty"`
	UploadedTime   *time.Time `json:"UploadedTime,omitempty"`
	State          State      `json:"State,omitempty"`
}

var knownKeys = map[string]struct{}{
	"SceneBucket": {}, "SceneKey": {}, "SceneIndex": {},
	"OutputBucket": {}, "OutputKey": {}, "OutputQueueUrl": {},
	"Hostname": {}, "ReceivedTime": {}, "StartedTime": {},
	"FinishTime": {}, "UploadedTime": {}, "State": {},
}

func isKnownKey(k string) bool {
	if _, ok := knownKeys[k]; ok {
		return true
	}
	for known := range knownKeys {
		if strings.EqualFold(k, known) {
			return true
		}
	}
	return false
}

func (m *Message) UnmarshalJSON(data []byte) error {
	var w wireMessage
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}

	var all map[string]json.RawMessage
	if err := json.Unmarshal(data, &all); err != nil {
		return err
	}
	// encoding/json binds field names case-insensitively, so extras must
	// be matched the same way or they would shadow a known field.
	for k := range all {
		if isKnownKey(k) {
			delete(all, k)
		}
	}
	if len(all) == 0 {
		all = nil
	}

	*m = Message{
		SceneBucket:    w.SceneBucket,
		SceneKey:       w.SceneKey,
		SceneIndex:     w.SceneIndex,
		OutputBucket:   w.OutputBucket,
		OutputKey:      w.OutputKey,
		OutputQueueUrl: w.OutputQueueUrl,
		Hostname:       w.Hostname,
		ReceivedTime:   w.ReceivedTime,
		StartedTime:    w.StartedTime,
		FinishTime:     w.FinishTime,
		UploadedTime:   w.UploadedTime,
		State:          w.State,
		extra:          all,
	}
	return nil
}

func (m Message) MarshalJSON() ([]byte, error) {
	known, err := json.Marshal(wireMessage{
		SceneBucket:    m.SceneBucket,
		SceneKey:       m.SceneKey,
		SceneIndex:     m.SceneIndex,
		OutputBucket:   m.OutputBucket,
		OutputKey:      m.OutputKey,
		OutputQueueUrl: m.OutputQueueUrl,
		Hostname:       m.Hostname,
		ReceivedTime:   utc(m.ReceivedTime),
		StartedTime:    utc(m.StartedTime),
		FinishTime:     utc(m.FinishTime),
		UploadedTime:   utc(m.UploadedTime),
		State:          m.State,
	})
	if err != nil || len(m.extra) == 0 {
		return known, err
	}

	merged := make(map[string]json.RawMessage, len(m.extra)+len(knownKeys))
	for k, v := range m.extra {
		merged[k] = v
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(known, &fields); err != nil {
		return nil, err
	}
	for k, v := range fields {
		merged[k] = v
	}
	return json.Marshal(merged)
}

func utc(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}

// Parse decodes and validates a queue message body.
func Parse(body []byte) (*Message, error) {
	var m Message
	if err := json.Unmarshal(body, &m); err != nil {
		return nil, errors.WrapWithCode(err, errors.CodeParse, "job.parse", "invalid job message")
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

// Validate checks the request fields a node needs to run the job.
func (m *Message) Validate() error {
	required := []struct {
		name  string
		value string
	}{
		{"SceneBucket", m.SceneBucket},
		{"SceneKey", m.SceneKey},
		{"OutputBucket", m.OutputBucket},
		{"OutputKey", m.OutputKey},
		{"OutputQueueUrl", m.OutputQueueUrl},
	}
	for _, f := range required {
		if strings.TrimSpace(f.value) == "" {
			return errors.New(errors.CodeParse, f.name+" is required").WithField("field", f.name)
		}
	}
	return nil
}

// HasSceneIndex reports whether the job targets one element of an array scene.
func (m *Message) HasSceneIndex() bool {
	return m.SceneIndex != nil && *m.SceneIndex >= 0
}

// SelectScene validates doc as JSON and, when index is set and
// non-negative, returns that element of the top-level array.
func SelectScene(doc []byte, index *int) ([]byte, error) {
	if index == nil || *index < 0 {
		if !json.Valid(doc) {
			return nil, errors.New(errors.CodeParse, "scene is not valid JSON")
		}
		return doc, nil
	}

	var elems []json.RawMessage
	if err := json.Unmarshal(doc, &elems); err != nil {
		return nil, errors.WrapWithCode(err, errors.CodeParse, "job.select_scene", "scene is not a JSON array").
			WithField("scene_index", *index)
	}
	if *index >= len(elems) {
		return nil, errors.New(errors.CodeParse, fmt.Sprintf("scene index %d out of range (%d elements)", *index, len(elems))).
			WithField("scene_index", *index)
	}
	return bytes.TrimSpace(elems[*index]), nil
}
