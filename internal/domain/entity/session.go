package entity

import (
	"time"

	"github.com/google/uuid"
)

// Modality identifies which classification track a sample feeds.
type Modality string

const (
	ModalityImage Modality = "image"
	ModalityAudio Modality = "audio"
)

// Phase is the per-modality pipeline stage: Idle -> Extracting -> Uploading -> Idle.
type Phase string

const (
	PhaseIdle       Phase = "IDLE"
	PhaseExtracting Phase = "EXTRACTING"
	PhaseUploading  Phase = "UPLOADING"
)

// Policy selects how concurrent sampling work is gated.
type Policy string

const (
	// PolicySerialized admits at most one extraction+upload sequence at a
	// time across both modalities.
	PolicySerialized Policy = "serialized"
	// PolicyIndependent gates each modality only on its own in-flight work.
	PolicyIndependent Policy = "independent"
)

// LabelNotProcessed is the label shown before the first successful
// classification of a modality.
const LabelNotProcessed = "Not processed"

// Intervals holds the minimum elapsed source time, in seconds, between two
// samples of the same modality.
type Intervals struct {
	Image float64
	Audio float64
}

// Session owns all mutable state of one sampling session: the per-modality
// debounce clocks, the per-modality pipeline phase, and the latest labels.
// It is not safe for concurrent use; a single controller goroutine drives it.
type Session struct {
	ID        uuid.UUID
	Source    string
	Policy    Policy
	Intervals Intervals
	StartedAt time.Time

	generation  uint64
	lastSampled map[Modality]float64
	phases      map[Modality]Phase
	labels      map[Modality]string
}

func NewSession(source string, policy Policy, intervals Intervals) *Session {
	s := &Session{
		ID:        uuid.New(),
		Policy:    policy,
		Intervals: intervals,
		StartedAt: time.Now().UTC(),
	}
	s.Reset(source)
	return s
}

// DueForSample reports whether the debounce threshold of m has elapsed at
// trigger time t. The boundary is inclusive: delta >= threshold fires, so a
// trigger at t=0 against the initial clock of 0 does not.
func (s *Session) DueForSample(m Modality, t float64) bool {
	return t-s.lastSampled[m] >= s.interval(m)
}

func (s *Session) interval(m Modality) float64 {
	if m == ModalityAudio {
		return s.Intervals.Audio
	}
	return s.Intervals.Image
}

// CanStart reports whether the sampling policy admits a new extraction for m.
func (s *Session) CanStart(m Modality) bool {
	if s.Policy == PolicyIndependent {
		return s.phases[m] == PhaseIdle
	}
	for _, p := range s.phases {
		if p != PhaseIdle {
			return false
		}
	}
	return true
}

// StartSample moves m to the extracting phase and advances its debounce clock
// to t. The clock moves before the extraction completes, so a slow sample
// never delays the next trigger's decision. Returns false if m is not idle.
func (s *Session) StartSample(m Modality, t float64) bool {
	if s.phases[m] != PhaseIdle {
		return false
	}
	s.phases[m] = PhaseExtracting
	if t > s.lastSampled[m] {
		s.lastSampled[m] = t
	}
	return true
}

// FinishExtraction moves m out of the extracting phase: to uploading when a
// sample was produced, straight back to idle when extraction failed.
func (s *Session) FinishExtraction(m Modality, ok bool) {
	if s.phases[m] != PhaseExtracting {
		return
	}
	if ok {
		s.phases[m] = PhaseUploading
	} else {
		s.phases[m] = PhaseIdle
	}
}

// FinishUpload returns m to idle. The label is replaced only on success; a
// failed upload keeps the previous label.
func (s *Session) FinishUpload(m Modality, label string, ok bool) {
	if s.phases[m] != PhaseUploading {
		return
	}
	s.phases[m] = PhaseIdle
	if ok {
		s.labels[m] = label
	}
}

// Reset rebinds the session to a new media source: debounce clocks return to
// zero, labels to their default, phases to idle, and the generation is bumped
// so completions belonging to the previous source are discarded.
func (s *Session) Reset(source string) {
	s.Source = source
	s.generation++
	s.lastSampled = map[Modality]float64{ModalityImage: 0, ModalityAudio: 0}
	s.phases = map[Modality]Phase{ModalityImage: PhaseIdle, ModalityAudio: PhaseIdle}
	s.labels = map[Modality]string{ModalityImage: LabelNotProcessed, ModalityAudio: LabelNotProcessed}
}

func (s *Session) Generation() uint64 { return s.generation }

func (s *Session) PhaseOf(m Modality) Phase { return s.phases[m] }

func (s *Session) LastSampled(m Modality) float64 { return s.lastSampled[m] }

func (s *Session) Label(m Modality) string { return s.labels[m] }

// Labels returns a copy of the current label map.
func (s *Session) Labels() map[Modality]string {
	out := make(map[Modality]string, len(s.labels))
	for m, l := range s.labels {
		out[m] = l
	}
	return out
}

// InFlight reports whether any modality has an extraction or upload pending.
func (s *Session) InFlight() bool {
	for _, p := range s.phases {
		if p != PhaseIdle {
			return true
		}
	}
	return false
}
