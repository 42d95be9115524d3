package entity

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newFileSession(policy Policy) *Session {
	return NewSession("/media/in.mp4", policy, Intervals{Image: 1.0, Audio: 2.5})
}

// completeSequence walks m through a successful extract and upload so the
// modality is idle again.
func completeSequence(s *Session, m Modality, label string) {
	s.FinishExtraction(m, true)
	s.FinishUpload(m, label, true)
}

func TestNewSessionStartsClean(t *testing.T) {
	s := newFileSession(PolicySerialized)

	assert.Equal(t, "/media/in.mp4", s.Source)
	assert.Equal(t, LabelNotProcessed, s.Label(ModalityImage))
	assert.Equal(t, LabelNotProcessed, s.Label(ModalityAudio))
	assert.Equal(t, PhaseIdle, s.PhaseOf(ModalityImage))
	assert.Equal(t, PhaseIdle, s.PhaseOf(ModalityAudio))
	assert.Zero(t, s.LastSampled(ModalityImage))
	assert.Zero(t, s.LastSampled(ModalityAudio))
	assert.False(t, s.InFlight())
}

func TestDebounceWalkThroughPlayback(t *testing.T) {
	s := newFileSession(PolicySerialized)

	steps := []struct {
		t         float64
		wantFrame bool
		wantAudio bool
	}{
		{t: 0, wantFrame: false, wantAudio: false}, // a fresh session never fires at t=0
		{t: 0.25, wantFrame: false, wantAudio: false},
		{t: 1.0, wantFrame: true, wantAudio: false}, // the boundary is inclusive
		{t: 1.9, wantFrame: false, wantAudio: false},
		{t: 2.0, wantFrame: true, wantAudio: false},
		{t: 2.5, wantFrame: false, wantAudio: true},
		{t: 3.0, wantFrame: true, wantAudio: false},
		{t: 5.0, wantFrame: true, wantAudio: true},
	}

	for _, step := range steps {
		gotFrame := s.DueForSample(ModalityImage, step.t)
		assert.Equal(t, step.wantFrame, gotFrame, "frame due at t=%v", step.t)
		if gotFrame {
			require.True(t, s.StartSample(ModalityImage, step.t))
			completeSequence(s, ModalityImage, "cat")
		}

		gotAudio := s.DueForSample(ModalityAudio, step.t)
		assert.Equal(t, step.wantAudio, gotAudio, "audio due at t=%v", step.t)
		if gotAudio {
			require.True(t, s.StartSample(ModalityAudio, step.t))
			completeSequence(s, ModalityAudio, "happy")
		}
	}
}

func TestStartSampleAdvancesClockBeforeCompletion(t *testing.T) {
	s := newFileSession(PolicyIndependent)

	require.True(t, s.StartSample(ModalityImage, 3.7))

	assert.Equal(t, 3.7, s.LastSampled(ModalityImage))
	assert.False(t, s.DueForSample(ModalityImage, 4.0),
		"the clock moves at fire time, not at completion")
	assert.True(t, s.DueForSample(ModalityImage, 4.7))
	assert.False(t, s.CanStart(ModalityImage), "still extracting")
}

func TestClockNeverMovesBackward(t *testing.T) {
	s := newFileSession(PolicyIndependent)

	require.True(t, s.StartSample(ModalityImage, 5))
	completeSequence(s, ModalityImage, "cat")
	require.True(t, s.StartSample(ModalityImage, 3))

	assert.Equal(t, 5.0, s.LastSampled(ModalityImage))
}

func TestSerializedPolicyBlocksAcrossModalities(t *testing.T) {
	s := newFileSession(PolicySerialized)

	require.True(t, s.StartSample(ModalityImage, 2.5))

	assert.False(t, s.CanStart(ModalityAudio),
		"one in-flight sequence holds the whole pipeline")

	completeSequence(s, ModalityImage, "cat")
	assert.True(t, s.CanStart(ModalityAudio))
}

func TestIndependentPolicyGatesPerModality(t *testing.T) {
	s := newFileSession(PolicyIndependent)

	require.True(t, s.StartSample(ModalityImage, 2.5))

	assert.True(t, s.CanStart(ModalityAudio))
	assert.False(t, s.CanStart(ModalityImage))
}

func TestStartSampleRejectsBusyModality(t *testing.T) {
	s := newFileSession(PolicyIndependent)

	require.True(t, s.StartSample(ModalityImage, 1))
	assert.False(t, s.StartSample(ModalityImage, 2))
	assert.Equal(t, 1.0, s.LastSampled(ModalityImage))
}

func TestFailedExtractionReturnsToIdle(t *testing.T) {
	s := newFileSession(PolicySerialized)
	require.True(t, s.StartSample(ModalityImage, 1))

	s.FinishExtraction(ModalityImage, false)

	assert.Equal(t, PhaseIdle, s.PhaseOf(ModalityImage))
	assert.Equal(t, LabelNotProcessed, s.Label(ModalityImage))
	assert.Equal(t, 1.0, s.LastSampled(ModalityImage),
		"a failed sample does not roll the clock back")
}

func TestFailedUploadKeepsPreviousLabel(t *testing.T) {
	s := newFileSession(PolicySerialized)

	require.True(t, s.StartSample(ModalityAudio, 2.5))
	completeSequence(s, ModalityAudio, "happy")

	require.True(t, s.StartSample(ModalityAudio, 5))
	s.FinishExtraction(ModalityAudio, true)
	s.FinishUpload(ModalityAudio, "", false)

	assert.Equal(t, "happy", s.Label(ModalityAudio))
	assert.Equal(t, PhaseIdle, s.PhaseOf(ModalityAudio))
}

func TestPhaseTransitionsIgnoreOutOfOrderEvents(t *testing.T) {
	s := newFileSession(PolicySerialized)

	s.FinishUpload(ModalityImage, "ghost", true)
	assert.Equal(t, LabelNotProcessed, s.Label(ModalityImage))

	s.FinishExtraction(ModalityImage, true)
	assert.Equal(t, PhaseIdle, s.PhaseOf(ModalityImage))
}

func TestResetRebindsSession(t *testing.T) {
	s := newFileSession(PolicySerialized)
	require.True(t, s.StartSample(ModalityImage, 3))
	completeSequence(s, ModalityImage, "cat")
	gen := s.Generation()

	s.Reset("/media/other.mp4")

	assert.Equal(t, "/media/other.mp4", s.Source)
	assert.Equal(t, gen+1, s.Generation())
	assert.Equal(t, LabelNotProcessed, s.Label(ModalityImage))
	assert.Zero(t, s.LastSampled(ModalityImage))
	assert.Equal(t, PhaseIdle, s.PhaseOf(ModalityImage))
	assert.False(t, s.DueForSample(ModalityImage, 0),
		"after a reset the session behaves like a fresh one")
}

func TestLabelsReturnsACopy(t *testing.T) {
	s := newFileSession(PolicySerialized)

	labels := s.Labels()
	labels[ModalityImage] = "tampered"

	assert.Equal(t, LabelNotProcessed, s.Label(ModalityImage))
}
