package entity

// SampleKind tags the kind of media a sample carries.
type SampleKind string

const (
	SampleFrame      SampleKind = "frame"
	SampleAudioChunk SampleKind = "audio_chunk"
)

// Sample is one extracted unit of media waiting to be classified. The backing
// file lives under the scratch directory and is owned by the uploader once
// extraction hands it over: the uploader removes it after the upload attempt,
// whether that attempt succeeded or not.
type Sample struct {
	Kind      SampleKind
	Timestamp float64 // capture time within the source, in seconds
	Duration  float64 // audio chunks only; zero for frames
	FilePath  string
}

func NewFrameSample(at float64, path string) *Sample {
	return &Sample{Kind: SampleFrame, Timestamp: at, FilePath: path}
}

func NewAudioChunkSample(start, duration float64, path string) *Sample {
	return &Sample{Kind: SampleAudioChunk, Timestamp: start, Duration: duration, FilePath: path}
}

// Modality maps the sample kind to the classification track it feeds.
func (s *Sample) Modality() Modality {
	if s.Kind == SampleAudioChunk {
		return ModalityAudio
	}
	return ModalityImage
}
