package entity

// SourceKind distinguishes seekable file sources from live capture devices.
type SourceKind string

const (
	SourceFile SourceKind = "file"
	SourceLive SourceKind = "live"
)

// MediaSource is a resolved, readable media input. File sources carry a local
// path and a probed duration; live sources carry the capture device handles.
type MediaSource struct {
	Kind        SourceKind
	Path        string
	VideoDevice string
	AudioDevice string
	Duration    float64
}

// Describe returns a short human-readable identifier for logs and records.
func (s MediaSource) Describe() string {
	if s.Kind == SourceLive {
		return "live:" + s.VideoDevice + "+" + s.AudioDevice
	}
	return s.Path
}

// Trigger is one timing signal that may start new extractions. Modalities are
// evaluated in order, so progress events sample the frame track before the
// audio track.
type Trigger struct {
	Time       float64
	Modalities []Modality
}
