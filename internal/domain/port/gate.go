package port

import "context"

type Capability string

const (
	CapabilityCamera     Capability = "camera"
	CapabilityMicrophone Capability = "microphone"
)

type Decision string

const (
	DecisionGranted Decision = "granted"
	DecisionDenied  Decision = "denied"
	// DecisionPermanentlyDenied means access cannot be obtained without the
	// user changing system configuration; Guidance says how.
	DecisionPermanentlyDenied Decision = "permanently_denied"
)

type PermissionResult struct {
	Decision Decision
	Guidance string
}

type CaptureGate interface {
	Request(ctx context.Context, c Capability) (PermissionResult, error)
}
