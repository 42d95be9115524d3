package device

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/timnirmal/realtimecam-sampling-service/internal/domain/port"
	"go.uber.org/zap"
)

// DefaultSoundDir is where ALSA exposes its device nodes.
const DefaultSoundDir = "/dev/snd"

// Gate answers capture permission requests by inspecting the device nodes the
// process would capture from. A missing or busy node is a plain denial; a
// node the process may not open maps to a permanent denial, since fixing it
// needs a group membership change outside this process.
type Gate struct {
	videoDevice string
	soundDir    string
	logger      *zap.Logger
}

func NewGate(videoDevice string, soundDir string, logger *zap.Logger) *Gate {
	if soundDir == "" {
		soundDir = DefaultSoundDir
	}
	return &Gate{videoDevice: videoDevice, soundDir: soundDir, logger: logger}
}

func (g *Gate) Request(ctx context.Context, c port.Capability) (port.PermissionResult, error) {
	node, group := g.videoDevice, "video"
	if c == port.CapabilityMicrophone {
		node, group = g.soundDir, "audio"
	}

	result, err := probeNode(node, group)
	if err != nil {
		return port.PermissionResult{}, err
	}

	g.logger.Debug("capture permission checked",
		zap.String("capability", string(c)),
		zap.String("node", node),
		zap.String("decision", string(result.Decision)),
	)
	return result, nil
}

func probeNode(node string, group string) (port.PermissionResult, error) {
	if _, err := os.Stat(node); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return port.PermissionResult{
				Decision: port.DecisionDenied,
				Guidance: fmt.Sprintf("no capture device at %s", node),
			}, nil
		}
		if errors.Is(err, os.ErrPermission) {
			return permanentDenial(node, group), nil
		}
		return port.PermissionResult{}, fmt.Errorf("stat %s: %w", node, err)
	}

	f, err := os.Open(node)
	if err != nil {
		if errors.Is(err, os.ErrPermission) {
			return permanentDenial(node, group), nil
		}
		return port.PermissionResult{
			Decision: port.DecisionDenied,
			Guidance: fmt.Sprintf("cannot open %s: %v", node, err),
		}, nil
	}
	f.Close()

	return port.PermissionResult{Decision: port.DecisionGranted}, nil
}

func permanentDenial(node string, group string) port.PermissionResult {
	return port.PermissionResult{
		Decision: port.DecisionPermanentlyDenied,
		Guidance: fmt.Sprintf("access to %s requires membership of the %q group; add the user to it and log in again", node, group),
	}
}
