package players

import (
	"context"

	"go.uber.org/zap"

	"github.com/aura-webinar/auditorium/internal/models"
	"github.com/aura-webinar/auditorium/internal/scene"
)

// Podium actions offered to a viewer.
const (
	PodiumInteract  = "interact"
	PodiumClaimHost = "claim_host"
	PodiumDisabled  = "disabled"
)

// arrowOffset places the "claim host" marker relative to the teamhub anchor.
var arrowOffset = models.Vec3{X: 8, Y: 3, Z: 9}

// Podium is what the stage podium offers a given player.
type Podium struct {
	Action string       `json:"action"`
	Arrow  *models.Vec3 `json:"arrow,omitempty"`
}

// Podium returns the podium state for user: hosts interact, anyone may claim
// an unhosted scene, everyone else sees it disabled.
func (d *Directory) Podium(ctx context.Context, user string, marks *scene.Landmarks) Podium {
	switch {
	case d.IsHost(ctx, user):
		return Podium{Action: PodiumInteract}
	case d.NoHostExists(ctx):
		p := Podium{Action: PodiumClaimHost}
		anchor, err := marks.Anchor(scene.LandmarkTeamHub)
		if err != nil {
			d.logger.Warn("podium arrow not placed", zap.Error(err))
			return p
		}
		p.Arrow = &models.Vec3{X: anchor.X + arrowOffset.X, Y: anchor.Y + arrowOffset.Y, Z: anchor.Z + arrowOffset.Z}
		return p
	default:
		return Podium{Action: PodiumDisabled}
	}
}
