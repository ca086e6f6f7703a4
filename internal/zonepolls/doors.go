package zonepolls

import (
	"context"

	"go.uber.org/zap"

	"github.com/aura-webinar/auditorium/internal/models"
	"github.com/aura-webinar/auditorium/internal/replica"
)

const doorsRecordID = "doors"

// Doors is the replicated state of the voting doors that gate the zones.
type Doors struct {
	doors  *replica.Table[models.VotingDoors]
	logger *zap.Logger
}

func NewDoors(store replica.Store, logger *zap.Logger) *Doors {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Doors{doors: replica.NewTable[models.VotingDoors](store, replica.ChannelVotingDoors), logger: logger}
}

// Open opens the given doors, numbered from 1. Unknown numbers are skipped.
func (d *Doors) Open(ctx context.Context, numbers ...int) error {
	_, err := d.doors.Mutate(ctx, doorsRecordID, func(v *models.VotingDoors, _ bool) bool {
		changed := false
		for _, n := range numbers {
			if n < 1 || n > len(v.Open) || v.Open[n-1] {
				continue
			}
			v.Open[n-1] = true
			changed = true
		}
		return changed
	})
	if err == nil {
		d.logger.Debug("voting doors opened", zap.Ints("doors", numbers))
	}
	return err
}

// CloseAll closes every open door.
func (d *Doors) CloseAll(ctx context.Context) error {
	_, err := d.doors.Mutate(ctx, doorsRecordID, func(v *models.VotingDoors, _ bool) bool {
		if v.Open == [MaxZones]bool{} {
			return false
		}
		v.Open = [MaxZones]bool{}
		return true
	})
	return err
}

// State returns the current door state; all closed when never written.
func (d *Doors) State(ctx context.Context) (models.VotingDoors, error) {
	v, _, err := d.doors.Get(ctx, doorsRecordID)
	return v, err
}

// OnChange calls fn with every new door state.
func (d *Doors) OnChange(fn func(models.VotingDoors)) (cancel func()) {
	return d.doors.OnChange(func(_ string, v *models.VotingDoors) {
		if v == nil {
			fn(models.VotingDoors{})
			return
		}
		fn(*v)
	})
}
