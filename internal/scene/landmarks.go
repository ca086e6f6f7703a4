package scene

import (
	"errors"
	"fmt"
	"sync"

	"github.com/aura-webinar/auditorium/internal/models"
)

// Well-known landmark names.
const (
	LandmarkJail    = "jail"
	LandmarkSpawn   = "spawn"
	LandmarkTeamHub = "teamhub"
)

// ErrAnchorMissing is returned by Anchor when a required landmark is not registered.
var ErrAnchorMissing = errors.New("scene anchor missing")

// ZoneLandmark returns the landmark name of voting zone n (1-based).
func ZoneLandmark(n int) string {
	return fmt.Sprintf("zone.%d", n)
}

// Landmarks maps names to positions in the scene.
type Landmarks struct {
	mu     sync.RWMutex
	points map[string]models.Vec3
}

// NewLandmarks creates an empty registry.
func NewLandmarks() *Landmarks {
	return &Landmarks{points: make(map[string]models.Vec3)}
}

// DefaultLandmarks returns the auditorium layout: four voting zones on the
// floor, the jail cell above the stage and the spawn point.
func DefaultLandmarks() *Landmarks {
	l := NewLandmarks()
	l.Set(ZoneLandmark(1), models.Vec3{X: 2.83, Y: 0.14, Z: 6.64})
	l.Set(ZoneLandmark(2), models.Vec3{X: 6, Y: 0.18, Z: 3.4})
	l.Set(ZoneLandmark(3), models.Vec3{X: 10.54, Y: 0.2, Z: 3.21})
	l.Set(ZoneLandmark(4), models.Vec3{X: 13.1, Y: 0.2, Z: 6.64})
	l.Set(LandmarkJail, models.Vec3{X: 10.07, Y: 10, Z: 10.58})
	l.Set(LandmarkSpawn, models.Vec3{X: 1, Y: 1, Z: 1})
	return l
}

// Set registers or moves a landmark.
func (l *Landmarks) Set(name string, pos models.Vec3) {
	l.mu.Lock()
	l.points[name] = pos
	l.mu.Unlock()
}

// Lookup returns the landmark position, if registered.
func (l *Landmarks) Lookup(name string) (models.Vec3, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	p, ok := l.points[name]
	return p, ok
}

// Anchor is Lookup for landmarks the scene cannot work without.
func (l *Landmarks) Anchor(name string) (models.Vec3, error) {
	p, ok := l.Lookup(name)
	if !ok {
		return models.Vec3{}, fmt.Errorf("%w: %s", ErrAnchorMissing, name)
	}
	return p, nil
}
