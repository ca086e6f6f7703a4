package customization

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/aura-webinar/auditorium/internal/replica"
	"github.com/aura-webinar/auditorium/pkg/queue"
)

// SceneLogos swaps logos of any scene from outside the scene process.
type SceneLogos struct {
	open   func(sceneID string) replica.Store
	logger *zap.Logger

	mu       sync.Mutex
	services map[string]*Service
}

// NewSceneLogos creates the swapper. open returns the store of a scene.
func NewSceneLogos(open func(sceneID string) replica.Store, logger *zap.Logger) *SceneLogos {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SceneLogos{open: open, logger: logger, services: make(map[string]*Service)}
}

// ReplaceLogo implements the worker's logo target.
func (s *SceneLogos) ReplaceLogo(ctx context.Context, sceneID, original, mirrored string) (bool, error) {
	s.mu.Lock()
	svc, ok := s.services[sceneID]
	if !ok {
		svc = NewService(s.open(sceneID), nil, nil, nil, nil, Config{}, s.logger)
		s.services[sceneID] = svc
	}
	s.mu.Unlock()
	return svc.ReplaceLogo(ctx, original, mirrored)
}

// LogoQueue is the job queue mirrors are scheduled on.
type LogoQueue interface {
	EnqueueLogoMirror(ctx context.Context, payload queue.LogoMirrorPayload) error
}

// QueueMirror schedules logo mirrors for one scene.
type QueueMirror struct {
	queue   LogoQueue
	sceneID string
}

// NewQueueMirror creates a Mirrorer backed by the job queue.
func NewQueueMirror(q LogoQueue, sceneID string) *QueueMirror {
	return &QueueMirror{queue: q, sceneID: sceneID}
}

// MirrorLogo implements Mirrorer.
func (m *QueueMirror) MirrorLogo(ctx context.Context, url string) error {
	return m.queue.EnqueueLogoMirror(ctx, queue.LogoMirrorPayload{SceneID: m.sceneID, URL: url})
}
