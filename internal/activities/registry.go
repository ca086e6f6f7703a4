package activities

import (
	"context"

	"go.uber.org/zap"

	"github.com/aura-webinar/auditorium/internal/models"
	"github.com/aura-webinar/auditorium/internal/replica"
	"github.com/aura-webinar/auditorium/internal/scene"
)

const pointerRecordID = "activities"

// Publisher sends a relay message to every instance.
type Publisher interface {
	Publish(kind models.MessageKind, payload any)
}

// Archiver receives activities once they are closed.
type Archiver interface {
	Archive(ctx context.Context, a Activity) error
}

// ClosedFunc is called when the closing of the current activity is relayed.
// local is true on the instance that performed the close.
type ClosedFunc func(current Activity, local bool)

// Registry owns the current activity pointer. Methods run on the scene loop.
type Registry struct {
	pointer  *replica.Table[models.ActivityPointer]
	loop     scene.Scheduler
	relay    Publisher
	archiver Archiver
	logger   *zap.Logger

	kinds       []Kind
	onClosed    []ClosedFunc
	closedLocal map[string]bool
}

// NewRegistry creates the registry. archiver may be nil.
func NewRegistry(store replica.Store, loop scene.Scheduler, relay Publisher, archiver Archiver, logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		pointer:     replica.NewTable[models.ActivityPointer](store, replica.ChannelActivities),
		loop:        loop,
		relay:       relay,
		archiver:    archiver,
		logger:      logger,
		closedLocal: make(map[string]bool),
	}
}

// Register adds an activity variant.
func (r *Registry) Register(k Kind) {
	r.kinds = append(r.kinds, k)
}

// SetCurrent points the scene at activity id of type t.
func (r *Registry) SetCurrent(ctx context.Context, id string, t models.ActivityType) error {
	return r.pointer.Put(ctx, pointerRecordID, models.ActivityPointer{CurrentActivityType: t, CurrentActivityID: &id})
}

// Pointer returns the raw pointer record.
func (r *Registry) Pointer(ctx context.Context) (models.ActivityPointer, bool, error) {
	return r.pointer.Get(ctx, pointerRecordID)
}

// Current resolves the pointer to its activity. It reports false when the
// pointer is unset, NONE, or names a record that does not exist.
func (r *Registry) Current(ctx context.Context) (Activity, bool, error) {
	p, ok, err := r.Pointer(ctx)
	if err != nil || !ok {
		return nil, false, err
	}
	return r.resolve(ctx, p)
}

func (r *Registry) resolve(ctx context.Context, p models.ActivityPointer) (Activity, bool, error) {
	if p.CurrentActivityID == nil || p.CurrentActivityType == models.ActivityNone {
		return nil, false, nil
	}
	for _, k := range r.kinds {
		if k.Type() == p.CurrentActivityType {
			return k.Find(ctx, *p.CurrentActivityID)
		}
	}
	return nil, false, nil
}

// CloseCurrent closes the current activity unless it is already closed, then
// relays currentActivityClosed and hands the activity to the archiver.
func (r *Registry) CloseCurrent(ctx context.Context) error {
	cur, ok, err := r.Current(ctx)
	if err != nil {
		return err
	}
	if !ok || cur.Base().Closed {
		r.logger.Debug("no open activity to close")
		return nil
	}
	return r.close(ctx, cur)
}

func (r *Registry) close(ctx context.Context, a Activity) error {
	closed, err := a.Close(ctx)
	if err != nil {
		return err
	}
	if !closed {
		return nil
	}
	id := a.Base().ID
	r.closedLocal[id] = true
	r.logger.Info("activity closed", zap.String("activity_id", id), zap.String("type", a.Type().String()))
	r.relay.Publish(models.MessageCurrentActivityClosed, struct{}{})

	if r.archiver != nil {
		final := a
		for _, k := range r.kinds {
			if k.Type() == a.Type() {
				if fresh, ok, err := k.Find(ctx, id); err == nil && ok {
					final = fresh
				}
			}
		}
		if err := r.archiver.Archive(ctx, final); err != nil {
			r.logger.Warn("archive activity failed", zap.String("activity_id", id), zap.Error(err))
		}
	}
	return nil
}

// Listen calls fn with the current activity now, if the pointer exists, and
// on the loop after every pointer change. fn receives nil when there is none.
func (r *Registry) Listen(ctx context.Context, fn func(Activity)) (cancel func()) {
	cancel = r.pointer.OnChange(func(_ string, p *models.ActivityPointer) {
		if p == nil {
			return
		}
		r.loop.Post(func() {
			fn(r.currentOrNil(ctx))
		})
	})
	if _, ok, err := r.Pointer(ctx); err == nil && ok {
		fn(r.currentOrNil(ctx))
	}
	return cancel
}

func (r *Registry) currentOrNil(ctx context.Context) Activity {
	cur, ok, err := r.Current(ctx)
	if err != nil {
		r.logger.Warn("resolve current activity failed", zap.Error(err))
		return nil
	}
	if !ok {
		return nil
	}
	return cur
}

// OnClosed registers fn for relayed activity closings.
func (r *Registry) OnClosed(fn ClosedFunc) {
	r.onClosed = append(r.onClosed, fn)
}

// ActivityWasClosed notifies OnClosed listeners with the current activity.
// It is the handler of the currentActivityClosed relay message.
func (r *Registry) ActivityWasClosed(ctx context.Context) {
	cur := r.currentOrNil(ctx)
	local := false
	if cur != nil {
		id := cur.Base().ID
		local = r.closedLocal[id]
		delete(r.closedLocal, id)
	}
	for _, fn := range r.onClosed {
		fn(cur, local)
	}
}
