package auditorium

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/aura-webinar/auditorium/internal/activities"
	"github.com/aura-webinar/auditorium/internal/customization"
	"github.com/aura-webinar/auditorium/internal/models"
	"github.com/aura-webinar/auditorium/internal/qa"
	"github.com/aura-webinar/auditorium/internal/realtime"
)

// Events pushed to WebSocket clients.
const (
	EventActivityChanged     = "activity_changed"
	EventActivityClosed      = "activity_closed"
	EventShowResults         = "show_results"
	EventSurveyOpen          = "survey_open"
	EventQAOpen              = "qa_open"
	EventZonePollUI          = "zone_poll_ui"
	EventZoneCounts          = "zone_counts"
	EventZoneTimer           = "zone_timer"
	EventZoneHide            = "zone_hide"
	EventDoors               = "doors"
	EventHostsChanged        = "hosts_changed"
	EventRelocate            = "relocate"
	EventKicked              = "kicked"
	EventRestored            = "restored"
	EventCustomization       = "customization"
	EventCustomizationStatus = "customization_status"
)

// EventPosition is the inbound avatar position message.
const EventPosition = "position"

// ResultsPayload is the body of show_results.
type ResultsPayload struct {
	Activity activities.View  `json:"activity"`
	Tally    activities.Tally `json:"tally"`
}

// ZoneTimerPayload is the body of zone_timer.
type ZoneTimerPayload struct {
	Question string   `json:"question"`
	Options  []string `json:"options"`
	Seconds  int      `json:"seconds"`
	EndsAt   int64    `json:"ends_at"`
}

// QAOpenPayload is the body of qa_open.
type QAOpenPayload struct {
	qa.CreatedPayload
	Activity *activities.View `json:"activity,omitempty"`
}

// pusher turns scene effects into WebSocket events. It serves as the zone
// poll overlay, the kick effects and the customization status sink.
type pusher struct {
	hub *realtime.Hub
}

func (p *pusher) broadcast(event string, payload any) {
	if p.hub != nil {
		p.hub.Broadcast(event, payload)
	}
}

func (p *pusher) toUser(user, event string, payload any) {
	if p.hub != nil {
		p.hub.SendToUser(user, event, payload)
	}
}

func (p *pusher) ShowQuestion(question string, options []string, duration time.Duration) {
	p.broadcast(EventZoneTimer, ZoneTimerPayload{
		Question: question,
		Options:  options,
		Seconds:  int(duration / time.Second),
		EndsAt:   time.Now().Add(duration).UnixMilli(),
	})
}

func (p *pusher) UpdateCounts(counts []int) { p.broadcast(EventZoneCounts, counts) }

func (p *pusher) Hide() { p.broadcast(EventZoneHide, nil) }

func (p *pusher) Relocate(user string, to models.Vec3) { p.toUser(user, EventRelocate, to) }

func (p *pusher) Kick(user string) { p.toUser(user, EventKicked, nil) }

func (p *pusher) Restore(user string) { p.toUser(user, EventRestored, nil) }

func (p *pusher) SendStatus(user string, st customization.Status) {
	p.toUser(user, EventCustomizationStatus, st)
}

// Connected implements realtime.Events.
func (s *Scene) Connected(c *realtime.Client) {
	s.run("enter", func(ctx context.Context) error {
		if err := s.Players.Enter(ctx, c.User, c.Name); err != nil {
			return err
		}
		if cur, ok, err := s.Registry.Current(ctx); err == nil && ok {
			s.hub.SendToUser(c.User, EventActivityChanged, activities.NewView(cur))
		}
		return nil
	})
}

// Disconnected implements realtime.Events.
func (s *Scene) Disconnected(c *realtime.Client) {
	s.run("leave", func(ctx context.Context) error {
		return s.Players.Leave(ctx, c.User)
	})
}

// Message implements realtime.Events.
func (s *Scene) Message(c *realtime.Client, msg realtime.WSMessage) {
	switch msg.Event {
	case EventPosition:
		var pos models.Vec3
		if err := json.Unmarshal(msg.Data, &pos); err != nil {
			s.logger.Debug("invalid position", zap.String("user", c.User), zap.Error(err))
			return
		}
		s.run("update position", func(ctx context.Context) error {
			return s.Players.UpdatePosition(ctx, c.User, pos)
		})
	default:
		s.logger.Debug("unknown client event", zap.String("event", msg.Event))
	}
}

// watch forwards replicated changes to the clients of this instance. Must be
// called on the loop.
func (s *Scene) watch(ctx context.Context) {
	push := &pusher{hub: s.hub}
	s.stops = append(s.stops,
		s.Registry.Listen(ctx, func(a activities.Activity) {
			if a == nil {
				push.broadcast(EventActivityChanged, nil)
				return
			}
			push.broadcast(EventActivityChanged, activities.NewView(a))
		}),
		s.Doors.OnChange(func(d models.VotingDoors) { push.broadcast(EventDoors, d) }),
		s.Players.OnHostChange(func(hosts []string) {
			if hosts == nil {
				hosts = []string{}
			}
			push.broadcast(EventHostsChanged, hosts)
		}),
		s.Customization.OnChange(func(c models.Customization) { push.broadcast(EventCustomization, c) }),
	)
	s.Registry.OnClosed(func(cur activities.Activity, _ bool) {
		if cur == nil {
			return
		}
		push.broadcast(EventActivityClosed, activities.NewView(cur))
	})
	if s.attendance != nil {
		s.Players.OnEnter(s.attendance.Joined)
		s.Players.OnLeave(s.attendance.Left)
	}
}

// handleRelay installs the consumers of every relay message kind.
func (s *Scene) handleRelay() {
	push := &pusher{hub: s.hub}
	s.Relay.Handle(models.MessageShowCurrentActivityResults, func(ctx context.Context, _ json.RawMessage) {
		cur, ok, err := s.Registry.Current(ctx)
		if err != nil || !ok {
			return
		}
		push.broadcast(EventShowResults, ResultsPayload{Activity: activities.NewView(cur), Tally: cur.Tally()})
	})
	s.Relay.Handle(models.MessageCreateZonePollUI, func(_ context.Context, raw json.RawMessage) {
		var p models.CreateZonePollUIPayload
		if err := json.Unmarshal(raw, &p); err != nil {
			s.logger.Warn("invalid createZonePollUi payload", zap.Error(err))
			return
		}
		push.broadcast(EventZonePollUI, p)
	})
	s.Relay.Handle(models.MessageCreateSurvey, func(ctx context.Context, _ json.RawMessage) {
		cur, ok, err := s.Registry.Current(ctx)
		if err != nil || !ok || cur.Type() != models.ActivitySurvey {
			return
		}
		push.broadcast(EventSurveyOpen, activities.NewView(cur))
	})
	s.Relay.Handle(models.MessageCurrentActivityClosed, func(ctx context.Context, _ json.RawMessage) {
		s.Registry.ActivityWasClosed(ctx)
	})
	s.Relay.Handle(models.MessageCreateQA, func(ctx context.Context, raw json.RawMessage) {
		var p QAOpenPayload
		if err := json.Unmarshal(raw, &p.CreatedPayload); err != nil {
			s.logger.Warn("invalid createQA payload", zap.Error(err))
			return
		}
		if cur, ok, err := s.Registry.Current(ctx); err == nil && ok && cur.Type() == models.ActivityQA {
			v := activities.NewView(cur)
			p.Activity = &v
		}
		push.broadcast(EventQAOpen, p)
	})
}
