// Package customization holds the host-editable look of the auditorium: the
// accent color and the logo shown on the banners.
package customization

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/aura-webinar/auditorium/internal/models"
	"github.com/aura-webinar/auditorium/internal/replica"
	"github.com/aura-webinar/auditorium/internal/scene"
)

const (
	recordID = "customization"

	// DefaultAccentColor is black.
	DefaultAccentColor = "#000000"
)

var (
	ErrInvalidColor = errors.New("Invalid HEX (use #RRGGBB)")
	ErrFetchFailed  = errors.New("Failed to fetch url.")
	ErrNotImage     = errors.New("URL is not a supported image.")
	ErrGIF          = errors.New("GIFs are not supported.")

	hexColor = regexp.MustCompile(`^#[0-9A-Fa-f]{6}$`)
)

// Status states.
const (
	StateIdle    = "idle"
	StateLoading = "loading"
	StateLoaded  = "loaded"
	StateError   = "error"
)

// Status is the transient feedback shown in the customization panel of the
// host who made a change.
type Status struct {
	Target  string `json:"target"`
	State   string `json:"state"`
	Message string `json:"message,omitempty"`
}

// StatusSink delivers statuses to one user.
type StatusSink interface {
	SendStatus(user string, st Status)
}

// Mirrorer copies an accepted logo to storage owned by the scene.
type Mirrorer interface {
	MirrorLogo(ctx context.Context, url string) error
}

// Config tunes the service.
type Config struct {
	DefaultLogoURL string
	ClearAfter     time.Duration
	FetchTimeout   time.Duration
}

// Service validates and stores the customization record.
type Service struct {
	record *replica.Table[models.Customization]
	loop   *scene.Loop
	sink   StatusSink
	mirror Mirrorer
	client *http.Client
	cfg    Config
	logger *zap.Logger
}

// NewService creates the service. mirror may be nil.
func NewService(store replica.Store, loop *scene.Loop, sink StatusSink, mirror Mirrorer, client *http.Client, cfg Config, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ClearAfter <= 0 {
		cfg.ClearAfter = 3 * time.Second
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = 10 * time.Second
	}
	if client == nil {
		client = &http.Client{Timeout: cfg.FetchTimeout}
	}
	return &Service{
		record: replica.NewTable[models.Customization](store, replica.ChannelCustomization),
		loop:   loop,
		sink:   sink,
		mirror: mirror,
		client: client,
		cfg:    cfg,
		logger: logger,
	}
}

// Defaults is the look of a scene nobody customized.
func (s *Service) Defaults() models.Customization {
	return models.Customization{AccentColor: DefaultAccentColor, LogoURL: s.cfg.DefaultLogoURL}
}

// Get returns the customization with defaults filled in.
func (s *Service) Get(ctx context.Context) (models.Customization, error) {
	c, _, err := s.record.Get(ctx, recordID)
	if err != nil {
		return models.Customization{}, err
	}
	return s.withDefaults(c), nil
}

func (s *Service) withDefaults(c models.Customization) models.Customization {
	d := s.Defaults()
	if c.AccentColor == "" {
		c.AccentColor = d.AccentColor
	}
	if c.LogoURL == "" {
		c.LogoURL = d.LogoURL
	}
	return c
}

// OnChange calls fn with every new customization.
func (s *Service) OnChange(fn func(models.Customization)) (cancel func()) {
	return s.record.OnChange(func(_ string, c *models.Customization) {
		v := s.Defaults()
		if c != nil {
			v = s.withDefaults(*c)
		}
		fn(v)
	})
}

// SetAccentColor stores a #RRGGBB color. Must be called on the loop.
func (s *Service) SetAccentColor(ctx context.Context, user, hex string) error {
	hex = strings.TrimSpace(hex)
	if !hexColor.MatchString(hex) {
		s.report(user, Status{Target: "color", State: StateError, Message: ErrInvalidColor.Error()})
		return ErrInvalidColor
	}
	_, err := s.record.Mutate(ctx, recordID, func(c *models.Customization, _ bool) bool {
		c.AccentColor = hex
		return true
	})
	if err != nil {
		return err
	}
	s.report(user, Status{Target: "color", State: StateLoaded, Message: "Color applied!"})
	return nil
}

// SetLogo checks that url serves a still image and stores it. The network
// check runs on the calling goroutine; the write goes through the loop.
func (s *Service) SetLogo(ctx context.Context, user, url string) error {
	url = strings.TrimSpace(url)
	s.post(func() { s.report(user, Status{Target: "image", State: StateLoading, Message: "Loading..."}) })
	if err := s.CheckImage(ctx, url); err != nil {
		s.post(func() { s.report(user, Status{Target: "image", State: StateError, Message: err.Error()}) })
		return err
	}
	err := s.loop.Do(ctx, func() error {
		_, err := s.record.Mutate(ctx, recordID, func(c *models.Customization, _ bool) bool {
			c.LogoURL = url
			return true
		})
		if err != nil {
			return err
		}
		s.report(user, Status{Target: "image", State: StateLoaded, Message: "Loaded successfully"})
		return nil
	})
	if err != nil {
		return err
	}
	if s.mirror != nil {
		if err := s.mirror.MirrorLogo(ctx, url); err != nil {
			s.logger.Warn("schedule logo mirror failed", zap.String("url", url), zap.Error(err))
		}
	}
	return nil
}

// CheckImage fetches url and accepts any image type except GIF.
func (s *Service) CheckImage(ctx context.Context, url string) error {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.FetchTimeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrFetchFailed, err)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrFetchFailed, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return ErrFetchFailed
	}
	ct := strings.ToLower(resp.Header.Get("Content-Type"))
	if !strings.HasPrefix(ct, "image/") {
		return ErrNotImage
	}
	if strings.HasPrefix(ct, "image/gif") {
		return ErrGIF
	}
	return nil
}

// ReplaceLogo swaps the stored logo for its mirrored copy, unless the host
// picked another logo in the meantime.
func (s *Service) ReplaceLogo(ctx context.Context, original, mirrored string) (bool, error) {
	return s.record.Mutate(ctx, recordID, func(c *models.Customization, exists bool) bool {
		if !exists || c.LogoURL != original {
			return false
		}
		c.LogoURL = mirrored
		return true
	})
}

// RevertToDefault restores the default look.
func (s *Service) RevertToDefault(ctx context.Context) error {
	return s.record.Put(ctx, recordID, s.Defaults())
}

// report sends st now and the idle status once ClearAfter has elapsed.
// Must be called on the loop.
func (s *Service) report(user string, st Status) {
	if s.sink == nil || user == "" {
		return
	}
	s.sink.SendStatus(user, st)
	if st.State == StateLoading {
		return
	}
	s.loop.After(s.cfg.ClearAfter, func() {
		s.sink.SendStatus(user, Status{Target: st.Target, State: StateIdle})
	})
}

func (s *Service) post(fn func()) {
	s.loop.Post(fn)
}
