package world

import (
	"context"
	"math"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"voice-command-pipeline/internal/events"
	"voice-command-pipeline/internal/observability/logging"
	"voice-command-pipeline/internal/observability/metrics"
)

const (
	// TeleportRange bounds the random teleport destination on X and Z.
	TeleportRange = 17.0
	// FlashSpeed is the interpolation rate of the flash back to clear.
	FlashSpeed = 0.01
)

// Controller performs world actions for named events.
type Controller struct {
	bus     *events.Bus
	world   World
	rng     *rand.Rand
	logger  zerolog.Logger
	metrics *metrics.Metrics

	mu         sync.Mutex
	registered bool
	airstrikes map[string]*Airstrike
	flash      float64
	sentFlash  float64
	detonation bool
}

// NewController creates a controller. rng may be nil.
func NewController(bus *events.Bus, w World, rng *rand.Rand) *Controller {
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return &Controller{
		bus:        bus,
		world:      w,
		rng:        rng,
		logger:     logging.WithComponent("world"),
		metrics:    metrics.DefaultMetrics,
		airstrikes: make(map[string]*Airstrike),
	}
}

// Events lists the events the controller handles.
func Events() []string {
	return []string{
		events.OnAirSupportRequest,
		events.OnAirSupportRequestFromKeyboard,
		events.OnAirstrikeCollide,
		events.OnTeleportRequest,
	}
}

// Start registers the controller on the bus.
func (c *Controller) Start() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.registered {
		return
	}
	for _, name := range Events() {
		c.bus.Register(name, c)
	}
	c.registered = true
}

// Stop unregisters the controller. Idempotent.
func (c *Controller) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.registered {
		return
	}
	for _, name := range Events() {
		c.bus.Unregister(name, c)
	}
	c.registered = false
}

// Receive implements events.Receiver.
func (c *Controller) Receive(name string, args ...any) {
	ctx := context.Background()
	switch name {
	case events.OnAirSupportRequest, events.OnAirSupportRequestFromKeyboard:
		c.spawnAirstrike(ctx, name)
	case events.OnTeleportRequest:
		c.teleport(ctx)
	case events.OnAirstrikeCollide:
		c.mu.Lock()
		c.detonation = true
		c.mu.Unlock()
	}
}

func (c *Controller) spawnAirstrike(ctx context.Context, source string) {
	s := Spawn{
		ID:       uuid.New().String(),
		Position: c.world.PlayerPosition().Add(Vec3{Y: SpawnHeight}),
		Rotation: Euler{X: 180},
		Velocity: Vec3{Y: -DropSpeed},
	}
	a := newAirstrike(c.bus, s)

	c.mu.Lock()
	c.airstrikes[s.ID] = a
	c.mu.Unlock()

	c.metrics.RecordWorldAction("spawn_airstrike")
	c.logger.Info().
		Str("airstrikeId", s.ID).
		Str("source", source).
		Interface("position", s.Position).
		Msg("Airstrike spawned")

	if err := c.world.SpawnAirstrike(ctx, s); err != nil {
		c.logger.Error().Err(err).Str("airstrikeId", s.ID).Msg("Failed to spawn airstrike")
	}
}

func (c *Controller) teleport(ctx context.Context) {
	to := Vec3{
		X: c.uniform(-TeleportRange, TeleportRange),
		Y: 0,
		Z: c.uniform(-TeleportRange, TeleportRange),
	}
	c.metrics.RecordWorldAction("teleport")
	c.logger.Info().Interface("position", to).Msg("Teleporting player")

	if err := c.world.MovePlayer(ctx, to); err != nil {
		c.logger.Error().Err(err).Msg("Failed to move player")
	}
}

func (c *Controller) uniform(lo, hi float64) float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return lo + c.rng.Float64()*(hi-lo)
}

// Airstrikes returns the airstrikes that have not detonated yet.
func (c *Controller) Airstrikes() []*Airstrike {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*Airstrike, 0, len(c.airstrikes))
	for _, a := range c.airstrikes {
		out = append(out, a)
	}
	return out
}

// Detonate sets off the airstrike with id at point against the world's
// targets. It returns false if no such live airstrike exists.
func (c *Controller) Detonate(ctx context.Context, id string, point Vec3) ([]Hit, bool) {
	c.mu.Lock()
	a, ok := c.airstrikes[id]
	delete(c.airstrikes, id)
	c.mu.Unlock()
	if !ok {
		return nil, false
	}
	return c.detonate(ctx, a, point), true
}

func (c *Controller) detonate(ctx context.Context, a *Airstrike, point Vec3) []Hit {
	hits := a.Detonate(point, c.world.Targets())

	c.metrics.RecordWorldAction("detonate")
	for _, h := range hits {
		c.logger.Debug().
			Str("airstrikeId", a.ID()).
			Str("targetId", h.TargetID).
			Int("damage", h.Damage).
			Float64("distance", h.Distance).
			Msg("Airstrike damage")
	}
	if err := c.world.Detonated(ctx, a.ID(), point, hits); err != nil {
		c.logger.Error().Err(err).Str("airstrikeId", a.ID()).Msg("Failed to report detonation")
	}
	return hits
}

// Flash returns the current flash intensity in [0, 1].
func (c *Controller) Flash() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.flash
}

// Update advances the world by dt seconds. A detonation seen since the
// previous update sets the flash to full; otherwise it fades toward clear.
// Airstrikes reaching the player's ground level detonate.
func (c *Controller) Update(ctx context.Context, dt float64) {
	ground := c.world.PlayerPosition().Y

	c.mu.Lock()
	if c.detonation {
		c.flash = 1
	} else {
		t := math.Min(1, FlashSpeed*dt)
		c.flash += (0 - c.flash) * t
	}
	c.detonation = false
	flash := c.flash
	sendFlash := math.Abs(flash-c.sentFlash) >= 0.01 || (flash == 0 && c.sentFlash != 0)
	if sendFlash {
		c.sentFlash = flash
	}

	var landed []*Airstrike
	for id, a := range c.airstrikes {
		if a.advance(dt, ground) {
			landed = append(landed, a)
			delete(c.airstrikes, id)
		}
	}
	c.mu.Unlock()

	if sendFlash {
		if err := c.world.SetFlash(ctx, flash); err != nil {
			c.logger.Error().Err(err).Msg("Failed to set flash")
		}
	}
	for _, a := range landed {
		c.detonate(ctx, a, a.Position())
	}
}

// Run calls Update every interval until ctx is done. The controller is
// registered for the duration of Run.
func (c *Controller) Run(ctx context.Context, interval time.Duration) error {
	c.Start()
	defer c.Stop()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	last := time.Now()
	for {
		select {
		case <-ctx.Done():
			return nil
		case now := <-ticker.C:
			c.Update(ctx, now.Sub(last).Seconds())
			last = now
		}
	}
}
