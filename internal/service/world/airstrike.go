package world

import (
	"math"
	"sync"

	"voice-command-pipeline/internal/events"
)

const (
	BlastRadius = 15.0
	MaxDamage   = 100

	// SpawnHeight is how far above the player an airstrike appears.
	SpawnHeight = 10.0
	// DropSpeed is the initial downward speed of an airstrike.
	DropSpeed = 25.0
)

// DamageAt returns maxDamage - round((distance/radius)^2). The result is
// not clamped; rounding is half to even.
func DamageAt(distance, radius float64, maxDamage int) int {
	ratio := distance / radius
	return maxDamage - int(math.RoundToEven(ratio*ratio))
}

// Damage returns the damage dealt at distance from a detonation and
// whether the distance is strictly inside the blast radius.
func Damage(distance float64) (int, bool) {
	if distance >= BlastRadius {
		return 0, false
	}
	return DamageAt(distance, BlastRadius, MaxDamage), true
}

// Airstrike is one spawned projectile. It detonates at most once.
type Airstrike struct {
	bus *events.Bus

	mu        sync.Mutex
	spawn     Spawn
	position  Vec3
	velocity  Vec3
	detonated bool
}

func newAirstrike(bus *events.Bus, s Spawn) *Airstrike {
	return &Airstrike{bus: bus, spawn: s, position: s.Position, velocity: s.Velocity}
}

func (a *Airstrike) ID() string { return a.spawn.ID }

// Position returns the current position.
func (a *Airstrike) Position() Vec3 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.position
}

// Detonated reports whether the airstrike has gone off.
func (a *Airstrike) Detonated() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.detonated
}

// advance moves the airstrike by dt seconds and reports whether it
// reached the ground plane.
func (a *Airstrike) advance(dt, ground float64) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.detonated {
		return false
	}
	a.position = a.position.Add(a.velocity.Scale(dt))
	if a.position.Y <= ground {
		a.position.Y = ground
		return true
	}
	return false
}

// Detonate publishes OnAirstrikeCollide and returns the damage dealt to
// every target strictly inside the blast radius. Later calls return nil
// and publish nothing.
func (a *Airstrike) Detonate(point Vec3, targets []Target) []Hit {
	a.mu.Lock()
	if a.detonated {
		a.mu.Unlock()
		return nil
	}
	a.detonated = true
	a.position = point
	a.mu.Unlock()

	if a.bus != nil {
		a.bus.Publish(events.OnAirstrikeCollide)
	}

	var hits []Hit
	for _, t := range targets {
		d := Distance(point, t.Position)
		dmg, ok := Damage(d)
		if !ok {
			continue
		}
		hits = append(hits, Hit{TargetID: t.ID, Distance: d, Damage: dmg})
	}
	return hits
}
