// Package world reacts to named events with world actions: airstrikes,
// player teleports and the detonation flash.
package world

import (
	"context"
	"math"
	"sync"
)

// Vec3 is a position or velocity in world units.
type Vec3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

func (v Vec3) Add(o Vec3) Vec3 { return Vec3{v.X + o.X, v.Y + o.Y, v.Z + o.Z} }

func (v Vec3) Sub(o Vec3) Vec3 { return Vec3{v.X - o.X, v.Y - o.Y, v.Z - o.Z} }

func (v Vec3) Scale(f float64) Vec3 { return Vec3{v.X * f, v.Y * f, v.Z * f} }

func (v Vec3) Len() float64 { return math.Sqrt(v.X*v.X + v.Y*v.Y + v.Z*v.Z) }

// Distance returns the euclidean distance between two points.
func Distance(a, b Vec3) float64 { return a.Sub(b).Len() }

// Euler is a rotation in degrees.
type Euler struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Spawn describes a new airstrike instance.
type Spawn struct {
	ID       string `json:"id"`
	Position Vec3   `json:"position"`
	Rotation Euler  `json:"rotation"`
	Velocity Vec3   `json:"velocity"`
}

// Target is a damageable entity.
type Target struct {
	ID       string `json:"id"`
	Position Vec3   `json:"position"`
}

// Hit is damage dealt to one target by a detonation.
type Hit struct {
	TargetID string  `json:"targetId"`
	Distance float64 `json:"distance"`
	Damage   int     `json:"damage"`
}

// World is the sink for world actions.
type World interface {
	PlayerPosition() Vec3
	Targets() []Target
	SpawnAirstrike(ctx context.Context, s Spawn) error
	MovePlayer(ctx context.Context, to Vec3) error
	Detonated(ctx context.Context, airstrikeID string, at Vec3, hits []Hit) error
	SetFlash(ctx context.Context, intensity float64) error
}

// Local is an in-memory World. It is the default sink and the state
// holder behind transport sinks.
type Local struct {
	mu         sync.RWMutex
	player     Vec3
	targets    []Target
	spawns     []Spawn
	hits       []Hit
	flash      float64
	teleported int
}

func NewLocal(player Vec3, targets ...Target) *Local {
	return &Local{player: player, targets: targets}
}

func (l *Local) PlayerPosition() Vec3 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.player
}

func (l *Local) Targets() []Target {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]Target(nil), l.targets...)
}

// SetTargets replaces the damageable entities.
func (l *Local) SetTargets(targets ...Target) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.targets = targets
}

func (l *Local) SpawnAirstrike(ctx context.Context, s Spawn) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.spawns = append(l.spawns, s)
	return nil
}

func (l *Local) MovePlayer(ctx context.Context, to Vec3) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.player = to
	l.teleported++
	return nil
}

func (l *Local) Detonated(ctx context.Context, airstrikeID string, at Vec3, hits []Hit) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.hits = append(l.hits, hits...)
	return nil
}

func (l *Local) SetFlash(ctx context.Context, intensity float64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.flash = intensity
	return nil
}

// Spawns returns the airstrikes spawned so far.
func (l *Local) Spawns() []Spawn {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]Spawn(nil), l.spawns...)
}

// Hits returns all damage dealt so far.
func (l *Local) Hits() []Hit {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]Hit(nil), l.hits...)
}

// Flash returns the last flash intensity set.
func (l *Local) Flash() float64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.flash
}

// Teleports returns how many times the player was moved.
func (l *Local) Teleports() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.teleported
}
