// Package demo builds the guard agent used by the behave commands: a tree
// mixing built-in nodes, expression conditions and scripted leaves, over a
// small simulated world.
package demo

import (
	_ "embed"
	"fmt"
	"log/slog"
	"math/rand/v2"

	"github.com/joeycumines/behave/internal/blackboard"
	"github.com/joeycumines/behave/internal/clock"
	"github.com/joeycumines/behave/internal/exprcond"
	"github.com/joeycumines/behave/internal/jsleaf"
	"github.com/joeycumines/behave/internal/tree"
)

// Script is the default source of the scripted leaves.
//
//go:embed agent.js
var Script string

// Blackboard keys.
const (
	KeyHP       = "hp"
	KeyAmmo     = "ammo"
	KeyEnemy    = "enemy"
	KeyEnemyHP  = "enemyHP"
	KeyDistance = "distance"
	KeyKills    = "kills"
	KeyMode     = "mode"
	KeyWaypoint = "waypoint"
)

const (
	MaxHP   = 100
	MaxAmmo = 6
)

// World simulates enemies approaching the guard. It is stepped by a
// Service at the top of the tree.
type World struct {
	rnd     *rand.Rand
	spawn   float64
	spawned int
	kills   int
}

// NewWorld creates a world whose enemies appear with probability spawn per
// step.
func NewWorld(seed uint64, spawn float64) *World {
	return &World{rnd: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)), spawn: spawn}
}

// Kills returns the number of enemies defeated.
func (w *World) Kills() int { return w.kills }

// Step advances the world by one step.
func (w *World) Step(bb *blackboard.Blackboard) {
	if !bb.Has(KeyEnemy) {
		if w.rnd.Float64() < w.spawn {
			w.spawned++
			bb.Set(KeyEnemyHP, 3)
			bb.Set(KeyDistance, 1+w.rnd.IntN(4))
			bb.Set(KeyEnemy, fmt.Sprintf("orc-%d", w.spawned))
		}
		return
	}

	if hp, _ := bb.Number(KeyEnemyHP); hp <= 0 {
		w.kills++
		bb.Set(KeyKills, w.kills)
		bb.Unset(KeyEnemyHP)
		bb.Unset(KeyDistance)
		bb.Unset(KeyEnemy)
		return
	}
	if d, _ := bb.Number(KeyDistance); d > 1 {
		bb.Set(KeyDistance, d-1)
		return
	}
	hp, _ := bb.Number(KeyHP)
	bb.Set(KeyHP, max(hp-10, 0))
}

// Option configures New.
type Option func(*options)

type options struct {
	seed      uint64
	spawn     float64
	scripts   [][2]string
	logger    *slog.Logger
	cache     *exprcond.Cache
	repeat    bool
	clockOpts []clock.Option
}

// WithSeed seeds both the world and the tree's random source.
func WithSeed(seed uint64) Option { return func(o *options) { o.seed = seed } }

// WithSpawnChance sets the per-step probability of an enemy appearing.
func WithSpawnChance(p float64) Option { return func(o *options) { o.spawn = p } }

// WithScript loads src after Script, replacing any functions it defines.
func WithScript(name, src string) Option {
	return func(o *options) { o.scripts = append(o.scripts, [2]string{name, src}) }
}

// WithLogger sets the logger for the tree, expressions and scripts.
func WithLogger(logger *slog.Logger) Option { return func(o *options) { o.logger = logger } }

// WithExprCache compiles expressions through c.
func WithExprCache(c *exprcond.Cache) Option { return func(o *options) { o.cache = c } }

// WithRepeat controls whether the root restarts its child.
func WithRepeat(repeat bool) Option { return func(o *options) { o.repeat = repeat } }

// WithClockOptions configures the tree's clock.
func WithClockOptions(opts ...clock.Option) Option {
	return func(o *options) { o.clockOpts = append(o.clockOpts, opts...) }
}

// Agent is a built demo tree and its world.
type Agent struct {
	Root  *tree.Root
	World *World
	JS    *jsleaf.Engine
}

// New builds the guard:
//
//	Service(world.Step)
//	└─ Selector
//	   ├─ hp < 30                 retreat, heal           (aborts lower priority)
//	   ├─ enemy is set            attack, else reload     (aborts both)
//	   ├─ lowAmmo()               reload                  (aborts lower priority)
//	   └─ patrol()
func New(opts ...Option) (*Agent, error) {
	o := options{seed: 1, spawn: 0.2, logger: slog.Default(), cache: exprcond.SharedCache(), repeat: true}
	for _, opt := range opts {
		opt(&o)
	}

	js := jsleaf.New(jsleaf.WithLogger(o.logger))
	if err := js.Load("agent.js", Script); err != nil {
		return nil, err
	}
	for _, s := range o.scripts {
		if err := js.Load(s[0], s[1]); err != nil {
			return nil, err
		}
	}

	bb := blackboard.New(blackboard.WithLogger(o.logger))
	bb.Set(KeyHP, MaxHP)
	bb.Set(KeyAmmo, MaxAmmo)
	bb.Set(KeyKills, 0)
	bb.Set(KeyMode, "idle")

	world := NewWorld(o.seed, o.spawn)
	exprOpts := []exprcond.Option{exprcond.WithCache(o.cache), exprcond.WithLogger(o.logger)}
	expr := func(src string) *exprcond.Expression { return exprcond.MustCompile(src, exprOpts...) }

	root, err := tree.Build(func() tree.Node {
		return tree.NewService(1, world.Step,
			tree.NewSelector(
				expr(`hp < 30`).Condition(tree.AbortsLowerPriority, retreat()),
				tree.NewBlackboardCondition(KeyEnemy, tree.IsSet, nil, tree.AbortsBoth,
					tree.NewSelector(
						tree.NewSequence(
							expr(`ammo > 0 && enemyHP > 0`).Check(),
							tree.NewTimeMax(10, false, must(js.Task("attack"))),
						),
						reload(),
					),
				),
				must(js.Condition("lowAmmo", []string{KeyAmmo}, tree.AbortsLowerPriority, reload())),
				must(js.Task("patrol")),
			),
		)
	},
		tree.WithBlackboard(bb),
		tree.WithClock(clock.New(o.clockOpts...)),
		tree.WithLogger(o.logger),
		tree.WithSeed(o.seed),
		tree.WithRepeat(o.repeat),
	)
	if err != nil {
		return nil, err
	}
	return &Agent{Root: root, World: world, JS: js}, nil
}

func retreat() tree.Node {
	return tree.Labeled(tree.NewSequence(
		setMode("retreat"),
		tree.NewWait(3),
		tree.NewAction(func(bb *blackboard.Blackboard) {
			bb.Set(KeyHP, MaxHP)
			bb.Set(KeyMode, "idle")
		}),
	), "retreat")
}

func reload() tree.Node {
	return tree.Labeled(tree.NewSequence(
		setMode("reload"),
		tree.NewWait(2),
		tree.NewAction(func(bb *blackboard.Blackboard) {
			bb.Set(KeyAmmo, MaxAmmo)
			bb.Set(KeyMode, "idle")
		}),
	), "reload")
}

func setMode(mode string) tree.Node {
	return tree.NewAction(func(bb *blackboard.Blackboard) { bb.Set(KeyMode, mode) })
}

func must[N tree.Node](n N, err error) N {
	if err != nil {
		panic(&tree.ConstructionError{Node: "script", Reason: err.Error()})
	}
	return n
}
