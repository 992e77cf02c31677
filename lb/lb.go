// Package lb implements the load-balancer family: Stealing, Average,
// Reserve, TryReserve, MultiVictim, and FastArrive. Grounded on the
// reference load_balancer.h/.cpp, try_reserve_load_balancer.cpp,
// multi_victim_load_balancer.cpp, and fast_arrive_load_balancer.cpp.
package lb

import (
	"math/rand"

	"github.com/systems-nuts/pimbridge/core"
)

// ModuleView is the narrow read-only/write API a balancer needs from
// its owning CommModule, per spec.md §9's "friend-class reach-in"
// collapse: module.viewChildState() / module.applyBalance(commands,
// needs). Avoids importing package comm.
type ModuleView interface {
	ViewChildState() (readyLens, queueLens, transferSizes []int)
	ApplyBalance(commands, needs []int)
	ChildCount() int
	SetChildRemap(addr core.LbPageAddr, child int)
	AddToStealAt(child int, n int)
}

// IdleThreshold configures what counts as "idle" for shouldCommandLoadBalance
// and the Stealing/Reserve families.
type Config struct {
	IdleThreshold int
	ChunkSize     int // 0 means "half of victim's queue"
	VictimNumber  int // MultiVictim only
	HotDataNumber int // Reserve/TryReserve only
}

// Balancer is the common interface every family member satisfies.
type Balancer interface {
	// GenerateCommand reads module's child state and produces
	// commands[i] (how many tasks child i should send away) and
	// needs[i] (how many child i should receive).
	GenerateCommand(module ModuleView) (commands, needs []int)
	// UpdateChildStateForLB lets reserve-style balancers refresh
	// per-child hotness ahead of GenerateCommand. A no-op for
	// balancers that don't track hotness.
	UpdateChildStateForLB(module ModuleView)
}

// ShouldCommandLoadBalance is true iff at least one child is below
// IdleThreshold and at least one other child is at or above it with
// sufficient ready tasks, per spec.md §4.7.
func ShouldCommandLoadBalance(readyLens []int, idleThreshold int) bool {
	hasIdle, hasNotIdle := false, false
	for _, r := range readyLens {
		if r < idleThreshold {
			hasIdle = true
		} else {
			hasNotIdle = true
		}
	}
	return hasIdle && hasNotIdle
}

// AssignLbTarget walks hotness in order, maintaining a rotating pointer
// over children with nonzero needs, and for each DataHotness record
// remaps the address to the chosen child, marks the child as a steal
// target so its queueLength accounts for the incoming work, and
// decrements that child's needs (saturating at zero).
func AssignLbTarget(module ModuleView, needs []int, hotness []core.DataHotness) {
	n := len(needs)
	if n == 0 {
		return
	}
	cur := 0
	for _, h := range hotness {
		// advance to the next child with remaining need
		start := cur
		for needs[cur] <= 0 {
			cur = (cur + 1) % n
			if cur == start {
				return // no child has remaining need
			}
		}
		module.SetChildRemap(h.Addr, cur)
		module.AddToStealAt(cur, h.Count)
		needs[cur] -= h.Count
		if needs[cur] < 0 {
			needs[cur] = 0
		}
	}
}

func partitionIdle(readyLens []int, idleThreshold int) (idle, notIdle []int) {
	for i, r := range readyLens {
		if r < idleThreshold {
			idle = append(idle, i)
		} else {
			notIdle = append(notIdle, i)
		}
	}
	return
}

func removeAt(s []int, idx int) []int {
	return append(s[:idx], s[idx+1:]...)
}

// randIntn exists so tests can substitute determinism if ever needed; it
// defaults to math/rand, matching the reference's plain rand()%n victim
// selection.
var randIntn = rand.Intn
