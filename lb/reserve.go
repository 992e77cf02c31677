package lb

import (
	"sort"

	"github.com/systems-nuts/pimbridge/core"
)

// HotnessSource is implemented by a task unit's reserve kernel (or any
// sketch-backed kernel) to expose its sketch's top hot items without
// the lb package importing taskunit.
type HotnessSource interface {
	TopHotItems(n int) []core.DataHotness
}

// ReserveLoadBalancer additionally gathers each child's top
// HotDataNumber hot items (via UpdateChildStateForLB), sorts them
// descending by count, and for each idle child walks the hotness list
// picking the first item whose source child has sufficient supply.
type ReserveLoadBalancer struct {
	cfg     Config
	sources []HotnessSource // indexed by child, set via SetSources
	hotness []core.DataHotness
}

// NewReserve builds a ReserveLoadBalancer. sources supplies each
// child's hotness source, indexed identically to the module's children.
func NewReserve(cfg Config, sources []HotnessSource) *ReserveLoadBalancer {
	return &ReserveLoadBalancer{cfg: cfg, sources: sources}
}

// UpdateChildStateForLB is only active at level 1 per spec.md (reserve
// balancers sit one level above BottomCommModules, the only level whose
// children carry a sketch): for each child above IdleThreshold, pull
// its top HotDataNumber hot items into the shared childDataHotness list.
func (b *ReserveLoadBalancer) UpdateChildStateForLB(module ModuleView) {
	readyLens, _, _ := module.ViewChildState()
	b.hotness = b.hotness[:0]
	for i, r := range readyLens {
		if r < b.cfg.IdleThreshold {
			continue
		}
		if i >= len(b.sources) || b.sources[i] == nil {
			continue
		}
		b.hotness = append(b.hotness, b.sources[i].TopHotItems(b.cfg.HotDataNumber)...)
	}
	sort.Slice(b.hotness, func(i, j int) bool { return b.hotness[i].Count > b.hotness[j].Count })
}

func (b *ReserveLoadBalancer) GenerateCommand(module ModuleView) (commands, needs []int) {
	readyLens, _, _ := module.ViewChildState()
	n := len(readyLens)
	commands = make([]int, n)
	needs = make([]int, n)

	idleVec, _ := partitionIdle(readyLens, b.cfg.IdleThreshold)

	// SrcBank doubles as the local child index here: ReserveLoadBalancer
	// only ever runs at level 1, where each child is a BottomCommModule
	// tied 1:1 to the bank of the same local index.
	remainingSupply := make(map[core.BankID]int)
	for _, h := range b.hotness {
		remainingSupply[h.SrcBank] += h.Count
	}

	for _, thief := range idleVec {
		need := b.cfg.IdleThreshold - readyLens[thief]
		for _, h := range b.hotness {
			if need <= 0 {
				break
			}
			avail := remainingSupply[h.SrcBank]
			if avail <= 0 {
				continue
			}
			take := avail
			if take > need {
				take = need
			}
			remainingSupply[h.SrcBank] -= take
			need -= take
			needs[thief] += take
			commands[int(h.SrcBank)] += take
		}
	}
	return commands, needs
}
