package lb

import (
	"sort"

	"github.com/systems-nuts/pimbridge/core"
)

// TryReserveLoadBalancer behaves like ReserveLoadBalancer, but when a
// stealer's demand is not fully satisfied by hot items it falls back to
// ordinary random-victim stealing for the remainder, per
// try_reserve_load_balancer.cpp.
type TryReserveLoadBalancer struct {
	cfg     Config
	sources []HotnessSource
	hotness []core.DataHotness
}

// NewTryReserve builds a TryReserveLoadBalancer.
func NewTryReserve(cfg Config, sources []HotnessSource) *TryReserveLoadBalancer {
	return &TryReserveLoadBalancer{cfg: cfg, sources: sources}
}

func (b *TryReserveLoadBalancer) UpdateChildStateForLB(module ModuleView) {
	readyLens, _, _ := module.ViewChildState()
	b.hotness = b.hotness[:0]
	for i, r := range readyLens {
		if r < b.cfg.IdleThreshold || i >= len(b.sources) || b.sources[i] == nil {
			continue
		}
		b.hotness = append(b.hotness, b.sources[i].TopHotItems(b.cfg.HotDataNumber)...)
	}
	sort.Slice(b.hotness, func(i, j int) bool {
		if b.hotness[i].Count != b.hotness[j].Count {
			return b.hotness[i].Count > b.hotness[j].Count
		}
		return b.hotness[i].SrcBank < b.hotness[j].SrcBank
	})
}

func (b *TryReserveLoadBalancer) GenerateCommand(module ModuleView) (commands, needs []int) {
	readyLens, queueLens, _ := module.ViewChildState()
	n := len(readyLens)
	commands = make([]int, n)
	needs = make([]int, n)

	idleVec, notIdleVec := partitionIdle(readyLens, b.cfg.IdleThreshold)

	remainingSupply := make(map[core.BankID]int)
	for _, h := range b.hotness {
		remainingSupply[h.SrcBank] += h.Count
	}

	for _, thief := range idleVec {
		need := b.cfg.IdleThreshold - readyLens[thief]

		// First, satisfy from hot-item supply.
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

		// Fall back to ordinary stealing for any unmet demand.
		for need > 0 && len(notIdleVec) > 0 {
			vi := randIntn(len(notIdleVec))
			victim := notIdleVec[vi]
			chunk := b.cfg.ChunkSize
			if chunk == 0 {
				chunk = queueLens[victim] / 2
			}
			if chunk > need {
				chunk = need
			}
			if chunk > queueLens[victim] {
				chunk = queueLens[victim]
			}
			if chunk <= 0 {
				notIdleVec = removeAt(notIdleVec, vi)
				continue
			}
			needs[thief] += chunk
			commands[victim] += chunk
			need -= chunk
			if queueLens[victim]-chunk < b.cfg.IdleThreshold {
				notIdleVec = removeAt(notIdleVec, vi)
			}
		}
	}
	return commands, needs
}
