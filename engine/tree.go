// Package engine wires the packages below it into a runnable
// communication tree and drives the bulk-synchronous phase loop. It is
// the only package that imports comm, taskunit, lb, remap, sketch, and
// config together; nothing in those packages imports engine.
package engine

import (
	"fmt"

	"github.com/systems-nuts/pimbridge/comm"
	"github.com/systems-nuts/pimbridge/config"
	"github.com/systems-nuts/pimbridge/core"
	"github.com/systems-nuts/pimbridge/lb"
	"github.com/systems-nuts/pimbridge/remap"
	"github.com/systems-nuts/pimbridge/taskunit"
)

// lazyEvictor defers to a CommModuleManager that does not exist yet at
// the point a Limited remap table must be constructed: the manager
// needs the fully built bank slice, but banks at level 0 need an
// Evictor at construction time. Resolved once BuildTree finishes.
type lazyEvictor struct {
	mgr *comm.CommModuleManager
}

func (e *lazyEvictor) ReturnReplacedAddr(addr core.LbPageAddr, level int, commID core.CommID) {
	if e.mgr != nil {
		e.mgr.ReturnReplacedAddr(addr, level, commID)
	}
}

// reserveHotnessAdapter exposes one bank's active ReserveKernel as an
// lb.HotnessSource, stamping SrcBank since the sketch itself only
// tracks (addr, count).
type reserveHotnessAdapter struct {
	tu   *taskunit.TaskUnit
	bank core.BankID
}

func (a reserveHotnessAdapter) TopHotItems(n int) []core.DataHotness {
	rk, ok := a.tu.CurKernel().(*taskunit.ReserveKernel)
	if !ok {
		return nil
	}
	items := rk.TopHotItems(n)
	for i := range items {
		items[i].SrcBank = a.bank
	}
	return items
}

func usesSketch(kind config.LoadBalancerKind) bool {
	return kind == config.LbReserve || kind == config.LbTryReserve
}

func newRemapTable(level int, commID core.CommID, cfg *config.Config, ev remap.Evictor) interface {
	IsLend(core.LbPageAddr) bool
	IsBorrowMidState(core.LbPageAddr) bool
	ChildRemap(core.LbPageAddr) (core.CommID, bool)
	SetLend(core.LbPageAddr)
	ClearLend(core.LbPageAddr)
	SetBorrowMidState(core.LbPageAddr)
	ClearBorrowMidState(core.LbPageAddr)
	SetChildRemap(core.LbPageAddr, core.CommID)
	CheckContradiction(core.LbPageAddr) error
} {
	if cfg.RemapTableType == config.RemapTableLimited {
		return remap.NewLimited(level, commID, cfg.RemapTableSet, cfg.RemapTableAssoc, ev)
	}
	return remap.New(level)
}

func newGatherScheme(cfg config.GatherSchemeConfig) comm.GatherScheme {
	switch cfg.Kind {
	case config.GatherInterval:
		return comm.NewIntervalGather(cfg.Interval, cfg.PacketSize)
	case config.GatherOnDemand:
		return comm.NewOnDemandGather(cfg.PacketSize)
	case config.GatherOnDemandOfAll:
		return comm.NewOnDemandOfAllGather(cfg.PacketSize)
	case config.GatherDynamicInterval:
		return comm.NewDynamicIntervalGather(cfg.MinInterval, cfg.MaxInterval, cfg.PacketSize, cfg.HighWaterMark)
	case config.GatherTaskGenTrack:
		return comm.NewTaskGenerationTrackGather(cfg.PacketSize, cfg.Threshold)
	default:
		return comm.NewWheneverGather(cfg.PacketSize)
	}
}

func newScatterScheme(cfg config.ScatterSchemeConfig) comm.ScatterScheme {
	switch cfg.Kind {
	case config.ScatterInterval:
		return comm.NewIntervalScatter(cfg.Interval, cfg.PacketSize)
	case config.ScatterOnDemand:
		return comm.NewOnDemandScatter(cfg.PacketSize)
	default:
		return comm.NewAfterGatherScatter(cfg.PacketSize)
	}
}

// newBalancer builds the configured balancer. sources is nil unless
// kind needs per-bank hotness sources (Reserve/TryReserve), in which
// case it must be indexed identically to the module's children.
func newBalancer(cfg *config.Config, sources []lb.HotnessSource) lb.Balancer {
	lbCfg := lb.Config{
		IdleThreshold: cfg.LoadBalancer.IdleThreshold,
		ChunkSize:     cfg.LoadBalancer.ChunkSize,
		VictimNumber:  cfg.LoadBalancer.VictimNumber,
		HotDataNumber: cfg.LoadBalancer.HotDataNumber,
	}
	switch cfg.LoadBalancer.Kind {
	case config.LbAverage:
		return lb.NewAverage(lbCfg)
	case config.LbMultiVictim:
		return lb.NewMultiVictim(lbCfg)
	case config.LbReserve:
		return lb.NewReserve(lbCfg, sources)
	case config.LbTryReserve:
		return lb.NewTryReserve(lbCfg, sources)
	default:
		return lb.NewStealing(lbCfg)
	}
}

// BuildTree constructs a full communication tree over numBanks banks
// grouped `branching` at a time per level, up to a single root. Banks
// are numbered [0, numBanks); numaMap resolves each lbPageAddr's home
// bank. Returns the manager (with Levels populated for the phase
// driver) and the flat TaskUnit slice in bank order.
func BuildTree(cfg *config.Config, numBanks, branching int, numaMap core.NumaMap) (*comm.CommModuleManager, []*taskunit.TaskUnit, error) {
	if numBanks <= 0 {
		return nil, nil, fmt.Errorf("engine: numBanks must be positive, got %d", numBanks)
	}
	if branching < 2 {
		return nil, nil, fmt.Errorf("engine: branching must be at least 2, got %d", branching)
	}

	ev := &lazyEvictor{}

	banks := make([]*comm.BottomCommModule, numBanks)
	units := make([]*taskunit.TaskUnit, numBanks)
	bottomSiblings := make(map[core.CommID]comm.Node, numBanks)

	for i := 0; i < numBanks; i++ {
		bankID := core.BankID(i)
		table := newRemapTable(0, core.CommID(i), cfg, ev)
		bcm := comm.NewBottomCommModule(bankID, core.CommID(i), numaMap, table, cfg.InterflowOn)
		var tu *taskunit.TaskUnit
		if usesSketch(cfg.LoadBalancer.Kind) {
			tu = taskunit.NewReserveTaskUnit(fmt.Sprintf("bank-%d", i), bankID, bcm, cfg.SketchBucketNum, cfg.SketchBucketSize)
		} else {
			tu = taskunit.NewTaskUnit(fmt.Sprintf("bank-%d", i), bankID, bcm)
		}
		bcm.AttachTaskUnit(tu)
		banks[i] = bcm
		units[i] = tu
		bottomSiblings[core.CommID(i)] = bcm
	}
	if cfg.InterflowOn {
		for _, b := range banks {
			b.InitSiblings(bottomSiblings)
		}
	}

	var levels [][]*comm.CommModule
	curNodes := make([]comm.Node, numBanks)
	for i, b := range banks {
		curNodes[i] = b
	}
	// bankOf maps a Node back to its originating bank range start, used
	// to slice sources for Reserve/TryReserve hotness wiring at level 1.
	level := 0
	for len(curNodes) > 1 {
		var nextNodes []comm.Node
		var thisLevel []*comm.CommModule
		siblingSet := make(map[core.CommID]comm.Node)
		nextCommID := core.CommID(0)

		for start := 0; start < len(curNodes); start += branching {
			end := start + branching
			if end > len(curNodes) {
				end = len(curNodes)
			}
			children := curNodes[start:end]
			commID := nextCommID
			nextCommID++

			table := newRemapTable(level+1, commID, cfg, ev)

			var sources []lb.HotnessSource
			if level == 0 && usesSketch(cfg.LoadBalancer.Kind) {
				sources = make([]lb.HotnessSource, len(children))
				for i, c := range children {
					if bcm, ok := c.(*comm.BottomCommModule); ok {
						sources[i] = reserveHotnessAdapter{tu: bcm.TaskUnit(), bank: bcm.BankID()}
					}
				}
			}
			balancer := newBalancer(cfg, sources)

			m := comm.NewCommModule(level+1, commID, children, table, cfg.InterflowOn,
				newGatherScheme(cfg.GatherScheme), newScatterScheme(cfg.ScatterScheme),
				balancer, cfg.EnableLoadBalance, lb.Config{
					IdleThreshold: cfg.LoadBalancer.IdleThreshold,
					ChunkSize:     cfg.LoadBalancer.ChunkSize,
					VictimNumber:  cfg.LoadBalancer.VictimNumber,
					HotDataNumber: cfg.LoadBalancer.HotDataNumber,
				})
			thisLevel = append(thisLevel, m)
			nextNodes = append(nextNodes, m)
			siblingSet[commID] = m
		}
		if cfg.InterflowOn {
			for _, m := range thisLevel {
				m.InitSiblings(siblingSet)
			}
		}
		levels = append(levels, thisLevel)
		curNodes = nextNodes
		level++
	}

	root := curNodes[0]
	mgr := comm.NewCommModuleManager(root, banks, levels)
	ev.mgr = mgr

	return mgr, units, nil
}
