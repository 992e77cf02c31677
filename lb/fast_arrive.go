package lb

// BandwidthView supplies the per-child transfer-bandwidth state
// FastArriveLoadBalancer needs beyond ModuleView's three vectors:
// configured gather bandwidth and bytes currently in flight, per child.
type BandwidthView interface {
	ChildBandwidth(child int) (gatherBandwidth, inFlightBytes int)
}

// FastArriveLoadBalancer behaves like Stealing, but clamps how much a
// victim can supply by its remaining transfer-bandwidth budget
// (gatherBandwidth - inFlightBytes) divided by the estimated bytes per
// task, per fast_arrive_load_balancer.cpp.
type FastArriveLoadBalancer struct {
	cfg                Config
	bw                 BandwidthView
	transferSizePerTask int
	victimThreshold    int
}

// NewFastArrive builds a FastArriveLoadBalancer. transferSizePerTask
// estimates bytes per migrated task; victimThreshold is the minimum
// ready-length a victim must retain after supplying.
func NewFastArrive(cfg Config, bw BandwidthView, transferSizePerTask, victimThreshold int) *FastArriveLoadBalancer {
	return &FastArriveLoadBalancer{cfg: cfg, bw: bw, transferSizePerTask: transferSizePerTask, victimThreshold: victimThreshold}
}

func (b *FastArriveLoadBalancer) UpdateChildStateForLB(module ModuleView) {}

func (b *FastArriveLoadBalancer) genSupply(child int, queueLen int) int {
	gatherBw, inFlight := b.bw.ChildBandwidth(child)
	remainTransfer := gatherBw - inFlight
	if remainTransfer < 0 {
		remainTransfer = 0
	}
	bwLimited := remainTransfer / b.transferSizePerTask
	queueLimited := queueLen - b.victimThreshold
	if queueLimited < 0 {
		queueLimited = 0
	}
	if bwLimited < queueLimited {
		return bwLimited
	}
	return queueLimited
}

func (b *FastArriveLoadBalancer) GenerateCommand(module ModuleView) (commands, needs []int) {
	readyLens, queueLens, _ := module.ViewChildState()
	n := len(readyLens)
	commands = make([]int, n)
	needs = make([]int, n)

	idleVec, notIdleVec := partitionIdle(readyLens, b.cfg.IdleThreshold)

	for _, thief := range idleVec {
		if len(notIdleVec) == 0 {
			break
		}
		vi := randIntn(len(notIdleVec))
		victim := notIdleVec[vi]

		supply := b.genSupply(victim, queueLens[victim])
		chunk := b.cfg.ChunkSize
		if chunk == 0 || chunk > supply {
			chunk = supply
		}
		if chunk <= 0 {
			notIdleVec = removeAt(notIdleVec, vi)
			continue
		}

		needs[thief] += chunk
		commands[victim] += chunk

		if queueLens[victim]-chunk < b.cfg.IdleThreshold {
			notIdleVec = removeAt(notIdleVec, vi)
		}
	}
	return commands, needs
}
