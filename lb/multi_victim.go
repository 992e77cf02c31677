package lb

// MultiVictimLoadBalancer spreads each stealer across VictimNumber
// victims in parallel to avoid hot-spotting a single victim, per
// multi_victim_load_balancer.cpp. NeedParentLevelLb reports, after the
// most recent GenerateCommand, whether any stealer had unmet demand
// with no supply left anywhere in this subtree — a signal the parent
// level should also run its balancer.
type MultiVictimLoadBalancer struct {
	cfg               Config
	needParentLevelLb bool
}

// NewMultiVictim builds a MultiVictimLoadBalancer.
func NewMultiVictim(cfg Config) *MultiVictimLoadBalancer {
	return &MultiVictimLoadBalancer{cfg: cfg}
}

func (b *MultiVictimLoadBalancer) UpdateChildStateForLB(module ModuleView) {}

// NeedParentLevelLb reports the escalation signal from the last
// GenerateCommand call.
func (b *MultiVictimLoadBalancer) NeedParentLevelLb() bool {
	return b.needParentLevelLb
}

func (b *MultiVictimLoadBalancer) GenerateCommand(module ModuleView) (commands, needs []int) {
	readyLens, queueLens, _ := module.ViewChildState()
	n := len(readyLens)
	commands = make([]int, n)
	needs = make([]int, n)
	b.needParentLevelLb = false

	idleVec, notIdleVec := partitionIdle(readyLens, b.cfg.IdleThreshold)

	victimNumber := b.cfg.VictimNumber
	if victimNumber < 1 {
		victimNumber = 1
	}

	for _, thief := range idleVec {
		demand := b.cfg.ChunkSize
		if demand == 0 {
			demand = b.cfg.IdleThreshold - readyLens[thief]
		}
		satisfied := 0

		for v := 0; v < victimNumber && len(notIdleVec) > 0; v++ {
			vi := randIntn(len(notIdleVec))
			victim := notIdleVec[vi]

			take := demand / victimNumber
			if take > queueLens[victim] {
				take = queueLens[victim]
			}
			if take <= 0 {
				notIdleVec = removeAt(notIdleVec, vi)
				v--
				continue
			}
			needs[thief] += take
			commands[victim] += take
			satisfied += take

			if queueLens[victim]-take < b.cfg.IdleThreshold {
				notIdleVec = removeAt(notIdleVec, vi)
			}
		}

		if satisfied < demand && len(notIdleVec) == 0 {
			b.needParentLevelLb = true
		}
	}
	return commands, needs
}
