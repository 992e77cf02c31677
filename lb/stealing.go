package lb

// StealingLoadBalancer partitions children into idle and not-idle sets;
// for each idle child it picks a random victim from the not-idle set,
// requesting ChunkSize tasks (or half the victim's queue when
// ChunkSize==0), and drops a victim from consideration once it would
// fall back below idle.
type StealingLoadBalancer struct {
	cfg Config
}

// NewStealing builds a StealingLoadBalancer.
func NewStealing(cfg Config) *StealingLoadBalancer {
	return &StealingLoadBalancer{cfg: cfg}
}

func (b *StealingLoadBalancer) UpdateChildStateForLB(module ModuleView) {}

func (b *StealingLoadBalancer) GenerateCommand(module ModuleView) (commands, needs []int) {
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

		chunk := b.cfg.ChunkSize
		if chunk == 0 {
			chunk = queueLens[victim] / 2
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

		if queueLens[victim]-chunk < b.cfg.IdleThreshold {
			notIdleVec = removeAt(notIdleVec, vi)
		}
	}
	return commands, needs
}
