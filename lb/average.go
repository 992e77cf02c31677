package lb

// AverageLoadBalancer is a feature recovered from original_source/ (not
// named in spec.md's load-balancer list but present in the reference
// load_balancer.cpp): it computes the average queue length across
// children and sets needs/commands directly from each child's deviation
// from that average, with no victim-selection randomness. Useful as a
// deterministic baseline balancer.
type AverageLoadBalancer struct {
	cfg Config
}

// NewAverage builds an AverageLoadBalancer.
func NewAverage(cfg Config) *AverageLoadBalancer {
	return &AverageLoadBalancer{cfg: cfg}
}

func (b *AverageLoadBalancer) UpdateChildStateForLB(module ModuleView) {}

func (b *AverageLoadBalancer) GenerateCommand(module ModuleView) (commands, needs []int) {
	_, queueLens, _ := module.ViewChildState()
	n := len(queueLens)
	commands = make([]int, n)
	needs = make([]int, n)
	if n == 0 {
		return
	}

	total := 0
	for _, q := range queueLens {
		total += q
	}
	avg := total / n

	for i, q := range queueLens {
		switch {
		case q > avg:
			commands[i] = q - avg
		case q < avg:
			needs[i] = avg - q
		}
	}
	return commands, needs
}
