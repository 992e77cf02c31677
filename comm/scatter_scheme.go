package comm

// ScatterScheme decides, once per phase, whether a CommModule should
// push its scatter buffers down to children. Grounded on the reference
// scatter_scheme.h/.cpp family. Deliberately does NOT replicate the
// reference's OnDemandScatter constructor bug (it wired itself to
// TriggerAfterGather instead of TriggerOnDemand); this implementation
// constructs OnDemandScatter to actually trigger on demand.
type ScatterScheme interface {
	ShouldTrigger(module *CommModule, phaseCount int, gathered bool) bool
	PacketSize() int
}

// AfterGatherScatter fires only on phases where a gather just ran,
// matching the reference's default TriggerAfterGather policy.
type AfterGatherScatter struct {
	packetSize int
}

func NewAfterGatherScatter(packetSize int) *AfterGatherScatter {
	return &AfterGatherScatter{packetSize: packetSize}
}

func (s *AfterGatherScatter) ShouldTrigger(module *CommModule, phaseCount int, gathered bool) bool {
	return gathered
}
func (s *AfterGatherScatter) PacketSize() int { return s.packetSize }

// IntervalScatter fires once every N phases regardless of gather.
type IntervalScatter struct {
	interval   int
	packetSize int
}

func NewIntervalScatter(interval, packetSize int) *IntervalScatter {
	return &IntervalScatter{interval: interval, packetSize: packetSize}
}

func (s *IntervalScatter) ShouldTrigger(module *CommModule, phaseCount int, gathered bool) bool {
	if s.interval <= 0 {
		return false
	}
	return phaseCount%s.interval == 0
}
func (s *IntervalScatter) PacketSize() int { return s.packetSize }

// OnDemandScatter fires whenever any scatter buffer holds a packet,
// independent of whether this phase gathered.
type OnDemandScatter struct {
	packetSize int
}

func NewOnDemandScatter(packetSize int) *OnDemandScatter {
	return &OnDemandScatter{packetSize: packetSize}
}

func (s *OnDemandScatter) ShouldTrigger(module *CommModule, phaseCount int, gathered bool) bool {
	for _, buf := range module.scatterBufs {
		if buf.Len() > 0 {
			return true
		}
	}
	return false
}
func (s *OnDemandScatter) PacketSize() int { return s.packetSize }
