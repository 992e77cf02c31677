package comm

// GatherScheme decides, once per phase, whether a CommModule should run
// a gather round and how large its pull window should be. Grounded on
// the reference gather_scheme.h/.cpp family.
type GatherScheme interface {
	ShouldTrigger(module *CommModule, phaseCount int) bool
	PacketSize() int
}

// WheneverGather fires every phase, matching the reference's
// AlwaysGather.
type WheneverGather struct {
	packetSize int
}

func NewWheneverGather(packetSize int) *WheneverGather {
	return &WheneverGather{packetSize: packetSize}
}

func (g *WheneverGather) ShouldTrigger(module *CommModule, phaseCount int) bool { return true }
func (g *WheneverGather) PacketSize() int                                      { return g.packetSize }

// IntervalGather fires once every N phases.
type IntervalGather struct {
	interval   int
	packetSize int
}

func NewIntervalGather(interval, packetSize int) *IntervalGather {
	return &IntervalGather{interval: interval, packetSize: packetSize}
}

func (g *IntervalGather) ShouldTrigger(module *CommModule, phaseCount int) bool {
	if g.interval <= 0 {
		return false
	}
	return phaseCount%g.interval == 0
}
func (g *IntervalGather) PacketSize() int { return g.packetSize }

// OnDemandGather fires whenever this module's parent-bound transfer
// region holds at least one pending packet, i.e. a child has something
// waiting to move up.
type OnDemandGather struct {
	packetSize int
}

func NewOnDemandGather(packetSize int) *OnDemandGather {
	return &OnDemandGather{packetSize: packetSize}
}

func (g *OnDemandGather) ShouldTrigger(module *CommModule, phaseCount int) bool {
	for _, c := range module.children {
		if c.StateLocalTaskQueueSize() > 0 || c.StateToStealSize() > 0 {
			return true
		}
	}
	return false
}
func (g *OnDemandGather) PacketSize() int { return g.packetSize }

// OnDemandOfAllGather fires only once every child has pending work,
// the stricter sibling of OnDemandGather.
type OnDemandOfAllGather struct {
	packetSize int
}

func NewOnDemandOfAllGather(packetSize int) *OnDemandOfAllGather {
	return &OnDemandOfAllGather{packetSize: packetSize}
}

func (g *OnDemandOfAllGather) ShouldTrigger(module *CommModule, phaseCount int) bool {
	for _, c := range module.children {
		if c.StateLocalTaskQueueSize() == 0 && c.StateToStealSize() == 0 {
			return false
		}
	}
	return true
}
func (g *OnDemandOfAllGather) PacketSize() int { return g.packetSize }

// DynamicIntervalGather adapts its interval to the average transfer
// region occupancy observed last gather: a fuller region shortens the
// interval (down to minInterval), an emptier one lengthens it (up to
// maxInterval).
type DynamicIntervalGather struct {
	minInterval, maxInterval int
	packetSize               int
	highWaterMark            int

	curInterval int
	sincePhase  int
}

func NewDynamicIntervalGather(minInterval, maxInterval, packetSize, highWaterMark int) *DynamicIntervalGather {
	return &DynamicIntervalGather{
		minInterval:   minInterval,
		maxInterval:   maxInterval,
		packetSize:    packetSize,
		highWaterMark: highWaterMark,
		curInterval:   maxInterval,
	}
}

func (g *DynamicIntervalGather) ShouldTrigger(module *CommModule, phaseCount int) bool {
	g.sincePhase++
	if g.sincePhase < g.curInterval {
		return false
	}
	g.sincePhase = 0

	total := 0
	for _, c := range module.children {
		total += c.StateToStealSize()
	}
	if total >= g.highWaterMark {
		g.curInterval = g.minInterval
	} else {
		g.curInterval = g.maxInterval
	}
	return true
}
func (g *DynamicIntervalGather) PacketSize() int { return g.packetSize }

// TaskGenerationTrackGather tracks each gather round's observed task
// count with an exponential moving average (alpha=0.5, per Open
// Question #3's resolution) and triggers whenever the tracked estimate
// exceeds threshold.
type TaskGenerationTrackGather struct {
	packetSize int
	threshold  float64
	alpha      float64
	estimate   float64
	started    bool
}

func NewTaskGenerationTrackGather(packetSize int, threshold float64) *TaskGenerationTrackGather {
	return &TaskGenerationTrackGather{packetSize: packetSize, threshold: threshold, alpha: 0.5}
}

func (g *TaskGenerationTrackGather) ShouldTrigger(module *CommModule, phaseCount int) bool {
	observed := 0
	for _, c := range module.children {
		observed += c.StateLocalTaskQueueSize()
	}
	g.update(float64(observed))
	return g.estimate >= g.threshold
}

// update folds observed into the running estimate via EMA with
// alpha=0.5, confirmed against the reference's implicit decay constant.
func (g *TaskGenerationTrackGather) update(observed float64) {
	if !g.started {
		g.estimate = observed
		g.started = true
		return
	}
	g.estimate = g.alpha*observed + (1-g.alpha)*g.estimate
}

func (g *TaskGenerationTrackGather) PacketSize() int { return g.packetSize }
