package remap

import (
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/systems-nuts/pimbridge/core"
)

func TestRemapSuite(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "remap suite")
}

var _ = Describe("Limited remap table", func() {
	var (
		ev  *recordingEvictor
		lim *Limited
	)

	BeforeEach(func() {
		ev = &recordingEvictor{}
		lim = NewLimited(1, core.CommID(4), 2, 1, ev)
	})

	It("keeps entries that fit within bucket capacity", func() {
		lim.SetChildRemap(core.LbPageAddr(1), core.CommID(7))
		c, ok := lim.ChildRemap(core.LbPageAddr(1))
		Expect(ok).To(BeTrue())
		Expect(c).To(Equal(core.CommID(7)))
		Expect(ev.returned).To(BeEmpty())
	})

	It("evicts the least-recently-used entry in a bucket on overflow", func() {
		// With NumBucket=2, addresses 1 and 3 hash independently; force
		// them into the same bucket isn't guaranteed across hash
		// functions, so exercise the same-bucket path by reusing the
		// bucket-0-only construction from TestLimitedEvictsOldestOnOverflow
		// instead for the deterministic collision case, and here just
		// assert capacity-1 buckets evict immediately on a second write.
		single := NewLimited(1, core.CommID(4), 1, 1, ev)
		single.SetChildRemap(core.LbPageAddr(10), core.CommID(1))
		single.SetChildRemap(core.LbPageAddr(20), core.CommID(1))
		Expect(ev.returned).To(ContainElement(core.LbPageAddr(10)))
		_, ok := single.ChildRemap(core.LbPageAddr(10))
		Expect(ok).To(BeFalse())
	})

	It("does not evict on a collapse-to-home write", func() {
		lim.SetChildRemap(core.LbPageAddr(1), core.CommID(7))
		lim.SetChildRemap(core.LbPageAddr(1), noChild)
		_, ok := lim.ChildRemap(core.LbPageAddr(1))
		Expect(ok).To(BeFalse())
		Expect(ev.returned).To(BeEmpty())
	})
})
