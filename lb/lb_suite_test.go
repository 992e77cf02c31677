package lb

import (
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/systems-nuts/pimbridge/core"
)

func TestLbSuite(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "lb suite")
}

var _ = Describe("ReserveLoadBalancer", func() {
	It("assigns supply from hot children to idle thieves", func() {
		module := newFakeModule([]int{0, 50}, []int{0, 50})
		bal := NewReserve(Config{IdleThreshold: 10, HotDataNumber: 2}, nil)
		bal.hotness = []core.DataHotness{{Addr: 9, SrcBank: 1, Count: 20}}

		commands, needs := bal.GenerateCommand(module)

		Expect(needs[0]).To(BeNumerically(">", 0))
		Expect(commands[1]).To(Equal(needs[0]))
	})

	It("produces no commands when no child is idle", func() {
		module := newFakeModule([]int{50, 50}, []int{50, 50})
		bal := NewReserve(Config{IdleThreshold: 10, HotDataNumber: 2}, nil)

		commands, needs := bal.GenerateCommand(module)
		for _, c := range commands {
			Expect(c).To(Equal(0))
		}
		for _, n := range needs {
			Expect(n).To(Equal(0))
		}
	})
})

var _ = Describe("AssignLbTarget", func() {
	It("saturates needs at zero rather than going negative", func() {
		module := newFakeModule([]int{0}, []int{0})
		needs := []int{2}
		hotness := []core.DataHotness{{Addr: 1, SrcBank: 0, Count: 5}}

		AssignLbTarget(module, needs, hotness)

		Expect(needs[0]).To(Equal(0))
	})
})
