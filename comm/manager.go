package comm

import (
	"github.com/systems-nuts/pimbridge/core"
	"github.com/systems-nuts/pimbridge/internal/nlog"
)

// CommModuleManager owns the whole tree's root and the flat bank index,
// and implements remap.Evictor so any Limited remap table in the tree
// can report an eviction without importing package comm from package
// remap. Grounded on the reference comm_module_manager.h/.cpp.
type CommModuleManager struct {
	root  Node
	banks []*BottomCommModule

	// Levels holds every inner CommModule grouped by tree level
	// (Levels[0] is the level directly above the banks), letting the
	// engine's phase driver fan Communicate calls out across siblings
	// at the same level.
	Levels [][]*CommModule
}

// NewCommModuleManager wires a manager over an already-constructed
// tree; banks must be given in bank-ID order. levels groups every inner
// CommModule by tree level, level 0 being the level directly above the
// banks.
func NewCommModuleManager(root Node, banks []*BottomCommModule, levels [][]*CommModule) *CommModuleManager {
	return &CommModuleManager{root: root, banks: banks, Levels: levels}
}

func (mgr *CommModuleManager) Root() Node { return mgr.root }

func (mgr *CommModuleManager) Banks() []*BottomCommModule { return mgr.banks }

func (mgr *CommModuleManager) Bank(id core.BankID) *BottomCommModule {
	if int(id) < 0 || int(id) >= len(mgr.banks) {
		return nil
	}
	return mgr.banks[id]
}

// ReturnReplacedAddr implements remap.Evictor: when a Limited table
// evicts an address, the address's ownership at (level, commID) reverts
// to its home bank, so the corresponding bank's TaskUnit must be told
// the address is back via NewAddrReturn.
func (mgr *CommModuleManager) ReturnReplacedAddr(addr core.LbPageAddr, level int, commID core.CommID) {
	home := mgr.homeBankFor(addr)
	bank := mgr.Bank(home)
	if bank == nil || bank.taskUnit == nil {
		return
	}
	bank.taskUnit.NewAddrReturn(addr)
	nlog.Infof("remap evicted addr=%d level=%d commID=%d, returned home bank=%d", addr, level, commID, home)
}

func (mgr *CommModuleManager) homeBankFor(addr core.LbPageAddr) core.BankID {
	if len(mgr.banks) == 0 {
		return 0
	}
	return mgr.banks[0].numaMap.GetNodeOfPage(mgr.banks[0].numaMap.GetPageAddressFromLbPageAddress(addr))
}

// ClearStaleToSteal resets every bank's toStealSize reservation once
// per timestamp unless the bank actually absorbed a load-balance task
// or was itself a victim this round, per spec.md §4.7's guard against a
// stuck reservation starving a bank that never got its promised work.
func (mgr *CommModuleManager) ClearStaleToSteal() {
	for _, b := range mgr.banks {
		if b.taskUnit == nil {
			continue
		}
		if !b.taskUnit.HasReceiveLbTask() && !b.taskUnit.HasBeenVictim() {
			b.taskUnit.ClearToSteal()
		}
		b.taskUnit.ResetLbFlags()
	}
}
