// SPDX-License-Identifier: AGPL-3.0-or-later

package cluster

// Capacity describes one instance type's known vcore/memory budget, the
// way the dispatcher computes per-worker resource settings (spec.md §4.5).
type Capacity struct {
	VCores   int
	MemoryMB int
}

// capacityTable is the known-good set of instance types the dispatcher
// can plan against. Grounded on the teacher's DigitalOcean provider,
// which keys its own droplet sizing off a small static table of named
// sizes (HostSpec.Size) rather than querying the API for every plan.
var capacityTable = map[string]Capacity{
	"m4.large":    {VCores: 2, MemoryMB: 8192},
	"m4.xlarge":   {VCores: 4, MemoryMB: 16384},
	"m4.2xlarge":  {VCores: 8, MemoryMB: 32768},
	"m4.4xlarge":  {VCores: 16, MemoryMB: 65536},
	"c4.xlarge":   {VCores: 4, MemoryMB: 7680},
	"c4.2xlarge":  {VCores: 8, MemoryMB: 15360},
	"r4.xlarge":   {VCores: 4, MemoryMB: 31232},
	"r4.2xlarge":  {VCores: 8, MemoryMB: 62464},
}

// CapacityFor returns the known capacity for instanceType, and whether it
// was found.
func CapacityFor(instanceType string) (Capacity, bool) {
	c, ok := capacityTable[instanceType]
	return c, ok
}

// PerWorkerBudget computes the per-worker memory/vcore settings the
// dispatcher bakes into each instance group's bootstrap configuration:
// an even split of the instance's capacity across its declared task slots.
func PerWorkerBudget(instanceType string, slotsPerInstance int) (memoryMBPerSlot, vcoresPerSlot int, ok bool) {
	c, found := CapacityFor(instanceType)
	if !found || slotsPerInstance < 1 {
		return 0, 0, false
	}
	return c.MemoryMB / slotsPerInstance, maxInt(1, c.VCores/slotsPerInstance), true
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
