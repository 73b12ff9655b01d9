// SPDX-License-Identifier: AGPL-3.0-or-later

package cluster

import (
	"fmt"

	"railrna/pkg/pipeline"
)

// GroupSpec describes one instance group the caller wants in the job
// flow: its role, instance type, count, and market. Grounded on the
// teacher's cloud.HostSpec{Name, Role, Size, Region} shape, generalized
// from a single droplet spec to a MapReduce instance group.
type GroupSpec struct {
	Role         InstanceRole
	InstanceType string
	Count        int
	Market       Market
	BidPrice     string // required when Market == MarketSpot
}

// Options configures a single job-flow Plan.
type Options struct {
	Name              string
	LogURI            string
	AmiVersion        string
	Tags              map[string]string
	VisibleToAllUsers bool
	KeepAlive         bool // unused directly; carried for the caller's own cluster-level flags
	StreamingJar      string
	Groups            []GroupSpec
	BootstrapActions  []BootstrapAction
}

// Plan builds a Descriptor from a compiled Pipeline and the cluster
// options, validating each instance group against the capacity table and
// the SPOT/BidPrice pairing (spec.md §4.5).
func Plan(pipe pipeline.Pipeline, opts Options) (Descriptor, error) {
	if len(opts.Groups) == 0 {
		return Descriptor{}, fmt.Errorf("cluster: at least one instance group is required")
	}

	groups := make([]InstanceGroup, 0, len(opts.Groups))
	masterGroups := 0
	for _, g := range opts.Groups {
		if _, ok := CapacityFor(g.InstanceType); !ok {
			return Descriptor{}, fmt.Errorf("cluster: unknown instance type %q for role %s", g.InstanceType, g.Role)
		}
		if g.Market == MarketSpot && g.BidPrice == "" {
			return Descriptor{}, fmt.Errorf("cluster: instance group %s/%s requests SPOT market without a bid price", g.Role, g.InstanceType)
		}
		if g.Role == RoleMaster {
			masterGroups++
			if g.Count != 1 {
				return Descriptor{}, fmt.Errorf("cluster: MASTER instance group must have exactly one instance, got %d", g.Count)
			}
		}
		groups = append(groups, InstanceGroup{
			InstanceCount: g.Count,
			InstanceRole:  g.Role,
			InstanceType:  g.InstanceType,
			Market:        g.Market,
			BidPrice:      g.BidPrice,
		})
	}
	if masterGroups != 1 {
		return Descriptor{}, fmt.Errorf("cluster: job flow requires exactly one MASTER instance group")
	}

	visible := "false"
	if opts.VisibleToAllUsers {
		visible = "true"
	}

	return Descriptor{
		Name:              opts.Name,
		LogUri:            opts.LogURI,
		AmiVersion:        opts.AmiVersion,
		Tags:              opts.Tags,
		VisibleToAllUsers: visible,
		Instances:         Instances{InstanceGroups: groups},
		BootstrapActions:  opts.BootstrapActions,
		Steps:             BuildSteps(pipe, opts.StreamingJar),
	}, nil
}
