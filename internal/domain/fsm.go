package domain

import "fmt"

type UnitStatus string

const (
	UnitPendingApproval UnitStatus = "pending_approval"
	UnitActive          UnitStatus = "active"
	UnitCompleted       UnitStatus = "completed"
	UnitRejected        UnitStatus = "rejected"
)

type UnitEvent string

const (
	UnitEventApprove UnitEvent = "approve"
	UnitEventReject  UnitEvent = "reject"
	UnitEventMature  UnitEvent = "mature"
	UnitEventExit    UnitEvent = "exit"
)

var unitTransitions = map[UnitStatus]map[UnitEvent]UnitStatus{
	UnitPendingApproval: {
		UnitEventApprove: UnitActive,
		UnitEventReject:  UnitRejected,
	},
	UnitActive: {
		UnitEventMature: UnitCompleted,
		UnitEventExit:   UnitCompleted,
	},
}

// NextUnitStatus looks up the unit transition table.
func NextUnitStatus(from UnitStatus, ev UnitEvent) (UnitStatus, error) {
	if to, ok := unitTransitions[from][ev]; ok {
		return to, nil
	}
	return from, fmt.Errorf("%w: unit %s on %s", ErrInvalidStateTransition, from, ev)
}

func (s UnitStatus) Terminal() bool {
	return s == UnitCompleted || s == UnitRejected
}

type Phase string

const (
	PhaseCore      Phase = "core"
	PhaseExtended  Phase = "extended"
	PhaseCompleted Phase = "completed"
)

type CycleStartMode string

const (
	StartWithCluster CycleStartMode = "cluster"
	StartImmediate   CycleStartMode = "immediate"
)

func (m CycleStartMode) Valid() bool {
	return m == StartWithCluster || m == StartImmediate
}

type ProfitMode string

const (
	ProfitPayout      ProfitMode = "payout"
	ProfitCompounding ProfitMode = "compounding"
)

func (m ProfitMode) Valid() bool {
	return m == ProfitPayout || m == ProfitCompounding
}

type ClusterStatus string

const (
	ClusterFilling   ClusterStatus = "filling"
	ClusterFull      ClusterStatus = "full"
	ClusterActive    ClusterStatus = "active"
	ClusterCompleted ClusterStatus = "completed"
)

type ClusterEvent string

const (
	ClusterEventFilled    ClusterEvent = "filled"
	ClusterEventReleased  ClusterEvent = "released"
	ClusterEventActivated ClusterEvent = "activated"
	ClusterEventDrained   ClusterEvent = "drained"
)

var clusterTransitions = map[ClusterStatus]map[ClusterEvent]ClusterStatus{
	ClusterFilling: {
		ClusterEventFilled:    ClusterFull,
		ClusterEventReleased:  ClusterFilling,
		ClusterEventActivated: ClusterActive,
	},
	ClusterFull: {
		ClusterEventReleased:  ClusterFilling,
		ClusterEventActivated: ClusterActive,
	},
	ClusterActive: {
		ClusterEventFilled:    ClusterActive,
		ClusterEventReleased:  ClusterActive,
		ClusterEventActivated: ClusterActive,
		ClusterEventDrained:   ClusterCompleted,
	},
}

// NextClusterStatus looks up the cluster transition table.
func NextClusterStatus(from ClusterStatus, ev ClusterEvent) (ClusterStatus, error) {
	if to, ok := clusterTransitions[from][ev]; ok {
		return to, nil
	}
	return from, fmt.Errorf("%w: cluster %s on %s", ErrInvalidStateTransition, from, ev)
}

type CycleStatus string

const (
	CycleRunning   CycleStatus = "running"
	CycleCompleted CycleStatus = "completed"
)
