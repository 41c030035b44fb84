// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package index

// ProbeState is the reachability state of the external index tool. A client
// starts Unprobed and moves to one of the probed states on the first call;
// daemon failures and bounded re-probes move it between them afterwards.
type ProbeState int

const (
	StateUnprobed ProbeState = iota
	StateCliOnly
	StateDaemonOnly
	StateBoth
	StateUnavailable
)

// String returns the state name for diagnostics.
func (s ProbeState) String() string {
	switch s {
	case StateUnprobed:
		return "unprobed"
	case StateCliOnly:
		return "cli-only"
	case StateDaemonOnly:
		return "daemon-only"
	case StateBoth:
		return "both"
	case StateUnavailable:
		return "unavailable"
	default:
		return "unknown"
	}
}

// HasDaemon reports whether the daemon path is usable in this state.
func (s ProbeState) HasDaemon() bool {
	return s == StateDaemonOnly || s == StateBoth
}

// HasCLI reports whether the subprocess path is usable in this state.
func (s ProbeState) HasCLI() bool {
	return s == StateCliOnly || s == StateBoth
}

// Probed reports whether a probe has completed.
func (s ProbeState) Probed() bool {
	return s != StateUnprobed
}

// probeResult combines the two probe outcomes into a state.
func probeResult(daemonOK, cliOK bool) ProbeState {
	switch {
	case daemonOK && cliOK:
		return StateBoth
	case daemonOK:
		return StateDaemonOnly
	case cliOK:
		return StateCliOnly
	default:
		return StateUnavailable
	}
}

// withoutDaemon is the transition applied when the daemon session is
// invalidated by a connection-level failure.
func (s ProbeState) withoutDaemon() ProbeState {
	switch s {
	case StateBoth:
		return StateCliOnly
	case StateDaemonOnly:
		return StateUnavailable
	default:
		return s
	}
}
