// Package detector polls the current leader and drives recovery when it
// disappears. See the health_monitor pattern this generalizes from
// cluster-wide polling to single-leader polling per node.
package detector
