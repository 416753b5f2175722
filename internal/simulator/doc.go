// Package simulator controls the external CARLA simulator.
//
// The simulator is an opaque collaborator: carlactl never looks inside
// it, it only needs three operations — start it, stop it, and sweep away
// lingering instances after a collector crash. Two backends implement
// those operations:
//
//   - process: a locally installed simulator binary. The sweep
//     force-kills matching processes by executable name via
//     github.com/shirou/gopsutil.
//   - docker: the simulator runs as a managed, labeled container
//     (e.g. carlasim/carla). Start/stop go through the Docker Engine
//     API; the sweep stops the container and then runs the
//     process-name sweep as well, since a crashed container runtime
//     can leave the UE4 process orphaned on the host.
//
// The sweep is blunt and best-effort: it is invoked on every
// collector failure whether or not a simulator instance exists, and
// finding nothing to kill is success. carlactl assumes single-tenant
// usage on a dedicated collection machine.
package simulator
