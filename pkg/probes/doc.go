// Package probes contains the read-only state inspectors, one per unit
// kind. A probe may read the OS but never writes it, and it never fails:
// anything it cannot determine is reported as unknown with a detail
// message, and the decision engine takes it from there.
package probes
