// Package control
// Author: momentics <momentics@gmail.com>
//
// Configuration, logging, metrics and debug introspection for event loops.
//
// Provides:
//   - Config loading from file and HIOLOAD_NIO_* environment via viper
//   - Reloader for re-reading configuration at runtime
//   - hclog root logger construction
//   - Prometheus collectors per loop
//   - DebugProbes for point-in-time state dumps
package control
