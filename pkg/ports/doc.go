/*
Package ports defines the interfaces shared between the keel controller and the
modules it loads.

These interfaces decouple modules from the concrete controller, so a module package
never imports the root package and can be tested against a fake host.

# Key Interfaces

  - Host: What a module factory receives: action registration, configuration,
    logging, access to earlier modules and the fault-guarded Go helper.
  - ActionRegistrar: The registration subset of Host.
  - DistributedLocker: Provides distributed locking for single-instance deployments.
*/
package ports
