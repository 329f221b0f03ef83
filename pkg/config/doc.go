/*
Package config assembles the immutable configuration snapshot read by the controller
and its modules.

Layers are merged last-writer-wins, in the order they are conventionally added:

  - Defaults (SetDefault)
  - Files (AddFile): YAML, JSON or TOML, chosen by extension
  - Environment (AddEnv): PREFIX_HTTP_PORT maps to "http.port"; a double underscore
    keeps a literal underscore (PREFIX_HTTP_SHUTDOWN__TIMEOUT -> "http.shutdown_timeout")
  - Explicit overrides (AddConfig)

The precedence does not depend on the order of the calls: overrides always shadow the
environment, which always shadows files.
*/
package config
