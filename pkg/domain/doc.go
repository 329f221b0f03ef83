/*
Package domain contains the core types shared by the keel lifecycle controller, its
runner and the modules it loads.

It defines the unit of work (Action), the controller states, the notifications the
controller emits and the error taxonomy. This package is kept pure and free of
external dependencies like I/O or process control.

# Key Entities

  - Action: A unit of asynchronous work. Its return value is its single completion.
  - Phase: One of launch, run or shutdown; an ordered batch of actions.
  - State: The position of the controller in its lifecycle.
  - Event: A notification emitted by the controller (ready, running, shutdown, error).
*/
package domain
