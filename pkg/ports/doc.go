/*
Package ports defines the driven ports (interfaces) of the syft client.

These interfaces decouple the facade from external implementations, allowing
tensors to be persisted in different backends.

# Key Interfaces

  - TensorStore: Responsible for persisting tensor records across restarts (e.g., Memory, Redis or File).
*/
package ports
