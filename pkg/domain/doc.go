/*
Package domain contains the core models shared by the syft client.

It defines the tensor record kept by the local store, the lifecycle events
broadcast to observers and the message envelope exchanged with a remote peer.
The package is kept free of I/O so adapters (storage, transport) depend on it
and never the other way around.

# Key Entities

  - Record: a named tensor held by the store.
  - Event: a lifecycle notification (tensor added/removed, operation run, message sent/received).
  - Message: the JSON envelope sent over the WebSocket connection.
*/
package domain
