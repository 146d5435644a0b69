/*
Package syft is a thin client that keeps a named collection of tensors, runs
numeric operations over them and mirrors every change to a peer over a
WebSocket connection.

# Concept

A client owns three things: an ordered tensor store, an operation runner and
an observer. Every mutation is broadcast to the observer after it is applied
and before the call returns, so subscribers always see the post-mutation
state. When a peer connection is open, the client forwards tensor additions,
removals and operation results to it, and applies the commands the peer sends
back (add-tensor, remove-tensor, run-operation, get-tensors).

# Key Features

  - Synchronous API: every operation returns its result or an error.
  - Lifecycle hooks: OnTensorAdded, OnTensorRemoved and OnRunOperation.
  - Pluggable operations through a tensor.Registry backed by gonum.
  - Optional persistence through any ports.TensorStore (memory or Redis).

# Usage

	package main

	import (
		"context"
		"fmt"
		"log"

		"github.com/sbm367/syft"
	)

	func main() {
		ctx := context.Background()

		client, err := syft.New(syft.WithURL("ws://localhost:8080/ws"))
		if err != nil {
			log.Fatal(err)
		}
		defer client.Close()

		if _, err := client.AddTensor(ctx, "a", [][]float64{{1, 2}, {3, 4}}); err != nil {
			log.Fatal(err)
		}
		if _, err := client.AddTensor(ctx, "b", [][]float64{{5, 6}, {7, 8}}); err != nil {
			log.Fatal(err)
		}

		sum, err := client.RunOperation(ctx, "add", []string{"a", "b"})
		if err != nil {
			log.Fatal(err)
		}
		fmt.Println(sum) // [[6 8] [10 12]]
	}
*/
package syft
