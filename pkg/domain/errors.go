package domain

import (
	"errors"

	"github.com/sbm367/syft/pkg/tensor"
)

// ErrTensorNotFound is returned when a tensor id is not present in the store.
var ErrTensorNotFound = errors.New("tensor not found")

// ErrDuplicateTensor is returned when adding a tensor whose id is already in use.
var ErrDuplicateTensor = errors.New("tensor already exists")

// ErrInvalidTensorID is returned for empty tensor ids.
var ErrInvalidTensorID = errors.New("invalid tensor id")

// ErrNotConnected is returned when sending without an active socket connection.
var ErrNotConnected = errors.New("socket not connected")

// ErrUnknownMessage is returned when a peer message type has no handler.
var ErrUnknownMessage = errors.New("unknown message type")

// ErrUnsupportedOperation is returned when an operation name is not registered.
var ErrUnsupportedOperation = tensor.ErrUnsupportedOperation

// ErrInvalidOperands is returned when operands do not fit an operation.
var ErrInvalidOperands = tensor.ErrInvalidOperands
