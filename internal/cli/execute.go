package cli

import (
	"context"
	"fmt"

	"github.com/sbm367/syft"
	"github.com/sbm367/syft/pkg/domain"
	"github.com/sbm367/syft/pkg/tensor"
)

// StepKind names what a report step did.
type StepKind string

const (
	StepAdd       StepKind = "add"
	StepOperation StepKind = "operation"
	StepRemove    StepKind = "remove"
)

// Step is one executed script entry.
type Step struct {
	Kind     StepKind
	ID       string
	Func     string
	Operands []string
	Result   *tensor.Tensor
}

// Report is the outcome of a script run.
type Report struct {
	Steps   []Step
	Tensors []domain.Record
}

// Execute runs the script against client: tensors first, then operations,
// then removals. It stops at the first failing step and returns the steps
// completed so far alongside the error. Tensors is filled on every return.
func Execute(ctx context.Context, client *syft.Syft, script Script) (*Report, error) {
	report := &Report{}
	defer func() { report.Tensors = client.GetTensors() }()

	for _, decl := range script.Tensors {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		t, err := decl.Payload().Tensor()
		if err != nil {
			return report, fmt.Errorf("tensor %s: %w", decl.ID, err)
		}
		if _, err := client.AddTensor(ctx, decl.ID, t); err != nil {
			return report, err
		}
		report.Steps = append(report.Steps, Step{Kind: StepAdd, ID: decl.ID, Result: t})
	}

	for _, op := range script.Operations {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		var (
			result *tensor.Tensor
			err    error
		)
		if op.Into != "" {
			result, err = client.RunOperationInto(ctx, op.Func, op.Operands, op.Into)
		} else {
			result, err = client.RunOperation(ctx, op.Func, op.Operands)
		}
		if err != nil {
			return report, fmt.Errorf("operation %s: %w", op.Func, err)
		}
		report.Steps = append(report.Steps, Step{
			Kind:     StepOperation,
			ID:       op.Into,
			Func:     op.Func,
			Operands: op.Operands,
			Result:   result,
		})
	}

	for _, id := range script.Remove {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		if _, err := client.RemoveTensor(ctx, id); err != nil {
			return report, err
		}
		report.Steps = append(report.Steps, Step{Kind: StepRemove, ID: id})
	}

	return report, nil
}
