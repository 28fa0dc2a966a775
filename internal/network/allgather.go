// Package network provides the collective communication primitive the
// distributed bin-construction path needs: Allgather. It mirrors the
// teacher's own preference for channel/goroutine orchestration (see
// cmd/trainer/play_and_train.go's errgroup-based pipelines) rather than a
// real wire protocol, since the production network transport is an external
// collaborator per spec §1.
package network

import (
	"github.com/pkg/errors"
)

// Allgather is a collective, blocking primitive: every participant
// contributes a byte range at a known offset into a shared logical buffer,
// and every participant receives the full concatenation.
//
// All ranks must call Allgather with the same total byte length and the
// same starts/lens in the same call sequence -- it is a hard barrier (§5).
type Allgather interface {
	// Allgather sends localData (this rank's contribution, exactly
	// lens[rank] bytes) and returns the full concatenated buffer of length
	// totalBytes. starts and lens both have length numMachines.
	Allgather(rank int, localData []byte, totalBytes int, starts, lens []int) ([]byte, error)
}

// SingleMachine is the Allgather used when num_machines == 1: it is a no-op
// that simply returns localData, since there is nothing to gather from.
type SingleMachine struct{}

var _ Allgather = SingleMachine{}

func (SingleMachine) Allgather(_ int, localData []byte, totalBytes int, _, _ []int) ([]byte, error) {
	if len(localData) != totalBytes {
		return nil, errors.Errorf("single-machine Allgather: localData is %d bytes, want %d", len(localData), totalBytes)
	}
	return localData, nil
}
