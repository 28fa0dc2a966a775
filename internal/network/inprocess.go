package network

import (
	"sync"

	"github.com/pkg/errors"
)

// InProcess is an Allgather implementation for multiple "ranks" cooperating
// within a single process (e.g. a test harness exercising the distributed
// BinConstructor path without a real cluster, or a small training job that
// shards by goroutine instead of by machine).
//
// All ranks must share the same *InProcess instance and call Allgather the
// same number of times, in the same order -- exactly the collective
// invariant §5 requires of any real transport.
type InProcess struct {
	numMachines int

	mu        sync.Mutex
	round     int
	cond      *sync.Cond
	arrived   map[int][]byte
	arrivedAt int
}

// NewInProcess creates a shared Allgather for numMachines cooperating
// goroutines.
func NewInProcess(numMachines int) *InProcess {
	g := &InProcess{numMachines: numMachines, arrived: make(map[int][]byte)}
	g.cond = sync.NewCond(&g.mu)
	return g
}

func (g *InProcess) Allgather(rank int, localData []byte, totalBytes int, starts, lens []int) ([]byte, error) {
	if rank < 0 || rank >= g.numMachines {
		return nil, errors.Errorf("InProcess.Allgather: rank %d out of range [0, %d)", rank, g.numMachines)
	}
	if len(lens) != g.numMachines || len(starts) != g.numMachines {
		return nil, errors.Errorf("InProcess.Allgather: starts/lens must have length %d", g.numMachines)
	}
	if len(localData) != lens[rank] {
		return nil, errors.Errorf("InProcess.Allgather: rank %d contributed %d bytes, expected %d", rank, len(localData), lens[rank])
	}

	g.mu.Lock()
	myRound := g.round
	g.arrived[rank] = localData
	g.arrivedAt++
	if g.arrivedAt == g.numMachines {
		g.cond.Broadcast()
	} else {
		for g.round == myRound && g.arrivedAt < g.numMachines {
			g.cond.Wait()
		}
	}

	out := make([]byte, totalBytes)
	for r := 0; r < g.numMachines; r++ {
		copy(out[starts[r]:starts[r]+lens[r]], g.arrived[r])
	}

	g.arrivedAt--
	if g.arrivedAt == 0 {
		g.arrived = make(map[int][]byte)
		g.round++
		g.cond.Broadcast()
	} else {
		for g.arrivedAt > 0 && g.round == myRound {
			g.cond.Wait()
		}
	}
	g.mu.Unlock()

	return out, nil
}
