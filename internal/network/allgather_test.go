package network

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSingleMachine_Allgather(t *testing.T) {
	sm := SingleMachine{}
	data := []byte("hello")
	out, err := sm.Allgather(0, data, len(data), []int{0}, []int{len(data)})
	require.NoError(t, err)
	assert.Equal(t, data, out)
}

func TestSingleMachine_Allgather_WrongSizeIsError(t *testing.T) {
	sm := SingleMachine{}
	_, err := sm.Allgather(0, []byte("hi"), 10, []int{0}, []int{10})
	require.Error(t, err)
}

func TestInProcess_Allgather_ConcatenatesAllRanks(t *testing.T) {
	const numMachines = 4
	g := NewInProcess(numMachines)

	starts := make([]int, numMachines)
	lens := make([]int, numMachines)
	for r := 0; r < numMachines; r++ {
		starts[r] = r * 3
		lens[r] = 3
	}
	total := numMachines * 3

	results := make([][]byte, numMachines)
	errs := make([]error, numMachines)
	done := make(chan int, numMachines)
	for r := 0; r < numMachines; r++ {
		r := r
		go func() {
			local := []byte(fmt.Sprintf("r%d-", r))
			out, err := g.Allgather(r, local, total, starts, lens)
			results[r] = out
			errs[r] = err
			done <- r
		}()
	}
	for i := 0; i < numMachines; i++ {
		<-done
	}

	for r := 0; r < numMachines; r++ {
		require.NoError(t, errs[r])
	}
	// Every rank must see the identical, fully-concatenated buffer.
	for r := 1; r < numMachines; r++ {
		assert.Equal(t, results[0], results[r])
	}
	expected := make([]byte, 0, total)
	for r := 0; r < numMachines; r++ {
		expected = append(expected, []byte(fmt.Sprintf("r%d-", r))...)
	}
	assert.Equal(t, expected, results[0])
}

func TestInProcess_Allgather_SupportsMultipleRounds(t *testing.T) {
	const numMachines = 2
	g := NewInProcess(numMachines)
	starts := []int{0, 2}
	lens := []int{2, 2}

	runRound := func(prefix string) [][]byte {
		results := make([][]byte, numMachines)
		done := make(chan int, numMachines)
		for r := 0; r < numMachines; r++ {
			r := r
			go func() {
				local := []byte(fmt.Sprintf("%s%d", prefix, r))
				out, err := g.Allgather(r, local, 4, starts, lens)
				require.NoError(t, err)
				results[r] = out
				done <- r
			}()
		}
		for i := 0; i < numMachines; i++ {
			<-done
		}
		return results
	}

	round1 := runRound("a")
	round2 := runRound("b")
	assert.Equal(t, round1[0], round1[1])
	assert.Equal(t, round2[0], round2[1])
	assert.NotEqual(t, round1[0], round2[0])
}

func TestInProcess_Allgather_RankOutOfRangeIsError(t *testing.T) {
	g := NewInProcess(2)
	_, err := g.Allgather(5, []byte("x"), 2, []int{0, 1}, []int{1, 1})
	require.Error(t, err)
}
