package density

import (
	"context"
	"runtime"
)

// DefaultChunkSize is the number of records in a chunk when none is given.
const DefaultChunkSize = 1 << 12

// Chunk is the slice [Lo, Hi) of the records of one frame.
type Chunk struct {
	Frame  int
	Lo, Hi int
}

// Partition splits frames into chunks of at most size records. sizes[i] is
// the record count of frames[i]. Empty frames still produce one empty chunk
// so that per-frame work sees every frame.
func Partition(frames, sizes []int, size int) []Chunk {
	if size <= 0 {
		size = DefaultChunkSize
	}
	chunks := []Chunk{}
	for i, f := range frames {
		if sizes[i] == 0 {
			chunks = append(chunks, Chunk{f, 0, 0})
			continue
		}
		for lo := 0; lo < sizes[i]; lo += size {
			hi := lo + size
			if hi > sizes[i] {
				hi = sizes[i]
			}
			chunks = append(chunks, Chunk{f, lo, hi})
		}
	}
	return chunks
}

// Workers returns the number of workers Run will use for n chunks when asked
// for requested workers. requested <= 0 means one per CPU.
func Workers(requested, n int) int {
	if requested <= 0 {
		requested = runtime.NumCPU()
	}
	if requested > n {
		requested = n
	}
	if requested < 1 {
		requested = 1
	}
	return requested
}

// Run calls work on every chunk. Chunk i is handled by worker i % workers, so
// the assignment of chunks to workers depends only on the worker count and
// callers can keep one accumulator per worker without locking. workers must
// come from Workers.
//
// The context is checked between chunks. If it is cancelled, Run waits for
// every worker to stop and returns the context's error; anything the workers
// accumulated must then be discarded.
func Run(
	ctx context.Context, workers int, chunks []Chunk,
	work func(worker int, c Chunk),
) error {
	out := make(chan int, workers)
	for id := 0; id < workers-1; id++ {
		go chanRun(ctx, id, workers, chunks, work, out)
	}
	chanRun(ctx, workers-1, workers, chunks, work, out)

	for i := 0; i < workers; i++ {
		<-out
	}
	return ctx.Err()
}

func chanRun(
	ctx context.Context, id, workers int, chunks []Chunk,
	work func(worker int, c Chunk), out chan<- int,
) {
	for i := id; i < len(chunks); i += workers {
		if ctx.Err() != nil {
			break
		}
		work(id, chunks[i])
	}
	out <- id
}
