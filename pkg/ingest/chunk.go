package ingest

import (
	"bytes"

	"github.com/traceperf/traceperf/internal/model"
	"github.com/traceperf/traceperf/pkg/parser"
)

// minChunkSize is the floor for one worker's byte range. Smaller chunks
// do not amortize the task overhead on multi-gigabyte inputs.
const minChunkSize = 32 << 20

// chunk is one line-aligned byte range of the mapped file.
type chunk struct {
	start int
	end   int
}

// chunkCount picks the number of ranges from file size and parallelism:
// more ranges for larger files, never so many that a range drops below
// the chunk floor, always at least one.
func chunkCount(size int64, workers int) int {
	if size <= 0 {
		return 1
	}
	n := workers
	switch {
	case size > 4<<30:
		n = workers * 4
	case size > 1<<30:
		n = workers * 2
	}
	if max := int(size / minChunkSize); n > max {
		n = max
	}
	if n < 1 {
		n = 1
	}
	return n
}

// splitChunks cuts data into n ranges whose candidate boundaries are
// adjusted forward to the next line terminator, so no worker ever sees
// a partial line. A chunk's effective end is always immediately after a
// newline or at end of file.
func splitChunks(data []byte, n int) []chunk {
	if len(data) == 0 {
		return nil
	}
	chunks := make([]chunk, 0, n)
	approx := len(data) / n
	start := 0
	for i := 0; i < n && start < len(data); i++ {
		end := start + approx
		if i == n-1 || end >= len(data) {
			end = len(data)
		} else {
			if nl := bytes.IndexByte(data[end:], '\n'); nl >= 0 {
				end += nl + 1
			} else {
				end = len(data)
			}
		}
		chunks = append(chunks, chunk{start: start, end: end})
		start = end
	}
	return chunks
}

// parseChunk runs the pattern extractor over every line of one range,
// accumulating into a worker-local TraceSet. A panic while extracting a
// single line skips that line and continues; one bad record never
// aborts a chunk.
func parseChunk(data []byte, set *model.TraceSet) {
	for len(data) > 0 {
		var line []byte
		if nl := bytes.IndexByte(data, '\n'); nl >= 0 {
			line = data[:nl]
			data = data[nl+1:]
		} else {
			line = data
			data = nil
		}
		if len(line) > 0 && line[len(line)-1] == '\r' {
			line = line[:len(line)-1]
		}
		set.LinesRead++
		if safeParseLine(line, set) {
			set.EventsParsed++
		}
	}
}

func safeParseLine(line []byte, set *model.TraceSet) (ok bool) {
	defer func() {
		if recover() != nil {
			ok = false
		}
	}()
	return parser.ParseLine(line, set)
}
