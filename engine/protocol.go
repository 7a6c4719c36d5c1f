package engine

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"sync"

	"go.uber.org/zap"

	"github.com/BaSui01/cortexflow/types"
)

// Event kinds of the line-delimited JSON protocol.
const (
	eventToken             = "token"
	eventIterationComplete = "iteration_complete"
	eventError             = "error"
	eventDone              = "done"
)

// jsonlEmitter writes protocol events as one JSON object per line.
type jsonlEmitter struct {
	mu  sync.Mutex
	enc *json.Encoder
}

func newJSONLEmitter(w io.Writer) *jsonlEmitter {
	return &jsonlEmitter{enc: json.NewEncoder(w)}
}

func (e *jsonlEmitter) emit(payload map[string]any) {
	e.mu.Lock()
	defer e.mu.Unlock()
	_ = e.enc.Encode(payload)
}

// OnToken implements Events.
func (e *jsonlEmitter) OnToken(agent, token string) {
	e.emit(map[string]any{"kind": eventToken, "agent": agent, "token": token})
}

// OnIteration implements Events.
func (e *jsonlEmitter) OnIteration(record types.IterationRecord) {
	e.emit(map[string]any{"kind": eventIterationComplete, "iteration": record})
}

func (e *jsonlEmitter) Error(message string) {
	e.emit(map[string]any{"kind": eventError, "message": message})
}

func (e *jsonlEmitter) Done() {
	e.emit(map[string]any{"kind": eventDone})
}

// RunProtocol reads one JSON job per input line ({jobId, text, mode,
// loopDepth, allowMemoryWrite, userId}) and emits token,
// iteration_complete, error and done events per job. It returns when
// the input closes or the context is cancelled.
func (o *Orchestrator) RunProtocol(ctx context.Context, r io.Reader, w io.Writer) error {
	emitter := newJSONLEmitter(w)
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var req types.QueryRequest
		if err := json.Unmarshal(line, &req); err != nil {
			emitter.Error("malformed job payload: " + err.Error())
			emitter.Done()
			continue
		}

		if _, err := o.ProcessQueryWithEvents(ctx, req, emitter); err != nil {
			emitter.Error(err.Error())
		}
		emitter.Done()
	}
	if err := scanner.Err(); err != nil {
		o.logger.Warn("protocol input error", zap.Error(err))
		return err
	}
	return nil
}
