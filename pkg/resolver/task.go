package resolver

import (
	"sync"
	"time"

	"github.com/arrowhead-f/confsys/pkg/dnswire"
)

// task tracks one outstanding request on a transport: the encoded request,
// the completion channel, the UDP retry budget, and the last transmission
// time. Tasks are stored by message id; a transport rejects its tasks
// explicitly on teardown rather than letting them hold the transport.
type task struct {
	id          uint16
	request     *dnswire.Message
	encoded     []byte
	retriesLeft int
	sentAt      time.Time

	once sync.Once
	done chan taskResult
}

type taskResult struct {
	response *dnswire.Message
	err      error
}

func newTask(request *dnswire.Message, encoded []byte, retries int) *task {
	return &task{
		id:          request.ID,
		request:     request,
		encoded:     encoded,
		retriesLeft: retries,
		done:        make(chan taskResult, 1),
	}
}

// resolve completes the task with a response. Repeated completion attempts
// are ignored; a task resolves or rejects exactly once.
func (t *task) resolve(response *dnswire.Message) {
	t.once.Do(func() {
		t.done <- taskResult{response: response}
	})
}

// reject completes the task with an error.
//
// The done channel is buffered, so completion of a task whose caller has
// stopped waiting never blocks the transport.
func (t *task) reject(err error) {
	t.once.Do(func() {
		t.done <- taskResult{err: err}
	})
}
