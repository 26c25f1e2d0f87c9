package fs

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/viant/afs"
	"github.com/viant/afs/file"
	"github.com/viant/afs/option"
	"github.com/viant/stackos/internal/idgen"
	"github.com/viant/stackos/service/messaging"
)

// MessageState represents the state of a spooled message
type MessageState string

const (
	// MessageStatePending indicates a message is waiting to be consumed
	MessageStatePending MessageState = "pending"
	// MessageStateProcessing indicates a message was handed to a consumer
	MessageStateProcessing MessageState = "processing"
	// MessageStateCompleted indicates a message was acknowledged
	MessageStateCompleted MessageState = "completed"
	// MessageStateDead indicates a message ran out of retries
	MessageStateDead MessageState = "dead"
)

// ErrProcessed is returned when a message is acknowledged twice.
var ErrProcessed = errors.New("message already processed")

// Message is a spooled message; the file name orders messages by publish
// sequence.
type Message[T any] struct {
	ID        string       `json:"id"`
	Seq       int64        `json:"seq"`
	Data      T            `json:"data"`
	State     MessageState `json:"state"`
	Error     string       `json:"error,omitempty"`
	CreatedAt time.Time    `json:"createdAt"`
	UpdatedAt time.Time    `json:"updatedAt"`
	Retries   int          `json:"retries"`

	queue     *Queue[T]
	processed bool
	mu        sync.Mutex
}

// T returns the message payload
func (m *Message[T]) T() *T {
	return &m.Data
}

// Ack moves the message to the completed directory, or drops it when the
// queue does not keep completed messages.
func (m *Message[T]) Ack() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.processed {
		return ErrProcessed
	}
	m.processed = true
	m.State = MessageStateCompleted
	m.UpdatedAt = time.Now()
	return m.queue.settle(context.Background(), m, m.queue.completedDir)
}

// Nack returns the message to pending until the retry limit is exceeded,
// then moves it to the dead letter directory.
func (m *Message[T]) Nack(err error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.processed {
		return ErrProcessed
	}
	m.processed = true
	if err != nil {
		m.Error = err.Error()
	}
	m.Retries++
	m.UpdatedAt = time.Now()
	if m.Retries > m.queue.config.MaxRetries {
		m.State = MessageStateDead
		return m.queue.settle(context.Background(), m, m.queue.dlqDir)
	}
	m.State = MessageStatePending
	return m.queue.settle(context.Background(), m, m.queue.pendingDir)
}

// Config holds configuration for the filesystem queue
type Config struct {
	BasePath      string `json:"basePath" yaml:"basePath"`
	MaxRetries    int    `json:"maxRetries" yaml:"maxRetries"`
	KeepCompleted bool   `json:"keepCompleted" yaml:"keepCompleted"`
}

// DefaultConfig returns a default queue configuration
func DefaultConfig() Config {
	return Config{
		BasePath:      "/tmp/stackos/events",
		MaxRetries:    3,
		KeepCompleted: true,
	}
}

// Queue implements a filesystem backed messaging.Queue
type Queue[T any] struct {
	fs            afs.Service
	config        Config
	pendingDir    string
	processingDir string
	completedDir  string
	dlqDir        string
	seq           atomic.Int64
	mu            sync.Mutex
}

// NewQueue creates the spool directories under config.BasePath
func NewQueue[T any](fs afs.Service, config Config) (*Queue[T], error) {
	if config.BasePath == "" {
		return nil, fmt.Errorf("base path cannot be empty")
	}
	q := &Queue[T]{
		fs:            fs,
		config:        config,
		pendingDir:    path.Join(config.BasePath, "pending"),
		processingDir: path.Join(config.BasePath, "processing"),
		completedDir:  path.Join(config.BasePath, "completed"),
		dlqDir:        path.Join(config.BasePath, "dlq"),
	}
	// sequence continues across restarts because it starts at the wall clock
	q.seq.Store(time.Now().UnixNano())
	ctx := context.Background()
	for _, dir := range []string{q.pendingDir, q.processingDir, q.completedDir, q.dlqDir} {
		if exists, _ := fs.Exists(ctx, dir); exists {
			continue
		}
		if err := fs.Create(ctx, dir, file.DefaultDirOsMode, true); err != nil {
			return nil, fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}
	return q, nil
}

// Publish writes a new pending message
func (q *Queue[T]) Publish(ctx context.Context, t *T) error {
	now := time.Now()
	message := &Message[T]{
		ID:        idgen.New(),
		Seq:       q.seq.Add(1),
		Data:      *t,
		State:     MessageStatePending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	return q.write(ctx, q.pendingDir, message)
}

// Consume claims the oldest pending message. It returns nil, nil when the
// spool is empty.
func (q *Queue[T]) Consume(ctx context.Context) (messaging.Message[T], error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	names, err := q.names(ctx, q.pendingDir)
	if err != nil {
		return nil, err
	}
	if len(names) == 0 {
		return nil, nil
	}
	source := path.Join(q.pendingDir, names[0])
	message, err := q.read(ctx, source)
	if err != nil {
		_ = q.fs.Move(ctx, source, path.Join(q.dlqDir, "invalid-"+names[0]))
		return nil, err
	}
	message.State = MessageStateProcessing
	message.UpdatedAt = time.Now()
	if err = q.write(ctx, q.processingDir, message); err != nil {
		return nil, fmt.Errorf("failed to claim message %s: %w", message.ID, err)
	}
	if err = q.fs.Delete(ctx, source); err != nil {
		return nil, fmt.Errorf("failed to delete pending message %s: %w", message.ID, err)
	}
	return message, nil
}

// Pending returns the number of messages waiting to be consumed
func (q *Queue[T]) Pending(ctx context.Context) (int, error) {
	names, err := q.names(ctx, q.pendingDir)
	return len(names), err
}

// Dead returns the number of messages in the dead letter directory
func (q *Queue[T]) Dead(ctx context.Context) (int, error) {
	names, err := q.names(ctx, q.dlqDir)
	return len(names), err
}

// settle moves a claimed message from processing to dir
func (q *Queue[T]) settle(ctx context.Context, m *Message[T], dir string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if dir != q.completedDir || q.config.KeepCompleted {
		if err := q.write(ctx, dir, m); err != nil {
			return fmt.Errorf("failed to settle message %s: %w", m.ID, err)
		}
	}
	processing := path.Join(q.processingDir, filename(m))
	if exists, _ := q.fs.Exists(ctx, processing); exists {
		if err := q.fs.Delete(ctx, processing); err != nil {
			return fmt.Errorf("failed to release message %s: %w", m.ID, err)
		}
	}
	return nil
}

// names lists message files in dir ordered by sequence
func (q *Queue[T]) names(ctx context.Context, dir string) ([]string, error) {
	objects, err := q.fs.List(ctx, dir, option.NewRecursive(false))
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", dir, err)
	}
	var result []string
	for _, obj := range objects {
		if !obj.IsDir() && strings.HasSuffix(obj.Name(), ".json") {
			result = append(result, obj.Name())
		}
	}
	sort.Strings(result)
	return result, nil
}

func (q *Queue[T]) write(ctx context.Context, dir string, m *Message[T]) error {
	data, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}
	return q.fs.Upload(ctx, path.Join(dir, filename(m)), file.DefaultFileOsMode, bytes.NewBuffer(data))
}

func (q *Queue[T]) read(ctx context.Context, URL string) (*Message[T], error) {
	data, err := q.fs.DownloadWithURL(ctx, URL)
	if err != nil {
		return nil, fmt.Errorf("failed to read message %s: %w", URL, err)
	}
	message := &Message[T]{}
	if err := json.Unmarshal(data, message); err != nil {
		return nil, fmt.Errorf("failed to unmarshal message %s: %w", URL, err)
	}
	message.queue = q
	return message, nil
}

func filename[T any](m *Message[T]) string {
	return fmt.Sprintf("%020d-%s.json", m.Seq, m.ID)
}

// ensure Queue implements messaging.Queue interface
var _ messaging.Queue[any] = (*Queue[any])(nil)
