package ledger

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/nerrad567/gray-logic-access/internal/protocol"
)

// MemoryStore keeps pending commands in a map. Contents are lost when the
// process exits.
//
// Thread Safety:
//   - All methods are safe for concurrent use.
type MemoryStore struct {
	mu       sync.Mutex
	commands map[string]*protocol.DoorCommand
}

// NewMemoryStore creates an empty in-process store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{commands: make(map[string]*protocol.DoorCommand)}
}

// Put inserts or replaces cmd.
func (s *MemoryStore) Put(_ context.Context, cmd *protocol.DoorCommand) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.commands[cmd.MessageID] = cmd
	return nil
}

// Take removes and returns the command, or nil if it is not pending.
func (s *MemoryStore) Take(_ context.Context, messageID string) (*protocol.DoorCommand, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cmd, ok := s.commands[messageID]
	if !ok {
		return nil, nil
	}
	delete(s.commands, messageID)
	return cmd, nil
}

// TakeOlderThan removes and returns commands stamped before cutoff.
func (s *MemoryStore) TakeOlderThan(_ context.Context, cutoff time.Time) ([]*protocol.DoorCommand, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var expired []*protocol.DoorCommand
	for id, cmd := range s.commands {
		if cmd.Timestamp.Before(cutoff) {
			expired = append(expired, cmd)
			delete(s.commands, id)
		}
	}
	sortByTimestamp(expired)
	return expired, nil
}

// List returns the pending commands, oldest first.
func (s *MemoryStore) List(_ context.Context) ([]*protocol.DoorCommand, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cmds := make([]*protocol.DoorCommand, 0, len(s.commands))
	for _, cmd := range s.commands {
		cmds = append(cmds, cmd)
	}
	sortByTimestamp(cmds)
	return cmds, nil
}

// Len returns the number of pending commands.
func (s *MemoryStore) Len(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.commands), nil
}

func sortByTimestamp(cmds []*protocol.DoorCommand) {
	sort.Slice(cmds, func(i, j int) bool {
		if cmds[i].Timestamp.Equal(cmds[j].Timestamp) {
			return cmds[i].MessageID < cmds[j].MessageID
		}
		return cmds[i].Timestamp.Before(cmds[j].Timestamp)
	})
}
