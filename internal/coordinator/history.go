package coordinator

import (
	"compress/gzip"
	"encoding/gob"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/magefree/tabletop-server-go/internal/game"
	"go.uber.org/zap"
)

// Replay is the recorded sequence of snapshots of one session.
type Replay struct {
	SessionID string
	States    []game.Session
}

// Size returns the number of recorded states.
func (r *Replay) Size() int {
	return len(r.States)
}

// StateAt returns the state at index.
func (r *Replay) StateAt(index int) (game.Session, bool) {
	if index < 0 || index >= len(r.States) {
		return game.Session{}, false
	}
	return r.States[index], true
}

// replayMetadata heads every replay file.
type replayMetadata struct {
	SessionID  string
	Timestamp  time.Time
	Version    int
	StateCount int
}

const replayVersion = 1

func replayPath(directory, sessionID string) string {
	return filepath.Join(directory, fmt.Sprintf("%s.replay", sessionID))
}

// SaveToFile writes the replay as a gzipped gob stream.
func (r *Replay) SaveToFile(directory string) error {
	if err := os.MkdirAll(directory, 0o755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	file, err := os.Create(replayPath(directory, r.SessionID))
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer file.Close()

	gzipWriter := gzip.NewWriter(file)
	encoder := gob.NewEncoder(gzipWriter)

	metadata := replayMetadata{
		SessionID:  r.SessionID,
		Timestamp:  time.Now().UTC(),
		Version:    replayVersion,
		StateCount: len(r.States),
	}
	if err := encoder.Encode(&metadata); err != nil {
		return fmt.Errorf("failed to encode metadata: %w", err)
	}
	for i := range r.States {
		if err := encoder.Encode(&r.States[i]); err != nil {
			return fmt.Errorf("failed to encode state %d: %w", i, err)
		}
	}
	if err := gzipWriter.Close(); err != nil {
		return fmt.Errorf("failed to flush replay: %w", err)
	}
	return nil
}

// LoadReplayFromFile reads a replay written by SaveToFile.
func LoadReplayFromFile(directory, sessionID string) (*Replay, error) {
	file, err := os.Open(replayPath(directory, sessionID))
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	gzipReader, err := gzip.NewReader(file)
	if err != nil {
		return nil, fmt.Errorf("failed to create gzip reader: %w", err)
	}
	defer gzipReader.Close()

	decoder := gob.NewDecoder(gzipReader)

	var metadata replayMetadata
	if err := decoder.Decode(&metadata); err != nil {
		return nil, fmt.Errorf("failed to decode metadata: %w", err)
	}
	if metadata.Version != replayVersion {
		return nil, fmt.Errorf("unsupported replay version: %d", metadata.Version)
	}

	replay := &Replay{SessionID: metadata.SessionID, States: make([]game.Session, 0, metadata.StateCount)}
	for i := 0; i < metadata.StateCount; i++ {
		var state game.Session
		if err := decoder.Decode(&state); err != nil {
			return nil, fmt.Errorf("failed to decode state %d: %w", i, err)
		}
		replay.States = append(replay.States, state)
	}
	return replay, nil
}

// History keeps the most recent snapshots of every live session and flushes
// them to disk when a session finishes or is deleted.
type History struct {
	logger  *zap.Logger
	limit   int
	saveDir string

	mu      sync.Mutex
	replays map[string]*Replay
}

// NewHistory creates a recorder. A zero limit disables recording; an empty
// saveDir keeps history in memory only.
func NewHistory(limit int, saveDir string, logger *zap.Logger) *History {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &History{
		logger:  logger,
		limit:   limit,
		saveDir: saveDir,
		replays: make(map[string]*Replay),
	}
}

// Record appends s, dropping the oldest snapshot past the limit.
func (h *History) Record(s game.Session) {
	if h.limit <= 0 {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()

	r, ok := h.replays[s.ID]
	if !ok {
		r = &Replay{SessionID: s.ID}
		h.replays[s.ID] = r
	}
	r.States = append(r.States, s.Clone())
	if over := len(r.States) - h.limit; over > 0 {
		r.States = append([]game.Session(nil), r.States[over:]...)
	}
}

// Replay returns a copy of the recorded history of id.
func (h *History) Replay(id string) (*Replay, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	r, ok := h.replays[id]
	if !ok {
		return nil, false
	}
	return &Replay{SessionID: r.SessionID, States: append([]game.Session(nil), r.States...)}, true
}

// Flush removes id's history from memory and writes it to disk when a save
// directory is configured.
func (h *History) Flush(id string) error {
	h.mu.Lock()
	r, ok := h.replays[id]
	delete(h.replays, id)
	h.mu.Unlock()

	if !ok || h.saveDir == "" {
		return nil
	}
	if err := r.SaveToFile(h.saveDir); err != nil {
		return fmt.Errorf("failed to save replay: %w", err)
	}
	h.logger.Info("saved replay to disk",
		zap.String("session_id", id),
		zap.Int("state_count", r.Size()),
		zap.String("directory", h.saveDir),
	)
	return nil
}

// Load reads a flushed replay back from disk.
func (h *History) Load(id string) (*Replay, error) {
	if h.saveDir == "" {
		return nil, fmt.Errorf("no replay directory configured")
	}
	return LoadReplayFromFile(h.saveDir, id)
}
