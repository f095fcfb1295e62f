package integrity

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"

	"github.com/ppiankov/codewarden/internal/storage"
)

// StateKey is the KV slot holding the monitor state
const StateKey = "codewarden.integrity.v1"

// State is the full in-memory monitor state
type State struct {
	Records           map[string]FileIntegrityRecord
	Alerts            []TamperingAlert
	MonitoringEnabled bool
}

// NewState returns an empty state with monitoring enabled
func NewState() State {
	return State{Records: map[string]FileIntegrityRecord{}, MonitoringEnabled: true}
}

// Get returns the record with id
func (s *State) Get(id string) (FileIntegrityRecord, bool) {
	rec, ok := s.Records[id]
	return rec, ok
}

// Put inserts or replaces rec by its id
func (s *State) Put(rec FileIntegrityRecord) {
	s.Records[rec.ID] = rec
}

// Delete removes the record with id and reports whether it existed
func (s *State) Delete(id string) bool {
	if _, ok := s.Records[id]; !ok {
		return false
	}
	delete(s.Records, id)
	return true
}

// FindByFilename looks a record up by the name it was registered under
func (s *State) FindByFilename(filename string) (FileIntegrityRecord, bool) {
	for _, rec := range s.Records {
		if rec.Path == filename {
			return rec, true
		}
	}
	return FileIntegrityRecord{}, false
}

// SortedRecords returns every record ordered by path
func (s *State) SortedRecords() []FileIntegrityRecord {
	out := make([]FileIntegrityRecord, 0, len(s.Records))
	for _, rec := range s.Records {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}

// persistedState is the serialized form: records as [id, record] pairs.
// A missing monitoringEnabled means enabled.
type persistedState struct {
	FileRecords       []recordEntry    `json:"fileRecords"`
	Alerts            []TamperingAlert `json:"alerts"`
	MonitoringEnabled *bool            `json:"monitoringEnabled"`
}

type recordEntry struct {
	ID     string
	Record FileIntegrityRecord
}

func (e recordEntry) MarshalJSON() ([]byte, error) {
	return json.Marshal([]any{e.ID, e.Record})
}

func (e *recordEntry) UnmarshalJSON(data []byte) error {
	var pair []json.RawMessage
	if err := json.Unmarshal(data, &pair); err != nil {
		return err
	}
	if len(pair) != 2 {
		return fmt.Errorf("record entry: want 2 elements, got %d", len(pair))
	}
	if err := json.Unmarshal(pair[0], &e.ID); err != nil {
		return fmt.Errorf("record entry id: %w", err)
	}
	if err := json.Unmarshal(pair[1], &e.Record); err != nil {
		return fmt.Errorf("record entry %s: %w", e.ID, err)
	}
	return nil
}

// ProvenanceStore persists monitor state in a single KV slot.
// Load never fails: a missing or unreadable blob is treated as empty state.
type ProvenanceStore struct {
	kv     storage.KV
	key    string
	logger *slog.Logger
}

// NewProvenanceStore wraps kv. A nil logger discards warnings.
func NewProvenanceStore(kv storage.KV, logger *slog.Logger) *ProvenanceStore {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &ProvenanceStore{kv: kv, key: StateKey, logger: logger}
}

// Load reads the persisted state
func (p *ProvenanceStore) Load() State {
	data, err := p.kv.Get(p.key)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			p.logger.Warn("integrity state unreadable, starting empty", "key", p.key, "error", err)
		}
		return NewState()
	}

	var ps *persistedState
	if err := json.Unmarshal(data, &ps); err != nil {
		p.logger.Warn("integrity state corrupt, starting empty", "key", p.key, "error", err)
		return NewState()
	}
	if ps == nil {
		return NewState()
	}

	st := NewState()
	st.Alerts = ps.Alerts
	if ps.MonitoringEnabled != nil {
		st.MonitoringEnabled = *ps.MonitoringEnabled
	}
	for _, e := range ps.FileRecords {
		if e.Record.ID == "" {
			e.Record.ID = e.ID
		}
		st.Records[e.ID] = e.Record
	}
	return st
}

// Save writes st to the slot, replacing any previous state
func (p *ProvenanceStore) Save(st State) error {
	enabled := st.MonitoringEnabled
	ps := persistedState{
		Alerts:            st.Alerts,
		MonitoringEnabled: &enabled,
	}
	if ps.Alerts == nil {
		ps.Alerts = []TamperingAlert{}
	}
	for _, rec := range st.SortedRecords() {
		ps.FileRecords = append(ps.FileRecords, recordEntry{ID: rec.ID, Record: rec})
	}
	if ps.FileRecords == nil {
		ps.FileRecords = []recordEntry{}
	}

	data, err := json.MarshalIndent(ps, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal integrity state: %w", err)
	}
	if err := p.kv.Put(p.key, data); err != nil {
		return fmt.Errorf("save integrity state: %w", err)
	}
	return nil
}
