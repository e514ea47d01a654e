package runsets

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/animus-labs/cbas-go/internal/domain"
	"github.com/animus-labs/cbas-go/internal/platform/auditlog"
	"github.com/animus-labs/cbas-go/internal/repo"
)

type memStore struct {
	mu       sync.Mutex
	methods  map[string]domain.Method
	versions map[string]domain.MethodVersion
	runSets  map[string]domain.RunSet
	runs     []domain.Run

	createRunRows   int64
	createRunErr    error
	lastRunSetCalls int
}

func newMemStore() *memStore {
	return &memStore{
		methods:       map[string]domain.Method{},
		versions:      map[string]domain.MethodVersion{},
		runSets:       map[string]domain.RunSet{},
		createRunRows: 1,
	}
}

func (m *memStore) CreateMethod(_ context.Context, method domain.Method) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.methods {
		if existing.Name == method.Name {
			return repo.ErrConflict
		}
	}
	m.methods[method.ID] = method
	return nil
}

func (m *memStore) GetMethod(_ context.Context, id string) (domain.Method, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	method, ok := m.methods[id]
	if !ok {
		return domain.Method{}, repo.ErrNotFound
	}
	return method, nil
}

func (m *memStore) ListMethods(_ context.Context, filter repo.MethodFilter) ([]domain.Method, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Method
	for _, method := range m.methods {
		if filter.Name != "" && method.Name != filter.Name {
			continue
		}
		out = append(out, method)
	}
	return out, nil
}

func (m *memStore) CreateMethodVersion(_ context.Context, version domain.MethodVersion) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.methods[version.MethodID]; !ok {
		return repo.ErrNotFound
	}
	m.versions[version.ID] = version
	return nil
}

func (m *memStore) GetMethodVersion(_ context.Context, id string) (domain.MethodVersion, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	version, ok := m.versions[id]
	if !ok {
		return domain.MethodVersion{}, repo.ErrNotFound
	}
	return version, nil
}

func (m *memStore) ListMethodVersions(_ context.Context, methodID string) ([]domain.MethodVersion, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.MethodVersion
	for _, version := range m.versions {
		if version.MethodID == methodID {
			out = append(out, version)
		}
	}
	return out, nil
}

func (m *memStore) SetLastRunSet(_ context.Context, methodVersionID, runSetID string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	version, ok := m.versions[methodVersionID]
	if !ok {
		return repo.ErrNotFound
	}
	m.lastRunSetCalls++
	version.LastRunSetID = runSetID
	version.LastRunAt = &at
	m.versions[methodVersionID] = version
	return nil
}

func (m *memStore) CreateRunSet(_ context.Context, runSet domain.RunSet) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runSets[runSet.ID] = runSet
	return 1, nil
}

func (m *memStore) GetRunSet(_ context.Context, id string) (domain.RunSet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	runSet, ok := m.runSets[id]
	if !ok {
		return domain.RunSet{}, repo.ErrNotFound
	}
	return runSet, nil
}

func (m *memStore) ListRunSets(context.Context, repo.RunSetFilter) ([]repo.RunSetSummary, error) {
	return nil, errors.New("not implemented")
}

func (m *memStore) CreateRun(_ context.Context, run domain.Run) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createRunErr != nil {
		return 0, m.createRunErr
	}
	if m.createRunRows == 1 {
		m.runs = append(m.runs, run)
	}
	return m.createRunRows, nil
}

func (m *memStore) GetRun(context.Context, string) (domain.Run, error) {
	return domain.Run{}, repo.ErrNotFound
}

func (m *memStore) ListRuns(context.Context, repo.RunFilter) ([]domain.Run, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.Run(nil), m.runs...), nil
}

func (m *memStore) UpdateRunStatus(context.Context, string, domain.RunStatus, time.Time) (int64, error) {
	return 0, errors.New("not implemented")
}

func (m *memStore) UpdateRunStatusWithError(context.Context, string, domain.RunStatus, time.Time, string) (int64, error) {
	return 0, errors.New("not implemented")
}

func (m *memStore) UpdateLastPolledTimestamp(context.Context, string, time.Time) (int64, error) {
	return 0, errors.New("not implemented")
}

type fakeRecords struct {
	records map[string]domain.Record
	calls   int
}

func (f *fakeRecords) GetRecord(_ context.Context, recordType, recordID string) (domain.Record, error) {
	f.calls++
	record, ok := f.records[recordID]
	if !ok {
		return domain.Record{}, fmt.Errorf("record %s of type %s not found", recordID, recordType)
	}
	return record, nil
}

type fakeEngine struct {
	fail      map[string]bool
	submitted [][]byte
	urls      []string
}

func (f *fakeEngine) SubmitWorkflow(_ context.Context, workflowURL string, params []byte) (string, error) {
	f.urls = append(f.urls, workflowURL)
	f.submitted = append(f.submitted, params)
	if f.fail[string(params)] {
		return "", errors.New("engine rejected workflow")
	}
	return fmt.Sprintf("engine-%d", len(f.submitted)), nil
}

type fakeAuditor struct {
	events []auditlog.Event
	err    error
}

func (f *fakeAuditor) Record(_ context.Context, event auditlog.Event) (int64, error) {
	if f.err != nil {
		return 0, f.err
	}
	f.events = append(f.events, event)
	return int64(len(f.events)), nil
}
