package engine

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/artpar/deckhand/internal/shell/docker"
	"github.com/artpar/deckhand/internal/shell/store"
)

// =============================================================================
// Fake Docker Client
// =============================================================================

type fakeContainer struct {
	id      string
	spec    docker.ContainerSpec
	status  docker.ContainerStatus
	health  string
	exit    int
	started time.Time
}

// fakeDocker is an in-memory docker.Client covering container, network,
// volume and image operations.
type fakeDocker struct {
	mu sync.Mutex

	nextID     int
	containers map[string]*fakeContainer // by ID
	networks   map[string]docker.NetworkInfo
	volumes    map[string]docker.VolumeInfo
	images     map[string]bool
	built      []string
	pulled     []string
	startOrder []string // container names in start order
	removed    []string // container names in removal order

	// Failure injection, keyed by container name / service image.
	failCreate map[string]error
	failStart  map[string]error
	failPull   map[string]error
	failBuild  map[string]error
	// Containers that report unhealthy / exited right after start.
	exitOnStart map[string]int

	// waiters delivers exit codes to WaitContainer callers, keyed by ID.
	waiters map[string]chan docker.WaitResult
}

func newFakeDocker() *fakeDocker {
	return &fakeDocker{
		containers:  make(map[string]*fakeContainer),
		networks:    make(map[string]docker.NetworkInfo),
		volumes:     make(map[string]docker.VolumeInfo),
		images:      make(map[string]bool),
		failCreate:  make(map[string]error),
		failStart:   make(map[string]error),
		failPull:    make(map[string]error),
		failBuild:   make(map[string]error),
		exitOnStart: make(map[string]int),
		waiters:     make(map[string]chan docker.WaitResult),
	}
}

// setHealth records a health probe result for a named container.
func (f *fakeDocker) setHealth(name, health string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.byName(name)
	if ok {
		c.health = health
	}
	return ok
}

// startedNames returns a snapshot of the start order, safe to call while an
// Up is in flight.
func (f *fakeDocker) startedNames() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.startOrder...)
}

func (f *fakeDocker) byName(name string) (*fakeContainer, bool) {
	for _, c := range f.containers {
		if c.spec.Name == name {
			return c, true
		}
	}
	return nil, false
}

func (f *fakeDocker) CreateContainer(ctx context.Context, spec docker.ContainerSpec) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failCreate[spec.Name]; err != nil {
		return "", err
	}
	f.nextID++
	id := fmt.Sprintf("ctr-%03d", f.nextID)
	f.containers[id] = &fakeContainer{id: id, spec: spec, status: docker.ContainerStatusCreated}
	return id, nil
}

func (f *fakeDocker) StartContainer(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.containers[id]
	if !ok {
		return docker.ErrContainerNotFound
	}
	if err := f.failStart[c.spec.Name]; err != nil {
		return err
	}
	if code, exits := f.exitOnStart[c.spec.Name]; exits {
		c.status = docker.ContainerStatusExited
		c.exit = code
	} else {
		c.status = docker.ContainerStatusRunning
		c.started = time.Now()
	}
	f.startOrder = append(f.startOrder, c.spec.Name)
	return nil
}

func (f *fakeDocker) StopContainer(ctx context.Context, id string, timeout *time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.containers[id]
	if !ok {
		return docker.ErrContainerNotFound
	}
	c.status = docker.ContainerStatusExited
	return nil
}

func (f *fakeDocker) RemoveContainer(ctx context.Context, id string, opts docker.RemoveOptions) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.containers[id]
	if !ok {
		return docker.ErrContainerNotFound
	}
	f.removed = append(f.removed, c.spec.Name)
	delete(f.containers, id)
	return nil
}

func (f *fakeDocker) InspectContainer(ctx context.Context, idOrName string) (*docker.ContainerInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.containers[idOrName]
	if !ok {
		c, ok = f.byName(idOrName)
	}
	if !ok {
		return nil, docker.ErrContainerNotFound
	}
	return &docker.ContainerInfo{
		ID:       c.id,
		Name:     c.spec.Name,
		Image:    c.spec.Image,
		Status:   c.status,
		Health:   c.health,
		ExitCode: c.exit,
		Labels:   c.spec.Labels,
	}, nil
}

func (f *fakeDocker) ListContainers(ctx context.Context, opts docker.ListOptions) ([]docker.ContainerInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []docker.ContainerInfo
	for _, c := range f.containers {
		out = append(out, docker.ContainerInfo{ID: c.id, Name: c.spec.Name, Status: c.status, Labels: c.spec.Labels})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (f *fakeDocker) ContainerLogs(ctx context.Context, id string, opts docker.LogOptions) (io.ReadCloser, error) {
	return io.NopCloser(strings.NewReader("")), nil
}

func (f *fakeDocker) WaitContainer(ctx context.Context, id string) <-chan docker.WaitResult {
	f.mu.Lock()
	defer f.mu.Unlock()
	ch, ok := f.waiters[id]
	if !ok {
		ch = make(chan docker.WaitResult, 1)
		f.waiters[id] = ch
	}
	return ch
}

// exitContainer simulates a container exiting, waking the supervisor waiter.
// Blocks until a waiter is registered so tests cannot race the supervisor
// loop.
func (f *fakeDocker) exitContainer(id string, code int) bool {
	deadline := time.Now().Add(2 * time.Second)
	for {
		f.mu.Lock()
		if ch, ok := f.waiters[id]; ok {
			// Consumed: the next WaitContainer call blocks until the
			// next exit.
			delete(f.waiters, id)
			if c, ok := f.containers[id]; ok {
				c.status = docker.ContainerStatusExited
				c.exit = code
			}
			f.mu.Unlock()
			ch <- docker.WaitResult{ExitCode: code}
			return true
		}
		f.mu.Unlock()
		if time.Now().After(deadline) {
			return false
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func (f *fakeDocker) CreateNetwork(ctx context.Context, spec docker.NetworkSpec) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, exists := f.networks[spec.Name]; exists {
		return "", docker.ErrNetworkAlreadyExists
	}
	info := docker.NetworkInfo{
		ID:     "net-" + spec.Name,
		Name:   spec.Name,
		Driver: spec.Driver,
		Labels: spec.Labels,
	}
	if spec.Subnet != "" {
		info.Subnets = []string{spec.Subnet}
	}
	f.networks[spec.Name] = info
	return info.ID, nil
}

func (f *fakeDocker) InspectNetwork(ctx context.Context, nameOrID string) (*docker.NetworkInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if info, ok := f.networks[nameOrID]; ok {
		return &info, nil
	}
	for _, info := range f.networks {
		if info.ID == nameOrID {
			return &info, nil
		}
	}
	return nil, docker.ErrNetworkNotFound
}

func (f *fakeDocker) ListNetworks(ctx context.Context) ([]docker.NetworkInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []docker.NetworkInfo
	for _, info := range f.networks {
		out = append(out, info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (f *fakeDocker) RemoveNetwork(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for name, info := range f.networks {
		if info.ID == id || name == id {
			delete(f.networks, name)
			return nil
		}
	}
	return docker.ErrNetworkNotFound
}

func (f *fakeDocker) CreateVolume(ctx context.Context, spec docker.VolumeSpec) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.volumes[spec.Name] = docker.VolumeInfo{Name: spec.Name, Driver: spec.Driver, Labels: spec.Labels}
	return spec.Name, nil
}

func (f *fakeDocker) InspectVolume(ctx context.Context, name string) (*docker.VolumeInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if info, ok := f.volumes[name]; ok {
		return &info, nil
	}
	return nil, docker.ErrVolumeNotFound
}

func (f *fakeDocker) RemoveVolume(ctx context.Context, name string, force bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.volumes[name]; !ok {
		return docker.ErrVolumeNotFound
	}
	delete(f.volumes, name)
	return nil
}

func (f *fakeDocker) PullImage(ctx context.Context, image string, opts docker.PullOptions) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failPull[image]; err != nil {
		return err
	}
	f.images[image] = true
	f.pulled = append(f.pulled, image)
	return nil
}

func (f *fakeDocker) BuildImage(ctx context.Context, opts docker.BuildOptions) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failBuild[opts.Tag]; err != nil {
		return err
	}
	f.images[opts.Tag] = true
	f.built = append(f.built, opts.Tag)
	return nil
}

func (f *fakeDocker) ImageExists(ctx context.Context, image string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.images[image], nil
}

func (f *fakeDocker) Ping(ctx context.Context) error { return nil }
func (f *fakeDocker) Close() error                   { return nil }

// snapshotStartOrder copies the recorded start order.
func (f *fakeDocker) snapshotStartOrder() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.startOrder...)
}

func (f *fakeDocker) snapshotRemoved() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.removed...)
}

// =============================================================================
// In-Memory Store
// =============================================================================

// memStore is an in-memory store.Store for engine tests.
type memStore struct {
	mu          sync.Mutex
	deployments map[string]*store.Deployment    // by ID
	instances   map[string]store.InstanceRecord // by deploymentID/service
}

func newMemStore() *memStore {
	return &memStore{
		deployments: make(map[string]*store.Deployment),
		instances:   make(map[string]store.InstanceRecord),
	}
}

func (m *memStore) CreateDeployment(ctx context.Context, d *store.Deployment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.deployments {
		if existing.Project == d.Project {
			return store.ErrDuplicateProject
		}
	}
	copied := *d
	m.deployments[d.ID] = &copied
	return nil
}

func (m *memStore) GetDeployment(ctx context.Context, project string) (*store.Deployment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, d := range m.deployments {
		if d.Project == project {
			copied := *d
			return &copied, nil
		}
	}
	return nil, store.ErrNotFound
}

func (m *memStore) UpdateDeploymentStatus(ctx context.Context, id string, status store.DeploymentStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.deployments[id]
	if !ok {
		return store.ErrNotFound
	}
	d.Status = status
	d.UpdatedAt = time.Now().UTC()
	return nil
}

func (m *memStore) DeleteDeployment(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.deployments, id)
	return nil
}

func (m *memStore) ListDeployments(ctx context.Context) ([]store.Deployment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []store.Deployment
	for _, d := range m.deployments {
		out = append(out, *d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Project < out[j].Project })
	return out, nil
}

func (m *memStore) UpsertInstance(ctx context.Context, rec *store.InstanceRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.instances[rec.DeploymentID+"/"+rec.ServiceName] = *rec
	return nil
}

func (m *memStore) ListInstances(ctx context.Context, deploymentID string) ([]store.InstanceRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []store.InstanceRecord
	for _, rec := range m.instances {
		if rec.DeploymentID == deploymentID {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ServiceName < out[j].ServiceName })
	return out, nil
}

func (m *memStore) DeleteInstances(ctx context.Context, deploymentID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for key, rec := range m.instances {
		if rec.DeploymentID == deploymentID {
			delete(m.instances, key)
		}
	}
	return nil
}

func (m *memStore) Close() error { return nil }
