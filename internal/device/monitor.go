package device

import (
	"log"
	"sort"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/stlalpha/keytrace/internal/logging"
)

const (
	inputDir = "/dev/input"

	// debounceDelay coalesces the burst of fsnotify events a single
	// hotplug produces, and gives udev time to finish setting
	// permissions before we try to open the node.
	debounceDelay = 300 * time.Millisecond

	defaultPollInterval = 5 * time.Second
)

// Options configure a Monitor.
type Options struct {
	Filter       Filter
	PollInterval time.Duration
}

// Monitor watches /dev/input, keeps a reader attached to every
// matching device, and delivers key and hotplug events on a single
// channel. Devices are opened read-only and never grabbed.
type Monitor struct {
	opts   Options
	events chan Event
	stop   chan struct{}
	wg     sync.WaitGroup

	mu      sync.Mutex
	readers map[string]*reader
	stopped bool
}

// NewMonitor returns an idle monitor; call Start to begin watching.
func NewMonitor(opts Options) *Monitor {
	if opts.PollInterval <= 0 {
		opts.PollInterval = defaultPollInterval
	}
	return &Monitor{
		opts:    opts,
		events:  make(chan Event, 256),
		stop:    make(chan struct{}),
		readers: make(map[string]*reader),
	}
}

// Events returns the monitor's event stream. The channel closes after
// Stop.
func (m *Monitor) Events() <-chan Event { return m.events }

// Start performs the initial scan and begins hotplug watching. An
// unreadable /dev/input is not an error: the monitor stays running
// with zero devices and keeps polling.
func (m *Monitor) Start() {
	m.rescan()

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		log.Printf("WARN: device watcher unavailable, polling only: %v", err)
	} else if err := watcher.Add(inputDir); err != nil {
		logging.Debug("watching %s: %v", inputDir, err)
		watcher.Close()
		watcher = nil
	}

	m.wg.Add(1)
	go m.run(watcher)
}

func (m *Monitor) run(watcher *fsnotify.Watcher) {
	defer m.wg.Done()
	if watcher != nil {
		defer watcher.Close()
	}

	ticker := time.NewTicker(m.opts.PollInterval)
	defer ticker.Stop()

	// The debounce timer starts stopped; hotplug notifications rewind
	// it instead of rescanning immediately.
	debounce := time.NewTimer(debounceDelay)
	if !debounce.Stop() {
		<-debounce.C
	}
	defer debounce.Stop()

	var watchEvents chan fsnotify.Event
	var watchErrors chan error
	if watcher != nil {
		watchEvents = watcher.Events
		watchErrors = watcher.Errors
	}

	for {
		select {
		case <-m.stop:
			return
		case ev, ok := <-watchEvents:
			if !ok {
				watchEvents = nil
				continue
			}
			logging.Debug("device watch: %s %s", ev.Op, ev.Name)
			debounce.Reset(debounceDelay)
		case err, ok := <-watchErrors:
			if !ok {
				watchErrors = nil
				continue
			}
			log.Printf("WARN: device watcher: %v", err)
		case <-debounce.C:
			m.rescan()
		case <-ticker.C:
			m.rescan()
		}
	}
}

// Stop detaches every device and closes the event channel.
func (m *Monitor) Stop() {
	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		return
	}
	m.stopped = true
	readers := make([]*reader, 0, len(m.readers))
	for _, r := range m.readers {
		readers = append(readers, r)
	}
	m.readers = map[string]*reader{}
	m.mu.Unlock()

	close(m.stop)
	for _, r := range readers {
		r.close()
	}
	m.wg.Wait()
	close(m.events)
}

// Devices returns the attached devices, sorted by path.
func (m *Monitor) Devices() []Device {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Device, 0, len(m.readers))
	for _, r := range m.readers {
		out = append(out, r.device)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}

// rescan reconciles the reader set against the current device nodes.
func (m *Monitor) rescan() {
	present := make(map[string]bool)
	for _, path := range enumeratePaths() {
		present[path] = true
		m.attach(path)
	}

	m.mu.Lock()
	var gone []*reader
	for path, r := range m.readers {
		if !present[path] {
			delete(m.readers, path)
			gone = append(gone, r)
		}
	}
	m.mu.Unlock()
	for _, r := range gone {
		r.close()
		m.detached(r.device)
	}
}

// attach opens and classifies a device node, skipping paths that are
// already attached, filtered out, or not key-capable.
func (m *Monitor) attach(path string) {
	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		return
	}
	if _, ok := m.readers[path]; ok {
		m.mu.Unlock()
		return
	}
	m.mu.Unlock()

	r, err := openReader(path)
	if err != nil {
		// Expected for nodes we lack permission on and for non-key
		// devices; only worth a line when debugging discovery.
		logging.Debug("skipping %s: %v", path, err)
		return
	}
	if !m.opts.Filter.Match(r.device.Name) {
		logging.Debug("filtered out %s (%s)", r.device.Name, path)
		r.close()
		return
	}

	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		r.close()
		return
	}
	m.readers[path] = r
	m.mu.Unlock()

	log.Printf("INFO: attached %s %q (%s)", r.device.Kind, r.device.Name, path)
	m.send(Event{Type: EventAttach, Device: r.device, Held: r.held})

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		r.run(func(ev KeyEvent) {
			m.send(Event{Type: EventKey, Device: r.device, Key: ev})
		})
		// Reader stopped: either the node went away or we are shutting
		// down. rescan handles planned removals; this handles read
		// errors between scans.
		m.mu.Lock()
		_, attached := m.readers[r.device.Path]
		if attached {
			delete(m.readers, r.device.Path)
		}
		m.mu.Unlock()
		if attached {
			m.detached(r.device)
		}
	}()
}

func (m *Monitor) detached(d Device) {
	log.Printf("INFO: detached %s %q (%s)", d.Kind, d.Name, d.Path)
	m.send(Event{Type: EventDetach, Device: d})
}

func (m *Monitor) send(ev Event) {
	select {
	case m.events <- ev:
	case <-m.stop:
	}
}
