package readaloud

import (
	"bytes"
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/charmbracelet/log"
)

func testLogger() *log.Logger {
	return log.New(io.Discard)
}

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", msg)
}

// fakeSynth scripts the synthesis client.
type fakeSynth struct {
	mu    sync.Mutex
	calls int
	texts []string
	fn    func(call int, req SynthRequest) (io.ReadCloser, error)
}

func (f *fakeSynth) Synthesize(ctx context.Context, req SynthRequest) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f.mu.Lock()
	f.calls++
	call := f.calls
	f.texts = append(f.texts, req.Text)
	fn := f.fn
	f.mu.Unlock()
	if fn != nil {
		return fn(call, req)
	}
	return io.NopCloser(bytes.NewReader([]byte("RIFFaudio"))), nil
}

func (f *fakeSynth) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *fakeSynth) requestedTexts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.texts))
	copy(out, f.texts)
	return out
}

// memStore is an in-memory Store.
type memStore struct {
	mu          sync.Mutex
	entries     map[string][]byte
	writeErr    error
	invalidated []string
	trims       []int
	trimKeep    map[string]struct{}
}

func newMemStore() *memStore {
	return &memStore{entries: map[string][]byte{}}
}

func (m *memStore) Has(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.entries[key]
	return ok
}

func (m *memStore) Path(key string) string {
	return "/mem/" + key + ".wav"
}

func (m *memStore) Open(key string) (io.ReadCloser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.entries[key]
	if !ok {
		return nil, io.ErrUnexpectedEOF
	}
	return io.NopCloser(bytes.NewReader(b)), nil
}

func (m *memStore) Write(key string, src io.Reader) (string, error) {
	b, err := io.ReadAll(src)
	if err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.writeErr != nil {
		return "", m.writeErr
	}
	m.entries[key] = b
	return m.Path(key), nil
}

func (m *memStore) WriteSilent(key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.writeErr != nil {
		return "", m.writeErr
	}
	if _, ok := m.entries[key]; !ok {
		m.entries[key] = nil
	}
	return m.Path(key), nil
}

func (m *memStore) Invalidate(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, key)
	m.invalidated = append(m.invalidated, key)
	return nil
}

func (m *memStore) Trim(maxEntries int, keep map[string]struct{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.trims = append(m.trims, maxEntries)
	m.trimKeep = keep
	return nil
}

func (m *memStore) silentKeys() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for k, v := range m.entries {
		if len(v) == 0 {
			out = append(out, k)
		}
	}
	return out
}

func (m *memStore) entryCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

func (m *memStore) invalidatedKeys() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.invalidated))
	copy(out, m.invalidated)
	return out
}

func (m *memStore) trimCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.trims)
}

// fakeVoices is a static VoiceSource.
type fakeVoices struct {
	mu    sync.Mutex
	voice Voice
	ok    bool
	rate  int
}

func (f *fakeVoices) CurrentVoice() (Voice, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.voice, f.ok
}

func (f *fakeVoices) EndpointURL() string { return "http://synth.test" }

func (f *fakeVoices) SpeechRate() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.rate
}

func (f *fakeVoices) TextLanguage() string { return "zh" }

func (f *fakeVoices) setVoice(v Voice) {
	f.mu.Lock()
	f.voice = v
	f.mu.Unlock()
}

// recordSink collects enqueued segments.
type recordSink struct {
	mu       sync.Mutex
	segments []int
	keys     []string
	err      error
}

func (r *recordSink) EnqueueSegment(segment int, key, path string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.segments = append(r.segments, segment)
	r.keys = append(r.keys, key)
	return nil
}

func (r *recordSink) enqueued() []int {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]int, len(r.segments))
	copy(out, r.segments)
	return out
}

// fakePlayer is a scriptable Player for driver tests.
type fakePlayer struct {
	mu       sync.Mutex
	queue    []QueueItem
	index    int
	state    PlayerState
	playing  bool
	paused   bool
	finished bool
	speed    float64
	listener PlayerListener

	playCalls   int
	pauseCalls  int
	resumeCalls int
	clearCalls  int
}

func newFakePlayer() *fakePlayer {
	return &fakePlayer{state: PlayerIdle, speed: 1.0}
}

func (p *fakePlayer) SetListener(l PlayerListener) {
	p.mu.Lock()
	p.listener = l
	p.mu.Unlock()
}

func (p *fakePlayer) Enqueue(item QueueItem) error {
	p.mu.Lock()
	p.queue = append(p.queue, item)
	p.mu.Unlock()
	return nil
}

func (p *fakePlayer) Clear() {
	p.mu.Lock()
	p.clearCalls++
	p.queue = nil
	p.index = 0
	p.playing = false
	p.paused = false
	p.finished = false
	p.mu.Unlock()
}

func (p *fakePlayer) Finish() {
	p.mu.Lock()
	p.finished = true
	p.mu.Unlock()
}

func (p *fakePlayer) Play() error {
	p.mu.Lock()
	p.playCalls++
	p.playing = true
	p.paused = false
	p.mu.Unlock()
	return nil
}

func (p *fakePlayer) Pause() {
	p.mu.Lock()
	p.pauseCalls++
	p.paused = true
	p.mu.Unlock()
}

func (p *fakePlayer) Resume() {
	p.mu.Lock()
	p.resumeCalls++
	p.paused = false
	p.mu.Unlock()
}

func (p *fakePlayer) SetSpeed(multiplier float64) {
	p.mu.Lock()
	p.speed = multiplier
	p.mu.Unlock()
}

func (p *fakePlayer) CurrentIndex() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.index
}

func (p *fakePlayer) State() PlayerState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

func (p *fakePlayer) IsPlaying() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.playing && !p.paused
}

func (p *fakePlayer) Close() error { return nil }

func (p *fakePlayer) setIndex(i int) {
	p.mu.Lock()
	p.index = i
	p.mu.Unlock()
}

func (p *fakePlayer) queueLen() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.queue)
}

func (p *fakePlayer) queuedKey(i int) string {
	p.mu.Lock()
	defer p.mu.Unlock()
	if i < 0 || i >= len(p.queue) {
		return ""
	}
	return p.queue[i].Key
}

func (p *fakePlayer) stats() (play, pause, resume, clear int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.playCalls, p.pauseCalls, p.resumeCalls, p.clearCalls
}

func (p *fakePlayer) currentSpeed() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.speed
}

func (p *fakePlayer) isFinished() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.finished
}

// fakeProgress records progress callbacks.
type fakeProgress struct {
	mu         sync.Mutex
	cursors    []Cursor
	lengths    []int
	pages      []int
	chapterEnd int
}

func (f *fakeProgress) OnProgress(cur Cursor, readLength int) {
	f.mu.Lock()
	f.cursors = append(f.cursors, cur)
	f.lengths = append(f.lengths, readLength)
	f.mu.Unlock()
}

func (f *fakeProgress) OnPageTurn(page int) {
	f.mu.Lock()
	f.pages = append(f.pages, page)
	f.mu.Unlock()
}

func (f *fakeProgress) OnChapterEnd() {
	f.mu.Lock()
	f.chapterEnd++
	f.mu.Unlock()
}

func (f *fakeProgress) lastCursor() (Cursor, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.cursors) == 0 {
		return Cursor{}, false
	}
	return f.cursors[len(f.cursors)-1], true
}

func (f *fakeProgress) pageTurns() []int {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]int, len(f.pages))
	copy(out, f.pages)
	return out
}

func (f *fakeProgress) chapterEnds() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.chapterEnd
}
