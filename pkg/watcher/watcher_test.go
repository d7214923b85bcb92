package watcher

import (
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// waitFor polls cond until it holds or timeout passes.
func waitFor(t *testing.T, timeout time.Duration, cond func() bool) bool {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(10 * time.Millisecond)
	}
	return cond()
}

func writeDB(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, "inventory.db")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestDebouncer_CoalescesRapidTriggers(t *testing.T) {
	d := NewDebouncer(50 * time.Millisecond)

	var calls atomic.Int32
	for i := 0; i < 10; i++ {
		d.Trigger(func() { calls.Add(1) })
		time.Sleep(10 * time.Millisecond)
	}
	time.Sleep(150 * time.Millisecond)

	if n := calls.Load(); n != 1 {
		t.Errorf("expected 1 callback invocation, got %d", n)
	}
}

func TestDebouncer_RunsLastTrigger(t *testing.T) {
	d := NewDebouncer(30 * time.Millisecond)

	var got atomic.Int32
	for i := 1; i <= 3; i++ {
		i := int32(i)
		d.Trigger(func() { got.Store(i) })
	}
	if !waitFor(t, time.Second, func() bool { return got.Load() != 0 }) {
		t.Fatal("debounced call never ran")
	}
	if got.Load() != 3 {
		t.Errorf("expected last trigger to win, got %d", got.Load())
	}
}

func TestDebouncer_Cancel(t *testing.T) {
	d := NewDebouncer(50 * time.Millisecond)

	var called atomic.Bool
	d.Trigger(func() { called.Store(true) })
	d.Cancel()
	time.Sleep(100 * time.Millisecond)

	if called.Load() {
		t.Error("callback should not have been invoked after cancel")
	}
}

func TestDebouncer_DefaultDuration(t *testing.T) {
	if d := NewDebouncer(0); d.Duration() != DefaultDebounceDuration {
		t.Errorf("expected default duration %v, got %v", DefaultDebounceDuration, d.Duration())
	}
}

func TestWatcher_DetectsFileChange(t *testing.T) {
	path := writeDB(t, t.TempDir(), "initial")

	var changed atomic.Bool
	w, err := NewWatcher(path,
		WithDebounceDuration(50*time.Millisecond),
		WithPollInterval(50*time.Millisecond),
		WithOnChange(func() { changed.Store(true) }),
	)
	if err != nil {
		t.Fatal(err)
	}
	if err := w.Start(); err != nil {
		t.Fatal(err)
	}
	defer w.Stop()

	time.Sleep(100 * time.Millisecond)
	writeDB(t, filepath.Dir(path), "modified content")

	if !waitFor(t, 2*time.Second, changed.Load) {
		t.Error("expected change to be detected")
	}
}

func TestWatcher_PollingFallback(t *testing.T) {
	path := writeDB(t, t.TempDir(), "initial")

	var changed atomic.Bool
	w, err := NewWatcher(path,
		WithDebounceDuration(20*time.Millisecond),
		WithPollInterval(50*time.Millisecond),
		WithForcePoll(true),
		WithOnChange(func() { changed.Store(true) }),
	)
	if err != nil {
		t.Fatal(err)
	}
	if err := w.Start(); err != nil {
		t.Fatal(err)
	}
	defer w.Stop()

	if !w.IsPolling() {
		t.Fatal("expected watcher to be in polling mode")
	}

	time.Sleep(50 * time.Millisecond)
	writeDB(t, filepath.Dir(path), "modified via polling")

	if !waitFor(t, 2*time.Second, changed.Load) {
		t.Error("expected change to be detected via polling")
	}
}

func TestWatcher_ChangedChannel(t *testing.T) {
	path := writeDB(t, t.TempDir(), "initial")

	w, err := NewWatcher(path,
		WithDebounceDuration(20*time.Millisecond),
		WithPollInterval(50*time.Millisecond),
		WithForcePoll(true),
	)
	if err != nil {
		t.Fatal(err)
	}
	if err := w.Start(); err != nil {
		t.Fatal(err)
	}
	defer w.Stop()

	go func() {
		time.Sleep(60 * time.Millisecond)
		os.WriteFile(path, []byte("new content, longer"), 0o644)
	}()

	select {
	case <-w.Changed():
	case <-time.After(2 * time.Second):
		t.Error("timeout waiting for change notification")
	}
}

func TestWatcher_CreatedLater(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "inventory.db")

	w, err := NewWatcher(path,
		WithDebounceDuration(20*time.Millisecond),
		WithPollInterval(50*time.Millisecond),
		WithForcePoll(true),
	)
	if err != nil {
		t.Fatal(err)
	}
	if err := w.Start(); err != nil {
		t.Fatalf("missing file must not fail Start: %v", err)
	}
	defer w.Stop()

	writeDB(t, dir, "created")
	select {
	case <-w.Changed():
	case <-time.After(2 * time.Second):
		t.Error("creation not reported")
	}
}

func TestWatcher_JournalCountsAsWrite(t *testing.T) {
	dir := t.TempDir()
	path := writeDB(t, dir, "initial")

	var changes atomic.Int32
	w, err := NewWatcher(path,
		WithDebounceDuration(20*time.Millisecond),
		WithOnChange(func() { changes.Add(1) }),
	)
	if err != nil {
		t.Fatal(err)
	}
	if err := w.Start(); err != nil {
		t.Fatal(err)
	}
	defer w.Stop()
	if w.IsPolling() {
		t.Skip("journal events are only visible through fsnotify")
	}

	time.Sleep(50 * time.Millisecond)
	os.WriteFile(filepath.Join(dir, "unrelated.txt"), []byte("x"), 0o644)
	time.Sleep(150 * time.Millisecond)
	if n := changes.Load(); n != 0 {
		t.Fatalf("unrelated file triggered %d changes", n)
	}

	os.WriteFile(path+"-journal", []byte("journal"), 0o644)
	if !waitFor(t, 2*time.Second, func() bool { return changes.Load() > 0 }) {
		t.Error("journal write not reported")
	}
}

func TestWatcher_EnvForcePoll(t *testing.T) {
	t.Setenv(ForcePollEnvVar, "1")

	path := writeDB(t, t.TempDir(), "initial")
	w, err := NewWatcher(path, WithPollInterval(25*time.Millisecond))
	if err != nil {
		t.Fatal(err)
	}
	if err := w.Start(); err != nil {
		t.Fatal(err)
	}
	defer w.Stop()

	if !w.IsPolling() {
		t.Fatalf("expected polling mode when %s is set", ForcePollEnvVar)
	}
}

func TestWatcher_RemoteFilesystem_UsesPolling(t *testing.T) {
	path := writeDB(t, t.TempDir(), "initial")

	orig := detectFilesystemTypeFunc
	detectFilesystemTypeFunc = func(string) FilesystemType { return FSTypeNFS }
	t.Cleanup(func() { detectFilesystemTypeFunc = orig })

	w, err := NewWatcher(path, WithPollInterval(25*time.Millisecond))
	if err != nil {
		t.Fatal(err)
	}
	if err := w.Start(); err != nil {
		t.Fatal(err)
	}
	defer w.Stop()

	if !w.IsPolling() {
		t.Fatal("expected watcher to use polling on remote filesystem")
	}
	if got := w.FilesystemType(); got != FSTypeNFS {
		t.Fatalf("expected filesystem type %v, got %v", FSTypeNFS, got)
	}
}

func TestWatcher_FileRemovedReportedOnce(t *testing.T) {
	path := writeDB(t, t.TempDir(), "initial")

	var (
		mu   sync.Mutex
		errs []error
	)
	w, err := NewWatcher(path,
		WithDebounceDuration(20*time.Millisecond),
		WithPollInterval(30*time.Millisecond),
		WithForcePoll(true),
		WithOnError(func(err error) {
			mu.Lock()
			errs = append(errs, err)
			mu.Unlock()
		}),
	)
	if err != nil {
		t.Fatal(err)
	}
	if err := w.Start(); err != nil {
		t.Fatal(err)
	}
	defer w.Stop()

	time.Sleep(50 * time.Millisecond)
	if err := os.Remove(path); err != nil {
		t.Fatal(err)
	}
	time.Sleep(300 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	if len(errs) != 1 || errs[0] != ErrFileRemoved {
		t.Errorf("expected a single ErrFileRemoved, got %v", errs)
	}
}

func TestWatcher_StartStop(t *testing.T) {
	path := writeDB(t, t.TempDir(), "initial")

	w, err := NewWatcher(path)
	if err != nil {
		t.Fatal(err)
	}
	if w.IsStarted() {
		t.Error("watcher should not be started initially")
	}
	if err := w.Start(); err != nil {
		t.Fatal(err)
	}
	if !w.IsStarted() {
		t.Error("watcher should be started after Start()")
	}
	if err := w.Start(); err != ErrAlreadyStarted {
		t.Errorf("expected ErrAlreadyStarted, got %v", err)
	}

	w.Stop()
	if w.IsStarted() {
		t.Error("watcher should not be started after Stop()")
	}
	w.Stop()

	// A stopped watcher can be started again.
	if err := w.Start(); err != nil {
		t.Fatalf("restart: %v", err)
	}
	w.Stop()
}

func TestWatcher_Accessors(t *testing.T) {
	path := writeDB(t, t.TempDir(), "initial")

	w, err := NewWatcher(path, WithPollInterval(500*time.Millisecond))
	if err != nil {
		t.Fatal(err)
	}
	abs, _ := filepath.Abs(path)
	if w.Path() != abs {
		t.Errorf("expected path %s, got %s", abs, w.Path())
	}
	if w.PollInterval() != 500*time.Millisecond {
		t.Errorf("expected poll interval 500ms, got %v", w.PollInterval())
	}

	w, _ = NewWatcher(path, WithPollInterval(0))
	if w.PollInterval() != DefaultPollInterval {
		t.Errorf("zero interval must keep the default, got %v", w.PollInterval())
	}
}

func TestFilesystemType_String(t *testing.T) {
	tests := []struct {
		fsType   FilesystemType
		expected string
	}{
		{FSTypeUnknown, "unknown"},
		{FSTypeLocal, "local"},
		{FSTypeNFS, "nfs"},
		{FSTypeSMB, "smb"},
		{FSTypeSSHFS, "sshfs"},
		{FSTypeFUSE, "fuse"},
		{FilesystemType(99), "unknown"},
	}
	for _, tc := range tests {
		if got := tc.fsType.String(); got != tc.expected {
			t.Errorf("FilesystemType(%d).String() = %q, expected %q", tc.fsType, got, tc.expected)
		}
	}
}

func TestIsRemoteFilesystem(t *testing.T) {
	for _, fs := range []FilesystemType{FSTypeNFS, FSTypeSMB, FSTypeSSHFS, FSTypeFUSE} {
		if !isRemoteFilesystem(fs) {
			t.Errorf("%s should poll", fs)
		}
	}
	for _, fs := range []FilesystemType{FSTypeUnknown, FSTypeLocal} {
		if isRemoteFilesystem(fs) {
			t.Errorf("%s should use fsnotify", fs)
		}
	}
}

func TestEnvBool(t *testing.T) {
	tests := []struct {
		value    string
		expected bool
	}{
		{"1", true},
		{"true", true},
		{"TRUE", true},
		{" yes ", true},
		{"y", true},
		{"on", true},
		{"0", false},
		{"false", false},
		{"no", false},
		{"", false},
		{"invalid", false},
	}
	for _, tc := range tests {
		t.Run(tc.value, func(t *testing.T) {
			t.Setenv("EDGELOC_TEST_ENV_BOOL", tc.value)
			if got := envBool("EDGELOC_TEST_ENV_BOOL"); got != tc.expected {
				t.Errorf("envBool(%q) = %v, expected %v", tc.value, got, tc.expected)
			}
		})
	}
}

func TestDetectFilesystemType(t *testing.T) {
	if got := DetectFilesystemType(""); got != FSTypeUnknown {
		t.Errorf("DetectFilesystemType(\"\") = %v, expected FSTypeUnknown", got)
	}

	var seen string
	orig := detectFilesystemTypeFunc
	detectFilesystemTypeFunc = func(p string) FilesystemType { seen = p; return FSTypeLocal }
	t.Cleanup(func() { detectFilesystemTypeFunc = orig })

	dir := t.TempDir()
	if got := DetectFilesystemType(filepath.Join(dir, "missing", "inventory.db")); got != FSTypeLocal {
		t.Errorf("got %v", got)
	}
	if seen != dir {
		t.Errorf("classified %q, want nearest existing parent %q", seen, dir)
	}
}
