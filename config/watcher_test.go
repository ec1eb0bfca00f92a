package config

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"go.viam.com/test"
	"go.viam.com/utils/testutils"

	"go.viam.com/arsession/logging"
)

func TestWatcher(t *testing.T) {
	logger, logs := logging.NewObservedTestLogger(t)
	path := filepath.Join(t.TempDir(), "arsession.json")
	test.That(t, os.WriteFile(path, []byte(`{"api_key": "one"}`), 0o600), test.ShouldBeNil)

	var mu sync.Mutex
	var keys []string
	w, err := NewWatcher(path, func(cfg *Config) {
		mu.Lock()
		keys = append(keys, cfg.APIKey)
		mu.Unlock()
	}, logger)
	test.That(t, err, test.ShouldBeNil)
	defer func() {
		test.That(t, w.Close(), test.ShouldBeNil)
		UpdateFileConfigDebug(false)
	}()

	test.That(t, os.WriteFile(path, []byte(`{"api_key": "two", "debug": true}`), 0o600), test.ShouldBeNil)
	testutils.WaitForAssertion(t, func(tb testing.TB) {
		tb.Helper()
		mu.Lock()
		defer mu.Unlock()
		test.That(tb, keys, test.ShouldNotBeEmpty)
		test.That(tb, keys[len(keys)-1], test.ShouldEqual, "two")
	})
	test.That(t, logging.GlobalLogLevel.Level().String(), test.ShouldEqual, "debug")

	// an invalid file keeps the previous config
	test.That(t, os.WriteFile(path, []byte(`{"debug": false}`), 0o600), test.ShouldBeNil)
	testutils.WaitForAssertion(t, func(tb testing.TB) {
		tb.Helper()
		test.That(tb, logs.FilterMessage("ignoring invalid config change").Len(), test.ShouldBeGreaterThan, 0)
	})
	test.That(t, logging.GlobalLogLevel.Level().String(), test.ShouldEqual, "debug")

	// other files in the directory are ignored
	test.That(t, os.WriteFile(filepath.Join(filepath.Dir(path), "other.json"), []byte(`{}`), 0o600), test.ShouldBeNil)

	// a burst of saves is read once, after it settles
	for _, key := range []string{"a", "b", "c"} {
		test.That(t, os.WriteFile(path, []byte(`{"api_key": "`+key+`", "debug": true}`), 0o600), test.ShouldBeNil)
	}
	testutils.WaitForAssertion(t, func(tb testing.TB) {
		tb.Helper()
		mu.Lock()
		defer mu.Unlock()
		test.That(tb, keys[len(keys)-1], test.ShouldEqual, "c")
	})
	time.Sleep(3 * reloadQuietPeriod)
	mu.Lock()
	defer mu.Unlock()
	test.That(t, keys, test.ShouldResemble, []string{"two", "c"})
}
