package http

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tomek7667/stressd/internal/stress"
	"github.com/tomek7667/stressd/internal/sysfs"
)

func newTestServer(t *testing.T) (*Server, *sysfs.FS) {
	t.Helper()
	root := t.TempDir()

	for cpu := 0; cpu < 2; cpu++ {
		dir := filepath.Join(root, "cpu"+strconv.Itoa(cpu), "cpufreq")
		require.NoError(t, os.MkdirAll(dir, 0o755))
		files := map[string]string{
			"cpuinfo_max_freq": "2000000",
			"cpuinfo_min_freq": "500000",
			"scaling_max_freq": "2000000",
			"scaling_cur_freq": "1500000",
			"scaling_governor": "schedutil",
		}
		for name, value := range files {
			require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(value+"\n"), 0o644))
		}
		if cpu > 0 {
			require.NoError(t, os.WriteFile(filepath.Join(root, "cpu"+strconv.Itoa(cpu), "online"), []byte("1\n"), 0o644))
		}
	}

	fs := sysfs.New(root)
	coordinator := stress.NewCoordinator(fs)
	t.Cleanup(coordinator.Close)
	return New(0, coordinator, fs, ""), fs
}

func doJSON(t *testing.T, s *Server, method, path, body string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()

	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	var env envelope
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	}
	return rec, env
}

func statusFor(t *testing.T, env envelope, kind string) map[string]interface{} {
	t.Helper()
	data, ok := env.Data.(map[string]interface{})
	require.True(t, ok, "status data is not an object")
	entry, ok := data[kind].(map[string]interface{})
	require.True(t, ok, "no %s entry in status", kind)
	return entry
}

func TestStressStatusListsAllKinds(t *testing.T) {
	s, _ := newTestServer(t)

	rec, env := doJSON(t, s, http.MethodGet, "/api/stress/status", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.True(t, env.Success)

	for _, kind := range []string{"cpu", "memory", "disk_io", "network", "thermal"} {
		entry := statusFor(t, env, kind)
		assert.Equal(t, false, entry["isRunning"], kind)
	}
}

func TestCPUStressScenario(t *testing.T) {
	s, _ := newTestServer(t)

	rec, env := doJSON(t, s, http.MethodPost, "/api/stress/cpu/start",
		`{"threadCount":1,"loadPercentage":10,"durationMs":400}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.True(t, env.Success)

	_, env = doJSON(t, s, http.MethodGet, "/api/stress/status", "")
	entry := statusFor(t, env, "cpu")
	assert.Equal(t, true, entry["isRunning"])
	assert.LessOrEqual(t, entry["remainingTimeMs"].(float64), float64(400))

	// Starting the same kind again conflicts while the run is live.
	rec, env = doJSON(t, s, http.MethodPost, "/api/stress/cpu/start", `{"durationMs":400}`)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.False(t, env.Success)
	assert.NotEmpty(t, env.Error)

	require.Eventually(t, func() bool {
		_, env := doJSON(t, s, http.MethodGet, "/api/stress/status", "")
		return statusFor(t, env, "cpu")["isRunning"] == false
	}, 3*time.Second, 50*time.Millisecond, "run never expired")
}

func TestStressStopAndStopAll(t *testing.T) {
	s, _ := newTestServer(t)

	_, env := doJSON(t, s, http.MethodPost, "/api/stress/cpu/start",
		`{"threadCount":1,"loadPercentage":10,"durationMs":60000}`)
	require.True(t, env.Success)

	rec, env := doJSON(t, s, http.MethodPost, "/api/stress/cpu/stop", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, env.Success)

	_, env = doJSON(t, s, http.MethodGet, "/api/stress/status", "")
	assert.Equal(t, false, statusFor(t, env, "cpu")["isRunning"])

	rec, env = doJSON(t, s, http.MethodPost, "/api/stress/stop-all", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, env.Success)
}

func TestStressStartRejectsMalformedBody(t *testing.T) {
	s, _ := newTestServer(t)

	rec, env := doJSON(t, s, http.MethodPost, "/api/stress/cpu/start", `{"threadCount":`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.False(t, env.Success)
}

func TestFreqSetStatusRestore(t *testing.T) {
	s, fs := newTestServer(t)

	rec, env := doJSON(t, s, http.MethodPost, "/api/cpu/freq/set",
		`{"frequency":1000000,"cores":[0,1],"autoRestoreMs":0}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.True(t, env.Success)

	_, env = doJSON(t, s, http.MethodGet, "/api/cpu/freq/status", "")
	state, ok := env.Data.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, true, state["isLimited"])
	assert.Equal(t, float64(1000000), state["targetMaxFreq"])
	assert.Equal(t, float64(0), state["remainingRestoreMs"])

	khz, err := fs.ScalingMaxFreq(0)
	require.NoError(t, err)
	assert.Equal(t, int64(1000000), khz)

	rec, env = doJSON(t, s, http.MethodPost, "/api/cpu/freq/restore", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.True(t, env.Success)

	_, env = doJSON(t, s, http.MethodGet, "/api/cpu/freq/status", "")
	state = env.Data.(map[string]interface{})
	assert.Equal(t, false, state["isLimited"])

	khz, err = fs.ScalingMaxFreq(0)
	require.NoError(t, err)
	assert.Equal(t, int64(2000000), khz)
}

func TestFreqSetRejectsNonPositiveFrequency(t *testing.T) {
	s, _ := newTestServer(t)

	rec, env := doJSON(t, s, http.MethodPost, "/api/cpu/freq/set", `{"frequency":0}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.False(t, env.Success)
	assert.NotEmpty(t, env.Error)
}

func TestCORSPreflight(t *testing.T) {
	s, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodOptions, "/api/stress/status", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestEveryResponseCarriesCORSHeader(t *testing.T) {
	s, _ := newTestServer(t)

	rec, _ := doJSON(t, s, http.MethodGet, "/api/stress/status", "")
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}
