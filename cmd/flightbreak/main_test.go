package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"github.com/nvandessel/flightbreak/internal/breaker"
	"github.com/nvandessel/flightbreak/internal/config"
	"github.com/nvandessel/flightbreak/internal/constants"
	"github.com/nvandessel/flightbreak/internal/store"
)

// alwaysBig is the only trajectory p2=0, p4=1 can produce over 15 weeks.
var alwaysBig = breaker.Trajectory{4, 4, -1, -1, -1, -1, -1, -1, -1, -1, 4, 4, -1, -1, -1}

// isolateHome points HOME at a temp directory so ~/.flightbreak is never read.
func isolateHome(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	return home
}

// runCmd executes the root command with args and returns stdout and stderr.
func runCmd(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	rootCmd := newRootCmd()
	rootCmd.SetArgs(args)
	rootCmd.SetOut(&stdout)
	rootCmd.SetErr(&stderr)
	err := rootCmd.ExecuteContext(context.Background())
	return stdout.String(), stderr.String(), err
}

func TestVersionCmd(t *testing.T) {
	out, _, err := runCmd(t, "version")
	if err != nil {
		t.Fatalf("version failed: %v", err)
	}
	if !strings.Contains(out, "flightbreak version "+version) {
		t.Errorf("output = %q", out)
	}

	out, _, err = runCmd(t, "version", "--json")
	if err != nil {
		t.Fatalf("version --json failed: %v", err)
	}
	var v map[string]string
	if err := json.Unmarshal([]byte(out), &v); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if v["version"] != version {
		t.Errorf("version = %q, want %q", v["version"], version)
	}
}

func TestSimulateAlwaysBig(t *testing.T) {
	isolateHome(t)
	root := t.TempDir()

	out, _, err := runCmd(t, "simulate", "--root", root, "--json",
		"--p2", "0", "--p4", "1", "--weeks", "15", "--seed", "1", "--count", "3")
	if err != nil {
		t.Fatalf("simulate failed: %v", err)
	}

	var got simulateOutput
	if err := json.Unmarshal([]byte(out), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(got.Runs) != 3 {
		t.Fatalf("got %d runs, want 3", len(got.Runs))
	}
	for i, run := range got.Runs {
		if !slices.Equal(run.Trajectory, alwaysBig) {
			t.Errorf("run %d = %v, want %v", i, run.Trajectory, alwaysBig)
		}
		if got.Cancelled[i] != 11 {
			t.Errorf("run %d cancelled = %d, want 11", i, got.Cancelled[i])
		}
	}
	if got.Seed != 1 {
		t.Errorf("seed = %d, want 1", got.Seed)
	}
}

func TestSimulateSeedReproducible(t *testing.T) {
	isolateHome(t)
	root := t.TempDir()
	args := []string{"simulate", "--root", root, "--json", "--seed", "42", "--weeks", "40"}

	first, _, err := runCmd(t, args...)
	if err != nil {
		t.Fatalf("simulate failed: %v", err)
	}
	second, _, err := runCmd(t, args...)
	if err != nil {
		t.Fatalf("simulate failed: %v", err)
	}
	if first != second {
		t.Error("seeded simulate output differs between runs")
	}
}

func TestSimulateExplain(t *testing.T) {
	isolateHome(t)

	out, _, err := runCmd(t, "simulate", "--root", t.TempDir(),
		"--p2", "0", "--p4", "1", "--weeks", "15", "--seed", "1", "--explain")
	if err != nil {
		t.Fatalf("simulate failed: %v", err)
	}
	for _, want := range []string{
		"   0  2022-04-01      4  big trigger, break weeks 3-6",
		"   1  2022-04-08      4  repeated big trigger, escalated break weeks 2-9",
		"   2  2022-04-15     -1  cancelled",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestSimulateErrors(t *testing.T) {
	isolateHome(t)

	tests := []struct {
		name string
		args []string
		is   error
	}{
		{"probabilities sum above one", []string{"--p2", "0.8", "--p4", "0.5"}, breaker.ErrConfiguration},
		{"zero weeks", []string{"--weeks", "0"}, nil},
		{"zero count", []string{"--count", "0"}, nil},
		{"bad first date", []string{"--first", "2022/04/01"}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args := append([]string{"simulate", "--root", t.TempDir()}, tt.args...)
			_, _, err := runCmd(t, args...)
			if err == nil {
				t.Fatal("expected error")
			}
			if tt.is != nil && !errors.Is(err, tt.is) {
				t.Errorf("error = %v, want %v", err, tt.is)
			}
		})
	}
}

func TestEstimateText(t *testing.T) {
	isolateHome(t)

	out, _, err := runCmd(t, "estimate", "--root", t.TempDir(),
		"--p2", "0", "--p4", "1", "--weeks", "15", "--simulations", "20", "--seed", "5", "--width", "10")
	if err != nil {
		t.Fatalf("estimate failed: %v", err)
	}
	for _, want := range []string{
		"p2=0 p4=1, 15 weeks, 20 simulations (seed 5",
		"week  date        probability",
		"   2  2022-04-15  1.0000  |##########",
		"  10  2022-06-10  0.0000  |",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestEstimateSaveAndHistory(t *testing.T) {
	isolateHome(t)
	root := t.TempDir()

	out, _, err := runCmd(t, "estimate", "--root", root, "--json",
		"--weeks", "8", "--simulations", "100", "--seed", "3", "--save", "--label", "spring")
	if err != nil {
		t.Fatalf("estimate failed: %v", err)
	}
	var est estimateOutput
	if err := json.Unmarshal([]byte(out), &est); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if est.RunID == "" || len(est.Points) != 8 {
		t.Fatalf("estimate output = %+v", est)
	}
	if _, err := os.Stat(filepath.Join(root, constants.DirName, constants.DBFileName)); err != nil {
		t.Errorf("database not created: %v", err)
	}

	out, _, err = runCmd(t, "history", "list", "--root", root, "--json")
	if err != nil {
		t.Fatalf("history list failed: %v", err)
	}
	var list struct {
		Runs  []store.Run `json:"runs"`
		Count int         `json:"count"`
	}
	if err := json.Unmarshal([]byte(out), &list); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if list.Count != 1 || list.Runs[0].ID != est.RunID || list.Runs[0].Label != "spring" {
		t.Fatalf("list = %+v", list)
	}

	out, _, err = runCmd(t, "history", "show", est.RunID, "--root", root)
	if err != nil {
		t.Fatalf("history show failed: %v", err)
	}
	if !strings.Contains(out, "Label:       spring") || !strings.Contains(out, "seed 3") {
		t.Errorf("show output:\n%s", out)
	}

	exportPath := filepath.Join(t.TempDir(), "runs.jsonl")
	if _, _, err := runCmd(t, "history", "export", "--root", root, "-o", exportPath); err != nil {
		t.Fatalf("history export failed: %v", err)
	}

	if _, _, err := runCmd(t, "history", "delete", est.RunID, "--root", root); err != nil {
		t.Fatalf("history delete failed: %v", err)
	}
	_, _, err = runCmd(t, "history", "show", est.RunID, "--root", root)
	if !errors.Is(err, store.ErrNotFound) {
		t.Errorf("show after delete error = %v, want ErrNotFound", err)
	}

	out, _, err = runCmd(t, "history", "import", exportPath, "--root", root)
	if err != nil {
		t.Fatalf("history import failed: %v", err)
	}
	if !strings.Contains(out, "Imported 1 runs") {
		t.Errorf("import output = %q", out)
	}
	if _, _, err := runCmd(t, "history", "show", est.RunID, "--root", root); err != nil {
		t.Errorf("imported run not found: %v", err)
	}
}

func TestHistoryListEmpty(t *testing.T) {
	isolateHome(t)

	out, _, err := runCmd(t, "history", "list", "--root", t.TempDir())
	if err != nil {
		t.Fatalf("history list failed: %v", err)
	}
	if !strings.Contains(out, "No saved runs.") {
		t.Errorf("output = %q", out)
	}
}

func TestRunLogWrittenAtDebug(t *testing.T) {
	isolateHome(t)
	root := t.TempDir()

	_, stderr, err := runCmd(t, "estimate", "--root", root, "--log-level", "debug",
		"--weeks", "5", "--simulations", "10", "--seed", "1")
	if err != nil {
		t.Fatalf("estimate failed: %v", err)
	}
	if !strings.Contains(stderr, "estimate complete") {
		t.Errorf("stderr should carry the estimate log line:\n%s", stderr)
	}

	data, err := os.ReadFile(filepath.Join(root, constants.DirName, constants.RunLogFileName))
	if err != nil {
		t.Fatalf("run log not written: %v", err)
	}
	if !strings.Contains(string(data), `"event":"estimate"`) {
		t.Errorf("run log = %s", data)
	}
}

func TestTraceLogsSampledWeeks(t *testing.T) {
	isolateHome(t)

	_, stderr, err := runCmd(t, "simulate", "--root", t.TempDir(), "--log-level", "trace",
		"--weeks", "4", "--seed", "1")
	if err != nil {
		t.Fatalf("simulate failed: %v", err)
	}
	if !strings.Contains(stderr, "level=TRACE") || !strings.Contains(stderr, "week sampled") {
		t.Errorf("stderr missing trace lines:\n%s", stderr)
	}
}

func TestConfigPrecedence(t *testing.T) {
	isolateHome(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "flightbreak.yaml")
	if err := os.WriteFile(path, []byte("simulation:\n  p4: 0.3\n  weeks: 10\n"), 0600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("FLIGHTBREAK_WEEKS", "20")

	out, _, err := runCmd(t, "config", "show", "--config", path, "--json")
	if err != nil {
		t.Fatalf("config show failed: %v", err)
	}
	var cfg config.Config
	if err := json.Unmarshal([]byte(out), &cfg); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if cfg.Simulation.Big != 0.3 {
		t.Errorf("p4 = %v, want 0.3 from file", cfg.Simulation.Big)
	}
	if cfg.Simulation.Weeks != 20 {
		t.Errorf("weeks = %d, want 20 from env", cfg.Simulation.Weeks)
	}
	if cfg.Simulation.Small != constants.DefaultSmallProbability {
		t.Errorf("p2 = %v, want default", cfg.Simulation.Small)
	}

	// Flags beat both.
	out, _, err = runCmd(t, "simulate", "--config", path, "--root", dir, "--json", "--weeks", "6", "--seed", "2")
	if err != nil {
		t.Fatalf("simulate failed: %v", err)
	}
	var sim simulateOutput
	if err := json.Unmarshal([]byte(out), &sim); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if sim.Parameters.Weeks != 6 || sim.Parameters.Big != 0.3 {
		t.Errorf("parameters = %+v, want weeks 6 and p4 0.3", sim.Parameters)
	}
}

func TestConfigValidate(t *testing.T) {
	isolateHome(t)

	out, _, err := runCmd(t, "config", "validate")
	if err != nil {
		t.Fatalf("validate failed on defaults: %v", err)
	}
	if !strings.Contains(out, "Configuration is valid.") {
		t.Errorf("output = %q", out)
	}

	t.Setenv("FLIGHTBREAK_P2", "0.9")
	t.Setenv("FLIGHTBREAK_P4", "0.9")
	if _, _, err := runCmd(t, "config", "validate"); err == nil {
		t.Error("expected validation error")
	}
}

func TestInvalidLogLevelFlag(t *testing.T) {
	isolateHome(t)

	_, _, err := runCmd(t, "simulate", "--root", t.TempDir(), "--log-level", "loud")
	if err == nil || !strings.Contains(err.Error(), "invalid log level") {
		t.Errorf("error = %v, want invalid log level", err)
	}
}

func TestChartStaticOutput(t *testing.T) {
	isolateHome(t)
	output := filepath.Join(t.TempDir(), "chart.html")

	out, _, err := runCmd(t, "chart", "--root", t.TempDir(), "-o", output,
		"--simulations", "50", "--seed", "1")
	if err != nil {
		t.Fatalf("chart failed: %v", err)
	}
	if !strings.Contains(out, "Chart written to") {
		t.Errorf("output = %q", out)
	}
	data, err := os.ReadFile(output)
	if err != nil {
		t.Fatalf("read chart: %v", err)
	}
	if got := strings.Count(string(data), "<rect class=\"bar\""); got != constants.DefaultWeeks {
		t.Errorf("chart has %d bars, want %d", got, constants.DefaultWeeks)
	}
}

func TestChartRejectsShortHorizon(t *testing.T) {
	isolateHome(t)

	_, _, err := runCmd(t, "chart", "--root", t.TempDir(), "--weeks", "2", "--no-open")
	if err == nil || !strings.Contains(err.Error(), "at least 3 weeks") {
		t.Errorf("error = %v, want short horizon error", err)
	}
}

func TestSubcommandsRegistered(t *testing.T) {
	rootCmd := newRootCmd()
	for _, name := range []string{"version", "simulate", "estimate", "history", "chart", "mcp-server", "config"} {
		cmd, _, err := rootCmd.Find([]string{name})
		if err != nil || cmd.Name() != name {
			t.Errorf("subcommand %q not registered", name)
		}
	}
	for _, flag := range []string{"json", "root", "config", "log-level"} {
		if rootCmd.PersistentFlags().Lookup(flag) == nil {
			t.Errorf("missing persistent --%s flag", flag)
		}
	}
}
