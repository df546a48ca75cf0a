package execute

import (
	"reflect"
	"strings"
	"testing"

	"github.com/SouthHost/the-bastion/internal/result"
)

func sh(script string) []string {
	return []string{"/bin/sh", "-c", script}
}

func execValue(t *testing.T, res *result.Result) *ExecutionResult {
	t.Helper()
	value, ok := res.Value.(*ExecutionResult)
	if !ok {
		t.Fatalf("result value is %T, want *ExecutionResult", res.Value)
	}
	return value
}

func TestExecuteHello(t *testing.T) {
	res := Execute(Options{Cmd: sh("echo hello")})
	if res.Kind != result.KindOK {
		t.Fatalf("kind = %s, want OK (%s)", res.Kind, res.Msg)
	}
	v := execValue(t, res)
	if v.Status == nil || *v.Status != 0 {
		t.Errorf("status = %v, want 0", v.Status)
	}
	if v.Signal != "" {
		t.Errorf("signal = %q, want empty", v.Signal)
	}
	if !reflect.DeepEqual(v.Stdout, []string{"hello"}) {
		t.Errorf("stdout = %v, want [hello]", v.Stdout)
	}
	if len(v.Stderr) != 0 {
		t.Errorf("stderr = %v, want empty", v.Stderr)
	}
	if v.Bytesnb.Stdout != 6 {
		t.Errorf("bytesnb.stdout = %d, want 6", v.Bytesnb.Stdout)
	}
}

func TestExecuteNonZeroExit(t *testing.T) {
	res := Execute(Options{Cmd: sh("exit 3")})
	if res.Kind != result.KindOKNonZeroExit {
		t.Fatalf("kind = %s, want OK_NON_ZERO_EXIT", res.Kind)
	}
	v := execValue(t, res)
	if v.Status == nil || *v.Status != 3 {
		t.Errorf("status = %v, want 3", v.Status)
	}
	if v.Sysret != 3 {
		t.Errorf("sysret = %d, want 3", v.Sysret)
	}
	if v.SysretRaw>>8 != v.Sysret {
		t.Errorf("sysret_raw = %#x inconsistent with sysret %d", v.SysretRaw, v.Sysret)
	}
}

func TestExecuteMustSucceed(t *testing.T) {
	res := Execute(Options{Cmd: sh("exit 3"), MustSucceed: true})
	if res.Kind != result.KindErrNonZeroExit {
		t.Fatalf("kind = %s, want ERR_NON_ZERO_EXIT", res.Kind)
	}
	if !res.IsErr() {
		t.Error("result should be an error")
	}
}

func TestExecuteSignalled(t *testing.T) {
	res := Execute(Options{Cmd: sh("kill -9 $$")})
	if res.Kind != result.KindOK {
		t.Fatalf("kind = %s, want OK", res.Kind)
	}
	v := execValue(t, res)
	if v.Status != nil {
		t.Errorf("status = %v, want nil for signalled child", *v.Status)
	}
	if v.Signal != "SIGKILL" {
		t.Errorf("signal = %q, want SIGKILL", v.Signal)
	}
	if v.Coredump {
		t.Error("coredump = true, want false")
	}
}

func TestExecuteStdinStr(t *testing.T) {
	res := Execute(Options{Cmd: []string{"/bin/cat"}, StdinStr: "abc"})
	if res.Kind != result.KindOK {
		t.Fatalf("kind = %s (%s)", res.Kind, res.Msg)
	}
	v := execValue(t, res)
	if !reflect.DeepEqual(v.Stdout, []string{"abc"}) {
		t.Errorf("stdout = %v, want [abc]", v.Stdout)
	}
	if v.Bytesnb.Stdin != 3 {
		t.Errorf("bytesnb.stdin = %d, want 3", v.Bytesnb.Stdin)
	}
	if v.Bytesnb.Stdout != 3 {
		t.Errorf("bytesnb.stdout = %d, want 3", v.Bytesnb.Stdout)
	}
}

func TestExecuteStdoutCap(t *testing.T) {
	const cap = 1000
	res := Execute(Options{
		Cmd:            sh("while :; do echo y; done"),
		MaxStdoutBytes: cap,
	})
	v := execValue(t, res)
	// The child dies from the broken pipe or exits on its own; either
	// a status or a signal is acceptable, never both.
	if (v.Status != nil) == (v.Signal != "") {
		t.Errorf("status=%v signal=%q: exactly one must be defined", v.Status, v.Signal)
	}
	if v.Bytesnb.Stdout < cap {
		t.Errorf("bytesnb.stdout = %d, want >= %d", v.Bytesnb.Stdout, cap)
	}
	if v.Bytesnb.Stdout > cap+readChunk {
		t.Errorf("bytesnb.stdout = %d, overshoot beyond one read (max %d)", v.Bytesnb.Stdout, cap+readChunk)
	}
}

func TestExecuteStderrCapture(t *testing.T) {
	res := Execute(Options{Cmd: sh("echo out; echo err >&2")})
	v := execValue(t, res)
	if !reflect.DeepEqual(v.Stdout, []string{"out"}) {
		t.Errorf("stdout = %v", v.Stdout)
	}
	if !reflect.DeepEqual(v.Stderr, []string{"err"}) {
		t.Errorf("stderr = %v", v.Stderr)
	}
	if v.Bytesnb.Stderr != 4 {
		t.Errorf("bytesnb.stderr = %d, want 4", v.Bytesnb.Stderr)
	}
}

// The envelope filter only touches the mirror: captured stdout must be
// identical with and without helper mode.
func TestExecuteHelperCaptureUnaltered(t *testing.T) {
	script := `printf 'hi\nJSON_START\n{"error_code":"OK","value":1,"error_message":""}\nJSON_END\nbye\n'`

	plain := execValue(t, Execute(Options{Cmd: sh(script)}))
	helper := execValue(t, Execute(Options{Cmd: sh(script), IsHelper: true}))

	if !reflect.DeepEqual(plain.Stdout, helper.Stdout) {
		t.Errorf("helper capture differs:\nplain  = %v\nhelper = %v", plain.Stdout, helper.Stdout)
	}
	if len(helper.Stdout) != 5 {
		t.Errorf("stdout lines = %d, want 5", len(helper.Stdout))
	}
}

// Captured lines re-joined on the terminator must reproduce the raw
// bytes with no reordering within a stream.
func TestExecuteCaptureJoinsBack(t *testing.T) {
	res := Execute(Options{Cmd: sh(`printf 'a\nb\n\nc'`)})
	v := execValue(t, res)
	joined := strings.Join(v.Stdout, "\n")
	if joined != "a\nb\n\nc" {
		t.Errorf("rejoined capture = %q", joined)
	}
	if v.Bytesnb.Stdout != 7 {
		t.Errorf("bytesnb.stdout = %d, want 7", v.Bytesnb.Stdout)
	}
}

func TestExecuteBinarySuppressesCapture(t *testing.T) {
	res := Execute(Options{Cmd: sh("echo bin"), IsBinary: true})
	v := execValue(t, res)
	if v.Stdout != nil || v.Stderr != nil {
		t.Errorf("binary mode captured output: stdout=%v stderr=%v", v.Stdout, v.Stderr)
	}
	if v.Bytesnb.Stdout != 4 {
		t.Errorf("bytesnb.stdout = %d, want 4", v.Bytesnb.Stdout)
	}
}

func TestExecuteSpawnFailure(t *testing.T) {
	res := Execute(Options{Cmd: []string{"/nonexistent/definitely-not-a-binary"}})
	if res.Kind != result.KindErrExecFailed {
		t.Fatalf("kind = %s, want ERR_EXEC_FAILED", res.Kind)
	}
}

func TestExecuteNoCommand(t *testing.T) {
	res := Execute(Options{})
	if res.Kind != result.KindErrInvalidParameter {
		t.Fatalf("kind = %s, want ERR_INVALID_PARAMETER", res.Kind)
	}
}

func TestExecuteHelperBinaryConflict(t *testing.T) {
	res := Execute(Options{Cmd: sh("true"), IsHelper: true, IsBinary: true})
	if res.Kind != result.KindErrInvalidParameter {
		t.Fatalf("kind = %s, want ERR_INVALID_PARAMETER", res.Kind)
	}
}

func TestExecuteSystem(t *testing.T) {
	res := Execute(Options{Cmd: sh("exit 7"), System: true})
	if res.Kind != result.KindOKNonZeroExit {
		t.Fatalf("kind = %s, want OK_NON_ZERO_EXIT", res.Kind)
	}
	v := execValue(t, res)
	if v.Status == nil || *v.Status != 7 {
		t.Errorf("status = %v, want 7", v.Status)
	}
}

func TestExecuteSimpleMergedOutput(t *testing.T) {
	res := ExecuteSimple(Options{Cmd: sh("echo out; echo err >&2")})
	if res.Kind != result.KindOK {
		t.Fatalf("kind = %s (%s)", res.Kind, res.Msg)
	}
	v := execValue(t, res)
	out := string(v.Output)
	if !strings.Contains(out, "out\n") || !strings.Contains(out, "err\n") {
		t.Errorf("merged output = %q, want both streams", out)
	}
	if v.Bytesnb.Stdout != uint64(len(v.Output)) {
		t.Errorf("bytesnb.stdout = %d, want %d", v.Bytesnb.Stdout, len(v.Output))
	}
}

func TestExecuteSimpleSpawnFailure(t *testing.T) {
	res := ExecuteSimple(Options{Cmd: []string{"/nonexistent/definitely-not-a-binary"}})
	if res.Kind != result.KindErrExecFailed {
		t.Fatalf("kind = %s, want ERR_EXEC_FAILED", res.Kind)
	}
}

func TestExecuteSimpleNonZero(t *testing.T) {
	res := ExecuteSimple(Options{Cmd: sh("echo boom; exit 2"), MustSucceed: true})
	if res.Kind != result.KindErrNonZeroExit {
		t.Fatalf("kind = %s, want ERR_NON_ZERO_EXIT", res.Kind)
	}
	v := execValue(t, res)
	if string(v.Output) != "boom\n" {
		t.Errorf("output = %q, want boom", v.Output)
	}
}

func TestSplitLines(t *testing.T) {
	cases := []struct {
		in   string
		want []string
	}{
		{"", []string{}},
		{"a", []string{"a"}},
		{"a\n", []string{"a"}},
		{"a\nb", []string{"a", "b"}},
		{"a\n\n", []string{"a", ""}},
		{"\n", []string{""}},
	}
	for _, c := range cases {
		got := splitLines([]byte(c.in))
		if !reflect.DeepEqual(got, c.want) {
			t.Errorf("splitLines(%q) = %v, want %v", c.in, got, c.want)
		}
	}
}
